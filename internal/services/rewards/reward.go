package rewards

import "math"

// Weights blend the rolling metrics into the enhanced reward.
type Weights struct {
	Sharpe   float64
	Sortino  float64
	Drawdown float64
	Streak   float64
}

// Calculator turns a realised fill into a scalar reward.
type Calculator struct {
	RiskPenaltyFactor     float64
	TransactionCostFactor float64
	Enhanced              bool
	Weights               Weights
}

// Legacy is pnl minus the risk and cost charges on the traded notional.
func (c Calculator) Legacy(pnl, notional float64) float64 {
	notional = math.Abs(notional)
	return pnl - c.RiskPenaltyFactor*notional - c.TransactionCostFactor*notional
}

// Reward returns the legacy reward, plus the weighted metric blend when
// enhanced rewards are on. The tracker should already include this trade.
func (c Calculator) Reward(pnl, notional float64, t *Tracker) float64 {
	r := c.Legacy(pnl, notional)
	if !c.Enhanced || t == nil {
		return r
	}
	return r + c.Blend(t)
}

// Blend maps each metric into a bounded range before weighting.
func (c Calculator) Blend(t *Tracker) float64 {
	w := c.Weights
	return w.Sharpe*math.Tanh(t.Sharpe()) +
		w.Sortino*math.Tanh(t.Sortino()) -
		w.Drawdown*t.Drawdown() +
		w.Streak*math.Tanh(float64(t.Streak())/5)
}
