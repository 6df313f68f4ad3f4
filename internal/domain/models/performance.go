package models

// SymbolPerformance tracks realised results and the adaptive confidence bias.
type SymbolPerformance struct {
	Trades         int     `json:"trades"`
	Wins           int     `json:"wins"`
	CumulativePnL  float64 `json:"cumulative_pnl"`
	ConfidenceBias float64 `json:"confidence_bias"` // [-0.15, 0.15]
}

func (p SymbolPerformance) WinRate() float64 {
	if p.Trades == 0 {
		return 0
	}
	return float64(p.Wins) / float64(p.Trades)
}

func (p SymbolPerformance) AveragePnL() float64 {
	if p.Trades == 0 {
		return 0
	}
	return p.CumulativePnL / float64(p.Trades)
}
