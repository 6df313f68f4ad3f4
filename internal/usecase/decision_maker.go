package usecase

import (
	"fmt"
	"time"

	"TradeMind/internal/domain/models"
	"TradeMind/internal/services/performance"
	"TradeMind/internal/services/rl"
	"TradeMind/internal/services/safeguards"
	"TradeMind/pkg/logger"
	"TradeMind/pkg/util"
)

// Volatility preference modes.
const (
	VolatilityBiasHigh     = "high"
	VolatilityBiasLow      = "low"
	VolatilityBiasBalanced = "balanced"

	volatilityBiasStep = 0.05
)

type DecisionConfig struct {
	MinConfidence          float64
	MaxConcurrentPositions int
	MaxCapitalPerPosition  float64
	AdaptiveConfidence     bool
	VolatilityBias         string
}

func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		MinConfidence:          0.6,
		MaxConcurrentPositions: 5,
		MaxCapitalPerPosition:  0.1,
		AdaptiveConfidence:     true,
		VolatilityBias:         VolatilityBiasBalanced,
	}
}

// DecisionInput is everything one evaluation needs.
type DecisionInput struct {
	Symbol              string
	State               models.MarketState
	Bars                []models.Bar
	EdgeCase            *models.EdgeCaseResult
	TimeframeDivergence bool
	Portfolio           models.PortfolioSnapshot
	Now                 time.Time
	Training            bool
	// MinConfidence overrides the configured threshold when positive.
	MinConfidence float64
}

// DecisionMaker folds the agent's choice through the edge-case screen,
// the safeguards and the per-symbol policies into a TradeDecision.
type DecisionMaker struct {
	cfg    DecisionConfig
	agent  *rl.Agent
	guards *safeguards.Safeguards
	perf   *performance.Book
	log    *logger.Logger
}

func NewDecisionMaker(cfg DecisionConfig, agent *rl.Agent, guards *safeguards.Safeguards, perf *performance.Book, log *logger.Logger) *DecisionMaker {
	if log == nil {
		log = logger.Nop()
	}
	return &DecisionMaker{cfg: cfg, agent: agent, guards: guards, perf: perf, log: log}
}

// MakeDecision never fails: every refusal is a decision with a reason.
func (m *DecisionMaker) MakeDecision(in DecisionInput) models.TradeDecision {
	if in.Now.IsZero() {
		in.Now = in.State.Timestamp
	}
	if !in.State.Tradeable {
		reason := in.State.Reason
		if reason == "" {
			reason = models.ReasonInsufficientData
		}
		return models.NotTradeable(in.Symbol, in.Now, reason)
	}

	state := rl.Discretize(in.State)
	action := m.agent.SelectAction(state, in.Training)
	base := m.agent.Confidence(state, action)

	bd := models.ConfidenceBreakdown{Base: base, EdgeCaseMultiplier: 1, SafeguardMultiplier: 1}
	var warnings []string
	risk := models.RiskSafe

	refuse := func(reason string, level models.RiskLevel) models.TradeDecision {
		d := models.NotTradeable(in.Symbol, in.Now, reason, warnings...)
		d.RiskLevel = level
		d.Breakdown = bd
		d.StateKey = state.Key()
		d.Confidence = util.Clamp(bd.Base+bd.EdgeCase+bd.Safeguard, 0, 1)
		return d
	}

	// edge cases
	if ec := in.EdgeCase; ec != nil {
		warnings = append(warnings, ec.Warnings...)
		if ec.Blocked {
			bd.EdgeCaseMultiplier = 0
			return refuse(models.ReasonEdgeCaseBlocked, models.RiskBlocked)
		}
		bd.EdgeCase = ec.ConfidenceAdjustment
		bd.EdgeCaseMultiplier = util.Clamp(ec.PositionMultiplier, 0, 1)
		risk = models.RiskCaution
	}

	// parallel positions
	if opensPosition(action, in.Symbol, in.Portfolio) {
		if blocked := m.CheckParallelLimits(in.Symbol, in.Portfolio); blocked != nil {
			warnings = append(warnings, blocked.Warnings...)
			return refuse(models.ReasonMaxPositions, models.RiskBlocked)
		}
	}

	// safeguards
	sg, err := m.guards.CheckTradingAllowed(in.Symbol, in.Bars, in.Now, in.TimeframeDivergence)
	if err != nil {
		m.log.Error("safeguard check failed", logger.String("symbol", in.Symbol), logger.Error(err))
		return refuse(models.ReasonInsufficientData, models.RiskBlocked)
	}
	warnings = append(warnings, sg.Warnings...)
	if !sg.Allowed {
		bd.SafeguardMultiplier = 0
		return refuse(sg.Reason, models.RiskBlocked)
	}
	bd.Safeguard = sg.ConfidenceAdjustment
	bd.SafeguardMultiplier = sg.PositionSizeMultiplier
	if sg.RiskLevel.Severity() > risk.Severity() {
		risk = sg.RiskLevel
	}

	if m.cfg.AdaptiveConfidence && m.perf != nil {
		bd.SymbolBias = m.perf.Bias(in.Symbol)
	}
	bd.VolatilityBias = volatilityBias(m.cfg.VolatilityBias, in.State.Volatility)

	conf := util.Clamp(bd.Base+bd.EdgeCase+bd.Safeguard+bd.SymbolBias+bd.VolatilityBias, 0, 1)
	bd.Final = conf

	d := models.TradeDecision{
		Symbol:     in.Symbol,
		Timestamp:  in.Now,
		Action:     action,
		Confidence: conf,
		RiskLevel:  risk,
		Breakdown:  bd,
		Warnings:   warnings,
		StateKey:   state.Key(),
	}

	if action == models.ActionHold {
		d.Reason = models.ReasonHold
		return d
	}

	minConf := m.cfg.MinConfidence
	if in.MinConfidence > 0 {
		minConf = in.MinConfidence
	}
	if conf < minConf {
		d.Reason = models.ReasonLowConfidence
		return d
	}

	dir := direction(action, in.Portfolio.Position(in.Symbol).Sign())
	if dir == 0 {
		d.Reason = models.ReasonNoPosition
		return d
	}

	size := conf * m.cfg.MaxCapitalPerPosition
	if action == models.ActionIncreaseSize || action == models.ActionDecreaseSize {
		size /= 2
	}
	size *= bd.SafeguardMultiplier * bd.EdgeCaseMultiplier

	d.ShouldTrade = true
	d.Direction = dir
	d.SizeFraction = size
	d.Reason = models.ReasonTrade
	return d
}

// CheckParallelLimits blocks a new position once the cap of open symbols
// is reached. Symbols already held are never blocked.
func (m *DecisionMaker) CheckParallelLimits(symbol string, p models.PortfolioSnapshot) *models.TradeDecision {
	if m.cfg.MaxConcurrentPositions <= 0 || p.HasPosition(symbol) {
		return nil
	}
	if open := p.OpenPositions(); open >= m.cfg.MaxConcurrentPositions {
		d := models.NotTradeable(symbol, time.Time{}, models.ReasonMaxPositions,
			fmt.Sprintf("max concurrent positions reached: %d/%d", open, m.cfg.MaxConcurrentPositions))
		d.RiskLevel = models.RiskBlocked
		return &d
	}
	return nil
}

func opensPosition(a models.Action, symbol string, p models.PortfolioSnapshot) bool {
	if p.HasPosition(symbol) {
		return false
	}
	return a == models.ActionBuy || a == models.ActionSell
}

// direction maps an action to a trade side given the sign of the held
// position. Resizing a flat book has no side.
func direction(a models.Action, held int) int {
	switch a {
	case models.ActionBuy:
		return 1
	case models.ActionSell:
		return -1
	case models.ActionIncreaseSize:
		return held
	case models.ActionDecreaseSize:
		return -held
	}
	return 0
}

func volatilityBias(mode string, level models.VolatilityLevel) float64 {
	switch mode {
	case VolatilityBiasHigh:
		switch level {
		case models.VolatilityHigh:
			return volatilityBiasStep
		case models.VolatilityLow:
			return -volatilityBiasStep
		}
	case VolatilityBiasLow:
		switch level {
		case models.VolatilityLow:
			return volatilityBiasStep
		case models.VolatilityHigh:
			return -volatilityBiasStep
		}
	}
	return 0
}
