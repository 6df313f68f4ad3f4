package models

import "time"

type RiskLevel string

const (
	RiskSafe    RiskLevel = "safe"
	RiskCaution RiskLevel = "caution"
	RiskHigh    RiskLevel = "high_risk"
	RiskBlocked RiskLevel = "blocked"
)

// Severity orders risk levels so checks can only escalate.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskCaution:
		return 1
	case RiskHigh:
		return 2
	case RiskBlocked:
		return 3
	default:
		return 0
	}
}

// SafeguardResult is the verdict of the rule-based safeguards.
type SafeguardResult struct {
	Allowed                bool      `json:"allowed"`
	RiskLevel              RiskLevel `json:"risk_level"`
	ConfidenceAdjustment   float64   `json:"confidence_adjustment"`    // [-1, 1]
	PositionSizeMultiplier float64   `json:"position_size_multiplier"` // [0, 1]
	Warnings               []string  `json:"warnings,omitempty"`
	Reason                 string    `json:"reason"`
}

// EdgeCaseResult is a pre-trade filter outcome. A nil result means no edge case.
type EdgeCaseResult struct {
	Blocked              bool     `json:"blocked"`
	Reason               string   `json:"reason"`
	ConfidenceAdjustment float64  `json:"confidence_adjustment"`
	PositionMultiplier   float64  `json:"position_multiplier"`
	Warnings             []string `json:"warnings,omitempty"`
}

// Decision reason codes.
const (
	ReasonTrade            = "trade"
	ReasonHold             = "hold"
	ReasonInsufficientData = "insufficient_data"
	ReasonEdgeCaseBlocked  = "edge_case_blocked"
	ReasonLowConfidence    = "low_confidence"
	ReasonMaxPositions     = "max_concurrent_positions"
	ReasonNoPosition       = "no_open_position"
)

// ConfidenceBreakdown records every adjustment applied to the base confidence.
type ConfidenceBreakdown struct {
	Base                float64 `json:"base"`
	EdgeCase            float64 `json:"edge_case"`
	Safeguard           float64 `json:"safeguard"`
	SymbolBias          float64 `json:"symbol_bias"`
	VolatilityBias      float64 `json:"volatility_bias"`
	Final               float64 `json:"final"`
	EdgeCaseMultiplier  float64 `json:"edge_case_multiplier"`
	SafeguardMultiplier float64 `json:"safeguard_multiplier"`
}

// TradeDecision is produced fresh for every evaluation.
type TradeDecision struct {
	Symbol       string              `json:"symbol"`
	Timestamp    time.Time           `json:"timestamp"`
	ShouldTrade  bool                `json:"should_trade"`
	Action       Action              `json:"action"`
	Direction    int                 `json:"direction"` // +1 buy, -1 sell, 0 none
	SizeFraction float64             `json:"size_fraction"`
	Confidence   float64             `json:"confidence"`
	Reason       string              `json:"reason"`
	RiskLevel    RiskLevel           `json:"risk_level,omitempty"`
	Breakdown    ConfidenceBreakdown `json:"breakdown"`
	Warnings     []string            `json:"warnings,omitempty"`
	StateKey     string              `json:"state_key,omitempty"`
}

// NotTradeable builds a refusal decision.
func NotTradeable(symbol string, ts time.Time, reason string, warnings ...string) TradeDecision {
	return TradeDecision{
		Symbol:    symbol,
		Timestamp: ts,
		Action:    ActionHold,
		Reason:    reason,
		Warnings:  warnings,
	}
}
