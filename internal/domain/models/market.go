package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketState is the feature map for one (symbol, evaluation tick). When
// Tradeable is false only Symbol, Timestamp and Reason are meaningful.
type MarketState struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Tradeable bool      `json:"tradeable"`
	Reason    string    `json:"reason,omitempty"`

	LastPrice        decimal.Decimal `json:"last_price"`
	PriceChangePct   float64         `json:"price_change_pct"`
	VolumeRatio      float64         `json:"volume_ratio"`
	PositionFraction float64         `json:"position_fraction"` // signed position value / equity

	FastTrend      Trend           `json:"fast_trend"`
	FastVolatility VolatilityLevel `json:"fast_volatility"`
	Trend          Trend           `json:"trend"`
	Volatility     VolatilityLevel `json:"volatility"`
	SlowTrend      Trend           `json:"slow_trend"`
	SlowVolatility VolatilityLevel `json:"slow_volatility"`

	// RealizedVolatility is the std of returns over the normal window.
	RealizedVolatility float64 `json:"realized_volatility"`

	HasTimeframes       bool    `json:"has_timeframes"`
	DominantTrend       Trend   `json:"dominant_trend,omitempty"`
	Confluence          bool    `json:"confluence"`
	Divergence          bool    `json:"divergence"`
	TimeframeAdjustment float64 `json:"timeframe_adjustment"`

	HasPatterns       bool              `json:"has_patterns"`
	PatternSignal     Signal            `json:"pattern_signal,omitempty"`
	PatternConfidence float64           `json:"pattern_confidence"`
	PatternBullish    bool              `json:"pattern_bullish"`
	PatternBearish    bool              `json:"pattern_bearish"`
	Patterns          []DetectedPattern `json:"patterns,omitempty"`
}

// PortfolioSnapshot is the ledger's read-only view handed to the engine.
type PortfolioSnapshot struct {
	Equity     decimal.Decimal            `json:"equity"`
	LastPrices map[string]decimal.Decimal `json:"last_prices"`
	Positions  map[string]decimal.Decimal `json:"positions"`
}

// NegligiblePosition is the magnitude below which a position counts as flat.
var NegligiblePosition = decimal.RequireFromString("0.00000001")

// Position returns the signed quantity held for symbol.
func (p PortfolioSnapshot) Position(symbol string) decimal.Decimal {
	return p.Positions[symbol]
}

// PositionFraction is the signed market value of symbol over equity.
func (p PortfolioSnapshot) PositionFraction(symbol string) float64 {
	if !p.Equity.IsPositive() {
		return 0
	}
	qty := p.Positions[symbol]
	price, ok := p.LastPrices[symbol]
	if !ok || qty.IsZero() {
		return 0
	}
	return qty.Mul(price).Div(p.Equity).InexactFloat64()
}

// OpenPositions counts symbols holding a non-negligible position.
func (p PortfolioSnapshot) OpenPositions() int {
	n := 0
	for _, qty := range p.Positions {
		if qty.Abs().GreaterThanOrEqual(NegligiblePosition) {
			n++
		}
	}
	return n
}

// HasPosition reports whether symbol holds a non-negligible position.
func (p PortfolioSnapshot) HasPosition(symbol string) bool {
	return p.Positions[symbol].Abs().GreaterThanOrEqual(NegligiblePosition)
}
