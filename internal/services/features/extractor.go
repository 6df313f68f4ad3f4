package features

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"TradeMind/internal/domain/models"
	"TradeMind/internal/domain/service"
)

// MinBars is the history needed before a symbol is tradeable.
const MinBars = 20

// window is one trend/volatility horizon. Thresholds are fractions.
type window struct {
	size    int
	trendTh float64
	volLow  float64
	volHigh float64
}

var (
	fastWindow   = window{size: 6, trendTh: 0.003, volLow: 0.002, volHigh: 0.008}
	normalWindow = window{size: 10, trendTh: 0.005, volLow: 0.003, volHigh: 0.010}
	slowWindow   = window{size: 30, trendTh: 0.010, volLow: 0.004, volHigh: 0.012}
)

// Edge-case limits.
const (
	gapBlockPct     = 0.10
	gapWarnPct      = 0.03
	extremeRangeX   = 5.0
	flatBars        = 10
	gapPenalty      = -0.10
	gapMultiplier   = 0.5
	rangePenalty    = -0.10
	rangeMultiplier = 0.7
)

const (
	EdgeZeroVolume   = "zero_volume"
	EdgeFlatMarket   = "flat_market"
	EdgePriceGap     = "price_gap"
	EdgeExtremeRange = "extreme_range"
	EdgeAdjusted     = "adjusted"
)

type Option func(*Extractor)

// WithTimeframes merges cross-timeframe features into every state.
func WithTimeframes(a service.TimeframeAnalyzer) Option {
	return func(e *Extractor) { e.timeframes = a }
}

// WithPatterns merges the strongest candlestick signal into every state.
func WithPatterns(p service.PatternRecognizer) Option {
	return func(e *Extractor) { e.patterns = p }
}

// Extractor turns a bar history and the portfolio into a MarketState.
type Extractor struct {
	timeframes service.TimeframeAnalyzer
	patterns   service.PatternRecognizer
}

func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ExtractState computes the feature map for the newest bar. Fewer than
// MinBars bars yield a non-tradeable state.
func (e *Extractor) ExtractState(symbol string, bars []models.Bar, portfolio models.PortfolioSnapshot) models.MarketState {
	ms := models.MarketState{Symbol: symbol}
	if len(bars) > 0 {
		ms.Timestamp = bars[len(bars)-1].Timestamp
	}
	if len(bars) < MinBars {
		ms.Reason = models.ReasonInsufficientData
		return ms
	}

	last := bars[len(bars)-1]
	closes := models.Closes(bars)
	returns := SimpleReturns(closes)

	ms.Tradeable = true
	ms.LastPrice = last.Close
	ms.PriceChangePct = pctChange(closes, fastWindow.size) * 100
	ms.VolumeRatio = volumeRatio(bars, MinBars)
	ms.PositionFraction = positionFraction(symbol, last.Close, portfolio)

	ms.FastTrend, ms.FastVolatility = classify(closes, returns, fastWindow)
	ms.Trend, ms.Volatility = classify(closes, returns, normalWindow)
	ms.SlowTrend, ms.SlowVolatility = classify(closes, returns, slowWindow)
	ms.RealizedVolatility = RealizedVolatility(returns, min(normalWindow.size, len(returns)))

	if e.timeframes != nil {
		if a := e.timeframes.AnalyzeCrossTimeframe(symbol); a.Available {
			ms.HasTimeframes = true
			ms.DominantTrend = a.DominantTrend
			ms.Confluence = a.Confluence
			ms.Divergence = a.Divergence
			ms.TimeframeAdjustment = a.ConfidenceAdjustment
		}
	}

	if e.patterns != nil {
		if found := e.patterns.DetectPatterns(bars); len(found) > 0 {
			ms.HasPatterns = true
			ms.Patterns = found
			ms.PatternSignal, ms.PatternConfidence = e.patterns.StrongestSignal(found)
			for _, p := range found {
				switch p.Signal {
				case models.SignalBullish:
					ms.PatternBullish = true
				case models.SignalBearish:
					ms.PatternBearish = true
				}
			}
		}
	}
	return ms
}

// CheckEdgeCases screens the newest bar for conditions where the model's
// view should not be trusted as-is. It returns nil when nothing applies.
func (e *Extractor) CheckEdgeCases(symbol string, bars []models.Bar, cross *models.CrossTimeframeAnalysis) *models.EdgeCaseResult {
	if len(bars) == 0 {
		return nil
	}
	last := bars[len(bars)-1]

	if last.Volume == 0 {
		return &models.EdgeCaseResult{Blocked: true, Reason: EdgeZeroVolume, PositionMultiplier: 0,
			Warnings: []string{symbol + ": no volume on latest bar"}}
	}
	if isFlat(bars, flatBars) {
		return &models.EdgeCaseResult{Blocked: true, Reason: EdgeFlatMarket, PositionMultiplier: 0,
			Warnings: []string{symbol + ": price unchanged for " + strconv.Itoa(flatBars) + " bars"}}
	}

	res := &models.EdgeCaseResult{PositionMultiplier: 1}
	hit := false

	if len(bars) >= 2 {
		prev := bars[len(bars)-2]
		gap := ratioF(last.Open.Sub(prev.Close).Abs(), prev.Close)
		switch {
		case gap >= gapBlockPct:
			return &models.EdgeCaseResult{Blocked: true, Reason: EdgePriceGap, PositionMultiplier: 0,
				Warnings: []string{symbol + ": opening gap too large"}}
		case gap >= gapWarnPct:
			hit = true
			res.Reason = EdgePriceGap
			res.ConfidenceAdjustment += gapPenalty
			res.PositionMultiplier *= gapMultiplier
			res.Warnings = append(res.Warnings, symbol+": opening gap")
		}
	}

	if len(bars) >= MinBars {
		prior := bars[len(bars)-MinBars : len(bars)-1]
		avg := decimal.Zero
		for _, b := range prior {
			avg = avg.Add(b.Range())
		}
		avg = avg.Div(decimal.NewFromInt(int64(len(prior))))
		if avg.IsPositive() && ratioF(last.Range(), avg) >= extremeRangeX {
			hit = true
			if res.Reason == "" {
				res.Reason = EdgeExtremeRange
			}
			res.ConfidenceAdjustment += rangePenalty
			res.PositionMultiplier *= rangeMultiplier
			res.Warnings = append(res.Warnings, symbol+": extreme bar range")
		}
	}

	if cross != nil && cross.Available && cross.ConfidenceAdjustment != 0 {
		hit = true
		if res.Reason == "" {
			res.Reason = EdgeAdjusted
		}
		res.ConfidenceAdjustment += cross.ConfidenceAdjustment
	}

	if !hit {
		return nil
	}
	return res
}

func classify(closes, returns []float64, w window) (models.Trend, models.VolatilityLevel) {
	n := min(w.size, len(closes))
	trend := models.TrendNeutral
	if sma := SMA(closes, n); sma > 0 {
		switch d := (closes[len(closes)-1] - sma) / sma; {
		case d > w.trendTh:
			trend = models.TrendUp
		case d < -w.trendTh:
			trend = models.TrendDown
		}
	}

	vol := models.VolatilityNormal
	rn := min(w.size, len(returns))
	if rn >= 2 {
		switch sd := StdDev(returns[len(returns)-rn:]); {
		case sd < w.volLow:
			vol = models.VolatilityLow
		case sd > w.volHigh:
			vol = models.VolatilityHigh
		}
	}
	return trend, vol
}

// pctChange is the fractional change over the last n bars.
func pctChange(closes []float64, n int) float64 {
	if len(closes) <= n {
		n = len(closes) - 1
	}
	base := closes[len(closes)-1-n]
	if base == 0 {
		return 0
	}
	return (closes[len(closes)-1] - base) / base
}

// volumeRatio is the last volume over the mean of the preceding bars in a
// window of n.
func volumeRatio(bars []models.Bar, n int) float64 {
	vols := models.Volumes(bars)
	if len(vols) > n {
		vols = vols[len(vols)-n:]
	}
	avg := Mean(vols[:len(vols)-1])
	if avg == 0 {
		return 0
	}
	return vols[len(vols)-1] / avg
}

func positionFraction(symbol string, last decimal.Decimal, p models.PortfolioSnapshot) float64 {
	if !p.Equity.IsPositive() {
		return 0
	}
	qty := p.Position(symbol)
	if qty.IsZero() {
		return 0
	}
	price, ok := p.LastPrices[symbol]
	if !ok || !price.IsPositive() {
		price = last
	}
	return qty.Mul(price).Div(p.Equity).InexactFloat64()
}

func isFlat(bars []models.Bar, n int) bool {
	if len(bars) < n {
		return false
	}
	tail := bars[len(bars)-n:]
	for _, b := range tail {
		if !b.Close.Equal(tail[0].Close) || !b.Range().IsZero() {
			return false
		}
	}
	return true
}

func ratioF(num, den decimal.Decimal) float64 {
	if den.IsZero() {
		return math.Inf(1)
	}
	return num.Div(den).InexactFloat64()
}
