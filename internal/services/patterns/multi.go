package patterns

import (
	"TradeMind/internal/domain/models"

	"github.com/shopspring/decimal"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func (d *Detector) twoBar(p, c models.Bar, ctx barContext) []models.DetectedPattern {
	var out []models.DetectedPattern

	switch {
	case p.IsBearish() && c.IsBullish():
		switch {
		case c.Open.LessThanOrEqual(p.Close) && c.Close.GreaterThanOrEqual(p.Open) && c.Body().GreaterThan(p.Body()):
			out = append(out, models.DetectedPattern{
				Type: models.PatternBullishEngulfing, Signal: models.SignalBullish, Bars: 2,
				Confidence:      confirmed(0.7, 0.15, ctx.volumeConfirmed),
				VolumeConfirmed: ctx.volumeConfirmed,
				Description:     "bullish engulfing: up bar body covers the prior down bar body",
			})
		case c.Open.LessThan(p.Close) && c.Close.GreaterThan(p.Midpoint()) && c.Close.LessThan(p.Open):
			out = append(out, models.DetectedPattern{
				Type: models.PatternPiercingLine, Signal: models.SignalBullish, Confidence: 0.65, Bars: 2,
				Description: "piercing line: opens below prior close, closes above its midpoint",
			})
		case c.Open.GreaterThanOrEqual(p.Close) && c.Close.LessThanOrEqual(p.Open) && c.Body().LessThan(p.Body()):
			out = append(out, models.DetectedPattern{
				Type: models.PatternBullishHarami, Signal: models.SignalBullish, Confidence: 0.55, Bars: 2,
				Description: "bullish harami: small up bar inside the prior down bar body",
			})
		}
	case p.IsBullish() && c.IsBearish():
		switch {
		case c.Open.GreaterThanOrEqual(p.Close) && c.Close.LessThanOrEqual(p.Open) && c.Body().GreaterThan(p.Body()):
			out = append(out, models.DetectedPattern{
				Type: models.PatternBearishEngulfing, Signal: models.SignalBearish, Bars: 2,
				Confidence:      confirmed(0.7, 0.15, ctx.volumeConfirmed),
				VolumeConfirmed: ctx.volumeConfirmed,
				Description:     "bearish engulfing: down bar body covers the prior up bar body",
			})
		case c.Open.GreaterThan(p.Close) && c.Close.LessThan(p.Midpoint()) && c.Close.GreaterThan(p.Open):
			out = append(out, models.DetectedPattern{
				Type: models.PatternDarkCloudCover, Signal: models.SignalBearish, Confidence: 0.65, Bars: 2,
				Description: "dark cloud cover: opens above prior close, closes below its midpoint",
			})
		case c.Open.LessThanOrEqual(p.Close) && c.Close.GreaterThanOrEqual(p.Open) && c.Body().LessThan(p.Body()):
			out = append(out, models.DetectedPattern{
				Type: models.PatternBearishHarami, Signal: models.SignalBearish, Confidence: 0.55, Bars: 2,
				Description: "bearish harami: small down bar inside the prior up bar body",
			})
		}
	}
	return out
}

func (d *Detector) threeBar(a, b, c models.Bar, ctx barContext) []models.DetectedPattern {
	var out []models.DetectedPattern

	switch {
	case isStar(a, b, c, true):
		out = append(out, models.DetectedPattern{
			Type: models.PatternMorningStar, Signal: models.SignalBullish, Bars: 3,
			Confidence:      confirmed(0.75, 0.1, ctx.volumeConfirmed),
			VolumeConfirmed: ctx.volumeConfirmed,
			Description:     "morning star: long down bar, small body, long up bar closing past the first midpoint",
		})
	case isStar(a, b, c, false):
		out = append(out, models.DetectedPattern{
			Type: models.PatternEveningStar, Signal: models.SignalBearish, Bars: 3,
			Confidence:      confirmed(0.75, 0.1, ctx.volumeConfirmed),
			VolumeConfirmed: ctx.volumeConfirmed,
			Description:     "evening star: long up bar, small body, long down bar closing past the first midpoint",
		})
	case isMarch(a, b, c, true):
		out = append(out, models.DetectedPattern{
			Type: models.PatternThreeWhiteSoldiers, Signal: models.SignalBullish, Bars: 3,
			Confidence:      confirmed(0.8, 0.1, ctx.volumeConfirmed),
			VolumeConfirmed: ctx.volumeConfirmed,
			Description:     "three white soldiers: three rising up bars, each opening inside the prior body",
		})
	case isMarch(a, b, c, false):
		out = append(out, models.DetectedPattern{
			Type: models.PatternThreeBlackCrows, Signal: models.SignalBearish, Bars: 3,
			Confidence:      confirmed(0.8, 0.1, ctx.volumeConfirmed),
			VolumeConfirmed: ctx.volumeConfirmed,
			Description:     "three black crows: three falling down bars, each opening inside the prior body",
		})
	}
	return out
}

// longBody reports a real body of at least 60% of the range.
func longBody(b models.Bar) bool {
	return b.Range().IsPositive() && ratio(b.Body(), b.Range()) >= 0.6
}

// isStar checks a morning (bullish=true) or evening star.
func isStar(a, b, c models.Bar, bullish bool) bool {
	if !longBody(a) || !longBody(c) {
		return false
	}
	if b.Body().GreaterThan(a.Body().Mul(dec(0.4))) {
		return false
	}
	if bullish {
		return a.IsBearish() && c.IsBullish() && c.Close.GreaterThan(a.Midpoint())
	}
	return a.IsBullish() && c.IsBearish() && c.Close.LessThan(a.Midpoint())
}

// isMarch checks three soldiers (bullish=true) or three crows: same colour,
// monotonic closes, each open within the prior body.
func isMarch(a, b, c models.Bar, bullish bool) bool {
	for _, bar := range []models.Bar{a, b, c} {
		if bullish && !bar.IsBullish() || !bullish && !bar.IsBearish() {
			return false
		}
		if ratio(bar.Body(), bar.Range()) < 0.5 {
			return false
		}
	}
	if bullish {
		return b.Close.GreaterThan(a.Close) && c.Close.GreaterThan(b.Close) &&
			within(b.Open, a.Open, a.Close) && within(c.Open, b.Open, b.Close)
	}
	return b.Close.LessThan(a.Close) && c.Close.LessThan(b.Close) &&
		within(b.Open, a.Close, a.Open) && within(c.Open, b.Close, b.Open)
}

func within(v, lo, hi decimal.Decimal) bool {
	return v.GreaterThanOrEqual(lo) && v.LessThanOrEqual(hi)
}
