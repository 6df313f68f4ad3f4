package patterns

import (
	"TradeMind/internal/domain/models"
)

func (d *Detector) singleBar(c models.Bar, ctx barContext) []models.DetectedPattern {
	rng := c.Range()
	if !rng.IsPositive() {
		return nil
	}
	body := c.Body()
	bodyRatio := ratio(body, rng)
	upper := ratio(c.UpperWick(), rng)
	lower := ratio(c.LowerWick(), rng)

	if bodyRatio < d.cfg.DojiBodyRatio {
		out := []models.DetectedPattern{{
			Type: models.PatternDoji, Signal: models.SignalNeutral, Confidence: 0.5, Bars: 1,
			Description: "doji: open and close nearly equal, indecision",
		}}
		// shadow shape adds a directional variant next to the plain doji
		switch {
		case lower >= 0.6 && upper <= 0.1:
			out = append(out, models.DetectedPattern{
				Type: models.PatternDragonflyDoji, Signal: models.SignalBullish, Confidence: 0.65, Bars: 1,
				Description: "dragonfly doji: long lower shadow, open and close near the high",
			})
		case upper >= 0.6 && lower <= 0.1:
			out = append(out, models.DetectedPattern{
				Type: models.PatternGravestoneDoji, Signal: models.SignalBearish, Confidence: 0.65, Bars: 1,
				Description: "gravestone doji: long upper shadow, open and close near the low",
			})
		}
		return out
	}

	var out []models.DetectedPattern
	longLower := c.LowerWick().GreaterThanOrEqual(body.Mul(dec(d.cfg.HammerWickRatio)))
	longUpper := c.UpperWick().GreaterThanOrEqual(body.Mul(dec(d.cfg.HammerWickRatio)))

	switch {
	case longLower && c.UpperWick().LessThanOrEqual(body):
		// hammer shape only counts after a decline
		if ctx.trend == models.TrendDown {
			out = append(out, models.DetectedPattern{
				Type: models.PatternHammer, Signal: models.SignalBullish, Bars: 1,
				Confidence:      confirmed(0.6, 0.25, ctx.volumeConfirmed),
				VolumeConfirmed: ctx.volumeConfirmed,
				Description:     "hammer: long lower shadow after a downtrend",
			})
		}
	case longUpper && c.LowerWick().LessThanOrEqual(body):
		if ctx.trend == models.TrendUp {
			out = append(out, models.DetectedPattern{
				Type: models.PatternShootingStar, Signal: models.SignalBearish, Bars: 1,
				Confidence:      confirmed(0.6, 0.25, ctx.volumeConfirmed),
				VolumeConfirmed: ctx.volumeConfirmed,
				Description:     "shooting star: long upper shadow after an uptrend",
			})
		}
	case bodyRatio < d.cfg.SpinningTopBodyRatio && c.UpperWick().GreaterThanOrEqual(body) && c.LowerWick().GreaterThanOrEqual(body):
		out = append(out, models.DetectedPattern{
			Type: models.PatternSpinningTop, Signal: models.SignalNeutral, Confidence: 0.4, Bars: 1,
			Description: "spinning top: small body with shadows on both sides",
		})
	}
	return out
}
