package models

type PatternType string

const (
	PatternDoji               PatternType = "doji"
	PatternDragonflyDoji      PatternType = "dragonfly_doji"
	PatternGravestoneDoji     PatternType = "gravestone_doji"
	PatternHammer             PatternType = "hammer"
	PatternShootingStar       PatternType = "shooting_star"
	PatternSpinningTop        PatternType = "spinning_top"
	PatternBullishEngulfing   PatternType = "bullish_engulfing"
	PatternBearishEngulfing   PatternType = "bearish_engulfing"
	PatternPiercingLine       PatternType = "piercing_line"
	PatternDarkCloudCover     PatternType = "dark_cloud_cover"
	PatternBullishHarami      PatternType = "bullish_harami"
	PatternBearishHarami      PatternType = "bearish_harami"
	PatternMorningStar        PatternType = "morning_star"
	PatternEveningStar        PatternType = "evening_star"
	PatternThreeWhiteSoldiers PatternType = "three_white_soldiers"
	PatternThreeBlackCrows    PatternType = "three_black_crows"
)

type Signal string

const (
	SignalBullish Signal = "bullish"
	SignalBearish Signal = "bearish"
	SignalNeutral Signal = "neutral"
)

// DetectedPattern is one recognised candlestick formation.
type DetectedPattern struct {
	Type            PatternType `json:"type"`
	Signal          Signal      `json:"signal"`
	Confidence      float64     `json:"confidence"`
	Description     string      `json:"description"`
	Bars            int         `json:"bars"`
	VolumeConfirmed bool        `json:"volume_confirmed"`
}
