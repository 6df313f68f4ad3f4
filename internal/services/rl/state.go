package rl

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"TradeMind/internal/domain/models"
)

// StateVersion is part of every key so a layout change never collides with
// keys persisted by an older build.
const StateVersion = 1

const keyLength = 16

// State is the discretised market state. The field set is closed, so the
// key does not depend on how a caller assembled the value.
type State struct {
	PriceChange int8 // -3..3
	VolumeRatio int8 // 0..3
	Position    int8 // -3..3, signed by side
	Trend       models.Trend
	Volatility  models.VolatilityLevel
	SlowTrend   models.Trend

	HasTimeframes bool
	DominantTrend models.Trend
	Confluence    bool
	Divergence    bool

	HasPattern    bool
	PatternSignal models.Signal
}

// Canonical is the fixed-order encoding hashed by Key.
func (s State) Canonical() string {
	mtf := "-"
	if s.HasTimeframes {
		mtf = fmt.Sprintf("%s,%t,%t", orNeutral(s.DominantTrend), s.Confluence, s.Divergence)
	}
	pat := "-"
	if s.HasPattern {
		pat = string(s.PatternSignal)
	}
	return fmt.Sprintf("v%d|pc=%d|vr=%d|pos=%d|tr=%s|vol=%s|st=%s|mtf=%s|pat=%s",
		StateVersion, s.PriceChange, s.VolumeRatio, s.Position,
		orNeutral(s.Trend), s.Volatility, orNeutral(s.SlowTrend), mtf, pat)
}

// Key is the first 16 hex characters of sha256(Canonical()).
func (s State) Key() string {
	sum := sha256.Sum256([]byte(s.Canonical()))
	return hex.EncodeToString(sum[:])[:keyLength]
}

func orNeutral(t models.Trend) models.Trend {
	if t == "" {
		return models.TrendNeutral
	}
	return t
}

// Discretize buckets a feature map into a State.
func Discretize(ms models.MarketState) State {
	s := State{
		PriceChange: priceChangeBucket(ms.PriceChangePct),
		VolumeRatio: volumeBucket(ms.VolumeRatio),
		Position:    positionBucket(ms.PositionFraction),
		Trend:       orNeutral(ms.Trend),
		Volatility:  ms.Volatility,
		SlowTrend:   orNeutral(ms.SlowTrend),
	}
	if s.Volatility == "" {
		s.Volatility = models.VolatilityNormal
	}
	if ms.HasTimeframes {
		s.HasTimeframes = true
		s.DominantTrend = orNeutral(ms.DominantTrend)
		s.Confluence = ms.Confluence
		s.Divergence = ms.Divergence
	}
	if ms.HasPatterns && ms.PatternSignal != "" && ms.PatternSignal != models.SignalNeutral {
		s.HasPattern = true
		s.PatternSignal = ms.PatternSignal
	}
	return s
}

// priceChangeBucket takes a percent change.
func priceChangeBucket(pct float64) int8 {
	return signedBucket(pct, 0.25, 1, 2)
}

// positionBucket takes position value as a fraction of equity.
func positionBucket(frac float64) int8 {
	return signedBucket(frac, 0.01, 0.10, 0.25)
}

func signedBucket(x, t1, t2, t3 float64) int8 {
	if math.IsNaN(x) {
		return 0
	}
	a := math.Abs(x)
	var b int8
	switch {
	case a < t1:
		return 0
	case a < t2:
		b = 1
	case a < t3:
		b = 2
	default:
		b = 3
	}
	if x < 0 {
		return -b
	}
	return b
}

func volumeBucket(ratio float64) int8 {
	switch {
	case math.IsNaN(ratio) || ratio < 0.5:
		return 0
	case ratio < 1.5:
		return 1
	case ratio < 3:
		return 2
	default:
		return 3
	}
}
