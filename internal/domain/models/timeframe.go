package models

import (
	"fmt"
	"strconv"
	"time"
)

// Timeframe is a bar resolution such as "1m", "15m", "1h" or "1d".
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF1d  Timeframe = "1d"
)

// Duration returns the period covered by one bar.
func (tf Timeframe) Duration() (time.Duration, error) {
	s := string(tf)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid timeframe %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", s)
	}
	switch s[len(s)-1] {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid timeframe %q", s)
}

// ParseTimeframe validates a raw timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, err := tf.Duration(); err != nil {
		return "", err
	}
	return tf, nil
}

type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "low"
	VolatilityNormal VolatilityLevel = "normal"
	VolatilityHigh   VolatilityLevel = "high"
)

// TimeframeState is the derived reading of one (symbol, timeframe) buffer.
type TimeframeState struct {
	Timeframe   Timeframe `json:"timeframe"`
	Trend       Trend     `json:"trend"`
	Momentum    float64   `json:"momentum"`   // [-1, 1]
	Volatility  float64   `json:"volatility"` // [0, 1]
	VolumeRatio float64   `json:"volume_ratio"`
	LastBar     Bar       `json:"last_bar"`
	BarCount    int       `json:"bar_count"`
}

// CrossTimeframeAnalysis correlates the live timeframes of one symbol.
// Available is false when fewer than two timeframes have state.
type CrossTimeframeAnalysis struct {
	Symbol               string           `json:"symbol"`
	Available            bool             `json:"available"`
	Reason               string           `json:"reason,omitempty"`
	Timeframes           []TimeframeState `json:"timeframes,omitempty"`
	Confluence           bool             `json:"confluence"`
	FastLeadsMedium      bool             `json:"fast_leads_medium"`
	MediumLeadsSlow      bool             `json:"medium_leads_slow"`
	Divergence           bool             `json:"divergence"`
	SyncViolation        bool             `json:"sync_violation"`
	ConfidenceAdjustment float64          `json:"confidence_adjustment"`
	DominantTrend        Trend            `json:"dominant_trend"`
	WeightedTrend        float64          `json:"weighted_trend"`
	MaxDrift             time.Duration    `json:"max_drift"`
}
