package safeguards

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"TradeMind/internal/domain/models"
	"TradeMind/internal/services/features"
	"TradeMind/pkg/logger"
	"TradeMind/pkg/util"
)

// Reason codes carried in SafeguardResult.Reason.
const (
	ReasonOK                = "ok"
	ReasonOvertradingHourly = "overtrading_hourly_limit"
	ReasonOvertradingDaily  = "overtrading_daily_limit"
	ReasonEndOfDay          = "end_of_day"
)

const (
	chaseLookback      = 5
	newsVolumeLookback = 19
	newsRangeLookback  = 9
	historyRetention   = 25 * time.Hour

	chasePenalty      = -0.15
	chaseMultiplier   = 0.5
	newsPenalty       = -0.20
	newsMultiplier    = 0.5
	eodWarnPenalty    = -0.05
	divergencePenalty = -0.10
	divergenceMult    = 0.7

	hourlyWarnFraction = 0.8
	dailyWarnFraction  = 0.9
)

// Config holds the safeguard thresholds.
type Config struct {
	MaxTradesPerHour     int
	MaxTradesPerDay      int
	ChaseThresholdPct    float64 // percent deviation from the trailing average
	NewsVolumeMultiplier float64
	NewsRangeMultiplier  float64
	EODBlockMinutes      int
	EODWarnMinutes       int
	SessionClose         time.Duration // offset from local midnight
	Location             *time.Location
}

// DefaultConfig returns US equity session defaults.
func DefaultConfig() Config {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return Config{
		MaxTradesPerHour:     10,
		MaxTradesPerDay:      50,
		ChaseThresholdPct:    5,
		NewsVolumeMultiplier: 5,
		NewsRangeMultiplier:  2,
		EODBlockMinutes:      15,
		EODWarnMinutes:       60,
		SessionClose:         16 * time.Hour,
		Location:             loc,
	}
}

// Safeguards is a rule engine over recent trade cadence and bar behaviour.
// Trade caps are account-wide.
type Safeguards struct {
	cfg Config
	log *logger.Logger

	mu     sync.Mutex
	trades []trade // ascending by time
}

type trade struct {
	at     time.Time
	symbol string
}

func New(cfg Config, log *logger.Logger) *Safeguards {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Safeguards{cfg: cfg, log: log}
}

// RecordTrade registers an executed trade. The timestamp must be set.
func (s *Safeguards) RecordTrade(ts time.Time, symbol string) error {
	if ts.IsZero() {
		return fmt.Errorf("record trade %s: %w: zero time", symbol, util.ErrInvalidTimestamp)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := trade{at: ts.UTC(), symbol: symbol}
	i := len(s.trades)
	for i > 0 && s.trades[i-1].at.After(t.at) {
		i--
	}
	s.trades = append(s.trades, trade{})
	copy(s.trades[i+1:], s.trades[i:])
	s.trades[i] = t
	s.pruneLocked(s.trades[len(s.trades)-1].at)
	return nil
}

// RecordTradeRaw parses a wire timestamp and records it. Timestamps without
// a zone offset are rejected, never assumed to be UTC.
func (s *Safeguards) RecordTradeRaw(raw, symbol string) error {
	ts, err := util.ParseAwareTime(raw)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", symbol, err)
	}
	return s.RecordTrade(ts, symbol)
}

// Counts returns trades in the trailing hour and in the session day of now.
func (s *Safeguards) Counts(now time.Time) (hour, day int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countsLocked(now)
}

func (s *Safeguards) countsLocked(now time.Time) (hour, day int) {
	hourAgo := now.Add(-time.Hour)
	local := now.In(s.cfg.Location)
	y, m, d := local.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, s.cfg.Location)

	for _, t := range s.trades {
		if t.at.After(now) {
			continue
		}
		if t.at.After(hourAgo) {
			hour++
		}
		if !t.at.Before(dayStart) {
			day++
		}
	}
	return hour, day
}

func (s *Safeguards) pruneLocked(now time.Time) {
	cutoff := now.Add(-historyRetention)
	i := 0
	for i < len(s.trades) && s.trades[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.trades = append(s.trades[:0], s.trades[i:]...)
	}
}

// verdict accumulates the non-blocking adjustments.
type verdict struct {
	delta    float64
	mult     float64
	risk     models.RiskLevel
	warnings []string
}

func (v *verdict) apply(delta, mult float64, risk models.RiskLevel, warning string) {
	v.delta += delta
	v.mult *= mult
	if risk.Severity() > v.risk.Severity() {
		v.risk = risk
	}
	if warning != "" {
		v.warnings = append(v.warnings, warning)
	}
}

func blocked(reason string, warnings []string, msg string) models.SafeguardResult {
	return models.SafeguardResult{
		Allowed:                false,
		RiskLevel:              models.RiskBlocked,
		ConfidenceAdjustment:   -1,
		PositionSizeMultiplier: 0,
		Warnings:               append(warnings, msg),
		Reason:                 reason,
	}
}

// CheckTradingAllowed runs the ordered checks: overtrading, chase, news
// event, end of day and timeframe divergence.
func (s *Safeguards) CheckTradingAllowed(symbol string, bars []models.Bar, now time.Time, timeframeDivergence bool) (models.SafeguardResult, error) {
	if now.IsZero() {
		return models.SafeguardResult{}, fmt.Errorf("check %s: %w: zero time", symbol, util.ErrInvalidTimestamp)
	}
	v := verdict{mult: 1, risk: models.RiskSafe}

	// 1. overtrading
	s.mu.Lock()
	s.pruneLocked(now)
	hour, day := s.countsLocked(now)
	s.mu.Unlock()

	if hour >= s.cfg.MaxTradesPerHour {
		msg := fmt.Sprintf("overtrading: %d trades in the last hour (cap %d)", hour, s.cfg.MaxTradesPerHour)
		s.log.Warn("safeguard block", logger.String("symbol", symbol), logger.String("reason", msg))
		return blocked(ReasonOvertradingHourly, v.warnings, msg), nil
	}
	if day >= s.cfg.MaxTradesPerDay {
		msg := fmt.Sprintf("overtrading: %d trades today (cap %d)", day, s.cfg.MaxTradesPerDay)
		s.log.Warn("safeguard block", logger.String("symbol", symbol), logger.String("reason", msg))
		return blocked(ReasonOvertradingDaily, v.warnings, msg), nil
	}
	if float64(hour) >= hourlyWarnFraction*float64(s.cfg.MaxTradesPerHour) {
		v.apply(0, 1, models.RiskCaution, fmt.Sprintf("approaching hourly trade cap: %d/%d", hour, s.cfg.MaxTradesPerHour))
	}
	if float64(day) >= dailyWarnFraction*float64(s.cfg.MaxTradesPerDay) {
		v.apply(0, 1, models.RiskCaution, fmt.Sprintf("approaching daily trade cap: %d/%d", day, s.cfg.MaxTradesPerDay))
	}

	// 2. chase
	if dev, ok := chaseDeviation(bars); ok && math.Abs(dev) > s.cfg.ChaseThresholdPct {
		direction := "spiking"
		if dev < 0 {
			direction = "plunging"
		}
		v.apply(chasePenalty, chaseMultiplier, models.RiskCaution,
			fmt.Sprintf("price %s %.2f%% away from the %d-bar average, avoid chasing", direction, math.Abs(dev), chaseLookback))
	}

	// 3. news event
	if volX, rangeX, ok := newsRatios(bars); ok && volX >= s.cfg.NewsVolumeMultiplier && rangeX >= s.cfg.NewsRangeMultiplier {
		v.apply(newsPenalty, newsMultiplier, models.RiskHigh,
			fmt.Sprintf("possible news event: volume %.1fx and range %.1fx normal", volX, rangeX))
	}

	// 4. end of day
	untilClose := s.untilClose(now)
	switch {
	case untilClose >= 0 && untilClose <= time.Duration(s.cfg.EODBlockMinutes)*time.Minute:
		msg := fmt.Sprintf("end of day: %d minutes to session close", int(untilClose.Minutes()))
		return blocked(ReasonEndOfDay, v.warnings, msg), nil
	case untilClose >= 0 && untilClose <= time.Duration(s.cfg.EODWarnMinutes)*time.Minute:
		v.apply(eodWarnPenalty, 1, models.RiskCaution,
			fmt.Sprintf("late session: %d minutes to close", int(untilClose.Minutes())))
	}

	// 5. timeframe divergence
	if timeframeDivergence {
		v.apply(divergencePenalty, divergenceMult, models.RiskCaution, "timeframes disagree on trend")
	}

	return models.SafeguardResult{
		Allowed:                true,
		RiskLevel:              v.risk,
		ConfidenceAdjustment:   util.Clamp(v.delta, -1, 1),
		PositionSizeMultiplier: util.Clamp(v.mult, 0, 1),
		Warnings:               v.warnings,
		Reason:                 ReasonOK,
	}, nil
}

// untilClose is the time left to today's session close; negative after it.
func (s *Safeguards) untilClose(now time.Time) time.Duration {
	local := now.In(s.cfg.Location)
	y, m, d := local.Date()
	closeAt := time.Date(y, m, d, 0, 0, 0, 0, s.cfg.Location).Add(s.cfg.SessionClose)
	return closeAt.Sub(local)
}

// chaseDeviation is the latest close's percent deviation from the average of
// the preceding chaseLookback closes.
func chaseDeviation(bars []models.Bar) (float64, bool) {
	if len(bars) < chaseLookback+1 {
		return 0, false
	}
	prior := models.Closes(bars[len(bars)-1-chaseLookback : len(bars)-1])
	avg := features.Mean(prior)
	if avg <= 0 {
		return 0, false
	}
	return (bars[len(bars)-1].CloseFloat() - avg) / avg * 100, true
}

// newsRatios compares the latest bar's volume and range to trailing averages.
func newsRatios(bars []models.Bar) (volX, rangeX float64, ok bool) {
	n := len(bars)
	if n < newsRangeLookback+1 {
		return 0, 0, false
	}
	last := bars[n-1]

	volStart := max(0, n-1-newsVolumeLookback)
	avgVol := features.Mean(models.Volumes(bars[volStart : n-1]))

	ranges := make([]float64, 0, newsRangeLookback)
	for _, b := range bars[n-1-newsRangeLookback : n-1] {
		ranges = append(ranges, b.Range().InexactFloat64())
	}
	avgRange := features.Mean(ranges)
	if avgVol <= 0 || avgRange <= 0 {
		return 0, 0, false
	}
	return float64(last.Volume) / avgVol, last.Range().InexactFloat64() / avgRange, true
}

// ErrNoLocation is returned by ParseSessionClose for unknown zones.
var ErrNoLocation = errors.New("unknown session timezone")

// ParseSessionClose converts "HH:MM" and an IANA zone into config fields.
func ParseSessionClose(hhmm, zone string) (time.Duration, *time.Location, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, nil, fmt.Errorf("session close %q: %w", hhmm, err)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return 0, nil, fmt.Errorf("%w %q: %v", ErrNoLocation, zone, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, loc, nil
}
