package timeframe

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"TradeMind/internal/domain/models"
	"TradeMind/internal/services/features"
	"TradeMind/pkg/logger"
	"TradeMind/pkg/util"
)

var (
	ErrOutOfOrder = errors.New("bar is not newer than the last accepted bar")
	ErrSymbol     = errors.New("bar symbol does not match")
)

const (
	minStateBars    = 5
	stateWindow     = 20
	fastSMA         = 5
	trendDeadband   = 0.01
	volReference    = 0.05
	maxAdjustment   = 0.30
	syncDriftFactor = 2

	adjConfluence    = 0.25
	adjCascading     = 0.15
	adjPartial       = 0.10
	adjDivergence    = -0.20
	adjSyncViolation = -0.25

	dominantCutoff = 0.3
)

// Manager owns bounded per-symbol, per-timeframe bar buffers and the derived
// TimeframeState of each. Every symbol has its own lock; the outer map lock
// is only held to find or create a symbol's book.
type Manager struct {
	mu      sync.RWMutex
	books   map[string]*book
	maxBars int
	log     *logger.Logger
}

type book struct {
	mu     sync.Mutex
	series map[models.Timeframe]*series
}

type series struct {
	period time.Duration
	bars   []models.Bar
	state  *models.TimeframeState // nil until minStateBars are held
}

type Option func(*Manager)

func WithMaxBars(n int) Option {
	return func(m *Manager) {
		if n >= stateWindow {
			m.maxBars = n
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		books:   make(map[string]*book),
		maxBars: 500,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) lookup(symbol string, create bool) *book {
	m.mu.RLock()
	b := m.books[symbol]
	m.mu.RUnlock()
	if b != nil || !create {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b = m.books[symbol]; b == nil {
		b = &book{series: make(map[models.Timeframe]*series)}
		m.books[symbol] = b
	}
	return b
}

// AddBar appends bar to the (symbol, tf) buffer and recomputes its state.
// Append, trim, derive and store happen under the symbol lock.
func (m *Manager) AddBar(symbol string, tf models.Timeframe, bar models.Bar) error {
	period, err := tf.Duration()
	if err != nil {
		return err
	}
	if bar.Symbol != symbol {
		return fmt.Errorf("%w: %q vs %q", ErrSymbol, bar.Symbol, symbol)
	}
	if err := bar.Validate(); err != nil {
		return err
	}

	b := m.lookup(symbol, true)
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.series[tf]
	if s == nil {
		s = &series{period: period, bars: make([]models.Bar, 0, 64)}
		b.series[tf] = s
	}
	if n := len(s.bars); n > 0 && !bar.Timestamp.After(s.bars[n-1].Timestamp) {
		return fmt.Errorf("%w: %s %s at %s", ErrOutOfOrder, symbol, tf, bar.Timestamp.Format(time.RFC3339))
	}

	bar.Timeframe = tf
	s.bars = append(s.bars, bar)
	if over := len(s.bars) - m.maxBars; over > 0 {
		// copy down so the backing array does not grow without bound
		s.bars = append(s.bars[:0], s.bars[over:]...)
	}
	s.state = deriveState(tf, s.bars)
	return nil
}

// GetBars returns a copy of the last lookback bars (all when lookback <= 0).
func (m *Manager) GetBars(symbol string, tf models.Timeframe, lookback int) []models.Bar {
	b := m.lookup(symbol, false)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.series[tf]
	if s == nil {
		return nil
	}
	src := s.bars
	if lookback > 0 && len(src) > lookback {
		src = src[len(src)-lookback:]
	}
	out := make([]models.Bar, len(src))
	copy(out, src)
	return out
}

// State returns a copy of the derived state, or nil while history is short.
func (m *Manager) State(symbol string, tf models.Timeframe) *models.TimeframeState {
	b := m.lookup(symbol, false)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.series[tf]
	if s == nil || s.state == nil {
		return nil
	}
	st := *s.state
	return &st
}

// HasSufficientData is true when the symbol tracks at least one timeframe
// and every tracked timeframe holds at least minBars bars.
func (m *Manager) HasSufficientData(symbol string, minBars int) bool {
	b := m.lookup(symbol, false)
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.series) == 0 {
		return false
	}
	for _, s := range b.series {
		if len(s.bars) < minBars {
			return false
		}
	}
	return true
}

// Symbols lists every symbol with at least one buffer.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.books))
	for s := range m.books {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// AnalyzeCrossTimeframe correlates the live timeframes of symbol. The whole
// derivation runs under the symbol lock so it never sees a half-applied bar.
func (m *Manager) AnalyzeCrossTimeframe(symbol string) models.CrossTimeframeAnalysis {
	out := models.CrossTimeframeAnalysis{Symbol: symbol, DominantTrend: models.TrendNeutral}

	b := m.lookup(symbol, false)
	if b == nil {
		out.Reason = "no_data"
		return out
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	type live struct {
		period time.Duration
		state  models.TimeframeState
	}
	lives := make([]live, 0, len(b.series))
	for _, s := range b.series {
		if s.state != nil {
			lives = append(lives, live{period: s.period, state: *s.state})
		}
	}
	if len(lives) < 2 {
		out.Reason = "insufficient_timeframes"
		return out
	}
	sort.Slice(lives, func(i, j int) bool { return lives[i].period < lives[j].period })

	out.Available = true
	out.Timeframes = make([]models.TimeframeState, len(lives))
	for i, l := range lives {
		out.Timeframes[i] = l.state
	}

	earliest, latest := lives[0].state.LastBar.Timestamp, lives[0].state.LastBar.Timestamp
	for _, l := range lives[1:] {
		ts := l.state.LastBar.Timestamp
		if ts.Before(earliest) {
			earliest = ts
		}
		if ts.After(latest) {
			latest = ts
		}
	}
	out.MaxDrift = latest.Sub(earliest)
	slowest := lives[len(lives)-1].period
	if out.MaxDrift > syncDriftFactor*slowest {
		out.SyncViolation = true
		out.Divergence = true
		out.Reason = "timeframes_out_of_sync"
		out.ConfidenceAdjustment = adjSyncViolation
		m.log.Warn("timeframe sync violation",
			logger.String("symbol", symbol),
			logger.Duration("drift_ms", out.MaxDrift),
			logger.Duration("allowed_ms", syncDriftFactor*slowest))
		return out
	}

	fast := lives[0].state.Trend
	medium := lives[len(lives)/2].state.Trend
	slow := lives[len(lives)-1].state.Trend

	var ups, downs, neutrals int
	for _, l := range lives {
		switch l.state.Trend {
		case models.TrendUp:
			ups++
		case models.TrendDown:
			downs++
		default:
			neutrals++
		}
	}

	out.Confluence = neutrals == 0 && (ups == len(lives) || downs == len(lives))
	out.Divergence = ups > 0 && downs > 0
	out.FastLeadsMedium = fast != models.TrendNeutral && fast == medium
	out.MediumLeadsSlow = medium != models.TrendNeutral && medium == slow

	switch {
	case out.Confluence:
		out.ConfidenceAdjustment = adjConfluence
	case out.Divergence:
		out.ConfidenceAdjustment = adjDivergence
	case out.FastLeadsMedium && slow == models.TrendNeutral:
		// move is propagating from the fast timeframes
		out.ConfidenceAdjustment = adjCascading
	case out.FastLeadsMedium || out.MediumLeadsSlow:
		out.ConfidenceAdjustment = adjPartial
	}
	out.ConfidenceAdjustment = util.Clamp(out.ConfidenceAdjustment, -maxAdjustment, maxAdjustment)

	var weighted, total float64
	for i, l := range lives {
		w := float64(i + 1)
		total += w
		switch l.state.Trend {
		case models.TrendUp:
			weighted += w
		case models.TrendDown:
			weighted -= w
		}
	}
	out.WeightedTrend = weighted / total
	switch {
	case out.WeightedTrend > dominantCutoff:
		out.DominantTrend = models.TrendUp
	case out.WeightedTrend < -dominantCutoff:
		out.DominantTrend = models.TrendDown
	}
	return out
}

// deriveState computes trend, momentum, volatility and volume ratio from the
// most recent stateWindow bars. Returns nil below minStateBars.
func deriveState(tf models.Timeframe, bars []models.Bar) *models.TimeframeState {
	if len(bars) < minStateBars {
		return nil
	}
	window := bars
	if len(window) > stateWindow {
		window = window[len(window)-stateWindow:]
	}
	closes := models.Closes(window)
	last := window[len(window)-1]

	trend := models.TrendNeutral
	if slow := features.Mean(closes); slow > 0 {
		diff := (features.SMA(closes, fastSMA) - slow) / slow
		switch {
		case diff > trendDeadband:
			trend = models.TrendUp
		case diff < -trendDeadband:
			trend = models.TrendDown
		}
	}

	momentum := 0.0
	if first := window[0].Close; first.IsPositive() {
		momentum = last.Close.Sub(first).Div(first).InexactFloat64()
	}

	volatility := features.StdDev(features.SimpleReturns(closes)) / volReference

	volumeRatio := 0.0
	if prior := models.Volumes(window[:len(window)-1]); len(prior) > 0 {
		if avg := features.Mean(prior); avg > 0 {
			volumeRatio = float64(last.Volume) / avg
		}
	}

	return &models.TimeframeState{
		Timeframe:   tf,
		Trend:       trend,
		Momentum:    util.Clamp(momentum, -1, 1),
		Volatility:  util.Clamp(volatility, 0, 1),
		VolumeRatio: volumeRatio,
		LastBar:     last,
		BarCount:    len(bars),
	}
}
