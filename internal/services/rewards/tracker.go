package rewards

import (
	"math"
	"sync"

	"TradeMind/internal/domain/models"
	"TradeMind/internal/services/features"
)

const (
	DefaultWindow = 50
	MinWindow     = 10
)

// Tracker keeps a rolling window of (P&L, post-trade equity) samples.
// Drawdown and streak are maintained incrementally on Record; the ratios are
// derived from the window on demand.
type Tracker struct {
	mu       sync.RWMutex
	window   int
	samples  []models.RewardSample
	peak     float64
	drawdown float64
	streak   int
}

func NewTracker(window int) *Tracker {
	if window < MinWindow {
		window = DefaultWindow
	}
	return &Tracker{window: window}
}

// Record appends one closed-trade observation, evicting the oldest sample
// once the window is full.
func (t *Tracker) Record(pnl, equity float64) {
	if math.IsNaN(pnl) || math.IsNaN(equity) || math.IsInf(pnl, 0) || math.IsInf(equity, 0) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) == t.window {
		copy(t.samples, t.samples[1:])
		t.samples = t.samples[:len(t.samples)-1]
	}
	t.samples = append(t.samples, models.RewardSample{PnL: pnl, Equity: equity})

	if before := equity - pnl; before > t.peak {
		t.peak = before
	}
	if equity > t.peak {
		t.peak = equity
	}
	if t.peak > 0 {
		t.drawdown = math.Max(0, (t.peak-equity)/t.peak)
	}

	switch {
	case pnl > 0:
		if t.streak < 0 {
			t.streak = 0
		}
		t.streak++
	case pnl < 0:
		if t.streak > 0 {
			t.streak = 0
		}
		t.streak--
	default:
		t.streak = 0
	}
}

// returnsLocked converts samples into per-trade returns on pre-trade equity.
func (t *Tracker) returnsLocked() []float64 {
	out := make([]float64, 0, len(t.samples))
	for _, s := range t.samples {
		before := s.Equity - s.PnL
		if before <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, s.PnL/before)
	}
	return out
}

// Sharpe is mean/std of window returns, 0 with fewer than two samples or no
// dispersion.
func (t *Tracker) Sharpe() float64 {
	t.mu.RLock()
	rs := t.returnsLocked()
	t.mu.RUnlock()

	sd := features.StdDev(rs)
	if sd == 0 {
		return 0
	}
	return features.Mean(rs) / sd
}

// Sortino is mean over downside deviation. It is +Inf when the window holds
// samples but none of them lost money, and 0 for an empty window.
func (t *Tracker) Sortino() float64 {
	t.mu.RLock()
	rs := t.returnsLocked()
	t.mu.RUnlock()

	if len(rs) == 0 {
		return 0
	}
	var downside float64
	var losses int
	for _, r := range rs {
		if r < 0 {
			downside += r * r
			losses++
		}
	}
	if losses == 0 {
		return math.Inf(1)
	}
	dd := math.Sqrt(downside / float64(len(rs)))
	if dd == 0 {
		return math.Inf(1)
	}
	return features.Mean(rs) / dd
}

func (t *Tracker) Drawdown() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.drawdown
}

// Streak is positive for consecutive wins and negative for losses.
func (t *Tracker) Streak() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.streak
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}

func (t *Tracker) Snapshot() *models.RewardMetricsState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	samples := make([]models.RewardSample, len(t.samples))
	copy(samples, t.samples)
	return &models.RewardMetricsState{
		WindowSize: t.window,
		Samples:    samples,
		PeakEquity: t.peak,
		Drawdown:   t.drawdown,
		Streak:     t.streak,
	}
}

// Restore replaces the tracker contents. A nil state resets to empty,
// keeping the configured window.
func (t *Tracker) Restore(st *models.RewardMetricsState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st == nil {
		t.samples, t.peak, t.drawdown, t.streak = nil, 0, 0, 0
		return
	}
	samples := st.Samples
	if len(samples) > t.window {
		samples = samples[len(samples)-t.window:]
	}
	t.samples = append([]models.RewardSample(nil), samples...)
	t.peak = st.PeakEquity
	t.drawdown = st.Drawdown
	t.streak = st.Streak
}
