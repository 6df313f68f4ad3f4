package rewards

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeMind/internal/domain/models"
)

func TestDrawdownAndStreak(t *testing.T) {
	tr := NewTracker(10)

	tr.Record(100, 10100)
	tr.Record(50, 10150)
	assert.Equal(t, 2, tr.Streak())
	assert.Zero(t, tr.Drawdown())

	tr.Record(-1015, 9135)
	assert.Equal(t, -1, tr.Streak())
	assert.InDelta(t, 0.1, tr.Drawdown(), 1e-12)

	tr.Record(0, 9135)
	assert.Equal(t, 0, tr.Streak())
	assert.InDelta(t, 0.1, tr.Drawdown(), 1e-12)
}

func TestSortinoUnboundedWithoutLosses(t *testing.T) {
	tr := NewTracker(10)
	assert.Zero(t, tr.Sortino())

	tr.Record(10, 1010)
	tr.Record(20, 1030)
	assert.True(t, math.IsInf(tr.Sortino(), 1))
	assert.Greater(t, tr.Sharpe(), 0.0)

	tr.Record(-30, 1000)
	s := tr.Sortino()
	assert.False(t, math.IsInf(s, 0))
}

func TestSharpeZeroWithoutDispersion(t *testing.T) {
	tr := NewTracker(10)
	tr.Record(10, 1010)
	assert.Zero(t, tr.Sharpe(), "single sample")
}

func TestWindowEvictsOldest(t *testing.T) {
	tr := NewTracker(10)
	equity := 1000.0
	for i := 0; i < 15; i++ {
		equity += 1
		tr.Record(1, equity)
	}
	assert.Equal(t, 10, tr.Len())
	snap := tr.Snapshot()
	assert.InDelta(t, 1006, snap.Samples[0].Equity, 1e-9)
}

func TestSmallWindowFallsBackToDefault(t *testing.T) {
	tr := NewTracker(3)
	assert.Equal(t, DefaultWindow, tr.Snapshot().WindowSize)
}

func TestNonFiniteSamplesIgnored(t *testing.T) {
	tr := NewTracker(10)
	tr.Record(math.NaN(), 100)
	tr.Record(1, math.Inf(1))
	assert.Zero(t, tr.Len())
}

func TestSnapshotRestore(t *testing.T) {
	tr := NewTracker(10)
	tr.Record(5, 105)
	tr.Record(-10, 95)
	snap := tr.Snapshot()

	other := NewTracker(10)
	other.Restore(snap)
	assert.Equal(t, tr.Streak(), other.Streak())
	assert.InDelta(t, tr.Drawdown(), other.Drawdown(), 1e-12)
	assert.InDelta(t, tr.Sharpe(), other.Sharpe(), 1e-12)

	other.Restore(nil)
	assert.Zero(t, other.Len())
	assert.Zero(t, other.Streak())
}

func TestRestoreTruncatesToWindow(t *testing.T) {
	st := &models.RewardMetricsState{WindowSize: 50}
	for i := 0; i < 30; i++ {
		st.Samples = append(st.Samples, models.RewardSample{PnL: 1, Equity: float64(100 + i)})
	}
	tr := NewTracker(10)
	tr.Restore(st)
	require.Equal(t, 10, tr.Len())
	assert.InDelta(t, 129, tr.Snapshot().Samples[9].Equity, 1e-9)
}

func TestCalculator(t *testing.T) {
	c := Calculator{RiskPenaltyFactor: 0.001, TransactionCostFactor: 0.0005}
	// 50 - 0.0015 * 10000
	assert.InDelta(t, 35, c.Legacy(50, -10000), 1e-9)

	tr := NewTracker(10)
	tr.Record(10, 1010)
	tr.Record(20, 1030)
	assert.InDelta(t, 35, c.Reward(50, 10000, tr), 1e-9, "legacy ignores tracker")

	c.Enhanced = true
	c.Weights = Weights{Sharpe: 0.4, Sortino: 0.3, Drawdown: 0.2, Streak: 0.1}
	want := 35 + 0.4*math.Tanh(tr.Sharpe()) + 0.3*1 + 0.1*math.Tanh(2.0/5)
	assert.InDelta(t, want, c.Reward(50, 10000, tr), 1e-9)
}
