package performance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeMind/internal/domain/models"
)

func TestBiasNeedsMinimumTrades(t *testing.T) {
	b := NewBook()
	b.Record("AAPL", 10)
	b.Record("AAPL", 10)
	assert.Zero(t, b.Bias("AAPL"))

	p := b.Record("AAPL", 10)
	assert.Equal(t, 3, p.Trades)
	assert.InDelta(t, 0.02, b.Bias("AAPL"), 1e-12)
}

func TestBiasBoundedUpAndDown(t *testing.T) {
	b := NewBook()
	for i := 0; i < 40; i++ {
		b.Record("WIN", 5)
		b.Record("LOSE", -5)
	}
	assert.InDelta(t, MaxBias, b.Bias("WIN"), 1e-12)
	assert.InDelta(t, -MaxBias, b.Bias("LOSE"), 1e-12)
}

func TestMixedResultsLeaveBiasAlone(t *testing.T) {
	b := NewBook()
	for i := 0; i < 10; i++ {
		b.Record("MIX", 5)
		b.Record("MIX", -5)
	}
	assert.Zero(t, b.Bias("MIX"))
	p, ok := b.Get("MIX")
	require.True(t, ok)
	assert.InDelta(t, 0.5, p.WinRate(), 1e-12)
}

func TestEarlyStreakFadesWithMixedResults(t *testing.T) {
	b := NewBook()
	b.Record("MIX", 5)
	b.Record("MIX", -5)
	b.Record("MIX", 5)
	require.InDelta(t, 0.02, b.Bias("MIX"), 1e-12)

	for i := 0; i < 6; i++ {
		b.Record("MIX", -5)
		b.Record("MIX", 5)
	}
	assert.Zero(t, b.Bias("MIX"))
}

func TestRestoredBiasHoldsUntilNewWindow(t *testing.T) {
	b := NewBook()
	b.Restore(map[string]models.SymbolPerformance{"QQQ": {Trades: 8, Wins: 6, CumulativePnL: 40, ConfidenceBias: 0.06}})

	b.Record("QQQ", 5)
	b.Record("QQQ", -5)
	assert.InDelta(t, 0.06, b.Bias("QQQ"), 1e-12)

	b.Record("QQQ", 5)
	assert.InDelta(t, 0.08, b.Bias("QQQ"), 1e-12)
}

func TestSnapshotRestore(t *testing.T) {
	b := NewBook()
	for i := 0; i < 4; i++ {
		b.Record("SPY", 1)
	}
	snap := b.Snapshot()

	other := NewBook()
	other.Restore(snap)
	assert.Equal(t, snap, other.Snapshot())
	assert.Equal(t, []string{"SPY"}, other.Symbols())

	other.Restore(map[string]models.SymbolPerformance{"QQQ": {Trades: 5, ConfidenceBias: 0.9}})
	assert.InDelta(t, MaxBias, other.Bias("QQQ"), 1e-12)
}
