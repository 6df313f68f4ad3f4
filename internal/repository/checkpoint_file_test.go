package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeMind/internal/domain/models"
	drepo "TradeMind/internal/domain/repository"
)

func sampleCheckpoint(trades int) *models.Checkpoint {
	return &models.Checkpoint{
		Version:         models.CheckpointVersion,
		SavedAt:         time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC),
		QTable:          models.QTable{"abc123": {0.5, -0.25, 0, 0.125, 0}},
		TotalTrades:     trades,
		WinningTrades:   trades / 2,
		CumulativePnL:   123.5,
		ExplorationRate: 0.07,
		SymbolPerformance: map[string]models.SymbolPerformance{
			"AAPL": {Trades: trades, Wins: trades / 2, CumulativePnL: 123.5, ConfidenceBias: 0.02},
		},
		RewardMetrics: &models.RewardMetricsState{
			WindowSize: 50,
			Samples:    []models.RewardSample{{PnL: 10, Equity: 10010}},
			PeakEquity: 10010,
			Streak:     1,
		},
	}
}

func TestFileCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFileCheckpointStore(filepath.Join(t.TempDir(), "state", "agent.json"), nil)

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, drepo.ErrCheckpointNotFound)

	want := sampleCheckpoint(4)
	require.NoError(t, s.Save(ctx, want))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = os.Stat(s.Path() + ".backup")
	assert.True(t, os.IsNotExist(err), "first save has nothing to back up")
}

func TestFileCheckpointFallsBackToBackup(t *testing.T) {
	ctx := context.Background()
	s := NewFileCheckpointStore(filepath.Join(t.TempDir(), "agent.json"), nil)

	require.NoError(t, s.Save(ctx, sampleCheckpoint(2)))
	require.NoError(t, s.Save(ctx, sampleCheckpoint(6)))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalTrades)
}

func TestFileCheckpointBothCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := NewFileCheckpointStore(filepath.Join(dir, "agent.json"), nil)
	require.NoError(t, os.WriteFile(s.Path(), []byte("garbage"), 0o644))

	_, err := s.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, drepo.ErrCheckpointNotFound)
}

func TestFileCheckpointLegacyDocument(t *testing.T) {
	s := NewFileCheckpointStore(filepath.Join(t.TempDir(), "agent.json"), nil)
	legacy := `{"version":1,"q_table":{"k":{"BUY":1.5,"HOLD":0.5}},"total_trades":3,"winning_trades":1,"cumulative_pnl":-2,"exploration_rate":0.1}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(legacy), 0o644))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got.RewardMetrics)
	assert.Equal(t, 3, got.TotalTrades)
	assert.InDelta(t, 1.5, got.QTable["k"][models.ActionBuy], 1e-12)
	assert.InDelta(t, 0.5, got.QTable["k"][models.ActionHold], 1e-12)
}

func TestFileCheckpointLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileCheckpointStore(filepath.Join(dir, "agent.json"), nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(context.Background(), sampleCheckpoint(i)))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"agent.json", "agent.json.backup"}, names)
}
