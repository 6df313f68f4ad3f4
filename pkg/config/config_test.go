package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 10, c.Safeguards.MaxTradesPerHour)
	assert.Equal(t, []string{"1m", "5m", "15m"}, c.Timeframes.Tracked)
	assert.Equal(t, "balanced", c.Decision.VolatilityBias)
}

func TestRewardWeightsMustSumToOne(t *testing.T) {
	c := Default()
	c.Rewards.EnableEnhanced = true
	c.Rewards.SharpeWeight = 0.5
	c.Rewards.SortinoWeight = 0.4
	c.Rewards.DrawdownWeight = 0.3
	c.Rewards.StreakWeight = 0.2 // 1.4

	err := c.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "sum to 1.0")

	c.Rewards.EnableEnhanced = false
	assert.NoError(t, c.Validate())
}

func TestRewardWeightsNegativeAndWindow(t *testing.T) {
	c := Default()
	c.Rewards.EnableEnhanced = true
	c.Rewards.SharpeWeight = 1.2
	c.Rewards.SortinoWeight = -0.2
	c.Rewards.DrawdownWeight = 0
	c.Rewards.StreakWeight = 0
	c.Rewards.WindowSize = 5

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-negative")
	assert.Contains(t, err.Error(), "window size")
}

func TestParseOverridesDefaults(t *testing.T) {
	raw := []byte(`
symbols: [AAPL, MSFT]
agent:
  learning_rate: 0.2
decision:
  volatility_bias: high
safeguards:
  max_trades_per_hour: 5
`)
	c, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, c.Symbols)
	assert.InDelta(t, 0.2, c.Agent.LearningRate, 1e-12)
	assert.InDelta(t, 0.95, c.Agent.DiscountFactor, 1e-12)
	assert.Equal(t, "high", c.Decision.VolatilityBias)
	assert.Equal(t, 5, c.Safeguards.MaxTradesPerHour)
	assert.Equal(t, 50, c.Safeguards.MaxTradesPerDay)
}

func TestParseRejectsBadEnum(t *testing.T) {
	_, err := Parse([]byte("symbols: [SPY]\ndecision:\n  volatility_bias: extreme\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VolatilityBias")
}

func TestParseRejectsBadTimezone(t *testing.T) {
	_, err := Parse([]byte("symbols: [SPY]\nsafeguards:\n  session_timezone: Mars/Olympus\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session_timezone")
}

func TestLoadWithEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("symbols: [SPY]\n"), 0o644))

	t.Setenv("SYMBOLS", "QQQ,IWM")
	t.Setenv("CHECKPOINT_PATH", filepath.Join(dir, "state.json"))
	t.Setenv("ENHANCED_REWARDS", "true")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"QQQ", "IWM"}, c.Symbols)
	assert.Equal(t, filepath.Join(dir, "state.json"), c.Checkpoint.Path)
	assert.True(t, c.Rewards.EnableEnhanced)
}
