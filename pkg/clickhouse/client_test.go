package clickhouse

import (
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []ClientOption{
		WithHost("ch.local"),
		WithPort(8123),
		WithDatabase("trademind"),
		WithCredentials("engine", "secret"),
		WithHTTP(true),
		WithAsyncInsert(true, false),
		WithMaxExecutionTime(90 * time.Second),
		WithTimeouts(0, 20*time.Second, 0),
	} {
		opt(cfg)
	}
	require.NoError(t, cfg.validate())

	opts := cfg.options()
	assert.Equal(t, []string{"ch.local:8123"}, opts.Addr)
	assert.Equal(t, "trademind", opts.Auth.Database)
	assert.Equal(t, "engine", opts.Auth.Username)
	assert.Equal(t, clickhouse.HTTP, opts.Protocol)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
	assert.Equal(t, 20*time.Second, opts.ReadTimeout)
	assert.Equal(t, 90, opts.Settings["max_execution_time"])
	assert.Equal(t, 1, opts.Settings["async_insert"])
	assert.Equal(t, 0, opts.Settings["wait_for_async_insert"])
}

func TestSettingsOmitUnsetLimits(t *testing.T) {
	cfg := defaultConfig()
	cfg.Host = "localhost"
	assert.Empty(t, cfg.settings())
	assert.Equal(t, clickhouse.Native, cfg.options().Protocol)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	assert.ErrorContains(t, cfg.validate(), "host is required")

	cfg.Host = "localhost"
	cfg.MaxIdleConns = 20
	assert.ErrorContains(t, cfg.validate(), "idle connections")
}
