package logger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload []byte) error {
	var batch []AggregatedLogEntry
	if err := json.Unmarshal(payload, &batch); err != nil {
		return err
	}
	p.mu.Lock()
	p.topic = topic
	p.batches = append(p.batches, batch)
	p.mu.Unlock()
	return nil
}

func TestCollectorDeduplicatesAndFlushesOnClose(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "engine.logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		c.AddLog("error", "q update failed", map[string]interface{}{"symbol": "AAPL"}, "rl.go:10")
	}
	c.AddLog("error", "checkpoint save failed", nil, "engine.go:20")
	c.Close()

	require.Len(t, pub.batches, 1)
	batch := pub.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "engine.logs", pub.topic)
	assert.Equal(t, 3, batch[0].Count)
	assert.Equal(t, "q update failed", batch[0].Message)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "t", Publisher: pub})
	c.AddLog("error", "a", nil, "x")
	c.AddLog("error", "b", nil, "x")
	c.Close()

	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 2)
}

func TestLoggerFeedsCollectorOnError(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "t", Publisher: pub})
	l.Info("ignored")
	l.Error("boom", Error(errors.New("disk full")), String("symbol", "SPY"))
	l.RemoveCollector()

	require.Len(t, pub.batches, 1)
	entry := pub.batches[0][0]
	assert.Equal(t, "boom", entry.Message)
	assert.Equal(t, "disk full", entry.Fields["error"])
	assert.Equal(t, "SPY", entry.Fields["symbol"])
}
