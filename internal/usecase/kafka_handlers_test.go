package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeMind/internal/domain/models"
)

type barCapture struct{ bars []models.Bar }

func (c *barCapture) Process(_ context.Context, bar *models.Bar) error {
	c.bars = append(c.bars, *bar)
	return nil
}

type fillCapture struct {
	fills []models.Fill
	out   LearningOutcome
}

func (c *fillCapture) HandleFill(f models.Fill) LearningOutcome {
	c.fills = append(c.fills, f)
	return c.out
}

func TestKafkaBarsHandlerSingleAndBatch(t *testing.T) {
	sink := &barCapture{}
	h := NewKafkaBarsHandler("bars", sink, newPipelineMetrics())
	assert.Equal(t, "bars", h.Topic())

	single := `{"symbol":"AAPL","timeframe":"1m","timestamp":"2026-10-16T14:30:00Z","open":"100","high":"101","low":"99","close":"100.5","volume":1200}`
	require.NoError(t, h.Handle(context.Background(), []byte(single)))
	require.NoError(t, h.Handle(context.Background(), []byte("["+single+","+single+"]")))

	require.Len(t, sink.bars, 3)
	assert.Equal(t, "AAPL", sink.bars[0].Symbol)
	assert.Equal(t, "100.5", sink.bars[0].Close.String())
	assert.Equal(t, int64(1200), sink.bars[2].Volume)
}

func TestKafkaBarsHandlerRejectsBadJSON(t *testing.T) {
	metrics := newPipelineMetrics()
	sink := &barCapture{}
	h := NewKafkaBarsHandler("bars", sink, metrics)

	assert.Error(t, h.Handle(context.Background(), []byte(`{"symbol":`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`[{"symbol":"AAPL"`)))
	assert.Equal(t, 2, metrics.errorCount("consumer_unmarshal"))
	assert.Empty(t, sink.bars)
}

func TestKafkaFillsHandlerValidates(t *testing.T) {
	metrics := newPipelineMetrics()
	sink := &fillCapture{}
	h := NewKafkaFillsHandler("fills", sink, metrics, nil)

	assert.Error(t, h.Handle(context.Background(), []byte(`not json`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"timestamp":"2026-10-16T14:30:00Z"}`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"symbol":"AAPL"}`)))
	assert.Equal(t, 1, metrics.errorCount("fill_unmarshal"))
	assert.Equal(t, 2, metrics.errorCount("fill_invalid"))
	assert.Empty(t, sink.fills)
}

func TestKafkaFillsHandlerAcksFailedUpdate(t *testing.T) {
	metrics := newPipelineMetrics()
	sink := &fillCapture{out: LearningOutcome{Err: errors.New("no previous state")}}
	h := NewKafkaFillsHandler("fills", sink, metrics, nil)

	fill := `{"symbol":"AAPL","timestamp":"2026-10-16T14:31:00Z","fill_price":"100.5","realised_pnl":"12.5","signed_qty":"-10","previous_position":"10","new_position":"0"}`
	require.NoError(t, h.Handle(context.Background(), []byte(fill)))
	require.Len(t, sink.fills, 1)
	assert.Equal(t, "12.5", sink.fills[0].RealisedPnL.String())
	assert.True(t, sink.fills[0].ClosesEpisode())
	assert.Equal(t, 1, metrics.sent)
}
