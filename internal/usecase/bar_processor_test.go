package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeMind/internal/domain/models"
)

type pipelineMetrics struct {
	mu     sync.Mutex
	sent   int
	errors map[string]int
	prices map[string]float64
}

func newPipelineMetrics() *pipelineMetrics {
	return &pipelineMetrics{errors: map[string]int{}, prices: map[string]float64{}}
}

func (m *pipelineMetrics) RecordMessageSent(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
}

func (m *pipelineMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *pipelineMetrics) RecordLastPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

func (m *pipelineMetrics) RecordLatency(string, float64) {}

func (m *pipelineMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type scriptedEngine struct {
	decision *models.TradeDecision
	err      error
}

func (e *scriptedEngine) OnBar(bar models.Bar) (*models.TradeDecision, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.decision == nil {
		return nil, nil
	}
	d := *e.decision
	d.Symbol = bar.Symbol
	return &d, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []models.TradeDecision
	err       error
}

func (p *recordingPublisher) PublishDecision(_ context.Context, d models.TradeDecision) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, d)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type memoryAudit struct {
	mu        sync.Mutex
	decisions [][]models.TradeDecision
	bars      [][]*models.Bar
}

func (a *memoryAudit) Init(context.Context) error { return nil }

func (a *memoryAudit) StoreDecisions(_ context.Context, ds []models.TradeDecision) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.decisions = append(a.decisions, ds)
	return nil
}

func (a *memoryAudit) RecentDecisions(context.Context, string, int) ([]models.TradeDecision, error) {
	return nil, nil
}

func (a *memoryAudit) StoreBars(_ context.Context, bars []*models.Bar) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bars = append(a.bars, bars)
	return nil
}

func (a *memoryAudit) QueryBars(context.Context, string, models.Timeframe, time.Time, time.Time, int) ([]models.Bar, error) {
	return nil, nil
}

func (a *memoryAudit) Health(context.Context) error { return nil }
func (a *memoryAudit) Close() error                 { return nil }

func (a *memoryAudit) batches() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.bars), len(a.decisions)
}

func testBar(symbol string, price float64) *models.Bar {
	c := decimal.NewFromFloat(price)
	return &models.Bar{
		Symbol:    symbol,
		Timeframe: models.Timeframe("1m"),
		Timestamp: time.Now().UTC(),
		Open:      c,
		High:      c,
		Low:       c,
		Close:     c,
		Volume:    100,
	}
}

func TestBarProcessorEngineRejectionIsDropped(t *testing.T) {
	metrics := newPipelineMetrics()
	pub := &recordingPublisher{}
	p := NewBarProcessor(&scriptedEngine{err: errors.New("out of order")}, pub, nil, nil, metrics, 10, time.Second, nil)

	require.NoError(t, p.Process(context.Background(), testBar("AAPL", 100)))
	assert.Equal(t, 1, metrics.errorCount("engine_bar"))
	assert.Empty(t, pub.published)
	assert.Error(t, p.Process(context.Background(), nil))
}

func TestBarProcessorPublishesDecisions(t *testing.T) {
	metrics := newPipelineMetrics()
	pub := &recordingPublisher{}
	engine := &scriptedEngine{decision: &models.TradeDecision{ShouldTrade: true, Action: models.ActionBuy, Direction: 1}}
	p := NewBarProcessor(engine, pub, nil, nil, metrics, 10, time.Second, nil)

	require.NoError(t, p.Process(context.Background(), testBar("MSFT", 250.5)))
	require.Len(t, pub.published, 1)
	assert.Equal(t, "MSFT", pub.published[0].Symbol)
	assert.InDelta(t, 250.5, metrics.prices["MSFT"], 1e-9)
	assert.Equal(t, 1, metrics.sent)

	pub.err = errors.New("broker down")
	err := p.Process(context.Background(), testBar("MSFT", 251))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish decision")
	assert.Equal(t, 1, metrics.errorCount("decision_publish"))
}

func TestBarProcessorFlushesFullBatch(t *testing.T) {
	audit := &memoryAudit{}
	engine := &scriptedEngine{decision: &models.TradeDecision{Action: models.ActionHold}}
	p := NewBarProcessor(engine, nil, audit, audit, newPipelineMetrics(), 3, time.Hour, nil)

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Process(context.Background(), testBar("AAPL", 100+float64(i))))
	}
	bars, decisions := audit.batches()
	assert.Zero(t, bars)
	assert.Zero(t, decisions)

	require.NoError(t, p.Process(context.Background(), testBar("AAPL", 103)))
	bars, decisions = audit.batches()
	assert.Equal(t, 1, bars)
	assert.Equal(t, 1, decisions)
	assert.Len(t, audit.bars[0], 3)
	assert.Len(t, audit.decisions[0], 3)
}

func TestBarProcessorCloseFlushesRemainder(t *testing.T) {
	audit := &memoryAudit{}
	engine := &scriptedEngine{decision: &models.TradeDecision{Action: models.ActionHold}}
	p := NewBarProcessor(engine, nil, audit, audit, newPipelineMetrics(), 100, time.Hour, nil)
	p.Start(context.Background())

	require.NoError(t, p.Process(context.Background(), testBar("AAPL", 100)))
	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))

	bars, decisions := audit.batches()
	assert.Equal(t, 1, bars)
	assert.Equal(t, 1, decisions)
}

// orderedEngine rejects a bar that is not newer than the last one it saw.
type orderedEngine struct {
	calls int
	last  time.Time
}

func (e *orderedEngine) OnBar(bar models.Bar) (*models.TradeDecision, error) {
	e.calls++
	if !bar.Timestamp.After(e.last) {
		return nil, errors.New("out of order")
	}
	e.last = bar.Timestamp
	return &models.TradeDecision{Symbol: bar.Symbol, Timestamp: bar.Timestamp, Action: models.ActionSell, Direction: -1}, nil
}

func TestBarProcessorRetriesOnlyThePublish(t *testing.T) {
	metrics := newPipelineMetrics()
	pub := &recordingPublisher{err: errors.New("broker down")}
	engine := &orderedEngine{}
	p := NewBarProcessor(engine, pub, nil, nil, metrics, 10, time.Second, nil)

	bar := testBar("AAPL", 100)
	require.Error(t, p.Process(context.Background(), bar))
	require.Error(t, p.Process(context.Background(), bar))
	assert.Equal(t, 1, p.Unsent())

	pub.err = nil
	require.NoError(t, p.Process(context.Background(), bar))

	assert.Equal(t, 1, engine.calls)
	assert.Zero(t, metrics.errorCount("engine_bar"))
	assert.Equal(t, 2, metrics.errorCount("decision_publish"))
	require.Len(t, pub.published, 1)
	assert.Equal(t, models.ActionSell, pub.published[0].Action)
	assert.Zero(t, p.Unsent())

	next := testBar("AAPL", 101)
	next.Timestamp = bar.Timestamp.Add(time.Minute)
	require.NoError(t, p.Process(context.Background(), next))
	assert.Equal(t, 2, engine.calls)
	assert.Len(t, pub.published, 2)
}
