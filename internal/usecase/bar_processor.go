package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TradeMind/internal/domain/models"
	drepo "TradeMind/internal/domain/repository"
	"TradeMind/pkg/logger"
)

// BarEngine is the part of the engine the bar path drives.
type BarEngine interface {
	OnBar(bar models.Bar) (*models.TradeDecision, error)
}

// BarProcessor feeds bars to the engine and fans the resulting decisions out
// to the bus and the audit store. Bars and decisions bound for ClickHouse
// are batched and written by Flush or when a batch fills up.
type BarProcessor struct {
	engine    BarEngine
	pub       drepo.DecisionPublisher
	decisions drepo.DecisionStore
	history   drepo.BarHistory
	metrics   drepo.Metrics
	log       *logger.Logger
	batchSz   int
	batchTO   time.Duration

	mu      sync.Mutex
	pending []models.TradeDecision
	bars    []*models.Bar
	unsent  map[barKey]models.TradeDecision

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewBarProcessor accepts nil publisher, decision store and history; the
// matching fan-out is skipped.
func NewBarProcessor(
	engine BarEngine,
	pub drepo.DecisionPublisher,
	decisions drepo.DecisionStore,
	history drepo.BarHistory,
	metrics drepo.Metrics,
	batchSz int,
	batchTO time.Duration,
	log *logger.Logger,
) *BarProcessor {
	if log == nil {
		log = logger.Nop()
	}
	if batchSz <= 0 {
		batchSz = 100
	}
	if batchTO <= 0 {
		batchTO = time.Second
	}
	return &BarProcessor{
		engine:    engine,
		pub:       pub,
		decisions: decisions,
		history:   history,
		metrics:   metrics,
		log:       log.Named("bar-processor"),
		batchSz:   batchSz,
		batchTO:   batchTO,
		unsent:    make(map[barKey]models.TradeDecision),
		stop:      make(chan struct{}),
	}
}

// maxUnsent bounds decisions held for a publish retry.
const maxUnsent = 1024

type barKey struct {
	symbol string
	tf     models.Timeframe
	ts     int64
}

func keyOf(bar *models.Bar) barKey {
	return barKey{symbol: bar.Symbol, tf: bar.Timeframe, ts: bar.Timestamp.UnixNano()}
}

// Process runs one bar through the engine. Engine rejections such as an
// out-of-order bar are logged and dropped. A failed publish keeps the
// decision and returns the error; when the same bar is processed again only
// the publish is retried, the engine never sees the bar twice.
func (p *BarProcessor) Process(ctx context.Context, bar *models.Bar) error {
	if bar == nil {
		return fmt.Errorf("bar is nil")
	}
	key := keyOf(bar)
	p.mu.Lock()
	held, retry := p.unsent[key]
	p.mu.Unlock()
	if retry {
		return p.publish(ctx, key, held)
	}

	start := time.Now()
	d, err := p.engine.OnBar(*bar)
	if err != nil {
		p.metrics.RecordError("engine_bar")
		p.log.Warn("bar rejected", logger.String("symbol", bar.Symbol), logger.Error(err))
		return nil
	}
	p.metrics.RecordLastPrice(bar.Symbol, bar.CloseFloat())
	p.metrics.RecordLatency("engine_on_bar", time.Since(start).Seconds())

	var flush bool
	p.mu.Lock()
	if p.history != nil {
		p.bars = append(p.bars, bar)
	}
	if d != nil && p.decisions != nil {
		p.pending = append(p.pending, *d)
	}
	flush = len(p.bars) >= p.batchSz || len(p.pending) >= p.batchSz
	p.mu.Unlock()
	if flush {
		if err := p.Flush(ctx); err != nil {
			p.log.Error("flush batch", logger.Error(err))
		}
	}

	if d == nil || p.pub == nil {
		return nil
	}
	return p.publish(ctx, key, *d)
}

func (p *BarProcessor) publish(ctx context.Context, key barKey, d models.TradeDecision) error {
	if err := p.pub.PublishDecision(ctx, d); err != nil {
		p.metrics.RecordError("decision_publish")
		p.mu.Lock()
		_, held := p.unsent[key]
		if held || len(p.unsent) < maxUnsent {
			p.unsent[key] = d
		} else {
			p.metrics.RecordError("decision_dropped")
			p.log.Error("decision dropped, retry queue full", logger.String("symbol", d.Symbol))
		}
		p.mu.Unlock()
		return fmt.Errorf("publish decision: %w", err)
	}
	p.mu.Lock()
	delete(p.unsent, key)
	p.mu.Unlock()
	p.metrics.RecordMessageSent("kafka", d.Symbol)
	return nil
}

// Unsent is the number of decisions waiting for a publish retry.
func (p *BarProcessor) Unsent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.unsent)
}

// Flush writes the pending bars and decisions. Failed batches are dropped
// after logging; the audit trail is best effort.
func (p *BarProcessor) Flush(ctx context.Context) error {
	p.mu.Lock()
	bars, decisions := p.bars, p.pending
	p.bars, p.pending = nil, nil
	p.mu.Unlock()

	var errs []error
	if len(bars) > 0 && p.history != nil {
		start := time.Now()
		if err := p.history.StoreBars(ctx, bars); err != nil {
			p.metrics.RecordError("bar_store")
			errs = append(errs, fmt.Errorf("store %d bars: %w", len(bars), err))
		} else {
			p.metrics.RecordLatency("ch_bars_insert", time.Since(start).Seconds())
		}
	}
	if len(decisions) > 0 && p.decisions != nil {
		start := time.Now()
		if err := p.decisions.StoreDecisions(ctx, decisions); err != nil {
			p.metrics.RecordError("decision_store")
			errs = append(errs, fmt.Errorf("store %d decisions: %w", len(decisions), err))
		} else {
			p.metrics.RecordLatency("ch_decisions_insert", time.Since(start).Seconds())
		}
	}
	return errors.Join(errs...)
}

// Start flushes on a timer until Close.
func (p *BarProcessor) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		t := time.NewTicker(p.batchTO)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := p.Flush(ctx); err != nil {
					p.log.Error("flush batch", logger.Error(err))
				}
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the timer and flushes what is left.
func (p *BarProcessor) Close(ctx context.Context) error {
	var err error
	p.once.Do(func() {
		close(p.stop)
		p.wg.Wait()
		err = p.Flush(ctx)
	})
	return err
}
