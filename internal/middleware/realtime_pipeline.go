package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradeMind/internal/domain/models"
	domrepo "TradeMind/internal/domain/repository"
)

// Proc is the downstream the pipeline forwards bars to.
type Proc interface {
	Process(ctx context.Context, bar *models.Bar) error
}

// RealtimePipeline sits between the bar sources and the engine. It validates,
// throttles per (symbol, timeframe) and buffers bars whose processing failed
// for a bounded background retry.
type RealtimePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	window   time.Duration
	bufSize  int
	bufCh    chan *models.Bar
	stopCh   chan struct{}
	now      func() time.Time
	mu       sync.Mutex
	started  bool
	lastSeen map[seriesKey]time.Time
}

type seriesKey struct {
	symbol string
	tf     models.Timeframe
}

type PipelineOption func(*RealtimePipeline)

// WithThrottleWindow drops bars of a series that arrive less than d after
// the previously accepted one. Zero disables throttling.
func WithThrottleWindow(d time.Duration) PipelineOption {
	return func(p *RealtimePipeline) {
		if d >= 0 {
			p.window = d
		}
	}
}

func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func withClock(now func() time.Time) PipelineOption {
	return func(p *RealtimePipeline) { p.now = now }
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		now:      time.Now,
		lastSeen: make(map[seriesKey]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Bar, p.bufSize)
	return p
}

// Start launches the retry loop for buffered bars.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case bar := <-p.bufCh:
				if err := p.proc.Process(ctx, bar); err != nil {
					p.metrics.RecordError("pipeline_retry")
					if backoff < 2*time.Second {
						backoff *= 2
					}
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					}
					p.enqueue(bar)
					continue
				}
				backoff = 50 * time.Millisecond
			}
		}
	}()
}

func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// Pending is the number of bars waiting for a retry.
func (p *RealtimePipeline) Pending() int { return len(p.bufCh) }

// Process validates and throttles bar, then forwards it. A downstream failure
// buffers the bar and is returned wrapped.
func (p *RealtimePipeline) Process(ctx context.Context, bar *models.Bar) error {
	start := p.now()
	if bar == nil {
		p.metrics.RecordError("pipeline_validate")
		return fmt.Errorf("bar is nil")
	}
	if err := bar.Validate(); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(bar, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, bar); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.enqueue(bar)
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *RealtimePipeline) enqueue(bar *models.Bar) {
	select {
	case p.bufCh <- bar:
		p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
	default:
		p.metrics.RecordError("pipeline_buffer_full")
	}
}

func (p *RealtimePipeline) allow(bar *models.Bar, now time.Time) bool {
	if p.window <= 0 {
		return true
	}
	k := seriesKey{bar.Symbol, bar.Timeframe}
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastSeen[k]; ok && now.Sub(last) < p.window {
		return false
	}
	p.lastSeen[k] = now
	return true
}
