package usecase

import (
	"context"
	"sync"
	"time"

	"TradeMind/pkg/logger"
)

// StateSaver is what the checkpointer persists.
type StateSaver interface {
	SaveState(ctx context.Context) error
}

// Checkpointer saves engine state on a timer, off the bar path, and once
// more when closed.
type Checkpointer struct {
	saver    StateSaver
	interval time.Duration
	timeout  time.Duration
	log      *logger.Logger

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func NewCheckpointer(saver StateSaver, interval time.Duration, log *logger.Logger) *Checkpointer {
	if log == nil {
		log = logger.Nop()
	}
	return &Checkpointer{
		saver:    saver,
		interval: interval,
		timeout:  30 * time.Second,
		log:      log.Named("checkpointer"),
		stop:     make(chan struct{}),
	}
}

// Start launches the timer loop. A non-positive interval disables periodic
// saves; Close still saves.
func (c *Checkpointer) Start(ctx context.Context) {
	if c.interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTicker(c.interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.save(ctx)
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	c.log.Info("checkpointer started", logger.Duration("interval", c.interval))
}

func (c *Checkpointer) save(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	// SaveState logs its own failures
	_ = c.saver.SaveState(sctx)
}

// Close stops the loop and writes a final checkpoint.
func (c *Checkpointer) Close(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		close(c.stop)
		c.wg.Wait()
		sctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		err = c.saver.SaveState(sctx)
	})
	return err
}
