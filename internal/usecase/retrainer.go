package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TradeMind/internal/domain/models"
	drepo "TradeMind/internal/domain/repository"
	"TradeMind/pkg/logger"
)

// WarmupEngine is what the retrainer drives.
type WarmupEngine interface {
	Warmup(ctx context.Context, history map[string][]models.Bar, observationFraction float64) (models.WarmupSummary, error)
	RetrainRequests() <-chan struct{}
	SaveState(ctx context.Context) error
	Symbols() []string
}

type RetrainConfig struct {
	Timeframe           models.Timeframe
	Bars                int
	ObservationFraction float64
	// Checkpoint saves engine state after every successful replay.
	Checkpoint bool
}

// Retrainer replays recent bars from the history store through the warmup
// simulator, once at startup and again on every retrain request.
type Retrainer struct {
	engine  WarmupEngine
	history drepo.BarHistory
	cfg     RetrainConfig
	log     *logger.Logger
	now     func() time.Time
}

func NewRetrainer(engine WarmupEngine, history drepo.BarHistory, cfg RetrainConfig, log *logger.Logger) *Retrainer {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = models.TF1m
	}
	if cfg.Bars <= 0 {
		cfg.Bars = 2000
	}
	return &Retrainer{engine: engine, history: history, cfg: cfg, log: log.Named("retrainer"), now: time.Now}
}

// Run serves retrain requests until ctx is done.
func (r *Retrainer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.engine.RetrainRequests():
			if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error("retrain failed", logger.Error(err))
			}
		}
	}
}

// RunOnce loads history for every symbol and replays it.
func (r *Retrainer) RunOnce(ctx context.Context) (models.WarmupSummary, error) {
	if r.history == nil {
		return models.WarmupSummary{}, errors.New("no bar history configured")
	}
	history, err := r.load(ctx)
	if err != nil {
		return models.WarmupSummary{}, err
	}
	if len(history) == 0 {
		r.log.Warn("retrain skipped, history is empty")
		return models.WarmupSummary{}, nil
	}

	start := r.now()
	sum, err := r.engine.Warmup(ctx, history, r.cfg.ObservationFraction)
	if err != nil {
		return sum, fmt.Errorf("warmup: %w", err)
	}
	r.log.Info("retrain complete",
		logger.Int("symbols", sum.Symbols),
		logger.Int("bars", sum.BarsSeen),
		logger.Int("updates", sum.Updates),
		logger.Int("q_states", sum.QTableSize),
		logger.Strings("skipped", sum.Skipped),
		logger.Duration("duration_ms", time.Since(start)),
	)
	if r.cfg.Checkpoint {
		if err := r.engine.SaveState(ctx); err != nil {
			r.log.Warn("checkpoint after retrain failed", logger.Error(err))
		}
	}
	return sum, nil
}

func (r *Retrainer) load(ctx context.Context) (map[string][]models.Bar, error) {
	d, err := r.cfg.Timeframe.Duration()
	if err != nil {
		return nil, err
	}
	to := r.now()
	// twice the nominal span leaves room for closed sessions
	from := to.Add(-2 * time.Duration(r.cfg.Bars) * d)

	out := make(map[string][]models.Bar)
	for _, symbol := range r.engine.Symbols() {
		bars, err := r.history.QueryBars(ctx, symbol, r.cfg.Timeframe, from, to, r.cfg.Bars)
		if err != nil {
			return nil, fmt.Errorf("history for %s: %w", symbol, err)
		}
		if len(bars) > 0 {
			out[symbol] = bars
		}
	}
	return out, nil
}
