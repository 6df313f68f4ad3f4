package repository

import (
	"context"
	"errors"
	"time"

	"TradeMind/internal/domain/models"
)

var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CheckpointStore persists the single engine checkpoint document.
type CheckpointStore interface {
	Save(ctx context.Context, cp *models.Checkpoint) error
	Load(ctx context.Context) (*models.Checkpoint, error)
}

// BarStream is a live source of closed bars.
type BarStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Bar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// BarPublisher forwards bars to the bus.
type BarPublisher interface {
	PublishBars(ctx context.Context, bars []*models.Bar) error
	Close() error
}

// DecisionPublisher fans decisions out to downstream consumers.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, d models.TradeDecision) error
	Close() error
}

// DecisionStore keeps an audit trail of every decision.
type DecisionStore interface {
	Init(ctx context.Context) error
	StoreDecisions(ctx context.Context, ds []models.TradeDecision) error
	RecentDecisions(ctx context.Context, symbol string, limit int) ([]models.TradeDecision, error)
	Close() error
}

// BarHistory stores bars for warmup and retraining.
type BarHistory interface {
	Init(ctx context.Context) error
	StoreBars(ctx context.Context, bars []*models.Bar) error
	QueryBars(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time, limit int) ([]models.Bar, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
