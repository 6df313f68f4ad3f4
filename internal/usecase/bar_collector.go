package usecase

import (
	"context"

	"TradeMind/internal/domain/models"
	drepo "TradeMind/internal/domain/repository"
	"TradeMind/pkg/logger"
)

// BarCollector pulls bars from a live stream into the bar sink. With a
// publisher set, bars are forwarded to the bus instead so every instance
// consumes the same ordered topic.
type BarCollector struct {
	stream  drepo.BarStream
	sink    BarSink
	pub     drepo.BarPublisher
	metrics drepo.Metrics
	log     *logger.Logger
}

func NewBarCollector(stream drepo.BarStream, sink BarSink, pub drepo.BarPublisher, metrics drepo.Metrics, log *logger.Logger) *BarCollector {
	if log == nil {
		log = logger.Nop()
	}
	return &BarCollector{stream: stream, sink: sink, pub: pub, metrics: metrics, log: log.Named("bar-collector")}
}

func (c *BarCollector) IsConnected() bool { return c.stream.IsConnected() }

func (c *BarCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	barCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, barCh, errCh)
	return nil
}

func (c *BarCollector) consume(ctx context.Context, barCh <-chan *models.Bar, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			c.metrics.RecordError("stream")
			c.log.Warn("stream error, reconnecting", logger.Error(err))
			if rerr := c.stream.Reconnect(ctx); rerr != nil {
				c.log.Error("reconnect failed", logger.Error(rerr))
			}
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			if bar == nil {
				continue
			}
			c.forward(ctx, bar)
		}
	}
}

func (c *BarCollector) forward(ctx context.Context, bar *models.Bar) {
	var err error
	if c.pub != nil {
		err = c.pub.PublishBars(ctx, []*models.Bar{bar})
	} else {
		err = c.sink.Process(ctx, bar)
	}
	if err != nil {
		c.log.Warn("forward bar", logger.String("symbol", bar.Symbol), logger.Error(err))
	}
}

func (c *BarCollector) Shutdown(context.Context) error {
	return c.stream.Close()
}
