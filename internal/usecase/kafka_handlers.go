package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"TradeMind/internal/domain/models"
	drepo "TradeMind/internal/domain/repository"
	pkgkafka "TradeMind/pkg/kafka"
	"TradeMind/pkg/logger"
)

// BarSink accepts decoded bars; the realtime pipeline and BarProcessor both
// satisfy it.
type BarSink interface {
	Process(ctx context.Context, bar *models.Bar) error
}

// KafkaBarsHandler decodes bars from the bars topic.
type KafkaBarsHandler struct {
	topic   string
	sink    BarSink
	metrics drepo.Metrics
}

func NewKafkaBarsHandler(topic string, sink BarSink, metrics drepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, sink: sink, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// Handle accepts one JSON bar or an array of them. Timestamps must carry a
// zone offset, which RFC 3339 guarantees.
func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var bars []models.Bar
	if len(b) > 0 && b[0] == '[' {
		if err := json.Unmarshal(b, &bars); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return err
		}
	} else {
		var bar models.Bar
		if err := json.Unmarshal(b, &bar); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return err
		}
		bars = append(bars, bar)
	}

	for i := range bars {
		bar := bars[i]
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(bar.Timestamp).Seconds())
		if err := h.sink.Process(ctx, &bar); err != nil {
			return err
		}
	}
	return nil
}

// FillSink receives execution reports.
type FillSink interface {
	HandleFill(f models.Fill) LearningOutcome
}

// KafkaFillsHandler feeds execution reports into learning.
type KafkaFillsHandler struct {
	topic    string
	sink     FillSink
	metrics  drepo.Metrics
	validate *validator.Validate
	log      *logger.Logger
}

func NewKafkaFillsHandler(topic string, sink FillSink, metrics drepo.Metrics, log *logger.Logger) *KafkaFillsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaFillsHandler{topic: topic, sink: sink, metrics: metrics, validate: validator.New(), log: log}
}

func (h *KafkaFillsHandler) Topic() string { return h.topic }

// Handle rejects malformed fills. A failed Q update is not an error here:
// statistics are already updated and redelivery would double count them.
func (h *KafkaFillsHandler) Handle(_ context.Context, b []byte) error {
	var f models.Fill
	if err := json.Unmarshal(b, &f); err != nil {
		h.metrics.RecordError("fill_unmarshal")
		return err
	}
	if err := h.validate.Struct(f); err != nil {
		h.metrics.RecordError("fill_invalid")
		return fmt.Errorf("invalid fill: %w", err)
	}
	if f.Timestamp.IsZero() {
		h.metrics.RecordError("fill_invalid")
		return fmt.Errorf("invalid fill: zero timestamp")
	}

	out := h.sink.HandleFill(f)
	if out.Err != nil {
		h.log.Warn("fill learned without q update", logger.String("symbol", f.Symbol), logger.Error(out.Err))
	}
	h.metrics.RecordMessageSent("learning", f.Symbol)
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
	_ pkgkafka.MessageHandler = (*KafkaFillsHandler)(nil)
)
