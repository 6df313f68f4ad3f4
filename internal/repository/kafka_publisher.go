package repository

import (
	"context"

	"TradeMind/internal/domain/models"
	drepo "TradeMind/internal/domain/repository"
	pkgkafka "TradeMind/pkg/kafka"
)

// KafkaDecisionPublisher writes decisions keyed by symbol so one symbol's
// decisions stay ordered on a partition.
type KafkaDecisionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ drepo.DecisionPublisher = (*KafkaDecisionPublisher)(nil)

func NewKafkaDecisionPublisher(producer *pkgkafka.Producer, topic string) *KafkaDecisionPublisher {
	return &KafkaDecisionPublisher{producer: producer, topic: topic}
}

func (p *KafkaDecisionPublisher) PublishDecision(ctx context.Context, d models.TradeDecision) error {
	return p.producer.Publish(ctx, p.topic, []byte(d.Symbol), d)
}

// Close leaves the shared producer open; the app closes it.
func (p *KafkaDecisionPublisher) Close() error { return nil }

// KafkaBarPublisher forwards feed bars to the bars topic.
type KafkaBarPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ drepo.BarPublisher = (*KafkaBarPublisher)(nil)

func NewKafkaBarPublisher(producer *pkgkafka.Producer, topic string) *KafkaBarPublisher {
	return &KafkaBarPublisher{producer: producer, topic: topic}
}

func (p *KafkaBarPublisher) PublishBars(ctx context.Context, bars []*models.Bar) error {
	msgs := make([]pkgkafka.Message, 0, len(bars))
	for _, b := range bars {
		if b == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(b.Symbol), Value: b})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaBarPublisher) Close() error { return nil }
