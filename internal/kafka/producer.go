package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Producer publishes messages to Kafka.
type Producer interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

type producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer for brokers. Messages with the same key go
// to the same partition, which keeps one task's lifecycle events ordered.
func NewProducer(brokers []string) Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{}, // key -> partition, stable per task
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond, // default 1s is too slow for chat replies
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		// Local and test brokers start empty; production topics are
		// provisioned ahead of time.
		AllowAutoTopicCreation: true,
	}
	return &producer{writer: w}
}

// Publish writes one message keyed by key. The active trace context travels
// in the headers so the consumer side can pick the trace up again.
func (p *producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	headers := HeaderCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header(headers),
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	return nil
}

func (p *producer) Close() error {
	return p.writer.Close()
}
