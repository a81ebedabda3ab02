package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Message is a fetched Kafka record.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Offset  int64
	Headers []kafka.Header
}

// HandlerFunc processes one message. A nil return commits the offset; an
// error leaves it uncommitted so the record is redelivered after a restart.
type HandlerFunc func(ctx context.Context, msg Message) error

// Consumer reads one topic as part of a consumer group.
type Consumer interface {
	Subscribe(ctx context.Context, handler HandlerFunc) error
	Close() error
}

type consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewConsumer joins groupID on topic. A new group starts from the oldest
// retained record so relayed reactions published before the first deploy are
// not skipped.
func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger) Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1e6, // reaction envelopes are small
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0, // commits happen in Subscribe, never in the background
		StartOffset:    kafka.FirstOffset,
	})
	return &consumer{reader: r, logger: logger}
}

// Subscribe blocks until ctx is cancelled or fetching fails. Offsets are
// committed only after handler succeeds, so delivery is at-least-once and
// handlers must tolerate the same event twice. The tracker dedups by event
// ID when Redis is configured.
func (c *consumer) Subscribe(ctx context.Context, handler HandlerFunc) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil // shutdown
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		// The relay injects its trace context into the headers; continue that
		// trace so one reaction shows up as a single trace end to end.
		carrier := HeaderCarrier(m.Headers)
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, &carrier)

		msg := Message{Topic: m.Topic, Key: m.Key, Value: m.Value, Offset: m.Offset, Headers: m.Headers}
		if err := handler(msgCtx, msg); err != nil {
			// Leave the offset where it is. The group redelivers from the last
			// commit after a restart or rebalance.
			c.logger.Error("message handler failed, offset not committed",
				slog.String("topic", m.Topic),
				slog.Int64("offset", m.Offset),
				slog.String("error", err.Error()),
			)
			continue
		}

		// A failed commit only widens the redelivery window.
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error("failed to commit kafka offset",
				slog.String("topic", m.Topic),
				slog.Int64("offset", m.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (c *consumer) Close() error {
	return c.reader.Close()
}
