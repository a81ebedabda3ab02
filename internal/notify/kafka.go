package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/internal/kafka"
)

// LifecycleEvent is the JSON record published for every notice.
type LifecycleEvent struct {
	ID        string            `json:"id"`
	Kind      domain.NoticeKind `json:"kind"`
	Origin    domain.Origin     `json:"origin"`
	Channel   string            `json:"channel"`
	MessageTS string            `json:"message_ts"`
	Status    string            `json:"status"`
	From      string            `json:"from,omitempty"`
	Terminal  bool              `json:"terminal"`
	Actor     string            `json:"actor"`
	At        time.Time         `json:"at"`
	Task      *domain.Task      `json:"task,omitempty"`
}

// NewLifecycleEvent flattens a notice into its published form.
func NewLifecycleEvent(n domain.Notice) LifecycleEvent {
	return LifecycleEvent{
		ID:        uuid.New().String(),
		Kind:      n.Kind,
		Origin:    n.Origin,
		Channel:   n.Key.Channel,
		MessageTS: n.Key.MessageTS,
		Status:    n.State.Name,
		From:      n.From,
		Terminal:  n.State.IsTerminal,
		Actor:     n.Actor,
		At:        n.At,
		Task:      n.Task,
	}
}

// Kafka publishes lifecycle events keyed by task so all events for one
// message land on one partition in order.
type Kafka struct {
	producer kafka.Producer
	topic    string
}

func NewKafka(producer kafka.Producer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

func (k *Kafka) Notify(ctx context.Context, n domain.Notice) error {
	payload, err := json.Marshal(NewLifecycleEvent(n))
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}
	return k.producer.Publish(ctx, k.topic, n.Key.String(), payload)
}
