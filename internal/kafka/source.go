package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/krskas/slack-task-tracker/internal/domain"
)

// Inbound envelope types.
const (
	TypeReaction     = "reaction"
	TypeMemberJoined = "member_joined"
)

// Envelope is one inbound chat event relayed through Kafka, for deployments
// where a gateway receives Slack traffic and the tracker only consumes.
type Envelope struct {
	Type         string                    `json:"type"`
	Reaction     *domain.ReactionEvent     `json:"reaction,omitempty"`
	MemberJoined *domain.MemberJoinedEvent `json:"member_joined,omitempty"`
}

// EventHandler consumes relayed events.
type EventHandler interface {
	HandleReaction(ctx context.Context, ev domain.ReactionEvent)
	HandleMemberJoined(ctx context.Context, ev domain.MemberJoinedEvent)
}

// Source feeds relayed events to a handler.
type Source struct {
	consumer Consumer
	logger   *slog.Logger
}

func NewSource(consumer Consumer, logger *slog.Logger) *Source {
	return &Source{consumer: consumer, logger: logger}
}

// Run blocks until ctx is cancelled. The handler owns failure reporting, so
// every record is committed once handed over; a malformed record is logged
// and committed too.
func (s *Source) Run(ctx context.Context, h EventHandler) error {
	return s.consumer.Subscribe(ctx, func(ctx context.Context, msg Message) error {
		var env Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			s.logger.Error("malformed inbound event, discarding",
				slog.String("error", err.Error()),
				slog.Int64("offset", msg.Offset),
			)
			return nil
		}
		switch {
		case env.Type == TypeReaction && env.Reaction != nil:
			h.HandleReaction(ctx, *env.Reaction)
		case env.Type == TypeMemberJoined && env.MemberJoined != nil:
			h.HandleMemberJoined(ctx, *env.MemberJoined)
		default:
			s.logger.Warn("unknown inbound event type, discarding",
				slog.String("type", env.Type),
				slog.Int64("offset", msg.Offset),
			)
		}
		return nil
	})
}
