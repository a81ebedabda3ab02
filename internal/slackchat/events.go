package slackchat

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/krskas/slack-task-tracker/internal/domain"
)

// Handler consumes translated Slack events. Implementations own error
// handling; nothing is returned to the transport except a command reply.
type Handler interface {
	HandleReaction(ctx context.Context, ev domain.ReactionEvent)
	HandleMemberJoined(ctx context.Context, ev domain.MemberJoinedEvent)
	HandleCommand(ctx context.Context, cmd domain.Command) string
}

// Dispatch translates an Events API callback and hands it to h. It reports
// whether the inner event was one the tracker understands.
func Dispatch(ctx context.Context, h Handler, ev slackevents.EventsAPIEvent) bool {
	if ev.Type != slackevents.CallbackEvent {
		return false
	}
	id := ""
	if cb, ok := ev.Data.(*slackevents.EventsAPICallbackEvent); ok {
		id = cb.EventID
	}

	switch inner := ev.InnerEvent.Data.(type) {
	case *slackevents.ReactionAddedEvent:
		h.HandleReaction(ctx, reactionEvent(id, inner.Reaction, inner.User, inner.Item.Channel, inner.Item.Timestamp, inner.EventTimestamp, domain.Added))
	case *slackevents.ReactionRemovedEvent:
		h.HandleReaction(ctx, reactionEvent(id, inner.Reaction, inner.User, inner.Item.Channel, inner.Item.Timestamp, inner.EventTimestamp, domain.Removed))
	case *slackevents.MemberJoinedChannelEvent:
		h.HandleMemberJoined(ctx, domain.MemberJoinedEvent{
			ID:      id,
			User:    inner.User,
			Channel: inner.Channel,
			Inviter: inner.Inviter,
		})
	default:
		return false
	}
	return true
}

func reactionEvent(id, emoji, user, channel, ts, eventTS string, dir domain.Direction) domain.ReactionEvent {
	ev := domain.ReactionEvent{
		ID:        id,
		Emoji:     emoji,
		User:      user,
		Channel:   channel,
		MessageTS: ts,
		Direction: dir,
	}
	if at, ok := ParseTS(eventTS); ok {
		ev.At = at
	}
	return ev
}

// CommandFrom converts a parsed slash command.
func CommandFrom(sc slack.SlashCommand) domain.Command {
	return domain.Command{
		Name:        sc.Command,
		Text:        sc.Text,
		User:        sc.UserID,
		Channel:     sc.ChannelID,
		Team:        sc.TeamID,
		ResponseURL: sc.ResponseURL,
	}
}

// Responder delivers a slash command reply after the command was acked.
type Responder interface {
	Respond(ctx context.Context, cmd domain.Command, text string) error
}

// AnswerCommand runs cmd through h and delivers the reply via out. Slack
// only waits 3s for an ack, so transports ack first and call this aside.
func AnswerCommand(ctx context.Context, h Handler, out Responder, cmd domain.Command, logger *slog.Logger) {
	reply := h.HandleCommand(ctx, cmd)
	if reply == "" {
		return
	}
	if err := out.Respond(ctx, cmd, reply); err != nil {
		logger.Error("deliver command reply",
			slog.String("command", cmd.Name),
			slog.String("channel", cmd.Channel),
			slog.String("user", cmd.User),
			slog.String("error", err.Error()),
		)
	}
}
