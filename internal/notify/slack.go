package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/internal/slackchat"
)

const quoteLimit = 50

// Chat is what the Slack sink needs from the chat client.
type Chat interface {
	Identity(ctx context.Context) (slackchat.Identity, error)
	Message(ctx context.Context, channel, ts string) (domain.ChatMessage, error)
	PostThread(ctx context.Context, channel, ts, text string) error
}

var _ Chat = (*slackchat.Client)(nil)

// Slack replies in the thread of the task's message. Notices from history
// scans are not posted; backfilled tasks would otherwise flood old threads.
type Slack struct {
	chat   Chat
	logger *slog.Logger
}

func NewSlack(chat Chat, logger *slog.Logger) *Slack {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slack{chat: chat, logger: logger}
}

func (s *Slack) Notify(ctx context.Context, n domain.Notice) error {
	if n.Origin == domain.OriginReconcile {
		return nil
	}

	var text string
	if n.Kind == domain.NoticeCreated {
		quoted, link := "", ""
		if msg, err := s.chat.Message(ctx, n.Key.Channel, n.Key.MessageTS); err == nil {
			quoted = msg.Text
		} else {
			s.logger.Debug("source message unavailable", slog.String("task", n.Key.String()), slog.String("error", err.Error()))
		}
		if id, err := s.chat.Identity(ctx); err == nil {
			link = slackchat.JumpLink(id.TeamID, n.Key.Channel, n.Key.MessageTS)
		}
		text = CreatedText(n, quoted, link)
	} else {
		text = Text(n)
	}
	if text == "" {
		return nil
	}
	return s.chat.PostThread(ctx, n.Key.Channel, n.Key.MessageTS, text)
}

// CreatedText is the thread reply for a new task.
func CreatedText(n domain.Notice, source, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task created by <@%s> with status *%s*", n.Actor, n.State.Name)
	if source != "" {
		b.WriteString("\n>")
		b.WriteString(Truncate(source, quoteLimit))
	}
	if link != "" {
		fmt.Fprintf(&b, "\n<%s|Jump to task>", link)
	}
	return b.String()
}

// Text is the thread reply for every notice kind except creation.
func Text(n domain.Notice) string {
	switch n.Kind {
	case domain.NoticeChanged:
		return fmt.Sprintf("Task status changed to *%s* by <@%s>", n.State.Name, n.Actor)
	case domain.NoticeReverted:
		return fmt.Sprintf("Task reverted to *%s* by <@%s>", n.State.Name, n.Actor)
	case domain.NoticeDeleted:
		return fmt.Sprintf("Task deleted by <@%s>", n.Actor)
	case domain.NoticeRejected:
		return fmt.Sprintf("⚠️ <@%s> cannot move this task from *%s* to *%s*.", n.Actor, n.From, n.State.Name)
	case domain.NoticeCreated:
		return CreatedText(n, "", "")
	}
	return ""
}

// Truncate shortens s to limit runes, the last three being "...".
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
