package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/krskas/slack-task-tracker/internal/domain"
)

// TelegramSender is the part of *tgbotapi.BotAPI the mirror uses.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

var _ TelegramSender = (*tgbotapi.BotAPI)(nil)

// Telegram mirrors lifecycle notices into one chat. Rejections are not
// mirrored; they only matter to the person who reacted.
type Telegram struct {
	bot    TelegramSender
	chatID int64
}

// NewTelegramBot connects to the Bot API with token.
func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return bot, nil
}

func NewTelegram(bot TelegramSender, chatID int64) *Telegram {
	return &Telegram{bot: bot, chatID: chatID}
}

func (t *Telegram) Notify(_ context.Context, n domain.Notice) error {
	text := TelegramText(n)
	if text == "" {
		return nil
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// TelegramText renders a notice as plain text.
func TelegramText(n domain.Notice) string {
	task := n.Key.String()
	switch n.Kind {
	case domain.NoticeCreated:
		if n.Origin == domain.OriginReconcile {
			return fmt.Sprintf("Task %s backfilled from history as %s", task, n.State.Name)
		}
		return fmt.Sprintf("Task %s created by %s as %s", task, n.Actor, n.State.Name)
	case domain.NoticeChanged:
		if n.State.IsTerminal {
			return fmt.Sprintf("Task %s completed (%s) by %s", task, n.State.Name, n.Actor)
		}
		return fmt.Sprintf("Task %s moved %s -> %s by %s", task, n.From, n.State.Name, n.Actor)
	case domain.NoticeReverted:
		return fmt.Sprintf("Task %s reverted %s -> %s by %s", task, n.From, n.State.Name, n.Actor)
	case domain.NoticeDeleted:
		return fmt.Sprintf("Task %s deleted by %s", task, n.Actor)
	}
	return ""
}
