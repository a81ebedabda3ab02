package notify

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/gomail.v2"

	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/pkg/telemetry"
)

// EmailConfig holds SMTP connection details.
type EmailConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	To       []string
}

// Mailer is the part of *gomail.Dialer the sink uses.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

var _ Mailer = (*gomail.Dialer)(nil)

// Email sends a message to a fixed recipient list whenever a task reaches a
// terminal state. Other notices are ignored.
type Email struct {
	mailer Mailer
	from   string
	to     []string
}

// NewEmail creates an Email sink that dials cfg.Host for every message.
func NewEmail(cfg EmailConfig) *Email {
	return NewEmailWithMailer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, cfg.To)
}

func NewEmailWithMailer(m Mailer, from string, to []string) *Email {
	return &Email{mailer: m, from: from, to: to}
}

func (e *Email) Notify(ctx context.Context, n domain.Notice) error {
	if n.Kind != domain.NoticeChanged || !n.State.IsTerminal {
		return nil
	}
	ctx, span := telemetry.Tracer("notify").Start(ctx, "notify.email")
	defer span.End()

	if len(e.to) == 0 {
		err := errors.New("email sink has no recipients")
		span.RecordError(err)
		span.SetStatus(codes.Error, "no recipients")
		return err
	}
	span.SetAttributes(attribute.Int("email.recipients", len(e.to)))

	subject, body := EmailText(n)
	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", e.to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	// DialAndSend blocks on the network; run it aside so ctx still bounds us.
	done := make(chan error, 1)
	go func() { done <- e.mailer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "smtp send failed")
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		err := fmt.Errorf("email send timed out: %w", ctx.Err())
		span.RecordError(err)
		span.SetStatus(codes.Error, "timeout")
		return err
	}
}

// EmailText renders the subject and plain-text body for a completion notice.
func EmailText(n domain.Notice) (subject, body string) {
	subject = fmt.Sprintf("Task completed: %s", n.Key)
	body = fmt.Sprintf("Task %s in channel %s moved %s -> %s by %s at %s.\n",
		n.Key.MessageTS, n.Key.Channel, n.From, n.State.Name, n.Actor,
		n.At.UTC().Format("2006-01-02 15:04 MST"))
	if n.Task != nil && n.Task.Author != "" {
		body += fmt.Sprintf("Created by %s on %s.\n", n.Task.Author, n.Task.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return subject, body
}
