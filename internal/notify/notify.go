// Package notify delivers task lifecycle notices to Slack threads and to
// the optional mirrors (Kafka, webhook, Telegram, email).
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/pkg/telemetry"
)

// Notifier delivers one notice.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notice) error
}

// Sink is a named Notifier, the name labels failure metrics.
type Sink struct {
	Name     string
	Notifier Notifier
}

// Multi fans a notice out to every sink. A failing sink does not stop the
// others.
type Multi struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{sinks: sinks, logger: logger}
}

// Add registers another sink. Not safe for use after delivery has started.
func (m *Multi) Add(name string, n Notifier) {
	m.sinks = append(m.sinks, Sink{Name: name, Notifier: n})
}

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Notify(ctx context.Context, n domain.Notice) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notifier.Notify(ctx, n); err != nil {
			telemetry.NotificationFailuresTotal.WithLabelValues(s.Name).Inc()
			m.logger.Warn("notification sink failed",
				slog.String("sink", s.Name),
				slog.String("kind", string(n.Kind)),
				slog.String("task", n.Key.String()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
