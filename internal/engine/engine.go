package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/internal/store"
	"github.com/krskas/slack-task-tracker/pkg/telemetry"
)

// Notifier receives lifecycle notices. Delivery failures never undo a
// mutation.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notice) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.Notice) error { return nil }

// Engine applies reaction events to the task store.
type Engine struct {
	catalog  Catalog
	tasks    store.TaskStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithNotifier(n Notifier) Option        { return func(e *Engine) { e.notifier = n } }
func WithLogger(l *slog.Logger) Option      { return func(e *Engine) { e.logger = l } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New constructs an Engine.
func New(cat Catalog, tasks store.TaskStore, opts ...Option) *Engine {
	e := &Engine{
		catalog:  cat,
		tasks:    tasks,
		notifier: nopNotifier{},
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle decides and applies ev. The returned error is a store failure;
// races that leave nothing to do (the task was created or deleted by someone
// else in between) come back as ActionNone.
func (e *Engine) Handle(ctx context.Context, ev domain.ReactionEvent) (Decision, error) {
	if ev.At.IsZero() {
		ev.At = e.now()
	}

	ctx, span := telemetry.Tracer("engine").Start(ctx, "engine.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.key", ev.Key().String()),
		attribute.String("reaction.emoji", ev.Emoji),
		attribute.String("reaction.direction", string(ev.Direction)),
	)

	d, err := e.handle(ctx, ev)
	span.SetAttributes(attribute.String("decision.action", string(d.Action)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply decision")
		return d, err
	}
	telemetry.DecisionsTotal.WithLabelValues(string(ev.Direction), string(d.Action)).Inc()
	return d, nil
}

func (e *Engine) handle(ctx context.Context, ev domain.ReactionEvent) (Decision, error) {
	// Unknown emoji are by far the most common reaction; skip the store.
	if _, ok := e.catalog.ByEmoji(ev.Emoji); !ok {
		return Decide(e.catalog, nil, ev), nil
	}

	existing, err := e.tasks.Find(ctx, ev.Key())
	if err != nil {
		if !domain.IsNotFound(err) {
			return Decision{Action: ActionNone, Key: ev.Key()}, fmt.Errorf("find task: %w", err)
		}
		existing = nil
	}

	d := Decide(e.catalog, existing, ev)
	log := e.logger.With(
		slog.String("channel", ev.Channel),
		slog.String("message_ts", ev.MessageTS),
		slog.String("emoji", ev.Emoji),
		slog.String("user", ev.User),
		slog.String("direction", string(ev.Direction)),
	)

	switch d.Action {
	case ActionNone:
		log.Debug("reaction ignored", slog.String("reason", d.Reason))
		return d, nil

	case ActionCreate:
		created, err := e.tasks.Create(ctx, d.NewTask())
		if err != nil {
			if domain.IsDuplicate(err) {
				log.Debug("task created concurrently, keeping existing")
				return raced(d, ReasonAlreadyTracked), nil
			}
			return d, fmt.Errorf("create task: %w", err)
		}
		telemetry.TasksCreatedTotal.WithLabelValues(string(domain.OriginLive)).Inc()
		log.Info("task created", slog.Int64("task_id", created.ID), slog.String("status", d.State.Name))
		e.notify(ctx, log, d, created)

	case ActionTransition, ActionRevert:
		if err := e.tasks.UpdateStatus(ctx, d.Change()); err != nil {
			if domain.IsNotFound(err) {
				return raced(d, ReasonAlreadyGone), nil
			}
			return d, fmt.Errorf("update task status: %w", err)
		}
		log.Info("task status changed",
			slog.String("from", d.From),
			slog.String("to", d.State.Name),
			slog.String("action", string(d.Action)),
		)
		e.notify(ctx, log, d, nil)

	case ActionDelete:
		if err := e.tasks.Delete(ctx, d.Key); err != nil {
			if domain.IsNotFound(err) {
				return raced(d, ReasonAlreadyGone), nil
			}
			return d, fmt.Errorf("delete task: %w", err)
		}
		log.Info("task deleted")
		e.notify(ctx, log, d, nil)

	case ActionReject:
		telemetry.RejectedTransitionsTotal.WithLabelValues(d.From, d.State.Name).Inc()
		trace.SpanFromContext(ctx).RecordError(&domain.InvalidTransitionError{Key: d.Key, From: d.From, To: d.State.Name})
		log.Info("transition rejected", slog.String("from", d.From), slog.String("to", d.State.Name))
		e.notify(ctx, log, d, nil)
	}
	return d, nil
}

func raced(d Decision, reason string) Decision {
	d.Action = ActionNone
	d.Reason = reason
	return d
}

func (e *Engine) notify(ctx context.Context, log *slog.Logger, d Decision, task *domain.Task) {
	n, ok := d.notice()
	if !ok {
		return
	}
	n.Task = task
	if err := e.notifier.Notify(ctx, n); err != nil {
		log.Warn("notification failed",
			slog.String("kind", string(n.Kind)),
			slog.String("error", err.Error()),
		)
	}
}
