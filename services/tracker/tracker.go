// Package tracker is the long-running service: it receives chat events from
// any transport, isolates each one, and routes it to the transition engine,
// the reconciliation scanner or the command service.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/krskas/slack-task-tracker/internal/commands"
	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/internal/engine"
	"github.com/krskas/slack-task-tracker/internal/reconcile"
	redisstore "github.com/krskas/slack-task-tracker/internal/redis"
	"github.com/krskas/slack-task-tracker/internal/slackchat"
	"github.com/krskas/slack-task-tracker/pkg/telemetry"
)

// User-visible replies.
const (
	InviteText        = "⚠️ I need to be invited to this channel first. Please use `/invite @Task Tracker`"
	ReactionErrorText = "⚠️ An error occurred while processing the reaction. Please try again or contact an administrator."
	TasksErrorText    = "⚠️ An error occurred while fetching tasks. Please try again or contact an administrator."
	StatesErrorText   = "⚠️ An error occurred while fetching task states. Please try again or contact an administrator."
	RateLimitedText   = "⏳ You're sending commands too quickly. Please wait a moment and try again."
)

const (
	kindReaction     = "reaction"
	kindMemberJoined = "member_joined"
)

// Engine applies one reaction to the task store.
type Engine interface {
	Handle(ctx context.Context, ev domain.ReactionEvent) (engine.Decision, error)
}

// Scanner backfills tasks for one channel.
type Scanner interface {
	ScanChannel(ctx context.Context, channel string) (reconcile.ScanResult, error)
}

// Chat is the slice of the chat platform the tracker talks to directly.
type Chat interface {
	Identity(ctx context.Context) (slackchat.Identity, error)
	CheckAccess(ctx context.Context, channel string) error
	PostThread(ctx context.Context, channel, ts, text string) error
}

// Catalog resolves reaction emoji.
type Catalog interface {
	ByEmoji(emoji string) (domain.TaskState, bool)
}

// Replier answers slash commands.
type Replier interface {
	Reply(ctx context.Context, cmd domain.Command) (string, error)
}

// Tracker implements slackchat.Handler.
type Tracker struct {
	catalog Catalog
	engine  Engine
	scanner Scanner
	chat    Chat
	replier Replier

	deduper redisstore.Deduper
	limiter redisstore.RateLimiter
	timeout time.Duration
	logger  *slog.Logger
}

var _ slackchat.Handler = (*Tracker)(nil)

// Option configures a Tracker.
type Option func(*Tracker)

func WithDeduper(d redisstore.Deduper) Option         { return func(t *Tracker) { t.deduper = d } }
func WithRateLimiter(l redisstore.RateLimiter) Option { return func(t *Tracker) { t.limiter = l } }
func WithEventTimeout(d time.Duration) Option         { return func(t *Tracker) { t.timeout = d } }
func WithLogger(l *slog.Logger) Option                { return func(t *Tracker) { t.logger = l } }

func New(cat Catalog, eng Engine, scanner Scanner, chat Chat, replier Replier, opts ...Option) *Tracker {
	t := &Tracker{
		catalog: cat,
		engine:  eng,
		scanner: scanner,
		chat:    chat,
		replier: replier,
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// HandleReaction processes one reaction added/removed event. Failures are
// logged and, where the user can act on them, answered in the thread.
func (t *Tracker) HandleReaction(ctx context.Context, ev domain.ReactionEvent) {
	start := time.Now()
	outcome := "error"
	defer func() {
		telemetry.EventsTotal.WithLabelValues(kindReaction, outcome).Inc()
		telemetry.EventDurationSeconds.WithLabelValues(kindReaction).Observe(time.Since(start).Seconds())
	}()

	log := t.logger.With(
		slog.String("channel", ev.Channel),
		slog.String("message_ts", ev.MessageTS),
		slog.String("emoji", ev.Emoji),
		slog.String("user", ev.User),
		slog.String("direction", string(ev.Direction)),
	)
	defer t.isolate(log, kindReaction)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if t.duplicate(ctx, log, ev.ID) {
		outcome = "duplicate"
		return
	}
	if _, ok := t.catalog.ByEmoji(ev.Emoji); !ok {
		log.Debug("reaction ignored", slog.String("reason", engine.ReasonUnknownEmoji))
		outcome = string(engine.ActionNone)
		return
	}

	if err := t.chat.CheckAccess(ctx, ev.Channel); err != nil {
		if domain.IsNotInChannel(err) {
			log.Warn("no access to channel", slog.String("error", err.Error()))
			outcome = "no_access"
			t.reply(ctx, log, ev.Channel, ev.MessageTS, InviteText)
			return
		}
		log.Error("channel access check failed", slog.String("error", err.Error()))
		t.reply(ctx, log, ev.Channel, ev.MessageTS, ReactionErrorText)
		return
	}

	d, err := t.engine.Handle(ctx, ev)
	if err != nil {
		log.Error("reaction handling failed",
			slog.String("action", string(d.Action)),
			slog.String("error", err.Error()),
		)
		t.reply(ctx, log, ev.Channel, ev.MessageTS, ReactionErrorText)
		return
	}
	outcome = string(d.Action)
}

// HandleMemberJoined scans the channel when the member who joined is the bot
// itself; other joins are ignored.
func (t *Tracker) HandleMemberJoined(ctx context.Context, ev domain.MemberJoinedEvent) {
	start := time.Now()
	outcome := "error"
	defer func() {
		telemetry.EventsTotal.WithLabelValues(kindMemberJoined, outcome).Inc()
		telemetry.EventDurationSeconds.WithLabelValues(kindMemberJoined).Observe(time.Since(start).Seconds())
	}()

	log := t.logger.With(slog.String("channel", ev.Channel), slog.String("user", ev.User))
	defer t.isolate(log, kindMemberJoined)

	if t.duplicate(ctx, log, ev.ID) {
		outcome = "duplicate"
		return
	}

	id, err := t.chat.Identity(ctx)
	if err != nil {
		log.Error("resolve bot identity", slog.String("error", err.Error()))
		return
	}
	if ev.User != id.UserID {
		outcome = "ignored"
		return
	}

	ctx, span := telemetry.Tracer("tracker").Start(ctx, "tracker.join_scan")
	defer span.End()
	span.SetAttributes(attribute.String("channel", ev.Channel))

	log.Info("joined channel, scanning history")
	res, err := t.scanner.ScanChannel(ctx, ev.Channel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan channel")
		log.Error("join scan failed", slog.String("error", err.Error()))
		return
	}
	outcome = "scanned"
	log.Info("join scan complete",
		slog.Int("messages", res.Messages),
		slog.Int("created", res.Created),
	)
}

// HandleCommand answers a slash command. The returned text is shown only to
// the caller.
func (t *Tracker) HandleCommand(ctx context.Context, cmd domain.Command) (reply string) {
	result := "error"
	defer func() {
		telemetry.CommandsTotal.WithLabelValues(cmd.Name, result).Inc()
	}()

	log := t.logger.With(
		slog.String("command", cmd.Name),
		slog.String("channel", cmd.Channel),
		slog.String("user", cmd.User),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic handling command", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			reply = errorText(cmd.Name)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if t.limiter != nil {
		allowed, err := t.limiter.Allow(ctx, "command:"+cmd.User)
		if err != nil {
			log.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		} else if !allowed {
			telemetry.CommandsRateLimitedTotal.Inc()
			result = "rate_limited"
			return RateLimitedText
		}
	}

	if err := t.chat.CheckAccess(ctx, cmd.Channel); err != nil {
		if domain.IsNotInChannel(err) {
			result = "no_access"
			return InviteText
		}
		log.Error("channel access check failed", slog.String("error", err.Error()))
		return errorText(cmd.Name)
	}

	text, err := t.replier.Reply(ctx, cmd)
	if err != nil {
		log.Error("command failed", slog.String("error", err.Error()))
		return errorText(cmd.Name)
	}
	result = "ok"
	return text
}

func (t *Tracker) duplicate(ctx context.Context, log *slog.Logger, id string) bool {
	if t.deduper == nil || id == "" {
		return false
	}
	seen, err := t.deduper.Seen(ctx, id)
	if err != nil {
		log.Warn("event dedup unavailable", slog.String("event_id", id), slog.String("error", err.Error()))
		return false
	}
	if seen {
		telemetry.EventsDeduplicatedTotal.Inc()
		log.Debug("duplicate delivery dropped", slog.String("event_id", id))
	}
	return seen
}

func (t *Tracker) reply(ctx context.Context, log *slog.Logger, channel, ts, text string) {
	if err := t.chat.PostThread(ctx, channel, ts, text); err != nil {
		log.Error("post thread reply", slog.String("error", err.Error()))
	}
}

// isolate keeps a panic in one event from taking down the process.
func (t *Tracker) isolate(log *slog.Logger, kind string) {
	if r := recover(); r != nil {
		log.Error("panic handling event",
			slog.String("kind", kind),
			slog.String("panic", fmt.Sprint(r)),
			slog.String("stack", string(debug.Stack())),
		)
	}
}

func errorText(command string) string {
	if command == commands.CommandStates {
		return StatesErrorText
	}
	return TasksErrorText
}
