// Package reconcile backfills tasks from channel history so that messages
// reacted to while the bot was away, or before it joined, are tracked.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/internal/store"
	"github.com/krskas/slack-task-tracker/pkg/telemetry"
)

const (
	DefaultLookback    = 90 * 24 * time.Hour
	DefaultMaxMessages = 1000
)

// History is the chat-platform read access a scan needs.
type History interface {
	// History returns up to max messages posted in channel since oldest.
	History(ctx context.Context, channel string, oldest time.Time, max int) ([]domain.ChatMessage, error)
	// MemberChannels lists the non-archived channels the bot belongs to.
	MemberChannels(ctx context.Context) ([]domain.Channel, error)
}

// StateLookup resolves reaction glyphs to states.
type StateLookup interface {
	ByEmoji(emoji string) (domain.TaskState, bool)
}

// Notifier receives a notice for every task a scan creates.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notice) error
}

// ScanResult summarises one channel scan.
type ScanResult struct {
	Channel        string `json:"channel"`
	Messages       int    `json:"messages"`
	Created        int    `json:"created"`
	AlreadyTracked int    `json:"already_tracked"`
	NotEntry       int    `json:"not_entry"`
}

// SweepResult summarises a scan over every member channel.
type SweepResult struct {
	Channels int          `json:"channels"`
	Failed   []string     `json:"failed,omitempty"`
	Scans    []ScanResult `json:"scans"`
}

// Created is the number of tasks created across all channels.
func (r SweepResult) Created() int {
	n := 0
	for _, s := range r.Scans {
		n += s.Created
	}
	return n
}

// Scanner replays channel history through the entry-state rule.
type Scanner struct {
	states      StateLookup
	tasks       store.TaskStore
	chat        History
	notifier    Notifier
	lookback    time.Duration
	maxMessages int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

func WithLookback(d time.Duration) Option   { return func(s *Scanner) { s.lookback = d } }
func WithMaxMessages(n int) Option          { return func(s *Scanner) { s.maxMessages = n } }
func WithLogger(l *slog.Logger) Option      { return func(s *Scanner) { s.logger = l } }
func WithNotifier(n Notifier) Option        { return func(s *Scanner) { s.notifier = n } }
func WithClock(now func() time.Time) Option { return func(s *Scanner) { s.now = now } }

func NewScanner(states StateLookup, tasks store.TaskStore, chat History, opts ...Option) *Scanner {
	s := &Scanner{
		states:      states,
		tasks:       tasks,
		chat:        chat,
		lookback:    DefaultLookback,
		maxMessages: DefaultMaxMessages,
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FirstState picks the state a history message would have been created in:
// among reactions that map to a known state, the one with the fewest
// reactors, ties broken by the platform's order (first added first).
func FirstState(states StateLookup, reactions []domain.Reaction) (domain.TaskState, bool) {
	type candidate struct {
		state domain.TaskState
		count int
	}
	var known []candidate
	for _, r := range reactions {
		if st, ok := states.ByEmoji(r.Name); ok {
			known = append(known, candidate{state: st, count: r.Count})
		}
	}
	if len(known) == 0 {
		return domain.TaskState{}, false
	}
	sort.SliceStable(known, func(i, j int) bool { return known[i].count < known[j].count })
	return known[0].state, true
}

// ScanChannel creates tasks for untracked history messages whose first state
// reaction is the entry state. Tracked messages are never touched.
func (s *Scanner) ScanChannel(ctx context.Context, channel string) (ScanResult, error) {
	ctx, span := telemetry.Tracer("reconcile").Start(ctx, "reconcile.scan_channel")
	defer span.End()
	span.SetAttributes(attribute.String("channel", channel))

	start := time.Now()
	defer func() { telemetry.ScanDurationSeconds.Observe(time.Since(start).Seconds()) }()

	res := ScanResult{Channel: channel}
	log := s.logger.With(slog.String("channel", channel))

	msgs, err := s.chat.History(ctx, channel, s.now().Add(-s.lookback), s.maxMessages)
	if err != nil {
		result := "error"
		if domain.IsNotInChannel(err) {
			result = "denied"
		}
		telemetry.ChannelScansTotal.WithLabelValues(result).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch history")
		return res, fmt.Errorf("fetch history for %s: %w", channel, err)
	}

	for _, m := range msgs {
		if m.TS == "" || m.User == "" || len(m.Reactions) == 0 {
			continue
		}
		res.Messages++

		if err := s.reconcileMessage(ctx, channel, m, &res); err != nil {
			telemetry.ChannelScansTotal.WithLabelValues("error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "reconcile message")
			return res, err
		}
	}

	telemetry.ChannelScansTotal.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("scan.created", res.Created))
	log.Info("channel scanned",
		slog.Int("messages", res.Messages),
		slog.Int("created", res.Created),
		slog.Int("already_tracked", res.AlreadyTracked),
	)
	return res, nil
}

func (s *Scanner) reconcileMessage(ctx context.Context, channel string, m domain.ChatMessage, res *ScanResult) error {
	key := domain.TaskKey{Channel: channel, MessageTS: m.TS}

	if _, err := s.tasks.Find(ctx, key); err == nil {
		res.AlreadyTracked++
		return nil
	} else if !domain.IsNotFound(err) {
		return fmt.Errorf("find task %s: %w", key, err)
	}

	st, ok := FirstState(s.states, m.Reactions)
	if !ok {
		return nil
	}
	if !st.IsEntry() {
		res.NotEntry++
		return nil
	}

	now := s.now()
	created, err := s.tasks.Create(ctx, &domain.Task{
		Channel:        channel,
		MessageTS:      m.TS,
		Author:         m.User,
		Status:         st.Name,
		CreatedAt:      now,
		StateChangedAt: now,
		StateChangedBy: m.User,
	})
	if err != nil {
		if domain.IsDuplicate(err) {
			res.AlreadyTracked++
			return nil
		}
		return fmt.Errorf("create task %s: %w", key, err)
	}
	res.Created++
	telemetry.TasksCreatedTotal.WithLabelValues(string(domain.OriginReconcile)).Inc()

	if s.notifier != nil {
		n := domain.Notice{
			Kind:   domain.NoticeCreated,
			Origin: domain.OriginReconcile,
			Key:    key,
			State:  st,
			Actor:  m.User,
			At:     now,
			Task:   created,
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("notification failed",
				slog.String("channel", channel),
				slog.String("message_ts", m.TS),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// ScanAllChannels scans every channel the bot is a member of. A failing
// channel is logged and skipped; only failing to list channels is an error.
func (s *Scanner) ScanAllChannels(ctx context.Context) (SweepResult, error) {
	ctx, span := telemetry.Tracer("reconcile").Start(ctx, "reconcile.scan_all")
	defer span.End()

	var res SweepResult
	channels, err := s.chat.MemberChannels(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list channels")
		return res, fmt.Errorf("list member channels: %w", err)
	}
	s.logger.Info("scanning member channels", slog.Int("channels", len(channels)))

	for _, ch := range channels {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Channels++
		scan, err := s.ScanChannel(ctx, ch.ID)
		if err != nil {
			res.Failed = append(res.Failed, ch.ID)
			s.logger.Error("channel scan failed",
				slog.String("channel", ch.ID),
				slog.String("channel_name", ch.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Scans = append(res.Scans, scan)
	}

	span.SetAttributes(
		attribute.Int("sweep.channels", res.Channels),
		attribute.Int("sweep.failed", len(res.Failed)),
	)
	s.logger.Info("history sweep complete",
		slog.Int("channels", res.Channels),
		slog.Int("failed", len(res.Failed)),
		slog.Int("created", res.Created()),
	)
	return res, nil
}
