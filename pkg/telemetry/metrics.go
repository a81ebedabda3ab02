package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Events ──────────────────────────────────────────────────────────────────

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reactiontasks",
		Subsystem: "events",
		Name:      "received_total",
		Help:      "Inbound chat events, labelled by kind and outcome.",
	}, []string{"kind", "outcome"})

	EventDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reactiontasks",
		Subsystem: "events",
		Name:      "duration_seconds",
		Help:      "Time spent handling one inbound event.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"kind"})

	EventsDeduplicatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reactiontasks",
		Subsystem: "events",
		Name:      "deduplicated_total",
		Help:      "Redelivered events dropped by the delivery deduper.",
	})

	// ─── State machine ───────────────────────────────────────────────────────────

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reactiontasks",
		Subsystem: "engine",
		Name:      "decisions_total",
		Help:      "Transition engine decisions, labelled by reaction direction and action.",
	}, []string{"direction", "action"})

	RejectedTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reactiontasks",
		Subsystem: "engine",
		Name:      "rejected_transitions_total",
		Help:      "Reactions whose target state is not reachable from the current state.",
	}, []string{"from", "to"})

	TasksCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reactiontasks",
		Subsystem: "engine",
		Name:      "tasks_created_total",
		Help:      "Tasks created, labelled by origin (live or reconcile).",
	}, []string{"origin"})

	// ─── Reconciliation ──────────────────────────────────────────────────────────

	ChannelScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reactiontasks",
		Subsystem: "reconcile",
		Name:      "channel_scans_total",
		Help:      "Channel history scans, labelled by result.",
	}, []string{"result"})

	ScanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reactiontasks",
		Subsystem: "reconcile",
		Name:      "channel_scan_duration_seconds",
		Help:      "Time spent scanning one channel's history.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	// ─── Outbound ────────────────────────────────────────────────────────────────

	NotificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reactiontasks",
		Subsystem: "notify",
		Name:      "failures_total",
		Help:      "Notifications that could not be delivered, labelled by sink.",
	}, []string{"sink"})

	// ─── Commands ────────────────────────────────────────────────────────────────

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reactiontasks",
		Subsystem: "commands",
		Name:      "invocations_total",
		Help:      "Slash command invocations, labelled by command and result.",
	}, []string{"command", "result"})

	CommandsRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reactiontasks",
		Subsystem: "commands",
		Name:      "rate_limited_total",
		Help:      "Slash commands refused by the per-user rate limiter.",
	})
)
