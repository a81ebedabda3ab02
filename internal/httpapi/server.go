// Package httpapi serves the Slack Events API and slash-command endpoints
// plus a token-protected JSON query API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.opentelemetry.io/otel/attribute"

	"github.com/krskas/slack-task-tracker/internal/commands"
	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/internal/reconcile"
	"github.com/krskas/slack-task-tracker/internal/slackchat"
	"github.com/krskas/slack-task-tracker/internal/store"
	"github.com/krskas/slack-task-tracker/pkg/telemetry"
)

const maxBody = 1 << 20

// Queries is the read surface behind the API.
type Queries interface {
	ActiveTasks(ctx context.Context) ([]commands.ActiveTask, error)
	States() []domain.TaskState
}

// Scanner runs a reconciliation scan of one channel.
type Scanner interface {
	ScanChannel(ctx context.Context, channel string) (reconcile.ScanResult, error)
}

// Reloader re-reads the state catalog from storage.
type Reloader interface {
	ReloadCatalog(ctx context.Context) error
}

// Reporter renders the active task report.
type Reporter interface {
	ActiveTasks(w io.Writer, rows []commands.ActiveTask, states []domain.TaskState, generatedAt time.Time) error
}

// Config carries the server's secrets and readiness check.
type Config struct {
	SigningSecret string
	JWTSecret     string
	// EventTimeout bounds handling of one Events API callback.
	EventTimeout time.Duration
	Ready        telemetry.ReadyFunc
	// Responder delivers slash command replies after the ack.
	Responder slackchat.Responder
}

// Server routes HTTP traffic to the tracker.
type Server struct {
	cfg      Config
	events   slackchat.Handler
	tasks    store.TaskStore
	queries  Queries
	scanner  Scanner
	reloader Reloader
	reporter Reporter
	logger   *slog.Logger

	// callbacks are acked before they are handled; inflight tracks them so
	// shutdown can drain.
	inflight sync.WaitGroup
}

func NewServer(cfg Config, events slackchat.Handler, tasks store.TaskStore, queries Queries,
	scanner Scanner, reloader Reloader, reporter Reporter, logger *slog.Logger) *Server {
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 30 * time.Second
	}
	return &Server{
		cfg:      cfg,
		events:   events,
		tasks:    tasks,
		queries:  queries,
		scanner:  scanner,
		reloader: reloader,
		reporter: reporter,
		logger:   logger,
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(RequestLogger(s.logger))
	r.Use(MaxBodySize(maxBody))

	r.Get("/healthz", s.Healthz)
	r.Get("/readyz", telemetry.ReadyHandler(s.cfg.Ready))

	if s.events != nil {
		r.Group(func(r chi.Router) {
			r.Use(VerifySlack(s.cfg.SigningSecret, s.logger))
			r.Post("/slack/events", s.SlackEvents)
			r.Post("/slack/commands", s.SlackCommands)
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireToken(s.cfg.JWTSecret))
		r.Get("/tasks", s.ListTasks)
		r.Get("/tasks/{channel}/{ts}", s.GetTask)
		r.Get("/states", s.ListStates)
		r.Post("/states/reload", s.ReloadStates)
		r.Post("/channels/{channel}/scan", s.ScanChannel)
		r.Get("/reports/active.pdf", s.ActiveReport)
	})
	return r
}

// Wait blocks until every acknowledged callback has been handled.
func (s *Server) Wait() { s.inflight.Wait() }

// SlackEvents handles POST /slack/events.
func (s *Server) SlackEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event")
		return
	}

	switch ev.Type {
	case slackevents.URLVerification:
		var ch slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &ch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid challenge")
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(ch.Challenge))
		return

	case slackevents.CallbackEvent:
		w.WriteHeader(http.StatusOK)
		s.inflight.Add(1)
		base := context.WithoutCancel(r.Context())
		go func() {
			defer s.inflight.Done()
			ctx, cancel := context.WithTimeout(base, s.cfg.EventTimeout)
			defer cancel()
			if !slackchat.Dispatch(ctx, s.events, ev) {
				s.logger.Debug("ignoring events api event", slog.String("inner_type", ev.InnerEvent.Type))
			}
		}()
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SlackCommands handles POST /slack/commands.
func (s *Server) SlackCommands(w http.ResponseWriter, r *http.Request) {
	sc, err := slack.SlashCommandParse(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid command")
		return
	}
	cmd := slackchat.CommandFrom(sc)

	// Empty 200 inside Slack's 3s window; the reply goes to response_url.
	w.WriteHeader(http.StatusOK)
	s.inflight.Add(1)
	base := context.WithoutCancel(r.Context())
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(base, s.cfg.EventTimeout)
		defer cancel()
		slackchat.AnswerCommand(ctx, s.events, s.cfg.Responder, cmd, s.logger)
	}()
}

// ListTasks handles GET /api/v1/tasks. Without ?status it returns the active
// listing with message text; with ?status=a,b it returns raw tasks.
func (s *Server) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer("httpapi").Start(r.Context(), "httpapi.list_tasks")
	defer span.End()

	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		rows, err := s.queries.ActiveTasks(ctx)
		if err != nil {
			s.logger.Error("list active tasks", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to list tasks")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": rows})
		return
	}

	limit := store.DefaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	statuses := domain.SplitTransitions(raw)
	span.SetAttributes(attribute.StringSlice("task.statuses", statuses))

	tasks, err := s.tasks.ListByStatus(ctx, statuses, limit)
	if err != nil {
		s.logger.Error("list tasks by status", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// GetTask handles GET /api/v1/tasks/{channel}/{ts}.
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	key := domain.TaskKey{Channel: chi.URLParam(r, "channel"), MessageTS: chi.URLParam(r, "ts")}
	task, err := s.tasks.Find(r.Context(), key)
	if err != nil {
		if domain.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		s.logger.Error("find task", slog.String("task", key.String()), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ListStates handles GET /api/v1/states.
func (s *Server) ListStates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"states": s.queries.States()})
}

// ReloadStates handles POST /api/v1/states/reload.
func (s *Server) ReloadStates(w http.ResponseWriter, r *http.Request) {
	if err := s.reloader.ReloadCatalog(r.Context()); err != nil {
		var invalid *domain.InvalidCatalogError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusUnprocessableEntity, invalid.Error())
			return
		}
		s.logger.Error("reload catalog", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to reload states")
		return
	}
	s.logger.Info("catalog reloaded", slog.String("by", Subject(r.Context())))
	writeJSON(w, http.StatusOK, map[string]any{"states": s.queries.States()})
}

// ScanChannel handles POST /api/v1/channels/{channel}/scan.
func (s *Server) ScanChannel(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	res, err := s.scanner.ScanChannel(r.Context(), channel)
	if err != nil {
		if domain.IsNotInChannel(err) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("manual scan", slog.String("channel", channel), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "scan failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ActiveReport handles GET /api/v1/reports/active.pdf.
func (s *Server) ActiveReport(w http.ResponseWriter, r *http.Request) {
	rows, err := s.queries.ActiveTasks(r.Context())
	if err != nil {
		s.logger.Error("report tasks", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	var buf bytes.Buffer
	if err := s.reporter.ActiveTasks(&buf, rows, s.queries.States(), time.Now()); err != nil {
		s.logger.Error("render report", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="active-tasks.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Healthz handles GET /healthz.
func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
