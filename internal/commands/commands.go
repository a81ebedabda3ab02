// Package commands renders the read-only query surface: active tasks and the
// configured states. Nothing here changes task state.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/internal/slackchat"
	"github.com/krskas/slack-task-tracker/internal/store"
)

// Slash command names.
const (
	CommandTasks  = "/tasks"
	CommandStates = "/task_states"
)

const (
	inaccessibleText = "(message not accessible)"
	noActiveText     = "No active tasks."
	fetchWorkers     = 8
	dateLayout       = "2006-01-02 15:04 MST"
)

// Catalog is the read side of the state catalog.
type Catalog interface {
	States() []domain.TaskState
	ByName(name string) (domain.TaskState, bool)
	NonTerminal() []string
}

// MessageReader fetches a task's source message.
type MessageReader interface {
	Message(ctx context.Context, channel, ts string) (domain.ChatMessage, error)
}

// ActiveTask is one row of the active task listing.
type ActiveTask struct {
	Task       *domain.Task     `json:"task"`
	State      domain.TaskState `json:"state"`
	Text       string           `json:"text"`
	Accessible bool             `json:"accessible"`
}

// Service answers task queries.
type Service struct {
	catalog Catalog
	tasks   store.TaskStore
	chat    MessageReader
	logger  *slog.Logger
}

func NewService(catalog Catalog, tasks store.TaskStore, chat MessageReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{catalog: catalog, tasks: tasks, chat: chat, logger: logger}
}

// States returns the catalog in order.
func (s *Service) States() []domain.TaskState { return s.catalog.States() }

// ActiveTasks lists tasks in non-terminal states, newest first, with the
// text of their source message. A message that cannot be read does not fail
// the listing.
func (s *Service) ActiveTasks(ctx context.Context) ([]ActiveTask, error) {
	tasks, err := s.tasks.ListByStatus(ctx, s.catalog.NonTerminal(), store.DefaultListLimit)
	if err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}

	rows := make([]ActiveTask, len(tasks))
	sem := make(chan struct{}, fetchWorkers)
	var wg sync.WaitGroup
	for i, t := range tasks {
		st, _ := s.catalog.ByName(t.Status)
		rows[i] = ActiveTask{Task: t, State: st}
		if s.chat == nil {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(row *ActiveTask) {
			defer func() { <-sem; wg.Done() }()
			msg, err := s.chat.Message(ctx, row.Task.Channel, row.Task.MessageTS)
			if err != nil {
				s.logger.Debug("task message unavailable",
					slog.String("task", row.Task.Key().String()),
					slog.String("error", err.Error()),
				)
				return
			}
			row.Text, row.Accessible = msg.Text, true
		}(&rows[i])
	}
	wg.Wait()
	return rows, nil
}

// Reply answers a slash command with the text shown to the caller.
func (s *Service) Reply(ctx context.Context, cmd domain.Command) (string, error) {
	switch cmd.Name {
	case CommandTasks:
		rows, err := s.ActiveTasks(ctx)
		if err != nil {
			return "", err
		}
		return RenderActive(rows, cmd.Team), nil
	case CommandStates:
		return RenderStates(s.States()), nil
	}
	return fmt.Sprintf("Unknown command `%s`. Try `%s` or `%s`.", cmd.Name, CommandTasks, CommandStates), nil
}

// RenderActive formats the /tasks reply.
func RenderActive(rows []ActiveTask, team string) string {
	if len(rows) == 0 {
		return noActiveText
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		emoji := r.State.Emoji
		if emoji == "" {
			emoji = "question"
		}
		text := inaccessibleText
		if r.Accessible {
			text = truncate(r.Text, 50)
		}
		link := slackchat.JumpLink(team, r.Task.Channel, r.Task.MessageTS)
		lines = append(lines, fmt.Sprintf("*:%s: `%s` %s* | _<%s|View task> | <#%s> by <@%s> on %s_",
			emoji, r.Task.Status, text, link, r.Task.Channel, r.Task.Author, r.Task.CreatedAt.UTC().Format(dateLayout)))
	}
	return "*Active Tasks:*\n" + strings.Join(lines, "\n\n")
}

// RenderStates formats the /task_states reply.
func RenderStates(states []domain.TaskState) string {
	lines := make([]string, 0, len(states))
	for _, st := range states {
		to := "None"
		if len(st.AllowedTransitionsTo) > 0 {
			to = strings.Join(st.AllowedTransitionsTo, ", ")
		}
		lines = append(lines, fmt.Sprintf("- :%s: `%s` - %s\n  Transitions to: %s\n  Reaction removed: %s",
			st.Emoji, st.Name, st.Description, to, onRemoval(states, st)))
	}
	return "*Available Task States:*\n" + strings.Join(lines, "\n")
}

// onRemoval describes what taking st's reaction off a task in st does.
func onRemoval(states []domain.TaskState, st domain.TaskState) string {
	if st.IsEntry() {
		return "task deleted"
	}
	if prev, ok := domain.RevertTarget(states, st); ok {
		return "reverts to " + prev.Name
	}
	return "no change"
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
