package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krskas/slack-task-tracker/internal/catalog"
	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/internal/engine"
)

func defaultCatalog(t testing.TB) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(catalog.DefaultStates())
	require.NoError(t, err)
	return c
}

func reaction(emoji string, dir domain.Direction) domain.ReactionEvent {
	return domain.ReactionEvent{
		Emoji:     emoji,
		User:      "U2",
		Channel:   "C1",
		MessageTS: "1700000000.000100",
		Direction: dir,
		At:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func tracked(status string) *domain.Task {
	return &domain.Task{ID: 1, Channel: "C1", MessageTS: "1700000000.000100", Author: "U1", Status: status}
}

func TestDecide(t *testing.T) {
	cat := defaultCatalog(t)

	tests := []struct {
		name       string
		existing   *domain.Task
		ev         domain.ReactionEvent
		wantAction engine.Action
		wantReason string
		wantState  string
	}{
		{"unknown emoji added", nil, reaction("tada", domain.Added), engine.ActionNone, engine.ReasonUnknownEmoji, ""},
		{"unknown emoji removed", tracked("open"), reaction("tada", domain.Removed), engine.ActionNone, engine.ReasonUnknownEmoji, ""},
		{"entry on untracked creates", nil, reaction("eyes", domain.Added), engine.ActionCreate, "", "open"},
		{"non-entry on untracked", nil, reaction("mag", domain.Added), engine.ActionNone, engine.ReasonNotEntry, "review"},
		{"terminal on untracked", nil, reaction("white_check_mark", domain.Added), engine.ActionNone, engine.ReasonNotEntry, "finished"},
		{"same state again", tracked("open"), reaction("eyes", domain.Added), engine.ActionNone, engine.ReasonSameState, "open"},
		{"allowed transition", tracked("open"), reaction("hammer", domain.Added), engine.ActionTransition, "", "working"},
		{"disallowed transition", tracked("open"), reaction("mag", domain.Added), engine.ActionReject, "", "review"},
		{"out of terminal", tracked("finished"), reaction("hammer", domain.Added), engine.ActionReject, "", "working"},
		{"remove on untracked", nil, reaction("eyes", domain.Removed), engine.ActionNone, engine.ReasonUntracked, "open"},
		{"remove stale reaction", tracked("working"), reaction("eyes", domain.Removed), engine.ActionNone, engine.ReasonNotAuthoritative, "open"},
		{"remove entry deletes", tracked("open"), reaction("eyes", domain.Removed), engine.ActionDelete, "", "open"},
		{"remove working reverts to open", tracked("working"), reaction("hammer", domain.Removed), engine.ActionRevert, "", "open"},
		{"remove finished reverts to closest", tracked("finished"), reaction("white_check_mark", domain.Removed), engine.ActionRevert, "", "review"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := engine.Decide(cat, tt.existing, tt.ev)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantReason, d.Reason)
			if tt.wantState != "" {
				assert.Equal(t, tt.wantState, d.State.Name)
			}
			assert.Equal(t, tt.ev.Key(), d.Key)
		})
	}
}

func TestDecide_RejectNamesBothStates(t *testing.T) {
	d := engine.Decide(defaultCatalog(t), tracked("open"), reaction("mag", domain.Added))
	require.Equal(t, engine.ActionReject, d.Action)
	assert.Equal(t, "open", d.From)
	assert.Equal(t, "review", d.State.Name)
	assert.False(t, d.Mutates())
}

func TestDecide_NoPredecessor(t *testing.T) {
	// blocked can only be left, never entered from a lower state.
	cat, err := catalog.New([]domain.TaskState{
		{Name: "open", Emoji: "eyes", OrderNum: 1, AllowedTransitionsTo: []string{"done"}},
		{Name: "blocked", Emoji: "no_entry", OrderNum: 2, AllowedTransitionsTo: []string{"open"}},
		{Name: "done", Emoji: "white_check_mark", OrderNum: 3, IsTerminal: true},
	})
	require.NoError(t, err)

	d := engine.Decide(cat, tracked("blocked"), reaction("no_entry", domain.Removed))
	assert.Equal(t, engine.ActionNone, d.Action)
	assert.Equal(t, engine.ReasonNoPredecessor, d.Reason)
}

func TestDecision_ChangeAndNewTask(t *testing.T) {
	cat := defaultCatalog(t)

	d := engine.Decide(cat, nil, reaction("eyes", domain.Added))
	task := d.NewTask()
	assert.Equal(t, "U2", task.Author)
	assert.Equal(t, "U2", task.StateChangedBy)
	assert.Equal(t, "open", task.Status)
	assert.Equal(t, task.CreatedAt, task.StateChangedAt)

	d = engine.Decide(cat, tracked("review"), reaction("white_check_mark", domain.Added))
	c := d.Change()
	assert.True(t, c.Terminal)
	assert.Equal(t, "finished", c.Status)
	assert.Equal(t, "U2", c.Actor)
}
