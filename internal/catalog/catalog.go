// Package catalog holds the in-memory set of task states and their
// transition graph. Lookups never touch storage; the snapshot only changes
// on an explicit Reload.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/krskas/slack-task-tracker/internal/domain"
)

// Source loads the persisted state definitions.
type Source interface {
	LoadStates(ctx context.Context) ([]domain.TaskState, error)
}

type snapshot struct {
	states  []domain.TaskState
	byName  map[string]int
	byEmoji map[string]int
}

// Catalog is safe for concurrent use.
type Catalog struct {
	mu   sync.RWMutex
	snap *snapshot
}

// New validates states and builds a Catalog from them.
func New(states []domain.TaskState) (*Catalog, error) {
	snap, err := build(states)
	if err != nil {
		return nil, err
	}
	return &Catalog{snap: snap}, nil
}

// Load builds a Catalog from src.
func Load(ctx context.Context, src Source) (*Catalog, error) {
	states, err := src.LoadStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load task states: %w", err)
	}
	return New(states)
}

// Reload replaces the snapshot with the states currently in src. On error the
// previous snapshot stays in place.
func (c *Catalog) Reload(ctx context.Context, src Source) error {
	states, err := src.LoadStates(ctx)
	if err != nil {
		return fmt.Errorf("load task states: %w", err)
	}
	snap, err := build(states)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	return nil
}

func (c *Catalog) current() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// States returns all states ordered by OrderNum ascending.
func (c *Catalog) States() []domain.TaskState {
	s := c.current()
	out := make([]domain.TaskState, len(s.states))
	copy(out, s.states)
	return out
}

// ByEmoji resolves a reaction glyph to its state.
func (c *Catalog) ByEmoji(emoji string) (domain.TaskState, bool) {
	s := c.current()
	i, ok := s.byEmoji[domain.NormalizeEmoji(emoji)]
	if !ok {
		return domain.TaskState{}, false
	}
	return s.states[i], true
}

// ByName resolves a state name.
func (c *Catalog) ByName(name string) (domain.TaskState, bool) {
	s := c.current()
	i, ok := s.byName[name]
	if !ok {
		return domain.TaskState{}, false
	}
	return s.states[i], true
}

// Entry returns the state with OrderNum 1.
func (c *Catalog) Entry() domain.TaskState {
	s := c.current()
	return s.states[0]
}

// TransitionAllowed reports whether a task in from may move to to. A move to
// the same state is a no-op and always allowed. Unknown names are never
// allowed.
func (c *Catalog) TransitionAllowed(from, to string) bool {
	if from == to {
		return true
	}
	st, ok := c.ByName(from)
	if !ok {
		return false
	}
	if _, ok := c.ByName(to); !ok {
		return false
	}
	return st.CanTransitionTo(to)
}

// Predecessor is domain.RevertTarget over the current snapshot.
func (c *Catalog) Predecessor(removed domain.TaskState) (domain.TaskState, bool) {
	return domain.RevertTarget(c.current().states, removed)
}

// NonTerminal returns the names of all states that are still active.
func (c *Catalog) NonTerminal() []string {
	var out []string
	for _, st := range c.current().states {
		if !st.IsTerminal {
			out = append(out, st.Name)
		}
	}
	return out
}

func build(states []domain.TaskState) (*snapshot, error) {
	sorted := make([]domain.TaskState, len(states))
	for i, st := range states {
		st.Emoji = domain.NormalizeEmoji(st.Emoji)
		sorted[i] = st
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OrderNum < sorted[j].OrderNum })

	if err := Validate(sorted); err != nil {
		return nil, err
	}

	snap := &snapshot{
		states:  sorted,
		byName:  make(map[string]int, len(sorted)),
		byEmoji: make(map[string]int, len(sorted)),
	}
	for i, st := range sorted {
		snap.byName[st.Name] = i
		snap.byEmoji[st.Emoji] = i
	}
	return snap, nil
}

// Validate checks the catalog invariants: exactly one entry state, unique
// names and emoji, every transition target known, terminal states without
// outgoing transitions, and every other state with at least one.
func Validate(states []domain.TaskState) error {
	if len(states) == 0 {
		return &domain.InvalidCatalogError{Reason: "no states defined"}
	}
	names := make(map[string]bool, len(states))
	emoji := make(map[string]string, len(states))
	entries := 0
	for _, st := range states {
		if st.Name == "" {
			return &domain.InvalidCatalogError{Reason: "state with empty name"}
		}
		if names[st.Name] {
			return &domain.InvalidCatalogError{Reason: fmt.Sprintf("duplicate state name %q", st.Name)}
		}
		names[st.Name] = true

		e := domain.NormalizeEmoji(st.Emoji)
		if e == "" {
			return &domain.InvalidCatalogError{Reason: fmt.Sprintf("state %q has no emoji", st.Name)}
		}
		if other, ok := emoji[e]; ok {
			return &domain.InvalidCatalogError{Reason: fmt.Sprintf("emoji %q used by both %q and %q", e, other, st.Name)}
		}
		emoji[e] = st.Name

		if st.IsEntry() {
			entries++
		}
	}
	if entries != 1 {
		return &domain.InvalidCatalogError{Reason: fmt.Sprintf("want exactly one state with order 1, got %d", entries)}
	}
	for _, st := range states {
		if st.IsTerminal && len(st.AllowedTransitionsTo) > 0 {
			return &domain.InvalidCatalogError{Reason: fmt.Sprintf("terminal state %q has outgoing transitions", st.Name)}
		}
		if !st.IsTerminal && len(st.AllowedTransitionsTo) == 0 {
			return &domain.InvalidCatalogError{Reason: fmt.Sprintf("state %q is not terminal but has no transitions", st.Name)}
		}
		if st.IsEntry() && st.IsTerminal {
			return &domain.InvalidCatalogError{Reason: fmt.Sprintf("entry state %q cannot be terminal", st.Name)}
		}
		for _, to := range st.AllowedTransitionsTo {
			if !names[to] {
				return &domain.InvalidCatalogError{Reason: fmt.Sprintf("state %q transitions to unknown state %q", st.Name, to)}
			}
		}
	}
	return nil
}
