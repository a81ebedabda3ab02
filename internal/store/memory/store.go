// Package memory is an in-process store driver, used by tests and by the
// "memory" store_driver for throwaway runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/internal/store"
)

// Store keeps tasks and states in maps guarded by one RWMutex.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	tasks  map[domain.TaskKey]domain.Task
	states map[string]domain.TaskState
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tasks:  make(map[domain.TaskKey]domain.Task),
		states: make(map[string]domain.TaskState),
	}
}

func (s *Store) Find(_ context.Context, key domain.TaskKey) (*domain.Task, error) {
	s.mu.RLock()
	t, ok := s.tasks[key]
	s.mu.RUnlock()
	if !ok {
		return nil, &domain.TaskNotFoundError{Key: key}
	}
	return &t, nil
}

func (s *Store) Create(_ context.Context, task *domain.Task) (*domain.Task, error) {
	key := task.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[key]; ok {
		return nil, &domain.DuplicateTaskError{Key: key}
	}
	s.nextID++
	t := *task
	t.ID = s.nextID
	s.tasks[key] = t
	return &t, nil
}

func (s *Store) UpdateStatus(_ context.Context, change domain.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[change.Key]
	if !ok {
		return &domain.TaskNotFoundError{Key: change.Key}
	}
	change.Apply(&t)
	s.tasks[change.Key] = t
	return nil
}

func (s *Store) Delete(_ context.Context, key domain.TaskKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[key]; !ok {
		return &domain.TaskNotFoundError{Key: key}
	}
	delete(s.tasks, key)
	return nil
}

func (s *Store) ListByStatus(_ context.Context, statuses []string, limit int) ([]*domain.Task, error) {
	want := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	s.mu.RLock()
	var out []*domain.Task
	for _, t := range s.tasks {
		if want[t.Status] {
			t := t
			out = append(out, &t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored task, in no particular order.
func (s *Store) All() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

func (s *Store) LoadStates(context.Context) ([]domain.TaskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TaskState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNum < out[j].OrderNum })
	return out, nil
}

func (s *Store) SeedStates(_ context.Context, states []domain.TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range states {
		existing, ok := s.states[st.Name]
		if !ok {
			s.states[st.Name] = st
			continue
		}
		existing.Emoji = st.Emoji
		s.states[st.Name] = existing
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
