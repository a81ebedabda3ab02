// Package store defines the persistence contracts for tasks and task states.
// Drivers live in internal/postgres, internal/sqlite and store/memory.
package store

import (
	"context"

	"github.com/krskas/slack-task-tracker/internal/domain"
)

// TaskStore persists tasks keyed by (channel, message ts). Every method is a
// single statement against the backing store; there is no read-then-write
// transaction spanning calls.
type TaskStore interface {
	// Find returns *domain.TaskNotFoundError when no task exists for key.
	Find(ctx context.Context, key domain.TaskKey) (*domain.Task, error)
	// Create returns *domain.DuplicateTaskError when the key is taken.
	Create(ctx context.Context, task *domain.Task) (*domain.Task, error)
	// UpdateStatus applies change atomically, including the completion
	// stamp when change.Terminal is set. Returns *domain.TaskNotFoundError
	// when the key is absent.
	UpdateStatus(ctx context.Context, change domain.StatusChange) error
	// Delete returns *domain.TaskNotFoundError when the key is absent.
	Delete(ctx context.Context, key domain.TaskKey) error
	// ListByStatus returns tasks in any of statuses, newest first. limit <= 0
	// means no limit.
	ListByStatus(ctx context.Context, statuses []string, limit int) ([]*domain.Task, error)
}

// StateSource persists the state catalog.
type StateSource interface {
	LoadStates(ctx context.Context) ([]domain.TaskState, error)
	// SeedStates inserts every state whose name is not yet stored and then
	// refreshes the emoji of all given states, so operator overrides take
	// effect on each boot without clobbering other edits.
	SeedStates(ctx context.Context, states []domain.TaskState) error
}

// Store is what a storage driver provides to the service.
type Store interface {
	TaskStore
	StateSource
	Ping(ctx context.Context) error
	Close() error
}

// DefaultListLimit caps query-surface listings.
const DefaultListLimit = 500
