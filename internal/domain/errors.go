package domain

import (
	"errors"
	"fmt"
)

// TaskNotFoundError is returned when no task exists for a key.
type TaskNotFoundError struct {
	Key TaskKey
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.Key)
}

// DuplicateTaskError is returned when a task already exists for a key.
type DuplicateTaskError struct {
	Key TaskKey
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task already exists: %s", e.Key)
}

// InvalidTransitionError reports a reaction whose target state is not
// reachable from the task's current state.
type InvalidTransitionError struct {
	Key  TaskKey
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s from %q to %q", e.Key, e.From, e.To)
}

// NotInChannelError is returned by the chat collaborator when the bot cannot
// see a channel.
type NotInChannelError struct {
	Channel string
	Reason  string
}

func (e *NotInChannelError) Error() string {
	return fmt.Sprintf("bot has no access to channel %s: %s", e.Channel, e.Reason)
}

// InvalidCatalogError is returned when a state catalog breaks an invariant.
type InvalidCatalogError struct {
	Reason string
}

func (e *InvalidCatalogError) Error() string {
	return "invalid state catalog: " + e.Reason
}

// IsNotFound reports whether err is, or wraps, a TaskNotFoundError.
func IsNotFound(err error) bool {
	var nf *TaskNotFoundError
	return errors.As(err, &nf)
}

// IsDuplicate reports whether err is, or wraps, a DuplicateTaskError.
func IsDuplicate(err error) bool {
	var dup *DuplicateTaskError
	return errors.As(err, &dup)
}

// IsNotInChannel reports whether err is, or wraps, a NotInChannelError.
func IsNotInChannel(err error) bool {
	var nic *NotInChannelError
	return errors.As(err, &nic)
}
