// Package engine is the reaction-driven task state machine. Decide is pure;
// Engine applies a decision to the store and reports it to a Notifier.
package engine

import (
	"time"

	"github.com/krskas/slack-task-tracker/internal/domain"
)

// Action is what a reaction event does to its task.
type Action string

const (
	ActionNone       Action = "none"
	ActionCreate     Action = "create"
	ActionTransition Action = "transition"
	ActionReject     Action = "reject"
	ActionRevert     Action = "revert"
	ActionDelete     Action = "delete"
)

// Reasons attached to ActionNone decisions.
const (
	ReasonUnknownEmoji     = "unknown_emoji"
	ReasonNotEntry         = "not_entry_state"
	ReasonSameState        = "same_state"
	ReasonUntracked        = "untracked"
	ReasonNotAuthoritative = "not_authoritative"
	ReasonNoPredecessor    = "no_predecessor"
	ReasonAlreadyTracked   = "already_tracked"
	ReasonAlreadyGone      = "already_gone"
)

// Catalog is the part of the state catalog the engine reads.
type Catalog interface {
	ByEmoji(emoji string) (domain.TaskState, bool)
	TransitionAllowed(from, to string) bool
	Predecessor(removed domain.TaskState) (domain.TaskState, bool)
}

// Decision is the outcome of one reaction event.
type Decision struct {
	Action Action
	Reason string
	Key    domain.TaskKey
	// From is the task status before the event; empty for untracked messages.
	From string
	// State is the resulting state, or the attempted target of a rejection.
	State domain.TaskState
	Actor string
	At    time.Time
}

// Mutates reports whether applying d writes to the store.
func (d Decision) Mutates() bool {
	switch d.Action {
	case ActionCreate, ActionTransition, ActionRevert, ActionDelete:
		return true
	}
	return false
}

// Change is the status mutation for transition and revert decisions.
func (d Decision) Change() domain.StatusChange {
	return domain.StatusChange{
		Key:       d.Key,
		Status:    d.State.Name,
		Actor:     d.Actor,
		ChangedAt: d.At,
		Terminal:  d.State.IsTerminal,
	}
}

// NewTask is the task a create decision inserts.
func (d Decision) NewTask() *domain.Task {
	return &domain.Task{
		Channel:        d.Key.Channel,
		MessageTS:      d.Key.MessageTS,
		Author:         d.Actor,
		Status:         d.State.Name,
		CreatedAt:      d.At,
		StateChangedAt: d.At,
		StateChangedBy: d.Actor,
	}
}

func (d Decision) notice() (domain.Notice, bool) {
	n := domain.Notice{
		Origin: domain.OriginLive,
		Key:    d.Key,
		State:  d.State,
		From:   d.From,
		Actor:  d.Actor,
		At:     d.At,
	}
	switch d.Action {
	case ActionCreate:
		n.Kind = domain.NoticeCreated
	case ActionTransition:
		n.Kind = domain.NoticeChanged
	case ActionRevert:
		n.Kind = domain.NoticeReverted
	case ActionDelete:
		n.Kind = domain.NoticeDeleted
	case ActionReject:
		n.Kind = domain.NoticeRejected
	default:
		return domain.Notice{}, false
	}
	return n, true
}

// Decide computes what ev does given the task currently stored for its key
// (nil when untracked). ev.At stamps any mutation.
func Decide(cat Catalog, existing *domain.Task, ev domain.ReactionEvent) Decision {
	d := Decision{
		Action: ActionNone,
		Key:    ev.Key(),
		Actor:  ev.User,
		At:     ev.At,
	}
	if existing != nil {
		d.From = existing.Status
	}

	st, ok := cat.ByEmoji(ev.Emoji)
	if !ok {
		d.Reason = ReasonUnknownEmoji
		return d
	}
	d.State = st

	if ev.Direction == domain.Removed {
		return decideRemoved(cat, existing, d)
	}
	return decideAdded(cat, existing, d)
}

func decideAdded(cat Catalog, existing *domain.Task, d Decision) Decision {
	if existing == nil {
		if !d.State.IsEntry() {
			d.Reason = ReasonNotEntry
			return d
		}
		d.Action = ActionCreate
		return d
	}
	if existing.Status == d.State.Name {
		d.Reason = ReasonSameState
		return d
	}
	if !cat.TransitionAllowed(existing.Status, d.State.Name) {
		d.Action = ActionReject
		return d
	}
	d.Action = ActionTransition
	return d
}

func decideRemoved(cat Catalog, existing *domain.Task, d Decision) Decision {
	if existing == nil {
		d.Reason = ReasonUntracked
		return d
	}
	if existing.Status != d.State.Name {
		d.Reason = ReasonNotAuthoritative
		return d
	}
	if d.State.IsEntry() {
		d.Action = ActionDelete
		return d
	}
	prev, ok := cat.Predecessor(d.State)
	if !ok {
		d.Reason = ReasonNoPredecessor
		return d
	}
	d.Action = ActionRevert
	d.State = prev
	return d
}
