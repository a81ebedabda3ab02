package domain

import "time"

// TaskKey identifies a task by the chat message it was created from.
// It is stable and never reused.
type TaskKey struct {
	Channel   string `json:"channel"`
	MessageTS string `json:"message_ts"`
}

func (k TaskKey) String() string { return k.Channel + ":" + k.MessageTS }

// Task is one tracked unit of work, one-to-one with a chat message.
type Task struct {
	ID             int64      `json:"id"`
	Channel        string     `json:"channel"`
	MessageTS      string     `json:"message_ts"`
	Author         string     `json:"author"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	StateChangedAt time.Time  `json:"state_changed_at"`
	StateChangedBy string     `json:"state_changed_by"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CompletedBy    string     `json:"completed_by,omitempty"`
}

// Key returns the task's composite identity.
func (t *Task) Key() TaskKey {
	return TaskKey{Channel: t.Channel, MessageTS: t.MessageTS}
}

// StatusChange is a single status mutation. When Terminal is set the store
// stamps CompletedAt/CompletedBy in the same statement; otherwise the
// completion fields are left as they are, including after a revert.
type StatusChange struct {
	Key       TaskKey
	Status    string
	Actor     string
	ChangedAt time.Time
	Terminal  bool
}

// Apply mutates t the way a store applies the change.
func (c StatusChange) Apply(t *Task) {
	t.Status = c.Status
	t.StateChangedAt = c.ChangedAt
	t.StateChangedBy = c.Actor
	if c.Terminal {
		at := c.ChangedAt
		t.CompletedAt = &at
		t.CompletedBy = c.Actor
	}
}
