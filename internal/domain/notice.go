package domain

import "time"

// NoticeKind names a task lifecycle outcome that is reported outward.
type NoticeKind string

const (
	NoticeCreated  NoticeKind = "created"
	NoticeChanged  NoticeKind = "changed"
	NoticeReverted NoticeKind = "reverted"
	NoticeDeleted  NoticeKind = "deleted"
	NoticeRejected NoticeKind = "rejected"
)

// Origin tells whether a task mutation came from a live event or a
// history scan.
type Origin string

const (
	OriginLive      Origin = "live"
	OriginReconcile Origin = "reconcile"
)

// Notice is one lifecycle outcome handed to notification sinks.
type Notice struct {
	Kind   NoticeKind `json:"kind"`
	Origin Origin     `json:"origin"`
	Key    TaskKey    `json:"key"`
	// State is the resulting state, or for a rejection the attempted target.
	State TaskState `json:"state"`
	// From is the status before the change; empty for creations.
	From  string    `json:"from,omitempty"`
	Actor string    `json:"actor"`
	At    time.Time `json:"at"`
	Task  *Task     `json:"task,omitempty"`
}
