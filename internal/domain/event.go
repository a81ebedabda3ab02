package domain

import "time"

// Direction tells whether a reaction was added to or removed from a message.
type Direction string

const (
	Added   Direction = "added"
	Removed Direction = "removed"
)

// ReactionEvent is an inbound reaction change on a chat message.
type ReactionEvent struct {
	ID        string    `json:"id,omitempty"`
	Emoji     string    `json:"emoji"`
	User      string    `json:"user"`
	Channel   string    `json:"channel"`
	MessageTS string    `json:"message_ts"`
	Direction Direction `json:"direction"`
	At        time.Time `json:"at,omitempty"`
}

// Key returns the task key the event targets.
func (e ReactionEvent) Key() TaskKey {
	return TaskKey{Channel: e.Channel, MessageTS: e.MessageTS}
}

// MemberJoinedEvent is delivered when a member (possibly the bot) joins a channel.
type MemberJoinedEvent struct {
	ID      string `json:"id,omitempty"`
	User    string `json:"user"`
	Channel string `json:"channel"`
	Inviter string `json:"inviter,omitempty"`
}

// Command is a slash command invocation.
type Command struct {
	Name        string `json:"name"`
	Text        string `json:"text"`
	User        string `json:"user"`
	Channel     string `json:"channel"`
	Team        string `json:"team"`
	// ResponseURL is where a deferred reply is posted; empty for commands
	// that did not come from Slack.
	ResponseURL string `json:"response_url,omitempty"`
}

// Reaction is one reaction glyph present on a message.
type Reaction struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ChatMessage is the part of a chat message the tracker cares about.
type ChatMessage struct {
	TS        string     `json:"ts"`
	User      string     `json:"user"`
	Text      string     `json:"text"`
	Reactions []Reaction `json:"reactions,omitempty"`
}

// Channel is a conversation the bot can see.
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsMember bool   `json:"is_member"`
}
