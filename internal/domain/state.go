package domain

import "strings"

// TaskState is a named stage in the workflow, activated by one emoji.
type TaskState struct {
	Name                 string   `json:"name" yaml:"name"`
	Emoji                string   `json:"emoji" yaml:"emoji"`
	Description          string   `json:"description" yaml:"description"`
	Color                string   `json:"color" yaml:"color"`
	OrderNum             int      `json:"order_num" yaml:"order_num"`
	IsTerminal           bool     `json:"is_terminal" yaml:"is_terminal"`
	AllowedTransitionsTo []string `json:"allowed_transitions_to" yaml:"allowed_transitions_to"`
}

// EntryOrder is the order number of the only state tasks can be created in.
const EntryOrder = 1

// IsEntry reports whether new tasks may be created in this state.
func (s TaskState) IsEntry() bool { return s.OrderNum == EntryOrder }

// CanTransitionTo reports whether name is directly reachable from s.
func (s TaskState) CanTransitionTo(name string) bool {
	for _, to := range s.AllowedTransitionsTo {
		if to == name {
			return true
		}
	}
	return false
}

// RevertTarget finds the state a task in removed falls back to when its
// reaction is taken away: the highest-ordered state below removed that lists
// removed as an allowed target. The order of states does not matter.
func RevertTarget(states []TaskState, removed TaskState) (TaskState, bool) {
	var (
		best  TaskState
		found bool
	)
	for _, p := range states {
		if p.OrderNum >= removed.OrderNum || !p.CanTransitionTo(removed.Name) {
			continue
		}
		if !found || p.OrderNum > best.OrderNum {
			best, found = p, true
		}
	}
	return best, found
}

// NormalizeEmoji strips surrounding colons and any skin-tone modifier so that
// ":thumbsup::skin-tone-3:" and "thumbsup" resolve to the same state.
func NormalizeEmoji(emoji string) string {
	emoji = strings.Trim(strings.TrimSpace(emoji), ":")
	if i := strings.Index(emoji, "::"); i >= 0 {
		emoji = emoji[:i]
	}
	return emoji
}

// JoinTransitions renders a transition list the way it is persisted.
func JoinTransitions(names []string) string { return strings.Join(names, ",") }

// SplitTransitions parses a persisted transition list; blanks are dropped.
func SplitTransitions(raw string) []string {
	var out []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}
