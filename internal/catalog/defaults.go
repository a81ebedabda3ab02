package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/krskas/slack-task-tracker/internal/domain"
)

// DefaultStates is the workflow seeded when no states file is configured.
func DefaultStates() []domain.TaskState {
	return []domain.TaskState{
		{
			Name:                 "open",
			Emoji:                "eyes",
			Description:          "Task needs attention",
			Color:                "#6E84F5",
			OrderNum:             1,
			AllowedTransitionsTo: []string{"working", "finished"},
		},
		{
			Name:                 "working",
			Emoji:                "hammer",
			Description:          "Task is being worked on",
			Color:                "#F5B86E",
			OrderNum:             2,
			AllowedTransitionsTo: []string{"open", "review", "finished"},
		},
		{
			Name:                 "review",
			Emoji:                "mag",
			Description:          "Task completed, needs review",
			Color:                "#F5D76E",
			OrderNum:             3,
			AllowedTransitionsTo: []string{"working", "finished"},
		},
		{
			Name:        "finished",
			Emoji:       "white_check_mark",
			Description: "Task has been completed",
			Color:       "#6EF58E",
			OrderNum:    4,
			IsTerminal:  true,
		},
	}
}

type statesFile struct {
	States []domain.TaskState `yaml:"states"`
}

// LoadFile reads state definitions from a YAML file of the form
//
//	states:
//	  - name: open
//	    emoji: eyes
//	    order_num: 1
//	    allowed_transitions_to: [working]
func LoadFile(path string) ([]domain.TaskState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open states file: %w", err)
	}
	defer f.Close()

	var doc statesFile
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse states file %s: %w", path, err)
	}
	if err := Validate(doc.States); err != nil {
		return nil, fmt.Errorf("states file %s: %w", path, err)
	}
	return doc.States, nil
}

// WithEmojiOverrides returns a copy of states with the emoji replaced for
// every state named in overrides. Empty values are ignored.
func WithEmojiOverrides(states []domain.TaskState, overrides map[string]string) []domain.TaskState {
	out := make([]domain.TaskState, len(states))
	copy(out, states)
	for i := range out {
		if e := strings.TrimSpace(overrides[out[i].Name]); e != "" {
			out[i].Emoji = domain.NormalizeEmoji(e)
		}
	}
	return out
}
