package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krskas/slack-task-tracker/internal/catalog"
)

func TestDefaultStates_AreValid(t *testing.T) {
	require.NoError(t, catalog.Validate(catalog.DefaultStates()))
}

func TestWithEmojiOverrides(t *testing.T) {
	states := catalog.WithEmojiOverrides(catalog.DefaultStates(), map[string]string{
		"working": ":construction:",
		"review":  "  ",
	})
	assert.Equal(t, "construction", states[1].Emoji)
	assert.Equal(t, "mag", states[2].Emoji, "blank override is ignored")
	assert.Equal(t, "hammer", catalog.DefaultStates()[1].Emoji, "defaults are not mutated")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.yaml")
	doc := `states:
  - name: todo
    emoji: inbox_tray
    description: Needs an owner
    order_num: 1
    allowed_transitions_to: [doing]
  - name: doing
    emoji: runner
    order_num: 2
    allowed_transitions_to: [todo, done]
  - name: done
    emoji: heavy_check_mark
    order_num: 3
    is_terminal: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	states, err := catalog.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, "todo", states[0].Name)
	assert.Equal(t, []string{"todo", "done"}, states[1].AllowedTransitionsTo)
	assert.True(t, states[2].IsTerminal)
}

func TestLoadFile_InvalidCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.yaml")
	doc := `states:
  - name: todo
    emoji: inbox_tray
    order_num: 2
    allowed_transitions_to: [todo]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := catalog.LoadFile(path)
	require.Error(t, err)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := catalog.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
