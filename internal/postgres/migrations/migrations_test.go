package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles_Ordered(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_create_task_states.sql", "002_create_tasks.sql"}, files)
}

func TestTasksTable_HasUniqueKey(t *testing.T) {
	sql, err := FS.ReadFile("002_create_tasks.sql")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(sql), "UNIQUE (channel, message_ts)"))
}
