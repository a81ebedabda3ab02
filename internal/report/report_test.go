package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krskas/slack-task-tracker/internal/catalog"
	"github.com/krskas/slack-task-tracker/internal/commands"
	"github.com/krskas/slack-task-tracker/internal/domain"
)

func TestActiveTasks_WritesPDF(t *testing.T) {
	rows := []commands.ActiveTask{
		{
			Task:       &domain.Task{Channel: "C1", MessageTS: "1.0", Author: "U1", Status: "open", CreatedAt: time.Now()},
			Text:       "Ship the café menu\nwith prices",
			Accessible: true,
		},
		{
			Task: &domain.Task{Channel: "C2", MessageTS: "2.0", Author: "U2", Status: "working", CreatedAt: time.Now()},
		},
	}

	var buf bytes.Buffer
	err := NewGenerator().ActiveTasks(&buf, rows, catalog.DefaultStates(), time.Now())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 500)
}

func TestActiveTasks_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewGenerator().ActiveTasks(&buf, nil, catalog.DefaultStates(), time.Now()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestParseHex(t *testing.T) {
	r, g, b := parseHex("#6E84F5")
	assert.Equal(t, []int{0x6e, 0x84, 0xf5}, []int{r, g, b})

	r, g, b = parseHex("nope")
	assert.Equal(t, []int{128, 128, 128}, []int{r, g, b})
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abcdefg...", clip("abcdefghijklmnop", 10))
}
