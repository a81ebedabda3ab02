package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krskas/slack-task-tracker/internal/domain"
)

func newTask(channel, ts, status string, created time.Time) *domain.Task {
	return &domain.Task{
		Channel:        channel,
		MessageTS:      ts,
		Author:         "U1",
		Status:         status,
		CreatedAt:      created,
		StateChangedAt: created,
		StateChangedBy: "U1",
	}
}

func TestStore_CreateAndFind(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	created, err := s.Create(ctx, newTask("C1", "1.0", "open", now))
	require.NoError(t, err)
	assert.Positive(t, created.ID)

	got, err := s.Find(ctx, domain.TaskKey{Channel: "C1", MessageTS: "1.0"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "open", got.Status)
}

func TestStore_Find_NotFound(t *testing.T) {
	_, err := New().Find(context.Background(), domain.TaskKey{Channel: "C1", MessageTS: "9"})
	assert.True(t, domain.IsNotFound(err))
}

func TestStore_Create_Duplicate(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Create(ctx, newTask("C1", "1.0", "open", time.Now()))
	require.NoError(t, err)
	_, err = s.Create(ctx, newTask("C1", "1.0", "open", time.Now()))
	assert.True(t, domain.IsDuplicate(err))

	_, err = s.Create(ctx, newTask("C2", "1.0", "open", time.Now()))
	assert.NoError(t, err, "same ts in another channel is a different task")
}

func TestStore_UpdateStatus_CompletionRetainedOnRevert(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := domain.TaskKey{Channel: "C1", MessageTS: "1.0"}
	t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	_, err := s.Create(ctx, newTask("C1", "1.0", "open", t0))
	require.NoError(t, err)

	done := t0.Add(time.Hour)
	require.NoError(t, s.UpdateStatus(ctx, domain.StatusChange{Key: key, Status: "finished", Actor: "U2", ChangedAt: done, Terminal: true}))
	require.NoError(t, s.UpdateStatus(ctx, domain.StatusChange{Key: key, Status: "working", Actor: "U3", ChangedAt: done.Add(time.Hour)}))

	got, err := s.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "working", got.Status)
	assert.Equal(t, "U3", got.StateChangedBy)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, done, *got.CompletedAt)
	assert.Equal(t, "U2", got.CompletedBy)
}

func TestStore_UpdateStatus_NotFound(t *testing.T) {
	err := New().UpdateStatus(context.Background(), domain.StatusChange{Key: domain.TaskKey{Channel: "C", MessageTS: "1"}, Status: "open"})
	assert.True(t, domain.IsNotFound(err))
}

func TestStore_Delete(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := domain.TaskKey{Channel: "C1", MessageTS: "1.0"}

	_, err := s.Create(ctx, newTask("C1", "1.0", "open", time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, key))

	assert.True(t, domain.IsNotFound(s.Delete(ctx, key)))
}

func TestStore_ListByStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().UTC()

	_, _ = s.Create(ctx, newTask("C1", "1", "open", base))
	_, _ = s.Create(ctx, newTask("C1", "2", "working", base.Add(time.Minute)))
	_, _ = s.Create(ctx, newTask("C1", "3", "finished", base.Add(2*time.Minute)))

	tasks, err := s.ListByStatus(ctx, []string{"open", "working"}, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "2", tasks[0].MessageTS, "newest first")

	tasks, err = s.ListByStatus(ctx, []string{"open", "working"}, 1)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestStore_SeedStates(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SeedStates(ctx, []domain.TaskState{
		{Name: "open", Emoji: "eyes", Description: "first", OrderNum: 1},
	}))
	require.NoError(t, s.SeedStates(ctx, []domain.TaskState{
		{Name: "open", Emoji: "inbox_tray", Description: "second", OrderNum: 1},
		{Name: "done", Emoji: "white_check_mark", OrderNum: 2, IsTerminal: true},
	}))

	states, err := s.LoadStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "inbox_tray", states[0].Emoji, "emoji refreshed")
	assert.Equal(t, "first", states[0].Description, "existing row otherwise untouched")
	assert.Equal(t, "done", states[1].Name)
}

func TestStore_ConcurrentCreateSameKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.Create(ctx, newTask("C1", "1.0", "open", time.Now())); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Len(t, s.All(), 1)
}
