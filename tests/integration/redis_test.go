//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/krskas/slack-task-tracker/internal/redis"
)

// newRedisClient returns a client connected to the test container and flushes
// the database on test cleanup so tests don't interfere with each other.
func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	t.Cleanup(func() {
		client.FlushDB(context.Background()) //nolint:errcheck
		client.Close()                       //nolint:errcheck
	})
	return client
}

func TestRedis_Deduper_SecondDeliverySeen(t *testing.T) {
	d := redisstore.NewDeduper(newRedisClient(t), time.Minute)
	ctx := context.Background()

	seen, err := d.Seen(ctx, "Ev01")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = d.Seen(ctx, "Ev01")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = d.Seen(ctx, "Ev02")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedis_Deduper_Expires(t *testing.T) {
	client := newRedisClient(t)
	d := redisstore.NewDeduper(client, 200*time.Millisecond)
	ctx := context.Background()

	_, err := d.Seen(ctx, "Ev-ttl")
	require.NoError(t, err)

	ttl, err := client.PTTL(ctx, "reactiontasks:event:Ev-ttl").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	time.Sleep(400 * time.Millisecond)
	seen, err := d.Seen(ctx, "Ev-ttl")
	require.NoError(t, err)
	assert.False(t, seen, "key should have expired")
}

func TestRedis_RateLimiter_Window(t *testing.T) {
	l := redisstore.NewRateLimiter(newRedisClient(t), 3, time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "U1")
		require.NoError(t, err)
		assert.True(t, ok, "call %d should be allowed", i+1)
	}
	ok, err := l.Allow(ctx, "U1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Other keys have their own budget.
	ok, err = l.Allow(ctx, "U2")
	require.NoError(t, err)
	assert.True(t, ok)
}
