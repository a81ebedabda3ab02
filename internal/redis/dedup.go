package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "reactiontasks:"

// DefaultDedupTTL covers the chat platform's retry window with margin.
const DefaultDedupTTL = 10 * time.Minute

func eventKey(id string) string { return keyPrefix + "event:" + id }

// Deduper reports whether an inbound delivery was already seen.
type Deduper interface {
	// Seen marks id as delivered and returns true when it had already been
	// marked within the TTL.
	Seen(ctx context.Context, id string) (bool, error)
}

type deduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDeduper returns a Deduper backed by SET NX with a TTL.
func NewDeduper(client *redis.Client, ttl time.Duration) Deduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &deduper{client: client, ttl: ttl}
}

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

func (d *deduper) Seen(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	fresh, err := d.client.SetNX(ctx, eventKey(id), time.Now().UTC().Format(time.RFC3339Nano), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx for event %s: %w", id, err)
	}
	return !fresh, nil
}
