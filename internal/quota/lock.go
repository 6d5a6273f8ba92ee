// Package quota runs the broker's daily API-key quota reset, guarded by a
// distributed lock so only one broker process performs it per day.
package quota

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker is a SETNX-style distributed mutex: acquire fails if another
// process already holds key, and release only succeeds for the owner that
// acquired it. This is a SetNX-based mutex, not a full Redlock algorithm —
// a single Redis instance is trusted.
type Locker interface {
	// TryAcquire attempts to take key for ttl, returning the opaque owner
	// token on success.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (acquired bool, owner string, err error)
	// Release frees key, but only if it is still held by owner (a
	// read-then-delete-if-owner sequence, not a single atomic Lua script).
	Release(ctx context.Context, key, owner string) error
}

// RedisLocker implements Locker over github.com/redis/go-redis/v9.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker wraps an existing Redis client as a Locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	owner := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, "", err
	}
	return acquired, owner, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, owner string) error {
	current, err := l.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already expired or released
	}
	if err != nil {
		return err
	}
	if current != owner {
		return nil // someone else's lock now; do not touch it
	}
	return l.client.Del(ctx, key).Err()
}
