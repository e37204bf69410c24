package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock held by another owner")

// Release frees a lock acquired with Locker.Acquire.
type Release func(ctx context.Context) error

// Locker grants exclusive, expiring locks by key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire takes the lock with SET NX PX.
func (c *RedisClient) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	lockKey := c.prefix + "lock:" + key
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, c.client, []string{lockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis release lock: %w", err)
		}
		return nil
	}, nil
}

// Acquire takes an in-process lock. Expired locks can be taken over.
func (c *MemoryClient) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	token := []byte(uuid.NewString())

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if held, ok := c.locks[key]; ok && !held.expired(now) {
		return nil, ErrLockHeld
	}

	entry := cacheEntry{value: token}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	c.locks[key] = entry

	return func(context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if held, ok := c.locks[key]; ok && bytes.Equal(held.value, token) {
			delete(c.locks, key)
		}
		return nil
	}, nil
}
