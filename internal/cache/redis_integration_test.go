package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestRedisClient_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	addr := startRedis(t)
	c, err := NewRedisClient(RedisConfig{Addr: addr, Prefix: "test:"})
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	t.Run("get set", func(t *testing.T) {
		_, err := c.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrCacheMiss)

		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)

		require.NoError(t, c.Delete(ctx, "k"))
		_, err = c.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("lock", func(t *testing.T) {
		release, err := c.Acquire(ctx, "123456789/2021/remote_job", time.Minute)
		require.NoError(t, err)

		_, err = c.Acquire(ctx, "123456789/2021/remote_job", time.Minute)
		assert.ErrorIs(t, err, ErrLockHeld)

		require.NoError(t, release(ctx))
		again, err := c.Acquire(ctx, "123456789/2021/remote_job", time.Minute)
		require.NoError(t, err)

		require.NoError(t, release(ctx))
		_, err = c.Acquire(ctx, "123456789/2021/remote_job", time.Minute)
		assert.ErrorIs(t, err, ErrLockHeld)
		require.NoError(t, again(ctx))
	})
}
