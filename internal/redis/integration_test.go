package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"tms/internal/redis"
)

var baseTime = time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)

// startRedis launches a disposable Redis container and returns a client.
func startRedis(t *testing.T) *goredis.Client {
	t.Helper()
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}

	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.Eventually(t, func() bool { return client.Ping(ctx).Err() == nil }, 10*time.Second, 100*time.Millisecond)
	return client
}

func cached(id, status string, updated time.Time) *redis.CachedDispatch {
	return &redis.CachedDispatch{
		ID:        id,
		BookingID: "b-" + id,
		Status:    status,
		CreatedAt: baseTime,
		UpdatedAt: updated,
	}
}

func TestRedisStores(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	t.Run("lock release needs the owner token", func(t *testing.T) {
		locks := redis.NewLockStore(client)

		first, err := locks.AcquireDriverLock(ctx, "drv-1", time.Minute)
		require.NoError(t, err)
		require.NotEmpty(t, first)

		again, err := locks.AcquireDriverLock(ctx, "drv-1", time.Minute)
		require.NoError(t, err)
		assert.Empty(t, again)

		// First owner's lock lapses and a second owner takes it.
		require.NoError(t, client.Del(ctx, "lock:driver:drv-1").Err())
		second, err := locks.AcquireDriverLock(ctx, "drv-1", time.Minute)
		require.NoError(t, err)
		require.NotEmpty(t, second)

		require.NoError(t, locks.ReleaseDriverLock(ctx, "drv-1", first))
		held, err := client.Get(ctx, "lock:driver:drv-1").Result()
		require.NoError(t, err)
		assert.Equal(t, second, held)

		require.NoError(t, locks.ReleaseDriverLock(ctx, "drv-1", second))
		n, err := client.Exists(ctx, "lock:driver:drv-1").Result()
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("older write does not replace newer", func(t *testing.T) {
		cache := redis.NewCacheStore(client, time.Minute)

		require.NoError(t, cache.SetDispatch(ctx, cached("d-1", "dispatched", baseTime.Add(time.Second))))
		require.NoError(t, cache.SetDispatch(ctx, cached("d-1", "pending", baseTime)))

		got, err := cache.GetDispatch(ctx, "d-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "dispatched", got.Status)

		require.NoError(t, cache.SetDispatch(ctx, cached("d-1", "in_transit", baseTime.Add(2*time.Second))))
		got, err = cache.GetDispatch(ctx, "d-1")
		require.NoError(t, err)
		assert.Equal(t, "in_transit", got.Status)

		ttl, err := client.PTTL(ctx, "cache:dispatch:d-1").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("fill only populates an empty key", func(t *testing.T) {
		cache := redis.NewCacheStore(client, time.Minute)

		require.NoError(t, cache.SetDispatch(ctx, cached("d-2", "dispatched", baseTime)))
		require.NoError(t, cache.FillDispatch(ctx, cached("d-2", "pending", baseTime)))

		got, err := cache.GetDispatch(ctx, "d-2")
		require.NoError(t, err)
		assert.Equal(t, "dispatched", got.Status)

		require.NoError(t, cache.FillDispatch(ctx, cached("d-3", "pending", baseTime)))
		got, err = cache.GetDispatch(ctx, "d-3")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "pending", got.Status)
	})

	t.Run("tombstone hides the dispatch and blocks fills", func(t *testing.T) {
		cache := redis.NewCacheStore(client, time.Minute)

		require.NoError(t, cache.SetDispatch(ctx, cached("d-4", "pending", baseTime)))
		require.NoError(t, cache.InvalidateDispatch(ctx, "d-4"))

		got, err := cache.GetDispatch(ctx, "d-4")
		require.NoError(t, err)
		assert.Nil(t, got)

		require.NoError(t, cache.FillDispatch(ctx, cached("d-4", "pending", baseTime)))
		got, err = cache.GetDispatch(ctx, "d-4")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("miss returns nil", func(t *testing.T) {
		cache := redis.NewCacheStore(client, time.Minute)
		got, err := cache.GetDispatch(ctx, "ghost")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
