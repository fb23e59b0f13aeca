//go:build integration

package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a real Redis 7 container and returns a connected client.
func setupRedisContainer(t *testing.T) *Client {
	t.Helper()

	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := New(ctx, Config{
		Topology: Topology{Standalone: &StandaloneTopology{Address: endpoint}},
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestIntegration_StoreRoundTripAndExpiry(t *testing.T) {
	client := setupRedisContainer(t)
	ctx := context.Background()

	s, err := NewStore(client)
	require.NoError(t, err)

	require.NoError(t, s.SetWithExpiry(ctx, "it:u1:k", []byte("v"), time.Second))
	require.NoError(t, s.SetWithExpiry(ctx, "it:u2:k", []byte("w"), time.Minute))

	keys, err := s.ScanKeys(ctx, "it:*:k")
	require.NoError(t, err)
	assert.Equal(t, []string{"it:u1:k", "it:u2:k"}, keys)

	assert.Eventually(t, func() bool {
		_, err := s.Get(ctx, "it:u1:k")
		return errors.Is(err, store.ErrNotFound)
	}, 5*time.Second, 100*time.Millisecond)
}

func TestIntegration_LockerMutualExclusion(t *testing.T) {
	client := setupRedisContainer(t)

	locker, err := NewLocker(client, WithRetryDelay(10*time.Millisecond))
	require.NoError(t, err)

	const workers = 8

	var (
		inside   atomic.Int32
		overlaps atomic.Int32
		wg       sync.WaitGroup
	)

	for i := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			owner := "worker-" + string(rune('a'+i))
			ctx := context.Background()

			ok, err := locker.AcquireBlocking(ctx, "it:global:container", owner, 10*time.Second, 5*time.Second)
			if !assert.NoError(t, err) || !assert.True(t, ok) {
				return
			}

			if inside.Add(1) > 1 {
				overlaps.Add(1)
			}

			time.Sleep(10 * time.Millisecond)
			inside.Add(-1)

			released, err := locker.Release(ctx, "it:global:container", owner)
			assert.NoError(t, err)
			assert.True(t, released)
		}()
	}

	wg.Wait()
	assert.Zero(t, overlaps.Load())
}

func TestIntegration_LockerLeaseExpires(t *testing.T) {
	client := setupRedisContainer(t)
	ctx := context.Background()

	locker, err := NewLocker(client)
	require.NoError(t, err)

	ok, err := locker.TryAcquire(ctx, "it:global:lease", "owner-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		ok, err := locker.TryAcquire(ctx, "it:global:lease", "owner-2", time.Minute)
		return err == nil && ok
	}, 5*time.Second, 100*time.Millisecond)

	released, err := locker.Release(ctx, "it:global:lease", "owner-1")
	require.NoError(t, err)
	assert.False(t, released, "expired holder cannot release the new owner's lock")
}
