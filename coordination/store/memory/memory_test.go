//go:build unit

package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() *Store {
	return New(WithPollInterval(time.Millisecond))
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	require.NoError(t, s.SetWithExpiry(ctx, "r:u1:k", []byte("v1"), time.Minute))

	got, err := s.Get(ctx, "r:u1:k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, s.SetWithExpiry(ctx, "r:u1:k", []byte("v2"), time.Minute))
	got, err = s.Get(ctx, "r:u1:k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, s.Delete(ctx, "r:u1:k"))
	require.NoError(t, s.Delete(ctx, "r:u1:k"))

	_, err = s.Get(ctx, "r:u1:k")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	value := []byte("abc")
	require.NoError(t, s.SetWithExpiry(ctx, "k", value, 0))
	value[0] = 'X'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestExpiryFollowsClock(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	require.NoError(t, s.SetWithExpiry(ctx, "short", []byte("x"), time.Second))
	require.NoError(t, s.SetWithExpiry(ctx, "forever", []byte("y"), 0))

	s.Advance(999 * time.Millisecond)
	_, err := s.Get(ctx, "short")
	require.NoError(t, err)

	s.Advance(time.Millisecond)
	_, err = s.Get(ctx, "short")
	assert.ErrorIs(t, err, store.ErrNotFound)

	s.Advance(24 * time.Hour)
	_, err = s.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestWithClock(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return base }))

	assert.Equal(t, base, s.Now())
	s.Advance(time.Minute)
	assert.Equal(t, base.Add(time.Minute), s.Now())
}

func TestScanKeys(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	for _, key := range []string{"r:u1:k", "r:u2:k", "r:global:k", "r:u1:other", "x:u1:k"} {
		require.NoError(t, s.SetWithExpiry(ctx, key, []byte("v"), time.Minute))
	}

	require.NoError(t, s.SetWithExpiry(ctx, "r:u3:k", []byte("v"), time.Second))
	s.Advance(2 * time.Second)

	keys, err := s.ScanKeys(ctx, "r:*:k")
	require.NoError(t, err)
	assert.Equal(t, []string{"r:global:k", "r:u1:k", "r:u2:k"}, keys)

	keys, err = s.ScanKeys(ctx, "nothing:*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestTryAcquireRelease(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	ok, err := s.TryAcquire(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryAcquire(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.TryAcquire(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "holder re-acquiring renews")

	held, err := s.IsHeldBy(ctx, "lock", "b")
	require.NoError(t, err)
	assert.False(t, held)

	released, err := s.Release(ctx, "lock", "b")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = s.Release(ctx, "lock", "a")
	require.NoError(t, err)
	assert.True(t, released)

	locked, err := s.IsLocked(ctx, "lock")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	ok, err := s.TryAcquire(ctx, "lock", "a", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	s.Advance(31 * time.Second)

	locked, err := s.IsLocked(ctx, "lock")
	require.NoError(t, err)
	assert.False(t, locked)

	ok, err = s.TryAcquire(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetLease(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	_, err := s.TryAcquire(ctx, "lock", "a", time.Second)
	require.NoError(t, err)

	ok, err := s.SetLease(ctx, "lock", "b", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.SetLease(ctx, "lock", "a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	s.Advance(time.Minute)

	held, err := s.IsHeldBy(ctx, "lock", "a")
	require.NoError(t, err)
	assert.True(t, held)

	_, err = s.SetLease(ctx, "lock", "a", 0)
	assert.ErrorIs(t, err, store.ErrInvalidLease)
}

func TestInvalidLease(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	_, err := s.TryAcquire(ctx, "lock", "a", 0)
	assert.ErrorIs(t, err, store.ErrInvalidLease)

	_, err = s.AcquireBlocking(ctx, "lock", "a", time.Second, -time.Second)
	assert.ErrorIs(t, err, store.ErrInvalidLease)
}

func TestAcquireBlockingTimesOut(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	_, err := s.TryAcquire(ctx, "lock", "a", time.Hour)
	require.NoError(t, err)

	start := time.Now()
	ok, err := s.AcquireBlocking(ctx, "lock", "b", 20*time.Millisecond, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	s.mu.Lock()
	assert.Empty(t, s.waiters, "timed out waiter leaves the queue")
	s.mu.Unlock()
}

func TestAcquireBlockingCancelled(t *testing.T) {
	s := newStore()

	_, err := s.TryAcquire(context.Background(), "lock", "a", time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	ok, err := s.AcquireBlocking(ctx, "lock", "b", time.Hour, time.Minute)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireBlockingHandOffOnRelease(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	_, err := s.TryAcquire(ctx, "lock", "a", time.Hour)
	require.NoError(t, err)

	result := make(chan bool, 1)

	go func() {
		ok, _ := s.AcquireBlocking(ctx, "lock", "b", 5*time.Second, time.Minute)
		result <- ok
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()

		return len(s.waiters["lock"]) == 1
	}, time.Second, time.Millisecond)

	ok, err := s.TryAcquire(ctx, "lock", "c", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := s.Release(ctx, "lock", "a")
	require.NoError(t, err)
	require.True(t, released)

	assert.True(t, <-result)

	held, err := s.IsHeldBy(ctx, "lock", "b")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestAcquireBlockingHandOffOnLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	_, err := s.TryAcquire(ctx, "lock", "a", 30*time.Second)
	require.NoError(t, err)

	result := make(chan bool, 1)

	go func() {
		ok, _ := s.AcquireBlocking(ctx, "lock", "b", 5*time.Second, time.Minute)
		result <- ok
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()

		return len(s.waiters["lock"]) == 1
	}, time.Second, time.Millisecond)

	s.Advance(31 * time.Second)

	assert.True(t, <-result)
}

func TestAcquireBlockingFIFO(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	_, err := s.TryAcquire(ctx, "lock", "holder", time.Hour)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)

	for i, owner := range []string{"first", "second", "third"} {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ok, err := s.AcquireBlocking(ctx, "lock", owner, 5*time.Second, time.Hour)
			if err != nil || !ok {
				return
			}

			mu.Lock()
			order = append(order, owner)
			mu.Unlock()

			_, _ = s.Release(ctx, "lock", owner)
		}()

		require.Eventually(t, func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()

			return len(s.waiters["lock"]) == i+1
		}, time.Second, time.Millisecond)
	}

	_, err = s.Release(ctx, "lock", "holder")
	require.NoError(t, err)

	wg.Wait()
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newStore()

	assert.ErrorIs(t, s.SetWithExpiry(ctx, "k", nil, 0), context.Canceled)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.ScanKeys(ctx, "*")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.TryAcquire(ctx, "k", "a", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
