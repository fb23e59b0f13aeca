//go:build unit

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination/keyspace"
	"github.com/LerianStudio/lib-coordination/coordination/list"
	"github.com/LerianStudio/lib-coordination/coordination/lock"
	"github.com/LerianStudio/lib-coordination/coordination/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	t.Setenv("COORD_REDIS_ADDRESSES", mr.Addr())
	t.Setenv("COORD_REDIS_LOCK_RETRY_DELAY", "5ms")

	client, err := redis.New(context.Background(), redis.Config{
		Topology: redis.Topology{Standalone: &redis.StandaloneTopology{Address: mr.Addr()}},
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func saveList(t *testing.T, client *redis.Client, instance string, items []int) {
	t.Helper()

	st, err := redis.NewStore(client)
	require.NoError(t, err)

	ns, err := keyspace.NewWithInstance("cases", instance)
	require.NoError(t, err)

	m, err := list.NewManager[int](ns, st, time.Minute)
	require.NoError(t, err)
	require.NoError(t, m.SaveList(context.Background(), "pending", items))
}

func TestListsAll(t *testing.T) {
	_, client := setupRedis(t)

	saveList(t, client, "a", []int{1, 2})
	saveList(t, client, "b", []int{3})

	out, err := execute(t, "lists", "all", "--root", "cases", "--key", "pending")
	require.NoError(t, err)

	var got struct {
		Root  string `json:"root"`
		Key   string `json:"key"`
		Items []int  `json:"items"`
	}

	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "cases", got.Root)
	assert.Equal(t, "pending", got.Key)
	assert.ElementsMatch(t, []int{1, 2, 3}, got.Items)
}

func TestListsAllEmpty(t *testing.T) {
	setupRedis(t)

	out, err := execute(t, "lists", "all", "--root", "cases", "--key", "none")
	require.NoError(t, err)
	assert.Contains(t, out, `"items": []`)
}

func TestListsAllRequiresKey(t *testing.T) {
	setupRedis(t)

	_, err := execute(t, "lists", "all", "--root", "cases")
	assert.ErrorContains(t, err, "--key is required")
}

func TestListsInstance(t *testing.T) {
	_, client := setupRedis(t)

	saveList(t, client, "a", []int{1, 2})
	saveList(t, client, "b", []int{3})

	out, err := execute(t, "lists", "instance", "--root", "cases", "--instance", "a")
	require.NoError(t, err)

	var got struct {
		Lists map[string][]int `json:"lists"`
	}

	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string][]int{"cases:a:pending": {1, 2}}, got.Lists)
}

func TestLockStatus(t *testing.T) {
	_, client := setupRedis(t)

	out, err := execute(t, "lock", "status", "--root", "jobs", "--name", "nightly")
	require.NoError(t, err)
	assert.Contains(t, out, `"locked": false`)
	assert.Contains(t, out, `"key": "jobs:global:nightly"`)

	locker, err := redis.NewLocker(client)
	require.NoError(t, err)

	ns, err := keyspace.NewWithInstance("jobs", "worker-1")
	require.NoError(t, err)

	m, err := lock.NewManager(ns, locker, time.Minute)
	require.NoError(t, err)

	ok, err := m.Lock(context.Background(), "nightly")
	require.NoError(t, err)
	require.True(t, ok)

	out, err = execute(t, "lock", "status", "--root", "jobs", "--name", "nightly")
	require.NoError(t, err)
	assert.Contains(t, out, `"locked": true`)
}

func TestLockHold(t *testing.T) {
	mr, _ := setupRedis(t)

	out, err := execute(t, "lock", "hold", "--root", "jobs", "--name", "nightly", "--for", "10ms")
	require.NoError(t, err)

	dec := json.NewDecoder(bytes.NewBufferString(out))

	var acquired, released lockEventOutput

	require.NoError(t, dec.Decode(&acquired))
	require.NoError(t, dec.Decode(&released))

	assert.Equal(t, lock.EventAcquire, acquired.Event)
	assert.Equal(t, lock.StateLocked, acquired.State)
	assert.Equal(t, "30s", acquired.Lease)
	assert.Equal(t, lock.EventRelease, released.Event)
	assert.Equal(t, lock.StateUnlocked, released.State)

	assert.False(t, mr.Exists("jobs:global:nightly"))
}

func TestLockHoldContended(t *testing.T) {
	mr, _ := setupRedis(t)

	require.NoError(t, mr.Set("jobs:global:nightly", "someone-else"))

	_, err := execute(t, "lock", "hold", "--root", "jobs", "--name", "nightly", "--for", "10ms")
	assert.ErrorContains(t, err, "held by another owner")
}

func TestLockHoldReportsExpiry(t *testing.T) {
	mr, _ := setupRedis(t)
	t.Setenv("COORD_LOCK_TIME_TO_LIVE", "1s")

	done := make(chan struct{})

	go func() {
		defer close(done)

		// Let the hold start, then expire its lease.
		assert.Eventually(t, func() bool { return mr.Exists("jobs:global:nightly") }, time.Second, time.Millisecond)
		mr.FastForward(2 * time.Second)
	}()

	out, err := execute(t, "lock", "hold", "--root", "jobs", "--name", "nightly", "--for", "200ms")
	<-done
	require.NoError(t, err)
	assert.Contains(t, out, `"event": "expire"`)
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("COORD_BACKEND", "etcd")

	_, err := execute(t, "lock", "status", "--root", "jobs", "--name", "x")
	assert.Error(t, err)
}
