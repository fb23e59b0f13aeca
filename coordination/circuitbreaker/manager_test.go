//go:build unit

package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination/log"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tripFast() Config {
	return Config{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             50 * time.Millisecond,
		ConsecutiveFailures: 3,
		FailureRatio:        0.9,
		MinRequests:         100,
	}
}

func newManager(t *testing.T) Manager {
	t.Helper()

	m, err := NewManager(log.NewNop())
	require.NoError(t, err)

	return m
}

func TestNewManagerRejectsNilLogger(t *testing.T) {
	m, err := NewManager(nil)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, ErrNilLogger)
}

func TestInitialState(t *testing.T) {
	m := newManager(t)
	m.GetOrCreate("redis", DefaultConfig())

	assert.Equal(t, StateClosed, m.GetState("redis"))
	assert.True(t, m.IsHealthy("redis"))
	assert.Equal(t, StateUnknown, m.GetState("missing"))
	assert.Equal(t, Counts{}, m.GetCounts("missing"))
}

func TestGetOrCreateReturnsSameBreaker(t *testing.T) {
	m := newManager(t)

	a := m.GetOrCreate("redis", tripFast())
	b := m.GetOrCreate("redis", DefaultConfig())

	_, _ = a.Execute(func() (any, error) { return nil, errors.New("x") })
	assert.Equal(t, uint32(1), b.Counts().TotalFailures)
}

func TestExecuteUnknownBreaker(t *testing.T) {
	m := newManager(t)

	_, err := m.Execute("missing", func() (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrUnknownBreaker)
}

func TestExecuteSuccess(t *testing.T) {
	m := newManager(t)
	m.GetOrCreate("redis", DefaultConfig())

	result, err := m.Execute("redis", func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, uint32(1), m.GetCounts("redis").TotalSuccesses)
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	m := newManager(t)
	m.GetOrCreate("redis", tripFast())

	boom := errors.New("connection refused")

	for range 3 {
		_, err := m.Execute("redis", func() (any, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, m.GetState("redis"))
	assert.False(t, m.IsHealthy("redis"))

	called := false
	_, err := m.Execute("redis", func() (any, error) {
		called = true
		return nil, nil
	})

	assert.False(t, called)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestHalfOpenAfterTimeout(t *testing.T) {
	m := newManager(t)
	cb := m.GetOrCreate("redis", tripFast())

	for range 3 {
		_, _ = cb.Execute(func() (any, error) { return nil, errors.New("x") })
	}

	require.Equal(t, StateOpen, cb.State())

	assert.Eventually(t, func() bool {
		return cb.State() == StateHalfOpen
	}, time.Second, 5*time.Millisecond)

	_, err := m.Execute("redis", func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, m.GetState("redis"))
}

func TestReset(t *testing.T) {
	m := newManager(t)
	m.GetOrCreate("redis", tripFast())

	for range 3 {
		_, _ = m.Execute("redis", func() (any, error) { return nil, errors.New("x") })
	}

	require.Equal(t, StateOpen, m.GetState("redis"))

	m.Reset("redis")
	assert.Equal(t, StateClosed, m.GetState("redis"))
	assert.Equal(t, Counts{}, m.GetCounts("redis"))

	assert.NotPanics(t, func() { m.Reset("missing") })
}

type recordingListener struct {
	mu      sync.Mutex
	changes [][2]State
}

func (l *recordingListener) OnStateChange(_ string, from State, to State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.changes = append(l.changes, [2]State{from, to})
}

func (l *recordingListener) snapshot() [][2]State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([][2]State(nil), l.changes...)
}

type panickingListener struct{}

func (panickingListener) OnStateChange(string, State, State) { panic("listener bug") }

func TestStateChangeListeners(t *testing.T) {
	m := newManager(t)
	listener := &recordingListener{}

	m.RegisterStateChangeListener(nil)
	m.RegisterStateChangeListener(panickingListener{})
	m.RegisterStateChangeListener(listener)
	m.GetOrCreate("redis", tripFast())

	for range 3 {
		_, _ = m.Execute("redis", func() (any, error) { return nil, errors.New("x") })
	}

	assert.Eventually(t, func() bool {
		changes := listener.snapshot()
		return len(changes) == 1 && changes[0] == [2]State{StateClosed, StateOpen}
	}, time.Second, 5*time.Millisecond)
}

func TestHealthCheckerValidation(t *testing.T) {
	m := newManager(t)
	logger := log.NewNop()

	_, err := NewHealthChecker(nil, time.Second, time.Second, logger)
	assert.ErrorIs(t, err, ErrNilManager)

	_, err = NewHealthChecker(m, time.Second, time.Second, nil)
	assert.ErrorIs(t, err, ErrNilLogger)

	_, err = NewHealthChecker(m, 0, time.Second, logger)
	assert.ErrorIs(t, err, ErrInvalidHealthCheckInterval)

	_, err = NewHealthChecker(m, time.Second, -time.Second, logger)
	assert.ErrorIs(t, err, ErrInvalidHealthCheckTimeout)
}

func TestHealthCheckerResetsRecoveredBreaker(t *testing.T) {
	m := newManager(t)
	cfg := tripFast()
	cfg.Timeout = time.Hour
	m.GetOrCreate("redis", cfg)

	hc, err := NewHealthChecker(m, time.Hour, time.Second, log.NewNop())
	require.NoError(t, err)

	probes := make(chan struct{}, 10)
	hc.Register("redis", func(context.Context) error {
		probes <- struct{}{}
		return nil
	})
	m.RegisterStateChangeListener(hc)

	hc.Start()
	defer hc.Stop()

	for range 3 {
		_, _ = m.Execute("redis", func() (any, error) { return nil, errors.New("x") })
	}

	select {
	case <-probes:
	case <-time.After(time.Second):
		t.Fatal("expected an immediate probe after the breaker opened")
	}

	assert.Eventually(t, func() bool { return m.IsHealthy("redis") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, map[string]string{"redis": "closed"}, hc.GetHealthStatus())
}

func TestHealthCheckerStopIsIdempotent(t *testing.T) {
	hc, err := NewHealthChecker(newManager(t), time.Hour, time.Second, log.NewNop())
	require.NoError(t, err)

	hc.Start()
	hc.Stop()
	assert.NotPanics(t, hc.Stop)
}
