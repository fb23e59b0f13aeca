package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

var (
	// ErrNilLogger is returned when a constructor receives a nil logger.
	ErrNilLogger = errors.New("circuitbreaker: logger must not be nil")
	// ErrNilManager is returned when a health checker is built without a manager.
	ErrNilManager = errors.New("circuitbreaker: manager must not be nil")
	// ErrUnknownBreaker is returned by Execute for a name never passed to GetOrCreate.
	ErrUnknownBreaker = errors.New("circuitbreaker: breaker not found")
	// ErrUnavailable wraps calls rejected without running because the breaker is
	// open or half-open with its trial budget spent.
	ErrUnavailable = errors.New("circuitbreaker: dependency unavailable")
)

// Manager manages named circuit breakers.
type Manager interface {
	// GetOrCreate returns the existing breaker for name or creates one.
	GetOrCreate(name string, config Config) CircuitBreaker
	// Execute runs fn through the named breaker.
	Execute(name string, fn func() (any, error)) (any, error)
	// GetState returns the breaker's state, StateUnknown for an unknown name.
	GetState(name string) State
	// GetCounts returns the breaker's counters.
	GetCounts(name string) Counts
	// IsHealthy reports whether the breaker is closed.
	IsHealthy(name string) bool
	// Reset recreates the breaker in the closed state.
	Reset(name string)
	// RegisterStateChangeListener adds a listener notified on every transition.
	RegisterStateChangeListener(listener StateChangeListener)
}

// CircuitBreaker is a single named breaker.
type CircuitBreaker interface {
	Execute(fn func() (any, error)) (any, error)
	State() State
	Counts() Counts
}

// Config holds circuit breaker configuration.
type Config struct {
	MaxRequests         uint32        // requests allowed while half-open
	Interval            time.Duration // closed-state window after which counts are cleared
	Timeout             time.Duration // open-state duration before half-open
	ConsecutiveFailures uint32        // consecutive failures that trip the breaker
	FailureRatio        float64       // failure ratio that trips the breaker
	MinRequests         uint32        // requests needed before the ratio is considered
}

// State represents circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
	StateUnknown  State = "unknown"
)

// Counts represents circuit breaker statistics.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// HealthCheckFunc probes a dependency.
type HealthCheckFunc func(ctx context.Context) error

// StateChangeListener is notified when a breaker changes state.
type StateChangeListener interface {
	OnStateChange(name string, from State, to State)
}

// HealthChecker probes unhealthy dependencies and resets their breakers.
type HealthChecker interface {
	Register(name string, fn HealthCheckFunc)
	Start()
	Stop()
	GetHealthStatus() map[string]string
	StateChangeListener
}

type circuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

func (cb *circuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return cb.breaker.Execute(fn)
}

func (cb *circuitBreaker) State() State {
	return convertGobreakerState(cb.breaker.State())
}

func (cb *circuitBreaker) Counts() Counts {
	return convertCounts(cb.breaker.Counts())
}

func convertGobreakerState(state gobreaker.State) State {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateUnknown
	}
}

func convertCounts(counts gobreaker.Counts) Counts {
	return Counts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}
