// Package state is a small table-driven state machine: register which event
// moves one state to another, then ask for the destination of a transition.
package state

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTransitionNotAllowed matches every *TransitionError.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// TransitionError names the rejected transition.
type TransitionError[S, E comparable] struct {
	From  S
	Event E
}

func (e *TransitionError[S, E]) Error() string {
	return fmt.Sprintf("state transition from %v via %v is not allowed", e.From, e.Event)
}

// Is matches ErrTransitionNotAllowed.
func (e *TransitionError[S, E]) Is(target error) bool { return target == ErrTransitionNotAllowed }

// Manager holds the transition table. Registration and lookups may run
// concurrently.
type Manager[S, E comparable] struct {
	mu          sync.RWMutex
	transitions map[S]map[E]S
}

// New returns a Manager with no transitions.
func New[S, E comparable]() *Manager[S, E] {
	return &Manager[S, E]{transitions: make(map[S]map[E]S)}
}

// AddTransition registers that event moves from to to, replacing any earlier
// destination for the same pair.
func (m *Manager[S, E]) AddTransition(from S, event E, to S) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events, ok := m.transitions[from]
	if !ok {
		events = make(map[E]S)
		m.transitions[from] = events
	}

	events[event] = to
}

// Transition returns the state event leads to from from.
func (m *Manager[S, E]) Transition(from S, event E) (S, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if to, ok := m.transitions[from][event]; ok {
		return to, nil
	}

	var zero S

	return zero, &TransitionError[S, E]{From: from, Event: event}
}
