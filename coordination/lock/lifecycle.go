package lock

import "github.com/LerianStudio/lib-coordination/coordination/state"

// State is the lifecycle state of a named lock as seen by one owner.
type State string

// Event moves a lock between states.
type Event string

const (
	StateUnlocked State = "UNLOCKED"
	StateLocked   State = "LOCKED"

	EventAcquire Event = "acquire"
	EventRelease Event = "release"
	// EventExpire is the lease running out without a release.
	EventExpire Event = "expire"
)

// Lifecycle returns the lock state machine. Acquiring a held lock renews its
// lease and keeps it locked.
func Lifecycle() *state.Manager[State, Event] {
	m := state.New[State, Event]()
	m.AddTransition(StateUnlocked, EventAcquire, StateLocked)
	m.AddTransition(StateLocked, EventAcquire, StateLocked)
	m.AddTransition(StateLocked, EventRelease, StateUnlocked)
	m.AddTransition(StateLocked, EventExpire, StateUnlocked)

	return m
}
