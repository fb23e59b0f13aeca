package lock

import (
	"errors"
	"fmt"
)

var (
	// ErrAcquisitionFailed is returned when a lock could not be obtained within
	// its wait budget, or an operation required a lock the caller did not hold.
	ErrAcquisitionFailed = errors.New("lock acquisition failed")
	// ErrReleaseFailed is returned when the store denies that the caller holds a
	// lock it believes it owns, usually because the lease expired.
	ErrReleaseFailed = errors.New("lock release failed")
	// ErrNilLocker is returned when a Manager is built without a store locker.
	ErrNilLocker = errors.New("lock: locker is nil")
	// ErrInvalidTTL is returned when the time-to-live is not positive.
	ErrInvalidTTL = errors.New("lock: time to live must be greater than 0")
	// ErrEmptyName is returned when a lock name is blank.
	ErrEmptyName = errors.New("lock: name cannot be empty")
	// ErrReservedName is returned when a named lock operation targets the
	// container lock name. Use the container methods instead.
	ErrReservedName = errors.New("lock: name is reserved for the container lock")
	// ErrNilFn is returned when WithLock receives a nil function.
	ErrNilFn = errors.New("lock: function is nil")
)

// Error describes a failed lock operation on a named lock.
type Error struct {
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("lock: %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
