package retry

import (
	"errors"
	"fmt"
)

var (
	// ErrExhausted matches an *Error returned after every attempt failed.
	ErrExhausted = errors.New("retry attempts exhausted")
	// ErrNotRetryable matches an *Error returned when the retry predicate
	// rejected a failure.
	ErrNotRetryable = errors.New("failure not retryable")
	// ErrInvalidAttempts is returned when maxAttempts is below 1.
	ErrInvalidAttempts = errors.New("retry: max attempts must be at least 1")
	// ErrInvalidPause is returned when the pause is negative.
	ErrInvalidPause = errors.New("retry: pause cannot be negative")
	// ErrNilFn is returned when Run receives a nil function.
	ErrNilFn = errors.New("retry: function is nil")
)

// Error reports how a run ended. It unwraps to the last failure and matches
// ErrExhausted or ErrNotRetryable with errors.Is.
type Error struct {
	Attempts  int
	Err       error
	exhausted bool
}

func (e *Error) Error() string {
	if e.exhausted {
		return fmt.Sprintf("%s after %d attempts: %v", ErrExhausted, e.Attempts, e.Err)
	}

	return fmt.Sprintf("%s on attempt %d: %v", ErrNotRetryable, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel describing how the run ended.
func (e *Error) Is(target error) bool {
	if e.exhausted {
		return target == ErrExhausted
	}

	return target == ErrNotRetryable
}

// Exhausted reports whether every attempt was used.
func (e *Error) Exhausted() bool { return e.exhausted }
