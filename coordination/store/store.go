// Package store defines the backing-store capabilities the coordination managers
// need: a key-value store with per-key expiry and pattern scan, and a
// lease-bounded mutex service with owner-aware checks.
//
// Implementations live in store/memory (in-process) and redis.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when a key is absent or expired.
	ErrNotFound = errors.New("store: key not found")
	// ErrInvalidLease is returned by lockers for a non-positive lease.
	ErrInvalidLease = errors.New("store: lease must be positive")
)

// Store is a key-value store with per-key expiry.
type Store interface {
	// SetWithExpiry writes value at key, replacing any previous value and TTL.
	// A non-positive ttl stores the key without expiry.
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value at key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. An absent key is not an error.
	Delete(ctx context.Context, key string) error
	// ScanKeys returns every live key matching a Redis-style glob pattern.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}

// Locker is a named, lease-bounded mutex service. The owner string identifies
// the holder; only the holder may release or re-lease a lock.
type Locker interface {
	// TryAcquire takes key for owner without waiting. Contention is (false, nil).
	// A lock already held by owner is reported as acquired and its lease renewed.
	TryAcquire(ctx context.Context, key, owner string, lease time.Duration) (bool, error)
	// AcquireBlocking waits up to wait for key. Running out of wait is (false, nil);
	// cancellation of ctx is an error.
	AcquireBlocking(ctx context.Context, key, owner string, wait, lease time.Duration) (bool, error)
	// IsLocked reports whether anyone holds key.
	IsLocked(ctx context.Context, key string) (bool, error)
	// IsHeldBy reports whether owner holds key.
	IsHeldBy(ctx context.Context, key, owner string) (bool, error)
	// Release frees key if owner holds it and reports whether it did.
	Release(ctx context.Context, key, owner string) (bool, error)
	// SetLease replaces the remaining lease of a lock held by owner.
	SetLease(ctx context.Context, key, owner string, lease time.Duration) (bool, error)
}
