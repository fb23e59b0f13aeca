package list

import (
	"context"
	"errors"

	"github.com/LerianStudio/lib-coordination/coordination/lock"
)

var (
	// ErrNilManager is returned when a LockingManager is built without lists.
	ErrNilManager = errors.New("list: manager is nil")
	// ErrNilContainerLocker is returned when a LockingManager is built without a lock.
	ErrNilContainerLocker = errors.New("list: container locker is nil")
)

// LockingManager runs every list operation under the container lock.
//
// Each call takes the container lock unless the current owner already holds
// it, waiting up to the locker's wait budget; on timeout the operation is not
// run and the *lock.Error wrapping lock.ErrAcquisitionFailed is returned.
// When unlock is true the lock is released afterwards, also when the
// operation failed; both errors are then joined. With unlock false the caller
// keeps the lock for a following call, bounded by its lease.
type LockingManager[T any] struct {
	lists *Manager[T]
	locks lock.ContainerLocker
}

// NewLockingManager composes lists with the container lock of locks.
func NewLockingManager[T any](lists *Manager[T], locks lock.ContainerLocker) (*LockingManager[T], error) {
	if lists == nil {
		return nil, ErrNilManager
	}

	if locks == nil {
		return nil, ErrNilContainerLocker
	}

	return &LockingManager[T]{lists: lists, locks: locks}, nil
}

// Lists returns the unguarded manager.
func (m *LockingManager[T]) Lists() *Manager[T] { return m.lists }

// SaveList saves list under the container lock.
func (m *LockingManager[T]) SaveList(ctx context.Context, key string, list []T, unlock bool) error {
	_, err := guarded(ctx, m.locks, unlock, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.lists.SaveList(ctx, key, list)
	})

	return err
}

// FindListForInstance reads this instance's copy of key under the container lock.
func (m *LockingManager[T]) FindListForInstance(ctx context.Context, key string, unlock bool) ([]T, error) {
	return guarded(ctx, m.locks, unlock, func(ctx context.Context) ([]T, error) {
		return m.lists.FindListForInstance(ctx, key)
	})
}

// FindListForAllInstances gathers every instance's copy of key under the container lock.
func (m *LockingManager[T]) FindListForAllInstances(ctx context.Context, key string, unlock bool) ([]T, error) {
	return guarded(ctx, m.locks, unlock, func(ctx context.Context) ([]T, error) {
		return m.lists.FindListForAllInstances(ctx, key)
	})
}

// FindAllLists returns this instance's lists, keyed by composite key, under
// the container lock.
func (m *LockingManager[T]) FindAllLists(ctx context.Context, unlock bool) (map[string][]T, error) {
	return guarded(ctx, m.locks, unlock, func(ctx context.Context) (map[string][]T, error) {
		return m.lists.FindAllLists(ctx)
	})
}

// DeleteList deletes this instance's copy of key under the container lock.
func (m *LockingManager[T]) DeleteList(ctx context.Context, key string, unlock bool) error {
	_, err := guarded(ctx, m.locks, unlock, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.lists.DeleteList(ctx, key)
	})

	return err
}

// LockContainer takes the container lock explicitly.
func (m *LockingManager[T]) LockContainer(ctx context.Context) error {
	return m.locks.LockContainer(ctx)
}

// UnlockContainer releases the container lock.
func (m *LockingManager[T]) UnlockContainer(ctx context.Context) error {
	return m.locks.UnlockContainer(ctx)
}

// ContainerIsLockedByCurrentOwner reports whether the current owner holds the
// container lock.
func (m *LockingManager[T]) ContainerIsLockedByCurrentOwner(ctx context.Context) (bool, error) {
	return m.locks.ContainerIsLockedByCurrentOwner(ctx)
}

func guarded[R any](ctx context.Context, locks lock.ContainerLocker, unlock bool, fn func(context.Context) (R, error)) (R, error) {
	var zero R

	held, err := locks.ContainerIsLockedByCurrentOwner(ctx)
	if err != nil {
		return zero, err
	}

	if !held {
		if err := locks.LockContainer(ctx); err != nil {
			return zero, err
		}
	}

	result, err := fn(ctx)

	if unlock {
		if unlockErr := locks.UnlockContainer(ctx); unlockErr != nil {
			return result, errors.Join(err, unlockErr)
		}
	}

	return result, err
}
