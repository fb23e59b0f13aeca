// Package memory is an in-process implementation of store.Store and store.Locker.
//
// Values and locks share one keyspace, as they do in Redis, so a scan sees lock
// keys too. Expiry is lazy and read from an injectable clock; Advance moves the
// clock forward for deterministic lease tests. Blocked acquirers are served in
// FIFO order.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination/store"
)

const defaultPollInterval = 10 * time.Millisecond

type entry struct {
	value     []byte
	expiresAt time.Time
	lock      bool
}

func (e *entry) alive(now time.Time) bool {
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}

type waiter struct {
	owner   string
	lease   time.Duration
	granted chan struct{}
}

// Store is a map-backed store safe for concurrent use.
type Store struct {
	mu           sync.Mutex
	clock        func() time.Time
	offset       time.Duration
	pollInterval time.Duration
	entries      map[string]*entry
	waiters      map[string][]*waiter
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Locker = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now as the store's time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPollInterval sets how often blocked acquirers re-check for expired leases.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:        time.Now,
		pollInterval: defaultPollInterval,
		entries:      make(map[string]*entry),
		waiters:      make(map[string][]*waiter),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Now returns the store's current time, including any Advance offset.
func (s *Store) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.now()
}

func (s *Store) now() time.Time {
	return s.clock().Add(s.offset)
}

// Advance moves the store clock forward by d, expiring keys and leases whose
// deadline passes and handing expired locks to queued acquirers.
func (s *Store) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offset += d

	for key := range s.waiters {
		s.handOffLocked(key)
	}
}

// live returns the entry at key, deleting it when expired. Caller holds mu.
func (s *Store) live(key string) (*entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}

	if !e.alive(s.now()) {
		delete(s.entries, key)
		return nil, false
	}

	return e, true
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}

	return s.now().Add(ttl)
}

// SetWithExpiry implements store.Store.
func (s *Store) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cp := make([]byte, len(value))
	copy(cp, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &entry{value: cp, expiresAt: s.expiry(ttl)}

	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := make([]byte, len(e.value))
	copy(cp, e.value)

	return cp, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil
	}

	delete(s.entries, key)

	if e.lock {
		s.handOffLocked(key)
	}

	return nil
}

// ScanKeys implements store.Store. Keys are returned sorted.
func (s *Store) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0)

	for key := range s.entries {
		if _, ok := s.live(key); !ok {
			continue
		}

		if store.Match(pattern, key) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	return keys, nil
}

// TryAcquire implements store.Locker. A free lock with acquirers already
// queued is not taken; the head of the queue gets it first.
func (s *Store) TryAcquire(ctx context.Context, key, owner string, lease time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if lease <= 0 {
		return false, store.ErrInvalidLease
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tryAcquireLocked(key, owner, lease)
}

func (s *Store) tryAcquireLocked(key, owner string, lease time.Duration) (bool, error) {
	s.handOffLocked(key)

	if e, ok := s.live(key); ok {
		if e.lock && string(e.value) == owner {
			e.expiresAt = s.expiry(lease)
			return true, nil
		}

		return false, nil
	}

	if len(s.waiters[key]) > 0 {
		return false, nil
	}

	s.entries[key] = &entry{value: []byte(owner), expiresAt: s.expiry(lease), lock: true}

	return true, nil
}

// AcquireBlocking implements store.Locker. The wait budget is measured in
// real time; lease expiry follows the store clock.
func (s *Store) AcquireBlocking(ctx context.Context, key, owner string, wait, lease time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if lease <= 0 {
		return false, store.ErrInvalidLease
	}

	s.mu.Lock()

	acquired, err := s.tryAcquireLocked(key, owner, lease)
	if err != nil || acquired || wait <= 0 {
		s.mu.Unlock()
		return acquired, err
	}

	w := &waiter{owner: owner, lease: lease, granted: make(chan struct{})}
	s.waiters[key] = append(s.waiters[key], w)
	s.mu.Unlock()

	budget := time.NewTimer(wait)
	defer budget.Stop()

	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-w.granted:
			return true, nil
		case <-poll.C:
			s.mu.Lock()
			s.handOffLocked(key)
			s.mu.Unlock()
		case <-budget.C:
			return s.abandon(key, w, nil)
		case <-ctx.Done():
			return s.abandon(key, w, ctx.Err())
		}
	}
}

// abandon removes w from the queue. If w was granted in the meantime the lock
// is kept when cause is nil and passed on otherwise.
func (s *Store) abandon(key string, w *waiter, cause error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-w.granted:
		if cause == nil {
			return true, nil
		}

		delete(s.entries, key)
		s.handOffLocked(key)

		return false, cause
	default:
	}

	queue := s.waiters[key]
	for i, queued := range queue {
		if queued == w {
			s.waiters[key] = append(queue[:i], queue[i+1:]...)
			break
		}
	}

	if len(s.waiters[key]) == 0 {
		delete(s.waiters, key)
	}

	return false, cause
}

// handOffLocked grants key to the oldest waiter when the lock is free.
// Caller holds mu.
func (s *Store) handOffLocked(key string) {
	queue := s.waiters[key]
	if len(queue) == 0 {
		return
	}

	if _, held := s.live(key); held {
		return
	}

	head := queue[0]
	s.entries[key] = &entry{value: []byte(head.owner), expiresAt: s.expiry(head.lease), lock: true}
	close(head.granted)

	if len(queue) == 1 {
		delete(s.waiters, key)
	} else {
		s.waiters[key] = queue[1:]
	}
}

// IsLocked implements store.Locker.
func (s *Store) IsLocked(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)

	return ok && e.lock, nil
}

// IsHeldBy implements store.Locker.
func (s *Store) IsHeldBy(ctx context.Context, key, owner string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)

	return ok && e.lock && string(e.value) == owner, nil
}

// Release implements store.Locker.
func (s *Store) Release(ctx context.Context, key, owner string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok || !e.lock || string(e.value) != owner {
		return false, nil
	}

	delete(s.entries, key)
	s.handOffLocked(key)

	return true, nil
}

// SetLease implements store.Locker.
func (s *Store) SetLease(ctx context.Context, key, owner string, lease time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if lease <= 0 {
		return false, store.ErrInvalidLease
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok || !e.lock || string(e.value) != owner {
		return false, nil
	}

	e.expiresAt = s.expiry(lease)

	return true, nil
}
