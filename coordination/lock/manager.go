package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination"
	"github.com/LerianStudio/lib-coordination/coordination/keyspace"
	"github.com/LerianStudio/lib-coordination/coordination/log"
	"github.com/LerianStudio/lib-coordination/coordination/opentelemetry"
	"github.com/LerianStudio/lib-coordination/coordination/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultContainerName is the lock name guarding list containers.
	DefaultContainerName = "container"
	// DefaultTimeToWait bounds blocking acquisition of the container lock.
	DefaultTimeToWait = 10 * time.Second

	resultAcquired  = "acquired"
	resultContended = "contended"
	resultError     = "error"
	resultTimeout   = "timeout"
)

// Locker is the non-blocking named lock contract.
type Locker interface {
	Lock(ctx context.Context, name string) (bool, error)
	Unlock(ctx context.Context, name string) error
	IsLocked(ctx context.Context, name string) (bool, error)
}

// ContainerLocker guards a whole container of lists with one blocking lock.
type ContainerLocker interface {
	LockContainer(ctx context.Context) error
	UnlockContainer(ctx context.Context) error
	ContainerIsLockedByCurrentOwner(ctx context.Context) (bool, error)
}

var (
	_ Locker          = (*Manager)(nil)
	_ ContainerLocker = (*Manager)(nil)
)

// Manager hands out named locks under the global segment of a namespace.
//
// The owner recorded in the store is the namespace instance id, extended with
// the owner carried by ctx (see coordination.WithOwner). Goroutines sharing a
// Manager and no explicit owner therefore share lock identity.
type Manager struct {
	ns            keyspace.Namespace
	locker        store.Locker
	ttl           time.Duration
	wait          time.Duration
	containerName string
	held          *LockSet
	logger        log.Logger
	meter         metric.Meter
	acquisitions  metric.Int64Counter
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger. The context logger is used when none is set.
func WithLogger(logger log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithLockSet injects the set of held lock names. Managers sharing a set see
// each other's locks as their own on unlock.
func WithLockSet(set *LockSet) Option {
	return func(m *Manager) {
		if set != nil {
			m.held = set
		}
	}
}

// WithTimeToWait sets how long LockContainer blocks before giving up.
func WithTimeToWait(wait time.Duration) Option {
	return func(m *Manager) {
		if wait >= 0 {
			m.wait = wait
		}
	}
}

// WithContainerName overrides the container lock name.
func WithContainerName(name string) Option {
	return func(m *Manager) {
		if name = strings.TrimSpace(name); name != "" {
			m.containerName = name
		}
	}
}

// WithMeter sets the meter for the acquisitions counter. Defaults to the
// global provider.
func WithMeter(meter metric.Meter) Option {
	return func(m *Manager) { m.meter = meter }
}

// NewManager returns a Manager whose locks live for ttl unless released.
func NewManager(ns keyspace.Namespace, locker store.Locker, ttl time.Duration, opts ...Option) (*Manager, error) {
	if ns.KeyRoot() == "" {
		return nil, keyspace.ErrEmptyKeyRoot
	}

	if locker == nil {
		return nil, ErrNilLocker
	}

	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}

	m := &Manager{
		ns:            ns,
		locker:        locker,
		ttl:           ttl,
		wait:          DefaultTimeToWait,
		containerName: DefaultContainerName,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.held == nil {
		m.held = NewLockSet()
	}

	if m.meter == nil {
		m.meter = otel.GetMeterProvider().Meter(opentelemetry.InstrumentationName)
	}

	counter, err := m.meter.Int64Counter("coordination_lock_acquisitions_total",
		metric.WithDescription("Lock acquisition attempts by result"))
	if err != nil {
		log.OrNop(m.logger).Log(context.Background(), log.LevelWarn, "failed to create lock metric counter", log.Err(err))
	} else {
		m.acquisitions = counter
	}

	return m, nil
}

// Namespace returns the namespace locks are keyed under.
func (m *Manager) Namespace() keyspace.Namespace { return m.ns }

// LockSet returns the set of names this manager believes it holds.
func (m *Manager) LockSet() *LockSet { return m.held }

func (m *Manager) start(ctx context.Context, op, name string) (context.Context, trace.Span, log.Logger) {
	_, tracer := coordination.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "coordination.lock."+op)
	span.SetAttributes(
		attribute.String("lock.root", m.ns.KeyRoot()),
		opentelemetry.KeyAttribute("lock.name", name),
	)

	logger := coordination.ResolveLogger(ctx, m.logger).With(log.String("lock_name", opentelemetry.SafeKey(name)))

	return ctx, span, logger
}

func (m *Manager) record(ctx context.Context, op, result string) {
	if m.acquisitions == nil {
		return
	}

	m.acquisitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}

func (m *Manager) checkName(name string) error {
	name = strings.TrimSpace(name)

	if name == "" {
		return ErrEmptyName
	}

	if name == m.containerName {
		return ErrReservedName
	}

	return nil
}

func (m *Manager) owner(ctx context.Context) string {
	return coordination.OwnerToken(ctx, m.ns.InstanceID())
}

// Lock tries once to take name. Contention yields (false, nil); a lock the
// current owner already holds also yields false, as Lock is not re-entrant.
func (m *Manager) Lock(ctx context.Context, name string) (bool, error) {
	if err := m.checkName(name); err != nil {
		return false, err
	}

	ctx, span, logger := m.start(ctx, "lock", name)
	defer span.End()

	key := m.ns.GlobalKey(name)
	owner := m.owner(ctx)

	held, err := m.locker.IsHeldBy(ctx, key, owner)
	if err != nil {
		m.record(ctx, "lock", resultError)
		opentelemetry.HandleSpanError(&span, "Failed to check lock owner", err)

		return false, fmt.Errorf("lock %s: %w", opentelemetry.SafeKey(name), err)
	}

	if held {
		logger.Log(ctx, log.LevelDebug, "lock already held by current owner")
		m.record(ctx, "lock", resultContended)

		return false, nil
	}

	acquired, err := m.locker.TryAcquire(ctx, key, owner, m.ttl)
	if err != nil {
		m.record(ctx, "lock", resultError)
		opentelemetry.HandleSpanError(&span, "Failed to acquire lock", err)

		return false, fmt.Errorf("lock %s: %w", opentelemetry.SafeKey(name), err)
	}

	span.SetAttributes(attribute.Bool("lock.acquired", acquired))

	if !acquired {
		logger.Log(ctx, log.LevelDebug, "lock held by another owner")
		m.record(ctx, "lock", resultContended)

		return false, nil
	}

	m.held.Add(name, owner)
	m.record(ctx, "lock", resultAcquired)
	logger.Log(ctx, log.LevelDebug, "lock acquired", log.Duration("lease", m.ttl))

	return true, nil
}

// Unlock releases name when the current owner recorded it and the store
// confirms the owner still holds it. Names the owner never took are a no-op,
// also when another owner of this manager holds them. If the store no longer
// attributes the lock to the owner the entry is forgotten and an *Error
// wrapping ErrReleaseFailed is returned.
func (m *Manager) Unlock(ctx context.Context, name string) error {
	if err := m.checkName(name); err != nil {
		return err
	}

	return m.unlock(ctx, "unlock", name)
}

func (m *Manager) unlock(ctx context.Context, op, name string) error {
	owner := m.owner(ctx)

	if !m.held.Contains(name, owner) {
		return nil
	}

	ctx, span, logger := m.start(ctx, op, name)
	defer span.End()

	key := m.ns.GlobalKey(name)

	held, err := m.locker.IsHeldBy(ctx, key, owner)
	if err != nil {
		opentelemetry.HandleSpanError(&span, "Failed to check lock owner", err)
		return fmt.Errorf("unlock %s: %w", opentelemetry.SafeKey(name), err)
	}

	released := false

	if held {
		released, err = m.locker.Release(ctx, key, owner)
		if err != nil {
			opentelemetry.HandleSpanError(&span, "Failed to release lock", err)
			return fmt.Errorf("unlock %s: %w", opentelemetry.SafeKey(name), err)
		}
	}

	m.held.Remove(name, owner)

	if !released {
		relErr := &Error{Op: op, Name: name, Err: ErrReleaseFailed}

		logger.Log(ctx, log.LevelError, "lock no longer held by current owner, lease expired before release",
			log.String("owner", owner), log.Duration("lease", m.ttl))
		opentelemetry.HandleSpanError(&span, "Lock ownership lost", relErr)

		return relErr
	}

	logger.Log(ctx, log.LevelDebug, "lock released")

	return nil
}

// IsLocked reports whether name was taken by the current owner through this
// manager and is still locked in the store. Locks held only by other owners
// are reported false. A recorded name the store no longer knows is forgotten.
func (m *Manager) IsLocked(ctx context.Context, name string) (bool, error) {
	if err := m.checkName(name); err != nil {
		return false, err
	}

	owner := m.owner(ctx)

	if !m.held.Contains(name, owner) {
		return false, nil
	}

	ctx, span, _ := m.start(ctx, "is_locked", name)
	defer span.End()

	locked, err := m.locker.IsLocked(ctx, m.ns.GlobalKey(name))
	if err != nil {
		opentelemetry.HandleSpanError(&span, "Failed to check lock", err)
		return false, fmt.Errorf("is locked %s: %w", opentelemetry.SafeKey(name), err)
	}

	if !locked {
		m.held.Remove(name, owner)
	}

	return locked, nil
}

// WithLock runs fn while holding name and releases it afterwards. When the
// lock is taken elsewhere fn is not run and an *Error wrapping
// ErrAcquisitionFailed is returned.
func (m *Manager) WithLock(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	if fn == nil {
		return ErrNilFn
	}

	acquired, err := m.Lock(ctx, name)
	if err != nil {
		return err
	}

	if !acquired {
		return &Error{Op: "with_lock", Name: name, Err: coordination.Transient(ErrAcquisitionFailed)}
	}

	defer func() {
		if unlockErr := m.Unlock(ctx, name); unlockErr != nil {
			err = errors.Join(err, unlockErr)
		}
	}()

	return fn(ctx)
}

// LockContainer blocks up to the configured wait for the container lock. It
// succeeds at once, renewing the lease, when the current owner already holds
// it. Running out of time returns an *Error wrapping ErrAcquisitionFailed,
// classified transient.
func (m *Manager) LockContainer(ctx context.Context) error {
	name := m.containerName

	ctx, span, logger := m.start(ctx, "lock_container", name)
	defer span.End()

	span.SetAttributes(attribute.Int64("lock.wait_ms", m.wait.Milliseconds()))

	owner := m.owner(ctx)

	acquired, err := m.locker.AcquireBlocking(ctx, m.ns.GlobalKey(name), owner, m.wait, m.ttl)
	if err != nil {
		m.record(ctx, "lock_container", resultError)
		opentelemetry.HandleSpanError(&span, "Failed to acquire container lock", err)

		return fmt.Errorf("lock container %s: %w", opentelemetry.SafeKey(name), err)
	}

	if !acquired {
		acqErr := &Error{Op: "lock_container", Name: name, Err: coordination.Transient(ErrAcquisitionFailed)}

		m.record(ctx, "lock_container", resultTimeout)
		logger.Log(ctx, log.LevelWarn, "timed out waiting for container lock", log.Duration("wait", m.wait))
		opentelemetry.HandleSpanError(&span, "Container lock wait exhausted", acqErr)

		return acqErr
	}

	m.held.Add(name, owner)
	m.record(ctx, "lock_container", resultAcquired)

	return nil
}

// UnlockContainer releases the container lock with the semantics of Unlock.
func (m *Manager) UnlockContainer(ctx context.Context) error {
	return m.unlock(ctx, "unlock_container", m.containerName)
}

// ContainerIsLockedByCurrentOwner asks the store whether the current owner,
// not merely this process, holds the container lock.
func (m *Manager) ContainerIsLockedByCurrentOwner(ctx context.Context) (bool, error) {
	ctx, span, _ := m.start(ctx, "container_is_locked_by_current_owner", m.containerName)
	defer span.End()

	held, err := m.locker.IsHeldBy(ctx, m.ns.GlobalKey(m.containerName), m.owner(ctx))
	if err != nil {
		opentelemetry.HandleSpanError(&span, "Failed to check container lock owner", err)
		return false, fmt.Errorf("container lock owner: %w", err)
	}

	return held, nil
}
