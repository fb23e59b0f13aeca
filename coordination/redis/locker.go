package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination"
	"github.com/LerianStudio/lib-coordination/coordination/log"
	"github.com/LerianStudio/lib-coordination/coordination/opentelemetry"
	"github.com/LerianStudio/lib-coordination/coordination/store"
	"github.com/go-redsync/redsync/v4"
	redsyncredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxLockTries       = 1000
	defaultRetryDelay  = 50 * time.Millisecond
	defaultDriftFactor = 0.01
)

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

	setLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// clientPool implements the redsync redis.Pool interface with lazy client
// resolution, so the pool survives reconnects of the Client wrapper.
type clientPool struct {
	conn *Client
}

//nolint:ireturn
func (p *clientPool) Get(ctx context.Context) (redsyncredis.Conn, error) {
	rdb, err := p.conn.GetClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get redis client for lock pool: %w", err)
	}

	return goredis.NewPool(rdb).Get(ctx)
}

// Locker implements store.Locker on Redis.
type Locker struct {
	conn        *Client
	redsync     *redsync.Redsync
	logger      log.Logger
	guard       guard
	retryDelay  time.Duration
	driftFactor float64
}

var _ store.Locker = (*Locker)(nil)

// NewLocker returns a Locker backed by conn.
func NewLocker(conn *Client, opts ...Option) (*Locker, error) {
	if conn == nil {
		return nil, ErrNilClient
	}

	o := buildOptions(opts)

	return &Locker{
		conn:        conn,
		redsync:     redsync.New(&clientPool{conn: conn}),
		logger:      o.logger,
		guard:       newGuard(o.breaker, o.breakerName, o.breakerConfig),
		retryDelay:  o.retryDelay,
		driftFactor: o.driftFactor,
	}, nil
}

func (l *Locker) start(ctx context.Context, op, key string) (context.Context, trace.Span, log.Logger) {
	_, tracer := coordination.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "redis.lock."+op)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		opentelemetry.KeyAttribute("lock.key", key),
	)

	return ctx, span, coordination.ResolveLogger(ctx, l.logger)
}

func (l *Locker) newMutex(key, owner string, lease time.Duration, tries int) *redsync.Mutex {
	return l.redsync.NewMutex(
		key,
		redsync.WithExpiry(lease),
		redsync.WithTries(tries),
		redsync.WithRetryDelay(l.retryDelay),
		redsync.WithDriftFactor(l.driftFactor),
		redsync.WithGenValueFunc(func() (string, error) { return owner, nil }),
	)
}

// isLockContention reports whether err is redsync reporting the lock as taken
// rather than a transport failure.
func isLockContention(err error) bool {
	var taken *redsync.ErrTaken

	errMsg := err.Error()

	return errors.Is(err, redsync.ErrFailed) ||
		errors.As(err, &taken) ||
		strings.Contains(errMsg, "lock already taken") ||
		strings.Contains(errMsg, "failed to acquire lock")
}

// TryAcquire implements store.Locker with a single redsync attempt.
func (l *Locker) TryAcquire(ctx context.Context, key, owner string, lease time.Duration) (bool, error) {
	if lease <= 0 {
		return false, store.ErrInvalidLease
	}

	ctx, span, logger := l.start(ctx, "try_acquire", key)
	defer span.End()

	renewed, err := l.renewIfHeld(ctx, key, owner, lease)
	if err != nil || renewed {
		if err != nil {
			opentelemetry.HandleSpanError(&span, "Failed to check lock owner", err)
		}

		return renewed, err
	}

	acquired := false

	err = l.guard.run(func() error {
		lockErr := l.newMutex(key, owner, lease, 1).LockContext(ctx)
		if lockErr == nil {
			acquired = true
			return nil
		}

		if isLockContention(lockErr) && ctx.Err() == nil {
			return nil
		}

		return lockErr
	})
	if err != nil {
		logger.Log(ctx, log.LevelError, "lock acquisition failed", log.String("lock_key", opentelemetry.SafeKey(key)), log.Err(err))
		opentelemetry.HandleSpanError(&span, "Failed to attempt lock acquisition", err)

		return false, fmt.Errorf("redis locker: try acquire %s: %w", opentelemetry.SafeKey(key), err)
	}

	span.SetAttributes(attribute.Bool("lock.acquired", acquired))

	if !acquired {
		logger.Log(ctx, log.LevelDebug, "lock already held by another owner", log.String("lock_key", opentelemetry.SafeKey(key)))
	}

	return acquired, nil
}

// AcquireBlocking implements store.Locker. redsync retries every retry delay
// until the wait budget runs out.
func (l *Locker) AcquireBlocking(ctx context.Context, key, owner string, wait, lease time.Duration) (bool, error) {
	if lease <= 0 {
		return false, store.ErrInvalidLease
	}

	if wait <= 0 {
		return l.TryAcquire(ctx, key, owner, lease)
	}

	ctx, span := l.startBlocking(ctx, key, wait)
	defer span.End()

	logger := coordination.ResolveLogger(ctx, l.logger)

	renewed, err := l.renewIfHeld(ctx, key, owner, lease)
	if err != nil || renewed {
		if err != nil {
			opentelemetry.HandleSpanError(&span, "Failed to check lock owner", err)
		}

		return renewed, err
	}

	waitCtx, cancel, err := coordination.WithTimeoutSafe(ctx, wait)
	if err != nil {
		return false, err
	}
	defer cancel()

	acquired := false

	err = l.guard.run(func() error {
		lockErr := l.newMutex(key, owner, lease, l.triesFor(wait)).LockContext(waitCtx)
		if lockErr == nil {
			acquired = true
			return nil
		}

		if ctx.Err() == nil && (waitCtx.Err() != nil || isLockContention(lockErr)) {
			return nil
		}

		return lockErr
	})

	if ctxErr := ctx.Err(); ctxErr != nil && !acquired {
		opentelemetry.HandleSpanError(&span, "Lock wait cancelled", ctxErr)
		return false, ctxErr
	}

	if err != nil {
		logger.Log(ctx, log.LevelError, "blocking lock acquisition failed", log.String("lock_key", opentelemetry.SafeKey(key)), log.Err(err))
		opentelemetry.HandleSpanError(&span, "Failed to acquire lock", err)

		return false, fmt.Errorf("redis locker: acquire %s: %w", opentelemetry.SafeKey(key), err)
	}

	span.SetAttributes(attribute.Bool("lock.acquired", acquired))

	return acquired, nil
}

func (l *Locker) startBlocking(ctx context.Context, key string, wait time.Duration) (context.Context, trace.Span) {
	ctx, span, _ := l.start(ctx, "acquire_blocking", key)
	span.SetAttributes(attribute.Int64("lock.wait_ms", wait.Milliseconds()))

	return ctx, span
}

func (l *Locker) triesFor(wait time.Duration) int {
	tries := int(wait/l.retryDelay) + 2
	if tries > maxLockTries {
		return maxLockTries
	}

	return tries
}

// renewIfHeld refreshes the lease when owner already holds key.
func (l *Locker) renewIfHeld(ctx context.Context, key, owner string, lease time.Duration) (bool, error) {
	held, err := l.isHeldBy(ctx, key, owner)
	if err != nil || !held {
		return false, err
	}

	return l.setLease(ctx, key, owner, lease)
}

// IsLocked implements store.Locker.
func (l *Locker) IsLocked(ctx context.Context, key string) (bool, error) {
	ctx, span, _ := l.start(ctx, "is_locked", key)
	defer span.End()

	var exists int64

	err := l.guard.run(func() error {
		rdb, err := l.conn.GetClient(ctx)
		if err != nil {
			return err
		}

		exists, err = rdb.Exists(ctx, key).Result()

		return err
	})
	if err != nil {
		opentelemetry.HandleSpanError(&span, "Failed to check lock", err)
		return false, fmt.Errorf("redis locker: is locked %s: %w", opentelemetry.SafeKey(key), err)
	}

	return exists > 0, nil
}

// IsHeldBy implements store.Locker.
func (l *Locker) IsHeldBy(ctx context.Context, key, owner string) (bool, error) {
	ctx, span, _ := l.start(ctx, "is_held_by", key)
	defer span.End()

	held, err := l.isHeldBy(ctx, key, owner)
	if err != nil {
		opentelemetry.HandleSpanError(&span, "Failed to check lock owner", err)
	}

	return held, err
}

func (l *Locker) isHeldBy(ctx context.Context, key, owner string) (bool, error) {
	var current string

	err := l.guard.run(func() error {
		rdb, err := l.conn.GetClient(ctx)
		if err != nil {
			return err
		}

		current, err = rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return err
	})
	if err != nil {
		return false, fmt.Errorf("redis locker: owner of %s: %w", opentelemetry.SafeKey(key), err)
	}

	return current != "" && current == owner, nil
}

// Release implements store.Locker.
func (l *Locker) Release(ctx context.Context, key, owner string) (bool, error) {
	ctx, span, logger := l.start(ctx, "release", key)
	defer span.End()

	var deleted int64

	err := l.guard.run(func() error {
		rdb, err := l.conn.GetClient(ctx)
		if err != nil {
			return err
		}

		deleted, err = releaseScript.Run(ctx, rdb, []string{key}, owner).Int64()

		return err
	})
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to release lock", log.String("lock_key", opentelemetry.SafeKey(key)), log.Err(err))
		opentelemetry.HandleSpanError(&span, "Failed to release lock", err)

		return false, fmt.Errorf("redis locker: release %s: %w", opentelemetry.SafeKey(key), err)
	}

	return deleted > 0, nil
}

// SetLease implements store.Locker.
func (l *Locker) SetLease(ctx context.Context, key, owner string, lease time.Duration) (bool, error) {
	if lease <= 0 {
		return false, store.ErrInvalidLease
	}

	ctx, span, _ := l.start(ctx, "set_lease", key)
	defer span.End()

	ok, err := l.setLease(ctx, key, owner, lease)
	if err != nil {
		opentelemetry.HandleSpanError(&span, "Failed to set lock lease", err)
	}

	return ok, err
}

func (l *Locker) setLease(ctx context.Context, key, owner string, lease time.Duration) (bool, error) {
	var updated int64

	err := l.guard.run(func() error {
		rdb, err := l.conn.GetClient(ctx)
		if err != nil {
			return err
		}

		updated, err = setLeaseScript.Run(ctx, rdb, []string{key}, owner, lease.Milliseconds()).Int64()

		return err
	})
	if err != nil {
		return false, fmt.Errorf("redis locker: set lease %s: %w", opentelemetry.SafeKey(key), err)
	}

	return updated > 0, nil
}
