package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination"
	"github.com/LerianStudio/lib-coordination/coordination/circuitbreaker"
	"github.com/LerianStudio/lib-coordination/coordination/log"
	"github.com/LerianStudio/lib-coordination/coordination/opentelemetry"
	"github.com/LerianStudio/lib-coordination/coordination/store"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultScanCount = 100

type options struct {
	logger        log.Logger
	breaker       circuitbreaker.Manager
	breakerName   string
	breakerConfig circuitbreaker.Config
	scanCount     int64
	retryDelay    time.Duration
	driftFactor   float64
}

// Option configures a Store or Locker.
type Option func(*options)

// WithLogger sets the logger used for store diagnostics. The context logger is
// used when none is set.
func WithLogger(logger log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCircuitBreaker runs every Redis call through the named breaker of manager.
// Store and Locker built with the same manager and name share one breaker.
func WithCircuitBreaker(manager circuitbreaker.Manager, name string, config circuitbreaker.Config) Option {
	return func(o *options) {
		o.breaker = manager
		o.breakerName = name
		o.breakerConfig = config
	}
}

// WithScanCount sets the COUNT hint passed to SCAN.
func WithScanCount(count int64) Option {
	return func(o *options) {
		if count > 0 {
			o.scanCount = count
		}
	}
}

// WithRetryDelay sets the pause between acquisition attempts of a blocking lock.
func WithRetryDelay(delay time.Duration) Option {
	return func(o *options) {
		if delay > 0 {
			o.retryDelay = delay
		}
	}
}

// WithDriftFactor sets the redsync clock drift factor, in [0, 1).
func WithDriftFactor(factor float64) Option {
	return func(o *options) {
		if factor >= 0 && factor < 1 {
			o.driftFactor = factor
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		breakerConfig: circuitbreaker.StoreConfig(),
		scanCount:     defaultScanCount,
		retryDelay:    defaultRetryDelay,
		driftFactor:   defaultDriftFactor,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// Store implements store.Store on Redis.
type Store struct {
	conn      *Client
	logger    log.Logger
	guard     guard
	scanCount int64
}

var _ store.Store = (*Store)(nil)

// NewStore returns a Store backed by conn.
func NewStore(conn *Client, opts ...Option) (*Store, error) {
	if conn == nil {
		return nil, ErrNilClient
	}

	o := buildOptions(opts)

	return &Store{
		conn:      conn,
		logger:    o.logger,
		guard:     newGuard(o.breaker, o.breakerName, o.breakerConfig),
		scanCount: o.scanCount,
	}, nil
}

func (s *Store) start(ctx context.Context, op, key string) (context.Context, trace.Span, log.Logger) {
	_, tracer := coordination.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "redis.store."+op)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		opentelemetry.KeyAttribute("store.key", key),
	)

	return ctx, span, coordination.ResolveLogger(ctx, s.logger)
}

// SetWithExpiry implements store.Store.
func (s *Store) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span, logger := s.start(ctx, "set", key)
	defer span.End()

	if ttl < 0 {
		ttl = 0
	}

	err := s.guard.run(func() error {
		rdb, err := s.conn.GetClient(ctx)
		if err != nil {
			return err
		}

		return rdb.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		logger.Log(ctx, log.LevelError, "redis set failed", log.String("key", opentelemetry.SafeKey(key)), log.Err(err))
		opentelemetry.HandleSpanError(&span, "Failed to set key", err)

		return fmt.Errorf("redis store: set %s: %w", opentelemetry.SafeKey(key), err)
	}

	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span, logger := s.start(ctx, "get", key)
	defer span.End()

	var (
		value []byte
		found bool
	)

	err := s.guard.run(func() error {
		rdb, err := s.conn.GetClient(ctx)
		if err != nil {
			return err
		}

		value, err = rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}

		found = err == nil

		return err
	})
	if err != nil {
		logger.Log(ctx, log.LevelError, "redis get failed", log.String("key", opentelemetry.SafeKey(key)), log.Err(err))
		opentelemetry.HandleSpanError(&span, "Failed to get key", err)

		return nil, fmt.Errorf("redis store: get %s: %w", opentelemetry.SafeKey(key), err)
	}

	if !found {
		return nil, store.ErrNotFound
	}

	return value, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, span, logger := s.start(ctx, "delete", key)
	defer span.End()

	err := s.guard.run(func() error {
		rdb, err := s.conn.GetClient(ctx)
		if err != nil {
			return err
		}

		return rdb.Del(ctx, key).Err()
	})
	if err != nil {
		logger.Log(ctx, log.LevelError, "redis delete failed", log.String("key", opentelemetry.SafeKey(key)), log.Err(err))
		opentelemetry.HandleSpanError(&span, "Failed to delete key", err)

		return fmt.Errorf("redis store: delete %s: %w", opentelemetry.SafeKey(key), err)
	}

	return nil
}

// ScanKeys implements store.Store with SCAN MATCH. In cluster mode every
// master is scanned. Keys are de-duplicated and returned sorted.
func (s *Store) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	ctx, span, logger := s.start(ctx, "scan", pattern)
	defer span.End()

	var keys []string

	err := s.guard.run(func() error {
		rdb, err := s.conn.GetClient(ctx)
		if err != nil {
			return err
		}

		keys, err = s.scan(ctx, rdb, pattern)

		return err
	})
	if err != nil {
		logger.Log(ctx, log.LevelError, "redis scan failed", log.String("pattern", opentelemetry.SafeKey(pattern)), log.Err(err))
		opentelemetry.HandleSpanError(&span, "Failed to scan keys", err)

		return nil, fmt.Errorf("redis store: scan %s: %w", opentelemetry.SafeKey(pattern), err)
	}

	span.SetAttributes(attribute.Int("store.keys", len(keys)))

	return keys, nil
}

func (s *Store) scan(ctx context.Context, rdb redis.UniversalClient, pattern string) ([]string, error) {
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)

	collect := func(ctx context.Context, node redis.Cmdable) error {
		iter := node.Scan(ctx, 0, pattern, s.scanCount).Iterator()

		for iter.Next(ctx) {
			mu.Lock()
			seen[iter.Val()] = struct{}{}
			mu.Unlock()
		}

		return iter.Err()
	}

	if cluster, ok := rdb.(*redis.ClusterClient); ok {
		err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return collect(ctx, node)
		})
		if err != nil {
			return nil, err
		}
	} else if err := collect(ctx, rdb); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys, nil
}
