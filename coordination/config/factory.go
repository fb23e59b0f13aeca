package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/LerianStudio/lib-coordination/coordination"
	"github.com/LerianStudio/lib-coordination/coordination/circuitbreaker"
	"github.com/LerianStudio/lib-coordination/coordination/keyspace"
	"github.com/LerianStudio/lib-coordination/coordination/list"
	"github.com/LerianStudio/lib-coordination/coordination/lock"
	"github.com/LerianStudio/lib-coordination/coordination/log"
	"github.com/LerianStudio/lib-coordination/coordination/opentelemetry"
	"github.com/LerianStudio/lib-coordination/coordination/redis"
	"github.com/LerianStudio/lib-coordination/coordination/retry"
	"github.com/LerianStudio/lib-coordination/coordination/store"
	"github.com/LerianStudio/lib-coordination/coordination/store/memory"
	czap "github.com/LerianStudio/lib-coordination/coordination/zap"
)

// ErrNoKeyRoot is returned when a manager is built without a key root in
// either the argument or the configuration.
var ErrNoKeyRoot = errors.New("config: key root is required")

// Components holds the shared backends managers are built on.
type Components struct {
	Config   *Config
	Logger   log.Logger
	Store    store.Store
	Locker   store.Locker
	Redis    *redis.Client
	Breakers circuitbreaker.Manager
	Health   circuitbreaker.HealthChecker
}

// NewLogger builds the zap logger described by c.Log.
func (c *Config) NewLogger() (*czap.Logger, error) {
	return czap.New(czap.Config{
		Environment:     czap.Environment(c.Log.Environment),
		Level:           c.Log.Level,
		OTelLibraryName: opentelemetry.InstrumentationName,
	})
}

// RedisClientConfig maps c.Redis to a redis.Config.
func (c *Config) RedisClientConfig(logger log.Logger) redis.Config {
	r := c.Redis

	cfg := redis.Config{
		Logger: logger,
		Options: redis.ConnectionOptions{
			DB:           r.DB,
			PoolSize:     r.PoolSize,
			DialTimeout:  r.DialTimeout,
			ReadTimeout:  r.ReadTimeout,
			WriteTimeout: r.WriteTimeout,
			MaxRetries:   r.MaxRetries,
		},
	}

	switch r.Mode {
	case ModeSentinel:
		cfg.Topology.Sentinel = &redis.SentinelTopology{Addresses: r.Addresses, MasterName: r.MasterName}
	case ModeCluster:
		cfg.Topology.Cluster = &redis.ClusterTopology{Addresses: r.Addresses}
	default:
		var address string
		if len(r.Addresses) > 0 {
			address = r.Addresses[0]
		}

		cfg.Topology.Standalone = &redis.StandaloneTopology{Address: address}
	}

	if r.Password != "" || r.Username != "" {
		cfg.Auth.StaticPassword = &redis.StaticPasswordAuth{Username: r.Username, Password: r.Password}
	}

	if r.TLS {
		cfg.TLS = &redis.TLSConfig{CACertBase64: r.CACertBase64}
	}

	return cfg
}

// Build connects the configured backend. A nil logger is replaced by the zap
// logger of c.Log. The caller owns the result and must Close it.
func Build(ctx context.Context, cfg *Config, logger log.Logger) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}

	if logger == nil {
		zl, err := cfg.NewLogger()
		if err != nil {
			return nil, err
		}

		logger = zl
	}

	c := &Components{Config: cfg, Logger: logger}

	if cfg.Backend == BackendMemory {
		mem := memory.New()
		c.Store, c.Locker = mem, mem

		return c, nil
	}

	client, err := redis.New(ctx, cfg.RedisClientConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	c.Redis = client

	opts := []redis.Option{
		redis.WithLogger(logger),
		redis.WithScanCount(cfg.Redis.ScanCount),
		redis.WithRetryDelay(cfg.Redis.LockRetry),
	}

	if cfg.Breaker.Enabled {
		breakerOpts, err := c.startBreaker(cfg.Breaker)
		if err != nil {
			_ = client.Close()
			return nil, err
		}

		opts = append(opts, breakerOpts)
	}

	if c.Store, err = redis.NewStore(client, opts...); err != nil {
		_ = c.Close()
		return nil, err
	}

	if c.Locker, err = redis.NewLocker(client, opts...); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// startBreaker creates the breaker manager and a health checker that pings
// Redis to close an open breaker early.
func (c *Components) startBreaker(cfg BreakerConfig) (redis.Option, error) {
	breakers, err := circuitbreaker.NewManager(c.Logger)
	if err != nil {
		return nil, fmt.Errorf("create circuit breaker: %w", err)
	}

	health, err := circuitbreaker.NewHealthChecker(breakers, cfg.HealthCheckInterval, cfg.HealthCheckTimeout, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("create health checker: %w", err)
	}

	health.Register(cfg.Name, c.Redis.Ping)
	breakers.RegisterStateChangeListener(health)
	health.Start()

	c.Breakers = breakers
	c.Health = health

	return redis.WithCircuitBreaker(breakers, cfg.Name, circuitbreaker.StoreConfig()), nil
}

// Close stops the health checker, closes Redis and flushes the logger.
func (c *Components) Close() error {
	var errs []error

	if c.Health != nil {
		c.Health.Stop()
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	if c.Logger != nil {
		_ = c.Logger.Sync(context.Background())
	}

	return errors.Join(errs...)
}

func resolveRoot(root, configured string) (keyspace.Namespace, error) {
	if root == "" {
		root = configured
	}

	if root == "" {
		return keyspace.Namespace{}, ErrNoKeyRoot
	}

	return keyspace.New(root)
}

// NewLockManager builds a lock.Manager under root, or under lock.key_root
// when root is empty. Each call gets a fresh instance id.
func (c *Components) NewLockManager(root string, opts ...lock.Option) (*lock.Manager, error) {
	ns, err := resolveRoot(root, c.Config.Lock.KeyRoot)
	if err != nil {
		return nil, err
	}

	base := []lock.Option{
		lock.WithLogger(c.Logger),
		lock.WithTimeToWait(c.Config.Lock.TimeToWait),
		lock.WithContainerName(c.Config.Lock.ContainerName),
	}

	return lock.NewManager(ns, c.Locker, c.Config.Lock.TimeToLive, append(base, opts...)...)
}

// NewListManager builds a list.Manager under root, or under list.key_root
// when root is empty.
func NewListManager[T any](c *Components, root string, opts ...list.Option[T]) (*list.Manager[T], error) {
	ns, err := resolveRoot(root, c.Config.List.KeyRoot)
	if err != nil {
		return nil, err
	}

	base := []list.Option[T]{list.WithLogger[T](c.Logger)}

	return list.NewManager(ns, c.Store, c.Config.List.TimeToLive, append(base, opts...)...)
}

// NewLockingListManager builds a list.LockingManager whose lists and container
// lock share one namespace, so both carry the same instance id.
func NewLockingListManager[T any](c *Components, root string, opts ...list.Option[T]) (*list.LockingManager[T], error) {
	lists, err := NewListManager(c, root, opts...)
	if err != nil {
		return nil, err
	}

	locks, err := lock.NewManager(lists.Namespace(), c.Locker, c.Config.Lock.TimeToLive,
		lock.WithLogger(c.Logger),
		lock.WithTimeToWait(c.Config.Lock.TimeToWait),
		lock.WithContainerName(c.Config.Lock.ContainerName),
	)
	if err != nil {
		return nil, err
	}

	return list.NewLockingManager(lists, locks)
}

// NewRetry builds a retry.Command from c.Retry.
func NewRetry[T any](cfg RetryConfig, logger log.Logger) (*retry.Command[T], error) {
	opts := []retry.Option{retry.WithLogger(logger)}

	if cfg.Exponential {
		opts = append(opts, retry.WithExponentialBackoff())
	}

	if cfg.TransientOnly {
		opts = append(opts, retry.WithRetryIf(coordination.IsTransient))
	}

	return retry.New[T](cfg.MaxAttempts, cfg.Pause, opts...)
}
