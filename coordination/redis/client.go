package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination"
	"github.com/LerianStudio/lib-coordination/coordination/backoff"
	"github.com/LerianStudio/lib-coordination/coordination/log"
	"github.com/LerianStudio/lib-coordination/coordination/opentelemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	reconnectBackoffBase = 500 * time.Millisecond
	reconnectBackoffCap  = 30 * time.Second
)

var (
	// ErrNilClient is returned when a redis client receiver is nil.
	ErrNilClient = errors.New("redis client is nil")
	// ErrReconnectRateLimited is returned by GetClient while a reconnect backoff is pending.
	ErrReconnectRateLimited = errors.New("redis reconnect rate-limited")
)

// Status reports client connectivity.
type Status struct {
	Connected         bool
	ReconnectAttempts int
	LastReconnectAt   time.Time
}

// Client wraps a redis.UniversalClient with lazy, rate-limited reconnection.
type Client struct {
	mu     sync.RWMutex
	cfg    Config
	logger log.Logger
	rdb    redis.UniversalClient

	failures   metric.Int64Counter
	reconnects metric.Int64Counter

	attempts    int
	lastAttempt time.Time
}

// New validates cfg, connects to Redis, and returns a ready client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	cfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg, logger: cfg.Logger}

	meter := cfg.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(opentelemetry.InstrumentationName)
	}

	c.failures = c.counter(meter, "redis_connection_failures_total", "Total number of redis connection failures")
	c.reconnects = c.counter(meter, "redis_reconnections_total", "Total number of redis reconnection attempts")

	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) counter(meter metric.Meter, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit("1"))
	if err != nil {
		c.logger.Log(context.Background(), log.LevelWarn, "failed to create redis metric counter",
			log.String("metric", name), log.Err(err))

		return nil
	}

	return counter
}

func (c *Client) add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// Connect replaces the current connection with a fresh one.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.dialLocked(ctx, "connect")
}

// GetClient returns the connected client, reconnecting on demand. After a
// failed reconnect further attempts wait for a capped, jittered backoff.
//
//nolint:ireturn
func (c *Client) GetClient(ctx context.Context) (redis.UniversalClient, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	c.mu.RLock()
	rdb := c.rdb
	c.mu.RUnlock()

	if rdb != nil {
		return rdb, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rdb != nil {
		return c.rdb, nil
	}

	if c.attempts > 0 {
		wait := backoff.Capped(backoff.ExponentialWithJitter(reconnectBackoffBase, c.attempts), reconnectBackoffCap)

		if elapsed := time.Since(c.lastAttempt); elapsed < wait {
			return nil, fmt.Errorf("%w: next attempt in %s", ErrReconnectRateLimited, wait-elapsed)
		}
	}

	c.lastAttempt = time.Now()

	if err := c.dialLocked(ctx, "reconnect"); err != nil {
		c.attempts++
		c.add(ctx, c.reconnects, attribute.String("result", "failure"))

		return nil, err
	}

	c.attempts = 0
	c.add(ctx, c.reconnects, attribute.String("result", "success"))

	return c.rdb, nil
}

// dialLocked opens a new connection and verifies it with PING. The caller
// holds c.mu.
func (c *Client) dialLocked(ctx context.Context, op string) error {
	ctx, span := otel.Tracer(opentelemetry.InstrumentationName).Start(ctx, "redis."+op)
	defer span.End()

	span.SetAttributes(attribute.String("db.system", "redis"))

	fail := func(err error) error {
		c.add(ctx, c.failures, attribute.String("operation", op))
		opentelemetry.HandleSpanError(&span, "Failed to "+op+" redis", err)

		return err
	}

	if err := c.closeLocked(); err != nil {
		c.logger.Log(ctx, log.LevelWarn, "close before connect failed", log.Err(err))
	}

	opts, err := c.cfg.universalOptions()
	if err != nil {
		return fail(fmt.Errorf("redis connect: build options: %w", err))
	}

	rdb := redis.NewUniversalClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()

		c.logger.Log(ctx, log.LevelError, "redis ping failed", log.String("op", op), log.Err(err))

		return fail(authFault(fmt.Errorf("redis connect: ping: %w", err)))
	}

	c.rdb = rdb

	c.logger.Log(ctx, log.LevelInfo, "connected to redis", log.String("mode", c.cfg.Topology.mode()))

	if c.cfg.TLS == nil {
		c.logger.Log(ctx, log.LevelWarn, "redis connection established without TLS")
	}

	return nil
}

// authFault marks rejected credentials as an access-denied fault so callers
// classify them as unauthorized instead of retrying.
func authFault(err error) error {
	var rerr redis.Error
	if !errors.As(err, &rerr) {
		return err
	}

	msg := rerr.Error()
	if strings.HasPrefix(msg, "NOAUTH") || strings.HasPrefix(msg, "WRONGPASS") {
		return coordination.WrapError(coordination.FaultAccessDenied, err, "redis authentication failed")
	}

	return err
}

// Ping checks the server answers. It is the health probe used to close an
// open circuit breaker.
func (c *Client) Ping(ctx context.Context) error {
	rdb, err := c.GetClient(ctx)
	if err != nil {
		return err
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	return nil
}

// Close closes the underlying client. GetClient reconnects afterwards.
func (c *Client) Close() error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.rdb == nil {
		return nil
	}

	err := c.rdb.Close()
	c.rdb = nil

	return err
}

// Status returns a snapshot of the client's connectivity.
func (c *Client) Status() (Status, error) {
	if c == nil {
		return Status{}, ErrNilClient
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return Status{
		Connected:         c.rdb != nil,
		ReconnectAttempts: c.attempts,
		LastReconnectAt:   c.lastAttempt,
	}, nil
}

// IsConnected reports whether the underlying client is currently connected.
func (c *Client) IsConnected() (bool, error) {
	status, err := c.Status()
	if err != nil {
		return false, err
	}

	return status.Connected, nil
}
