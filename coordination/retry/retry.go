package retry

import (
	"context"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination"
	"github.com/LerianStudio/lib-coordination/coordination/backoff"
	"github.com/LerianStudio/lib-coordination/coordination/log"
)

// Command retries a function returning T. A Command holds no per-run state
// and may be shared between goroutines.
type Command[T any] struct {
	maxAttempts int
	pause       time.Duration
	retryIf     func(error) bool
	exponential bool
	logger      log.Logger
}

// Option configures a Command.
type Option func(*settings)

type settings struct {
	retryIf     func(error) bool
	exponential bool
	logger      log.Logger
}

// WithRetryIf retries only failures for which pred returns true. Any other
// failure ends the run at once.
func WithRetryIf(pred func(error) bool) Option {
	return func(s *settings) { s.retryIf = pred }
}

// WithExponentialBackoff grows the pause exponentially per attempt with full
// jitter instead of keeping it fixed.
func WithExponentialBackoff() Option {
	return func(s *settings) { s.exponential = true }
}

// WithLogger sets the command logger. The context logger is used when none is set.
func WithLogger(logger log.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// New returns a Command making at most maxAttempts invocations with pause
// between them.
func New[T any](maxAttempts int, pause time.Duration, opts ...Option) (*Command[T], error) {
	if maxAttempts < 1 {
		return nil, ErrInvalidAttempts
	}

	if pause < 0 {
		return nil, ErrInvalidPause
	}

	var s settings

	for _, opt := range opts {
		opt(&s)
	}

	return &Command[T]{
		maxAttempts: maxAttempts,
		pause:       pause,
		retryIf:     s.retryIf,
		exponential: s.exponential,
		logger:      s.logger,
	}, nil
}

// Run invokes fn until it succeeds, the predicate rejects its failure, or
// maxAttempts invocations have failed. The pause blocks the caller; a
// cancelled ctx ends the run with the context error.
func (c *Command[T]) Run(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if fn == nil {
		return zero, ErrNilFn
	}

	logger := coordination.ResolveLogger(ctx, c.logger)

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if c.retryIf != nil && !c.retryIf(err) {
			logger.Log(ctx, log.LevelInfo, "command failed with a non-retryable error",
				log.Int("attempt", attempt), log.Int("max_attempts", c.maxAttempts), log.Err(err))

			return zero, &Error{Attempts: attempt, Err: err}
		}

		logger.Log(ctx, log.LevelInfo, "command failed",
			log.Int("attempt", attempt), log.Int("max_attempts", c.maxAttempts), log.Err(err))

		if attempt >= c.maxAttempts {
			logger.Log(ctx, log.LevelWarn, "max retries exceeded",
				log.Int("attempts", attempt), log.Err(err))

			return zero, &Error{Attempts: attempt, Err: err, exhausted: true}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		if waitErr := backoff.WaitContext(ctx, c.delay(attempt)); waitErr != nil {
			return zero, waitErr
		}
	}
}

func (c *Command[T]) delay(attempt int) time.Duration {
	if c.exponential {
		return backoff.ExponentialWithJitter(c.pause, attempt-1)
	}

	return c.pause
}
