package coordination

import (
	"context"
	"errors"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination/log"
	"github.com/LerianStudio/lib-coordination/coordination/opentelemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrNilParentContext indicates that a nil parent context was provided
var ErrNilParentContext = errors.New("cannot create context from nil parent")

type customContextKey string

// CustomContextKey is the context key used to store CustomContextKeyValue.
var CustomContextKey = customContextKey("coordination_context")

// CustomContextKeyValue holds the request-scoped facilities attached to context.
type CustomContextKeyValue struct {
	Tracer trace.Tracer
	Logger log.Logger
}

func valuesFrom(ctx context.Context) CustomContextKeyValue {
	if values, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok && values != nil {
		return *values
	}

	return CustomContextKeyValue{}
}

// ContextWithLogger returns a child context carrying logger. The parent's
// values are copied, never mutated.
func ContextWithLogger(ctx context.Context, logger log.Logger) context.Context {
	values := valuesFrom(ctx)
	values.Logger = logger

	return context.WithValue(ctx, CustomContextKey, &values)
}

// ContextWithTracer returns a child context carrying tracer.
func ContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	values := valuesFrom(ctx)
	values.Tracer = tracer

	return context.WithValue(ctx, CustomContextKey, &values)
}

// NewLoggerFromContext extracts the logger from ctx, or a NopLogger.
//
//nolint:ireturn
func NewLoggerFromContext(ctx context.Context) log.Logger {
	return log.OrNop(valuesFrom(ctx).Logger)
}

// NewTrackingFromContext returns the logger and tracer attached to ctx, with
// a NopLogger and the global default tracer as fallbacks.
//
//nolint:ireturn
func NewTrackingFromContext(ctx context.Context) (log.Logger, trace.Tracer) {
	values := valuesFrom(ctx)

	tracer := values.Tracer
	if tracer == nil {
		tracer = otel.Tracer(opentelemetry.DefaultTracerName)
	}

	return log.OrNop(values.Logger), tracer
}

// ResolveLogger prefers an explicitly configured logger and falls back to the
// one carried by ctx.
//
//nolint:ireturn
func ResolveLogger(ctx context.Context, configured log.Logger) log.Logger {
	if configured != nil {
		if _, nop := configured.(*log.NopLogger); !nop {
			return configured
		}
	}

	return NewLoggerFromContext(ctx)
}

// WithTimeoutSafe creates a context with the specified timeout, but respects
// any existing deadline in the parent context. Returns an error if parent is nil.
//
// When the parent's deadline is shorter than the requested timeout, the
// returned context inherits the parent's deadline.
func WithTimeoutSafe(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if parent == nil {
		return nil, nil, ErrNilParentContext
	}

	if deadline, ok := parent.Deadline(); ok {
		if time.Until(deadline) < timeout {
			ctx, cancel := context.WithCancel(parent)
			return ctx, cancel, nil
		}
	}

	ctx, cancel := context.WithTimeout(parent, timeout)

	return ctx, cancel, nil
}
