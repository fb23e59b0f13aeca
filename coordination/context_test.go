//go:build unit

package coordination

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type recordingLogger struct {
	log.NopLogger
	name string
}

func TestTrackingDefaults(t *testing.T) {
	logger, tracer := NewTrackingFromContext(context.Background())

	assert.IsType(t, &log.NopLogger{}, logger)
	assert.NotNil(t, tracer)
}

func TestContextWithLoggerAndTracer(t *testing.T) {
	logger := &recordingLogger{name: "a"}
	tracer := noop.NewTracerProvider().Tracer("t")

	ctx := ContextWithLogger(context.Background(), logger)
	ctx = ContextWithTracer(ctx, tracer)

	gotLogger, gotTracer := NewTrackingFromContext(ctx)
	assert.Same(t, logger, gotLogger)
	assert.Equal(t, tracer, gotTracer)
}

func TestContextWithLoggerDoesNotMutateParent(t *testing.T) {
	first := &recordingLogger{name: "first"}
	second := &recordingLogger{name: "second"}

	parent := ContextWithLogger(context.Background(), first)
	child := ContextWithLogger(parent, second)

	assert.Same(t, first, NewLoggerFromContext(parent))
	assert.Same(t, second, NewLoggerFromContext(child))
}

func TestResolveLogger(t *testing.T) {
	fromCtx := &recordingLogger{name: "ctx"}
	configured := &recordingLogger{name: "configured"}
	ctx := ContextWithLogger(context.Background(), fromCtx)

	assert.Same(t, configured, ResolveLogger(ctx, configured))
	assert.Same(t, fromCtx, ResolveLogger(ctx, nil))
	assert.Same(t, fromCtx, ResolveLogger(ctx, log.NewNop()))
	assert.IsType(t, &log.NopLogger{}, ResolveLogger(context.Background(), nil))
}

func TestOwnerToken(t *testing.T) {
	ctx := context.Background()

	_, ok := OwnerFromContext(ctx)
	assert.False(t, ok)
	assert.Equal(t, "inst", OwnerToken(ctx, "inst"))

	ctx = WithOwner(ctx, " worker-7 ")
	id, ok := OwnerFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "worker-7", id)
	assert.Equal(t, "inst/worker-7", OwnerToken(ctx, "inst"))

	_, ok = OwnerFromContext(WithOwner(context.Background(), "  "))
	assert.False(t, ok)
}

func TestWithTimeoutSafe(t *testing.T) {
	//nolint:staticcheck
	_, _, err := WithTimeoutSafe(nil, time.Second)
	assert.True(t, errors.Is(err, ErrNilParentContext))

	ctx, cancel, err := WithTimeoutSafe(context.Background(), time.Minute)
	require.NoError(t, err)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 2*time.Second)

	parent, parentCancel := context.WithTimeout(context.Background(), time.Second)
	defer parentCancel()

	short, shortCancel, err := WithTimeoutSafe(parent, time.Hour)
	require.NoError(t, err)
	defer shortCancel()

	parentDeadline, _ := parent.Deadline()
	childDeadline, _ := short.Deadline()
	assert.Equal(t, parentDeadline, childDeadline)
}
