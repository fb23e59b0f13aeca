//go:build unit

package coordination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindPermanent},
		{name: "plain error", err: boom, want: KindPermanent},
		{name: "explicit transient", err: Transient(boom), want: KindTransient},
		{name: "explicit permanent wins over deadline", err: Permanent(context.DeadlineExceeded), want: KindPermanent},
		{name: "explicit unauthorized", err: Unauthorized(boom), want: KindUnauthorized},
		{name: "wrapped tag", err: fmt.Errorf("save: %w", Transient(boom)), want: KindTransient},
		{name: "outermost tag wins", err: Permanent(Transient(boom)), want: KindPermanent},
		{name: "access denied fault", err: NewError(FaultAccessDenied, "nope"), want: KindUnauthorized},
		{name: "system fault", err: NewError(FaultSystemError, "down"), want: KindTransient},
		{name: "not found fault", err: NewError(FaultResourceNotFound, "gone"), want: KindPermanent},
		{name: "validation fault", err: NewError(FaultValidationFailed, "bad"), want: KindPermanent},
		{name: "deadline", err: fmt.Errorf("wait: %w", context.DeadlineExceeded), want: KindTransient},
		{name: "cancelled", err: context.Canceled, want: KindPermanent},
		{name: "connection refused", err: &net.OpError{Op: "read", Err: syscall.ECONNREFUSED}, want: KindTransient},
		{name: "connection reset", err: syscall.ECONNRESET, want: KindTransient},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, want: KindTransient},
		{name: "unknown host", err: &net.DNSError{Err: "no such host", Name: "redis.internal", IsNotFound: true}, want: KindTransient},
		{name: "net timeout", err: timeoutErr{}, want: KindTransient},
		{name: "dial failure", err: &net.OpError{Op: "dial", Err: boom}, want: KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestTagsPreserveChain(t *testing.T) {
	boom := errors.New("boom")

	assert.Nil(t, Transient(nil))
	assert.Nil(t, Permanent(nil))
	assert.Nil(t, Unauthorized(nil))

	tagged := Transient(boom)
	assert.ErrorIs(t, tagged, boom)
	assert.Equal(t, "boom", tagged.Error())
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("x")))
	assert.True(t, IsTransient(Transient(errors.New("x"))))
	assert.False(t, IsTransient(Unauthorized(errors.New("x"))))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "permanent", KindPermanent.String())
	assert.Equal(t, "unauthorized", KindUnauthorized.String())
	assert.Equal(t, "unknown", Kind(9).String())
}

func TestFaultHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		fault Fault
		want  int
	}{
		{FaultResourceNotFound, http.StatusNotFound},
		{FaultResourceVersionConflict, http.StatusConflict},
		{FaultAccessDenied, http.StatusUnauthorized},
		{FaultValidationFailed, http.StatusBadRequest},
		{FaultSystemError, http.StatusInternalServerError},
		{Fault(0), http.StatusTeapot},
		{Fault(99), http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.fault.String(), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.fault.HTTPStatus())
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	err := NewError(FaultResourceNotFound, "list %q not found", "orders")
	assert.Equal(t, `RESOURCE_NOT_FOUND: list "orders" not found`, err.Error())
	assert.False(t, err.Timestamp.IsZero())
	assert.NoError(t, err.Unwrap())

	cause := errors.New("redis down")
	wrapped := WrapError(FaultSystemError, cause, "")
	assert.Equal(t, "SYSTEM_ERROR: redis down", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)

	withMessage := WrapError(FaultSystemError, cause, "save list")
	assert.Equal(t, "SYSTEM_ERROR: save list: redis down", withMessage.Error())

	var target *Error
	require.ErrorAs(t, fmt.Errorf("outer: %w", withMessage), &target)
	assert.Equal(t, FaultSystemError, target.Fault)
}
