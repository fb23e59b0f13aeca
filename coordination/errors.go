package coordination

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// Kind is the closed set of error categories the coordination layer reasons about.
type Kind uint8

const (
	// KindPermanent errors will fail again if retried unchanged.
	KindPermanent Kind = iota
	// KindTransient errors may succeed on a later attempt.
	KindTransient
	// KindUnauthorized errors need different credentials, not another attempt.
	KindUnauthorized
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindUnauthorized:
		return "unauthorized"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }

func (e *kindError) Unwrap() error { return e.err }

func tag(kind Kind, err error) error {
	if err == nil {
		return nil
	}

	return &kindError{kind: kind, err: err}
}

// Transient marks err as transient. Returns nil for a nil err.
func Transient(err error) error { return tag(KindTransient, err) }

// Permanent marks err as permanent. Returns nil for a nil err.
func Permanent(err error) error { return tag(KindPermanent, err) }

// Unauthorized marks err as an authorization failure. Returns nil for a nil err.
func Unauthorized(err error) error { return tag(KindUnauthorized, err) }

// Classify maps err to its Kind. The outermost explicit tag wins, then business
// faults, then well-known network and deadline failures; anything else is
// permanent. A nil err is KindPermanent.
func Classify(err error) Kind {
	if err == nil {
		return KindPermanent
	}

	var tagged *kindError
	if errors.As(err, &tagged) {
		return tagged.kind
	}

	var faultErr *Error
	if errors.As(err, &faultErr) {
		return faultErr.Fault.kind()
	}

	if isTransientCause(err) {
		return KindTransient
	}

	return KindPermanent
}

// IsTransient reports whether err is worth retrying. It is the stock
// predicate for retry.WithRetryIf.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == KindTransient
}

func isTransientCause(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
