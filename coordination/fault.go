package coordination

import (
	"fmt"
	"net/http"
	"time"
)

// Fault is the business category of an Error.
type Fault uint8

const (
	FaultSystemError Fault = iota + 1
	FaultResourceNotFound
	FaultResourceVersionConflict
	FaultValidationFailed
	FaultAccessDenied
)

// statusUnmappedFault is returned for faults outside the known set.
const statusUnmappedFault = http.StatusTeapot

// String returns the upper snake case name of the fault.
func (f Fault) String() string {
	switch f {
	case FaultSystemError:
		return "SYSTEM_ERROR"
	case FaultResourceNotFound:
		return "RESOURCE_NOT_FOUND"
	case FaultResourceVersionConflict:
		return "RESOURCE_VERSION_CONFLICT"
	case FaultValidationFailed:
		return "VALIDATION_FAILED"
	case FaultAccessDenied:
		return "ACCESS_DENIED"
	default:
		return "UNKNOWN"
	}
}

// HTTPStatus maps the fault to the status code an HTTP boundary should answer with.
func (f Fault) HTTPStatus() int {
	switch f {
	case FaultResourceNotFound:
		return http.StatusNotFound
	case FaultResourceVersionConflict:
		return http.StatusConflict
	case FaultAccessDenied:
		return http.StatusUnauthorized
	case FaultValidationFailed:
		return http.StatusBadRequest
	case FaultSystemError:
		return http.StatusInternalServerError
	default:
		return statusUnmappedFault
	}
}

func (f Fault) kind() Kind {
	switch f {
	case FaultAccessDenied:
		return KindUnauthorized
	case FaultSystemError:
		return KindTransient
	default:
		return KindPermanent
	}
}

// Error is a business failure carrying a Fault and the time it was raised.
type Error struct {
	Fault     Fault
	Message   string
	Timestamp time.Time
	Err       error
}

// NewError builds an Error with a formatted message.
func NewError(fault Fault, format string, args ...any) *Error {
	return &Error{
		Fault:     fault,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now().UTC(),
	}
}

// WrapError builds an Error around cause. The message defaults to the cause's text.
func WrapError(fault Fault, cause error, message string) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}

	return &Error{
		Fault:     fault,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Err:       cause,
	}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return e.Fault.String() + ": " + e.Message + ": " + e.Err.Error()
	}

	return e.Fault.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }
