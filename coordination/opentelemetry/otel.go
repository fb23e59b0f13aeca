package opentelemetry

import (
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InstrumentationName is the tracer and meter name used by this library.
	InstrumentationName = "github.com/LerianStudio/lib-coordination"

	// DefaultTracerName is used when the context carries no tracer.
	DefaultTracerName = "coordination.default"

	maxKeyAttributeLength = 128
)

// HandleSpanError sets the status of the span to error and records the error.
func HandleSpanError(span *trace.Span, message string, err error) {
	if span != nil && err != nil {
		(*span).SetStatus(codes.Error, message+": "+err.Error())
		(*span).RecordError(err)
	}
}

// HandleSpanEvent adds an event to the span.
func HandleSpanEvent(span *trace.Span, eventName string, attributes ...attribute.KeyValue) {
	if span != nil {
		(*span).AddEvent(eventName, trace.WithAttributes(attributes...))
	}
}

// KeyAttribute returns a bounded, ASCII-quoted attribute for a store key.
// Keys come from callers and may carry arbitrary bytes.
func KeyAttribute(name, key string) attribute.KeyValue {
	return attribute.String(name, SafeKey(key))
}

// SafeKey quotes key as ASCII and truncates it for logs and span attributes.
func SafeKey(key string) string {
	quoted := strconv.QuoteToASCII(key)
	if len(quoted) <= maxKeyAttributeLength {
		return quoted
	}

	return quoted[:maxKeyAttributeLength] + "...(truncated)"
}
