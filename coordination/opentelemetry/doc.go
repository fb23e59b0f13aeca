// Package opentelemetry holds the span helpers and instrumentation names used by
// the coordination managers and stores.
package opentelemetry
