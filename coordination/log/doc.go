// Package log defines the logging interface and typed logging fields used by
// the coordination packages.
//
// Adapters (such as the zap package) implement Logger so lock and list
// managers can log consistently whatever backend the service picked.
package log
