// Package zap bridges the coordination/log abstraction to go.uber.org/zap.
//
// Use New for service loggers (JSON output, OpenTelemetry log bridge) and Wrap
// to adapt an existing *zap.Logger.
package zap
