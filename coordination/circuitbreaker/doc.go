// Package circuitbreaker guards calls to a backing store with sony/gobreaker.
//
// Use NewManager to create named breakers, then run calls through
// Manager.Execute so failures are tracked across every manager sharing the
// store. A HealthChecker can probe an open dependency and reset its breaker
// once the probe succeeds.
package circuitbreaker
