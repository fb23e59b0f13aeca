// Package backoff provides retry delay helpers with exponential growth and jitter.
//
// The retry command uses ExponentialWithJitter when configured for exponential
// pauses, and the redis client uses it to rate-limit reconnect attempts.
package backoff
