// Package redis provides the Redis/Valkey backing store for the coordination
// managers.
//
// Client wraps a go-redis UniversalClient (standalone, sentinel, or cluster)
// with TLS, static password auth and rate-limited reconnects. Store implements
// store.Store with SET EX, GET, DEL and SCAN. Locker implements store.Locker:
// acquisition goes through go-redsync with the owner token as the mutex value,
// release and lease changes through owner-checked Lua scripts. Both can run
// their calls through a circuit breaker.
package redis
