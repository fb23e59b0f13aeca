// Package coordination provides the shared primitives of the distributed
// coordination layer: owner identity carried on context, the error-kind
// taxonomy used to decide what is worth retrying, business faults with their
// HTTP status mapping, and request-scoped tracking (logger and tracer).
//
// Typical usage at request ingress:
//
//	ctx = coordination.ContextWithLogger(ctx, logger)
//	ctx = coordination.ContextWithTracer(ctx, tracer)
//	ctx = coordination.WithOwner(ctx, workerID)
//
// The lock and list managers live in the lock and list subpackages; the backing
// stores live in store/memory and redis.
package coordination
