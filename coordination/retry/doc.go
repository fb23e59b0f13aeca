// Package retry runs an operation until it succeeds or a fixed number of
// attempts is used up, pausing between attempts.
//
// A predicate decides which failures are worth another attempt;
// coordination.IsTransient is the usual choice. The last failure is kept
// in the returned *Error together with the attempt count.
package retry
