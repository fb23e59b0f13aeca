// Package lock provides named distributed locks scoped to a key root.
//
// A Manager acquires locks on the global key of its namespace, so every
// instance sharing the key root contends for the same lock. Locks carry a
// lease equal to the configured time-to-live and disappear from the store
// when a holder crashes. Each Manager remembers the names it acquired, per
// owner token, in a LockSet; unlock and is-locked consult that set before
// asking the store, so one owner cannot release or forget another's lock.
//
// The container lock is a well-known name used by list.LockingManager to
// serialize list operations across instances. Acquiring it blocks up to the
// configured wait budget and is re-entrant for the current owner. Its name is
// reserved: Lock, Unlock and IsLocked reject it.
package lock
