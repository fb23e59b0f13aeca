// Package list stores lists of values per instance under a shared key root.
//
// Every instance writes its own copy of a logical list; readers may fetch
// the calling instance's copy or gather the copies of all instances sharing
// the root. Lists expire after the manager's time-to-live.
//
// Manager performs no locking. LockingManager composes a Manager with the
// container lock and is the contract to prefer when instances race on the
// same lists.
package list
