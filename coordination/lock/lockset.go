package lock

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

type heldLock struct {
	name  string
	owner string
}

// LockSet records the locks a Manager believes it holds, one entry per lock
// name and owner token. It is advisory: the store remains the authority on
// ownership. Safe for concurrent use.
type LockSet struct {
	entries *xsync.MapOf[heldLock, struct{}]
}

// NewLockSet returns an empty LockSet.
func NewLockSet() *LockSet {
	return &LockSet{entries: xsync.NewMapOf[heldLock, struct{}]()}
}

// Add records name as held by owner.
func (s *LockSet) Add(name, owner string) {
	s.entries.Store(heldLock{name: name, owner: owner}, struct{}{})
}

// Remove forgets name for owner. Removing an absent entry is a no-op.
func (s *LockSet) Remove(name, owner string) {
	s.entries.Delete(heldLock{name: name, owner: owner})
}

// Contains reports whether name is recorded for owner.
func (s *LockSet) Contains(name, owner string) bool {
	_, ok := s.entries.Load(heldLock{name: name, owner: owner})
	return ok
}

// Len returns the number of recorded entries.
func (s *LockSet) Len() int { return s.entries.Size() }

// Names returns the distinct recorded names in lexical order.
func (s *LockSet) Names() []string {
	seen := make(map[string]struct{}, s.entries.Size())

	s.entries.Range(func(h heldLock, _ struct{}) bool {
		seen[h.name] = struct{}{}
		return true
	})

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
