// Package keyspace builds the composite keys shared by the lock and list managers.
//
// A Namespace is a key-root plus an instance id generated once per manager.
// Keys take three shapes:
//
//	{root}:{instanceId}:{key}   per-instance
//	{root}:*:{key}              all-instances scan pattern
//	{root}:global:{key}         global, shared by every instance
package keyspace

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	separator = ":"

	// GlobalSegment replaces the instance id in global keys.
	GlobalSegment = "global"
)

// ErrEmptyKeyRoot is returned when a namespace is built without a key-root.
var ErrEmptyKeyRoot = errors.New("keyspace: key root must not be empty")

// ErrEmptyInstanceID is returned by NewWithInstance for a blank instance id.
var ErrEmptyInstanceID = errors.New("keyspace: instance id must not be empty")

// ErrInvalidInstanceID is returned by NewWithInstance for an instance id
// containing the key separator or the reserved global segment.
var ErrInvalidInstanceID = errors.New("keyspace: instance id must not contain ':' or equal \"global\"")

// Namespace is an immutable key-root and instance id pair.
type Namespace struct {
	root       string
	instanceID string
}

// New returns a Namespace for keyRoot with a freshly generated instance id.
func New(keyRoot string) (Namespace, error) {
	return NewWithInstance(keyRoot, uuid.NewString())
}

// NewWithInstance returns a Namespace with a caller-chosen instance id.
func NewWithInstance(keyRoot, instanceID string) (Namespace, error) {
	if strings.TrimSpace(keyRoot) == "" {
		return Namespace{}, ErrEmptyKeyRoot
	}

	if strings.TrimSpace(instanceID) == "" {
		return Namespace{}, ErrEmptyInstanceID
	}

	if strings.Contains(instanceID, separator) || instanceID == GlobalSegment {
		return Namespace{}, ErrInvalidInstanceID
	}

	return Namespace{root: keyRoot, instanceID: instanceID}, nil
}

// KeyRoot returns the namespace's key-root.
func (n Namespace) KeyRoot() string { return n.root }

// InstanceID returns the namespace's instance id.
func (n Namespace) InstanceID() string { return n.instanceID }

// InstanceKey returns the per-instance composite key for key.
func (n Namespace) InstanceKey(key string) string {
	return n.root + separator + n.instanceID + separator + key
}

// AllInstancesPattern returns a glob matching key under every instance of the root.
func (n Namespace) AllInstancesPattern(key string) string {
	return EscapeGlob(n.root) + separator + "*" + separator + EscapeGlob(key)
}

// GlobalKey returns the instance-independent key for key.
func (n Namespace) GlobalKey(key string) string {
	return n.root + separator + GlobalSegment + separator + key
}

// InstancePattern returns a glob matching every key of this instance.
func (n Namespace) InstancePattern() string {
	return EscapeGlob(n.root) + separator + EscapeGlob(n.instanceID) + separator + "*"
}

// EscapeGlob backslash-escapes the glob metacharacters * ? [ ] and \ in s.
func EscapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}

	var b strings.Builder

	b.Grow(len(s) + 4)

	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}

		b.WriteRune(r)
	}

	return b.String()
}
