package coordination

import (
	"context"
	"strings"
)

type ownerContextKey struct{}

// WithOwner attaches a caller-chosen owner id to ctx. Managers combine it with
// their instance id so that two workers inside one process are distinct owners.
func WithOwner(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, strings.TrimSpace(id))
}

// OwnerFromContext returns the owner id attached with WithOwner, if any.
func OwnerFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	id, ok := ctx.Value(ownerContextKey{}).(string)
	if !ok || id == "" {
		return "", false
	}

	return id, true
}

// OwnerToken builds the token a store records as the holder of a lock:
// the instance id alone, or instanceID/owner when ctx carries an owner.
func OwnerToken(ctx context.Context, instanceID string) string {
	if id, ok := OwnerFromContext(ctx); ok {
		return instanceID + "/" + id
	}

	return instanceID
}
