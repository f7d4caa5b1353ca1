// Package entitlement implements the local entitlement cache: the agent's
// last known view of the user's subscription state, kept in a small
// key-value store and reconciled against the remote authority.
package entitlement

import (
	"context"
	"errors"
)

// ErrNotFound is returned by KV.Get when the key has no value.
var ErrNotFound = errors.New("entitlement: key not found")

// KV is the minimal key-value store the cache is built on. Implementations
// are Redis for persistent deployments and an in-memory map for everything
// else.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}
