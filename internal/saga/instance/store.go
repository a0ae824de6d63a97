package instance

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no instance matches the lookup.
var ErrNotFound = errors.New("saga instance not found")

// ErrDuplicateIdempotencyKey is returned by Save when another instance
// already holds the same idempotency key. The store enforces uniqueness so
// two racing creation requests can never both persist.
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already recorded")

// Store is the port for saga instance persistence. The manager depends on
// this abstraction, not on SQLite directly, so the implementation can be
// swapped for Postgres or in-memory (tests).
type Store interface {
	// Save inserts the instance on first call and fully replaces it on
	// subsequent calls, step executions included.
	Save(ctx context.Context, inst *Instance) error
	FindByID(ctx context.Context, id string) (*Instance, error)
	// FindByIdempotencyKey returns ErrNotFound when the key is unknown.
	FindByIdempotencyKey(ctx context.Context, key string) (*Instance, error)
	// FindByState returns every instance currently in the given state.
	// Backed by a state index; the timeout monitor sweeps with it.
	FindByState(ctx context.Context, state State) ([]*Instance, error)
}
