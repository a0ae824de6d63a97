// Package lock implements semantic locking over business resources.
//
// The resource's true state lives in another service's datastore with no
// shared transaction, so the lock is semantic: it prevents a second saga from
// operating on the same logical resource while the first is mid-flight,
// substituting for the isolation a single-database transaction would provide.
// Lease expiry bounds the blast radius of a crashed orchestrator: a lock is
// never held longer than the saga timeout even if nobody releases it.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// KeyPrefix namespaces every lock key in the store.
const KeyPrefix = "saga:lock:"

// Store is the port to the external key-value service backing the locks.
// CompareAndDelete must be atomic on the store side; approximating it with
// separate get+delete calls reintroduces the race the lock exists to close.
type Store interface {
	// SetIfAbsent atomically claims key with value and ttl. Returns false
	// without error when the key already exists.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the current value, or "" when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	// CompareAndDelete deletes key only if its current value equals expected.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	// Expire refreshes the ttl of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// ScanKeys returns every key under prefix.
	ScanKeys(ctx context.Context, prefix string) ([]string, error)
}

// Manager grants per-resource mutual exclusion with lease expiry.
// The holder id is always a saga instance id.
type Manager struct {
	store Store
	// ttl equals the saga timeout so an abandoned lock outlives its saga by
	// at most one lease.
	ttl time.Duration
}

func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl}
}

func key(resourceType, resourceID string) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefix, resourceType, resourceID)
}

// Acquire claims the lock for holderID. Re-entrant: if holderID already owns
// the lock the lease is refreshed and Acquire returns true. If another holder
// owns it, Acquire returns false without blocking. There is no queueing, the
// caller retries the whole saga-creation flow later.
func (m *Manager) Acquire(ctx context.Context, resourceType, resourceID, holderID string) (bool, error) {
	k := key(resourceType, resourceID)

	acquired, err := m.store.SetIfAbsent(ctx, k, holderID, m.ttl)
	if err != nil {
		return false, fmt.Errorf("lock: acquire %s: %w", k, err)
	}
	if acquired {
		slog.InfoContext(ctx, "acquired semantic lock", "lock_key", k, "saga_id", holderID)
		return true, nil
	}

	current, err := m.store.Get(ctx, k)
	if err != nil {
		return false, fmt.Errorf("lock: read holder of %s: %w", k, err)
	}
	if current == holderID {
		// Same saga re-acquiring; refresh the lease.
		if _, err := m.store.Expire(ctx, k, m.ttl); err != nil {
			return false, fmt.Errorf("lock: refresh %s: %w", k, err)
		}
		return true, nil
	}

	slog.WarnContext(ctx, "lock held by another saga", "lock_key", k, "holder", current)
	return false, nil
}

// Release deletes the lock only if holderID still owns it. A mismatch means
// the lease expired and the key was reassigned; that is logged and ignored so
// a slow saga never releases somebody else's lock.
func (m *Manager) Release(ctx context.Context, resourceType, resourceID, holderID string) error {
	k := key(resourceType, resourceID)

	deleted, err := m.store.CompareAndDelete(ctx, k, holderID)
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", k, err)
	}
	if deleted {
		slog.InfoContext(ctx, "released semantic lock", "lock_key", k, "saga_id", holderID)
	} else {
		slog.WarnContext(ctx, "lock not held by releasing saga", "lock_key", k, "saga_id", holderID)
	}
	return nil
}

// ReleaseAll scans every lock key and compare-and-deletes the ones owned by
// holderID. Used when a saga reaches a terminal state.
func (m *Manager) ReleaseAll(ctx context.Context, holderID string) (int, error) {
	keys, err := m.store.ScanKeys(ctx, KeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("lock: scan locks: %w", err)
	}

	released := 0
	for _, k := range keys {
		current, err := m.store.Get(ctx, k)
		if err != nil {
			return released, fmt.Errorf("lock: read holder of %s: %w", k, err)
		}
		if current != holderID {
			continue
		}
		deleted, err := m.store.CompareAndDelete(ctx, k, holderID)
		if err != nil {
			return released, fmt.Errorf("lock: release %s: %w", k, err)
		}
		if deleted {
			released++
		}
	}
	if released > 0 {
		slog.InfoContext(ctx, "released semantic locks", "saga_id", holderID, "count", released)
	}
	return released, nil
}

// Extend refreshes the lease only if holderID currently owns the lock.
func (m *Manager) Extend(ctx context.Context, resourceType, resourceID, holderID string) (bool, error) {
	k := key(resourceType, resourceID)

	current, err := m.store.Get(ctx, k)
	if err != nil {
		return false, fmt.Errorf("lock: read holder of %s: %w", k, err)
	}
	if current != holderID {
		return false, nil
	}
	extended, err := m.store.Expire(ctx, k, m.ttl)
	if err != nil {
		return false, fmt.Errorf("lock: extend %s: %w", k, err)
	}
	return extended, nil
}
