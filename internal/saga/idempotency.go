package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mvaldes/food-ordering-sagas/internal/saga/instance"
)

// IdempotencyHandler collapses duplicate saga initiation requests: a
// caller-supplied key maps to the instance it first created, and later
// requests with the same key are routed to that instance instead of starting
// a second saga. Uniqueness on the key itself is enforced by the instance
// store, so even two requests racing past CheckIdempotency cannot both
// persist.
type IdempotencyHandler struct {
	store instance.Store
}

func NewIdempotencyHandler(store instance.Store) *IdempotencyHandler {
	return &IdempotencyHandler{store: store}
}

// CheckIdempotency returns the existing instance recorded under key, or nil
// when the key is empty or unknown, the signal to proceed with creation.
func (h *IdempotencyHandler) CheckIdempotency(ctx context.Context, key string) (*instance.Instance, error) {
	if key == "" {
		return nil, nil
	}
	inst, err := h.store.FindByIdempotencyKey(ctx, key)
	if errors.Is(err, instance.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup for key %q: %w", key, err)
	}
	return inst, nil
}

// RecordIdempotencyKey associates key with an instance created without one.
// Instances created through Manager.Start carry their key from the first
// Save; this exists for callers that attach the key after the fact.
func (h *IdempotencyHandler) RecordIdempotencyKey(ctx context.Context, inst *instance.Instance, key string) error {
	if key == "" {
		return nil
	}
	inst.IdempotencyKey = key
	if err := h.store.Save(ctx, inst); err != nil {
		return fmt.Errorf("record idempotency key %q: %w", key, err)
	}
	slog.InfoContext(ctx, "recorded idempotency key", "idempotency_key", key, "saga_id", inst.ID)
	return nil
}
