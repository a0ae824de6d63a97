package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvaldes/food-ordering-sagas/internal/saga/instance"
)

func TestIdempotencyHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("empty key matches nothing", func(t *testing.T) {
		h := NewIdempotencyHandler(instance.NewMemoryStore())

		inst, err := h.CheckIdempotency(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, inst)
	})

	t.Run("unseen key matches nothing", func(t *testing.T) {
		h := NewIdempotencyHandler(instance.NewMemoryStore())

		inst, err := h.CheckIdempotency(ctx, "req-1")
		require.NoError(t, err)
		assert.Nil(t, inst)
	})

	t.Run("recorded key resolves to its instance", func(t *testing.T) {
		store := instance.NewMemoryStore()
		h := NewIdempotencyHandler(store)

		created := instance.New("saga-1", testSagaType, []byte(`{}`), "req-2", "")
		require.NoError(t, store.Save(ctx, created))

		found, err := h.CheckIdempotency(ctx, "req-2")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "saga-1", found.ID)
	})

	t.Run("key can be attached after creation", func(t *testing.T) {
		store := instance.NewMemoryStore()
		h := NewIdempotencyHandler(store)

		created := instance.New("saga-2", testSagaType, []byte(`{}`), "", "")
		require.NoError(t, store.Save(ctx, created))

		require.NoError(t, h.RecordIdempotencyKey(ctx, created, "req-3"))

		found, err := h.CheckIdempotency(ctx, "req-3")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "saga-2", found.ID)
	})
}
