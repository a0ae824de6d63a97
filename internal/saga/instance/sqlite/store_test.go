package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvaldes/food-ordering-sagas/internal/saga/instance"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "sagas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	inst := instance.New("saga-1", "CreateOrderSaga", []byte(`{"order_id":"o-1"}`), "key-1", "trace-1")
	require.NoError(t, inst.StartStep("validate"))
	require.NoError(t, inst.CompleteStep("validate", ""))
	require.NoError(t, inst.StartStep("create ticket"))
	require.NoError(t, inst.FailStep("create ticket", "kitchen closed"))
	inst.Fail("kitchen closed")

	require.NoError(t, store.Save(ctx, inst))

	found, err := store.FindByID(ctx, "saga-1")
	require.NoError(t, err)

	assert.Equal(t, inst.ID, found.ID)
	assert.Equal(t, inst.SagaType, found.SagaType)
	assert.Equal(t, instance.StateFailed, found.State)
	assert.JSONEq(t, `{"order_id":"o-1"}`, string(found.Context))
	assert.Equal(t, "key-1", found.IdempotencyKey)
	assert.Equal(t, "trace-1", found.TraceID)
	assert.Equal(t, "kitchen closed", found.FailureReason)
	assert.Equal(t, inst.CreatedAt.Unix(), found.CreatedAt.Unix())
	assert.False(t, found.CompletedAt.IsZero())

	require.Len(t, found.StepExecutions, 2)
	assert.Equal(t, "validate", found.StepExecutions[0].StepName)
	assert.Equal(t, instance.StepCompleted, found.StepExecutions[0].State)
	assert.Equal(t, "create ticket", found.StepExecutions[1].StepName)
	assert.Equal(t, instance.StepFailed, found.StepExecutions[1].State)
	assert.Equal(t, "kitchen closed", found.StepExecutions[1].FailureReason)
}

func TestStoreSaveReplaces(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	inst := instance.New("saga-1", "CreateOrderSaga", []byte(`{}`), "", "")
	require.NoError(t, store.Save(ctx, inst))

	require.NoError(t, inst.StartStep("validate"))
	require.NoError(t, store.Save(ctx, inst))
	require.NoError(t, inst.CompleteStep("validate", "approved"))
	inst.Complete()
	require.NoError(t, store.Save(ctx, inst))

	found, err := store.FindByID(ctx, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, instance.StateCompleted, found.State)
	require.Len(t, found.StepExecutions, 1)
	assert.Equal(t, instance.StepCompleted, found.StepExecutions[0].State)
	assert.Equal(t, "approved", found.StepExecutions[0].Result)
}

func TestStoreFindByID(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.FindByID(ctx, "missing")
	require.ErrorIs(t, err, instance.ErrNotFound)
}

func TestStoreIdempotencyKey(t *testing.T) {
	ctx := context.Background()

	t.Run("lookup by key", func(t *testing.T) {
		store := openTestStore(t)
		require.NoError(t, store.Save(ctx, instance.New("saga-1", "CreateOrderSaga", []byte(`{}`), "key-1", "")))

		found, err := store.FindByIdempotencyKey(ctx, "key-1")
		require.NoError(t, err)
		assert.Equal(t, "saga-1", found.ID)

		_, err = store.FindByIdempotencyKey(ctx, "unseen")
		require.ErrorIs(t, err, instance.ErrNotFound)
	})

	t.Run("duplicate key is rejected", func(t *testing.T) {
		store := openTestStore(t)
		require.NoError(t, store.Save(ctx, instance.New("saga-1", "CreateOrderSaga", []byte(`{}`), "key-1", "")))

		err := store.Save(ctx, instance.New("saga-2", "CreateOrderSaga", []byte(`{}`), "key-1", ""))
		require.ErrorIs(t, err, instance.ErrDuplicateIdempotencyKey)
	})

	t.Run("instances without keys never collide", func(t *testing.T) {
		store := openTestStore(t)
		require.NoError(t, store.Save(ctx, instance.New("saga-1", "CreateOrderSaga", []byte(`{}`), "", "")))
		require.NoError(t, store.Save(ctx, instance.New("saga-2", "CreateOrderSaga", []byte(`{}`), "", "")))
	})
}

func TestStoreFindByState(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	running := instance.New("saga-1", "CreateOrderSaga", []byte(`{}`), "", "")
	require.NoError(t, running.StartStep("validate"))
	done := instance.New("saga-2", "CreateOrderSaga", []byte(`{}`), "", "")
	done.Complete()

	require.NoError(t, store.Save(ctx, running))
	require.NoError(t, store.Save(ctx, done))

	inFlight, err := store.FindByState(ctx, instance.StateInProgress)
	require.NoError(t, err)
	require.Len(t, inFlight, 1)
	assert.Equal(t, "saga-1", inFlight[0].ID)
	require.Len(t, inFlight[0].StepExecutions, 1)

	completed, err := store.FindByState(ctx, instance.StateCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "saga-2", completed[0].ID)

	none, err := store.FindByState(ctx, instance.StateFailed)
	require.NoError(t, err)
	assert.Empty(t, none)
}
