package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerAcquire(t *testing.T) {
	ctx := context.Background()

	t.Run("claims a free resource", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), time.Minute)

		acquired, err := m.Acquire(ctx, "Order", "o-1", "saga-1")
		require.NoError(t, err)
		assert.True(t, acquired)
	})

	t.Run("rejects a second holder without blocking", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), time.Minute)

		_, err := m.Acquire(ctx, "Order", "o-1", "saga-1")
		require.NoError(t, err)

		acquired, err := m.Acquire(ctx, "Order", "o-1", "saga-2")
		require.NoError(t, err)
		assert.False(t, acquired)
	})

	t.Run("is reentrant for the same holder", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), time.Minute)

		_, err := m.Acquire(ctx, "Order", "o-1", "saga-1")
		require.NoError(t, err)

		acquired, err := m.Acquire(ctx, "Order", "o-1", "saga-1")
		require.NoError(t, err)
		assert.True(t, acquired)
	})

	t.Run("different resources do not contend", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), time.Minute)

		_, err := m.Acquire(ctx, "Order", "o-1", "saga-1")
		require.NoError(t, err)

		acquired, err := m.Acquire(ctx, "Order", "o-2", "saga-2")
		require.NoError(t, err)
		assert.True(t, acquired)

		acquired, err = m.Acquire(ctx, "Customer", "o-1", "saga-3")
		require.NoError(t, err)
		assert.True(t, acquired)
	})

	t.Run("expired lease can be reclaimed", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), 10*time.Millisecond)

		_, err := m.Acquire(ctx, "Order", "o-1", "saga-1")
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)

		acquired, err := m.Acquire(ctx, "Order", "o-1", "saga-2")
		require.NoError(t, err)
		assert.True(t, acquired)
	})
}

func TestManagerRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("frees the resource for the next saga", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), time.Minute)

		_, err := m.Acquire(ctx, "Order", "o-1", "saga-1")
		require.NoError(t, err)
		require.NoError(t, m.Release(ctx, "Order", "o-1", "saga-1"))

		acquired, err := m.Acquire(ctx, "Order", "o-1", "saga-2")
		require.NoError(t, err)
		assert.True(t, acquired)
	})

	t.Run("never releases another saga's lock", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), time.Minute)

		_, err := m.Acquire(ctx, "Order", "o-1", "saga-1")
		require.NoError(t, err)

		// Mismatched holder is logged and ignored, not an error.
		require.NoError(t, m.Release(ctx, "Order", "o-1", "saga-2"))

		acquired, err := m.Acquire(ctx, "Order", "o-1", "saga-3")
		require.NoError(t, err)
		assert.False(t, acquired)
	})
}

func TestManagerReleaseAll(t *testing.T) {
	ctx := context.Background()

	t.Run("releases every lock of the holder and nothing else", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), time.Minute)

		_, err := m.Acquire(ctx, "Order", "o-1", "saga-1")
		require.NoError(t, err)
		_, err = m.Acquire(ctx, "Ticket", "t-1", "saga-1")
		require.NoError(t, err)
		_, err = m.Acquire(ctx, "Order", "o-2", "saga-2")
		require.NoError(t, err)

		released, err := m.ReleaseAll(ctx, "saga-1")
		require.NoError(t, err)
		assert.Equal(t, 2, released)

		acquired, err := m.Acquire(ctx, "Order", "o-1", "saga-3")
		require.NoError(t, err)
		assert.True(t, acquired)

		acquired, err = m.Acquire(ctx, "Order", "o-2", "saga-3")
		require.NoError(t, err)
		assert.False(t, acquired)
	})

	t.Run("holder without locks releases nothing", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), time.Minute)

		released, err := m.ReleaseAll(ctx, "saga-1")
		require.NoError(t, err)
		assert.Zero(t, released)
	})
}

func TestManagerExtend(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes the holder's lease", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), 50*time.Millisecond)

		_, err := m.Acquire(ctx, "Order", "o-1", "saga-1")
		require.NoError(t, err)

		time.Sleep(30 * time.Millisecond)
		extended, err := m.Extend(ctx, "Order", "o-1", "saga-1")
		require.NoError(t, err)
		assert.True(t, extended)

		time.Sleep(30 * time.Millisecond)
		acquired, err := m.Acquire(ctx, "Order", "o-1", "saga-2")
		require.NoError(t, err)
		assert.False(t, acquired)
	})

	t.Run("does not extend for a non-holder", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), time.Minute)

		_, err := m.Acquire(ctx, "Order", "o-1", "saga-1")
		require.NoError(t, err)

		extended, err := m.Extend(ctx, "Order", "o-1", "saga-2")
		require.NoError(t, err)
		assert.False(t, extended)
	})
}
