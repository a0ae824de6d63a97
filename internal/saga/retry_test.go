package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteWithRetry(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	t.Run("returns the result on first success", func(t *testing.T) {
		var calls int
		step := &stubStep{name: "reserve", execute: func(_ context.Context, _ *bookingData) (string, error) {
			calls++
			return "ticket-1", nil
		}}

		result, err := ExecuteWithRetry(context.Background(), policy, step, &bookingData{})
		require.NoError(t, err)
		assert.Equal(t, "ticket-1", result)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries until success within the bound", func(t *testing.T) {
		var calls int
		step := &stubStep{name: "reserve", execute: func(_ context.Context, _ *bookingData) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("transient")
			}
			return "ticket-2", nil
		}}

		result, err := ExecuteWithRetry(context.Background(), policy, step, &bookingData{})
		require.NoError(t, err)
		assert.Equal(t, "ticket-2", result)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns the last error when attempts are exhausted", func(t *testing.T) {
		var calls int
		lastErr := errors.New("still down")
		step := &stubStep{name: "reserve", execute: func(_ context.Context, _ *bookingData) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("transient")
			}
			return "", lastErr
		}}

		_, err := ExecuteWithRetry(context.Background(), policy, step, &bookingData{})
		require.ErrorIs(t, err, lastErr)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops retrying when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var calls int
		step := &stubStep{name: "reserve", execute: func(_ context.Context, _ *bookingData) (string, error) {
			calls++
			cancel()
			return "", errors.New("transient")
		}}

		slow := Policy{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second}
		_, err := ExecuteWithRetry(ctx, slow, step, &bookingData{})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, uint(3), p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.InitialDelay)
	assert.Equal(t, 2*time.Second, p.MaxDelay)
}
