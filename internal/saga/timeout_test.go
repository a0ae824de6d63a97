package saga

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvaldes/food-ordering-sagas/internal/saga/instance"
)

func TestTimeoutMonitor(t *testing.T) {
	t.Run("force-fails sagas stuck past the deadline", func(t *testing.T) {
		rec := &callRecorder{}
		release := make(chan struct{})
		defer close(release)
		steps := []Step[bookingData]{
			&stubStep{
				name:    "reserve",
				hasComp: true,
				compensate: func(_ context.Context, _ *bookingData) error {
					rec.add("undo reserve")
					return nil
				},
			},
			&stubStep{name: "charge", execute: func(_ context.Context, _ *bookingData) (string, error) {
				<-release
				return "", nil
			}},
		}
		mgr, store := newTestManager(steps, Options{})

		inst, err := mgr.Start(context.Background(), testSagaType, &bookingData{BookingID: "b-20"}, StartOptions{})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			found, err := store.FindByID(context.Background(), inst.ID)
			return err == nil && found.State == instance.StateInProgress && len(found.StepExecutions) == 2
		}, 2*time.Second, 5*time.Millisecond)

		monitor := NewTimeoutMonitor(mgr, store, 10*time.Millisecond, 5*time.Millisecond)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go monitor.Run(ctx)

		final := waitForState(t, store, inst.ID, instance.StateFailed)
		assert.Contains(t, final.FailureReason, "saga timed out after")
		require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"undo reserve"}, rec.snapshot())
	})

	t.Run("leaves young sagas alone", func(t *testing.T) {
		release := make(chan struct{})
		steps := []Step[bookingData]{
			&stubStep{name: "reserve", execute: func(_ context.Context, _ *bookingData) (string, error) {
				<-release
				return "", nil
			}},
		}
		mgr, store := newTestManager(steps, Options{})

		inst, err := mgr.Start(context.Background(), testSagaType, &bookingData{BookingID: "b-21"}, StartOptions{})
		require.NoError(t, err)

		monitor := NewTimeoutMonitor(mgr, store, time.Hour, 5*time.Millisecond)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go monitor.Run(ctx)

		time.Sleep(30 * time.Millisecond)
		found, err := store.FindByID(context.Background(), inst.ID)
		require.NoError(t, err)
		assert.Equal(t, instance.StateInProgress, found.State)

		close(release)
		waitForState(t, store, inst.ID, instance.StateCompleted)
	})
}
