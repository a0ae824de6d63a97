package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mvaldes/food-ordering-sagas/internal/saga/instance"
)

// TimeoutMonitor periodically sweeps IN_PROGRESS instances and force-fails
// the ones stuck past the saga-wide deadline, handing them to the manager's
// compensation path. This is the only mechanism that reclaims
// orchestrator-crash and collaborator-hang scenarios; it judges the saga as a
// whole, not individual step deadlines.
type TimeoutMonitor[D any] struct {
	manager  *Manager[D]
	store    instance.Store
	timeout  time.Duration
	interval time.Duration
}

func NewTimeoutMonitor[D any](manager *Manager[D], store instance.Store, timeout, interval time.Duration) *TimeoutMonitor[D] {
	return &TimeoutMonitor[D]{
		manager:  manager,
		store:    store,
		timeout:  timeout,
		interval: interval,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled. Call it on its own
// goroutine from main.
func (t *TimeoutMonitor[D]) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

func (t *TimeoutMonitor[D]) sweep(ctx context.Context) {
	inFlight, err := t.store.FindByState(ctx, instance.StateInProgress)
	if err != nil {
		slog.ErrorContext(ctx, "timeout sweep failed to list sagas", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, inst := range inFlight {
		elapsed := now.Sub(inst.CreatedAt)
		if elapsed <= t.timeout {
			continue
		}
		slog.WarnContext(ctx, "saga exceeded deadline",
			"saga_id", inst.ID, "elapsed", elapsed, "timeout", t.timeout)

		reason := fmt.Sprintf("saga timed out after %s", t.timeout)
		if err := t.manager.ForceFail(ctx, inst.ID, reason); err != nil {
			slog.ErrorContext(ctx, "failed to force-fail timed-out saga",
				"saga_id", inst.ID, "error", err)
		}
	}
}
