package saga

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// Policy bounds how often a step's forward action is attempted before the
// failure propagates to the manager.
type Policy struct {
	// MaxAttempts caps the total number of invocations, the first included.
	MaxAttempts uint
	// InitialDelay is the backoff before the first retry; it doubles on
	// every subsequent retry up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPolicy retries twice after the initial attempt with exponential
// backoff starting at 100ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

// ExecuteWithRetry invokes the step's forward action under the policy until
// it succeeds or attempts are exhausted, and returns exactly one final
// outcome. On exhaustion the underlying last failure is returned, not a
// generic retries-exhausted error, so the instance records the real cause.
//
// Each attempt runs on the caller's goroutine; the backoff sleeps therefore
// only block the saga being driven, never the orchestrator's other sagas.
func ExecuteWithRetry[D any](ctx context.Context, policy Policy, step Step[D], data *D) (string, error) {
	return retry.DoWithData(
		func() (string, error) {
			return step.Execute(ctx, data)
		},
		retry.Attempts(policy.MaxAttempts),
		retry.Delay(policy.InitialDelay),
		retry.MaxDelay(policy.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			slog.WarnContext(ctx, "saga step attempt failed, retrying",
				"step", step.Name(), "attempt", n+1, "error", err)
		}),
	)
}
