// Package saga implements the orchestration-based saga engine: a central
// manager sequences the steps of a long-running business transaction across
// independently-owned services and reacts to their outcomes, compensating
// already-completed steps in reverse order when a later one fails.
package saga

import "context"

// Step is one unit of work in a saga: a forward action plus an optional
// compensating action. D is the saga's typed context; steps mutate it to
// capture results later steps or compensations need (e.g. a created ticket
// id).
//
// The manager dispatches each step on its own goroutine and may invoke
// Execute more than once for the same logical operation when retrying, so
// forward actions must be idempotent on the collaborator side or harmlessly
// duplicable.
type Step[D any] interface {
	Name() string

	// Execute performs the forward action. The returned string is a
	// step-specific result recorded on the step execution for audit.
	Execute(ctx context.Context, data *D) (string, error)

	// HasCompensation reports whether the step declares an inverse action.
	HasCompensation() bool

	// Compensate semantically undoes a previously completed Execute. Called
	// only when HasCompensation is true.
	Compensate(ctx context.Context, data *D) error
}
