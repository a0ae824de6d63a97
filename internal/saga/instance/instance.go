// Package instance defines the durable state of a saga execution.
//
// An Instance is the orchestrator's single source of truth for one saga:
// which steps have run, which completed, and whether the saga as a whole is
// still in flight. It is mutated only by the saga manager, persisted through
// the Store port after every transition, and retained after it reaches a
// terminal state so the record stays queryable for audits and idempotency
// lookups.
package instance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a saga instance.
type State string

const (
	StateStarted    State = "STARTED"
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// StepState is the lifecycle state of a single step execution.
type StepState string

const (
	StepStarted     StepState = "STARTED"
	StepCompleted   StepState = "COMPLETED"
	StepFailed      StepState = "FAILED"
	StepCompensated StepState = "COMPENSATED"
)

// StepExecution records one attempt to run one step of one instance.
// Retries performed by the retry handler happen inside a single execution;
// a new row appears only when the orchestrator dispatches the step.
type StepExecution struct {
	ID             string
	SagaInstanceID string
	StepName       string
	State          StepState
	Result         string
	StartedAt      time.Time
	CompletedAt    time.Time
	FailureReason  string
}

func (e *StepExecution) terminal() bool {
	return e.State == StepCompleted || e.State == StepFailed || e.State == StepCompensated
}

// Instance is one execution of a saga definition.
type Instance struct {
	ID             string
	SagaType       string
	State          State
	// Context is the schema-versioned JSON serialization of the typed saga
	// data the steps operate on, including fields captured by earlier steps
	// for compensation (ticket id, payment id).
	Context        []byte
	IdempotencyKey string
	CreatedAt      time.Time
	CompletedAt    time.Time
	FailureReason  string
	// TraceID is the trace active when the saga was created, persisted so an
	// instance row can be joined with its distributed trace.
	TraceID string

	// StepExecutions is an append-only log ordered by dispatch time.
	StepExecutions []StepExecution
}

// New builds a fresh instance in STARTED. The id is caller-supplied because
// it doubles as the semantic lock holder, which must exist before the first
// Save.
func New(id, sagaType string, context []byte, idempotencyKey, traceID string) *Instance {
	return &Instance{
		ID:             id,
		SagaType:       sagaType,
		State:          StateStarted,
		Context:        context,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
		TraceID:        traceID,
	}
}

// ErrStepInFlight is returned by StartStep when a non-terminal execution for
// the same step already exists. At most one execution per (instance, step)
// may be open at a time.
var ErrStepInFlight = fmt.Errorf("step execution already in flight")

// StartStep appends a STARTED execution for the named step and moves the
// instance to IN_PROGRESS.
func (i *Instance) StartStep(stepName string) error {
	if exec := i.findExecution(stepName); exec != nil && !exec.terminal() {
		return fmt.Errorf("%w: %s", ErrStepInFlight, stepName)
	}
	i.StepExecutions = append(i.StepExecutions, StepExecution{
		ID:             uuid.New().String(),
		SagaInstanceID: i.ID,
		StepName:       stepName,
		State:          StepStarted,
		StartedAt:      time.Now().UTC(),
	})
	i.State = StateInProgress
	return nil
}

// CompleteStep marks the open execution of the named step COMPLETED and
// records its step-specific result.
func (i *Instance) CompleteStep(stepName, result string) error {
	exec := i.findExecution(stepName)
	if exec == nil {
		return fmt.Errorf("no execution recorded for step %q", stepName)
	}
	exec.State = StepCompleted
	exec.Result = result
	exec.CompletedAt = time.Now().UTC()
	return nil
}

// FailStep marks the open execution of the named step FAILED with the given
// reason.
func (i *Instance) FailStep(stepName, reason string) error {
	exec := i.findExecution(stepName)
	if exec == nil {
		return fmt.Errorf("no execution recorded for step %q", stepName)
	}
	exec.State = StepFailed
	exec.FailureReason = reason
	exec.CompletedAt = time.Now().UTC()
	return nil
}

// CompensateStep marks a completed execution COMPENSATED after its inverse
// action succeeded.
func (i *Instance) CompensateStep(stepName string) error {
	exec := i.findExecution(stepName)
	if exec == nil {
		return fmt.Errorf("no execution recorded for step %q", stepName)
	}
	exec.State = StepCompensated
	return nil
}

// Complete moves the instance to the COMPLETED terminal state.
func (i *Instance) Complete() {
	i.State = StateCompleted
	i.CompletedAt = time.Now().UTC()
}

// Fail moves the instance to the FAILED terminal state with a reason.
// Compensation runs under FAILED; individual step executions transition to
// COMPENSATED as their inverse actions succeed.
func (i *Instance) Fail(reason string) {
	i.State = StateFailed
	i.FailureReason = reason
	i.CompletedAt = time.Now().UTC()
}

// Terminal reports whether the instance can no longer transition.
func (i *Instance) Terminal() bool {
	return i.State == StateCompleted || i.State == StateFailed
}

// CompletedStepNames returns the names of steps whose executions reached
// COMPLETED or were later COMPENSATED, in completion order. Compensated
// executions still count as "completed before failure" so a compensation
// sweep interrupted halfway remains visible.
func (i *Instance) CompletedStepNames() []string {
	var names []string
	for idx := range i.StepExecutions {
		switch i.StepExecutions[idx].State {
		case StepCompleted, StepCompensated:
			names = append(names, i.StepExecutions[idx].StepName)
		}
	}
	return names
}

// ForwardCompletedStepNames is like CompletedStepNames but excludes executions
// already compensated. The manager uses it to decide which steps still need a
// compensation attempt.
func (i *Instance) ForwardCompletedStepNames() []string {
	var names []string
	for idx := range i.StepExecutions {
		if i.StepExecutions[idx].State == StepCompleted {
			names = append(names, i.StepExecutions[idx].StepName)
		}
	}
	return names
}

// Clone returns a deep copy. Stores hand out clones so callers never share
// mutable state with the persisted record.
func (i *Instance) Clone() *Instance {
	c := *i
	c.Context = append([]byte(nil), i.Context...)
	c.StepExecutions = append([]StepExecution(nil), i.StepExecutions...)
	return &c
}

// findExecution returns the most recent execution for stepName, or nil.
func (i *Instance) findExecution(stepName string) *StepExecution {
	for idx := len(i.StepExecutions) - 1; idx >= 0; idx-- {
		if i.StepExecutions[idx].StepName == stepName {
			return &i.StepExecutions[idx]
		}
	}
	return nil
}
