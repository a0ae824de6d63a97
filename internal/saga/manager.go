package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/mvaldes/food-ordering-sagas/internal/saga/instance"
	"github.com/mvaldes/food-ordering-sagas/internal/saga/lock"
)

// Options configures optional manager collaborators.
type Options struct {
	// Locks enables semantic locking of business resources for the saga's
	// lifetime. Nil disables locking.
	Locks *lock.Manager
	// Retry bounds forward-action attempts; the zero value means
	// DefaultPolicy.
	Retry Policy
	// Events receives lifecycle notifications; nil means NopPublisher.
	Events EventPublisher
}

// Manager creates saga instances, drives their steps strictly in definition
// order, interprets step outcomes and triggers reverse-order compensation on
// failure, persisting every transition through the instance store.
//
// Many instances execute concurrently; within one instance execution is
// sequential. Step outcomes arrive on dispatch goroutines, so every
// transition reloads the latest persisted state under a per-instance mutex,
// a single-writer-per-instance discipline.
type Manager[D any] struct {
	registry    *Registry[D]
	store       instance.Store
	idempotency *IdempotencyHandler
	locks       *lock.Manager
	retry       Policy
	events      EventPublisher

	mu        sync.Mutex
	instLocks map[string]*sync.Mutex
}

func NewManager[D any](registry *Registry[D], store instance.Store, opts Options) *Manager[D] {
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultPolicy()
	}
	events := opts.Events
	if events == nil {
		events = NopPublisher{}
	}
	return &Manager[D]{
		registry:    registry,
		store:       store,
		idempotency: NewIdempotencyHandler(store),
		locks:       opts.Locks,
		retry:       retry,
		events:      events,
		instLocks:   make(map[string]*sync.Mutex),
	}
}

// StartOptions carry the caller-supplied identifiers for a new saga.
type StartOptions struct {
	// IdempotencyKey, when non-empty, collapses duplicate creation requests
	// onto the first instance created under the key.
	IdempotencyKey string
	// ResourceType and ResourceID name the business resource to lock for the
	// saga's lifetime. Empty ResourceID skips locking.
	ResourceType string
	ResourceID   string
}

// Start is the saga creation entry point: idempotency check, semantic lock
// acquisition (holder id is the new instance id), instance creation and
// first-step dispatch. It returns the possibly pre-existing instance, or
// ErrResourceLocked when the resource is held by another in-flight saga.
func (m *Manager[D]) Start(ctx context.Context, sagaType string, data *D, opts StartOptions) (*instance.Instance, error) {
	existing, err := m.idempotency.CheckIdempotency(ctx, opts.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		slog.InfoContext(ctx, "duplicate saga creation suppressed",
			"idempotency_key", opts.IdempotencyKey, "saga_id", existing.ID)
		return existing, nil
	}

	if _, ok := m.registry.Find(sagaType); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSagaType, sagaType)
	}

	id := uuid.New().String()

	if m.locks != nil && opts.ResourceID != "" {
		acquired, err := m.locks.Acquire(ctx, opts.ResourceType, opts.ResourceID, id)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, fmt.Errorf("%w: %s:%s", ErrResourceLocked, opts.ResourceType, opts.ResourceID)
		}
	}

	inst, err := m.CreateSagaInstance(ctx, sagaType, data, id, opts.IdempotencyKey)
	if err != nil {
		if m.locks != nil && opts.ResourceID != "" {
			if _, relErr := m.locks.ReleaseAll(ctx, id); relErr != nil {
				slog.ErrorContext(ctx, "failed to release locks after aborted creation",
					"saga_id", id, "error", relErr)
			}
		}
		if errors.Is(err, instance.ErrDuplicateIdempotencyKey) {
			// A concurrent request with the same key won the race between the
			// idempotency check and the first save. Route to its instance.
			return m.store.FindByIdempotencyKey(ctx, opts.IdempotencyKey)
		}
		return nil, err
	}
	return inst, nil
}

// CreateSagaInstance persists a new instance and immediately attempts the
// first step. The id is caller-supplied because it doubles as the semantic
// lock holder.
func (m *Manager[D]) CreateSagaInstance(ctx context.Context, sagaType string, data *D, id, idempotencyKey string) (*instance.Instance, error) {
	if _, ok := m.registry.Find(sagaType); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSagaType, sagaType)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("serialize saga context: %w", err)
	}

	inst := instance.New(id, sagaType, payload, idempotencyKey, traceID(ctx))
	if err := m.store.Save(ctx, inst); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "created saga instance", "saga_id", inst.ID, "saga_type", sagaType)
	m.publish(ctx, EventSagaStarted, inst, "", "")

	if err := m.advance(ctx, inst.ID); err != nil {
		return nil, err
	}
	return m.store.FindByID(ctx, inst.ID)
}

// HandleStepResult marks the named execution COMPLETED, folds the updated
// saga context back into the instance, and either completes the saga or
// dispatches the next step. A result arriving after the instance reached a
// terminal state (e.g. force-failed by the timeout monitor while the forward
// call was still in flight) is logged and ignored.
func (m *Manager[D]) HandleStepResult(ctx context.Context, sagaID, stepName, result string, data *D) error {
	if err := m.applyStepResult(ctx, sagaID, stepName, result, data); err != nil {
		return err
	}
	return m.advance(ctx, sagaID)
}

func (m *Manager[D]) applyStepResult(ctx context.Context, sagaID, stepName, result string, data *D) error {
	mu := m.instMutex(sagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, def, err := m.load(ctx, sagaID)
	if err != nil {
		return err
	}
	if inst.Terminal() {
		slog.WarnContext(ctx, "ignoring late step result for terminal saga",
			"saga_id", sagaID, "step", stepName, "state", inst.State)
		return nil
	}
	if findStep(def, stepName) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStep, stepName)
	}

	if err := inst.CompleteStep(stepName, result); err != nil {
		return err
	}
	if err := m.encodeContext(inst, data); err != nil {
		return err
	}
	if err := m.store.Save(ctx, inst); err != nil {
		return err
	}

	slog.InfoContext(ctx, "saga step completed", "saga_id", sagaID, "step", stepName)
	m.publish(ctx, EventStepCompleted, inst, stepName, "")
	return nil
}

// HandleStepFailure marks the instance FAILED, then compensates every
// previously completed step in reverse completion order. Compensation
// failures are logged and do not stop the sweep: best-effort rollback, not
// guaranteed consistency; what remains un-compensated is an operational alert
// condition, not something the engine retries.
func (m *Manager[D]) HandleStepFailure(ctx context.Context, sagaID, stepName string, cause error, data *D) error {
	mu := m.instMutex(sagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, def, err := m.load(ctx, sagaID)
	if err != nil {
		return err
	}
	if inst.Terminal() {
		slog.WarnContext(ctx, "ignoring late step failure for terminal saga",
			"saga_id", sagaID, "step", stepName, "state", inst.State)
		return nil
	}
	if findStep(def, stepName) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStep, stepName)
	}

	slog.ErrorContext(ctx, "saga step failed after retries",
		"saga_id", sagaID, "step", stepName, "error", cause)

	if err := inst.FailStep(stepName, cause.Error()); err != nil {
		return err
	}
	inst.Fail(cause.Error())
	// Persist the context as the failing step last saw it so compensations
	// see every captured id.
	if err := m.encodeContext(inst, data); err != nil {
		return err
	}
	if err := m.store.Save(ctx, inst); err != nil {
		return err
	}
	m.publish(ctx, EventSagaFailed, inst, stepName, cause.Error())

	m.compensate(ctx, inst, def)
	m.finish(ctx, inst)
	return nil
}

// ForceFail is the timeout monitor's entry into the compensation path: it
// fails an in-flight instance with the given reason and compensates its
// completed steps. Terminal instances are left untouched.
func (m *Manager[D]) ForceFail(ctx context.Context, sagaID, reason string) error {
	mu := m.instMutex(sagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, def, err := m.load(ctx, sagaID)
	if err != nil {
		return err
	}
	if inst.Terminal() {
		return nil
	}

	slog.WarnContext(ctx, "force-failing saga", "saga_id", sagaID, "reason", reason)

	inst.Fail(reason)
	if err := m.store.Save(ctx, inst); err != nil {
		return err
	}
	m.publish(ctx, EventSagaFailed, inst, "", reason)

	m.compensate(ctx, inst, def)
	m.finish(ctx, inst)
	return nil
}

// advance selects the next step per the definition order and dispatches it,
// or completes the saga when no step remains. Dispatch is non-blocking: the
// forward action runs with retries on its own goroutine and its single final
// outcome resumes orchestration through HandleStepResult/HandleStepFailure.
func (m *Manager[D]) advance(ctx context.Context, sagaID string) error {
	mu := m.instMutex(sagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, def, err := m.load(ctx, sagaID)
	if err != nil {
		return err
	}
	if inst.Terminal() {
		return nil
	}

	step := nextStep(def, inst.CompletedStepNames())
	if step == nil {
		inst.Complete()
		if err := m.store.Save(ctx, inst); err != nil {
			return err
		}
		slog.InfoContext(ctx, "saga completed", "saga_id", sagaID)
		m.publish(ctx, EventSagaCompleted, inst, "", "")
		m.finish(ctx, inst)
		return nil
	}

	if err := inst.StartStep(step.Name()); err != nil {
		if errors.Is(err, instance.ErrStepInFlight) {
			// Already dispatched; its outcome will advance the saga.
			return nil
		}
		return err
	}
	if err := m.store.Save(ctx, inst); err != nil {
		return err
	}

	data, err := m.decodeContext(inst)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "dispatching saga step", "saga_id", sagaID, "step", step.Name())

	// Detach from the caller's cancellation (an HTTP request ending must not
	// abort the saga) while keeping tracing metadata.
	stepCtx := context.WithoutCancel(ctx)
	go func() {
		result, err := ExecuteWithRetry(stepCtx, m.retry, step, data)
		if err != nil {
			if hErr := m.HandleStepFailure(stepCtx, sagaID, step.Name(), err, data); hErr != nil {
				slog.ErrorContext(stepCtx, "failed to handle step failure",
					"saga_id", sagaID, "step", step.Name(), "error", hErr)
			}
			return
		}
		if hErr := m.HandleStepResult(stepCtx, sagaID, step.Name(), result, data); hErr != nil {
			slog.ErrorContext(stepCtx, "failed to handle step result",
				"saga_id", sagaID, "step", step.Name(), "error", hErr)
		}
	}()
	return nil
}

// compensate sweeps the completed steps in reverse completion order, invoking
// each declared compensating action. Every completed step gets exactly one
// attempt regardless of prior compensation outcomes. Caller holds the
// instance mutex.
func (m *Manager[D]) compensate(ctx context.Context, inst *instance.Instance, def Definition[D]) {
	completed := inst.ForwardCompletedStepNames()
	if len(completed) == 0 {
		return
	}

	data, err := m.decodeContext(inst)
	if err != nil {
		slog.ErrorContext(ctx, "cannot compensate saga without its context",
			"saga_id", inst.ID, "error", err)
		return
	}

	slog.InfoContext(ctx, "compensating saga", "saga_id", inst.ID, "steps", len(completed))

	for i := len(completed) - 1; i >= 0; i-- {
		name := completed[i]
		step := findStep(def, name)
		if step == nil {
			slog.ErrorContext(ctx, "completed step missing from definition",
				"saga_id", inst.ID, "step", name)
			continue
		}
		if !step.HasCompensation() {
			continue
		}

		if err := step.Compensate(ctx, data); err != nil {
			// Partial rollback: surfaced for manual reconciliation, sweep
			// continues with the remaining steps.
			slog.ErrorContext(ctx, "compensation failed",
				"saga_id", inst.ID, "step", name, "error", err)
			m.publish(ctx, EventCompensationFailed, inst, name, err.Error())
			continue
		}

		if err := inst.CompensateStep(name); err != nil {
			slog.ErrorContext(ctx, "failed to record compensation",
				"saga_id", inst.ID, "step", name, "error", err)
			continue
		}
		if err := m.store.Save(ctx, inst); err != nil {
			slog.ErrorContext(ctx, "failed to persist compensation",
				"saga_id", inst.ID, "step", name, "error", err)
		}
		slog.InfoContext(ctx, "compensated saga step", "saga_id", inst.ID, "step", name)
		m.publish(ctx, EventStepCompensated, inst, name, "")
	}
}

// finish releases every semantic lock held by a terminal instance and drops
// its writer mutex from the map.
func (m *Manager[D]) finish(ctx context.Context, inst *instance.Instance) {
	if m.locks != nil {
		if _, err := m.locks.ReleaseAll(ctx, inst.ID); err != nil {
			slog.ErrorContext(ctx, "failed to release saga locks", "saga_id", inst.ID, "error", err)
		}
	}
	m.mu.Lock()
	delete(m.instLocks, inst.ID)
	m.mu.Unlock()
}

// load reloads the latest persisted instance and resolves its definition.
func (m *Manager[D]) load(ctx context.Context, sagaID string) (*instance.Instance, Definition[D], error) {
	inst, err := m.store.FindByID(ctx, sagaID)
	if errors.Is(err, instance.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, sagaID)
	}
	if err != nil {
		return nil, nil, err
	}
	def, ok := m.registry.Find(inst.SagaType)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownSagaType, inst.SagaType)
	}
	return inst, def, nil
}

func (m *Manager[D]) instMutex(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.instLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		m.instLocks[id] = mu
	}
	return mu
}

func (m *Manager[D]) decodeContext(inst *instance.Instance) (*D, error) {
	var data D
	if err := json.Unmarshal(inst.Context, &data); err != nil {
		return nil, fmt.Errorf("deserialize saga context for %s: %w", inst.ID, err)
	}
	return &data, nil
}

func (m *Manager[D]) encodeContext(inst *instance.Instance, data *D) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("serialize saga context for %s: %w", inst.ID, err)
	}
	inst.Context = payload
	return nil
}

func (m *Manager[D]) publish(ctx context.Context, typ EventType, inst *instance.Instance, stepName, reason string) {
	ev := Event{
		Type:       typ,
		SagaID:     inst.ID,
		SagaType:   inst.SagaType,
		StepName:   stepName,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	if err := m.events.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to publish saga event",
			"saga_id", inst.ID, "event", typ, "error", err)
	}
}

// traceID returns the active trace id, or "" outside a span.
func traceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
