package saga

import "errors"

var (
	// ErrUnknownSagaType means no definition is registered for the requested
	// type. Fatal, surfaced synchronously, never retried.
	ErrUnknownSagaType = errors.New("unknown saga type")

	// ErrInstanceNotFound means a step outcome referenced an instance id the
	// store does not know.
	ErrInstanceNotFound = errors.New("saga instance not found")

	// ErrUnknownStep means a step name is not part of the governing
	// definition.
	ErrUnknownStep = errors.New("unknown saga step")

	// ErrResourceLocked is the lock-contention outcome of saga creation:
	// the targeted business resource is held by another in-flight saga.
	// Not an engine failure; the caller retries the whole flow later.
	ErrResourceLocked = errors.New("resource locked by another saga")
)
