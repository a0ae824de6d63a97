package saga

import (
	"context"
	"time"
)

// EventType identifies a saga lifecycle notification.
type EventType string

const (
	EventSagaStarted        EventType = "saga.started"
	EventStepCompleted      EventType = "saga.step.completed"
	EventSagaCompleted      EventType = "saga.completed"
	EventSagaFailed         EventType = "saga.failed"
	EventStepCompensated    EventType = "saga.step.compensated"
	EventCompensationFailed EventType = "saga.step.compensation_failed"
)

// Event is published by the manager on every saga state transition. Legacy
// consumers subscribe to these instead of polling the instance store.
type Event struct {
	Type       EventType `json:"type"`
	SagaID     string    `json:"saga_id"`
	SagaType   string    `json:"saga_type"`
	StepName   string    `json:"step_name,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher is the seam to the notification bus. Publish failures are
// logged by the manager and never affect saga progress.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards events; wired when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
