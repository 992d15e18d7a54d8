package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventJobCompleted fires once when a tracked job reaches completed
	EventJobCompleted EventType = "job_completed"
	// EventJobFailed fires once when a tracked job reaches failed
	EventJobFailed EventType = "job_failed"
	// EventEmployeesInvalidated signals that the cached employee
	// collection is stale and must be refetched
	EventEmployeesInvalidated EventType = "employees_invalidated"
	// EventBatchesInvalidated signals that the cached payslip batch
	// collection is stale and must be refetched
	EventBatchesInvalidated EventType = "batches_invalidated"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes an event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
