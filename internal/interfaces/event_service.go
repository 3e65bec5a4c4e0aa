package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventRunTriggered    EventType = "run_triggered"
	EventRunStarted      EventType = "run_started"
	EventRunCompleted    EventType = "run_completed"
	EventSourceCompleted EventType = "source_completed"
	EventBreakerOpened   EventType = "breaker_opened"
	EventBreakerReset    EventType = "breaker_reset"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe registers a handler for an event type and returns a
	// subscription id for Unsubscribe
	Subscribe(eventType EventType, handler EventHandler) (int, error)

	// Unsubscribe removes a prior subscription
	Unsubscribe(eventType EventType, id int) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
