package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		// Extract common fields from payload if available
		var runID, source, status string
		if payload, ok := event.Payload.(map[string]interface{}); ok {
			if id, ok := payload["run_id"].(string); ok {
				runID = id
			}
			if s, ok := payload["source"].(string); ok {
				source = s
			}
			if s, ok := payload["status"].(string); ok {
				status = s
			}
		}

		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if runID != "" {
			logEvent = logEvent.Str("run_id", runID)
		}
		if source != "" {
			logEvent = logEvent.Str("source", source)
		}
		if status != "" {
			logEvent = logEvent.Str("status", status)
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventRunTriggered,
		interfaces.EventRunStarted,
		interfaces.EventRunCompleted,
		interfaces.EventSourceCompleted,
		interfaces.EventBreakerOpened,
		interfaces.EventBreakerReset,
	}

	for _, eventType := range eventTypes {
		if _, err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Info().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
