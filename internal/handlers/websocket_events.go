package handlers

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
)

// streamedEvents are the bus events forwarded to WebSocket clients: the run
// lifecycle plus circuit breaker transitions.
var streamedEvents = []interfaces.EventType{
	interfaces.EventRunTriggered,
	interfaces.EventRunStarted,
	interfaces.EventSourceCompleted,
	interfaces.EventRunCompleted,
	interfaces.EventBreakerOpened,
	interfaces.EventBreakerReset,
}

// EventSubscriber bridges the event bus to the WebSocket stream. Payloads are
// forwarded as published; run_completed carries the full RunSummary.
type EventSubscriber struct {
	handler      *WebSocketHandler
	eventService interfaces.EventService
	logger       arbor.ILogger
	subIDs       map[interfaces.EventType]int
}

// NewEventSubscriber creates the subscriber and registers it for all streamed
// event types
func NewEventSubscriber(handler *WebSocketHandler, eventService interfaces.EventService, logger arbor.ILogger) *EventSubscriber {
	s := &EventSubscriber{
		handler:      handler,
		eventService: eventService,
		logger:       logger,
		subIDs:       make(map[interfaces.EventType]int),
	}

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService, stream will be silent")
		return s
	}

	for _, eventType := range streamedEvents {
		id, err := eventService.Subscribe(eventType, s.relay)
		if err != nil {
			logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe stream relay")
			continue
		}
		s.subIDs[eventType] = id
	}

	logger.Debug().Int("event_types", len(s.subIDs)).Msg("EventSubscriber registered for run lifecycle events")

	return s
}

// relay forwards one bus event to every connected stream client
func (s *EventSubscriber) relay(ctx context.Context, event interfaces.Event) error {
	s.handler.Broadcast(WSMessage{
		Type:    string(event.Type),
		Payload: event.Payload,
	})
	return nil
}

// Close removes the bus subscriptions
func (s *EventSubscriber) Close() {
	if s.eventService == nil {
		return
	}
	for eventType, id := range s.subIDs {
		if err := s.eventService.Unsubscribe(eventType, id); err != nil {
			s.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("Unsubscribe failed")
		}
	}
	s.subIDs = make(map[interfaces.EventType]int)
}
