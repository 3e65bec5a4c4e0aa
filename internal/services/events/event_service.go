package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
)

// subscription pairs a handler with the id handed back to the subscriber.
// Handler funcs are not comparable, so removal goes by id.
type subscription struct {
	id      int
	handler interfaces.EventHandler
}

// Service implements EventService with an in-process pub/sub bus
type Service struct {
	subscribers map[interfaces.EventType][]subscription
	nextID      int
	mu          sync.RWMutex
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType][]subscription),
		nextID:      1,
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) (int, error) {
	if handler == nil {
		return 0, fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[eventType] = append(s.subscribers[eventType], subscription{id: id, handler: handler})

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return id, nil
}

// Unsubscribe removes a prior subscription
func (s *Service) Unsubscribe(eventType interfaces.EventType, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subscribers[eventType]
	for i, sub := range subs {
		if sub.id == id {
			s.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			s.logger.Debug().
				Str("event_type", string(eventType)).
				Msg("Event handler unsubscribed")
			return nil
		}
	}

	return fmt.Errorf("no subscription %d for event type: %s", id, eventType)
}

// Publish sends an event to all subscribers asynchronously
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	subs := s.subscribers[event.Type]
	s.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	s.logger.Debug().
		Str("event_type", string(event.Type)).
		Int("subscriber_count", len(subs)).
		Msg("Publishing event")

	for _, sub := range subs {
		go func(h interfaces.EventHandler) {
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
			}
		}(sub.handler)
	}

	return nil
}

// PublishSync sends an event to all subscribers and waits for them
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	subs := s.subscribers[event.Type]
	s.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(subs))

	for _, sub := range subs {
		wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer wg.Done()
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
				errChan <- err
			}
		}(sub.handler)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("event handlers failed: %d errors", len(errs))
	}

	return nil
}

// Close shuts down the event service
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[interfaces.EventType][]subscription)
	s.logger.Info().Msg("Event service closed")

	return nil
}
