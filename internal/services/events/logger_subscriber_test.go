package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
)

// TestNewLoggerSubscriber verifies that the logger subscriber handles events
func TestNewLoggerSubscriber(t *testing.T) {
	logger := arbor.NewLogger()

	subscriber := NewLoggerSubscriber(logger)

	ctx := context.Background()
	event := interfaces.Event{
		Type: interfaces.EventRunStarted,
		Payload: map[string]interface{}{
			"run_id": "run-123",
			"source": "adzuna-de",
			"status": "running",
		},
	}

	if err := subscriber(ctx, event); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	// Events without a payload must not trip the field extraction
	event2 := interfaces.Event{
		Type:    interfaces.EventRunTriggered,
		Payload: nil,
	}

	if err := subscriber(ctx, event2); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

// TestSubscribeLoggerToAllEvents verifies logger is subscribed to all event types
func TestSubscribeLoggerToAllEvents(t *testing.T) {
	logger := arbor.NewLogger()

	eventService := NewService(logger)
	defer eventService.Close()

	if err := SubscribeLoggerToAllEvents(eventService, logger); err != nil {
		t.Fatalf("SubscribeLoggerToAllEvents failed: %v", err)
	}

	// Publishing any known type must reach the subscriber without error
	err := eventService.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventBreakerOpened,
		Payload: map[string]interface{}{"source": "adzuna-de"},
	})
	if err != nil {
		t.Errorf("PublishSync failed: %v", err)
	}
}

func TestService_SubscribeAndPublishSync(t *testing.T) {
	logger := arbor.NewLogger()
	service := NewService(logger)
	defer service.Close()

	var calls atomic.Int32
	_, err := service.Subscribe(interfaces.EventRunCompleted, func(ctx context.Context, event interfaces.Event) error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	err = service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventRunCompleted})
	if err != nil {
		t.Fatalf("PublishSync failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 handler call, got %d", calls.Load())
	}

	// Other event types must not reach the handler
	if err := service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventRunStarted}); err != nil {
		t.Fatalf("PublishSync failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected handler call count to stay at 1, got %d", calls.Load())
	}
}

func TestService_Unsubscribe(t *testing.T) {
	logger := arbor.NewLogger()
	service := NewService(logger)
	defer service.Close()

	var calls atomic.Int32
	id, err := service.Subscribe(interfaces.EventRunCompleted, func(ctx context.Context, event interfaces.Event) error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := service.Unsubscribe(interfaces.EventRunCompleted, id); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	if err := service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventRunCompleted}); err != nil {
		t.Fatalf("PublishSync failed: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("Expected no handler calls after unsubscribe, got %d", calls.Load())
	}

	// Unsubscribing twice reports the missing subscription
	if err := service.Unsubscribe(interfaces.EventRunCompleted, id); err == nil {
		t.Error("Expected error for unknown subscription id")
	}
}

func TestService_PublishAsync(t *testing.T) {
	logger := arbor.NewLogger()
	service := NewService(logger)
	defer service.Close()

	done := make(chan struct{})
	_, err := service.Subscribe(interfaces.EventSourceCompleted, func(ctx context.Context, event interfaces.Event) error {
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := service.Publish(context.Background(), interfaces.Event{Type: interfaces.EventSourceCompleted}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Handler was not invoked within 2s")
	}
}
