package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

// TestWebSocketBroadcastFanOut verifies that event broadcast fans out to every
// connected subscriber without blocking, and that disconnects clean up state
func TestWebSocketBroadcastFanOut(t *testing.T) {
	handler := NewWebSocketHandler(arbor.NewLogger())

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	// Convert http:// to ws://
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	numSubscribers := 5
	numEvents := 5

	received := make([]int32, numSubscribers)
	var wg sync.WaitGroup
	wg.Add(numSubscribers)

	subscribers := make([]*websocket.Conn, numSubscribers)
	for i := 0; i < numSubscribers; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("Failed to connect subscriber %d: %v", i, err)
		}
		subscribers[i] = conn

		idx := i
		go func() {
			defer wg.Done()
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))

			for {
				var msg WSMessage
				if err := conn.ReadJSON(&msg); err != nil {
					return
				}

				// Every connection gets a hello first; count only run events
				if msg.Type == "run_completed" {
					atomic.AddInt32(&received[idx], 1)
				}
			}
		}()
	}

	// Wait for all subscribers to register
	time.Sleep(100 * time.Millisecond)

	if count := handler.ClientCount(); count != numSubscribers {
		t.Errorf("Expected %d connected clients, got %d", numSubscribers, count)
	}

	// Broadcast concurrently to exercise the per-connection write locks
	var sendWg sync.WaitGroup
	sendWg.Add(numEvents)
	for i := 0; i < numEvents; i++ {
		runID := fmt.Sprintf("run_%d", i)
		go func() {
			defer sendWg.Done()
			handler.Broadcast(WSMessage{
				Type:    "run_completed",
				Payload: map[string]string{"run_id": runID},
			})
		}()
	}
	sendWg.Wait()

	// Allow time for delivery
	time.Sleep(300 * time.Millisecond)

	for _, conn := range subscribers {
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Timeout waiting for subscribers to finish")
	}

	for i := range received {
		if got := atomic.LoadInt32(&received[i]); got != int32(numEvents) {
			t.Errorf("Subscriber %d received %d events, expected %d", i, got, numEvents)
		}
	}

	// Read loops notice the closes and unregister
	time.Sleep(200 * time.Millisecond)

	handler.mu.RLock()
	remainingClients := len(handler.clients)
	remainingMutexes := len(handler.clientMutex)
	handler.mu.RUnlock()

	if remainingClients != 0 {
		t.Errorf("Handler still has %d clients after cleanup", remainingClients)
	}
	if remainingMutexes != 0 {
		t.Errorf("Handler still has %d client mutexes after cleanup", remainingMutexes)
	}
}

// TestWebSocketHello verifies that a new connection is greeted with the server
// instance ID so clients can detect restarts
func TestWebSocketHello(t *testing.T) {
	handler := NewWebSocketHandler(arbor.NewLogger())

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read hello: %v", err)
	}

	if msg.Type != "hello" {
		t.Fatalf("Expected first message type 'hello', got %q", msg.Type)
	}

	payload, ok := msg.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected hello payload object, got %T", msg.Payload)
	}
	if payload["server_instance_id"] == "" || payload["server_instance_id"] == nil {
		t.Error("Expected server_instance_id in hello payload")
	}
}
