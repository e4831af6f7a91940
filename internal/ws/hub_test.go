package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jikoni-pos/api/internal/service"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, hotelID uuid.UUID) *Client {
	return &Client{
		hub:     hub,
		hotelID: hotelID,
		send:    make(chan []byte, 256),
	}
}

func TestHubRegistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	hotelID := uuid.New()
	client := mockClient(hub, hotelID)

	// Register client
	hub.register <- client

	// Give hub time to process
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.rooms[hotelID] == nil {
		t.Fatal("hotel room not created")
	}
	if !hub.rooms[hotelID][client] {
		t.Fatal("client not registered in hotel room")
	}
}

func TestHubUnregistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	hotelID := uuid.New()
	client := mockClient(hub, hotelID)

	// Register client
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	// Unregister client
	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	// Room should be cleaned up when empty
	if hub.rooms[hotelID] != nil {
		t.Fatal("hotel room not cleaned up after last client unregistered")
	}
}

func TestBroadcastToSingleHotel(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	hotel1 := uuid.New()
	hotel2 := uuid.New()

	client1 := mockClient(hub, hotel1)
	client2 := mockClient(hub, hotel2)

	// Register both clients
	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	// Broadcast to hotel1 only
	testPayload := json.RawMessage(`{"order_id":"test-123"}`)
	event := Event{
		Type:    "order.created",
		Payload: testPayload,
	}
	hub.BroadcastToHotel(hotel1, event)

	// Check client1 receives the message
	select {
	case msg := <-client1.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		if received.Type != "order.created" {
			t.Errorf("expected type 'order.created', got '%s'", received.Type)
		}
		if string(received.Payload) != string(testPayload) {
			t.Errorf("expected payload '%s', got '%s'", testPayload, received.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client1 did not receive message")
	}

	// Check client2 does NOT receive the message
	select {
	case <-client2.send:
		t.Fatal("client2 should not have received message for different hotel")
	case <-time.After(50 * time.Millisecond):
		// Expected - no message received
	}
}

func TestBroadcastToMultipleClientsInSameHotel(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	hotelID := uuid.New()
	client1 := mockClient(hub, hotelID)
	client2 := mockClient(hub, hotelID)
	client3 := mockClient(hub, hotelID)

	// Register all clients to same hotel
	hub.register <- client1
	hub.register <- client2
	hub.register <- client3
	time.Sleep(10 * time.Millisecond)

	// Broadcast event
	testPayload := json.RawMessage(`{"status":"served"}`)
	event := Event{
		Type:    "order.updated",
		Payload: testPayload,
	}
	hub.BroadcastToHotel(hotelID, event)

	// All three clients should receive the message
	clients := []*Client{client1, client2, client3}
	for i, client := range clients {
		select {
		case msg := <-client.send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("client%d: failed to unmarshal: %v", i+1, err)
			}
			if received.Type != "order.updated" {
				t.Errorf("client%d: expected type 'order.updated', got '%s'", i+1, received.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client%d did not receive message", i+1)
		}
	}
}

func TestHubMultipleHotelsIsolation(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	hotel1 := uuid.New()
	hotel2 := uuid.New()
	hotel3 := uuid.New()

	// Create 2 clients per hotel
	clients := map[uuid.UUID][]*Client{
		hotel1: {mockClient(hub, hotel1), mockClient(hub, hotel1)},
		hotel2: {mockClient(hub, hotel2), mockClient(hub, hotel2)},
		hotel3: {mockClient(hub, hotel3), mockClient(hub, hotel3)},
	}

	// Register all clients
	for _, clientList := range clients {
		for _, client := range clientList {
			hub.register <- client
		}
	}
	time.Sleep(10 * time.Millisecond)

	// Broadcast to hotel2 only
	event := Event{
		Type:    "order.updated",
		Payload: json.RawMessage(`{"hotel_id":"` + hotel2.String() + `"}`),
	}
	hub.BroadcastToHotel(hotel2, event)

	// Only hotel2 clients should receive
	for hotelID, clientList := range clients {
		for i, client := range clientList {
			select {
			case msg := <-client.send:
				if hotelID != hotel2 {
					t.Fatalf("hotel %s client %d should not receive message", hotelID, i)
				}
				var received Event
				if err := json.Unmarshal(msg, &received); err != nil {
					t.Fatalf("unmarshal error: %v", err)
				}
				if received.Type != "order.updated" {
					t.Errorf("wrong event type: %s", received.Type)
				}
			case <-time.After(50 * time.Millisecond):
				if hotelID == hotel2 {
					t.Fatalf("hotel2 client %d should have received message", i)
				}
				// Expected for other hotels
			}
		}
	}
}

func TestHubCleanupEmptyRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	hotelID := uuid.New()
	client1 := mockClient(hub, hotelID)
	client2 := mockClient(hub, hotelID)

	// Register both clients
	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	if len(hub.rooms[hotelID]) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(hub.rooms[hotelID]))
	}
	hub.mu.RUnlock()

	// Unregister first client
	hub.unregister <- client1
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	if len(hub.rooms[hotelID]) != 1 {
		t.Fatalf("expected 1 client after first unregister, got %d", len(hub.rooms[hotelID]))
	}
	hub.mu.RUnlock()

	// Unregister second client
	hub.unregister <- client2
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	if hub.rooms[hotelID] != nil {
		t.Fatal("room should be deleted when last client unregisters")
	}
	hub.mu.RUnlock()
}

func TestBroadcastToNonExistentHotel(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// Create a client for hotel1
	hotel1 := uuid.New()
	client1 := mockClient(hub, hotel1)
	hub.register <- client1
	time.Sleep(10 * time.Millisecond)

	// Broadcast to hotel2 (doesn't exist)
	hotel2 := uuid.New()
	event := Event{
		Type:    "order.created",
		Payload: json.RawMessage(`{"test":"data"}`),
	}
	hub.BroadcastToHotel(hotel2, event)

	// client1 should NOT receive anything
	select {
	case <-client1.send:
		t.Fatal("client should not receive message for different hotel")
	case <-time.After(50 * time.Millisecond):
		// Expected - no message
	}
}

func TestNotifierPublishesOrderEvent(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	hotelID := uuid.New()
	client := mockClient(hub, hotelID)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	orderID := uuid.New()
	notifier := NewNotifier(hub)
	notifier.OrderChanged(hotelID, "order.updated", service.OrderEvent{OrderID: orderID, Status: "paid"})

	select {
	case msg := <-client.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("unmarshal error: %v", err)
		}
		if received.Type != "order.updated" {
			t.Errorf("wrong event type: %s", received.Type)
		}
		var payload service.OrderEvent
		if err := json.Unmarshal(received.Payload, &payload); err != nil {
			t.Fatalf("payload unmarshal error: %v", err)
		}
		if payload.OrderID != orderID {
			t.Errorf("wrong order id: %s", payload.OrderID)
		}
		if payload.Status != "paid" {
			t.Errorf("wrong status: %s", payload.Status)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client did not receive notifier event")
	}
}
