package sse

import (
	"strings"
	"testing"
	"time"
)

// TestBrokerBasic - Basic broker functionality
func TestBrokerBasic(t *testing.T) {
	broker := NewBroker(100, 30*time.Second)
	if broker == nil {
		t.Fatal("NewBroker returned nil")
	}

	// Give broker time to start
	time.Sleep(50 * time.Millisecond)

	count := broker.ClientCount()
	if count != 0 {
		t.Errorf("Expected 0 clients, got %d", count)
	}

	// Broker runs automatically and cleans up
}

// TestClient - Test client creation
func TestClient(t *testing.T) {
	client := NewClient("test-client", 10)
	if client.ID != "test-client" {
		t.Errorf("Expected client ID 'test-client', got '%s'", client.ID)
	}
	client.Close()
}

// TestFormatEvent - Test SSE event formatting
func TestFormatEvent(t *testing.T) {
	event := &Event{
		ID:    "123",
		Event: "message",
		Data:  "Hello, World!",
		Retry: 5000,
	}

	formatted := string(FormatEvent(event))

	// Check all fields are present
	if !strings.Contains(formatted, "id: 123") {
		t.Error("Missing id field")
	}
	if !strings.Contains(formatted, "event: message") {
		t.Error("Missing event field")
	}
	if !strings.Contains(formatted, "data: Hello, World!") {
		t.Error("Missing data field")
	}
	if !strings.Contains(formatted, "retry: 5000") {
		t.Error("Missing retry field")
	}
	if !strings.HasSuffix(formatted, "\n\n") {
		t.Error("Should end with double newline")
	}
}

// TestStreamBroadcastReachesSubscriber checks a Stream.Broadcast makes
// it to a subscribed client's Channel with the stream's namespace in
// its generated ID.
func TestStreamBroadcastReachesSubscriber(t *testing.T) {
	stream := NewStream("events")
	client, err := stream.Subscribe("sub-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Unsubscribe(client)

	if err := stream.Broadcast("hello"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	select {
	case event := <-client.Channel:
		if !strings.HasPrefix(event.ID, "events-") {
			t.Errorf("event ID %q should be namespaced under %q", event.ID, "events")
		}
		if event.Data != "hello" {
			t.Errorf("Data = %q, want %q", event.Data, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}
}

// TestRoomScopesDeliveryToMembers checks that a Room.Broadcast reaches
// a client that Join'd the room but not a client only subscribed to
// the stream directly.
func TestRoomScopesDeliveryToMembers(t *testing.T) {
	stream := NewStream("events")

	outsider, err := stream.Subscribe("outsider")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Unsubscribe(outsider)

	room := stream.Room("lobby")
	member, err := room.Join("member")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer room.Leave("member")

	room.Broadcast("ping", "payload")

	select {
	case event := <-member.Channel:
		if event.Data != "payload" {
			t.Errorf("Data = %q, want %q", event.Data, "payload")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for room broadcast")
	}

	select {
	case event := <-outsider.Channel:
		t.Fatalf("outsider should not receive room-scoped events, got %v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestStreamRoomIsMemoized checks repeated calls to Stream.Room with
// the same name return the same *Room rather than a fresh, empty one.
func TestStreamRoomIsMemoized(t *testing.T) {
	stream := NewStream("events")
	a := stream.Room("lobby")
	b := stream.Room("lobby")
	if a != b {
		t.Fatal("Stream.Room should memoize rooms by name")
	}
}
