package ws

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kiwari-pos/orderdesk/internal/auth"
	"github.com/sirupsen/logrus"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, userID uuid.UUID) *Client {
	return &Client{
		hub:    hub,
		userID: userID,
		send:   make(chan []byte, 256),
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub()
	go hub.Run(ctx)
	return hub
}

func TestHubRegistration(t *testing.T) {
	hub := startHub(t)

	userID := uuid.New()
	client := mockClient(hub, userID)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.rooms[userID] == nil {
		t.Fatal("user room not created")
	}
	if !hub.rooms[userID][client] {
		t.Fatal("client not registered in user room")
	}
}

func TestHubCleanupEmptyRoom(t *testing.T) {
	hub := startHub(t)

	userID := uuid.New()
	client1 := mockClient(hub, userID)
	client2 := mockClient(hub, userID)

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	if n := hub.Connections(); n != 2 {
		t.Fatalf("expected 2 clients, got %d", n)
	}

	hub.unregister <- client1
	time.Sleep(10 * time.Millisecond)
	if n := hub.Connections(); n != 1 {
		t.Fatalf("expected 1 client after first unregister, got %d", n)
	}

	hub.unregister <- client2
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.rooms[userID] != nil {
		t.Fatal("room should be deleted when last client unregisters")
	}
}

func TestBroadcastToSingleUser(t *testing.T) {
	hub := startHub(t)

	user1 := uuid.New()
	user2 := uuid.New()
	client1 := mockClient(hub, user1)
	client2 := mockClient(hub, user2)

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	testPayload := json.RawMessage(`{"draft_id":"d-1"}`)
	hub.BroadcastToUser(user1, Event{Type: "draft.updated", Payload: testPayload})

	select {
	case msg := <-client1.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		if received.Type != "draft.updated" {
			t.Errorf("expected type 'draft.updated', got '%s'", received.Type)
		}
		if string(received.Payload) != string(testPayload) {
			t.Errorf("expected payload '%s', got '%s'", testPayload, received.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client1 did not receive message")
	}

	select {
	case <-client2.send:
		t.Fatal("client2 should not have received message for different user")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastAll(t *testing.T) {
	hub := startHub(t)

	clients := []*Client{
		mockClient(hub, uuid.New()),
		mockClient(hub, uuid.New()),
		mockClient(hub, uuid.New()),
	}
	for _, c := range clients {
		hub.register <- c
	}
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastAll(Event{Type: "products.changed"})

	for i, client := range clients {
		select {
		case msg := <-client.send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("client%d: failed to unmarshal: %v", i+1, err)
			}
			if received.Type != "products.changed" {
				t.Errorf("client%d: expected type 'products.changed', got '%s'", i+1, received.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client%d did not receive message", i+1)
		}
	}
}

func TestBroadcastDropsFullClient(t *testing.T) {
	hub := startHub(t)

	userID := uuid.New()
	slow := &Client{hub: hub, userID: userID, send: make(chan []byte)}
	hub.register <- slow
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToUser(userID, Event{Type: "draft.updated"})
	time.Sleep(10 * time.Millisecond)

	if n := hub.Connections(); n != 0 {
		t.Fatalf("expected slow client to be dropped, %d connected", n)
	}
	if _, ok := <-slow.send; ok {
		t.Fatal("send channel should be closed")
	}
}

func TestHubShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := mockClient(hub, uuid.New())
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	if _, ok := <-client.send; ok {
		t.Fatal("client channel should be closed on shutdown")
	}
	// Publishing after shutdown must not block.
	hub.BroadcastAll(Event{Type: "orders.changed"})
	hub.leave(client)
}

func TestNewEvent(t *testing.T) {
	ev, err := NewEvent("draft.updated", map[string]string{"id": "abc"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if string(ev.Payload) != `{"id":"abc"}` {
		t.Errorf("payload: got %s", ev.Payload)
	}

	ev, _ = NewEvent("products.changed", nil)
	data, _ := json.Marshal(ev)
	if string(data) != `{"type":"products.changed"}` {
		t.Errorf("nil payload should be omitted: %s", data)
	}
}

func TestServeWS(t *testing.T) {
	const secret = "ws-secret"
	hub := startHub(t)
	log := logrus.New()
	log.SetOutput(io.Discard)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, secret, log, w, r)
	}))
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	// Missing and forbidden tokens are rejected before the upgrade.
	if _, resp, err := websocket.DefaultDialer.Dial(base, nil); err == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v", err)
	}
	noFeature, _ := auth.GenerateToken(secret, uuid.New(), "user", []string{"reports"}, time.Minute)
	if _, resp, err := websocket.DefaultDialer.Dial(base+"?token="+noFeature, nil); err == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without orders feature, got %v", err)
	}

	userID := uuid.New()
	tok, _ := auth.GenerateToken(secret, userID, "user", []string{"orders"}, time.Minute)
	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+tok, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.Connections() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	hub.BroadcastToUser(userID, Event{Type: "draft.updated"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(msg), `"draft.updated"`) {
		t.Errorf("unexpected message: %s", msg)
	}
}
