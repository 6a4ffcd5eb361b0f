package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := int64(1)
		if r.URL.Query().Get("user_id") == "2" {
			userID = 2
		}
		hub.HandleWebSocket(w, r, userID)
	}))

	t.Cleanup(server.Close)
	return hub, server, cancel
}

func dial(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + server.URL[4:] + "?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub, server, cancel := startHub(t)
	defer cancel()

	conn := dial(t, server, "1")

	time.Sleep(100 * time.Millisecond)

	hub.mu.RLock()
	connections, exists := hub.connections[1]
	hub.mu.RUnlock()

	if !exists {
		t.Fatal("Connection should be registered")
	}
	if len(connections) != 1 {
		t.Fatalf("Expected 1 connection, got %d", len(connections))
	}
	if n := hub.SessionCount(); n != 1 {
		t.Fatalf("Expected session count 1, got %d", n)
	}

	conn.Close()

	time.Sleep(100 * time.Millisecond)

	hub.mu.RLock()
	_, exists = hub.connections[1]
	hub.mu.RUnlock()

	if exists {
		t.Fatal("Connection should be unregistered")
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub, server, cancel := startHub(t)
	defer cancel()

	conn := dial(t, server, "1")

	time.Sleep(100 * time.Millisecond)

	message := &Message{
		Type:    "payment_status",
		Channel: "settlement_payment_status#1",
		Data:    map[string]interface{}{"payment_id": "pay-1", "status": "authorized"},
	}
	hub.Broadcast(1, message)

	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var received Message
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}

	if received.Type != "payment_status" {
		t.Errorf("Expected type 'payment_status', got '%s'", received.Type)
	}
	if received.Channel != "settlement_payment_status#1" {
		t.Errorf("Expected channel 'settlement_payment_status#1', got '%s'", received.Channel)
	}
	if received.UserID != 1 {
		t.Errorf("Expected userID 1, got %d", received.UserID)
	}
}

func TestHub_MultipleConnections(t *testing.T) {
	hub, server, cancel := startHub(t)
	defer cancel()

	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		conns = append(conns, dial(t, server, "1"))
	}

	time.Sleep(100 * time.Millisecond)

	hub.mu.RLock()
	connections, exists := hub.connections[1]
	hub.mu.RUnlock()

	if !exists {
		t.Fatal("Connections should be registered")
	}
	if len(connections) != 3 {
		t.Fatalf("Expected 3 connections, got %d", len(connections))
	}

	message := &Message{
		Type:    "escrow_released",
		Channel: "settlement_escrow_events#1",
		Data:    map[string]interface{}{"payment_id": "pay-1"},
	}
	hub.Broadcast(1, message)

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(idx int, c *websocket.Conn) {
			defer wg.Done()
			c.SetReadDeadline(time.Now().Add(1 * time.Second))
			var received Message
			if err := c.ReadJSON(&received); err != nil {
				t.Errorf("Connection %d failed to read message: %v", idx, err)
				return
			}
			if received.Type != "escrow_released" {
				t.Errorf("Connection %d: Expected type 'escrow_released', got '%s'", idx, received.Type)
			}
		}(i, conn)
	}

	wg.Wait()
}

func TestHub_DifferentUsers(t *testing.T) {
	hub, server, cancel := startHub(t)
	defer cancel()

	conn1 := dial(t, server, "1")
	conn2 := dial(t, server, "2")

	time.Sleep(100 * time.Millisecond)

	message := &Message{
		Type:    "export_complete",
		Channel: "settlement_export_complete#1",
		Data:    map[string]interface{}{"id": "exports:abc"},
	}
	hub.Broadcast(1, message)

	conn1.SetReadDeadline(time.Now().Add(1 * time.Second))
	var received1 Message
	if err := conn1.ReadJSON(&received1); err != nil {
		t.Fatalf("User 1 failed to read message: %v", err)
	}
	if received1.Type != "export_complete" {
		t.Errorf("User 1: Expected type 'export_complete', got '%s'", received1.Type)
	}

	conn2.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var received2 Message
	if err := conn2.ReadJSON(&received2); err == nil {
		t.Error("User 2 should not receive message for user 1")
	}
}

func TestHub_BroadcastAllSessions(t *testing.T) {
	hub, server, cancel := startHub(t)
	defer cancel()

	conn1 := dial(t, server, "1")
	conn2 := dial(t, server, "2")

	time.Sleep(100 * time.Millisecond)

	// user id 0 addresses every connected session
	hub.Broadcast(0, &Message{
		Type:    "escrow_frozen",
		Channel: "settlement_escrow_events#0",
		Data:    map[string]interface{}{"payment_id": "pay-1", "dispute_id": "disp-1"},
	})

	for i, conn := range []*websocket.Conn{conn1, conn2} {
		conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		var received Message
		if err := conn.ReadJSON(&received); err != nil {
			t.Fatalf("Session %d failed to read broadcast: %v", i+1, err)
		}
		if received.Type != "escrow_frozen" {
			t.Errorf("Session %d: Expected type 'escrow_frozen', got '%s'", i+1, received.Type)
		}
	}
}

func TestHub_BroadcastChannelFull(t *testing.T) {
	hub := NewHub()
	hub.broadcast = make(chan *Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	hub.broadcast <- &Message{Type: "fill"}
	hub.broadcast <- &Message{Type: "fill"}

	message := &Message{
		Type:    "dropped",
		Channel: "settlement_export_progress#1",
		Data:    map[string]interface{}{"progress": 50},
	}
	hub.Broadcast(1, message)

	select {
	case <-time.After(100 * time.Millisecond):
		// channel stayed full, message was dropped as expected
	case msg := <-hub.broadcast:
		if msg.Type == "dropped" {
			t.Error("Message should be dropped when channel is full")
		}
	}
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	hub, server, cancel := startHub(t)
	_ = hub

	conn := dial(t, server, "1")

	time.Sleep(50 * time.Millisecond)

	cancel()

	time.Sleep(100 * time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("Expected connection to be closed after hub shutdown")
	}
}
