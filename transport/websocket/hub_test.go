package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type call struct {
	kind   string
	connID string
	event  string
	data   string
}

// echoHandler answers every message with "<event>_response" and records calls.
type echoHandler struct {
	hub   *Hub
	calls chan call
}

func (e *echoHandler) OnConnect(connID, resumeToken string) {
	e.calls <- call{kind: "connect", connID: connID, data: resumeToken}
	e.hub.Send(connID, "connected", map[string]string{"resume": resumeToken})
}

func (e *echoHandler) OnMessage(connID, event string, data json.RawMessage) {
	e.calls <- call{kind: "message", connID: connID, event: event, data: string(data)}
	e.hub.Send(connID, event+"_response", data)
}

func (e *echoHandler) OnDisconnect(connID string) {
	e.calls <- call{kind: "disconnect", connID: connID}
}

func newTestClient(hub *Hub, id string, buffer int) *Client {
	c := &Client{id: id, hub: hub, send: make(chan []byte, buffer)}
	hub.register(c)
	return c
}

func readFrame(t *testing.T, c *Client) outboundFrame {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var f outboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		return f
	case <-time.After(100 * time.Millisecond):
		t.Fatal("No message received within timeout")
	}
	return outboundFrame{}
}

type outboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func TestNewHub(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.clients == nil {
		t.Error("Hub clients map is nil")
	}
	if hub.groups == nil {
		t.Error("Hub groups map is nil")
	}
}

func TestHubSendTargetsOneClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a := newTestClient(hub, "a", 4)
	b := newTestClient(hub, "b", 4)

	hub.Send("a", "hello", map[string]int{"n": 1})
	hub.Send("missing", "hello", nil)

	f := readFrame(t, a)
	if f.Event != "hello" || string(f.Data) != `{"n":1}` {
		t.Errorf("unexpected frame %+v", f)
	}
	if len(b.send) != 0 {
		t.Error("client b should not receive a targeted send")
	}
}

func TestHubGroups(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a := newTestClient(hub, "a", 4)
	b := newTestClient(hub, "b", 4)
	c := newTestClient(hub, "c", 4)

	hub.JoinGroup("a", "room-1")
	hub.JoinGroup("b", "room-1")
	hub.JoinGroup("c", "room-2")
	hub.JoinGroup("ghost", "room-1")

	hub.BroadcastToGroup("room-1", "tick", 1)
	readFrame(t, a)
	readFrame(t, b)
	if len(c.send) != 0 {
		t.Error("client c is in another group")
	}

	hub.LeaveGroup("a", "room-1")
	hub.BroadcastToGroup("room-1", "tick", 2)
	readFrame(t, b)
	if len(a.send) != 0 {
		t.Error("client a left the group")
	}

	if clients, groups := hub.Counts(); clients != 3 || groups != 2 {
		t.Errorf("Expected 3 clients in 2 groups, got %d in %d", clients, groups)
	}

	hub.LeaveGroup("c", "room-2")
	if _, groups := hub.Counts(); groups != 1 {
		t.Errorf("Empty group should be released, got %d groups", groups)
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	slow := newTestClient(hub, "slow", 1)
	hub.JoinGroup("slow", "room")

	hub.Send("slow", "one", nil)
	hub.BroadcastToGroup("room", "two", nil)

	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Error("send channel should be closed after overflow")
	}
	if clients, groups := hub.Counts(); clients != 0 || groups != 0 {
		t.Errorf("Dropped client should be forgotten, got %d clients %d groups", clients, groups)
	}

	// further sends are no-ops rather than panics
	hub.Send("slow", "three", nil)
	hub.BroadcastToGroup("room", "three", nil)
	hub.unregister(slow)
}

func TestWebSocketRoundTrip(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	handler := &echoHandler{hub: hub, calls: make(chan call, 16)}
	hub.SetHandler(handler)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?" + ResumeParam + "=tok-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer conn.Close()

	connected := expectCall(t, handler.calls, "connect")
	if connected.data != "tok-1" {
		t.Errorf("Expected resume token tok-1, got %q", connected.data)
	}

	frame := readConn(t, conn)
	if frame.Event != "connected" || string(frame.Data) != `{"resume":"tok-1"}` {
		t.Errorf("unexpected first frame %+v", frame)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"getRoom","data":{"x":1}}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	msg := expectCall(t, handler.calls, "message")
	if msg.event != "getRoom" || msg.data != `{"x":1}` || msg.connID != connected.connID {
		t.Errorf("unexpected message call %+v", msg)
	}
	frame = readConn(t, conn)
	if frame.Event != "getRoom_response" {
		t.Errorf("Expected getRoom_response, got %s", frame.Event)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	frame = readConn(t, conn)
	if frame.Event != "error" {
		t.Errorf("Expected error frame for malformed input, got %s", frame.Event)
	}

	conn.Close()
	gone := expectCall(t, handler.calls, "disconnect")
	if gone.connID != connected.connID {
		t.Errorf("disconnect for %s, want %s", gone.connID, connected.connID)
	}
	if clients, _ := hub.Counts(); clients != 0 {
		t.Errorf("Expected no clients after close, got %d", clients)
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	handler := &echoHandler{hub: hub, calls: make(chan call, 16)}
	hub.SetHandler(handler)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer conn.Close()
	expectCall(t, handler.calls, "connect")

	hub.Close()
	expectCall(t, handler.calls, "disconnect")
}

func TestHubAllowedOrigins(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.SetAllowedOrigins([]string{"https://play.example.com/", " "})
	handler := &echoHandler{hub: hub, calls: make(chan call, 16)}
	hub.SetHandler(handler)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"listed origin", "https://play.example.com", true},
		{"listed origin any case", "HTTPS://Play.Example.com", true},
		{"no origin header", "", true},
		{"other origin", "https://evil.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if !tt.ok {
				if err == nil {
					conn.Close()
					t.Fatal("Expected upgrade to be rejected")
				}
				if resp == nil || resp.StatusCode != http.StatusForbidden {
					t.Fatalf("Expected 403, got %v", resp)
				}
				return
			}
			if err != nil {
				t.Fatalf("Failed to connect to WebSocket: %v", err)
			}
			expectCall(t, handler.calls, "connect")
			conn.Close()
			expectCall(t, handler.calls, "disconnect")
		})
	}
}

func TestHubAllowsAnyOriginByDefault(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	header := http.Header{"Origin": []string{"https://anywhere.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), header)
	if err != nil {
		t.Fatalf("Expected any origin to be accepted, got %v", err)
	}
	conn.Close()
}

func expectCall(t *testing.T, calls <-chan call, kind string) call {
	t.Helper()
	select {
	case c := <-calls:
		if c.kind != kind {
			t.Fatalf("Expected %s call, got %+v", kind, c)
		}
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("No %s call within timeout", kind)
	}
	return call{}
}

func readConn(t *testing.T, conn *websocket.Conn) outboundFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read WebSocket message: %v", err)
	}
	var f outboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return f
}
