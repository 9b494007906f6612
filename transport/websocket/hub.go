package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Outbound messages buffered per client before it is dropped.
	sendBuffer = 256

	// ResumeParam is the query parameter carrying a resume token.
	ResumeParam = "resume"
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Handler receives connection lifecycle and inbound messages.
type Handler interface {
	OnConnect(connID, resumeToken string)
	OnMessage(connID, event string, data json.RawMessage)
	OnDisconnect(connID string)
}

// Client is one WebSocket connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and their named groups. Outbound calls never
// block: a client whose buffer is full is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
	groups  map[string]map[string]*Client

	handler  Handler
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.With().Str("component", "ws-hub").Logger(),
	}
}

// SetAllowedOrigins restricts browser upgrades to the listed origins such as
// "https://play.example.com". An empty list or "*" accepts any origin, and
// requests without an Origin header are always accepted. It must be called
// before ServeWS.
func (h *Hub) SetAllowedOrigins(origins []string) {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[strings.ToLower(strings.TrimRight(o, "/"))] = true
		}
	}
	h.upgrader.CheckOrigin = func(r *http.Request) bool {
		if len(allowed) == 0 || allowed["*"] {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		ok := allowed[strings.ToLower(origin)]
		if !ok {
			h.log.Warn().Str("origin", origin).Msg("websocket origin rejected")
		}
		return ok
	}
}

// SetHandler installs the receiver of inbound traffic. It must be called
// before ServeWS.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.register(client)
	if h.handler != nil {
		h.handler.OnConnect(client.id, r.URL.Query().Get(ResumeParam))
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// Send delivers one event to a single connection.
func (h *Hub) Send(connID, event string, payload any) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[connID]; ok {
		h.deliver(c, data)
	}
}

// BroadcastToGroup delivers one event to every connection in group.
func (h *Hub) BroadcastToGroup(group, event string, payload any) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.groups[group] {
		h.deliver(c, data)
	}
}

// JoinGroup adds a live connection to group.
func (h *Hub) JoinGroup(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[string]*Client)
	}
	h.groups[group][connID] = c
}

// LeaveGroup removes a connection from group. Empty groups are released.
func (h *Hub) LeaveGroup(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(connID, group)
}

// Counts reports the number of live connections and non-empty groups.
func (h *Hub) Counts() (clients, groups int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients), len(h.groups)
}

// Close drops every client. Their read pumps report the disconnects.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.drop(c)
	}
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to marshal outbound message")
		return nil, false
	}
	return data, true
}

// register adds a client to the hub
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	h.log.Debug().Str("conn_id", c.id).Int("clients", len(h.clients)).Msg("client registered")
}

// unregister removes a client from the hub
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		h.drop(c)
	}
	h.log.Debug().Str("conn_id", c.id).Int("clients", len(h.clients)).Msg("client unregistered")
}

// deliver queues data for c, dropping c when its buffer is full. Caller holds h.mu.
func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.log.Warn().Str("conn_id", c.id).Msg("client send buffer full, dropping client")
		h.drop(c)
	}
}

// drop forgets c and closes its send channel. Caller holds h.mu.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	for group := range h.groups {
		h.leave(c.id, group)
	}
	close(c.send)
}

// leave removes connID from group. Caller holds h.mu.
func (h *Hub) leave(connID, group string) {
	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// readPump pumps messages from the WebSocket connection to the handler
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		if c.hub.handler != nil {
			c.hub.handler.OnDisconnect(c.id)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Str("conn_id", c.id).Msg("websocket error")
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			c.hub.log.Debug().Str("conn_id", c.id).Msg("malformed message ignored")
			c.hub.Send(c.id, "error", map[string]string{"code": "InvalidInput", "reason": "malformed message"})
			continue
		}
		if c.hub.handler != nil {
			c.hub.handler.OnMessage(c.id, msg.Event, msg.Data)
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
