package lobby

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// EventError is the room-wide error envelope name used by PushError.
const EventError = "error"

// Pusher is the outbound channel a Game uses to reach room members.
// All methods are safe for concurrent use and never fail towards the caller.
type Pusher interface {
	PushTo(publicID, event string, payload any)
	PushToAll(event string, payload any)
	PushError(code string, args any)
}

// route is where an online party can currently be reached.
type route struct {
	connID string
	roomID string
}

// directory maps public ids of online room members to their current
// connection. It is written by the Manager under its own lock and read by
// gateways without it.
type directory struct {
	mu      sync.RWMutex
	entries map[string]route
}

func newDirectory() *directory {
	return &directory{entries: make(map[string]route)}
}

func (d *directory) set(publicID, connID, roomID string) {
	d.mu.Lock()
	d.entries[publicID] = route{connID: connID, roomID: roomID}
	d.mu.Unlock()
}

func (d *directory) drop(publicID string) {
	d.mu.Lock()
	delete(d.entries, publicID)
	d.mu.Unlock()
}

func (d *directory) lookup(publicID string) (route, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.entries[publicID]
	return r, ok
}

// Gateway is the Pusher bound to a single room.
type Gateway struct {
	roomID    string
	dir       *directory
	transport Transport
	log       zerolog.Logger
	closed    atomic.Bool
}

func newGateway(roomID string, dir *directory, t Transport, log zerolog.Logger) *Gateway {
	return &Gateway{roomID: roomID, dir: dir, transport: t, log: log}
}

// PushTo sends to the member's current connection. Members that are offline,
// gone, or in another room are skipped.
func (g *Gateway) PushTo(publicID, event string, payload any) {
	if g.closed.Load() {
		return
	}
	r, ok := g.dir.lookup(publicID)
	if !ok || r.roomID != g.roomID {
		g.log.Debug().Str("room_id", g.roomID).Str("public_id", publicID).Str("event", event).
			Msg("push target unreachable, dropped")
		return
	}
	g.transport.Send(r.connID, event, payload)
}

// PushToAll sends to every connection currently in the room's group.
func (g *Gateway) PushToAll(event string, payload any) {
	if g.closed.Load() {
		return
	}
	g.transport.BroadcastToGroup(g.roomID, event, payload)
}

// PushError sends a room-wide error envelope.
func (g *Gateway) PushError(code string, args any) {
	g.PushToAll(EventError, ErrorEnvelope{Code: code, Args: args})
}

func (g *Gateway) close() {
	g.closed.Store(true)
}
