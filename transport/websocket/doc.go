// Package websocket provides the WebSocket transport for party rooms.
//
// The Hub assigns every connection a fresh id, keeps named broadcast groups
// and forwards inbound frames to a Handler (the lobby manager in production).
//
// Message Protocol:
//
// Every frame is a JSON object {"event": "...", "data": ...}:
//   - Incoming: {"event": "joinRoom", "data": {"name": "ada", "code": "7F3A2C"}}
//   - Outgoing: {"event": "joinRoom_response", "data": {...}}
//
// Reconnection:
//
// Clients that were told a resume token in their "connected" event pass it
// back as ?resume=<token> when reconnecting.
//
// Usage:
//
//	hub := websocket.NewHub(log)
//	manager, _ := lobby.NewManager(hub, opts)
//	hub.SetHandler(manager)
//	http.HandleFunc("/ws", hub.ServeWS)
//
// Concurrency:
//
// Send, BroadcastToGroup, JoinGroup and LeaveGroup never block on a peer.
// Each client has a buffered outbound queue; a client that lets it fill up
// is dropped and its disconnect is reported through the Handler.
package websocket
