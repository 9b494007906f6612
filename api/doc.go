// Package api provides the HTTP surface of the partyroom server.
//
// The api package implements:
//   - Read-only inspection of live rooms and registry counts
//   - Track catalogue listing and upload
//   - WebSocket upgrade handling for game clients
//
// Endpoints:
//
//   - GET  /api/health          - Liveness probe
//   - GET  /api/stats           - Lobby counts plus websocket connections and groups
//   - GET  /api/rooms           - List rooms (?state=lobby|active, ?limit=N)
//   - GET  /api/rooms/{code}    - One room by its join code (case-insensitive)
//   - GET  /api/tracks          - List valid tracks
//   - GET  /api/tracks/{id}     - Full track definition
//   - POST /api/tracks          - Save a track: {"track_id": "...", "track": {...}}
//   - GET  /ws                  - WebSocket upgrade (?resume=<token> to reclaim an identity)
//
// Room membership and gameplay are not exposed over REST; they flow through
// the websocket protocol handled by the lobby package.
//
// Error Handling:
//
// Errors are returned as JSON with an appropriate HTTP status code:
//
//	{
//	  "error": "error message"
//	}
package api
