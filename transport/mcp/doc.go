// Package mcp provides a Model Context Protocol server for observing a
// partyroom server.
//
// The mcp package implements:
//   - MCP server for AI agent integration
//   - Tool definitions proxying the REST API
//   - Stdio transport for local MCP clients
//
// MCP Tools:
//   - list_rooms: live rooms, optionally filtered by state
//   - get_room: one room by join code
//   - server_stats: room, party and connection counts
//   - list_tracks: race tracks available to rooms
//   - get_track: layout of one track
//   - protocol_guide: the websocket protocol used by game clients
//
// The tools are read-only. Playing happens over the websocket endpoint.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
