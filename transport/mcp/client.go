package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/mcp-training/partyroom/game/config"
	"github.com/wricardo/mcp-training/partyroom/game/roadtrip"
	"github.com/wricardo/mcp-training/partyroom/lobby"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Partyroom",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Partyroom - MCP Interface

This is a thin read-only client that proxies requests to the partyroom REST API.
Players join rooms over the websocket endpoint; these tools let you observe the server.

AVAILABLE TOOLS:
- list_rooms: List live rooms, optionally filtered by state (lobby/active)
- get_room: Details of one room by its join code
- server_stats: Room, party and connection counts
- list_tracks: Race tracks available to rooms
- get_track: Full layout of one track
- protocol_guide: How clients talk to the server over the websocket`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List live rooms with their state and members",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"state": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"lobby", "active"},
					"description": "Only list rooms in this state (optional)",
				},
			},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get details of a room by its join code",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"code": map[string]interface{}{
					"type":        "string",
					"description": "Room join code (case-insensitive)",
				},
			},
			Required: []string{"code"},
		},
	}, c.handleGetRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "server_stats",
		Description: "Get room, party and connection counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleServerStats)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_tracks",
		Description: "List race tracks available to rooms",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListTracks)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_track",
		Description: "Get the layout and battery limits of a track",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"track_id": map[string]interface{}{
					"type":        "string",
					"description": "Track id as returned by list_tracks",
				},
			},
			Required: []string{"track_id"},
		},
	}, c.handleGetTrack)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "protocol_guide",
		Description: "Describe the websocket protocol used by game clients",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleProtocolGuide)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// stringArg reads an optional string argument.
func stringArg(request mcp.CallToolRequest, name string) string {
	args, _ := request.Params.Arguments.(map[string]interface{})
	s, _ := args[name].(string)
	return strings.TrimSpace(s)
}

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/rooms"
	if state := stringArg(request, "state"); state != "" {
		path += "?state=" + url.QueryEscape(state)
	}

	var response struct {
		Count int                 `json:"count"`
		Total int                 `json:"total"`
		Rooms []lobby.RoomSummary `json:"rooms"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if response.Count == 0 {
		return mcp.NewToolResultText("No live rooms."), nil
	}
	result := fmt.Sprintf("Live Rooms (%d):\n\n", response.Count)
	for _, r := range response.Rooms {
		result += fmt.Sprintf("- %s [%s] %d members, %d online, created %s\n",
			r.Code, r.State, len(r.Members), r.Online, r.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := stringArg(request, "code")
	if code == "" {
		return mcp.NewToolResultError("code is required"), nil
	}

	var room lobby.RoomSummary
	if err := c.apiCall(ctx, "GET", "/api/rooms/"+url.PathEscape(code), nil, &room); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoom(&room)), nil
}

func (c *Client) handleServerStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats struct {
		lobby.Stats
		Connections int    `json:"connections"`
		Groups      int    `json:"groups"`
		Uptime      string `json:"uptime"`
	}
	if err := c.apiCall(ctx, "GET", "/api/stats", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Server Stats (uptime %s):\n\n", stats.Uptime)
	fmt.Fprintf(&b, "Rooms: %d (lobby %d, active %d)\n",
		stats.Rooms, stats.RoomsByState[lobby.StateLobby], stats.RoomsByState[lobby.StateActive])
	fmt.Fprintf(&b, "Parties: %d (%d online)\n", stats.Parties, stats.OnlineParties)
	fmt.Fprintf(&b, "Connections: %d in %d groups\n", stats.Connections, stats.Groups)
	if len(stats.Actions) > 0 {
		fmt.Fprintf(&b, "Actions: %s\n", strings.Join(stats.Actions, ", "))
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleListTracks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count  int                `json:"count"`
		Tracks []config.TrackInfo `json:"tracks"`
	}
	if err := c.apiCall(ctx, "GET", "/api/tracks", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := "Available Tracks:\n\n"
	for _, t := range response.Tracks {
		result += fmt.Sprintf("• %s (%s)\n  %s\n  Grid: %dx%d, Battery: %d, Parks: %d\n\n",
			t.Name, t.TrackID, t.Description, t.GridSize, t.GridSize, t.MaxBattery, t.Parks)
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetTrack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(request, "track_id")
	if id == "" {
		return mcp.NewToolResultError("track_id is required"), nil
	}

	var track roadtrip.Track
	if err := c.apiCall(ctx, "GET", "/api/tracks/"+url.PathEscape(id), nil, &track); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatTrack(&track)), nil
}

func (c *Client) handleProtocolGuide(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	guide := `Partyroom Websocket Protocol

CONNECTING:
- Open GET /ws. The server sends "connected" {publicId, resumeToken, resumed}.
- Keep resumeToken secret. Reconnect with /ws?resume=<token> to reclaim your
  identity and room seat after a dropped connection.

FRAMES:
Every frame is JSON: {"event": "<name>", "data": <payload>}.
A request "<name>" is answered by "<name>_response" or "<name>_error" {code, args}.

LOBBY REQUESTS:
- createRoom {name, profile?, settings?}  -> you become host
- joinRoom {name, profile?, code}
- leaveRoom
- getRoom, getParty
- setParty {name?, profile?}
- setRoomSettings {settings}              -> host only, lobby only
- startGame                               -> host only

ROOM EVENTS:
- room-updated {code, state, hostId, members, settings}
- game-started {code}
- party-left {publicId, name}, party-rejoined {publicId, name}
- room-destroyed {code}

ROAD TRIP ACTIONS (after game-started):
- move {direction: up|down|left|right} -> your step and car
- state                                -> whole race
- honk                                 -> everyone receives "honk"

ROAD TRIP EVENTS:
- race-update (all cars), race-finished {winner, name, message}
- towed (only to the stranded player, after the tow delay)

ERROR CODES:
AlreadyInRoom, NotInRoom, RoomNotFound, RoomFull, GameAlreadyStarted,
GameNotStarted, NotHost, WrongPlayerCount, IncompatibleSettings, InvalidName,
InvalidProfile, InvalidCode, InvalidSettings, InvalidInput, MissingHandler,
Unhandled; race errors RaceOver, Stranded, Blocked, UnknownPlayer.`

	return mcp.NewToolResultText(guide), nil
}

func formatRoom(room *lobby.RoomSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Room %s\n", room.Code)
	fmt.Fprintf(&b, "State: %s\n", room.State)
	fmt.Fprintf(&b, "Created: %s\n", room.CreatedAt.Format(time.RFC3339))
	if room.StartedAt != nil {
		fmt.Fprintf(&b, "Started: %s\n", room.StartedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Members (%d, %d online):\n", len(room.Members), room.Online)
	for _, m := range room.Members {
		marker := ""
		if m.PublicID == room.HostID {
			marker = " (host)"
		}
		fmt.Fprintf(&b, "- %s%s [%s]\n", m.Name, marker, m.PublicID)
	}
	return b.String()
}

func formatTrack(track *roadtrip.Track) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", track.Name, track.Description)
	fmt.Fprintf(&b, "Grid: %dx%d, Battery: %d/%d, Parks: %d\n\n",
		track.GridSize, track.GridSize, track.StartingBattery, track.MaxBattery, track.Parks())
	for _, row := range track.Layout {
		b.WriteString(row)
		b.WriteByte('\n')
	}

	legend := make([]string, 0, len(track.Legend))
	for k, v := range track.Legend {
		legend = append(legend, k+"="+v)
	}
	if len(legend) == 0 {
		legend = []string{"R=road", "H=home", "P=park", "S=supercharger", "W=water", "B=building"}
	}
	sort.Strings(legend)
	fmt.Fprintf(&b, "\nLegend: %s\n", strings.Join(legend, ", "))
	return b.String()
}
