package lobby

import "encoding/json"

// Game is the externally supplied unit of game logic hosted by an active room.
// A Game is constructed by the configured Factory when the host starts the
// room and lives until the room is destroyed.
type Game interface {
	// Init is called exactly once, synchronously, right after the room
	// leaves the lobby. A non-nil error aborts the start and the room stays
	// in the lobby.
	Init(params InitParams) error

	// Handlers returns the action table of this instance. It is read once,
	// after Init, and bound to the room for its whole lifetime.
	Handlers() map[string]ActionHandler
}

// Closer is optionally implemented by a Game that holds resources (timers,
// goroutines) to release when its room is destroyed.
type Closer interface {
	Close()
}

// Factory constructs a fresh Game instance.
type Factory func() Game

// Member describes a room member handed to the game at start.
type Member struct {
	PublicID string          `json:"publicId"`
	Name     string          `json:"name"`
	Profile  json.RawMessage `json:"profile,omitempty"`
}

// InitParams is the single argument of Game.Init.
type InitParams struct {
	Members      []Member
	HostPublicID string
	Settings     json.RawMessage
	RoomCode     string
	Push         Pusher
}

// ActionArgs is what an action handler receives.
type ActionArgs struct {
	PlayerID string
	Data     json.RawMessage
}

// ActionHandler handles one named action. It must return without blocking;
// follow-up work is delivered later through the room's Pusher. A nil result
// produces an empty success reply.
type ActionHandler func(args ActionArgs) *ActionResult

// ActionResult is the outcome of an action. Exactly one of Response or Error
// is meaningful; Error wins when both are set.
type ActionResult struct {
	Response any
	Error    *ActionError
}

// ActionError is an application-level failure returned by a game handler.
type ActionError struct {
	Code string
	Args any
}

// Respond builds a success result carrying v.
func Respond(v any) *ActionResult {
	return &ActionResult{Response: v}
}

// Fail builds an error result.
func Fail(code string, args any) *ActionResult {
	return &ActionResult{Error: &ActionError{Code: code, Args: args}}
}
