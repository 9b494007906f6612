package lobby

import (
	"encoding/json"
	"slices"
	"time"
)

// State is a room lifecycle state.
type State string

const (
	StateLobby     State = "lobby"
	StateActive    State = "active"
	StateDestroyed State = "destroyed"
)

// Room is a bounded group of parties sharing one game and one broadcast group.
type Room struct {
	ID               string
	Code             string
	HostConnectionID string

	// Members holds connection ids in join order.
	Members  []string
	Settings json.RawMessage

	Game      Game
	CreatedAt time.Time
	StartedAt time.Time

	handlers  map[string]ActionHandler
	push      *Gateway
	destroyed bool
}

func (r *Room) state() State {
	switch {
	case r.destroyed:
		return StateDestroyed
	case r.Game != nil:
		return StateActive
	default:
		return StateLobby
	}
}

func (r *Room) has(connID string) bool {
	return slices.Contains(r.Members, connID)
}

func (r *Room) remove(connID string) {
	r.Members = slices.DeleteFunc(r.Members, func(id string) bool { return id == connID })
}

func (r *Room) rekey(oldID, newID string) {
	for i, id := range r.Members {
		if id == oldID {
			r.Members[i] = newID
		}
	}
	if r.HostConnectionID == oldID {
		r.HostConnectionID = newID
	}
}

// MemberView summarises one room member.
type MemberView struct {
	PublicID string          `json:"publicId"`
	Name     string          `json:"name"`
	Profile  json.RawMessage `json:"profile,omitempty"`
	Online   bool            `json:"online"`
	IsHost   bool            `json:"isHost"`
}

// RoomView is the per-caller projection returned by getRoom.
type RoomView struct {
	Code     string          `json:"code"`
	State    State           `json:"state"`
	IsHost   bool            `json:"isHost"`
	Members  []MemberView    `json:"members"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// RoomUpdate is the room-wide projection broadcast as "room-updated".
type RoomUpdate struct {
	Code     string          `json:"code"`
	State    State           `json:"state"`
	HostID   string          `json:"hostId"`
	Members  []MemberView    `json:"members"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// PartyNotice is broadcast when a member leaves or rejoins an active room.
type PartyNotice struct {
	PublicID string `json:"publicId"`
	Name     string `json:"name"`
}

// RoomNotice is broadcast on start and destruction.
type RoomNotice struct {
	Code string `json:"code"`
}

// RoomSummary is the operator-facing description of a live room.
type RoomSummary struct {
	ID        string       `json:"id"`
	Code      string       `json:"code"`
	State     State        `json:"state"`
	HostID    string       `json:"host_id"`
	Members   []MemberView `json:"members"`
	Online    int          `json:"online"`
	CreatedAt time.Time    `json:"created_at"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
}

// Stats is a point-in-time count of registry contents.
type Stats struct {
	Rooms         int           `json:"rooms"`
	RoomsByState  map[State]int `json:"rooms_by_state"`
	Parties       int           `json:"parties"`
	OnlineParties int           `json:"online_parties"`
	Actions       []string      `json:"actions"`
}
