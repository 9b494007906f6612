package lobby

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Presence tells whether a party's connection is live.
type Presence string

const (
	Online  Presence = "online"
	Offline Presence = "offline"
)

// Party is a connected end-user session.
type Party struct {
	// ConnectionID is the live connection the party is keyed under. For a
	// party detached by an explicit leave during a game it is a synthetic key.
	ConnectionID string

	// PublicID survives reconnection and is the only identity shown to others.
	PublicID string

	// ResumeToken is known only to the owner and correlates a new
	// connection with this party once it is offline.
	ResumeToken string

	Name     string
	Profile  json.RawMessage
	RoomID   string
	Presence Presence
}

// PartyView is the externally visible projection of a Party.
type PartyView struct {
	PublicID string          `json:"publicId"`
	Name     string          `json:"name"`
	Profile  json.RawMessage `json:"profile,omitempty"`
}

// Welcome is sent to every connection right after connect.
type Welcome struct {
	PublicID    string `json:"publicId"`
	ResumeToken string `json:"resumeToken"`
	Resumed     bool   `json:"resumed"`
}

func newParty(connID string) *Party {
	return &Party{
		ConnectionID: connID,
		PublicID:     uuid.NewString(),
		ResumeToken:  uuid.NewString(),
		Presence:     Online,
	}
}

func (p *Party) view() PartyView {
	return PartyView{PublicID: p.PublicID, Name: p.Name, Profile: p.Profile}
}

func (p *Party) member() Member {
	return Member{PublicID: p.PublicID, Name: p.Name, Profile: p.Profile}
}

// normalizeName trims name, rejects empty or control-character names and
// truncates the rest to max runes.
func normalizeName(name string, max int) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", false
		}
	}
	if runes := []rune(name); len(runes) > max {
		name = strings.TrimSpace(string(runes[:max]))
	}
	return name, true
}

// isEmpty reports whether raw carries no value.
func isEmpty(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
