package roadtrip

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/partyroom/lobby"
)

// Race modes.
const (
	ModeRace = "race"
	ModeDuel = "duel"
)

// Settings are the room settings understood by the race.
type Settings struct {
	Track string `json:"track" validate:"required,max=64"`
	Mode  string `json:"mode" validate:"omitempty,oneof=race duel"`
}

// Profile is a player's cosmetic profile.
type Profile struct {
	Color  string `json:"color" validate:"omitempty,hexcolor"`
	Avatar string `json:"avatar" validate:"omitempty,max=32"`
}

// MoveInput is the payload of the move action.
type MoveInput struct {
	Direction string `json:"direction" validate:"required,oneof=up down left right"`
}

// TrackSource resolves track names.
type TrackSource interface {
	LoadTrack(name string) (*Track, error)
}

// Rules binds the race to a lobby: validators, start predicate, action table
// and game factory.
type Rules struct {
	tracks       TrackSource
	defaultTrack string
	towDelay     time.Duration
	validate     *validator.Validate
	log          zerolog.Logger
}

// NewRules creates race rules drawing tracks from tracks. Stranded cars are
// towed after towDelay.
func NewRules(tracks TrackSource, defaultTrack string, towDelay time.Duration, log zerolog.Logger) *Rules {
	return &Rules{
		tracks:       tracks,
		defaultTrack: defaultTrack,
		towDelay:     towDelay,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		log:          log.With().Str("component", "roadtrip").Logger(),
	}
}

// Apply installs the race into lobby options.
func (r *Rules) Apply(o *lobby.Options) {
	o.NewGame = r.NewGame
	o.Actions = append(o.Actions, r.Actions()...)
	o.ValidateProfile = r.ValidateProfile
	o.ValidateSettings = r.ValidateSettings
	o.CanStart = r.CanStart
	o.DefaultSettings = r.DefaultSettings()
}

// NewGame constructs a race for one room.
func (r *Rules) NewGame() lobby.Game {
	return &Game{rules: r}
}

// Actions declares the race actions and their input validators.
func (r *Rules) Actions() []lobby.ActionSpec {
	return []lobby.ActionSpec{
		{Name: ActionMove, Validate: r.ValidateMove},
		{Name: ActionState},
		{Name: ActionHonk},
	}
}

// DefaultSettings is stored on rooms created without settings.
func (r *Rules) DefaultSettings() json.RawMessage {
	raw, _ := json.Marshal(Settings{Track: r.defaultTrack, Mode: ModeRace})
	return raw
}

// ValidateSettings checks the shape of the settings and that the track exists.
func (r *Rules) ValidateSettings(raw json.RawMessage) error {
	var s Settings
	if err := r.check(raw, &s); err != nil {
		return err
	}
	if _, err := r.tracks.LoadTrack(s.Track); err != nil {
		return fmt.Errorf("track %q: %w", s.Track, err)
	}
	return nil
}

// ValidateProfile checks a player profile.
func (r *Rules) ValidateProfile(raw json.RawMessage) error {
	var p Profile
	return r.check(raw, &p)
}

// ValidateMove checks the move payload.
func (r *Rules) ValidateMove(raw json.RawMessage) error {
	var in MoveInput
	return r.check(raw, &in)
}

// CanStart requires exactly two members for a duel.
func (r *Rules) CanStart(raw json.RawMessage, members []lobby.Member) bool {
	s, err := r.settings(raw)
	if err != nil {
		return false
	}
	return s.Mode != ModeDuel || len(members) == 2
}

// settings decodes raw, falling back to the defaults for missing fields.
func (r *Rules) settings(raw json.RawMessage) (Settings, error) {
	s := Settings{Track: r.defaultTrack, Mode: ModeRace}
	if !isEmpty(raw) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return s, err
		}
	}
	if s.Track == "" {
		s.Track = r.defaultTrack
	}
	if s.Mode == "" {
		s.Mode = ModeRace
	}
	return s, nil
}

// check strictly decodes raw into v and runs struct validation.
func (r *Rules) check(raw json.RawMessage, v any) error {
	if isEmpty(raw) {
		return r.validate.Struct(v)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return r.validate.Struct(v)
}

func isEmpty(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
