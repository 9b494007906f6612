package lobby

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

const (
	DefaultMinPlayers    = 1
	DefaultMaxPlayers    = 8
	DefaultMaxNameLength = 24
	DefaultCodeLength    = 6

	// codeAttempts bounds the redraws performed when a fresh code collides
	// with a live room.
	codeAttempts = 16
)

// Validator checks an opaque JSON value. A nil Validator accepts everything.
type Validator func(raw json.RawMessage) error

// StartPredicate reports whether the room settings are compatible with the
// current members. A nil StartPredicate always allows the start.
type StartPredicate func(settings json.RawMessage, members []Member) bool

// ActionSpec declares a custom action and its optional input validator.
type ActionSpec struct {
	Name     string
	Validate Validator
}

// Options configures a Manager.
type Options struct {
	NewGame Factory

	MinPlayers    int
	MaxPlayers    int
	MaxNameLength int
	CodeLength    int

	Actions          []ActionSpec
	ValidateProfile  Validator
	ValidateSettings Validator
	CanStart         StartPredicate

	// DefaultSettings is stored on rooms created without explicit settings.
	DefaultSettings json.RawMessage

	// Codes draws room codes. Nil uses a crypto/rand hex generator.
	Codes CodeGenerator

	Logger zerolog.Logger
}

// withDefaults fills zero values and validates the result.
func (o Options) withDefaults() (Options, error) {
	if o.NewGame == nil {
		return o, errors.New("lobby: options: NewGame is required")
	}
	if o.MinPlayers == 0 {
		o.MinPlayers = DefaultMinPlayers
	}
	if o.MaxPlayers == 0 {
		o.MaxPlayers = DefaultMaxPlayers
	}
	if o.MaxNameLength == 0 {
		o.MaxNameLength = DefaultMaxNameLength
	}
	if o.CodeLength == 0 {
		o.CodeLength = DefaultCodeLength
	}
	if o.MinPlayers < 1 {
		return o, fmt.Errorf("lobby: options: min players must be at least 1, got %d", o.MinPlayers)
	}
	if o.MaxPlayers < o.MinPlayers {
		return o, fmt.Errorf("lobby: options: max players (%d) below min players (%d)", o.MaxPlayers, o.MinPlayers)
	}
	if o.MaxNameLength < 1 {
		return o, fmt.Errorf("lobby: options: max name length must be positive, got %d", o.MaxNameLength)
	}
	if o.Codes == nil {
		o.Codes = NewHexCodes(o.CodeLength)
	}
	return o, nil
}

// check runs v when it is set.
func (v Validator) check(raw json.RawMessage) error {
	if v == nil {
		return nil
	}
	return v(raw)
}
