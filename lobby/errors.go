package lobby

import (
	"errors"
	"fmt"
)

// Code is a transmissible error code delivered inside an error envelope.
type Code string

const (
	// Membership preconditions
	CodeAlreadyInRoom Code = "AlreadyInRoom"
	CodeNotInRoom     Code = "NotInRoom"

	// Lifecycle preconditions
	CodeRoomNotFound       Code = "RoomNotFound"
	CodeRoomFull           Code = "RoomFull"
	CodeGameAlreadyStarted Code = "GameAlreadyStarted"
	CodeGameNotStarted     Code = "GameNotStarted"

	// Privilege
	CodeNotHost Code = "NotHost"

	// Start preconditions
	CodeWrongPlayerCount     Code = "WrongPlayerCount"
	CodeIncompatibleSettings Code = "IncompatibleSettings"

	// Validator failures
	CodeInvalidName     Code = "InvalidName"
	CodeInvalidProfile  Code = "InvalidProfile"
	CodeInvalidCode     Code = "InvalidCode"
	CodeInvalidSettings Code = "InvalidSettings"
	CodeInvalidInput    Code = "InvalidInput"

	// Dispatch lookup failure
	CodeMissingHandler Code = "MissingHandler"

	CodeUnhandled Code = "Unhandled"
)

// Sentinel errors for use with errors.Is.
var (
	ErrAlreadyInRoom        = &Error{Code: CodeAlreadyInRoom}
	ErrNotInRoom            = &Error{Code: CodeNotInRoom}
	ErrRoomNotFound         = &Error{Code: CodeRoomNotFound}
	ErrRoomFull             = &Error{Code: CodeRoomFull}
	ErrGameAlreadyStarted   = &Error{Code: CodeGameAlreadyStarted}
	ErrGameNotStarted       = &Error{Code: CodeGameNotStarted}
	ErrNotHost              = &Error{Code: CodeNotHost}
	ErrWrongPlayerCount     = &Error{Code: CodeWrongPlayerCount}
	ErrIncompatibleSettings = &Error{Code: CodeIncompatibleSettings}
	ErrInvalidName          = &Error{Code: CodeInvalidName}
	ErrInvalidProfile       = &Error{Code: CodeInvalidProfile}
	ErrInvalidCode          = &Error{Code: CodeInvalidCode}
	ErrInvalidSettings      = &Error{Code: CodeInvalidSettings}
	ErrInvalidInput         = &Error{Code: CodeInvalidInput}
	ErrMissingHandler       = &Error{Code: CodeMissingHandler}
	ErrUnhandled            = &Error{Code: CodeUnhandled}
)

// ErrUnknownConnection is returned when an operation names a connection id the
// registry has never seen. It carries no code and surfaces as Unhandled.
var ErrUnknownConnection = errors.New("unknown connection")

// Error is a recoverable, caller-facing failure. Args is optional and is
// transmitted verbatim in the error envelope.
type Error struct {
	Code  Code
	Args  any
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// newError builds an *Error with an optional underlying cause.
func newError(code Code, cause error) *Error {
	return &Error{Code: code, cause: cause}
}

// withArgs builds an *Error carrying envelope arguments.
func withArgs(code Code, args any) *Error {
	return &Error{Code: code, Args: args}
}

// CodeOf extracts the transmissible code of err, reporting whether one was found.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
