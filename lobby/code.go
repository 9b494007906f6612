package lobby

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// CodeGenerator draws human-typeable room codes and recognises well-formed ones.
type CodeGenerator interface {
	// Next returns a fresh code. Uniqueness is enforced by the caller.
	Next() (string, error)

	// Normalize canonicalises user input and reports whether it is well formed.
	Normalize(code string) (string, bool)
}

// HexCodes generates fixed-length uppercase hexadecimal codes such as "7F3A2C".
type HexCodes struct {
	length int
}

// NewHexCodes returns a generator of codes with the given number of characters.
func NewHexCodes(length int) *HexCodes {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return &HexCodes{length: length}
}

// Next draws a code from crypto/rand.
func (h *HexCodes) Next() (string, error) {
	b := make([]byte, (h.length+1)/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b))[:h.length], nil
}

// Normalize upper-cases code and checks its length and alphabet.
func (h *HexCodes) Normalize(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != h.length {
		return "", false
	}
	for _, c := range code {
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'F') {
			return "", false
		}
	}
	return code, true
}
