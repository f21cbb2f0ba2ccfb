// Package idcodec converts foreign-ledger identifiers (base58 account and
// program IDs) into the fixed-width byte form used as construction
// parameters and correlation keys.
package idcodec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// KeySize is the width of a correlation key in bytes.
const KeySize = 32

// ErrMalformedIdentifier is returned when an identifier is not valid base58
// or decodes to a length the caller cannot accept.
var ErrMalformedIdentifier = errors.New("malformed identifier")

// Decode converts base58 text into raw bytes. No padding or truncation is
// applied.
func Decode(foreign string) ([]byte, error) {
	if foreign == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrMalformedIdentifier)
	}
	b, err := base58.Decode(foreign)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedIdentifier, foreign, err)
	}
	return b, nil
}

// DecodeFixed decodes base58 text and requires the result to be exactly size
// bytes long.
func DecodeFixed(foreign string, size int) ([]byte, error) {
	b, err := Decode(foreign)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("%w: %q decodes to %d bytes, want %d", ErrMalformedIdentifier, foreign, len(b), size)
	}
	return b, nil
}

// Decode32 decodes a 32-byte identifier such as a foreign account or program ID.
func Decode32(foreign string) ([KeySize]byte, error) {
	var out [KeySize]byte
	b, err := DecodeFixed(foreign, KeySize)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// Encode renders raw bytes as base58 text.
func Encode(b []byte) string {
	return base58.Encode(b)
}

// ParseKey accepts a correlation key either as 0x-prefixed hex (exactly 32
// bytes) or as a base58 foreign identifier.
func ParseKey(s string) ([KeySize]byte, error) {
	var out [KeySize]byte
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, err := hex.DecodeString(s[2:])
		if err != nil {
			return out, fmt.Errorf("%w: %q: %v", ErrMalformedIdentifier, s, err)
		}
		if len(b) != KeySize {
			return out, fmt.Errorf("%w: %q is %d bytes, want %d", ErrMalformedIdentifier, s, len(b), KeySize)
		}
		copy(out[:], b)
		return out, nil
	}
	return Decode32(s)
}

// FormatKey renders a correlation key as 0x-prefixed hex.
func FormatKey(key [KeySize]byte) string {
	return "0x" + hex.EncodeToString(key[:])
}
