package callenc

import "errors"

var (
	// ErrUnknownEntryPoint is returned when an entry point is not part of the
	// schema in use.
	ErrUnknownEntryPoint = errors.New("unknown entry point")

	// ErrArgumentTypeMismatch is returned when a value cannot be encoded as
	// its declared type.
	ErrArgumentTypeMismatch = errors.New("argument type mismatch")

	// ErrDecode is returned when bytes do not match the expected schema.
	ErrDecode = errors.New("decode error")

	// ErrUnknownSchema is returned by Lookup for unregistered contract names.
	ErrUnknownSchema = errors.New("unknown schema")
)

// IsEncoding reports whether err is a local, deterministic encoding error
// that retrying will not fix.
func IsEncoding(err error) bool {
	return errors.Is(err, ErrUnknownEntryPoint) ||
		errors.Is(err, ErrArgumentTypeMismatch) ||
		errors.Is(err, ErrUnknownSchema)
}
