// Package callenc produces and parses the calldata, return data and event
// payloads understood by ledger targets. Selectors and argument encoding follow
// the contract ABI bit for bit.
package callenc

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// SelectorSize is the length of a function selector prefix.
const SelectorSize = 4

// Schema is a named contract ABI.
type Schema struct {
	name string
	abi  abi.ABI
}

// ParseSchema parses a JSON ABI definition.
func ParseSchema(name string, jsonABI []byte) (*Schema, error) {
	parsed, err := abi.JSON(bytes.NewReader(jsonABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi %s: %w", name, err)
	}
	return &Schema{name: name, abi: parsed}, nil
}

// Name returns the contract name the schema was registered under.
func (s *Schema) Name() string {
	return s.name
}

// ABI exposes the underlying definition.
func (s *Schema) ABI() abi.ABI {
	return s.abi
}

// Method returns the definition of an entry point.
func (s *Schema) Method(entryPoint string) (abi.Method, error) {
	m, ok := s.abi.Methods[entryPoint]
	if !ok {
		return abi.Method{}, fmt.Errorf("%w: %s.%s", ErrUnknownEntryPoint, s.name, entryPoint)
	}
	return m, nil
}

// Selector returns the 4-byte identifier derived from the entry point's
// canonical signature.
func (s *Schema) Selector(entryPoint string) ([SelectorSize]byte, error) {
	var sel [SelectorSize]byte
	m, err := s.Method(entryPoint)
	if err != nil {
		return sel, err
	}
	copy(sel[:], m.ID)
	return sel, nil
}

// Encode builds calldata: selector followed by the canonically encoded
// arguments.
func (s *Schema) Encode(entryPoint string, args ...interface{}) ([]byte, error) {
	m, err := s.Method(entryPoint)
	if err != nil {
		return nil, err
	}
	packed, err := packArgs(m.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("encode %s.%s: %w", s.name, entryPoint, err)
	}
	out := make([]byte, 0, SelectorSize+len(packed))
	out = append(out, m.ID...)
	return append(out, packed...), nil
}

// DecodeCall resolves the entry point addressed by payload and decodes its
// arguments.
func (s *Schema) DecodeCall(payload []byte) (*abi.Method, []interface{}, error) {
	if len(payload) < SelectorSize {
		return nil, nil, fmt.Errorf("%w: payload shorter than selector", ErrUnknownEntryPoint)
	}
	m, err := s.abi.MethodById(payload[:SelectorSize])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s selector %x", ErrUnknownEntryPoint, s.name, payload[:SelectorSize])
	}
	args, err := unpackStrict(m.Inputs, payload[SelectorSize:])
	if err != nil {
		return m, nil, fmt.Errorf("decode %s.%s arguments: %w", s.name, m.Name, err)
	}
	return m, args, nil
}

// EncodeReturn packs an entry point's return values.
func (s *Schema) EncodeReturn(entryPoint string, values ...interface{}) ([]byte, error) {
	m, err := s.Method(entryPoint)
	if err != nil {
		return nil, err
	}
	packed, err := packArgs(m.Outputs, values)
	if err != nil {
		return nil, fmt.Errorf("encode %s.%s return: %w", s.name, entryPoint, err)
	}
	return packed, nil
}

// DecodeReturn unpacks an entry point's return data.
func (s *Schema) DecodeReturn(entryPoint string, data []byte) ([]interface{}, error) {
	m, err := s.Method(entryPoint)
	if err != nil {
		return nil, err
	}
	values, err := unpackStrict(m.Outputs, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s.%s return: %w", s.name, entryPoint, err)
	}
	return values, nil
}

// EncodeConstructor packs construction parameters.
func (s *Schema) EncodeConstructor(args ...interface{}) ([]byte, error) {
	packed, err := packArgs(s.abi.Constructor.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("encode %s constructor: %w", s.name, err)
	}
	return packed, nil
}

// DecodeConstructor unpacks construction parameters.
func (s *Schema) DecodeConstructor(data []byte) ([]interface{}, error) {
	values, err := unpackStrict(s.abi.Constructor.Inputs, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s constructor: %w", s.name, err)
	}
	return values, nil
}

// Event returns an event definition by name.
func (s *Schema) Event(name string) (abi.Event, error) {
	ev, ok := s.abi.Events[name]
	if !ok {
		return abi.Event{}, fmt.Errorf("%w: event %s.%s", ErrUnknownEntryPoint, s.name, name)
	}
	return ev, nil
}

func packArgs(args abi.Arguments, values []interface{}) ([]byte, error) {
	coerced, err := coerceArgs(args, values)
	if err != nil {
		return nil, err
	}
	packed, err := args.Pack(coerced...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArgumentTypeMismatch, err)
	}
	return packed, nil
}

// unpackStrict decodes data and rejects any trailing or non-canonical bytes by
// re-encoding the result.
func unpackStrict(args abi.Arguments, data []byte) ([]interface{}, error) {
	if len(args) == 0 {
		if len(data) != 0 {
			return nil, fmt.Errorf("%w: %d unexpected bytes", ErrDecode, len(data))
		}
		return []interface{}{}, nil
	}
	values, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	repacked, err := args.Pack(values...)
	if err != nil || !bytes.Equal(repacked, data) {
		return nil, fmt.Errorf("%w: %d bytes do not match %s", ErrDecode, len(data), describe(args))
	}
	return values, nil
}

func describe(args abi.Arguments) string {
	var b bytes.Buffer
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.Type.String())
	}
	b.WriteByte(')')
	return b.String()
}
