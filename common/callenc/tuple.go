package callenc

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Tuple is the field schema of a PackedResult: an ordered list of ABI types
// agreed between a target and its readers. The schema never travels with the
// data.
type Tuple struct {
	args abi.Arguments
}

// NewTuple builds a tuple schema from ABI type names such as "bytes32",
// "address" and "uint256".
func NewTuple(types ...string) (*Tuple, error) {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(strings.TrimSpace(t), "", nil)
		if err != nil {
			return nil, fmt.Errorf("tuple field %d: %w", i, err)
		}
		args[i] = abi.Argument{Name: fmt.Sprintf("field%d", i), Type: typ}
	}
	return &Tuple{args: args}, nil
}

// MustTuple is NewTuple for package-level schemas; it panics on bad type names.
func MustTuple(types ...string) *Tuple {
	t, err := NewTuple(types...)
	if err != nil {
		panic(err)
	}
	return t
}

// Types returns the field type names in order.
func (t *Tuple) Types() []string {
	out := make([]string, len(t.args))
	for i, a := range t.args {
		out[i] = a.Type.String()
	}
	return out
}

// Len returns the number of fields.
func (t *Tuple) Len() int {
	return len(t.args)
}

// String renders the schema as "(t1,t2,...)".
func (t *Tuple) String() string {
	return describe(t.args)
}

// Pack encodes values in schema order.
func (t *Tuple) Pack(values ...interface{}) ([]byte, error) {
	return packArgs(t.args, values)
}

// Unpack decodes data in schema order. Data that does not round-trip exactly
// is rejected with ErrDecode.
func (t *Tuple) Unpack(data []byte) ([]interface{}, error) {
	return unpackStrict(t.args, data)
}
