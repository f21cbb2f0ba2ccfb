package tasks

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/keeper/internal/scheduler"
)

// ArgsFunc adapts a function to scheduler.ArgumentBuilder.
type ArgsFunc func(ctx context.Context) ([]interface{}, error)

// Build calls f.
func (f ArgsFunc) Build(ctx context.Context) ([]interface{}, error) {
	return f(ctx)
}

// StaticArgs returns the same arguments every cycle.
type StaticArgs []interface{}

// Build returns a copy of the arguments.
func (s StaticArgs) Build(context.Context) ([]interface{}, error) {
	out := make([]interface{}, len(s))
	copy(out, s)
	return out, nil
}

// RandomArgs draws a fresh value of each input's ABI type every cycle.
type RandomArgs struct {
	inputs abi.Arguments

	mu    sync.Mutex
	faker *gofakeit.Faker
}

var (
	_ scheduler.ArgumentBuilder = StaticArgs(nil)
	_ scheduler.ArgumentBuilder = ArgsFunc(nil)
	_ scheduler.ArgumentBuilder = (*RandomArgs)(nil)
)

// NewRandomArgs builds random arguments for entryPoint. A zero seed seeds
// from crypto/rand.
func NewRandomArgs(schema *callenc.Schema, entryPoint string, seed int64) (*RandomArgs, error) {
	method, err := schema.Method(entryPoint)
	if err != nil {
		return nil, err
	}
	for _, in := range method.Inputs {
		if !randomSupported(in.Type) {
			return nil, fmt.Errorf("%w: cannot generate random %s for %s", callenc.ErrArgumentTypeMismatch, in.Type, method.Sig)
		}
	}
	return &RandomArgs{inputs: method.Inputs, faker: gofakeit.New(seed)}, nil
}

// Build generates one argument per input.
func (r *RandomArgs) Build(context.Context) ([]interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]interface{}, len(r.inputs))
	for i, in := range r.inputs {
		out[i] = r.value(in.Type)
	}
	return out, nil
}

func randomSupported(t abi.Type) bool {
	switch t.T {
	case abi.UintTy, abi.IntTy, abi.AddressTy, abi.FixedBytesTy, abi.BoolTy, abi.StringTy, abi.BytesTy:
		return true
	}
	return false
}

func (r *RandomArgs) value(t abi.Type) interface{} {
	switch t.T {
	case abi.UintTy:
		return new(big.Int).SetBytes(r.bytes(t.Size / 8))
	case abi.IntTy:
		// Keep the sign bit clear so the value fits the type.
		b := r.bytes(t.Size / 8)
		b[0] &= 0x7f
		return new(big.Int).SetBytes(b)
	case abi.AddressTy:
		return common.BytesToAddress(r.bytes(common.AddressLength))
	case abi.FixedBytesTy:
		return r.bytes(t.Size)
	case abi.BoolTy:
		return r.faker.Bool()
	case abi.StringTy:
		return r.faker.Word()
	default:
		return []byte(r.faker.Word())
	}
}

func (r *RandomArgs) bytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = r.faker.Uint8()
	}
	return b
}
