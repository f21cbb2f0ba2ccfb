// Package targets hosts the target adapters reachable through the relay and
// the PackedResult schemas their readers decode with.
package targets

import (
	"fmt"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/ledger/memledger"
)

const (
	SimpleSchemaName = "SimpleContract"
	OracleSchemaName = "UniswapOracle"
)

const (
	slotProgramID = "programId"
	slotAccountID = "accountId"
	slotValues    = "values"
)

var (
	// SimpleValues is the PackedResult of SimpleContract.
	SimpleValues = callenc.MustTuple("bytes32", "address", "uint256")

	// OracleValues is the PackedResult of UniswapOracle:
	// (token0, amount0, token1, amount1).
	OracleValues = callenc.MustTuple("address", "uint256", "address", "uint256")
)

// ResultSchema returns the PackedResult schema of a target contract.
func ResultSchema(name string) (*callenc.Tuple, error) {
	switch name {
	case SimpleSchemaName:
		return SimpleValues, nil
	case OracleSchemaName:
		return OracleValues, nil
	}
	return nil, fmt.Errorf("%w: no result schema for %s", callenc.ErrUnknownSchema, name)
}

// adapter is the dispatch shared by both targets: decode the call, route it,
// encode the return.
type adapter struct {
	schema   *callenc.Schema
	handlers map[string]func(env *memledger.Env, args []interface{}) ([]interface{}, error)
}

func (a *adapter) invoke(env *memledger.Env, input []byte) ([]byte, error) {
	m, args, err := a.schema.DecodeCall(input)
	if err != nil {
		return nil, memledger.Revert("%v", err)
	}
	h, ok := a.handlers[m.Name]
	if !ok {
		return nil, memledger.Revert("%s: %s not implemented", a.schema.Name(), m.Name)
	}
	out, err := h(env, args)
	if err != nil {
		return nil, err
	}
	return a.schema.EncodeReturn(m.Name, out...)
}

func initIdentity(env *memledger.Env, programID, accountID [32]byte) error {
	if err := env.Store(slotProgramID, programID[:]); err != nil {
		return err
	}
	return env.Store(slotAccountID, accountID[:])
}

func loadKey(env *memledger.Env, slot string) [32]byte {
	var k [32]byte
	copy(k[:], env.Load(slot))
	return k
}

func getValues(env *memledger.Env, _ []interface{}) ([]interface{}, error) {
	return []interface{}{loadKey(env, slotAccountID), env.Load(slotValues)}, nil
}

func programID(env *memledger.Env, _ []interface{}) ([]interface{}, error) {
	return []interface{}{loadKey(env, slotProgramID)}, nil
}
