package targets

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/ledger/memledger"
)

// SimpleState is the decoded PackedResult of SimpleContract.
type SimpleState struct {
	Bytes32 [32]byte
	Address common.Address
	Uint256 *big.Int
}

// Pack encodes the state as SimpleValues.
func (s SimpleState) Pack() ([]byte, error) {
	return SimpleValues.Pack(s.Bytes32, s.Address, s.Uint256)
}

// DecodeSimple decodes a SimpleContract PackedResult.
func DecodeSimple(packed []byte) (SimpleState, error) {
	v, err := SimpleValues.Unpack(packed)
	if err != nil {
		return SimpleState{}, err
	}
	return SimpleState{
		Bytes32: v[0].([32]byte),
		Address: v[1].(common.Address),
		Uint256: v[2].(*big.Int),
	}, nil
}

// Simple is a target that stores one value of each of bytes32, address and
// uint256.
type Simple struct {
	adapter
}

var _ memledger.Program = (*Simple)(nil)

// NewSimple returns the SimpleContract program.
func NewSimple() *Simple {
	s := &Simple{adapter{schema: callenc.MustLookup(SimpleSchemaName)}}
	s.handlers = map[string]func(*memledger.Env, []interface{}) ([]interface{}, error){
		"getValues":       getValues,
		"setAndGetValues": s.setAndGetValues,
		"programId":       programID,
	}
	return s
}

func (s *Simple) Init(env *memledger.Env, ctorArgs []byte) error {
	args, err := s.schema.DecodeConstructor(ctorArgs)
	if err != nil {
		return err
	}
	if err := initIdentity(env, args[0].([32]byte), args[1].([32]byte)); err != nil {
		return err
	}
	_, err = s.setAndGetValues(env, args[2:])
	return err
}

func (s *Simple) Invoke(env *memledger.Env, input []byte) ([]byte, error) {
	return s.invoke(env, input)
}

func (s *Simple) setAndGetValues(env *memledger.Env, args []interface{}) ([]interface{}, error) {
	packed, err := SimpleValues.Pack(args...)
	if err != nil {
		return nil, err
	}
	if err := env.Store(slotValues, packed); err != nil {
		return nil, err
	}
	return getValues(env, nil)
}

// DeploySimple installs a SimpleContract on l.
func DeploySimple(l *memledger.Ledger, programID, accountID [32]byte, initial SimpleState) (common.Address, error) {
	ctor, err := callenc.MustLookup(SimpleSchemaName).EncodeConstructor(programID, accountID, initial.Bytes32, initial.Address, initial.Uint256)
	if err != nil {
		return common.Address{}, err
	}
	return l.Deploy(NewSimple(), ctor)
}
