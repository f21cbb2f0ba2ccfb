package relay

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/ledger/memledger"
)

// StateEntryPoint is the read entry point every target exposes and the relay
// calls after forwarding a payload.
const StateEntryPoint = "getValues"

var stateSelector = crypto.Keccak256([]byte(StateEntryPoint + "()"))[:callenc.SelectorSize]

// Program is the relay hosted on a memledger.
type Program struct {
	schema *callenc.Schema
}

var _ memledger.Program = (*Program)(nil)

// NewProgram returns a relay program.
func NewProgram() *Program {
	return &Program{schema: callenc.MustLookup(SchemaName)}
}

// Deploy installs a relay on l.
func Deploy(l *memledger.Ledger) (common.Address, error) {
	return l.Deploy(NewProgram(), nil)
}

func (p *Program) Init(_ *memledger.Env, ctorArgs []byte) error {
	if len(ctorArgs) != 0 {
		return memledger.Revert("relay takes no construction parameters")
	}
	return nil
}

// Invoke forwards the payload verbatim, then reads the target's current state
// and emits it as a correlation record. Any failure reverts the whole call.
func (p *Program) Invoke(env *memledger.Env, input []byte) ([]byte, error) {
	m, args, err := p.schema.DecodeCall(input)
	if err != nil {
		return nil, memledger.Revert("%v", err)
	}
	if m.Name != "execute" {
		return nil, memledger.Revert("unsupported entry point %s", m.Name)
	}
	target := args[0].(common.Address)
	payload := args[1].([]byte)

	response, err := env.Call(target, payload)
	if err != nil {
		return nil, memledger.Revert("call to %s failed: %v", target.Hex(), err)
	}

	state, err := env.Call(target, stateSelector)
	if err != nil {
		return nil, memledger.Revert("%s on %s failed: %v", StateEntryPoint, target.Hex(), err)
	}
	key, packed, err := DecodeRecordData(state)
	if err != nil {
		return nil, memledger.Revert("%s on %s: %v", StateEntryPoint, target.Hex(), err)
	}

	data, err := EncodeRecord(key, packed)
	if err != nil {
		return nil, err
	}
	if err := env.Emit([]common.Hash{EventTopic()}, data); err != nil {
		return nil, err
	}
	return p.schema.EncodeReturn("execute", response)
}
