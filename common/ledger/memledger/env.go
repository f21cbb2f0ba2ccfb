package memledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/moebius-network/moebius/common/ledger"
)

const maxCallDepth = 64

// ErrWriteProtection is returned when a static call tries to modify state.
var ErrWriteProtection = errors.New("write protection")

// Program is code hosted by the ledger. Any error returned from Init or
// Invoke reverts every state change and log of the enclosing call frame.
type Program interface {
	Init(env *Env, ctorArgs []byte) error
	Invoke(env *Env, input []byte) ([]byte, error)
}

// RevertError carries a revert reason. It matches ledger.ErrReverted.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error {
	return ledger.ErrReverted
}

// Revert builds a RevertError.
func Revert(format string, args ...interface{}) error {
	return &RevertError{Reason: fmt.Sprintf(format, args...)}
}

func asRevert(err error) error {
	var re *RevertError
	if errors.As(err, &re) {
		return err
	}
	return &RevertError{Reason: err.Error()}
}

// frame journals storage writes and logs of one call until the call returns.
type frame struct {
	parent *frame
	writes map[common.Address]map[string][]byte
	logs   []types.Log
}

func newFrame(parent *frame) *frame {
	return &frame{parent: parent, writes: make(map[common.Address]map[string][]byte)}
}

func (f *frame) load(addr common.Address, key string) ([]byte, bool) {
	for cur := f; cur != nil; cur = cur.parent {
		if v, ok := cur.writes[addr][key]; ok {
			return v, true
		}
	}
	return nil, false
}

func (f *frame) store(addr common.Address, key string, value []byte) {
	slots, ok := f.writes[addr]
	if !ok {
		slots = make(map[string][]byte)
		f.writes[addr] = slots
	}
	slots[key] = append([]byte(nil), value...)
}

// merge folds a successful child frame into its parent.
func (f *frame) merge() {
	for addr, kv := range f.writes {
		for k, v := range kv {
			f.parent.store(addr, k, v)
		}
	}
	f.parent.logs = append(f.parent.logs, f.logs...)
}

// Env is the execution context handed to a program for one call.
type Env struct {
	ledger *Ledger
	frame  *frame
	caller common.Address
	self   common.Address
	block  block
	static bool
	depth  int
}

func newEnv(l *Ledger, f *frame, caller, self common.Address, blk block, static bool, depth int) *Env {
	return &Env{ledger: l, frame: f, caller: caller, self: self, block: blk, static: static, depth: depth}
}

// Self is the address of the executing program.
func (e *Env) Self() common.Address { return e.self }

// Caller is the account or program that made the call.
func (e *Env) Caller() common.Address { return e.caller }

// BlockNumber is the number of the block being built.
func (e *Env) BlockNumber() uint64 { return e.block.number }

// BlockTime is the timestamp of the block being built.
func (e *Env) BlockTime() uint64 { return e.block.time }

// Load reads a storage slot of the executing program.
func (e *Env) Load(key string) []byte {
	if v, ok := e.frame.load(e.self, key); ok {
		return append([]byte(nil), v...)
	}
	if v, ok := e.ledger.storage[e.self][key]; ok {
		return append([]byte(nil), v...)
	}
	return nil
}

// Store writes a storage slot of the executing program.
func (e *Env) Store(key string, value []byte) error {
	if e.static {
		return ErrWriteProtection
	}
	e.frame.store(e.self, key, value)
	return nil
}

// Emit appends a log entry attributed to the executing program.
func (e *Env) Emit(topics []common.Hash, data []byte) error {
	if e.static {
		return ErrWriteProtection
	}
	e.frame.logs = append(e.frame.logs, types.Log{
		Address: e.self,
		Topics:  append([]common.Hash(nil), topics...),
		Data:    append([]byte(nil), data...),
	})
	return nil
}

// Call invokes another program. The callee's writes and logs are kept only
// if it succeeds.
func (e *Env) Call(to common.Address, input []byte) ([]byte, error) {
	return e.call(to, input, e.static)
}

// StaticCall invokes another program without allowing state changes.
func (e *Env) StaticCall(to common.Address, input []byte) ([]byte, error) {
	return e.call(to, input, true)
}

func (e *Env) call(to common.Address, input []byte, static bool) ([]byte, error) {
	if e.depth+1 > maxCallDepth {
		return nil, Revert("call depth exceeded")
	}
	child := newEnv(e.ledger, newFrame(e.frame), e.self, to, e.block, static, e.depth+1)
	out, err := e.ledger.invoke(child, to, input)
	if err != nil {
		return nil, err
	}
	child.frame.merge()
	return out, nil
}
