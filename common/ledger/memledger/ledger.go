// Package memledger is an in-process ledger that hosts Go programs. It mines
// transactions into blocks, journals storage per call frame so a failed call
// leaves no partial state behind, and keeps an append-only log index that can
// be queried by block range. It implements ledger.Client.
package memledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/moebius-network/moebius/common/ledger"
)

const (
	genesisTime   = 1_600_000_000
	blockInterval = 12
	intrinsicGas  = 21_000
	calldataGas   = 16
)

// DefaultSender is the account that signs transactions unless WithSender is
// used.
var DefaultSender = common.HexToAddress("0x00000000000000000000000000000000000f00d5")

type block struct {
	number uint64
	hash   common.Hash
	time   uint64
}

type pendingTx struct {
	hash common.Hash
	from common.Address
	req  ledger.TxRequest
}

// Ledger is safe for concurrent use. Programs run with the ledger lock held
// and must only interact with the ledger through their Env.
type Ledger struct {
	mu       sync.Mutex
	sender   common.Address
	nonce    uint64
	automine bool
	offline  bool

	programs map[common.Address]Program
	storage  map[common.Address]map[string][]byte
	blocks   []block
	logs     []types.Log
	receipts map[common.Hash]*types.Receipt
	reasons  map[common.Hash]string
	pending  []pendingTx
	mined    chan struct{}
}

var _ ledger.Client = (*Ledger)(nil)

// Option configures a Ledger.
type Option func(*Ledger)

// WithManualMining queues submitted transactions until Mine is called.
func WithManualMining() Option {
	return func(l *Ledger) { l.automine = false }
}

// WithSender sets the account transactions are sent from.
func WithSender(addr common.Address) Option {
	return func(l *Ledger) { l.sender = addr }
}

// New creates a ledger with a genesis block.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		sender:   DefaultSender,
		automine: true,
		programs: make(map[common.Address]Program),
		storage:  make(map[common.Address]map[string][]byte),
		receipts: make(map[common.Hash]*types.Receipt),
		reasons:  make(map[common.Hash]string),
		mined:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.blocks = append(l.blocks, block{number: 0, hash: crypto.Keccak256Hash([]byte("genesis")), time: genesisTime})
	return l
}

// Sender returns the account transactions are sent from.
func (l *Ledger) Sender() common.Address {
	return l.sender
}

// SetOffline makes every node operation fail with ledger.ErrUnavailable
// until it is switched back.
func (l *Ledger) SetOffline(offline bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offline = offline
}

// Pending returns the number of transactions waiting to be mined.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// RevertReason returns the failure reason recorded for a reverted transaction.
func (l *Ledger) RevertReason(tx common.Hash) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reasons[tx]
}

// Deploy installs a program at a fresh address and runs its initializer with
// the encoded construction parameters. Deployment is mined immediately in
// its own block.
func (l *Ledger) Deploy(p Program, ctorArgs []byte) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.offline {
		return common.Address{}, ledger.ErrUnavailable
	}

	addr := crypto.CreateAddress(l.sender, l.nonce)
	hash := l.txHash(l.sender, l.nonce, nil, ctorArgs)
	l.nonce++

	blk := l.nextBlock()
	env := newEnv(l, newFrame(nil), l.sender, addr, blk, false, 0)
	if err := initProgram(p, env, ctorArgs); err != nil {
		return common.Address{}, fmt.Errorf("deploy: %w", err)
	}
	l.programs[addr] = p

	logs := l.commit(env.frame, blk, hash, 0)
	l.blocks = append(l.blocks, blk)
	l.receipts[hash] = &types.Receipt{
		Status:          types.ReceiptStatusSuccessful,
		TxHash:          hash,
		ContractAddress: addr,
		BlockNumber:     new(big.Int).SetUint64(blk.number),
		BlockHash:       blk.hash,
		GasUsed:         l.intrinsic(ctorArgs),
		Logs:            logs,
	}
	l.notify()
	return addr, nil
}

// SendTransaction queues a call and, with automining, mines it into its own
// block.
func (l *Ledger) SendTransaction(ctx context.Context, req ledger.TxRequest) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.offline {
		return common.Hash{}, ledger.ErrUnavailable
	}

	hash := l.txHash(l.sender, l.nonce, &req.To, req.Data)
	l.nonce++
	l.pending = append(l.pending, pendingTx{hash: hash, from: l.sender, req: req})

	if l.automine {
		l.mineLocked()
	}
	return hash, nil
}

// Mine includes every pending transaction in a new block and returns its
// number. An empty block is mined when nothing is pending.
func (l *Ledger) Mine() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mineLocked()
}

func (l *Ledger) mineLocked() uint64 {
	blk := l.nextBlock()
	txs := l.pending
	l.pending = nil

	for i, tx := range txs {
		l.execute(blk, uint(i), tx)
	}
	l.blocks = append(l.blocks, blk)
	l.notify()
	return blk.number
}

func (l *Ledger) execute(blk block, index uint, tx pendingTx) {
	receipt := &types.Receipt{
		TxHash:           tx.hash,
		BlockNumber:      new(big.Int).SetUint64(blk.number),
		BlockHash:        blk.hash,
		TransactionIndex: index,
		GasUsed:          l.intrinsic(tx.req.Data),
		Logs:             []*types.Log{},
	}
	l.receipts[tx.hash] = receipt

	if tx.req.GasLimit != 0 && tx.req.GasLimit < receipt.GasUsed {
		receipt.Status = types.ReceiptStatusFailed
		l.reasons[tx.hash] = "intrinsic gas too low"
		return
	}

	env := newEnv(l, newFrame(nil), tx.from, tx.req.To, blk, false, 0)
	if _, err := l.invoke(env, tx.req.To, tx.req.Data); err != nil {
		receipt.Status = types.ReceiptStatusFailed
		l.reasons[tx.hash] = err.Error()
		return
	}

	receipt.Status = types.ReceiptStatusSuccessful
	receipt.Logs = l.commit(env.frame, blk, tx.hash, index)
}

// WaitForInclusion blocks until the transaction has a receipt.
func (l *Ledger) WaitForInclusion(ctx context.Context, tx common.Hash) (*types.Receipt, error) {
	for {
		l.mu.Lock()
		if l.offline {
			l.mu.Unlock()
			return nil, ledger.ErrUnavailable
		}
		if r, ok := l.receipts[tx]; ok {
			l.mu.Unlock()
			return r, nil
		}
		if !l.isPending(tx) {
			l.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownTransaction, tx.Hex())
		}
		mined := l.mined
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-mined:
		}
	}
}

// FilterLogs returns logs in [FromBlock, ToBlock] matching the address and
// topic filters. Nil bounds mean genesis and latest.
func (l *Ledger) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.offline {
		return nil, ledger.ErrUnavailable
	}

	head := l.head().number
	from, to := uint64(0), head
	if q.FromBlock != nil {
		from = blockBound(q.FromBlock, head)
	}
	if q.ToBlock != nil {
		to = blockBound(q.ToBlock, head)
	}

	out := make([]types.Log, 0)
	for _, lg := range l.logs {
		if q.BlockHash != nil {
			if lg.BlockHash != *q.BlockHash {
				continue
			}
		} else if lg.BlockNumber < from || lg.BlockNumber > to {
			continue
		}
		if !matchAddress(q.Addresses, lg.Address) || !matchTopics(q.Topics, lg.Topics) {
			continue
		}
		out = append(out, copyLog(lg))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

// CallContract runs a call against the latest state and discards its effects.
func (l *Ledger) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.offline {
		return nil, ledger.ErrUnavailable
	}

	env := newEnv(l, newFrame(nil), l.sender, to, l.head(), false, 0)
	return l.invoke(env, to, data)
}

// BlockNumber returns the latest mined block.
func (l *Ledger) BlockNumber(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.offline {
		return 0, ledger.ErrUnavailable
	}
	return l.head().number, nil
}

func (l *Ledger) invoke(env *Env, to common.Address, input []byte) (out []byte, err error) {
	p, ok := l.programs[to]
	if !ok {
		// Calls to addresses without code succeed and return nothing.
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, Revert("panic: %v", r)
		}
	}()
	out, err = p.Invoke(env, input)
	if err != nil {
		return nil, asRevert(err)
	}
	return out, nil
}

func initProgram(p Program, env *Env, ctorArgs []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Revert("panic: %v", r)
		}
	}()
	if err := p.Init(env, ctorArgs); err != nil {
		return asRevert(err)
	}
	return nil
}

// commit applies a successful root frame to the ledger and returns its logs
// stamped with their inclusion position.
func (l *Ledger) commit(f *frame, blk block, tx common.Hash, txIndex uint) []*types.Log {
	for addr, kv := range f.writes {
		slots, ok := l.storage[addr]
		if !ok {
			slots = make(map[string][]byte)
			l.storage[addr] = slots
		}
		for k, v := range kv {
			slots[k] = v
		}
	}

	index := l.blockLogCount(blk.number)
	out := make([]*types.Log, 0, len(f.logs))
	for _, lg := range f.logs {
		lg.BlockNumber = blk.number
		lg.BlockHash = blk.hash
		lg.TxHash = tx
		lg.TxIndex = txIndex
		lg.Index = index
		index++
		l.logs = append(l.logs, lg)
		stamped := copyLog(lg)
		out = append(out, &stamped)
	}
	return out
}

// blockLogCount returns how many logs are already stamped with block n. Logs
// are appended in block order, so only the tail is scanned.
func (l *Ledger) blockLogCount(n uint64) uint {
	var count uint
	for i := len(l.logs) - 1; i >= 0 && l.logs[i].BlockNumber == n; i-- {
		count++
	}
	return count
}

func (l *Ledger) head() block {
	return l.blocks[len(l.blocks)-1]
}

func (l *Ledger) nextBlock() block {
	parent := l.head()
	number := parent.number + 1
	return block{
		number: number,
		hash:   crypto.Keccak256Hash(parent.hash.Bytes(), binary.BigEndian.AppendUint64(nil, number)),
		time:   genesisTime + number*blockInterval,
	}
}

func (l *Ledger) notify() {
	close(l.mined)
	l.mined = make(chan struct{})
}

func (l *Ledger) isPending(tx common.Hash) bool {
	for _, p := range l.pending {
		if p.hash == tx {
			return true
		}
	}
	return false
}

func (l *Ledger) txHash(from common.Address, nonce uint64, to *common.Address, data []byte) common.Hash {
	var target []byte
	if to != nil {
		target = to.Bytes()
	}
	return crypto.Keccak256Hash(from.Bytes(), binary.BigEndian.AppendUint64(nil, nonce), target, data)
}

func (l *Ledger) intrinsic(data []byte) uint64 {
	return intrinsicGas + calldataGas*uint64(len(data))
}

func blockBound(n *big.Int, head uint64) uint64 {
	if n.Sign() < 0 {
		// Negative numbers are the named tags (latest, pending, ...).
		return head
	}
	return n.Uint64()
}

func matchAddress(filter []common.Address, addr common.Address) bool {
	if len(filter) == 0 {
		return true
	}
	for _, a := range filter {
		if a == addr {
			return true
		}
	}
	return false
}

func matchTopics(filter [][]common.Hash, topics []common.Hash) bool {
	for i, set := range filter {
		if len(set) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		found := false
		for _, t := range set {
			if t == topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func copyLog(lg types.Log) types.Log {
	out := lg
	out.Topics = append([]common.Hash(nil), lg.Topics...)
	out.Data = append([]byte(nil), lg.Data...)
	return out
}
