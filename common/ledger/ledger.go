// Package ledger defines the boundary between this system and the ledger
// node: transaction submission, inclusion, log queries and read-only calls.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrUnavailable is returned when the node cannot be reached.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrReverted is returned when a call or a pre-submission estimate fails
	// inside the ledger.
	ErrReverted = errors.New("execution reverted")

	// ErrInclusionTimeout is returned when a transaction is not included
	// within the configured inclusion policy.
	ErrInclusionTimeout = errors.New("inclusion timeout")

	// ErrUnknownTransaction is returned when waiting on a hash the node has
	// never seen.
	ErrUnknownTransaction = errors.New("unknown transaction")
)

// TxRequest describes a transaction to sign and submit.
type TxRequest struct {
	To       common.Address
	Data     []byte
	GasLimit uint64   // 0 lets the client estimate
	GasPrice *big.Int // nil lets the client suggest
}

// Client is the set of node operations the relay, correlator and keeper use.
type Client interface {
	// SendTransaction signs and submits a transaction and returns its hash.
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)

	// WaitForInclusion blocks until the transaction is included and returns
	// its receipt. A receipt with a failed status is not an error here.
	WaitForInclusion(ctx context.Context, tx common.Hash) (*types.Receipt, error)

	// FilterLogs queries the log index.
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)

	// CallContract executes a read-only call against the latest state.
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)

	// BlockNumber returns the latest block number.
	BlockNumber(ctx context.Context) (uint64, error)
}

// InclusionPolicy bounds how long a caller waits for a transaction to be
// included. A zero Timeout waits until the context is done.
type InclusionPolicy struct {
	Timeout time.Duration
}

// Wait applies the policy to c.WaitForInclusion.
func (p InclusionPolicy) Wait(ctx context.Context, c Client, tx common.Hash) (*types.Receipt, error) {
	if p.Timeout <= 0 {
		return c.WaitForInclusion(ctx, tx)
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	receipt, err := c.WaitForInclusion(waitCtx, tx)
	if err != nil && ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s after %s", ErrInclusionTimeout, tx.Hex(), p.Timeout)
	}
	return receipt, err
}

// Succeeded reports whether a receipt records a successful execution.
func Succeeded(r *types.Receipt) bool {
	return r != nil && r.Status == types.ReceiptStatusSuccessful
}

// ReceiptBlock returns the block number a receipt was included in.
func ReceiptBlock(r *types.Receipt) uint64 {
	if r == nil || r.BlockNumber == nil {
		return 0
	}
	return r.BlockNumber.Uint64()
}
