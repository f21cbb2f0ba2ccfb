// Package relay dispatches opaque calls through the on-ledger relay and
// reads back the correlation records it emits.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/ledger"
)

// SchemaName is the registered ABI of the relay contract.
const SchemaName = "Moebius"

var (
	// ErrTargetUnreachable is returned when the forwarded call failed inside
	// the ledger. No correlation record exists for such a dispatch.
	ErrTargetUnreachable = errors.New("target unreachable")

	// ErrRelayUnavailable is returned when the relay cannot be reached. The
	// whole dispatch must be retried.
	ErrRelayUnavailable = errors.New("relay unavailable")
)

// IsTransient reports whether a dispatch error is worth retrying on the next
// cycle.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTargetUnreachable) ||
		errors.Is(err, ErrRelayUnavailable) ||
		errors.Is(err, ledger.ErrInclusionTimeout)
}

// DispatchRequest is one call to forward through the relay.
type DispatchRequest struct {
	Target   common.Address
	Payload  []byte
	GasLimit uint64
	GasPrice *big.Int
}

// Submission identifies a dispatch that has been handed to the ledger.
type Submission struct {
	TxHash common.Hash
	Relay  common.Address
	Target common.Address
	// FromBlock is the earliest block the dispatch can be included in.
	FromBlock uint64
}

// Inclusion is a dispatch that made it into a block.
type Inclusion struct {
	Submission
	Block   uint64
	Receipt *types.Receipt
	Records []Record
}

// Dispatchable forwards an opaque payload to a target. The typed result is
// never returned here; it is read back from the record the relay emits.
type Dispatchable interface {
	Execute(ctx context.Context, req DispatchRequest) (Submission, error)
}

// Client talks to one deployed relay.
type Client struct {
	ledger  ledger.Client
	address common.Address
	schema  *callenc.Schema
}

var _ Dispatchable = (*Client)(nil)

// NewClient returns a dispatcher for the relay deployed at address.
func NewClient(c ledger.Client, address common.Address) *Client {
	return &Client{ledger: c, address: address, schema: callenc.MustLookup(SchemaName)}
}

// Address returns the relay address.
func (c *Client) Address() common.Address {
	return c.address
}

// Execute submits execute(target, payload) to the relay.
func (c *Client) Execute(ctx context.Context, req DispatchRequest) (Submission, error) {
	input, err := c.schema.Encode("execute", req.Target, req.Payload)
	if err != nil {
		return Submission{}, err
	}

	head, err := c.ledger.BlockNumber(ctx)
	if err != nil {
		return Submission{}, mapLedgerError(err)
	}

	hash, err := c.ledger.SendTransaction(ctx, ledger.TxRequest{
		To:       c.address,
		Data:     input,
		GasLimit: req.GasLimit,
		GasPrice: req.GasPrice,
	})
	if err != nil {
		return Submission{}, mapLedgerError(err)
	}

	return Submission{
		TxHash:    hash,
		Relay:     c.address,
		Target:    req.Target,
		FromBlock: head + 1,
	}, nil
}

// Await waits for a submission under policy and returns the records the
// relay emitted in that transaction.
func (c *Client) Await(ctx context.Context, sub Submission, policy ledger.InclusionPolicy) (*Inclusion, error) {
	receipt, err := policy.Wait(ctx, c.ledger, sub.TxHash)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	if !ledger.Succeeded(receipt) {
		return nil, fmt.Errorf("%w: transaction %s failed in block %d", ErrTargetUnreachable, sub.TxHash.Hex(), ledger.ReceiptBlock(receipt))
	}

	inc := &Inclusion{Submission: sub, Block: ledger.ReceiptBlock(receipt), Receipt: receipt}
	for _, lg := range receipt.Logs {
		if lg.Address != sub.Relay || !IsRecordLog(*lg) {
			continue
		}
		rec, err := DecodeRecord(*lg)
		if err != nil {
			return nil, err
		}
		inc.Records = append(inc.Records, *rec)
	}
	return inc, nil
}

// Dispatch is Execute followed by Await.
func (c *Client) Dispatch(ctx context.Context, req DispatchRequest, policy ledger.InclusionPolicy) (*Inclusion, error) {
	sub, err := c.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.Await(ctx, sub, policy)
}

func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrReverted):
		return fmt.Errorf("%w: %w", ErrTargetUnreachable, err)
	case errors.Is(err, ledger.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrRelayUnavailable, err)
	}
	return err
}
