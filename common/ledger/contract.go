package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/moebius-network/moebius/common/callenc"
)

// Contract is a callable handle on a deployed contract.
type Contract struct {
	Address common.Address
	Schema  *callenc.Schema
	client  Client
}

// TxOptions overrides gas settings for Transact.
type TxOptions struct {
	GasLimit uint64
	GasPrice *big.Int
}

// Bind returns a handle for the contract registered under name at address.
func Bind(c Client, name string, address common.Address) (*Contract, error) {
	schema, err := callenc.Lookup(name)
	if err != nil {
		return nil, err
	}
	return &Contract{Address: address, Schema: schema, client: c}, nil
}

// Call runs a read-only entry point and decodes its return values.
func (c *Contract) Call(ctx context.Context, entryPoint string, args ...interface{}) ([]interface{}, error) {
	input, err := c.Schema.Encode(entryPoint, args...)
	if err != nil {
		return nil, err
	}
	out, err := c.client.CallContract(ctx, c.Address, input)
	if err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", c.Schema.Name(), entryPoint, err)
	}
	return c.Schema.DecodeReturn(entryPoint, out)
}

// Transact submits a state-changing call and returns the transaction hash.
func (c *Contract) Transact(ctx context.Context, opts *TxOptions, entryPoint string, args ...interface{}) (common.Hash, error) {
	input, err := c.Schema.Encode(entryPoint, args...)
	if err != nil {
		return common.Hash{}, err
	}
	req := TxRequest{To: c.Address, Data: input}
	if opts != nil {
		req.GasLimit = opts.GasLimit
		req.GasPrice = opts.GasPrice
	}
	hash, err := c.client.SendTransaction(ctx, req)
	if err != nil {
		return common.Hash{}, fmt.Errorf("transact %s.%s: %w", c.Schema.Name(), entryPoint, err)
	}
	return hash, nil
}
