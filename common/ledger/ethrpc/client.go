// Package ethrpc implements ledger.Client on top of a JSON-RPC node using
// go-ethereum's ethclient, signing legacy transactions with a local key.
package ethrpc

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/moebius-network/moebius/common/ledger"
)

const defaultPollInterval = 2 * time.Second

// Config holds connection and signing settings.
type Config struct {
	URL          string
	PrivateKey   string // hex, with or without 0x
	ChainID      int64  // 0 asks the node
	PollInterval time.Duration
}

// backend is the subset of *ethclient.Client the Client uses.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Client is a ledger.Client backed by a remote node.
type Client struct {
	backend      backend
	key          *ecdsa.PrivateKey
	from         common.Address
	signer       types.Signer
	pollInterval time.Duration
	closer       func()
}

var _ ledger.Client = (*Client)(nil)

// Dial connects to the node at cfg.URL.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ledger.ErrUnavailable, cfg.URL, err)
	}
	c, err := newClient(ctx, rpc, cfg)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	c.closer = rpc.Close
	return c, nil
}

func newClient(ctx context.Context, b backend, cfg Config) (*Client, error) {
	c := &Client{backend: b, pollInterval: cfg.PollInterval}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse signing key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		id, err := b.ChainID(ctx)
		if err != nil {
			return nil, unavailable("chain id", err)
		}
		chainID = id
	}
	c.signer = types.LatestSignerForChainID(chainID)
	return c, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// From returns the signing account, or the zero address for a read-only client.
func (c *Client) From() common.Address {
	return c.from
}

// SendTransaction fills in nonce, gas price and gas limit, signs and submits.
func (c *Client) SendTransaction(ctx context.Context, req ledger.TxRequest) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, errors.New("no signing key configured")
	}

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, unavailable("nonce", err)
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		gasPrice, err = c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, unavailable("gas price", err)
		}
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		to := req.To
		gasLimit, err = c.backend.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, GasPrice: gasPrice, Data: req.Data})
		if err != nil {
			return common.Hash{}, classify("estimate gas", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &req.To,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})
	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, classify("send transaction", err)
	}
	return signed.Hash(), nil
}

// WaitForInclusion polls for the receipt until it appears or ctx is done.
func (c *Client) WaitForInclusion(ctx context.Context, tx common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, tx)
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			if _, _, err := c.backend.TransactionByHash(ctx, tx); errors.Is(err, ethereum.NotFound) {
				return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownTransaction, tx.Hex())
			}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, unavailable("receipt", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// FilterLogs queries the node's log index.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := c.backend.FilterLogs(ctx, q)
	if err != nil {
		return nil, unavailable("filter logs", err)
	}
	return logs, nil
}

// CallContract executes a read-only call at the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, classify("call", err)
	}
	return out, nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, unavailable("block number", err)
	}
	return n, nil
}

// classify maps node errors that carry a revert to ledger.ErrReverted and
// everything else to ledger.ErrUnavailable.
func classify(op string, err error) error {
	if isRevert(err) {
		return fmt.Errorf("%s: %w: %v", op, ledger.ErrReverted, err)
	}
	return unavailable(op, err)
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ledger.ErrUnavailable, err)
}

func isRevert(err error) bool {
	return strings.Contains(err.Error(), "revert")
}
