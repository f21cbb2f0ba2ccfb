// Package correlator reads relay correlation records back from the ledger's
// log index and matches them to a correlation key.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/relay"
)

var (
	// ErrNotFound means no record for the key exists in the scanned range.
	// The dispatch may not be included yet; callers may poll.
	ErrNotFound = errors.New("correlation record not found")

	// ErrDecode means a relay log or a PackedResult did not match its schema.
	ErrDecode = callenc.ErrDecode
)

// LogSource is the part of the ledger client the correlator reads from.
type LogSource interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Correlator queries correlation records by block range.
type Correlator struct {
	logs  LogSource
	chunk uint64
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithChunkSize splits range scans into windows of at most n blocks. Zero
// scans the whole range in one query.
func WithChunkSize(n uint64) Option {
	return func(c *Correlator) { c.chunk = n }
}

// New creates a Correlator.
func New(logs LogSource, opts ...Option) *Correlator {
	c := &Correlator{logs: logs}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Head returns the latest block number.
func (c *Correlator) Head(ctx context.Context) (uint64, error) {
	return c.logs.BlockNumber(ctx)
}

// Scan returns every record emitted by relayAddr in [from, to], in ledger
// order.
func (c *Correlator) Scan(ctx context.Context, relayAddr common.Address, from, to uint64) ([]relay.Record, error) {
	if from > to {
		return nil, nil
	}

	var out []relay.Record
	for start := from; ; {
		end := to
		if c.chunk > 0 && end-start >= c.chunk {
			end = start + c.chunk - 1
		}

		logs, err := c.logs.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{relayAddr},
			Topics:    [][]common.Hash{{relay.EventTopic()}},
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s blocks %d-%d: %w", relayAddr.Hex(), start, end, err)
		}
		for _, lg := range logs {
			rec, err := relay.DecodeRecord(lg)
			if err != nil {
				return nil, err
			}
			out = append(out, *rec)
		}

		if end == to {
			return out, nil
		}
		start = end + 1
	}
}

// FetchAll returns every record for key emitted by relayAddr at or after
// fromBlock, oldest first.
func (c *Correlator) FetchAll(ctx context.Context, relayAddr common.Address, key [32]byte, fromBlock uint64) ([]relay.Record, error) {
	head, err := c.logs.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	records, err := c.Scan(ctx, relayAddr, fromBlock, head)
	if err != nil {
		return nil, err
	}
	matched := records[:0]
	for _, r := range records {
		if r.Key == key {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// Fetch returns the most recent record for key at or after fromBlock.
func (c *Correlator) Fetch(ctx context.Context, relayAddr common.Address, key [32]byte, fromBlock uint64) (*relay.Record, error) {
	records, err := c.FetchAll(ctx, relayAddr, key, fromBlock)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: key %x from block %d", ErrNotFound, key, fromBlock)
	}
	rec := records[len(records)-1]
	return &rec, nil
}

// FetchDecoded is Fetch followed by Decode.
func (c *Correlator) FetchDecoded(ctx context.Context, relayAddr common.Address, key [32]byte, fromBlock uint64, schema *callenc.Tuple) ([]interface{}, *relay.Record, error) {
	rec, err := c.Fetch(ctx, relayAddr, key, fromBlock)
	if err != nil {
		return nil, nil, err
	}
	values, err := Decode(rec, schema)
	if err != nil {
		return nil, rec, err
	}
	return values, rec, nil
}

// DefaultPollInterval is used by Poll when the interval is not positive.
const DefaultPollInterval = time.Second

// Poll repeats Fetch every interval until a record appears. Errors other than
// ErrNotFound end the poll.
func (c *Correlator) Poll(ctx context.Context, relayAddr common.Address, key [32]byte, fromBlock uint64, interval time.Duration) (*relay.Record, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		rec, err := c.Fetch(ctx, relayAddr, key, fromBlock)
		if !errors.Is(err, ErrNotFound) {
			return rec, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Decode unpacks a record's PackedResult with the schema agreed with its
// target.
func Decode(rec *relay.Record, schema *callenc.Tuple) ([]interface{}, error) {
	values, err := schema.Unpack(rec.PackedResult)
	if err != nil {
		return nil, fmt.Errorf("record %s#%d as %s: %w", rec.TxHash.Hex(), rec.LogIndex, schema, err)
	}
	return values, nil
}
