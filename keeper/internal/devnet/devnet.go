// Package devnet bootstraps an in-process ledger with the relay and both
// target adapters, using the identifiers of the reference deployment.
package devnet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/correlator"
	"github.com/moebius-network/moebius/common/idcodec"
	"github.com/moebius-network/moebius/common/ledger"
	"github.com/moebius-network/moebius/common/ledger/memledger"
	"github.com/moebius-network/moebius/common/relay"
	"github.com/moebius-network/moebius/common/targets"
	"github.com/moebius-network/moebius/keeper/internal/tasks"
)

// Foreign identifiers the targets are constructed with.
const (
	SimpleProgramID = "9rCXCJDsnS53QtdXvYhYCAxb6yBE16KAQx5zHWfHe9QF"
	SimpleAccountID = "Bt9xbg8fz3mQCuk4jwso1Daj9pLwPiXtgHeMZqUhuS9A"
	OracleProgramID = "G33TSUoKH1xM7bPXTMoQhGQhfwWkWT8dGaW6dunDQoen"
	OracleAccountID = "DyYDszBZ8m92i9bJeQMhErkqQ4UPBG4pVZxmQL3CNnC"
)

var (
	Factory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	WETH    = common.HexToAddress("0xc778417e063141139fce010982780140aa0cd5ab")
	UNI     = common.HexToAddress("0x1f9840a85d5af5bf1d1762f925bdaddc4201f984")

	// DefaultUNIPerWETH prices the oracle's only pair.
	DefaultUNIPerWETH = big.NewInt(2000)
)

// Options configures Bootstrap.
type Options struct {
	// Seed drives the SimpleContract's initial values. Zero is random.
	Seed       int64
	UNIPerWETH *big.Int
	Ledger     []memledger.Option
}

// Network is a bootstrapped in-process deployment.
type Network struct {
	Ledger *memledger.Ledger
	Relay  common.Address
	Simple common.Address
	Oracle common.Address

	SimpleKey [32]byte
	OracleKey [32]byte
}

// Bootstrap deploys the relay, a SimpleContract and a UniswapOracle.
func Bootstrap(opts Options) (*Network, error) {
	ids, err := decodeIDs(SimpleProgramID, SimpleAccountID, OracleProgramID, OracleAccountID)
	if err != nil {
		return nil, err
	}

	l := memledger.New(opts.Ledger...)
	n := &Network{Ledger: l, SimpleKey: ids[1], OracleKey: ids[3]}

	if n.Relay, err = relay.Deploy(l); err != nil {
		return nil, fmt.Errorf("deploy relay: %w", err)
	}

	initial, err := randomSimpleState(opts.Seed)
	if err != nil {
		return nil, err
	}
	if n.Simple, err = targets.DeploySimple(l, ids[0], ids[1], initial); err != nil {
		return nil, fmt.Errorf("deploy %s: %w", targets.SimpleSchemaName, err)
	}

	price := opts.UNIPerWETH
	if price == nil {
		price = DefaultUNIPerWETH
	}
	n.Oracle, err = targets.DeployOracle(l, targets.Ratio{Base: WETH, Num: price, Den: big.NewInt(1)}, targets.OracleParams{
		ProgramID: ids[2],
		AccountID: ids[3],
		Factory:   Factory,
		WETH:      WETH,
		UNI:       UNI,
	})
	if err != nil {
		return nil, fmt.Errorf("deploy %s: %w", targets.OracleSchemaName, err)
	}
	return n, nil
}

// Deployment returns the addresses tasks with no explicit target run against.
func (n *Network) Deployment() tasks.Deployment {
	return tasks.Deployment{
		Relay: n.Relay,
		Targets: map[string]common.Address{
			targets.SimpleSchemaName: n.Simple,
			targets.OracleSchemaName: n.Oracle,
		},
	}
}

// CorrelationKey returns the key the devnet contract for abi emits records
// under.
func (n *Network) CorrelationKey(abi string) ([32]byte, bool) {
	switch abi {
	case targets.SimpleSchemaName:
		return n.SimpleKey, true
	case targets.OracleSchemaName:
		return n.OracleKey, true
	}
	return [32]byte{}, false
}

// Step is one dispatch of the demo and the state read back for it.
type Step struct {
	Name   string        `json:"name" yaml:"name"`
	Target string        `json:"target" yaml:"target"`
	TxHash string        `json:"tx_hash" yaml:"tx_hash"`
	Block  uint64        `json:"block" yaml:"block"`
	Key    string        `json:"correlation_key" yaml:"correlation_key"`
	Values []interface{} `json:"values" yaml:"values"`
}

// Demo dispatches a read, a write and an oracle update through the relay and
// reads each result back through the correlator.
func (n *Network) Demo(ctx context.Context) ([]Step, error) {
	client := relay.NewClient(n.Ledger, n.Relay)
	corr := correlator.New(n.Ledger)

	write, err := randomSimpleState(0)
	if err != nil {
		return nil, err
	}

	plan := []struct {
		name       string
		target     common.Address
		abi        string
		entryPoint string
		key        [32]byte
		args       []interface{}
	}{
		{"simple getValues", n.Simple, targets.SimpleSchemaName, "getValues", n.SimpleKey, nil},
		{"simple setAndGetValues", n.Simple, targets.SimpleSchemaName, "setAndGetValues", n.SimpleKey,
			[]interface{}{write.Bytes32, write.Address, write.Uint256}},
		{"oracle updateAndConsult", n.Oracle, targets.OracleSchemaName, "updateAndConsult", n.OracleKey,
			[]interface{}{WETH, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)}},
	}

	steps := make([]Step, 0, len(plan))
	for _, p := range plan {
		payload, err := callenc.MustLookup(p.abi).Encode(p.entryPoint, p.args...)
		if err != nil {
			return steps, err
		}
		inc, err := client.Dispatch(ctx, relay.DispatchRequest{Target: p.target, Payload: payload}, ledger.InclusionPolicy{})
		if err != nil {
			return steps, fmt.Errorf("%s: %w", p.name, err)
		}
		schema, err := targets.ResultSchema(p.abi)
		if err != nil {
			return steps, err
		}
		values, rec, err := corr.FetchDecoded(ctx, n.Relay, p.key, inc.Block, schema)
		if err != nil {
			return steps, fmt.Errorf("%s: %w", p.name, err)
		}
		steps = append(steps, Step{
			Name:   p.name,
			Target: p.target.Hex(),
			TxHash: rec.TxHash.Hex(),
			Block:  rec.BlockNumber,
			Key:    idcodec.FormatKey(rec.Key),
			Values: values,
		})
	}
	return steps, nil
}

func decodeIDs(ids ...string) ([][32]byte, error) {
	out := make([][32]byte, len(ids))
	for i, id := range ids {
		b, err := idcodec.Decode32(id)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// randomSimpleState draws values the way the demo keeper's random argument
// builder does.
func randomSimpleState(seed int64) (targets.SimpleState, error) {
	r, err := tasks.NewRandomArgs(callenc.MustLookup(targets.SimpleSchemaName), "setAndGetValues", seed)
	if err != nil {
		return targets.SimpleState{}, err
	}
	v, err := r.Build(context.Background())
	if err != nil {
		return targets.SimpleState{}, err
	}
	var s targets.SimpleState
	copy(s.Bytes32[:], v[0].([]byte))
	s.Address = v[1].(common.Address)
	s.Uint256 = v[2].(*big.Int)
	return s, nil
}
