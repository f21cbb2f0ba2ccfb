package targets

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/ledger/memledger"
)

const (
	slotFactory = "factory"
	slotToken0  = "token0"
	slotToken1  = "token1"
)

// ErrNoPrice is returned by a PriceSource that cannot quote a pair.
var ErrNoPrice = errors.New("no price for pair")

// PriceSource quotes how much of tokenOut amountIn of tokenIn is worth.
type PriceSource interface {
	Quote(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
}

// Ratio prices Base at Num/Den units of any other token.
type Ratio struct {
	Base     common.Address
	Num, Den *big.Int
}

func (r Ratio) Quote(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	if r.Num == nil || r.Den == nil || r.Num.Sign() <= 0 || r.Den.Sign() <= 0 {
		return nil, ErrNoPrice
	}
	out := new(big.Int)
	switch r.Base {
	case tokenIn:
		out.Mul(amountIn, r.Num).Quo(out, r.Den)
	case tokenOut:
		out.Mul(amountIn, r.Den).Quo(out, r.Num)
	default:
		return nil, ErrNoPrice
	}
	return out, nil
}

// OracleState is the decoded PackedResult of UniswapOracle. Amounts satisfy
// Amount0*price0 = Amount1*price1 at the last update.
type OracleState struct {
	Token0  common.Address
	Amount0 *big.Int
	Token1  common.Address
	Amount1 *big.Int
}

// Pack encodes the state as OracleValues.
func (s OracleState) Pack() ([]byte, error) {
	return OracleValues.Pack(s.Token0, s.Amount0, s.Token1, s.Amount1)
}

// DecodeOracle decodes a UniswapOracle PackedResult.
func DecodeOracle(packed []byte) (OracleState, error) {
	v, err := OracleValues.Unpack(packed)
	if err != nil {
		return OracleState{}, err
	}
	return OracleState{
		Token0:  v[0].(common.Address),
		Amount0: v[1].(*big.Int),
		Token1:  v[2].(common.Address),
		Amount1: v[3].(*big.Int),
	}, nil
}

// Oracle refreshes a two-token price snapshot from a PriceSource.
type Oracle struct {
	adapter
	prices PriceSource
}

var _ memledger.Program = (*Oracle)(nil)

// NewOracle returns the UniswapOracle program quoting from prices.
func NewOracle(prices PriceSource) *Oracle {
	o := &Oracle{adapter: adapter{schema: callenc.MustLookup(OracleSchemaName)}, prices: prices}
	o.handlers = map[string]func(*memledger.Env, []interface{}) ([]interface{}, error){
		"getValues":        getValues,
		"updateAndConsult": o.updateAndConsult,
		"programId":        programID,
	}
	return o
}

// Init sorts the pair the way the exchange does, token0 < token1.
func (o *Oracle) Init(env *memledger.Env, ctorArgs []byte) error {
	args, err := o.schema.DecodeConstructor(ctorArgs)
	if err != nil {
		return err
	}
	if err := initIdentity(env, args[0].([32]byte), args[1].([32]byte)); err != nil {
		return err
	}
	factory, weth, uni := args[2].(common.Address), args[3].(common.Address), args[4].(common.Address)
	if weth == uni {
		return memledger.Revert("identical pair tokens")
	}
	token0, token1 := weth, uni
	if bytes.Compare(token1.Bytes(), token0.Bytes()) < 0 {
		token0, token1 = token1, token0
	}
	for slot, v := range map[string][]byte{slotFactory: factory.Bytes(), slotToken0: token0.Bytes(), slotToken1: token1.Bytes()} {
		if err := env.Store(slot, v); err != nil {
			return err
		}
	}
	return o.store(env, OracleState{Token0: token0, Amount0: new(big.Int), Token1: token1, Amount1: new(big.Int)})
}

func (o *Oracle) Invoke(env *memledger.Env, input []byte) ([]byte, error) {
	return o.invoke(env, input)
}

func (o *Oracle) updateAndConsult(env *memledger.Env, args []interface{}) ([]interface{}, error) {
	token, amountIn := args[0].(common.Address), args[1].(*big.Int)
	token0 := common.BytesToAddress(env.Load(slotToken0))
	token1 := common.BytesToAddress(env.Load(slotToken1))

	var other common.Address
	switch token {
	case token0:
		other = token1
	case token1:
		other = token0
	default:
		return nil, memledger.Revert("unsupported token %s", token.Hex())
	}

	amountOut, err := o.prices.Quote(token, other, amountIn)
	if err != nil {
		return nil, memledger.Revert("consult %s: %v", token.Hex(), err)
	}

	state := OracleState{Token0: token0, Amount0: amountIn, Token1: token1, Amount1: amountOut}
	if token == token1 {
		state.Amount0, state.Amount1 = amountOut, amountIn
	}
	if err := o.store(env, state); err != nil {
		return nil, err
	}
	return getValues(env, nil)
}

func (o *Oracle) store(env *memledger.Env, s OracleState) error {
	packed, err := s.Pack()
	if err != nil {
		return err
	}
	return env.Store(slotValues, packed)
}

// OracleParams are the construction parameters of UniswapOracle.
type OracleParams struct {
	ProgramID [32]byte
	AccountID [32]byte
	Factory   common.Address
	WETH      common.Address
	UNI       common.Address
}

// DeployOracle installs a UniswapOracle on l.
func DeployOracle(l *memledger.Ledger, prices PriceSource, p OracleParams) (common.Address, error) {
	ctor, err := callenc.MustLookup(OracleSchemaName).EncodeConstructor(p.ProgramID, p.AccountID, p.Factory, p.WETH, p.UNI)
	if err != nil {
		return common.Address{}, err
	}
	return l.Deploy(NewOracle(prices), ctor)
}
