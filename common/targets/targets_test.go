package targets

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/ledger"
	"github.com/moebius-network/moebius/common/ledger/memledger"
)

var (
	weth     = common.HexToAddress("0xc778417e063141139fce010982780140aa0cd5ab")
	uni      = common.HexToAddress("0x1f9840a85d5af5bf1d1762f925bdaddc4201f984")
	oneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func TestSimple_ConstructAndRead(t *testing.T) {
	ctx := context.Background()
	l := memledger.New()

	state := SimpleState{Bytes32: [32]byte{0x07}, Address: common.Address{0x08}, Uint256: big.NewInt(9)}
	addr, err := DeploySimple(l, [32]byte{0x01}, [32]byte{0x02}, state)
	require.NoError(t, err)

	c, err := ledger.Bind(l, SimpleSchemaName, addr)
	require.NoError(t, err)

	out, err := c.Call(ctx, "programId")
	require.NoError(t, err)
	assert.Equal(t, [32]byte{0x01}, out[0])

	out, err = c.Call(ctx, "getValues")
	require.NoError(t, err)
	assert.Equal(t, [32]byte{0x02}, out[0])

	got, err := DecodeSimple(out[1].([]byte))
	require.NoError(t, err)
	assert.Equal(t, state.Bytes32, got.Bytes32)
	assert.Equal(t, state.Address, got.Address)
	assert.Equal(t, 0, state.Uint256.Cmp(got.Uint256))
}

func TestSimple_SetAndGetValues(t *testing.T) {
	ctx := context.Background()
	l := memledger.New()

	addr, err := DeploySimple(l, [32]byte{}, [32]byte{0x02}, SimpleState{Uint256: big.NewInt(0)})
	require.NoError(t, err)
	c, err := ledger.Bind(l, SimpleSchemaName, addr)
	require.NoError(t, err)

	hash, err := c.Transact(ctx, nil, "setAndGetValues", "0x"+common.Bytes2Hex(make([]byte, 32)), common.Address{0x09}, "123")
	require.NoError(t, err)
	r, err := l.WaitForInclusion(ctx, hash)
	require.NoError(t, err)
	require.True(t, ledger.Succeeded(r))

	out, err := c.Call(ctx, "getValues")
	require.NoError(t, err)
	got, err := DecodeSimple(out[1].([]byte))
	require.NoError(t, err)
	assert.Equal(t, common.Address{0x09}, got.Address)
	assert.Equal(t, int64(123), got.Uint256.Int64())
}

func TestSimple_DirectTransactionFailsAtomically(t *testing.T) {
	ctx := context.Background()
	l := memledger.New()

	state := SimpleState{Uint256: big.NewInt(5)}
	addr, err := DeploySimple(l, [32]byte{}, [32]byte{0x02}, state)
	require.NoError(t, err)

	input, err := callenc.MustLookup(SimpleSchemaName).Encode("setAndGetValues", [32]byte{0x01}, common.Address{0x01}, big.NewInt(1))
	require.NoError(t, err)
	input = input[:len(input)-1]

	hash, err := l.SendTransaction(ctx, ledger.TxRequest{To: addr, Data: input})
	require.NoError(t, err)
	r, err := l.WaitForInclusion(ctx, hash)
	require.NoError(t, err)
	assert.False(t, ledger.Succeeded(r))

	c, err := ledger.Bind(l, SimpleSchemaName, addr)
	require.NoError(t, err)
	out, err := c.Call(ctx, "getValues")
	require.NoError(t, err)
	want, err := state.Pack()
	require.NoError(t, err)
	assert.Equal(t, want, out[1])
}

func TestOracle_UpdateAndConsult(t *testing.T) {
	ctx := context.Background()
	l := memledger.New()

	// 1 WETH = 2000 UNI
	prices := Ratio{Base: weth, Num: big.NewInt(2000), Den: big.NewInt(1)}
	addr, err := DeployOracle(l, prices, OracleParams{AccountID: [32]byte{0x0a}, WETH: weth, UNI: uni})
	require.NoError(t, err)
	c, err := ledger.Bind(l, OracleSchemaName, addr)
	require.NoError(t, err)

	out, err := c.Call(ctx, "getValues")
	require.NoError(t, err)
	before, err := DecodeOracle(out[1].([]byte))
	require.NoError(t, err)
	// uni sorts below weth
	assert.Equal(t, uni, before.Token0)
	assert.Equal(t, weth, before.Token1)
	assert.Equal(t, 0, before.Amount0.Sign())

	out, err = c.Call(ctx, "updateAndConsult", weth, oneEther)
	require.NoError(t, err)
	after, err := DecodeOracle(out[1].([]byte))
	require.NoError(t, err)
	assert.Equal(t, 0, after.Amount1.Cmp(oneEther))
	assert.Equal(t, 0, after.Amount0.Cmp(new(big.Int).Mul(oneEther, big.NewInt(2000))))
}

func TestOracle_UnsupportedTokenReverts(t *testing.T) {
	l := memledger.New()
	addr, err := DeployOracle(l, Ratio{Base: weth, Num: big.NewInt(1), Den: big.NewInt(1)}, OracleParams{WETH: weth, UNI: uni})
	require.NoError(t, err)
	c, err := ledger.Bind(l, OracleSchemaName, addr)
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "updateAndConsult", common.Address{0x01}, oneEther)
	assert.ErrorIs(t, err, ledger.ErrReverted)
	assert.ErrorContains(t, err, "unsupported token")
}

func TestOracle_IdenticalTokensRejected(t *testing.T) {
	_, err := DeployOracle(memledger.New(), Ratio{}, OracleParams{WETH: weth, UNI: weth})
	assert.ErrorIs(t, err, ledger.ErrReverted)
}

func TestRatio_Quote(t *testing.T) {
	r := Ratio{Base: weth, Num: big.NewInt(3), Den: big.NewInt(2)}

	tests := []struct {
		name    string
		in, out common.Address
		amount  int64
		want    int64
		wantErr bool
	}{
		{"base in", weth, uni, 10, 15, false},
		{"base out", uni, weth, 15, 10, false},
		{"unrelated", uni, common.Address{0x01}, 1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Quote(tt.in, tt.out, big.NewInt(tt.amount))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoPrice)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Int64())
		})
	}

	_, err := Ratio{Base: weth}.Quote(weth, uni, big.NewInt(1))
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestResultSchema(t *testing.T) {
	s, err := ResultSchema(SimpleSchemaName)
	require.NoError(t, err)
	assert.Equal(t, "(bytes32,address,uint256)", s.String())

	s, err = ResultSchema(OracleSchemaName)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())

	_, err = ResultSchema("Nope")
	assert.ErrorIs(t, err, callenc.ErrUnknownSchema)
}
