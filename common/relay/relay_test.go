package relay_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/ledger"
	"github.com/moebius-network/moebius/common/ledger/memledger"
	"github.com/moebius-network/moebius/common/relay"
	"github.com/moebius-network/moebius/common/targets"
)

var (
	programID = [32]byte{0x01}
	accountID = [32]byte{0xaa, 0xbb}
	initial   = targets.SimpleState{
		Bytes32: [32]byte{0x11},
		Address: common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Uint256: big.NewInt(42),
	}
)

type fixture struct {
	ledger *memledger.Ledger
	relay  *relay.Client
	target common.Address
}

func setup(t *testing.T) *fixture {
	t.Helper()
	l := memledger.New()
	relayAddr, err := relay.Deploy(l)
	require.NoError(t, err)
	target, err := targets.DeploySimple(l, programID, accountID, initial)
	require.NoError(t, err)
	return &fixture{ledger: l, relay: relay.NewClient(l, relayAddr), target: target}
}

func (f *fixture) payload(t *testing.T, entryPoint string, args ...interface{}) []byte {
	t.Helper()
	data, err := callenc.MustLookup(targets.SimpleSchemaName).Encode(entryPoint, args...)
	require.NoError(t, err)
	return data
}

func TestDispatch_GetValuesEmitsCurrentState(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	inc, err := f.relay.Dispatch(ctx, relay.DispatchRequest{
		Target:  f.target,
		Payload: f.payload(t, "getValues"),
	}, ledger.InclusionPolicy{})
	require.NoError(t, err)

	require.Len(t, inc.Records, 1)
	rec := inc.Records[0]
	assert.Equal(t, accountID, rec.Key)
	assert.Equal(t, f.relay.Address(), rec.Relay)
	assert.Equal(t, inc.Block, rec.BlockNumber)
	assert.Equal(t, inc.TxHash, rec.TxHash)

	want, err := initial.Pack()
	require.NoError(t, err)
	assert.Equal(t, want, rec.PackedResult)
}

func TestDispatch_SetAndGetValuesEmitsNewState(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	next := targets.SimpleState{
		Bytes32: [32]byte{0x22},
		Address: common.HexToAddress("0x00000000000000000000000000000000000000b2"),
		Uint256: big.NewInt(1_000_000),
	}
	inc, err := f.relay.Dispatch(ctx, relay.DispatchRequest{
		Target:  f.target,
		Payload: f.payload(t, "setAndGetValues", next.Bytes32, next.Address, next.Uint256),
	}, ledger.InclusionPolicy{})
	require.NoError(t, err)
	require.Len(t, inc.Records, 1)

	got, err := targets.DecodeSimple(inc.Records[0].PackedResult)
	require.NoError(t, err)
	assert.Equal(t, next.Bytes32, got.Bytes32)
	assert.Equal(t, next.Address, got.Address)
	assert.Equal(t, 0, next.Uint256.Cmp(got.Uint256))

	target, err := ledger.Bind(f.ledger, targets.SimpleSchemaName, f.target)
	require.NoError(t, err)
	out, err := target.Call(ctx, "getValues")
	require.NoError(t, err)
	assert.Equal(t, accountID, out[0])
	assert.Equal(t, inc.Records[0].PackedResult, out[1])
}

func TestDispatch_TargetFailureEmitsNothing(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	tests := []struct {
		name    string
		target  common.Address
		payload []byte
	}{
		{"unknown selector", f.target, []byte{0xde, 0xad, 0xbe, 0xef}},
		{"malformed arguments", f.target, append(f.payload(t, "setAndGetValues", initial.Bytes32, initial.Address, initial.Uint256), 0x00)},
		{"no code at target", common.HexToAddress("0x00000000000000000000000000000000000000ff"), f.payload(t, "getValues")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.relay.Dispatch(ctx, relay.DispatchRequest{Target: tt.target, Payload: tt.payload}, ledger.InclusionPolicy{})
			assert.ErrorIs(t, err, relay.ErrTargetUnreachable)
			assert.True(t, relay.IsTransient(err))
		})
	}

	logs, err := f.ledger.FilterLogs(ctx, relayLogQuery(f.relay.Address()))
	require.NoError(t, err)
	assert.Empty(t, logs)

	// The failed setAndGetValues left the stored state untouched.
	target, err := ledger.Bind(f.ledger, targets.SimpleSchemaName, f.target)
	require.NoError(t, err)
	out, err := target.Call(ctx, "getValues")
	require.NoError(t, err)
	want, err := initial.Pack()
	require.NoError(t, err)
	assert.Equal(t, want, out[1])
}

func TestExecute_RelayUnavailable(t *testing.T) {
	f := setup(t)
	f.ledger.SetOffline(true)

	_, err := f.relay.Execute(context.Background(), relay.DispatchRequest{Target: f.target, Payload: f.payload(t, "getValues")})
	assert.ErrorIs(t, err, relay.ErrRelayUnavailable)
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
	assert.True(t, relay.IsTransient(err))
}

func TestExecute_FromBlockIsNextBlock(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	head, err := f.ledger.BlockNumber(ctx)
	require.NoError(t, err)

	sub, err := f.relay.Execute(ctx, relay.DispatchRequest{Target: f.target, Payload: f.payload(t, "getValues")})
	require.NoError(t, err)
	assert.Equal(t, head+1, sub.FromBlock)
	assert.Equal(t, f.target, sub.Target)

	inc, err := f.relay.Await(ctx, sub, ledger.InclusionPolicy{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, inc.Block, sub.FromBlock)
}

func TestAwait_InclusionTimeout(t *testing.T) {
	ctx := context.Background()
	l := memledger.New(memledger.WithManualMining())
	relayAddr, err := relay.Deploy(l)
	require.NoError(t, err)
	client := relay.NewClient(l, relayAddr)

	sub, err := client.Execute(ctx, relay.DispatchRequest{Target: common.Address{0x01}, Payload: []byte{}})
	require.NoError(t, err)

	_, err = client.Await(ctx, sub, ledger.InclusionPolicy{Timeout: 10 * time.Millisecond})
	assert.ErrorIs(t, err, ledger.ErrInclusionTimeout)
	assert.True(t, relay.IsTransient(err))
}

func TestRecord_DecodeRejectsForeignLogs(t *testing.T) {
	data, err := relay.EncodeRecord(accountID, []byte{0x01, 0x02})
	require.NoError(t, err)

	tests := []struct {
		name   string
		topics []common.Hash
		data   []byte
	}{
		{"no topics", nil, data},
		{"other topic", []common.Hash{{0x01}}, data},
		{"truncated data", []common.Hash{relay.EventTopic()}, data[:40]},
		{"trailing data", []common.Hash{relay.EventTopic()}, append(append([]byte(nil), data...), 0x00)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := relay.DecodeRecord(logWith(tt.topics, tt.data))
			assert.ErrorIs(t, err, callenc.ErrDecode)
		})
	}

	rec, err := relay.DecodeRecord(logWith([]common.Hash{relay.EventTopic()}, data))
	require.NoError(t, err)
	assert.Equal(t, accountID, rec.Key)
	assert.Equal(t, []byte{0x01, 0x02}, rec.PackedResult)
}

func TestEventTopic(t *testing.T) {
	assert.Equal(t, crypto256("MoebiusData(bytes32,bytes)"), relay.EventTopic())
}
