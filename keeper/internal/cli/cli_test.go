package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/correlator"
	"github.com/moebius-network/moebius/common/idcodec"
	"github.com/moebius-network/moebius/keeper/internal/devnet"
	"github.com/moebius-network/moebius/keeper/internal/metrics"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("MOEBIUS_CONFIG_DIR", t.TempDir())

	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func runJSON(t *testing.T, v interface{}, args ...string) {
	t.Helper()
	out, _, err := run(t, append(args, "-o", "json")...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func TestCommandsRegistered(t *testing.T) {
	root := NewRootCmd()
	registered := make(map[string]bool)
	for _, c := range root.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range []string{"decode-id", "encode-id", "schemas", "encode", "decode-result", "dispatch", "fetch", "devnet", "watch"} {
		assert.True(t, registered[name], "command %s not registered", name)
	}

	for _, flag := range []string{"config", "output", "relay"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "flag %s", flag)
	}
}

func TestInvalidOutputFormat(t *testing.T) {
	_, _, err := run(t, "schemas", "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestDecodeID(t *testing.T) {
	want, err := idcodec.Decode32(devnet.SimpleAccountID)
	require.NoError(t, err)

	var ids []DecodedID
	runJSON(t, &ids, "decode-id", devnet.SimpleAccountID, devnet.OracleProgramID)
	require.Len(t, ids, 2)
	assert.Equal(t, hexutil.Encode(want[:]), ids[0].Hex)
	assert.Equal(t, 32, ids[0].Size)

	out, _, err := run(t, "decode-id", devnet.SimpleAccountID)
	require.NoError(t, err)
	assert.Contains(t, out, "INPUT")
	assert.Contains(t, out, hexutil.Encode(want[:]))
}

func TestDecodeID_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"invalid alphabet", []string{"decode-id", "0OIl"}},
		{"wrong size", []string{"decode-id", "--size", "20", devnet.SimpleAccountID}},
		{"encode not hex", []string{"encode-id", "0xzz"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			assert.ErrorIs(t, err, idcodec.ErrMalformedIdentifier)
		})
	}
}

func TestEncodeID_RoundTrip(t *testing.T) {
	raw, err := idcodec.Decode(devnet.OracleAccountID)
	require.NoError(t, err)

	var id DecodedID
	runJSON(t, &id, "encode-id", hexutil.Encode(raw))
	assert.Equal(t, devnet.OracleAccountID, id.Input)
}

func TestSchemas(t *testing.T) {
	var eps []EntryPoint
	runJSON(t, &eps, "schemas")

	sigs := make(map[string]string)
	for _, ep := range eps {
		sigs[ep.ABI+"."+ep.Signature] = ep.Selector
	}
	sel, ok := sigs["SimpleContract.setAndGetValues(bytes32,address,uint256)"]
	require.True(t, ok)
	assert.Len(t, sel, 10)
	assert.Contains(t, sigs, "UniswapOracle.updateAndConsult(address,uint256)")
}

func TestEncode(t *testing.T) {
	var call EncodedCall
	runJSON(t, &call, "encode", "UniswapOracle", "updateAndConsult", devnet.WETH.Hex(), "1000000000000000000")

	want, err := callenc.MustLookup("UniswapOracle").Encode("updateAndConsult", devnet.WETH, "1000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, hexutil.Encode(want), call.Payload)
	assert.True(t, strings.HasPrefix(call.Payload, call.Selector))
}

func TestEncode_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown abi", []string{"encode", "Vault", "deposit"}},
		{"unknown entry point", []string{"encode", "SimpleContract", "nope"}},
		{"too few args", []string{"encode", "UniswapOracle", "updateAndConsult", devnet.WETH.Hex()}},
		{"bad literal", []string{"encode", "UniswapOracle", "updateAndConsult", "not-an-address", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			require.Error(t, err)
			assert.True(t, callenc.IsEncoding(err), err)
		})
	}
}

func TestDecodeResult(t *testing.T) {
	addr := common.HexToAddress("0xa1")
	packed, err := callenc.MustTuple("bytes32", "address", "uint256").Pack([32]byte{0x09}, addr, "42")
	require.NoError(t, err)

	var res DecodedResult
	runJSON(t, &res, "decode-result", "--abi", "SimpleContract", hexutil.Encode(packed))
	assert.Equal(t, "(bytes32,address,uint256)", res.Schema)
	assert.Equal(t, []interface{}{"0x09" + strings.Repeat("0", 62), addr.Hex(), "42"}, res.Values)

	_, _, err = run(t, "decode-result", "--types", "bool,bool", hexutil.Encode(packed))
	assert.ErrorIs(t, err, callenc.ErrDecode)

	_, _, err = run(t, "decode-result", hexutil.Encode(packed))
	assert.ErrorContains(t, err, "--abi or --types")
}

func TestDispatch_MemoryNetwork(t *testing.T) {
	var res DispatchResult
	runJSON(t, &res, "dispatch", "SimpleContract", "getValues", "--confirm", "--seed", "7")

	n, err := devnet.Bootstrap(devnet.Options{Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeSuccess, res.Outcome)
	assert.Equal(t, n.Simple.Hex(), res.Target)
	assert.Equal(t, idcodec.FormatKey(n.SimpleKey), res.Key)
	assert.NotZero(t, res.Block)
	assert.Equal(t, 1, res.Records)
	require.Len(t, res.Values, 3)
}

func TestDispatch_RandomWrite(t *testing.T) {
	var res DispatchResult
	runJSON(t, &res, "dispatch", "SimpleContract", "setAndGetValues", "--random", "--seed", "3", "--confirm")
	assert.Equal(t, metrics.OutcomeSuccess, res.Outcome)
	require.Len(t, res.Values, 3)
}

func TestDispatch_TableOutput(t *testing.T) {
	out, _, err := run(t, "dispatch", "UniswapOracle", "updateAndConsult", devnet.WETH.Hex(), "1000000000000000000", "--confirm")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ UniswapOracle.updateAndConsult included in block")
	assert.Contains(t, out, "value[3]")
}

func TestDispatch_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"random with args", []string{"dispatch", "SimpleContract", "getValues", "--random", "x"}, "--random takes no arguments"},
		{"argument count", []string{"dispatch", "SimpleContract", "setAndGetValues", "0x01"}, "arguments"},
		{"no devnet target", []string{"dispatch", "Moebius", "execute", "--random"}, "no target configured"},
		{"malformed key", []string{"dispatch", "SimpleContract", "getValues", "--confirm", "--key", "0OIl"}, "malformed identifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestFetch_MemoryNetwork(t *testing.T) {
	key := idcodec.FormatKey([32]byte{0x42})

	var recs []FetchedRecord
	runJSON(t, &recs, "fetch", "--key", key)
	assert.Empty(t, recs)

	_, _, err := run(t, "fetch", "--key", key, "--latest")
	assert.ErrorIs(t, err, correlator.ErrNotFound)

	_, _, err = run(t, "fetch")
	assert.ErrorContains(t, err, "--key is required")

	_, _, err = run(t, "fetch", "--key", "0x1234")
	assert.ErrorIs(t, err, idcodec.ErrMalformedIdentifier)
}

func TestFetchedRecords(t *testing.T) {
	n, err := devnet.Bootstrap(devnet.Options{Seed: 1})
	require.NoError(t, err)
	steps, err := n.Demo(t.Context())
	require.NoError(t, err)

	records, err := correlator.New(n.Ledger).FetchAll(t.Context(), n.Relay, n.SimpleKey, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	out, err := fetchedRecords(records, callenc.MustTuple("bytes32", "address", "uint256"))
	require.NoError(t, err)
	assert.Equal(t, steps[1].Block, out[1].Block)
	assert.Equal(t, steps[1].TxHash, out[1].TxHash)
	assert.Len(t, out[1].Values, 3)

	_, err = fetchedRecords(records, callenc.MustTuple("bool"))
	assert.ErrorIs(t, err, callenc.ErrDecode)
}

func TestDevnet(t *testing.T) {
	out, _, err := run(t, "devnet", "--seed", "5", "-o", "yaml")
	require.NoError(t, err)

	var report DevnetReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.True(t, common.IsHexAddress(report.Relay))
	require.Len(t, report.Steps, 3)
	assert.Equal(t, "oracle updateAndConsult", report.Steps[2].Name)
	assert.Len(t, report.Steps[2].Values, 4)
}
