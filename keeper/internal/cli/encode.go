package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/targets"
	"github.com/moebius-network/moebius/keeper/internal/output"
)

// EntryPoint describes one callable method of a schema.
type EntryPoint struct {
	ABI       string `json:"abi" yaml:"abi"`
	Signature string `json:"signature" yaml:"signature"`
	Selector  string `json:"selector" yaml:"selector"`
}

// EncodedCall is the payload for one dispatch.
type EncodedCall struct {
	ABI        string `json:"abi" yaml:"abi"`
	EntryPoint string `json:"entry_point" yaml:"entry_point"`
	Selector   string `json:"selector" yaml:"selector"`
	Payload    string `json:"payload" yaml:"payload"`
}

// DecodedResult is a PackedResult decoded against a tuple schema.
type DecodedResult struct {
	Schema string        `json:"schema" yaml:"schema"`
	Values []interface{} `json:"values" yaml:"values"`
}

func (a *app) schemasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List the known ABI schemas and their entry points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var eps []EntryPoint
			for _, name := range callenc.Names() {
				schema, err := callenc.Lookup(name)
				if err != nil {
					return err
				}
				methods := schema.ABI().Methods
				sigs := make([]string, 0, len(methods))
				for n := range methods {
					sigs = append(sigs, n)
				}
				sort.Strings(sigs)
				for _, n := range sigs {
					m := methods[n]
					eps = append(eps, EntryPoint{ABI: name, Signature: m.Sig, Selector: hexutil.Encode(m.ID)})
				}
			}

			return a.printer.Render(eps, func() *output.Table {
				t := output.NewTable("ABI", "SELECTOR", "SIGNATURE")
				for _, ep := range eps {
					t.AddRow(ep.ABI, ep.Selector, ep.Signature)
				}
				return t
			})
		},
	}
}

func (a *app) encodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <abi> <entry-point> [args...]",
		Short: "Encode a call payload",
		Long: `Encode the payload for an entry point. Arguments are literal text:
decimal or 0x-hex integers, 0x-hex bytes and addresses, true/false.`,
		Example: "  moebius encode UniswapOracle updateAndConsult 0xc778417e063141139fce010982780140aa0cd5ab 1000000000000000000",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			call, err := encodeCall(args[0], args[1], args[2:])
			if err != nil {
				return err
			}
			return a.printer.Render(call, func() *output.Table {
				t := output.NewTable("ENTRY POINT", "SELECTOR", "PAYLOAD")
				t.AddRow(call.ABI+"."+call.EntryPoint, call.Selector, call.Payload)
				return t
			})
		},
	}
}

func encodeCall(abiName, entryPoint string, literals []string) (*EncodedCall, error) {
	schema, err := callenc.Lookup(abiName)
	if err != nil {
		return nil, err
	}
	payload, err := schema.Encode(entryPoint, toArgs(literals)...)
	if err != nil {
		return nil, err
	}
	return &EncodedCall{
		ABI:        abiName,
		EntryPoint: entryPoint,
		Selector:   hexutil.Encode(payload[:callenc.SelectorSize]),
		Payload:    hexutil.Encode(payload),
	}, nil
}

func (a *app) decodeResultCmd() *cobra.Command {
	var abiName string
	var types []string
	cmd := &cobra.Command{
		Use:   "decode-result <0x-packed-result>",
		Short: "Decode a PackedResult",
		Long:  "Decode a PackedResult against the result schema of --abi or an explicit --types list.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := tupleFlags(abiName, types)
			if err != nil {
				return err
			}
			if schema == nil {
				return errors.New("one of --abi or --types is required")
			}
			data, err := hexutil.Decode(args[0])
			if err != nil {
				return fmt.Errorf("%w: %v", callenc.ErrDecode, err)
			}
			values, err := schema.Unpack(data)
			if err != nil {
				return err
			}

			res := DecodedResult{Schema: schema.String(), Values: callenc.FormatValues(values)}
			return a.printer.Render(res, func() *output.Table {
				t := output.NewTable("#", "TYPE", "VALUE")
				for i, typ := range schema.Types() {
					t.AddRow(fmt.Sprint(i), typ, fmt.Sprint(res.Values[i]))
				}
				return t
			})
		},
	}
	cmd.Flags().StringVar(&abiName, "abi", "", "ABI whose result schema to use")
	cmd.Flags().StringSliceVar(&types, "types", nil, "comma-separated result types, e.g. bytes32,address,uint256")
	return cmd
}

// tupleFlags resolves --types or --abi to a result schema. Neither yields nil.
func tupleFlags(abiName string, types []string) (*callenc.Tuple, error) {
	if len(types) > 0 {
		return callenc.NewTuple(types...)
	}
	if abiName != "" {
		return targets.ResultSchema(abiName)
	}
	return nil, nil
}

func toArgs(literals []string) []interface{} {
	out := make([]interface{}, len(literals))
	for i, l := range literals {
		out[i] = strings.TrimSpace(l)
	}
	return out
}
