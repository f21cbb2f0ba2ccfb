package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/correlator"
	"github.com/moebius-network/moebius/common/idcodec"
	"github.com/moebius-network/moebius/common/relay"
	"github.com/moebius-network/moebius/keeper/internal/output"
)

// FetchedRecord is one correlation record.
type FetchedRecord struct {
	Key          string        `json:"correlation_key" yaml:"correlation_key"`
	Block        uint64        `json:"block" yaml:"block"`
	TxHash       string        `json:"tx_hash" yaml:"tx_hash"`
	LogIndex     uint          `json:"log_index" yaml:"log_index"`
	PackedResult string        `json:"packed_result" yaml:"packed_result"`
	Values       []interface{} `json:"values,omitempty" yaml:"values,omitempty"`
}

func (a *app) fetchCmd() *cobra.Command {
	var (
		rawKey    string
		fromBlock uint64
		abiName   string
		types     []string
		latest    bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch correlation records from the relay",
		Long: `Fetch the records the relay emitted under a correlation key, oldest first.
With --abi or --types each PackedResult is decoded.`,
		Example: "  moebius fetch --key Bt9xbg8fz3mQCuk4jwso1Daj9pLwPiXtgHeMZqUhuS9A --abi SimpleContract --latest",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rawKey == "" {
				return errors.New("--key is required")
			}
			key, err := idcodec.ParseKey(rawKey)
			if err != nil {
				return err
			}
			schema, err := tupleFlags(abiName, types)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := a.connect(ctx, 0)
			if err != nil {
				return err
			}
			defer s.close()

			records, err := correlator.New(s.ledger).FetchAll(ctx, s.deployment.Relay, key, fromBlock)
			if err != nil {
				return err
			}
			if latest {
				if len(records) == 0 {
					return fmt.Errorf("%w: key %s from block %d", correlator.ErrNotFound, idcodec.FormatKey(key), fromBlock)
				}
				records = records[len(records)-1:]
			}

			out, err := fetchedRecords(records, schema)
			if err != nil {
				return err
			}
			if len(out) == 0 {
				a.printer.Info("No records for %s from block %d", idcodec.FormatKey(key), fromBlock)
			}
			return a.printer.Render(out, func() *output.Table {
				t := output.NewTable("BLOCK", "TX", "LOG", "RESULT")
				for _, r := range out {
					result := r.PackedResult
					if r.Values != nil {
						result = formatList(r.Values)
					}
					t.AddRow(fmt.Sprint(r.Block), r.TxHash, fmt.Sprint(r.LogIndex), result)
				}
				return t
			})
		},
	}
	cmd.Flags().StringVar(&rawKey, "key", "", "correlation key, base58 or 0x-hex")
	cmd.Flags().Uint64Var(&fromBlock, "from-block", 0, "first block to search")
	cmd.Flags().StringVar(&abiName, "abi", "", "decode results with this ABI's result schema")
	cmd.Flags().StringSliceVar(&types, "types", nil, "decode results with these comma-separated types")
	cmd.Flags().BoolVar(&latest, "latest", false, "only the most recent record")
	return cmd
}

func fetchedRecords(records []relay.Record, schema *callenc.Tuple) ([]FetchedRecord, error) {
	out := make([]FetchedRecord, 0, len(records))
	for i := range records {
		rec := &records[i]
		fr := FetchedRecord{
			Key:          idcodec.FormatKey(rec.Key),
			Block:        rec.BlockNumber,
			TxHash:       rec.TxHash.Hex(),
			LogIndex:     rec.LogIndex,
			PackedResult: hexutil.Encode(rec.PackedResult),
		}
		if schema != nil {
			values, err := correlator.Decode(rec, schema)
			if err != nil {
				return nil, fmt.Errorf("record at block %d: %w", rec.BlockNumber, err)
			}
			fr.Values = callenc.FormatValues(values)
		}
		out = append(out, fr)
	}
	return out, nil
}

func formatList(values []interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
