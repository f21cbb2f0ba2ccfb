package cli

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/moebius-network/moebius/common/idcodec"
	"github.com/moebius-network/moebius/keeper/internal/output"
)

// DecodedID is one decoded foreign identifier.
type DecodedID struct {
	Input string `json:"input" yaml:"input"`
	Hex   string `json:"hex" yaml:"hex"`
	Size  int    `json:"size" yaml:"size"`
}

func (a *app) decodeIDCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "decode-id <base58>...",
		Short: "Decode base58 identifiers to hex",
		Long:  "Decode foreign base58 identifiers, such as program and account IDs, into raw bytes.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]DecodedID, 0, len(args))
			for _, in := range args {
				var b []byte
				var err error
				if size > 0 {
					b, err = idcodec.DecodeFixed(in, size)
				} else {
					b, err = idcodec.Decode(in)
				}
				if err != nil {
					return err
				}
				ids = append(ids, DecodedID{Input: in, Hex: hexutil.Encode(b), Size: len(b)})
			}

			return a.printer.Render(ids, func() *output.Table {
				t := output.NewTable("INPUT", "HEX", "BYTES")
				for _, id := range ids {
					t.AddRow(id.Input, id.Hex, strconv.Itoa(id.Size))
				}
				return t
			})
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "required decoded length in bytes (0 accepts any)")
	return cmd
}

func (a *app) encodeIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode-id <hex>",
		Short: "Encode hex bytes as a base58 identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.TrimPrefix(strings.TrimPrefix(args[0], "0x"), "0X")
			b, err := hex.DecodeString(raw)
			if err != nil {
				return fmt.Errorf("%w: %q is not hex", idcodec.ErrMalformedIdentifier, args[0])
			}
			id := DecodedID{Input: idcodec.Encode(b), Hex: hexutil.Encode(b), Size: len(b)}
			return a.printer.Render(id, func() *output.Table {
				t := output.NewTable("BASE58", "BYTES")
				t.AddRow(id.Input, strconv.Itoa(id.Size))
				return t
			})
		},
	}
}
