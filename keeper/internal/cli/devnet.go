package cli

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/keeper/internal/devnet"
	"github.com/moebius-network/moebius/keeper/internal/output"
)

// DevnetReport is the deployment and the demo steps run against it.
type DevnetReport struct {
	Relay  string        `json:"relay" yaml:"relay"`
	Simple string        `json:"simple_contract" yaml:"simple_contract"`
	Oracle string        `json:"uniswap_oracle" yaml:"uniswap_oracle"`
	Steps  []devnet.Step `json:"steps" yaml:"steps"`
}

func (a *app) devnetCmd() *cobra.Command {
	var (
		seed  int64
		price int64
	)
	cmd := &cobra.Command{
		Use:   "devnet",
		Short: "Run the dispatch demo on an in-process devnet",
		Long: `Bootstrap an in-process ledger with the relay, a SimpleContract and a
UniswapOracle, then dispatch a read, a write and an oracle update through the
relay and read each result back from its correlation record.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := devnet.Options{Seed: seed}
			if price > 0 {
				opts.UNIPerWETH = big.NewInt(price)
			}
			n, err := devnet.Bootstrap(opts)
			if err != nil {
				return err
			}
			steps, err := n.Demo(cmd.Context())
			if err != nil {
				return err
			}
			for i := range steps {
				steps[i].Values = callenc.FormatValues(steps[i].Values)
			}

			report := DevnetReport{
				Relay:  n.Relay.Hex(),
				Simple: n.Simple.Hex(),
				Oracle: n.Oracle.Hex(),
				Steps:  steps,
			}
			a.printer.Info("relay %s", report.Relay)
			return a.printer.Render(report, func() *output.Table {
				t := output.NewTable("STEP", "BLOCK", "TX", "VALUES")
				for _, s := range steps {
					t.AddRow(s.Name, fmt.Sprint(s.Block), s.TxHash, formatList(s.Values))
				}
				return t
			})
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "seed for the SimpleContract's values (0 is random)")
	cmd.Flags().Int64Var(&price, "uni-per-weth", 0, "oracle price in UNI per WETH (default 2000)")
	return cmd
}
