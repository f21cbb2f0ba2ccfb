// Package cli implements the moebius command-line tool.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moebius-network/moebius/common/config"
	"github.com/moebius-network/moebius/keeper/internal/output"
)

// app carries state shared by every command of one invocation.
type app struct {
	cfgFile string
	format  string
	relay   string

	printer *output.Printer
}

// NewRootCmd builds the moebius command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "moebius",
		Short: "Moebius relay CLI",
		Long: `moebius dispatches calls through a Moebius relay and reads their results
back from the relay's correlation records.

Commands that talk to a ledger use the network section of the config file.
On the memory network every invocation bootstraps a fresh devnet.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(a.format)
			if err != nil {
				return err
			}
			a.printer = output.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), format)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: $MOEBIUS_CONFIG_DIR/config.yaml)")
	root.PersistentFlags().StringVarP(&a.format, "output", "o", "table", "output format: table, json, yaml")
	root.PersistentFlags().StringVar(&a.relay, "relay", "", "relay address (overrides relay.address)")

	root.AddCommand(
		a.decodeIDCmd(),
		a.encodeIDCmd(),
		a.schemasCmd(),
		a.encodeCmd(),
		a.decodeResultCmd(),
		a.dispatchCmd(),
		a.fetchCmd(),
		a.devnetCmd(),
		a.watchCmd(),
	)
	return root
}

// Execute runs the root command and reports a failure on stderr.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		root.PrintErrln("Error:", err)
	}
	return err
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return nil, err
	}
	if a.relay != "" {
		cfg.Relay.Address = a.relay
	}
	return cfg, nil
}
