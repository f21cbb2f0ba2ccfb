package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/config"
	"github.com/moebius-network/moebius/common/correlator"
	"github.com/moebius-network/moebius/common/idcodec"
	"github.com/moebius-network/moebius/common/logging"
	"github.com/moebius-network/moebius/common/relay"
	"github.com/moebius-network/moebius/keeper/internal/output"
	"github.com/moebius-network/moebius/keeper/internal/scheduler"
	"github.com/moebius-network/moebius/keeper/internal/tasks"
)

// DispatchResult is the outcome of one dispatch.
type DispatchResult struct {
	CycleID  string        `json:"cycle_id" yaml:"cycle_id"`
	Target   string        `json:"target" yaml:"target"`
	Call     string        `json:"call" yaml:"call"`
	Outcome  string        `json:"outcome" yaml:"outcome"`
	TxHash   string        `json:"tx_hash,omitempty" yaml:"tx_hash,omitempty"`
	Block    uint64        `json:"block,omitempty" yaml:"block,omitempty"`
	Records  int           `json:"records" yaml:"records"`
	Key      string        `json:"correlation_key,omitempty" yaml:"correlation_key,omitempty"`
	Values   []interface{} `json:"values,omitempty" yaml:"values,omitempty"`
	Duration string        `json:"duration" yaml:"duration"`
}

type dispatchFlags struct {
	target         string
	random         bool
	seed           int64
	gasLimit       uint64
	gasPrice       string
	timeout        time.Duration
	confirm        bool
	confirmKey     string
	confirmTypes   []string
	confirmTimeout time.Duration
}

func (a *app) dispatchCmd() *cobra.Command {
	f := &dispatchFlags{}
	cmd := &cobra.Command{
		Use:   "dispatch <abi> <entry-point> [args...]",
		Short: "Dispatch one call through the relay",
		Long: `Encode a call, dispatch it through the relay and wait for inclusion.
With --confirm the result is read back from the relay's correlation record.
On the memory network the target and correlation key default to the devnet
contract for the ABI.`,
		Example: `  moebius dispatch SimpleContract getValues --confirm
  moebius dispatch SimpleContract setAndGetValues --random --confirm -o json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.connect(ctx, f.seed)
			if err != nil {
				return err
			}
			defer s.close()

			taskCfg, err := f.taskConfig(s, args[0], args[1], args[2:])
			if err != nil {
				return err
			}
			task, err := tasks.Build(taskCfg, s.deployment)
			if err != nil {
				return err
			}

			logger := logging.NewWithWriter(cmd.ErrOrStderr(), slog.LevelWarn, "text")
			k := scheduler.New(task, relay.NewClient(s.ledger, s.deployment.Relay),
				scheduler.WithLogger(logger),
				scheduler.WithConfirmer(correlator.New(s.ledger)),
			)
			res := k.RunCycle(ctx)

			out := DispatchResult{
				CycleID:  res.CycleID,
				Target:   task.Target.Hex(),
				Call:     taskCfg.ABI + "." + taskCfg.EntryPoint,
				Outcome:  res.Outcome,
				Records:  len(res.Records),
				Values:   callenc.FormatValues(res.Values),
				Duration: res.Duration.String(),
			}
			if res.Block > 0 {
				out.TxHash = res.TxHash.Hex()
				out.Block = res.Block
			}
			if task.Confirm != nil {
				out.Key = idcodec.FormatKey(task.Confirm.Key)
			}
			if res.Err != nil {
				return fmt.Errorf("dispatch %s: %s: %w", out.Call, res.Outcome, res.Err)
			}

			a.printer.Success("%s included in block %d", out.Call, out.Block)
			return a.printer.Render(out, func() *output.Table {
				t := output.NewTable("FIELD", "VALUE")
				t.AddRow("target", out.Target)
				t.AddRow("tx", out.TxHash)
				t.AddRow("block", fmt.Sprint(out.Block))
				t.AddRow("records", fmt.Sprint(out.Records))
				if out.Key != "" {
					t.AddRow("correlation key", out.Key)
				}
				for i, v := range out.Values {
					t.AddRow(fmt.Sprintf("value[%d]", i), fmt.Sprint(v))
				}
				return t
			})
		},
	}

	cmd.Flags().StringVar(&f.target, "target", "", "target contract address")
	cmd.Flags().BoolVar(&f.random, "random", false, "generate random arguments instead of reading them from the command line")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "seed for --random and the devnet (0 is random)")
	cmd.Flags().Uint64Var(&f.gasLimit, "gas-limit", 0, "gas limit (0 estimates)")
	cmd.Flags().StringVar(&f.gasPrice, "gas-price", "", "gas price in wei (empty asks the node)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 2*time.Minute, "inclusion timeout")
	cmd.Flags().BoolVar(&f.confirm, "confirm", false, "read the result back from the correlation record")
	cmd.Flags().StringVar(&f.confirmKey, "key", "", "correlation key, base58 or 0x-hex")
	cmd.Flags().StringSliceVar(&f.confirmTypes, "types", nil, "result types overriding the ABI's result schema")
	cmd.Flags().DurationVar(&f.confirmTimeout, "confirm-timeout", time.Minute, "how long to wait for the correlation record")
	return cmd
}

func (f *dispatchFlags) taskConfig(s *session, abiName, entryPoint string, args []string) (config.TaskConfig, error) {
	cfg := config.TaskConfig{
		Name:             "cli",
		Target:           f.target,
		ABI:              abiName,
		EntryPoint:       entryPoint,
		Args:             args,
		ArgsMode:         config.ArgsStatic,
		Seed:             f.seed,
		Period:           time.Second,
		InclusionTimeout: f.timeout,
		GasLimit:         f.gasLimit,
		GasPrice:         f.gasPrice,
	}
	if f.random {
		if len(args) > 0 {
			return cfg, fmt.Errorf("--random takes no arguments, got %d", len(args))
		}
		cfg.ArgsMode = config.ArgsRandom
	}
	if !f.confirm {
		return cfg, nil
	}

	key := f.confirmKey
	if key == "" && s.devnet != nil {
		if k, ok := s.devnet.CorrelationKey(abiName); ok {
			key = idcodec.FormatKey(k)
		}
	}
	if key == "" {
		return cfg, errors.New("--confirm needs --key")
	}
	cfg.Confirm = config.ConfirmConfig{
		Enabled:        true,
		CorrelationKey: key,
		ResultTypes:    f.confirmTypes,
		PollInterval:   500 * time.Millisecond,
		Timeout:        f.confirmTimeout,
	}
	return cfg, nil
}
