package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/idcodec"
	"github.com/moebius-network/moebius/common/logging"
	"github.com/moebius-network/moebius/common/messaging"
	natsclient "github.com/moebius-network/moebius/common/messaging/nats"
	keepernats "github.com/moebius-network/moebius/keeper/internal/nats"
	"github.com/moebius-network/moebius/keeper/internal/output"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		rawKey  string
		abiName string
		types   []string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream correlation records published by a keeper",
		Long: `Subscribe to the record events a keeper's relay watcher publishes to NATS
and print each one as it arrives. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var key *[32]byte
			if rawKey != "" {
				k, err := idcodec.ParseKey(rawKey)
				if err != nil {
					return err
				}
				key = &k
			}
			schema, err := tupleFlags(abiName, types)
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			logger := logging.NewWithWriter(cmd.ErrOrStderr(), slog.LevelWarn, "text")
			client, err := natsclient.NewClient(natsclient.FromConfig(cfg.NATS, "moebius-cli"), logger)
			if err != nil {
				return err
			}
			defer client.Close()

			a.printer.Info("watching %s", subjectFor(key))
			return a.streamRecords(cmd.Context(), client, key, schema)
		},
	}
	cmd.Flags().StringVar(&rawKey, "key", "", "only records for this correlation key")
	cmd.Flags().StringVar(&abiName, "abi", "", "decode results with this ABI's result schema")
	cmd.Flags().StringSliceVar(&types, "types", nil, "decode results with these comma-separated types")
	return cmd
}

// streamRecords prints record events from sub until ctx is done. Events are
// printed one at a time; json and yaml emit one document per event.
func (a *app) streamRecords(ctx context.Context, sub messaging.Subscriber, key *[32]byte, schema *callenc.Tuple) error {
	var mu sync.Mutex
	s, err := keepernats.SubscribeRecords(sub, key, func(_ context.Context, ev *keepernats.RecordObservedEvent) error {
		rec := FetchedRecord{
			Key:          ev.CorrelationKey,
			Block:        ev.Block,
			TxHash:       ev.TxHash,
			LogIndex:     ev.LogIndex,
			PackedResult: ev.PackedResult,
		}
		if schema != nil {
			data, err := hexutil.Decode(ev.PackedResult)
			if err != nil {
				return fmt.Errorf("%w: %v", callenc.ErrDecode, err)
			}
			values, err := schema.Unpack(data)
			if err != nil {
				a.printer.Warn("record at block %d: %v", ev.Block, err)
			} else {
				rec.Values = callenc.FormatValues(values)
			}
		}

		mu.Lock()
		defer mu.Unlock()
		return a.printer.Render(rec, func() *output.Table {
			t := output.NewTable("BLOCK", "KEY", "TX", "RESULT")
			result := rec.PackedResult
			if rec.Values != nil {
				result = formatList(rec.Values)
			}
			t.AddRow(fmt.Sprint(rec.Block), rec.Key, rec.TxHash, result)
			return t
		})
	})
	if err != nil {
		return err
	}
	defer func() { _ = s.Unsubscribe() }()

	<-ctx.Done()
	return nil
}

func subjectFor(key *[32]byte) string {
	if key == nil {
		return messaging.SubjectAllRecords
	}
	return messaging.RecordSubject(*key)
}
