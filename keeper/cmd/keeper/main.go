package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/moebius-network/moebius/common/config"
	"github.com/moebius-network/moebius/common/correlator"
	"github.com/moebius-network/moebius/common/ledger"
	"github.com/moebius-network/moebius/common/ledger/ethrpc"
	"github.com/moebius-network/moebius/common/logging"
	natsclient "github.com/moebius-network/moebius/common/messaging/nats"
	"github.com/moebius-network/moebius/common/relay"
	"github.com/moebius-network/moebius/keeper/internal/devnet"
	"github.com/moebius-network/moebius/keeper/internal/handlers"
	"github.com/moebius-network/moebius/keeper/internal/heartbeat"
	keepernats "github.com/moebius-network/moebius/keeper/internal/nats"
	"github.com/moebius-network/moebius/keeper/internal/scheduler"
	"github.com/moebius-network/moebius/keeper/internal/server"
	"github.com/moebius-network/moebius/keeper/internal/tasks"
	"github.com/moebius-network/moebius/keeper/internal/watcher"
)

const heartbeatTTL = 24 * time.Hour

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("keeper"))
	logging.SetDefault(logger)

	slog.Info("Starting keeper service",
		slog.String("network", cfg.Network.Name),
		slog.Int("port", cfg.Server.Port),
		slog.Int("tasks", len(cfg.Keeper.Tasks)),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l, deployment, closeLedger, err := connectLedger(ctx, cfg)
	if err != nil {
		slog.Error("Failed to connect to ledger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeLedger()
	slog.Info("Connected to ledger", slog.String("relay", deployment.Relay.Hex()))

	records := correlator.New(l, correlator.WithChunkSize(cfg.Watcher.ChunkSize))
	dispatcher := relay.NewClient(l, deployment.Relay)

	// Redis keeps heartbeats and the watcher cursor (optional)
	var store *heartbeat.Store
	if cfg.Redis.Enabled {
		store, err = connectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			slog.Warn("Failed to connect to Redis (continuing without heartbeats)",
				slog.String("url", cfg.Redis.URL),
				slog.String("error", err.Error()))
		} else {
			slog.Info("Connected to Redis", slog.String("url", cfg.Redis.URL))
		}
	} else {
		slog.Info("Redis heartbeats disabled")
	}

	// NATS carries cycle and record events (optional)
	var natsClient *natsclient.Client
	var publisher *keepernats.Publisher
	if cfg.NATS.Enabled {
		natsClient, err = natsclient.NewClient(natsclient.FromConfig(cfg.NATS, "moebius-keeper"), logger)
		if err != nil {
			slog.Warn("Failed to connect to NATS (continuing without NATS)",
				slog.String("url", cfg.NATS.URL),
				slog.String("error", err.Error()))
		} else {
			slog.Info("Connected to NATS", slog.String("url", cfg.NATS.URL))
			publisher = keepernats.NewPublisher(natsClient)
		}
	} else {
		slog.Info("NATS messaging disabled")
	}

	taskList, err := tasks.BuildAll(cfg.Keeper.Tasks, deployment)
	if err != nil {
		slog.Error("Failed to build keeper tasks", slog.String("error", err.Error()))
		os.Exit(1)
	}
	keepers := make([]*scheduler.Keeper, 0, len(taskList))
	for _, task := range taskList {
		opts := []scheduler.Option{
			scheduler.WithLogger(logger),
			scheduler.WithConfirmer(records),
		}
		if store != nil {
			opts = append(opts, scheduler.WithReporter(store))
		}
		if publisher != nil {
			opts = append(opts, scheduler.WithReporter(publisher))
		}
		keepers = append(keepers, scheduler.New(task, dispatcher, opts...))
	}
	group := scheduler.NewGroup(logger, keepers...)
	go group.Start(ctx)

	var relayWatcher *watcher.Watcher
	if cfg.Watcher.Enabled {
		var sink watcher.Sink = logSink{logger: logger}
		if publisher != nil {
			sink = publisher
		}
		var cursor watcher.CursorStore
		if store != nil {
			cursor = store
		}
		relayWatcher = watcher.New(watcher.Config{
			Relay:     deployment.Relay,
			FromBlock: cfg.Watcher.FromBlock,
			Interval:  cfg.Watcher.Interval,
		}, records, cursor, sink, logger)
		go relayWatcher.Start(ctx)
	} else {
		slog.Info("Relay watcher disabled")
	}

	h := handlers.NewHandler(records, deployment.Relay, group, logger)
	if store != nil {
		h.WithHeartbeats(store)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(h, logger.Logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("keeper service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	group.Stop()
	if relayWatcher != nil {
		relayWatcher.Stop()
	}
	if natsClient != nil {
		if err := natsClient.Drain(); err != nil {
			slog.Warn("NATS drain failed", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
}

// connectLedger returns the ledger and the deployment tasks run against. The
// memory network is bootstrapped in process with the demo targets.
func connectLedger(ctx context.Context, cfg *config.Config) (ledger.Client, tasks.Deployment, func(), error) {
	if cfg.Network.IsMemory() {
		n, err := devnet.Bootstrap(devnet.Options{})
		if err != nil {
			return nil, tasks.Deployment{}, nil, err
		}
		return n.Ledger, n.Deployment(), func() {}, nil
	}

	key, err := cfg.Signer.Key()
	if err != nil {
		return nil, tasks.Deployment{}, nil, err
	}
	c, err := ethrpc.Dial(ctx, ethrpc.Config{
		URL:          cfg.Network.RPCURL,
		PrivateKey:   key,
		ChainID:      cfg.Network.ChainID,
		PollInterval: cfg.Network.PollInterval,
	})
	if err != nil {
		return nil, tasks.Deployment{}, nil, err
	}
	return c, tasks.Deployment{Relay: common.HexToAddress(cfg.Relay.Address)}, c.Close, nil
}

func connectRedis(ctx context.Context, url string) (*heartbeat.Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return heartbeat.NewStore(client, true, heartbeatTTL), nil
}

// logSink reports observed records when no broker is configured.
type logSink struct {
	logger *logging.Logger
}

func (s logSink) HandleRecord(ctx context.Context, rec relay.Record) error {
	s.logger.InfoContext(ctx, "relay record observed",
		logging.CorrelationKey(rec.Key),
		logging.Block(rec.BlockNumber),
		logging.TxHash(rec.TxHash),
	)
	return nil
}
