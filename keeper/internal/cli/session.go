package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/moebius-network/moebius/common/config"
	"github.com/moebius-network/moebius/common/ledger"
	"github.com/moebius-network/moebius/common/ledger/ethrpc"
	"github.com/moebius-network/moebius/keeper/internal/devnet"
	"github.com/moebius-network/moebius/keeper/internal/tasks"
)

// session is an open ledger connection and the deployment on it.
type session struct {
	ledger     ledger.Client
	deployment tasks.Deployment
	// devnet is set on the memory network.
	devnet *devnet.Network
	close  func()
}

func (a *app) connect(ctx context.Context, seed int64) (*session, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return openSession(ctx, cfg, seed)
}

func openSession(ctx context.Context, cfg *config.Config, seed int64) (*session, error) {
	if cfg.Network.IsMemory() {
		n, err := devnet.Bootstrap(devnet.Options{Seed: seed})
		if err != nil {
			return nil, fmt.Errorf("bootstrap devnet: %w", err)
		}
		return &session{ledger: n.Ledger, deployment: n.Deployment(), devnet: n, close: func() {}}, nil
	}

	if cfg.Network.RPCURL == "" {
		return nil, fmt.Errorf("network %s: rpc_url is required", cfg.Network.Name)
	}
	if !common.IsHexAddress(cfg.Relay.Address) {
		return nil, errors.New("relay address is required (--relay or relay.address)")
	}
	key, err := cfg.Signer.Key()
	if err != nil {
		return nil, err
	}
	c, err := ethrpc.Dial(ctx, ethrpc.Config{
		URL:          cfg.Network.RPCURL,
		PrivateKey:   key,
		ChainID:      cfg.Network.ChainID,
		PollInterval: cfg.Network.PollInterval,
	})
	if err != nil {
		return nil, err
	}
	return &session{
		ledger:     c,
		deployment: tasks.Deployment{Relay: common.HexToAddress(cfg.Relay.Address)},
		close:      c.Close,
	}, nil
}
