package scheduler

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/moebius-network/moebius/common/logging"
)

// Group runs independent keepers concurrently. Keepers share nothing but
// the ledger connection.
type Group struct {
	keepers []*Keeper
	logger  *logging.Logger
	stop    chan struct{}
	stopped chan struct{}
}

// NewGroup creates a group of keepers.
func NewGroup(logger *logging.Logger, keepers ...*Keeper) *Group {
	if logger == nil {
		logger = logging.Default()
	}
	return &Group{
		keepers: keepers,
		logger:  logger,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Run runs every keeper until ctx is done. Cancellation is not an error.
func (g *Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, k := range g.keepers {
		eg.Go(func() error {
			if err := k.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return eg.Wait()
}

// Start runs the group until Stop is called or ctx is done. This should be
// called in a goroutine.
func (g *Group) Start(ctx context.Context) {
	defer close(g.stopped)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-g.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	g.logger.Info("keeper group started", "keepers", len(g.keepers))
	if err := g.Run(ctx); err != nil {
		g.logger.Error("keeper group ended", logging.Error(err))
		return
	}
	g.logger.Info("keeper group stopped")
}

// Stop signals the group to stop and waits for every keeper to return.
func (g *Group) Stop() {
	close(g.stop)
	<-g.stopped
}

// Statuses returns a snapshot of every keeper.
func (g *Group) Statuses() []Status {
	out := make([]Status, 0, len(g.keepers))
	for _, k := range g.keepers {
		out = append(out, k.Status())
	}
	return out
}
