// Package watcher follows the relay's correlation records from a persisted
// block cursor and hands each one to a sink.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/moebius-network/moebius/common/logging"
	"github.com/moebius-network/moebius/common/relay"
	"github.com/moebius-network/moebius/keeper/internal/metrics"
)

// Scanner reads records by block range.
type Scanner interface {
	Head(ctx context.Context) (uint64, error)
	Scan(ctx context.Context, relayAddr common.Address, from, to uint64) ([]relay.Record, error)
}

// CursorStore persists the next block to scan.
type CursorStore interface {
	Cursor(ctx context.Context, relayAddr common.Address) (uint64, bool, error)
	SetCursor(ctx context.Context, relayAddr common.Address, next uint64) error
}

// Sink receives records in ledger order.
type Sink interface {
	HandleRecord(ctx context.Context, rec relay.Record) error
}

// Flusher is implemented by sinks that buffer accepted records. The cursor
// only moves past records once Flush has returned nil.
type Flusher interface {
	Flush(ctx context.Context) error
}

const (
	DefaultInterval        = 15 * time.Second
	DefaultDeliveryTimeout = 10 * time.Second
)

// Config configures a Watcher.
type Config struct {
	Relay common.Address
	// FromBlock is where scanning starts when no cursor is stored.
	FromBlock uint64
	// Interval defaults to DefaultInterval when not positive.
	Interval time.Duration
	// DeliveryTimeout bounds each HandleRecord and Flush call.
	DeliveryTimeout time.Duration
}

// Watcher polls the relay's records. Delivery is at least once: a block
// whose records were not all delivered is scanned again.
type Watcher struct {
	cfg     Config
	scanner Scanner
	cursor  CursorStore
	sink    Sink
	logger  *logging.Logger

	mu     sync.Mutex
	next   uint64
	loaded bool

	stop    chan struct{}
	stopped chan struct{}
}

// New creates a watcher. cursor may be nil to keep the cursor in memory only.
func New(cfg Config, scanner Scanner, cursor CursorStore, sink Sink, logger *logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	return &Watcher{
		cfg:     cfg,
		scanner: scanner,
		cursor:  cursor,
		sink:    sink,
		logger:  logger.With(logging.Relay(cfg.Relay)),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins the polling loop. This should be called in a goroutine.
func (w *Watcher) Start(ctx context.Context) {
	defer close(w.stopped)

	w.logger.Info("watcher started", "interval", w.cfg.Interval.String())

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	// Run immediately on start
	w.tick(ctx)

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-w.stop:
			w.logger.Info("watcher stopped")
			return
		case <-ctx.Done():
			w.logger.Info("watcher context cancelled")
			return
		}
	}
}

// Stop signals the watcher to stop and waits for it to finish.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.stopped
}

func (w *Watcher) tick(ctx context.Context) {
	n, err := w.Poll(ctx)
	if err != nil {
		metrics.WatcherErrors.Inc()
		w.logger.Error("watcher poll failed", logging.Error(err))
		return
	}
	if n > 0 {
		w.logger.Debug("watcher delivered records", "records", n)
	}
}

// Poll scans from the cursor to the current head once and returns the
// number of records delivered.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.load(ctx); err != nil {
		return 0, err
	}

	head, err := w.scanner.Head(ctx)
	if err != nil {
		return 0, fmt.Errorf("read head: %w", err)
	}
	if w.next > head {
		return 0, nil
	}

	records, err := w.scanner.Scan(ctx, w.cfg.Relay, w.next, head)
	if err != nil {
		return 0, err
	}

	for i, rec := range records {
		if err := w.deliver(ctx, rec); err != nil {
			// Resume at the failed record's block on the next poll.
			if advErr := w.commit(ctx, rec.BlockNumber); advErr != nil {
				w.logger.Warn("watcher cursor not saved", logging.Error(advErr))
			}
			return i, fmt.Errorf("deliver record %s#%d: %w", rec.TxHash.Hex(), rec.LogIndex, err)
		}
		metrics.RecordsObserved.Inc()
		w.logger.Debug("record observed",
			logging.CorrelationKey(rec.Key),
			logging.Block(rec.BlockNumber),
			logging.TxHash(rec.TxHash),
		)
	}

	return len(records), w.commit(ctx, head+1)
}

func (w *Watcher) deliver(ctx context.Context, rec relay.Record) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.DeliveryTimeout)
	defer cancel()
	return w.sink.HandleRecord(ctx, rec)
}

// commit flushes the sink, then advances the cursor to next.
func (w *Watcher) commit(ctx context.Context, next uint64) error {
	if f, ok := w.sink.(Flusher); ok {
		flushCtx, cancel := context.WithTimeout(ctx, w.cfg.DeliveryTimeout)
		err := f.Flush(flushCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("flush sink: %w", err)
		}
	}
	return w.advance(ctx, next)
}

// Next returns the next block the watcher will scan.
func (w *Watcher) Next() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.next
}

func (w *Watcher) load(ctx context.Context) error {
	if w.loaded {
		return nil
	}
	w.next = w.cfg.FromBlock
	if w.cursor != nil {
		stored, ok, err := w.cursor.Cursor(ctx, w.cfg.Relay)
		if err != nil {
			return err
		}
		if ok {
			w.next = stored
		}
	}
	w.loaded = true
	metrics.WatcherCursor.Set(float64(w.next))
	return nil
}

func (w *Watcher) advance(ctx context.Context, next uint64) error {
	if next <= w.next {
		return nil
	}
	w.next = next
	metrics.WatcherCursor.Set(float64(next))
	if w.cursor == nil {
		return nil
	}
	return w.cursor.SetCursor(ctx, w.cfg.Relay, next)
}
