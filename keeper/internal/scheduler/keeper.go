// Package scheduler runs keeper tasks: on a fixed period each task encodes a
// call, dispatches it through the relay, waits for inclusion and optionally
// confirms the result through the correlator. A failed cycle is logged and
// retried after a fixed delay; only cancellation ends a keeper.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/correlator"
	"github.com/moebius-network/moebius/common/ledger"
	"github.com/moebius-network/moebius/common/logging"
	"github.com/moebius-network/moebius/common/relay"
	"github.com/moebius-network/moebius/keeper/internal/metrics"
)

const defaultConfirmInterval = time.Second

// ArgumentBuilder produces the arguments of one call. It may read external
// state.
type ArgumentBuilder interface {
	Build(ctx context.Context) ([]interface{}, error)
}

// Dispatcher submits calls through the relay and waits for them.
type Dispatcher interface {
	Execute(ctx context.Context, req relay.DispatchRequest) (relay.Submission, error)
	Await(ctx context.Context, sub relay.Submission, policy ledger.InclusionPolicy) (*relay.Inclusion, error)
}

// Confirmer reads a correlation record back from the log index.
type Confirmer interface {
	Poll(ctx context.Context, relayAddr common.Address, key [32]byte, fromBlock uint64, interval time.Duration) (*relay.Record, error)
}

// Reporter is told about every finished cycle.
type Reporter interface {
	ReportCycle(ctx context.Context, res CycleResult) error
}

// ConfirmationPolicy enables reading the dispatch result back after
// inclusion.
type ConfirmationPolicy struct {
	Key [32]byte
	// Schema decodes the PackedResult. Nil skips decoding.
	Schema       *callenc.Tuple
	PollInterval time.Duration
	// Timeout bounds the poll. Zero polls until the cycle is cancelled.
	Timeout time.Duration
}

// Task is one KeeperTask.
type Task struct {
	Name       string
	Relay      common.Address
	Target     common.Address
	Schema     *callenc.Schema
	EntryPoint string
	Args       ArgumentBuilder

	Period     time.Duration
	RetryDelay time.Duration
	Policy     ledger.InclusionPolicy
	GasLimit   uint64
	GasPrice   *big.Int

	Confirm *ConfirmationPolicy
}

// CycleResult describes one pass through the loop.
type CycleResult struct {
	Task     string
	CycleID  string
	Started  time.Time
	Duration time.Duration
	Outcome  string
	TxHash   common.Hash
	Block    uint64
	Records  []relay.Record
	// Values is the decoded PackedResult when confirmation decoded one.
	Values []interface{}
	Err    error
}

// Succeeded reports whether the cycle completed without error.
func (r CycleResult) Succeeded() bool {
	return r.Err == nil
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(k *Keeper) { k.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(k *Keeper) { k.logger = l }
}

// WithConfirmer sets the correlator used by tasks with a ConfirmationPolicy.
func WithConfirmer(c Confirmer) Option {
	return func(k *Keeper) { k.confirmer = c }
}

// WithReporter adds a cycle reporter.
func WithReporter(r Reporter) Option {
	return func(k *Keeper) {
		if r != nil {
			k.reporters = append(k.reporters, r)
		}
	}
}

// Keeper runs one task forever.
type Keeper struct {
	task       Task
	dispatcher Dispatcher
	confirmer  Confirmer
	clock      Clock
	logger     *logging.Logger
	reporters  []Reporter

	mu     sync.RWMutex
	status Status
}

// New creates a Keeper for task.
func New(task Task, d Dispatcher, opts ...Option) *Keeper {
	if task.RetryDelay <= 0 {
		task.RetryDelay = task.Period
	}
	k := &Keeper{
		task:       task,
		dispatcher: d,
		clock:      RealClock(),
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.logger = k.logger.With(logging.Task(task.Name))
	k.status = Status{
		Task:       task.Name,
		Target:     task.Target.Hex(),
		EntryPoint: task.EntryPoint,
		State:      Idle,
	}
	return k
}

// Task returns the keeper's task.
func (k *Keeper) Task() Task {
	return k.task
}

// Run loops until ctx is done and returns ctx.Err(). Cycle failures never end
// the loop.
func (k *Keeper) Run(ctx context.Context) error {
	k.logger.InfoContext(ctx, "keeper started",
		logging.Target(k.task.Target),
		logging.EntryPoint(k.task.EntryPoint),
		"period", k.task.Period.String(),
		"retry_delay", k.task.RetryDelay.String(),
	)

	for {
		res := k.RunCycle(ctx)
		if err := ctx.Err(); err != nil {
			k.logger.InfoContext(ctx, "keeper stopped")
			return err
		}

		delay := k.task.Period
		if !res.Succeeded() {
			delay = k.task.RetryDelay
		}
		k.logger.DebugContext(ctx, "keeper sleeping", logging.State(Idle.String()), "delay", delay.String())
		if err := k.clock.Sleep(ctx, delay); err != nil {
			k.logger.InfoContext(ctx, "keeper stopped")
			return err
		}
	}
}

// RunCycle performs one cycle and reports it. It never panics.
func (k *Keeper) RunCycle(ctx context.Context) (res CycleResult) {
	cycleID, err := uuid.NewV7()
	if err != nil {
		cycleID = uuid.New()
	}
	ctx = logging.ContextWithCycle(ctx, cycleID.String())
	res = CycleResult{Task: k.task.Name, CycleID: cycleID.String(), Started: k.clock.Now()}

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = metrics.OutcomePanic
			res.Err = fmt.Errorf("keeper cycle panicked: %v", r)
		}
		res.Duration = k.clock.Now().Sub(res.Started)
		k.finish(ctx, res)
	}()

	res.Outcome, res.Err = k.cycle(ctx, &res)
	return res
}

func (k *Keeper) cycle(ctx context.Context, res *CycleResult) (string, error) {
	var args []interface{}
	if k.task.Args != nil {
		built, err := k.task.Args.Build(ctx)
		if err != nil {
			return metrics.OutcomeEncoding, fmt.Errorf("build arguments: %w", err)
		}
		args = built
	}
	payload, err := k.task.Schema.Encode(k.task.EntryPoint, args...)
	if err != nil {
		return metrics.OutcomeEncoding, err
	}

	k.setState(InFlight)
	defer k.setState(Idle)

	sub, err := k.dispatcher.Execute(ctx, relay.DispatchRequest{
		Target:   k.task.Target,
		Payload:  payload,
		GasLimit: k.task.GasLimit,
		GasPrice: k.task.GasPrice,
	})
	if err != nil {
		return metrics.OutcomeDispatch, err
	}
	res.TxHash = sub.TxHash
	k.logger.DebugContext(ctx, "dispatch submitted", logging.State(InFlight.String()), logging.TxHash(sub.TxHash))

	inc, err := k.dispatcher.Await(ctx, sub, k.task.Policy)
	if err != nil {
		return metrics.OutcomeDispatch, err
	}
	res.Block = inc.Block
	res.Records = inc.Records

	if k.task.Confirm != nil {
		values, err := k.confirm(ctx, inc)
		if err != nil {
			return metrics.OutcomeConfirm, err
		}
		res.Values = values
	}
	return metrics.OutcomeSuccess, nil
}

func (k *Keeper) confirm(ctx context.Context, inc *relay.Inclusion) ([]interface{}, error) {
	policy := k.task.Confirm
	if k.confirmer == nil {
		return nil, errors.New("confirmation requested but no correlator configured")
	}

	interval := policy.PollInterval
	if interval <= 0 {
		interval = defaultConfirmInterval
	}
	pollCtx := ctx
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	rec, err := k.confirmer.Poll(pollCtx, inc.Relay, policy.Key, inc.Block, interval)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: key %x after %s", correlator.ErrNotFound, policy.Key, policy.Timeout)
		}
		return nil, err
	}
	if policy.Schema == nil {
		return nil, nil
	}
	return correlator.Decode(rec, policy.Schema)
}

func (k *Keeper) finish(ctx context.Context, res CycleResult) {
	k.record(res)

	outcome := res.Outcome
	metrics.CyclesTotal.WithLabelValues(res.Task, outcome).Inc()
	metrics.CycleDuration.WithLabelValues(res.Task).Observe(res.Duration.Seconds())

	switch {
	case res.Err == nil:
		metrics.LastSuccess.WithLabelValues(res.Task).Set(float64(res.Started.Unix()))
		k.logger.InfoContext(ctx, "keeper cycle succeeded",
			logging.TxHash(res.TxHash),
			logging.Block(res.Block),
			"records", len(res.Records),
			logging.Duration(res.Duration),
		)
	case ctx.Err() != nil:
		k.logger.WarnContext(ctx, "keeper cycle interrupted", logging.Error(res.Err))
	case errors.Is(res.Err, callenc.ErrDecode):
		// The relay, target and reader disagree on the PackedResult schema.
		k.logger.ErrorContext(ctx, "correlation schema mismatch",
			logging.TxHash(res.TxHash),
			logging.Block(res.Block),
			"outcome", outcome,
			logging.Error(res.Err),
		)
	default:
		k.logger.ErrorContext(ctx, "keeper cycle failed",
			logging.TxHash(res.TxHash),
			"outcome", outcome,
			"transient", relay.IsTransient(res.Err),
			logging.Duration(res.Duration),
			logging.Error(res.Err),
		)
	}

	reportCtx := context.WithoutCancel(ctx)
	for _, r := range k.reporters {
		if err := r.ReportCycle(reportCtx, res); err != nil {
			k.logger.WarnContext(ctx, "cycle report failed", logging.Error(err))
		}
	}
}

func (k *Keeper) setState(s State) {
	k.mu.Lock()
	k.status.State = s
	k.mu.Unlock()

	v := 0.0
	if s == InFlight {
		v = 1
	}
	metrics.InFlight.WithLabelValues(k.task.Name).Set(v)
}

func (k *Keeper) record(res CycleResult) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s := &k.status
	s.Cycles++
	s.LastCycleID = res.CycleID
	s.LastRun = res.Started
	s.LastOutcome = res.Outcome
	if res.TxHash != (common.Hash{}) {
		s.LastTxHash = res.TxHash.Hex()
	}
	if res.Err != nil {
		s.Failures++
		s.ConsecutiveFailures++
		s.LastError = res.Err.Error()
		return
	}
	s.ConsecutiveFailures = 0
	s.LastError = ""
	s.LastBlock = res.Block
	s.LastSuccess = res.Started
}

// Status returns a snapshot of the keeper's state.
func (k *Keeper) Status() Status {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.status
}
