package scheduler

import (
	"context"
	"fmt"
	"time"
)

// State is the keeper's position in its two-state machine.
type State int

const (
	// Idle waits out the period or retry delay.
	Idle State = iota
	// InFlight has a dispatch submitted and awaiting inclusion.
	InFlight
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case InFlight:
		return "InFlight"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time view of a keeper.
type Status struct {
	Task                string    `json:"task"`
	Target              string    `json:"target"`
	EntryPoint          string    `json:"entry_point"`
	State               State     `json:"state"`
	Cycles              uint64    `json:"cycles"`
	Failures            uint64    `json:"failures"`
	ConsecutiveFailures uint64    `json:"consecutive_failures"`
	LastCycleID         string    `json:"last_cycle_id,omitempty"`
	LastOutcome         string    `json:"last_outcome,omitempty"`
	LastTxHash          string    `json:"last_tx_hash,omitempty"`
	LastBlock           uint64    `json:"last_block,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	LastRun             time.Time `json:"last_run,omitempty"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
}

// Clock abstracts time for the loop's suspension points.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns the wall clock.
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
