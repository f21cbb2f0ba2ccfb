// Package nats publishes keeper events to the message broker.
package nats

import "time"

// CycleCompletedEvent is published to moebius.keeper.cycles after every
// keeper cycle, successful or not.
type CycleCompletedEvent struct {
	Task       string    `json:"task"`
	CycleID    string    `json:"cycle_id"`
	Outcome    string    `json:"outcome"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Block      uint64    `json:"block,omitempty"`
	Records    int       `json:"records"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// RecordObservedEvent is published to moebius.records.<key> for every
// correlation record the relay emitted.
type RecordObservedEvent struct {
	CorrelationKey string `json:"correlation_key"`
	PackedResult   string `json:"packed_result"`
	Relay          string `json:"relay"`
	Block          uint64 `json:"block"`
	TxHash         string `json:"tx_hash"`
	LogIndex       uint   `json:"log_index"`
}
