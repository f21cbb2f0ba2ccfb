package handlers

import (
	"github.com/moebius-network/moebius/keeper/internal/heartbeat"
	"github.com/moebius-network/moebius/keeper/internal/scheduler"
)

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status  string  `json:"status"`
	Service string  `json:"service"`
	Head    *uint64 `json:"head,omitempty"`
}

// RecordView is one correlation record. Values is set when a schema was
// given.
type RecordView struct {
	Key          string        `json:"correlation_key"`
	PackedResult string        `json:"packed_result"`
	Block        uint64        `json:"block"`
	TxHash       string        `json:"tx_hash"`
	LogIndex     uint          `json:"log_index"`
	Values       []interface{} `json:"values,omitempty"`
}

// RecordsResponse is returned by GET /api/v1/records.
type RecordsResponse struct {
	Relay     string       `json:"relay"`
	Key       string       `json:"correlation_key"`
	FromBlock uint64       `json:"from_block"`
	Schema    string       `json:"schema,omitempty"`
	Records   []RecordView `json:"records"`
}

// KeepersResponse is returned by GET /api/v1/keepers.
type KeepersResponse struct {
	Keepers    []scheduler.Status `json:"keepers"`
	Heartbeats []heartbeat.Beat   `json:"heartbeats,omitempty"`
}
