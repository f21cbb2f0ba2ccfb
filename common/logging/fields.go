package logging

import (
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Field names shared by the keeper, watcher and CLI.
const (
	FieldService        = "service"
	FieldRequestID      = "request_id"
	FieldTask           = "task"
	FieldCycle          = "cycle_id"
	FieldState          = "state"
	FieldRelay          = "relay"
	FieldTarget         = "target"
	FieldEntryPoint     = "entry_point"
	FieldTxHash         = "tx_hash"
	FieldBlock          = "block"
	FieldCorrelationKey = "correlation_key"
	FieldDuration       = "duration_ms"
	FieldError          = "error"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func Task(name string) slog.Attr {
	return slog.String(FieldTask, name)
}

func Cycle(id string) slog.Attr {
	return slog.String(FieldCycle, id)
}

// State is the keeper loop state, Idle or InFlight.
func State(s string) slog.Attr {
	return slog.String(FieldState, s)
}

func Relay(addr common.Address) slog.Attr {
	return slog.String(FieldRelay, addr.Hex())
}

func Target(addr common.Address) slog.Attr {
	return slog.String(FieldTarget, addr.Hex())
}

func EntryPoint(name string) slog.Attr {
	return slog.String(FieldEntryPoint, name)
}

func TxHash(h common.Hash) slog.Attr {
	return slog.String(FieldTxHash, h.Hex())
}

func Block(n uint64) slog.Attr {
	return slog.Uint64(FieldBlock, n)
}

// CorrelationKey renders a 32-byte key as 0x-prefixed hex.
func CorrelationKey(key [32]byte) slog.Attr {
	return slog.String(FieldCorrelationKey, "0x"+hex.EncodeToString(key[:]))
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error. A nil error renders empty.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
