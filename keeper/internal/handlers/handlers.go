// Package handlers provides HTTP request handlers for the keeper service.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/correlator"
	"github.com/moebius-network/moebius/common/httputil"
	"github.com/moebius-network/moebius/common/idcodec"
	"github.com/moebius-network/moebius/common/ledger"
	"github.com/moebius-network/moebius/common/logging"
	"github.com/moebius-network/moebius/common/relay"
	"github.com/moebius-network/moebius/common/targets"
	"github.com/moebius-network/moebius/keeper/internal/heartbeat"
	"github.com/moebius-network/moebius/keeper/internal/scheduler"
)

// RecordReader reads correlation records from the ledger.
type RecordReader interface {
	Head(ctx context.Context) (uint64, error)
	FetchAll(ctx context.Context, relayAddr common.Address, key [32]byte, fromBlock uint64) ([]relay.Record, error)
}

// KeeperLister reports the in-process keepers.
type KeeperLister interface {
	Statuses() []scheduler.Status
}

// HeartbeatLister reports heartbeats stored by every keeper process.
type HeartbeatLister interface {
	IsEnabled() bool
	List(ctx context.Context) ([]heartbeat.Beat, error)
}

// Handler provides HTTP handlers for the keeper service
type Handler struct {
	records RecordReader
	relay   common.Address
	keepers KeeperLister
	beats   HeartbeatLister
	logger  *logging.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(records RecordReader, relayAddr common.Address, keepers KeeperLister, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{records: records, relay: relayAddr, keepers: keepers, logger: logger}
}

// WithHeartbeats adds stored heartbeats to the keepers listing.
func (h *Handler) WithHeartbeats(beats HeartbeatLister) *Handler {
	h.beats = beats
	return h
}

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "keeper",
	})
}

// ReadyCheck handles GET /readyz. The keeper is ready once the ledger
// answers.
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := ledger.ReadContext(r.Context())
	defer cancel()

	head, err := h.records.Head(ctx)
	if err != nil {
		h.logger.WarnContext(r.Context(), "ledger not ready", logging.Error(err))
		httputil.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "unavailable",
			Service: "keeper",
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "ready",
		Service: "keeper",
		Head:    &head,
	})
}

// Records handles GET /api/v1/records?key=&from_block=&schema=&types=&latest=
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteErrorCode(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
		return
	}

	rawKey := httputil.QueryString(r, "key", "")
	if rawKey == "" {
		httputil.WriteErrorCode(w, http.StatusBadRequest, "validation_error", "key is required")
		return
	}
	key, err := idcodec.ParseKey(rawKey)
	if err != nil {
		httputil.WriteErrorCode(w, http.StatusBadRequest, "malformed_identifier", err.Error())
		return
	}
	fromBlock, err := httputil.QueryUint(r, "from_block", 0)
	if err != nil {
		httputil.WriteErrorCode(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	schema, err := resultSchema(r)
	if err != nil {
		httputil.WriteErrorCode(w, http.StatusBadRequest, "unknown_schema", err.Error())
		return
	}

	ctx, cancel := ledger.ScanContext(r.Context())
	defer cancel()

	records, err := h.records.FetchAll(ctx, h.relay, key, fromBlock)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	if httputil.QueryString(r, "latest", "") == "true" {
		if len(records) == 0 {
			httputil.WriteErrorCode(w, http.StatusNotFound, "not_found",
				fmt.Sprintf("%v: key %s from block %d", correlator.ErrNotFound, idcodec.FormatKey(key), fromBlock))
			return
		}
		records = records[len(records)-1:]
	}

	resp := RecordsResponse{
		Relay:     h.relay.Hex(),
		Key:       idcodec.FormatKey(key),
		FromBlock: fromBlock,
		Records:   make([]RecordView, 0, len(records)),
	}
	if schema != nil {
		resp.Schema = schema.String()
	}
	for i := range records {
		view := newRecordView(&records[i])
		if schema != nil {
			values, err := correlator.Decode(&records[i], schema)
			if err != nil {
				h.logger.ErrorContext(r.Context(), "correlation schema mismatch", logging.CorrelationKey(key), logging.Error(err))
				httputil.WriteErrorCode(w, http.StatusUnprocessableEntity, "decode_error", err.Error())
				return
			}
			view.Values = callenc.FormatValues(values)
		}
		resp.Records = append(resp.Records, view)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Keepers handles GET /api/v1/keepers
func (h *Handler) Keepers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteErrorCode(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
		return
	}

	resp := KeepersResponse{Keepers: []scheduler.Status{}}
	if h.keepers != nil {
		resp.Keepers = h.keepers.Statuses()
	}
	if h.beats != nil && h.beats.IsEnabled() {
		beats, err := h.beats.List(r.Context())
		if err != nil {
			h.logger.ErrorContext(r.Context(), "failed to list heartbeats", logging.Error(err))
			httputil.WriteErrorCode(w, http.StatusServiceUnavailable, "heartbeats_unavailable", "heartbeat store unavailable")
			return
		}
		resp.Heartbeats = beats
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, callenc.ErrDecode):
		h.logger.ErrorContext(r.Context(), "malformed relay record", logging.Error(err))
		httputil.WriteErrorCode(w, http.StatusUnprocessableEntity, "decode_error", err.Error())
	case errors.Is(err, ledger.ErrUnavailable):
		httputil.WriteErrorCode(w, http.StatusServiceUnavailable, "ledger_unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.WarnContext(r.Context(), "record query timed out", logging.Error(err))
		httputil.WriteErrorCode(w, http.StatusGatewayTimeout, "ledger_timeout", "record query timed out")
	default:
		h.logger.ErrorContext(r.Context(), "record query failed", logging.Error(err))
		httputil.WriteErrorCode(w, http.StatusInternalServerError, "internal_error", "record query failed")
	}
}

// resultSchema resolves ?schema=<abi name> or ?types=t1,t2. Neither means
// records are returned undecoded.
func resultSchema(r *http.Request) (*callenc.Tuple, error) {
	if types := httputil.QueryList(r, "types"); len(types) > 0 {
		return callenc.NewTuple(types...)
	}
	if name := httputil.QueryString(r, "schema", ""); name != "" {
		return targets.ResultSchema(name)
	}
	return nil, nil
}

func newRecordView(rec *relay.Record) RecordView {
	return RecordView{
		Key:          idcodec.FormatKey(rec.Key),
		PackedResult: hexutil.Encode(rec.PackedResult),
		Block:        rec.BlockNumber,
		TxHash:       rec.TxHash.Hex(),
		LogIndex:     rec.LogIndex,
	}
}
