package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/moebius-network/moebius/common/messaging"
	"github.com/moebius-network/moebius/common/relay"
	"github.com/moebius-network/moebius/keeper/internal/scheduler"
	"github.com/moebius-network/moebius/keeper/internal/watcher"
)

// Headers set on record messages so subscribers can filter without decoding.
const (
	HeaderRelay = "Moebius-Relay"
	HeaderBlock = "Moebius-Block"
)

// Publisher publishes keeper events to NATS subjects.
type Publisher struct {
	client messaging.Publisher
}

var (
	_ scheduler.Reporter = (*Publisher)(nil)
	_ watcher.Flusher    = (*Publisher)(nil)
)

// NewPublisher creates a new NATS publisher.
func NewPublisher(client messaging.Publisher) *Publisher {
	return &Publisher{client: client}
}

// PublishCycle publishes a cycle completed event.
func (p *Publisher) PublishCycle(ctx context.Context, event *CycleCompletedEvent) error {
	return p.publish(ctx, messaging.SubjectKeeperCycles, event)
}

// ReportCycle publishes a cycle completed event. Records are published by
// the watcher so each is sent once.
func (p *Publisher) ReportCycle(ctx context.Context, res scheduler.CycleResult) error {
	event := &CycleCompletedEvent{
		Task:       res.Task,
		CycleID:    res.CycleID,
		Outcome:    res.Outcome,
		Success:    res.Succeeded(),
		Block:      res.Block,
		Records:    len(res.Records),
		StartedAt:  res.Started,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		event.Error = res.Err.Error()
	}
	if res.TxHash != (common.Hash{}) {
		event.TxHash = res.TxHash.Hex()
	}
	return p.PublishCycle(ctx, event)
}

// HandleRecord publishes a record observed event on the record's key subject.
func (p *Publisher) HandleRecord(ctx context.Context, rec relay.Record) error {
	data, err := json.Marshal(&RecordObservedEvent{
		CorrelationKey: hexutil.Encode(rec.Key[:]),
		PackedResult:   hexutil.Encode(rec.PackedResult),
		Relay:          rec.Relay.Hex(),
		Block:          rec.BlockNumber,
		TxHash:         rec.TxHash.Hex(),
		LogIndex:       rec.LogIndex,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.client.PublishMsg(ctx, &messaging.Message{
		Subject: messaging.RecordSubject(rec.Key),
		Data:    data,
		Metadata: map[string]string{
			HeaderRelay: rec.Relay.Hex(),
			HeaderBlock: strconv.FormatUint(rec.BlockNumber, 10),
		},
	})
}

// flusher is implemented by clients that buffer published messages.
type flusher interface {
	Flush(ctx context.Context) error
}

// Flush waits until the broker has every message published so far. Clients
// that do not buffer have nothing to flush.
func (p *Publisher) Flush(ctx context.Context) error {
	if f, ok := p.client.(flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// publish marshals data to JSON and publishes to the specified subject.
func (p *Publisher) publish(ctx context.Context, subject string, data interface{}) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.client.Publish(ctx, subject, bytes)
}
