package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/messaging"
	"github.com/moebius-network/moebius/common/relay"
	keepernats "github.com/moebius-network/moebius/keeper/internal/nats"
	"github.com/moebius-network/moebius/keeper/internal/output"
)

type chanSubscriber struct {
	subjects chan string
	handlers chan messaging.MessageHandler
}

type nopSubscription struct{}

func (nopSubscription) Unsubscribe() error { return nil }
func (nopSubscription) Subject() string    { return "" }
func (nopSubscription) IsValid() bool      { return true }

func (c *chanSubscriber) Subscribe(subject string, h messaging.MessageHandler) (messaging.Subscription, error) {
	c.subjects <- subject
	c.handlers <- h
	return nopSubscription{}, nil
}

func (c *chanSubscriber) Close() error { return nil }

type capturePublisher struct{ msgs []*messaging.Message }

func (c *capturePublisher) Publish(_ context.Context, subject string, data []byte) error {
	c.msgs = append(c.msgs, &messaging.Message{Subject: subject, Data: data})
	return nil
}

func (c *capturePublisher) PublishMsg(_ context.Context, msg *messaging.Message) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func TestStreamRecords(t *testing.T) {
	key := [32]byte{0x07}
	tuple := callenc.MustTuple("address", "uint256")
	packed, err := tuple.Pack(common.HexToAddress("0xa1"), "5")
	require.NoError(t, err)

	pub := &capturePublisher{}
	require.NoError(t, keepernats.NewPublisher(pub).HandleRecord(context.Background(), relay.Record{
		Key:          key,
		PackedResult: packed,
		BlockNumber:  12,
		TxHash:       common.HexToHash("0x12"),
	}))

	var out, errOut bytes.Buffer
	a := &app{printer: output.New(&out, &errOut, output.FormatJSON)}
	sub := &chanSubscriber{subjects: make(chan string, 1), handlers: make(chan messaging.MessageHandler, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.streamRecords(ctx, sub, &key, tuple) }()

	assert.Equal(t, messaging.RecordSubject(key), <-sub.subjects)
	handler := <-sub.handlers
	require.NoError(t, handler(ctx, pub.msgs[0]))
	cancel()
	require.NoError(t, <-done)

	var rec FetchedRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, uint64(12), rec.Block)
	assert.Equal(t, []interface{}{common.HexToAddress("0xa1").Hex(), "5"}, rec.Values)
	assert.Empty(t, errOut.String())
}

func TestStreamRecords_SchemaMismatchWarns(t *testing.T) {
	pub := &capturePublisher{}
	require.NoError(t, keepernats.NewPublisher(pub).HandleRecord(context.Background(), relay.Record{
		Key:          [32]byte{0x01},
		PackedResult: []byte{0x01},
	}))

	var out, errOut bytes.Buffer
	a := &app{printer: output.New(&out, &errOut, output.FormatTable)}
	sub := &chanSubscriber{subjects: make(chan string, 1), handlers: make(chan messaging.MessageHandler, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.streamRecords(ctx, sub, nil, callenc.MustTuple("uint256")) }()

	assert.Equal(t, messaging.SubjectAllRecords, <-sub.subjects)
	require.NoError(t, (<-sub.handlers)(ctx, pub.msgs[0]))
	cancel()
	require.NoError(t, <-done)

	assert.Contains(t, errOut.String(), "record at block 0")
	assert.Contains(t, out.String(), "0x01")
}
