package relay

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/moebius-network/moebius/common/callenc"
)

// EventName is the correlation record event emitted by the relay.
const EventName = "MoebiusData"

// recordTuple is the wire shape of the event data: (bytes32 key, bytes packed).
var recordTuple = callenc.MustTuple("bytes32", "bytes")

// Record is one decoded correlation record.
type Record struct {
	Key          [32]byte
	PackedResult []byte
	Relay        common.Address
	BlockNumber  uint64
	TxHash       common.Hash
	LogIndex     uint
}

// EventTopic is topic0 of every correlation record log.
func EventTopic() common.Hash {
	ev, err := callenc.MustLookup(SchemaName).Event(EventName)
	if err != nil {
		panic(err)
	}
	return ev.ID
}

// EncodeRecord builds the event data for a record.
func EncodeRecord(key [32]byte, packedResult []byte) ([]byte, error) {
	return recordTuple.Pack(key, packedResult)
}

// DecodeRecordData splits event data into key and packed result.
func DecodeRecordData(data []byte) ([32]byte, []byte, error) {
	values, err := recordTuple.Unpack(data)
	if err != nil {
		return [32]byte{}, nil, fmt.Errorf("correlation record: %w", err)
	}
	return values[0].([32]byte), values[1].([]byte), nil
}

// IsRecordLog reports whether a log carries the correlation record topic.
func IsRecordLog(lg types.Log) bool {
	return len(lg.Topics) > 0 && lg.Topics[0] == EventTopic()
}

// DecodeRecord decodes a relay log. Logs with another topic or malformed
// data fail with callenc.ErrDecode.
func DecodeRecord(lg types.Log) (*Record, error) {
	if !IsRecordLog(lg) {
		return nil, fmt.Errorf("%w: log %d in %s is not a %s record", callenc.ErrDecode, lg.Index, lg.TxHash.Hex(), EventName)
	}
	key, packed, err := DecodeRecordData(lg.Data)
	if err != nil {
		return nil, err
	}
	return &Record{
		Key:          key,
		PackedResult: packed,
		Relay:        lg.Address,
		BlockNumber:  lg.BlockNumber,
		TxHash:       lg.TxHash,
		LogIndex:     lg.Index,
	}, nil
}
