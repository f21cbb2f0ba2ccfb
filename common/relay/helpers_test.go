package relay_test

import (
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/moebius-network/moebius/common/relay"
)

func relayLogQuery(addr common.Address) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{addr},
		Topics:    [][]common.Hash{{relay.EventTopic()}},
	}
}

func logWith(topics []common.Hash, data []byte) types.Log {
	return types.Log{Topics: topics, Data: data}
}

func crypto256(signature string) common.Hash {
	return crypto.Keccak256Hash([]byte(signature))
}
