package callenc

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// FormatValues renders decoded ABI values for JSON and YAML output: byte
// arrays as 0x-hex, addresses as checksummed hex and big integers as decimal
// strings. Other values pass through.
func FormatValues(values []interface{}) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case [32]byte:
			out[i] = hexutil.Encode(x[:])
		case []byte:
			out[i] = hexutil.Encode(x)
		case common.Address:
			out[i] = x.Hex()
		case *big.Int:
			out[i] = x.String()
		default:
			out[i] = x
		}
	}
	return out
}
