package callenc

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// coerceArgs converts loosely typed values (hex strings, decimal strings,
// plain ints, byte slices) into the Go types the abi packer expects.
func coerceArgs(args abi.Arguments, values []interface{}) ([]interface{}, error) {
	if len(args) != len(values) {
		return nil, fmt.Errorf("%w: got %d arguments, want %d", ErrArgumentTypeMismatch, len(values), len(args))
	}
	out := make([]interface{}, len(values))
	for i, arg := range args {
		v, err := coerce(arg.Type, values[i])
		if err != nil {
			name := arg.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, fmt.Errorf("%w: argument %s (%s): %v", ErrArgumentTypeMismatch, name, arg.Type.String(), err)
		}
		out[i] = v
	}
	return out, nil
}

func coerce(typ abi.Type, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, fmt.Errorf("nil value")
	}
	target := typ.GetType()

	switch typ.T {
	case abi.UintTy, abi.IntTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		if err := checkIntRange(typ, n); err != nil {
			return nil, err
		}
		if target == bigIntType {
			return n, nil
		}
		if typ.T == abi.UintTy {
			return reflect.ValueOf(n.Uint64()).Convert(target).Interface(), nil
		}
		return reflect.ValueOf(n.Int64()).Convert(target).Interface(), nil

	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, err
			}
			return parsed, nil
		}

	case abi.StringTy:
		if s, ok := v.(string); ok {
			return s, nil
		}

	case abi.AddressTy:
		switch a := v.(type) {
		case common.Address:
			return a, nil
		case *common.Address:
			return *a, nil
		case [20]byte:
			return common.Address(a), nil
		case []byte:
			if len(a) != common.AddressLength {
				return nil, fmt.Errorf("address must be %d bytes, got %d", common.AddressLength, len(a))
			}
			return common.BytesToAddress(a), nil
		case string:
			if !common.IsHexAddress(a) {
				return nil, fmt.Errorf("invalid hex address %q", a)
			}
			return common.HexToAddress(a), nil
		}

	case abi.FixedBytesTy:
		var raw []byte
		switch b := v.(type) {
		case []byte:
			raw = b
		case common.Hash:
			raw = b.Bytes()
		case string:
			decoded, err := hexutil.Decode(b)
			if err != nil {
				return nil, fmt.Errorf("invalid hex %q: %v", b, err)
			}
			raw = decoded
		default:
			rv := reflect.ValueOf(v)
			if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
				raw = make([]byte, rv.Len())
				reflect.Copy(reflect.ValueOf(raw), rv)
			}
		}
		if raw == nil {
			break
		}
		if len(raw) != typ.Size {
			return nil, fmt.Errorf("want exactly %d bytes, got %d", typ.Size, len(raw))
		}
		arr := reflect.New(target).Elem()
		reflect.Copy(arr, reflect.ValueOf(raw))
		return arr.Interface(), nil

	case abi.BytesTy:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			decoded, err := hexutil.Decode(b)
			if err != nil {
				return nil, fmt.Errorf("invalid hex %q: %v", b, err)
			}
			return decoded, nil
		}

	case abi.SliceTy, abi.ArrayTy:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		if typ.T == abi.ArrayTy && rv.Len() != typ.Size {
			return nil, fmt.Errorf("want %d elements, got %d", typ.Size, rv.Len())
		}
		var out reflect.Value
		if typ.T == abi.SliceTy {
			out = reflect.MakeSlice(target, rv.Len(), rv.Len())
		} else {
			out = reflect.New(target).Elem()
		}
		for i := 0; i < rv.Len(); i++ {
			elem, err := coerce(*typ.Elem, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("element %d: %v", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(elem))
		}
		return out.Interface(), nil
	}

	if reflect.TypeOf(v).AssignableTo(target) {
		return v, nil
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, typ.String())
}

func checkIntRange(typ abi.Type, n *big.Int) error {
	if typ.T == abi.UintTy {
		if n.Sign() < 0 {
			return fmt.Errorf("negative value %s for unsigned type", n)
		}
		if n.BitLen() > typ.Size {
			return fmt.Errorf("value %s overflows %s", n, typ.String())
		}
		return nil
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(typ.Size-1))
	if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
		return fmt.Errorf("value %s overflows %s", n, typ.String())
	}
	return nil
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("nil big.Int")
		}
		return new(big.Int).Set(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int8:
		return big.NewInt(int64(n)), nil
	case int16:
		return big.NewInt(int64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case string:
		s := strings.TrimSpace(n)
		parsed, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", n)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("cannot use %T as integer", v)
}
