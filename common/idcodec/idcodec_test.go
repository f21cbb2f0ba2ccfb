package idcodec

import (
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Foreign IDs used by the original deployment scripts.
var foreignIDs = []string{
	"9rCXCJDsnS53QtdXvYhYCAxb6yBE16KAQx5zHWfHe9QF",
	"Bt9xbg8fz3mQCuk4jwso1Daj9pLwPiXtgHeMZqUhuS9A",
	"G33TSUoKH1xM7bPXTMoQhGQhfwWkWT8dGaW6dunDQoen",
	"DyYDszBZ8m92i9bJeQMhErkqQ4UPBG4pVZxmQL3CNnC",
}

func TestDecode32_RoundTrip(t *testing.T) {
	for _, id := range foreignIDs {
		t.Run(id, func(t *testing.T) {
			key, err := Decode32(id)
			require.NoError(t, err)
			assert.Equal(t, id, Encode(key[:]))
		})
	}
}

func TestDecode32_RoundTripLeadingZeros(t *testing.T) {
	var zero, oneZero, manyZeros, onlyLast [KeySize]byte
	oneZero[1] = 0xff
	manyZeros[20] = 0x01
	manyZeros[31] = 0x7f
	onlyLast[31] = 0x01

	tests := []struct {
		name string
		key  [KeySize]byte
	}{
		{"all zero", zero},
		{"one leading zero", oneZero},
		{"twenty leading zeros", manyZeros},
		{"only last byte set", onlyLast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := Encode(tt.key[:])
			got, err := Decode32(id)
			require.NoError(t, err)
			assert.Equal(t, tt.key, got)
			assert.Equal(t, id, Encode(got[:]))
		})
	}
	assert.Equal(t, strings.Repeat("1", KeySize), Encode(zero[:]))
}

func TestDecode32_RoundTripRandomKeys(t *testing.T) {
	faker := gofakeit.New(58)
	for i := 0; i < 200; i++ {
		var key [KeySize]byte
		for j := range key {
			key[j] = faker.Uint8()
		}
		// Zero a random prefix so leading-zero handling is covered.
		zeros := faker.Number(0, 4)
		for j := 0; j < zeros; j++ {
			key[j] = 0
		}

		id := Encode(key[:])
		got, err := Decode32(id)
		require.NoError(t, err, "key %x", key)
		require.Equal(t, key, got)
		require.Equal(t, id, Encode(got[:]))
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "zero is not in the alphabet", input: "0abc"},
		{name: "uppercase O is not in the alphabet", input: "Oops"},
		{name: "lowercase l is not in the alphabet", input: "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			assert.ErrorIs(t, err, ErrMalformedIdentifier)
		})
	}
}

func TestDecodeFixed_WrongLength(t *testing.T) {
	short := Encode([]byte{1, 2, 3, 4})

	_, err := DecodeFixed(short, KeySize)
	assert.ErrorIs(t, err, ErrMalformedIdentifier)

	b, err := DecodeFixed(short, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)
}

func TestDecode_NoPadding(t *testing.T) {
	// Leading '1' characters are zero bytes, not padding.
	b, err := Decode("11" + Encode([]byte{0xff}))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0xff}, b)
}

func TestParseKey(t *testing.T) {
	fromBase58, err := Decode32(foreignIDs[1])
	require.NoError(t, err)

	t.Run("base58", func(t *testing.T) {
		key, err := ParseKey(foreignIDs[1])
		require.NoError(t, err)
		assert.Equal(t, fromBase58, key)
	})

	t.Run("hex", func(t *testing.T) {
		key, err := ParseKey(FormatKey(fromBase58))
		require.NoError(t, err)
		assert.Equal(t, fromBase58, key)
	})

	t.Run("short hex", func(t *testing.T) {
		_, err := ParseKey("0x" + strings.Repeat("ab", 31))
		assert.ErrorIs(t, err, ErrMalformedIdentifier)
	})

	t.Run("bad hex", func(t *testing.T) {
		_, err := ParseKey("0x" + strings.Repeat("zz", 32))
		assert.ErrorIs(t, err, ErrMalformedIdentifier)
	})
}
