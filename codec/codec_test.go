package codec

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gococo/types"
)

var (
	maker = common.HexToAddress("0x524902FA5e3535117E24e9D6826e5950bfbEF94E")
	usdc  = common.HexToAddress("0x3600000000000000000000000000000000000000")
)

func sampleStrategy() Strategy {
	var salt [32]byte
	salt[31] = 1
	return Strategy{Maker: maker, Token: usdc, Salt: salt, FeeBps: 10}
}

func TestStrategyEncodingIsFourWords(t *testing.T) {
	s := sampleStrategy()
	encoded, err := s.Encode()
	require.NoError(t, err)

	fee, err := WordFromBig(big.NewInt(10))
	require.NoError(t, err)
	want := bytes.Join([][]byte{
		PadAddress(maker).Bytes(),
		PadAddress(usdc).Bytes(),
		s.Salt[:],
		fee.Bytes(),
	}, nil)
	assert.Equal(t, want, encoded)

	hash, err := s.Hash()
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(want), hash)
}

func TestStrategyHashDeterministic(t *testing.T) {
	a, err := sampleStrategy().Hash()
	require.NoError(t, err)
	b, err := sampleStrategy().Hash()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestStrategyHashChangesWithEveryField(t *testing.T) {
	base, err := sampleStrategy().Hash()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(s *Strategy)
	}{
		{"maker", func(s *Strategy) { s.Maker = common.HexToAddress("0x6c86812F1a5aeb738951B6f8A0b3b3FB4C856f82") }},
		{"token", func(s *Strategy) { s.Token = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913") }},
		{"salt", func(s *Strategy) { s.Salt[0] = 0xff }},
		{"fee", func(s *Strategy) { s.FeeBps = 11 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleStrategy()
			tt.mutate(&s)
			h, err := s.Hash()
			require.NoError(t, err)
			assert.NotEqual(t, base, h)
		})
	}
}

func TestStrategyEncodesAnyFee(t *testing.T) {
	s := sampleStrategy()
	s.FeeBps = 1 << 40
	_, err := s.Encode()
	assert.NoError(t, err)
}

func TestStrategyRejectsZeroAddresses(t *testing.T) {
	s := sampleStrategy()
	s.Maker = common.Address{}
	_, err := s.Hash()
	assert.True(t, errors.Is(err, types.ErrConfiguration))

	s = sampleStrategy()
	s.Token = common.Address{}
	_, err = s.Encode()
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestNewSaltIsFresh(t *testing.T) {
	assert.NotEqual(t, NewSalt(), NewSalt())
}

func TestSaltFromHex(t *testing.T) {
	salt, err := SaltFromHex("0x01")
	require.NoError(t, err)
	assert.Equal(t, byte(1), salt[31])

	_, err = SaltFromHex("")
	assert.Error(t, err)
}

func TestAddressWords(t *testing.T) {
	word := PadAddress(maker)
	got, err := AddressFromWord(word)
	require.NoError(t, err)
	assert.Equal(t, maker, got)

	word[0] = 1
	_, err = AddressFromWord(word)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestBigWords(t *testing.T) {
	v := big.NewInt(123456789)
	word, err := WordFromBig(v)
	require.NoError(t, err)
	assert.Equal(t, 0, BigFromWord(word).Cmp(v))

	_, err = WordFromBig(big.NewInt(-1))
	assert.Error(t, err)
	_, err = WordFromBig(new(big.Int).Lsh(big.NewInt(1), 256))
	assert.Error(t, err)
}

func TestUnits(t *testing.T) {
	raw, err := ParseUnits("100.00", 6)
	require.NoError(t, err)
	assert.Equal(t, "100000000", raw.String())

	assert.Equal(t, "100.000000", FormatUnits(raw, 6))
	assert.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
	assert.Equal(t, "0.000000", FormatUnits(nil, 6))

	for _, bad := range []string{"", "abc", "-1", "0", "1.0000001"} {
		_, err := ParseUnits(bad, 6)
		assert.Error(t, err, bad)
	}
}
