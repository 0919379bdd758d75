package types

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func sampleOp() *UserOperation {
	return &UserOperation{
		ChainID:            8453,
		EntryPoint:         common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032"),
		Sender:             common.HexToAddress("0x524902FA5e3535117E24e9D6826e5950bfbEF94E"),
		Nonce:              big.NewInt(0),
		CallData:           []byte{0xde, 0xad},
		AccountGasLimits:   PackUint128Pair(big.NewInt(150000), big.NewInt(300000)),
		PreVerificationGas: big.NewInt(50000),
	}
}

func TestUserOpHashBindsChainAndEntryPoint(t *testing.T) {
	base := sampleOp().Hash()
	assert.Equal(t, base, sampleOp().Hash())

	other := sampleOp()
	other.ChainID = 10
	assert.NotEqual(t, base, other.Hash())

	other = sampleOp()
	other.EntryPoint = common.HexToAddress("0x01")
	assert.NotEqual(t, base, other.Hash())

	other = sampleOp()
	other.CallData = []byte{0xde, 0xae}
	assert.NotEqual(t, base, other.Hash())
}

func TestUserOpHashIgnoresSignature(t *testing.T) {
	op := sampleOp()
	h := op.Hash()
	op.Signature = []byte{1, 2, 3}
	assert.Equal(t, h, op.Hash())
}

func TestUserOpCopyIsDeep(t *testing.T) {
	op := sampleOp()
	cp := op.Copy()
	cp.CallData[0] = 0
	cp.Nonce.SetInt64(9)
	assert.Equal(t, byte(0xde), op.CallData[0])
	assert.Equal(t, int64(0), op.Nonce.Int64())
}

func TestUint128Pair(t *testing.T) {
	word := PackUint128Pair(big.NewInt(150000), big.NewInt(300000))
	hi, lo := UnpackUint128Pair(word)
	assert.Equal(t, int64(150000), hi.Int64())
	assert.Equal(t, int64(300000), lo.Int64())

	hi, lo = UnpackUint128Pair(PackUint128Pair(nil, nil))
	assert.Zero(t, hi.Sign())
	assert.Zero(t, lo.Sign())
}

func TestErrorKind(t *testing.T) {
	tests := map[string]error{
		"declined": fmt.Errorf("%w: signer said no", ErrUserDeclined),
		"reverted": fmt.Errorf("leg 2: %w", ErrOnChainRevert),
		"timeout":  ErrConfirmationTimeout,
		"config":   fmt.Errorf("%w: no vault", ErrConfiguration),
		"nofunds":  ErrNoFunds,
		"network":  fmt.Errorf("%w: dial", ErrNetwork),
		"error":    errors.New("other"),
		"":         nil,
	}
	for want, err := range tests {
		assert.Equal(t, want, ErrorKind(err))
	}
}
