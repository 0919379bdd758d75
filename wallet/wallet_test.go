package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gococo/types"
)

// well known hardhat account #0
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testAddress = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func TestKeySignerAddress(t *testing.T) {
	s, err := NewKeySigner("0x"+testKey, nil)
	require.NoError(t, err)
	assert.Equal(t, testAddress, s.Address())

	_, err = NewKeySigner("zz", nil)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestSignTx(t *testing.T) {
	s, err := NewKeySigner(testKey, nil)
	require.NoError(t, err)

	to := common.HexToAddress("0x3600000000000000000000000000000000000000")
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 1, To: &to, Gas: 21000, GasPrice: big.NewInt(1)})
	chainID := big.NewInt(5042002)

	signed, err := s.SignTx(context.Background(), chainID, tx)
	require.NoError(t, err)

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, testAddress, from)
}

func TestSignMessageRecovers(t *testing.T) {
	s, err := NewKeySigner(testKey, nil)
	require.NoError(t, err)

	msg := []byte("hello coco")
	sig, err := s.SignMessage(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	addr, err := RecoverMessageSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress, addr)

	other, err := RecoverMessageSigner([]byte("tampered"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, testAddress, other)

	_, err = RecoverMessageSigner(msg, sig[:10])
	assert.Error(t, err)
}

func TestSignMessageIsPersonalSign(t *testing.T) {
	s, err := NewKeySigner(testKey, nil)
	require.NoError(t, err)

	msg := []byte("hello coco")
	sig, err := s.SignMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, sig[64])

	digest := crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n10hello coco"))
	raw := common.CopyBytes(sig)
	raw[64] -= 27
	pub, err := crypto.SigToPub(digest, raw)
	require.NoError(t, err)
	assert.Equal(t, testAddress, crypto.PubkeyToAddress(*pub))
}

func TestDeclinedSigning(t *testing.T) {
	s, err := NewKeySigner(testKey, func(context.Context, string) bool { return false })
	require.NoError(t, err)

	_, err = s.SignMessage(context.Background(), []byte("x"))
	assert.True(t, errors.Is(err, types.ErrUserDeclined))

	to := common.Address{}
	_, err = s.SignTx(context.Background(), big.NewInt(1), ethtypes.NewTx(&ethtypes.LegacyTx{To: &to}))
	assert.True(t, errors.Is(err, types.ErrUserDeclined))

	_, err = s.SignUserOps(context.Background(), []*types.UserOperation{{}})
	assert.True(t, errors.Is(err, types.ErrUserDeclined))
}

func TestSignUserOpsPreservesOrderAndInput(t *testing.T) {
	s, err := NewKeySigner(testKey, nil)
	require.NoError(t, err)

	ops := []*types.UserOperation{
		{ChainID: 8453, Sender: testAddress, CallData: []byte{1}},
		{ChainID: 10, Sender: testAddress, CallData: []byte{2}},
	}
	signed, err := s.SignUserOps(context.Background(), ops)
	require.NoError(t, err)
	require.Len(t, signed, 2)

	for i := range ops {
		assert.Empty(t, ops[i].Signature)
		assert.Equal(t, ops[i].CallData, signed[i].CallData)
		hash := signed[i].Hash()
		addr, err := RecoverMessageSigner(hash.Bytes(), signed[i].Signature)
		require.NoError(t, err)
		assert.Equal(t, testAddress, addr)
	}
}
