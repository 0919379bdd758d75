package smartaccount

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gococo/config"
	"gococo/contracts"
	"gococo/executor"
	"gococo/types"
	"gococo/wallet"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	usdcArc  = common.HexToAddress("0x3600000000000000000000000000000000000000")
	usdcBase = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	hub      = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

var testChains = map[int]config.ChainConfig{
	5042002: {ChainID: 5042002, EntryPoint: config.ENTRY_POINT_V07},
	8453:    {ChainID: 8453, EntryPoint: config.ENTRY_POINT_V07},
}

var fastWait = executor.WaitOpts{Interval: time.Millisecond, MaxWait: 20 * time.Millisecond}

var usdc = ChainTarget{Name: "usdc", Addresses: map[int]common.Address{5042002: usdcArc, 8453: usdcBase}}

// rawSigner hides SignUserOps so only raw message signing is available
type rawSigner struct {
	wallet.Signer
	calls int32
	fail  func(msg []byte) bool
}

func (s *rawSigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.fail != nil && s.fail(msg) {
		return nil, fmt.Errorf("%w: message", types.ErrUserDeclined)
	}
	return s.Signer.SignMessage(ctx, msg)
}

type fakeBundler struct {
	mu       sync.Mutex
	sent     []*types.UserOperation
	sendErr  error
	receipts func(opHash common.Hash, attempt int) (*UserOpReceipt, error)
	attempts map[common.Hash]int
}

func (b *fakeBundler) SendUserOperation(ctx context.Context, op *types.UserOperation) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return common.Hash{}, b.sendErr
	}
	b.sent = append(b.sent, op)
	return op.Hash(), nil
}

func (b *fakeBundler) GetUserOperationReceipt(ctx context.Context, chainID int, opHash common.Hash) (*UserOpReceipt, error) {
	b.mu.Lock()
	if b.attempts == nil {
		b.attempts = make(map[common.Hash]int)
	}
	b.attempts[opHash]++
	attempt := b.attempts[opHash]
	b.mu.Unlock()
	return b.receipts(opHash, attempt)
}

func keySigner(t *testing.T) *wallet.KeySigner {
	t.Helper()
	s, err := wallet.NewKeySigner(testKey, nil)
	require.NoError(t, err)
	return s
}

func transferCall(to common.Address, amount string) Call {
	return Call{Target: usdc, ABI: contracts.ERC20ABI, Method: "transfer", Args: []any{to, amount}}
}

func buildOps(t *testing.T, a *Adapter) []*types.UserOperation {
	t.Helper()
	var ops []*types.UserOperation
	for _, chainID := range []int{5042002, 8453} {
		op, err := a.BuildUserOperation(context.Background(), chainID, []Call{transferCall(hub, "1000000")})
		require.NoError(t, err)
		ops = append(ops, op)
	}
	return ops
}

func TestChainTargetResolution(t *testing.T) {
	addr, err := usdc.On(8453)
	require.NoError(t, err)
	assert.Equal(t, usdcBase, addr)

	_, err = usdc.On(1)
	assert.True(t, errors.Is(err, types.ErrConfiguration))

	everywhere := Everywhere("hub", hub, 1, 10)
	addr, err = everywhere.On(10)
	require.NoError(t, err)
	assert.Equal(t, hub, addr)
}

func TestEncodeCallsResolvesPerChain(t *testing.T) {
	spender := ChainTarget{Name: "vault", Addresses: map[int]common.Address{
		5042002: common.HexToAddress("0x01"),
		8453:    common.HexToAddress("0x02"),
	}}
	call := Call{Target: usdc, ABI: contracts.ERC20ABI, Method: "approve", Args: []any{spender, "0x64"}}

	arc, err := EncodeCalls(5042002, []Call{call})
	require.NoError(t, err)
	base, err := EncodeCalls(8453, []Call{call})
	require.NoError(t, err)
	assert.NotEqual(t, arc, base)

	approve, err := contracts.PackApprove(common.HexToAddress("0x01"), big.NewInt(100))
	require.NoError(t, err)
	want, err := contracts.PackExecuteBatch([]common.Address{usdcArc}, []*big.Int{big.NewInt(0)}, [][]byte{approve})
	require.NoError(t, err)
	assert.Equal(t, want, arc)
}

func TestEncodeCallsOrderMatters(t *testing.T) {
	a := transferCall(common.HexToAddress("0x01"), "1")
	b := transferCall(common.HexToAddress("0x02"), "2")

	ab, err := EncodeCalls(8453, []Call{a, b})
	require.NoError(t, err)
	ba, err := EncodeCalls(8453, []Call{b, a})
	require.NoError(t, err)
	assert.NotEqual(t, ab, ba)
}

func TestEncodeCallsFailsOnMissingTarget(t *testing.T) {
	_, err := EncodeCalls(1, []Call{transferCall(hub, "1")})
	assert.True(t, errors.Is(err, types.ErrConfiguration))

	argMissing := Call{Target: usdc, ABI: contracts.ERC20ABI, Method: "transfer", Args: []any{Everywhere("hub", hub, 1), "1"}}
	_, err = EncodeCalls(8453, []Call{argMissing})
	assert.True(t, errors.Is(err, types.ErrConfiguration))

	_, err = EncodeCalls(8453, nil)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestAdapterStubs(t *testing.T) {
	signer := keySigner(t)
	a, err := New(RawMessageOnly(signer), testChains, &fakeBundler{})
	require.NoError(t, err)

	for chainID := range testChains {
		addr, err := a.AddressOn(chainID)
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), addr)
	}
	assert.False(t, a.HasAddress(1))

	op, err := a.BuildUserOperation(context.Background(), 8453, []Call{transferCall(hub, "5")})
	require.NoError(t, err)
	assert.Equal(t, 0, op.Nonce.Sign())
	assert.Empty(t, op.InitCode)
	assert.Equal(t, common.HexToAddress(config.ENTRY_POINT_V07), op.EntryPoint)

	verification, call := types.UnpackUint128Pair(op.AccountGasLimits)
	assert.Equal(t, int64(VERIFICATION_GAS_STUB), verification.Int64())
	assert.Equal(t, int64(CALL_GAS_STUB), call.Int64())
	assert.Equal(t, common.Hash{}, op.GasFees)

	_, err = a.BuildUserOperation(context.Background(), 1, []Call{transferCall(hub, "5")})
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestNewRequiresSigner(t *testing.T) {
	_, err := New(Capability{}, testChains, nil)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestSignUserOpsRawMessage(t *testing.T) {
	signer := &rawSigner{Signer: keySigner(t)}
	a, err := New(RawMessageOnly(signer), testChains, nil)
	require.NoError(t, err)
	assert.False(t, a.capability.IsNative())

	ops := buildOps(t, a)
	signed, err := a.SignUserOps(context.Background(), ops)
	require.NoError(t, err)
	require.Len(t, signed, len(ops))

	for i, op := range signed {
		assert.Equal(t, ops[i].ChainID, op.ChainID)
		assert.Empty(t, ops[i].Signature, "input operations are not modified")
		who, err := wallet.RecoverMessageSigner(UserOpHash(op).Bytes(), op.Signature)
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), who)
	}
}

func TestSignUserOpsAttemptsEveryOperation(t *testing.T) {
	a, err := New(RawMessageOnly(keySigner(t)), testChains, nil)
	require.NoError(t, err)
	ops := buildOps(t, a)
	first := UserOpHash(ops[0])

	signer := &rawSigner{Signer: keySigner(t), fail: func(msg []byte) bool { return common.BytesToHash(msg) == first }}
	a, err = New(RawMessageOnly(signer), testChains, nil)
	require.NoError(t, err)

	_, err = a.SignUserOps(context.Background(), ops)
	assert.True(t, errors.Is(err, types.ErrUserDeclined))
	assert.Equal(t, int32(2), atomic.LoadInt32(&signer.calls))
}

func TestSignUserOpsNative(t *testing.T) {
	signer := keySigner(t)
	a, err := New(Native(signer), testChains, nil)
	require.NoError(t, err)
	assert.True(t, a.capability.IsNative())

	ops := buildOps(t, a)
	signed, err := a.SignUserOps(context.Background(), ops)
	require.NoError(t, err)
	for _, op := range signed {
		who, err := wallet.RecoverMessageSigner(op.Hash().Bytes(), op.Signature)
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), who)
	}

	declining, err := wallet.NewKeySigner(testKey, func(context.Context, string) bool { return false })
	require.NoError(t, err)
	a, err = New(Native(declining), testChains, nil)
	require.NoError(t, err)
	_, err = a.SignUserOps(context.Background(), ops)
	assert.True(t, errors.Is(err, types.ErrUserDeclined))
}

func TestSendUserOperation(t *testing.T) {
	bundler := &fakeBundler{}
	a, err := New(Native(keySigner(t)), testChains, bundler)
	require.NoError(t, err)
	ops := buildOps(t, a)

	_, err = a.SendUserOperation(context.Background(), ops[0])
	assert.True(t, errors.Is(err, types.ErrConfiguration), "unsigned operations are not sent")

	signed, err := a.SignUserOps(context.Background(), ops)
	require.NoError(t, err)
	id, err := a.SendUserOperation(context.Background(), signed[0])
	require.NoError(t, err)
	assert.Equal(t, signed[0].Hash(), id)
	assert.Len(t, bundler.sent, 1)

	bundler.sendErr = fmt.Errorf("%w: refused", types.ErrNetwork)
	_, err = a.SendUserOperation(context.Background(), signed[1])
	assert.True(t, errors.Is(err, types.ErrNetwork))
}

func TestAwaitUserOperation(t *testing.T) {
	opHash := common.HexToHash("0xabc")
	txHash := common.HexToHash("0xdef")

	t.Run("confirmed after pending polls", func(t *testing.T) {
		bundler := &fakeBundler{receipts: func(h common.Hash, attempt int) (*UserOpReceipt, error) {
			if attempt == 1 {
				return nil, errors.New("bad gateway")
			}
			if attempt < 3 {
				return nil, nil
			}
			return &UserOpReceipt{OpHash: h, Success: true, TxHash: txHash}, nil
		}}
		a, err := New(Native(keySigner(t)), testChains, bundler)
		require.NoError(t, err)

		outcome, tx, err := a.AwaitUserOperation(context.Background(), 8453, opHash, fastWait)
		require.NoError(t, err)
		assert.Equal(t, executor.Confirmed, outcome)
		assert.Equal(t, txHash, tx)
	})

	t.Run("reverted", func(t *testing.T) {
		bundler := &fakeBundler{receipts: func(h common.Hash, attempt int) (*UserOpReceipt, error) {
			return &UserOpReceipt{OpHash: h, Success: false, Reason: "AA23", TxHash: txHash}, nil
		}}
		a, err := New(Native(keySigner(t)), testChains, bundler)
		require.NoError(t, err)

		outcome, tx, err := a.AwaitUserOperation(context.Background(), 8453, opHash, fastWait)
		assert.Equal(t, executor.Reverted, outcome)
		assert.Equal(t, txHash, tx)
		assert.True(t, errors.Is(err, types.ErrOnChainRevert))
		assert.Contains(t, err.Error(), "AA23")
	})

	t.Run("timed out", func(t *testing.T) {
		bundler := &fakeBundler{receipts: func(common.Hash, int) (*UserOpReceipt, error) { return nil, nil }}
		a, err := New(Native(keySigner(t)), testChains, bundler)
		require.NoError(t, err)

		outcome, _, err := a.AwaitUserOperation(context.Background(), 8453, opHash, fastWait)
		assert.Equal(t, executor.TimedOut, outcome)
		assert.True(t, errors.Is(err, types.ErrConfirmationTimeout))
	})

	t.Run("timed out only after an uneven budget", func(t *testing.T) {
		bundler := &fakeBundler{receipts: func(common.Hash, int) (*UserOpReceipt, error) { return nil, nil }}
		a, err := New(Native(keySigner(t)), testChains, bundler)
		require.NoError(t, err)

		opts := executor.WaitOpts{Interval: time.Second, MaxWait: 30 * time.Millisecond}
		start := time.Now()
		outcome, _, err := a.AwaitUserOperation(context.Background(), 8453, opHash, opts)
		assert.Equal(t, executor.TimedOut, outcome)
		assert.True(t, errors.Is(err, types.ErrConfirmationTimeout))
		assert.GreaterOrEqual(t, time.Since(start), opts.MaxWait)
	})

	t.Run("zero interval does not panic", func(t *testing.T) {
		bundler := &fakeBundler{receipts: func(common.Hash, int) (*UserOpReceipt, error) { return nil, nil }}
		a, err := New(Native(keySigner(t)), testChains, bundler)
		require.NoError(t, err)

		outcome, _, err := a.AwaitUserOperation(context.Background(), 8453, opHash, executor.WaitOpts{})
		assert.Equal(t, executor.TimedOut, outcome)
		assert.True(t, errors.Is(err, types.ErrConfirmationTimeout))
	})

	t.Run("abandoned", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		bundler := &fakeBundler{receipts: func(common.Hash, int) (*UserOpReceipt, error) {
			cancel()
			return nil, nil
		}}
		a, err := New(Native(keySigner(t)), testChains, bundler)
		require.NoError(t, err)

		outcome, _, err := a.AwaitUserOperation(ctx, 8453, opHash, fastWait)
		assert.Equal(t, executor.Pending, outcome)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
