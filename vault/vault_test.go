package vault

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gococo/EVMRPC/evmtest"
	"gococo/codec"
	"gococo/config"
	"gococo/contracts"
	"gococo/executor"
	"gococo/reconciler"
	"gococo/types"
	"gococo/wallet"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
const arc = 5042002

var (
	usdc     = common.HexToAddress("0x3600000000000000000000000000000000000000")
	vaultAt  = common.HexToAddress("0x33Fb47472D03Ce0174830A6bD21e39F65d6d5425")
	registry = common.HexToAddress("0x6c86812F1a5aeb738951B6f8A0b3b3FB4C856f82")
)

var testChains = map[int]config.ChainConfig{
	arc: {
		ChainID: arc, TokenAddress: usdc.Hex(), TokenDecimals: 6, Vault: vaultAt.Hex(),
		FlashLoan: registry.Hex(), Borrower: "0x524902FA5e3535117E24e9D6826e5950bfbEF94E",
	},
	8453: {ChainID: 8453, TokenAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", TokenDecimals: 6},
}

var fastWait = executor.WaitOpts{Interval: time.Millisecond, MaxWait: 20 * time.Millisecond}

// fixedPositions answers ListPositions with whatever the test set
type fixedPositions struct {
	positions []reconciler.Position
	calls     int
}

func (p *fixedPositions) ListPositions(ctx context.Context, account common.Address) ([]reconciler.Position, error) {
	p.calls++
	return p.positions, nil
}

func newFlows(t *testing.T, positions PositionSource) (*Flows, *evmtest.Client) {
	t.Helper()
	signer, err := wallet.NewKeySigner(testKey, nil)
	require.NoError(t, err)
	client := evmtest.New(arc)
	ex := executor.New(evmtest.Registry{arc: client, 8453: evmtest.New(8453)}, signer)
	if positions == nil {
		positions = &fixedPositions{}
	}
	return New(ex, testChains, positions, fastWait), client
}

func TestDepositApproveThenShip(t *testing.T) {
	flows, client := newFlows(t, nil)
	amount, err := codec.ParseUnits("100.00", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000_000), amount.Int64())

	strategy, err := flows.NewStrategy(arc, config.DEFAULT_FEE_BPS)
	require.NoError(t, err)

	// ship may only go out once approve has a successful receipt
	client.Receipt = func(h common.Hash, attempt int) (*ethtypes.Receipt, error) {
		if len(client.Sent) == 1 && attempt < 3 {
			return nil, ethereum.NotFound
		}
		return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, TxHash: h}, nil
	}

	var steps []Step
	res, err := flows.Deposit(context.Background(), arc, strategy, amount, func(s Step) { steps = append(steps, s) })
	require.NoError(t, err)

	require.Len(t, res.Legs, 2)
	assert.Equal(t, executor.Confirmed, res.Legs[0].Outcome)
	assert.Equal(t, executor.Confirmed, res.Legs[1].Outcome)
	assert.Equal(t, []common.Address{usdc, vaultAt}, client.SentTo())
	assert.Equal(t, 3, client.Attempts(res.Legs[0].TxHash))
	assert.Equal(t, res.Legs[1].TxHash, res.TxHash())

	approve, err := contracts.PackApprove(vaultAt, amount)
	require.NoError(t, err)
	assert.Equal(t, approve, client.Sent[0].Data())

	encoded, err := strategy.Encode()
	require.NoError(t, err)
	ship, err := contracts.PackShip(registry, encoded, []common.Address{usdc}, []*big.Int{amount})
	require.NoError(t, err)
	assert.Equal(t, ship, client.Sent[1].Data())

	require.Len(t, steps, 4)
	assert.Equal(t, "approve", steps[0].Name)
	assert.Equal(t, executor.Pending, steps[0].Outcome)
	assert.Equal(t, executor.Confirmed, steps[1].Outcome)
	assert.Equal(t, "ship", steps[3].Name)
	assert.Equal(t, 2, steps[3].Total)
}

func TestDepositStopsAfterFailedApprove(t *testing.T) {
	flows, client := newFlows(t, nil)
	client.Receipt = func(h common.Hash, attempt int) (*ethtypes.Receipt, error) {
		return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed, TxHash: h}, nil
	}
	strategy, err := flows.NewStrategy(arc, 10)
	require.NoError(t, err)

	res, err := flows.Deposit(context.Background(), arc, strategy, big.NewInt(1), nil)
	assert.True(t, errors.Is(err, types.ErrOnChainRevert))
	assert.Contains(t, err.Error(), "approve")
	require.Len(t, res.Legs, 1)
	assert.Equal(t, executor.Reverted, res.Legs[0].Outcome)
	assert.Len(t, client.Sent, 1)
}

func TestWithdrawWithoutDepositSubmitsNothing(t *testing.T) {
	client := evmtest.New(arc)
	client.Head = 10_000
	signer, err := wallet.NewKeySigner(testKey, nil)
	require.NoError(t, err)
	clients := evmtest.Registry{arc: client}
	r := reconciler.New(clients, testChains, config.DEFAULT_SCAN_WINDOW)
	flows := New(executor.New(clients, signer), testChains, r, fastWait)

	positions, err := r.ListPositions(context.Background(), signer.Address())
	require.NoError(t, err)
	assert.Empty(t, positions)

	strategy, err := flows.NewStrategy(arc, 10)
	require.NoError(t, err)
	_, err = flows.Withdraw(context.Background(), arc, strategy, nil)
	assert.True(t, errors.Is(err, types.ErrNoFunds))
	assert.Empty(t, client.Sent)
}

func TestStrategyRoundTrip(t *testing.T) {
	positions := &fixedPositions{}
	flows, client := newFlows(t, positions)

	created, err := flows.CreateStrategy(context.Background(), arc, big.NewInt(5_000_000), config.DEFAULT_FEE_BPS, nil)
	require.NoError(t, err)
	require.Len(t, created.Legs, 3)
	assert.Equal(t, []common.Address{registry, usdc, vaultAt}, client.SentTo())

	register, err := contracts.PackRegisterStrategy(*created.Strategy)
	require.NoError(t, err)
	assert.Equal(t, register, client.Sent[0].Data())

	// the withdrawal side only knows the field values
	again := codec.Strategy{
		Maker:  created.Strategy.Maker,
		Token:  created.Strategy.Token,
		Salt:   created.Strategy.Salt,
		FeeBps: created.Strategy.FeeBps,
	}
	recomputed, err := again.Hash()
	require.NoError(t, err)
	assert.Equal(t, created.StrategyHash, recomputed)

	positions.positions = []reconciler.Position{{ChainID: arc, StrategyHash: created.StrategyHash, RawLiquidity: big.NewInt(5_000_000), IsActive: true}}
	withdrawn, err := flows.Withdraw(context.Background(), arc, again, nil)
	require.NoError(t, err)
	assert.Equal(t, executor.Confirmed, withdrawn.Legs[0].Outcome)

	dock, err := contracts.PackDock(registry, created.StrategyHash, []common.Address{usdc})
	require.NoError(t, err)
	assert.Equal(t, dock, client.Sent[3].Data())
	assert.Equal(t, vaultAt, *client.Sent[3].To())
}

func TestWithdrawNeedsMatchingChain(t *testing.T) {
	positions := &fixedPositions{}
	flows, client := newFlows(t, positions)
	strategy, err := flows.NewStrategy(arc, 10)
	require.NoError(t, err)
	hash, err := strategy.Hash()
	require.NoError(t, err)

	positions.positions = []reconciler.Position{{ChainID: 8453, StrategyHash: hash, IsActive: true}}
	_, err = flows.Withdraw(context.Background(), arc, strategy, nil)
	assert.True(t, errors.Is(err, types.ErrNoFunds))
	assert.Empty(t, client.Sent)
}

func TestWithdrawOnlyOwnStrategy(t *testing.T) {
	positions := &fixedPositions{}
	flows, client := newFlows(t, positions)
	strategy, err := flows.NewStrategy(arc, 10)
	require.NoError(t, err)
	strategy.Maker = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	hash, err := strategy.Hash()
	require.NoError(t, err)

	positions.positions = []reconciler.Position{{ChainID: arc, StrategyHash: hash, IsActive: true}}
	_, err = flows.Withdraw(context.Background(), arc, strategy, nil)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
	assert.Zero(t, positions.calls)
	assert.Empty(t, client.Sent)
}

func TestSend(t *testing.T) {
	flows, client := newFlows(t, nil)
	client.Estimate = func(ethereum.CallMsg) (uint64, error) { return 50_000, nil }
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	res, err := flows.Send(context.Background(), arc, to, big.NewInt(1_000_000), nil)
	require.NoError(t, err)
	assert.Equal(t, executor.Confirmed, res.Legs[0].Outcome)
	assert.Equal(t, uint64(60_000), client.Sent[0].Gas())
	assert.Equal(t, usdc, *client.Sent[0].To())

	transfer, err := contracts.PackTransfer(to, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, transfer, client.Sent[0].Data())
}

func TestFlowsRejectBadInput(t *testing.T) {
	flows, client := newFlows(t, nil)

	_, err := flows.CreateStrategy(context.Background(), 8453, big.NewInt(1), 10, nil)
	assert.True(t, errors.Is(err, types.ErrConfiguration), "no registry on the chain")

	_, err = flows.CreateStrategy(context.Background(), arc, big.NewInt(0), 10, nil)
	assert.True(t, errors.Is(err, types.ErrConfiguration))

	_, err = flows.Send(context.Background(), arc, common.Address{}, big.NewInt(1), nil)
	assert.True(t, errors.Is(err, types.ErrConfiguration))

	_, err = flows.Send(context.Background(), 1, common.HexToAddress("0x01"), big.NewInt(1), nil)
	assert.True(t, errors.Is(err, types.ErrConfiguration))

	assert.Empty(t, client.Sent)
}

func TestDeclinedLegIsRejected(t *testing.T) {
	signer, err := wallet.NewKeySigner(testKey, func(context.Context, string) bool { return false })
	require.NoError(t, err)
	client := evmtest.New(arc)
	flows := New(executor.New(evmtest.Registry{arc: client}, signer), testChains, &fixedPositions{}, fastWait)

	res, err := flows.Send(context.Background(), arc, common.HexToAddress("0x01"), big.NewInt(1), nil)
	assert.True(t, errors.Is(err, types.ErrUserDeclined))
	assert.Equal(t, executor.Rejected, res.Legs[0].Outcome)
	assert.Empty(t, client.Sent)
}
