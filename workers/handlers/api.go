package handlers

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"gococo/balances"
	"gococo/bridge"
	"gococo/codec"
	"gococo/config"
	"gococo/reconciler"
	"gococo/types"
	"gococo/vault"
)

type BalanceSource interface {
	Latest() ([]balances.ChainBalance, time.Time)
}

type PositionSource interface {
	Positions() ([]reconciler.Position, time.Time)
	Activity() ([]reconciler.LoanActivity, time.Time)
}

// Flows are the single-chain account flows, see vault.Flows
type Flows interface {
	CreateStrategy(ctx context.Context, chainID int, amount *big.Int, feeBps uint64, progress vault.Progress) (*vault.Result, error)
	Deposit(ctx context.Context, chainID int, strategy codec.Strategy, amount *big.Int, progress vault.Progress) (*vault.Result, error)
	Withdraw(ctx context.Context, chainID int, strategy codec.Strategy, progress vault.Progress) (*vault.Result, error)
	Send(ctx context.Context, chainID int, recipient common.Address, amount *big.Int, progress vault.Progress) (*vault.Result, error)
}

type Bridger interface {
	Bridge(ctx context.Context, req bridge.Request, notify func(bridge.Status)) bridge.Status
}

// Store is the bridge journal and address book, see redis.Store
type Store interface {
	GetBridgeOperation(id string) (*types.BridgeOperation, error)
	BridgeOperationsByStatus(status string) ([]*types.BridgeOperation, error)
	UpsertAddressBookRecord(rec *types.AddressBookRecord) error
	ListAddressBook(owner string) ([]*types.AddressBookRecord, error)
}

type Deps struct {
	Account       common.Address
	DefaultChain  int
	Chains        map[int]config.ChainConfig
	FeeBps        uint64
	ActivityLimit int

	Balances  BalanceSource
	Positions PositionSource
	Flows     Flows
	Bridge    Bridger
	Store     Store
	// background bridge flows stop when it is cancelled
	Ctx context.Context
}

type API struct {
	d Deps

	// one signing flow at a time for the account
	busy sync.Mutex
}

func New(d Deps) *API {
	if d.Ctx == nil {
		d.Ctx = context.Background()
	}
	if d.FeeBps == 0 {
		d.FeeBps = config.DEFAULT_FEE_BPS
	}
	if d.ActivityLimit <= 0 {
		d.ActivityLimit = config.DEFAULT_ACTIVITY_LIMIT
	}
	return &API{d: d}
}

func (a *API) chainOrDefault(chainID int) int {
	if chainID == 0 {
		return a.d.DefaultChain
	}
	return chainID
}
