// Package balances polls the account's token balance on every configured chain.
package balances

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"gococo/codec"
	"gococo/config"
	"gococo/contracts"
	"gococo/executor"
	"gococo/metrics"
	"gococo/poll"
	"gococo/types"
)

const workerName = "balances"

// concurrent balanceOf calls per cycle
const fetchConcurrency = 8

type ChainBalance struct {
	ChainID   int
	Symbol    string
	RawAmount *big.Int
	Decimals  int
	Formatted string
}

// Aggregator keeps the latest balance of one account on every chain. A chain
// that fails a cycle keeps its previous balance.
type Aggregator struct {
	clients executor.ClientSource
	chains  map[int]config.ChainConfig
	account common.Address

	mu      sync.RWMutex
	latest  map[int]ChainBalance
	updated time.Time
}

func New(clients executor.ClientSource, chains map[int]config.ChainConfig, account common.Address) *Aggregator {
	return &Aggregator{
		clients: clients,
		chains:  chains,
		account: account,
		latest:  make(map[int]ChainBalance),
	}
}

func (a *Aggregator) balanceOn(ctx context.Context, chain config.ChainConfig) (ChainBalance, error) {
	client, err := a.clients.Get(chain.ChainID)
	if err != nil {
		return ChainBalance{}, err
	}
	data, err := contracts.PackBalanceOf(a.account)
	if err != nil {
		return ChainBalance{}, err
	}
	token := common.HexToAddress(chain.TokenAddress)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return ChainBalance{}, fmt.Errorf("%w: balanceOf: %s", types.ErrNetwork, err.Error())
	}
	raw, err := contracts.UnpackUint(contracts.ERC20ABI, "balanceOf", out)
	if err != nil {
		return ChainBalance{}, fmt.Errorf("%w: %s", types.ErrNetwork, err.Error())
	}
	return ChainBalance{
		ChainID:   chain.ChainID,
		Symbol:    chain.TokenSymbol,
		RawAmount: raw,
		Decimals:  chain.TokenDecimals,
		Formatted: codec.FormatUnits(raw, chain.TokenDecimals),
	}, nil
}

// Fetch reads the balance on every chain with a token configured. Balances of
// the chains that answered are returned along with the failures of the others.
func (a *Aggregator) Fetch(ctx context.Context) ([]ChainBalance, error) {
	var chains []config.ChainConfig
	for _, id := range config.ChainIDs(a.chains) {
		if c := a.chains[id]; c.TokenAddress != "" {
			chains = append(chains, c)
		}
	}

	results := make([]*ChainBalance, len(chains))
	errs := make([]error, len(chains))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, chain := range chains {
		i, chain := i, chain
		g.Go(func() error {
			b, err := a.balanceOn(gctx, chain)
			if err != nil {
				errs[i] = &types.ChainError{ChainID: chain.ChainID, Err: err}
				return nil
			}
			results[i] = &b
			return nil
		})
	}
	_ = g.Wait()

	out := make([]ChainBalance, 0, len(chains))
	for _, b := range results {
		if b != nil {
			out = append(out, *b)
		}
	}
	return out, errors.Join(errs...)
}

// Refresh runs one cycle, updating every chain that answered
func (a *Aggregator) Refresh(ctx context.Context) error {
	fetched, err := a.Fetch(ctx)

	a.mu.Lock()
	for _, b := range fetched {
		a.latest[b.ChainID] = b
	}
	if len(fetched) > 0 {
		a.updated = time.Now()
	}
	a.mu.Unlock()

	if len(fetched) > 0 {
		metrics.LastRefresh.WithLabelValues(workerName).SetToCurrentTime()
	}
	return err
}

// Run refreshes once per interval until ctx is cancelled
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	poll.Every(ctx, interval, a.Refresh, func(err error) {
		if ctx.Err() != nil {
			return
		}
		for _, e := range unjoin(err) {
			chain := "unknown"
			var chainErr *types.ChainError
			if errors.As(e, &chainErr) {
				chain = metrics.Chain(chainErr.ChainID)
			}
			metrics.RefreshFailures.WithLabelValues(workerName, chain).Inc()
			log.WithField("chain", chain).Printf("Balance refresh failed, keeping previous: %s", e.Error())
		}
	})
}

func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// Latest returns the known balances in chain id order and when the last
// successful read happened
func (a *Aggregator) Latest() ([]ChainBalance, time.Time) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]ChainBalance, 0, len(a.latest))
	for _, id := range config.ChainIDs(a.chains) {
		if b, ok := a.latest[id]; ok {
			out = append(out, b)
		}
	}
	return out, a.updated
}

// Total adds up the balances of chains sharing decimals with the first one
func Total(balances []ChainBalance) (*big.Int, int) {
	total := new(big.Int)
	if len(balances) == 0 {
		return total, 0
	}
	decimals := balances[0].Decimals
	for _, b := range balances {
		if b.Decimals == decimals && b.RawAmount != nil {
			total.Add(total, b.RawAmount)
		}
	}
	return total, decimals
}
