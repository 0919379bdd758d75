// Package reconciler derives strategy positions and loan activity from a
// bounded window of registry event logs, on every chain the registry is
// deployed on.
package reconciler

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"gococo/EVMRPC"
	"gococo/codec"
	"gococo/config"
	"gococo/contracts"
	"gococo/executor"
	"gococo/types"
)

type Position struct {
	ChainID       int
	StrategyHash  common.Hash
	Token         common.Address
	RawLiquidity  *big.Int
	RawFeesEarned *big.Int
	LoanCount     int
	LastActivity  time.Time // zero without loans in the window
	IsActive      bool
}

type LoanActivity struct {
	ID             common.Hash // settlement transaction
	ChainID        int
	Counterparty   common.Address
	RawAmount      *big.Int
	RawFee         *big.Int
	StrategyHash   common.Hash
	BlockNumber    uint64
	BlockTimestamp time.Time
	logIndex       uint
}

type Reconciler struct {
	clients executor.ClientSource
	chains  map[int]config.ChainConfig
	window  uint64
}

func New(clients executor.ClientSource, chains map[int]config.ChainConfig, window int) *Reconciler {
	if window <= 0 {
		window = config.DEFAULT_SCAN_WINDOW
	}
	return &Reconciler{clients: clients, chains: chains, window: uint64(window)}
}

// registryChains lists the chains with a deployed registry, in id order
func (r *Reconciler) registryChains() []config.ChainConfig {
	var out []config.ChainConfig
	for _, id := range config.ChainIDs(r.chains) {
		if c := r.chains[id]; c.HasFlashLoan() {
			out = append(out, c)
		}
	}
	return out
}

// scan is one chain's view of the window
type scan struct {
	chain  config.ChainConfig
	client EVMRPC.Client
	maker  common.Address
	from   uint64
	head   uint64
}

func (r *Reconciler) newScan(ctx context.Context, chain config.ChainConfig, maker common.Address) (*scan, error) {
	client, err := r.clients.Get(chain.ChainID)
	if err != nil {
		return nil, err
	}
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: eth_blockNumber: %s", types.ErrNetwork, err.Error())
	}
	from := uint64(0)
	if head > r.window {
		from = head - r.window
	}
	return &scan{chain: chain, client: client, maker: maker, from: from, head: head}, nil
}

func (s *scan) filter(ctx context.Context, topics [][]common.Hash) ([]ethtypes.Log, error) {
	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(s.from),
		ToBlock:   new(big.Int).SetUint64(s.head),
		Addresses: []common.Address{common.HexToAddress(s.chain.FlashLoan)},
		Topics:    topics,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: eth_getLogs: %s", types.ErrNetwork, err.Error())
	}
	return logs, nil
}

// strategies returns the maker's registrations in the window, first registration wins
func (s *scan) strategies(ctx context.Context) ([]*contracts.StrategyRegistered, error) {
	logs, err := s.filter(ctx, [][]common.Hash{{contracts.StrategyRegisteredTopic}, {codec.PadAddress(s.maker)}})
	if err != nil {
		return nil, err
	}
	seen := make(map[common.Hash]bool)
	var out []*contracts.StrategyRegistered
	for _, l := range logs {
		ev, err := contracts.DecodeStrategyRegistered(l)
		if err != nil {
			log.WithField("chain", s.chain.ChainID).Printf("Skipping malformed registration: %s", err.Error())
			continue
		}
		if ev.Maker != s.maker || seen[ev.StrategyHash] {
			continue
		}
		seen[ev.StrategyHash] = true
		out = append(out, ev)
	}
	return out, nil
}

// loans returns the settlements crediting the maker in the window
func (s *scan) loans(ctx context.Context) ([]*contracts.LoanExecuted, error) {
	logs, err := s.filter(ctx, [][]common.Hash{{contracts.LoanExecutedTopic}, nil, {codec.PadAddress(s.maker)}})
	if err != nil {
		return nil, err
	}
	var out []*contracts.LoanExecuted
	for _, l := range logs {
		ev, err := contracts.DecodeLoanExecuted(l)
		if err != nil {
			log.WithField("chain", s.chain.ChainID).Printf("Skipping malformed settlement: %s", err.Error())
			continue
		}
		if ev.Maker != s.maker {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *scan) rawBalance(ctx context.Context, strategyHash common.Hash, token common.Address) (*big.Int, error) {
	data, err := contracts.PackRawBalances(s.maker, common.HexToAddress(s.chain.FlashLoan), strategyHash, token)
	if err != nil {
		return nil, err
	}
	vault := common.HexToAddress(s.chain.Vault)
	out, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &vault, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: rawBalances: %s", types.ErrNetwork, err.Error())
	}
	return contracts.UnpackUint(contracts.VaultABI, "rawBalances", out)
}

func (s *scan) blockTime(ctx context.Context, number uint64, cache map[uint64]time.Time) (time.Time, error) {
	if t, ok := cache[number]; ok {
		return t, nil
	}
	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: eth_getBlockByNumber %d: %s", types.ErrNetwork, number, err.Error())
	}
	t := time.Unix(int64(header.Time), 0).UTC()
	cache[number] = t
	return t, nil
}

// SumFees adds up the fee of every settlement
func SumFees(loans []*contracts.LoanExecuted) *big.Int {
	total := new(big.Int)
	for _, l := range loans {
		if l.Fee != nil {
			total.Add(total, l.Fee)
		}
	}
	return total
}

func matching(loans []*contracts.LoanExecuted, strategyHash common.Hash) []*contracts.LoanExecuted {
	var out []*contracts.LoanExecuted
	for _, l := range loans {
		if l.StrategyHash == strategyHash {
			out = append(out, l)
		}
	}
	return out
}

func (s *scan) positions(ctx context.Context) ([]Position, error) {
	registered, err := s.strategies(ctx)
	if err != nil || len(registered) == 0 {
		return nil, err
	}
	loans, err := s.loans(ctx)
	if err != nil {
		return nil, err
	}

	times := make(map[uint64]time.Time)
	var out []Position
	for _, reg := range registered {
		balance, err := s.rawBalance(ctx, reg.StrategyHash, reg.Token)
		if err != nil {
			return nil, err
		}
		if balance.Sign() <= 0 {
			continue
		}

		settled := matching(loans, reg.StrategyHash)
		p := Position{
			ChainID:       s.chain.ChainID,
			StrategyHash:  reg.StrategyHash,
			Token:         reg.Token,
			RawLiquidity:  balance,
			RawFeesEarned: SumFees(settled),
			LoanCount:     len(settled),
			IsActive:      true,
		}
		var last uint64
		for _, l := range settled {
			if l.BlockNumber > last {
				last = l.BlockNumber
			}
		}
		if len(settled) > 0 {
			if p.LastActivity, err = s.blockTime(ctx, last, times); err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func sortByBlock(loans []*contracts.LoanExecuted) {
	sort.SliceStable(loans, func(i, j int) bool {
		if loans[i].BlockNumber != loans[j].BlockNumber {
			return loans[i].BlockNumber > loans[j].BlockNumber
		}
		return loans[i].LogIndex > loans[j].LogIndex
	})
}

func (s *scan) activity(ctx context.Context, limit int) ([]LoanActivity, error) {
	loans, err := s.loans(ctx)
	if err != nil {
		return nil, err
	}
	sortByBlock(loans)
	if len(loans) > limit {
		loans = loans[:limit]
	}

	times := make(map[uint64]time.Time)
	out := make([]LoanActivity, 0, len(loans))
	for _, l := range loans {
		ts, err := s.blockTime(ctx, l.BlockNumber, times)
		if err != nil {
			return nil, err
		}
		out = append(out, LoanActivity{
			ID:             l.TxHash,
			ChainID:        s.chain.ChainID,
			Counterparty:   l.Borrower,
			RawAmount:      l.Amount,
			RawFee:         l.Fee,
			StrategyHash:   l.StrategyHash,
			BlockNumber:    l.BlockNumber,
			BlockTimestamp: ts,
			logIndex:       l.LogIndex,
		})
	}
	return out, nil
}

// eachChain runs fn for every registry chain concurrently and returns the
// per-chain results in chain id order. Any chain failing fails the call.
func eachChain[T any](ctx context.Context, r *Reconciler, maker common.Address, fn func(ctx context.Context, s *scan) ([]T, error)) ([]T, error) {
	chains := r.registryChains()
	results := make([][]T, len(chains))

	g, ctx := errgroup.WithContext(ctx)
	for i, chain := range chains {
		i, chain := i, chain
		g.Go(func() error {
			s, err := r.newScan(ctx, chain, maker)
			if err == nil {
				results[i], err = fn(ctx, s)
			}
			if err != nil {
				return &types.ChainError{ChainID: chain.ChainID, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []T
	for _, res := range results {
		out = append(out, res...)
	}
	return out, nil
}

// ListPositions returns the account's strategies holding liquidity. An
// account without registrations gets an empty list.
func (r *Reconciler) ListPositions(ctx context.Context, account common.Address) ([]Position, error) {
	positions, err := eachChain(ctx, r, account, func(ctx context.Context, s *scan) ([]Position, error) {
		return s.positions(ctx)
	})
	if err != nil {
		return nil, err
	}
	if positions == nil {
		positions = []Position{}
	}
	return positions, nil
}

// ListActivity returns the latest settlements crediting the account, most recent first
func (r *Reconciler) ListActivity(ctx context.Context, account common.Address, limit int) ([]LoanActivity, error) {
	if limit <= 0 {
		limit = config.DEFAULT_ACTIVITY_LIMIT
	}
	activity, err := eachChain(ctx, r, account, func(ctx context.Context, s *scan) ([]LoanActivity, error) {
		return s.activity(ctx, limit)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(activity, func(i, j int) bool {
		a, b := activity[i], activity[j]
		if !a.BlockTimestamp.Equal(b.BlockTimestamp) {
			return a.BlockTimestamp.After(b.BlockTimestamp)
		}
		if a.ChainID != b.ChainID {
			return a.ChainID < b.ChainID
		}
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber > b.BlockNumber
		}
		return a.logIndex > b.logIndex
	})
	if len(activity) > limit {
		activity = activity[:limit]
	}
	if activity == nil {
		activity = []LoanActivity{}
	}
	return activity, nil
}
