// Package vault runs the single-chain account flows: creating a strategy,
// depositing into it, withdrawing from it and sending tokens. Every flow is a
// sequence of legs, each confirmed before the next one is submitted.
package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"gococo/codec"
	"gococo/config"
	"gococo/contracts"
	"gococo/executor"
	"gococo/reconciler"
	"gococo/types"
)

// Step is reported before a leg is submitted and again once it ended
type Step struct {
	Index   int // from 1
	Total   int
	Name    string
	Outcome executor.Outcome
	TxHash  common.Hash
}

type Progress func(Step)

// PositionSource lists the account's active positions, see reconciler.Reconciler
type PositionSource interface {
	ListPositions(ctx context.Context, account common.Address) ([]reconciler.Position, error)
}

type Result struct {
	Strategy     *codec.Strategy
	StrategyHash common.Hash
	Legs         []executor.Result
}

// TxHash is the transaction of the last leg
func (r *Result) TxHash() common.Hash {
	if r == nil || len(r.Legs) == 0 {
		return common.Hash{}
	}
	return r.Legs[len(r.Legs)-1].TxHash
}

type Flows struct {
	exec      *executor.Executor
	chains    map[int]config.ChainConfig
	positions PositionSource
	wait      executor.WaitOpts
}

func New(exec *executor.Executor, chains map[int]config.ChainConfig, positions PositionSource, wait executor.WaitOpts) *Flows {
	return &Flows{exec: exec, chains: chains, positions: positions, wait: wait}
}

type leg struct {
	name string
	call executor.Call
}

// run executes legs in order and stops at the first one not confirmed
func (f *Flows) run(ctx context.Context, legs []leg, progress Progress, res *Result) error {
	for i, l := range legs {
		step := Step{Index: i + 1, Total: len(legs), Name: l.name, Outcome: executor.Pending}
		if progress != nil {
			progress(step)
		}

		r := f.exec.Execute(ctx, l.call, f.wait)
		res.Legs = append(res.Legs, r)

		step.Outcome, step.TxHash = r.Outcome, r.TxHash
		if progress != nil {
			progress(step)
		}
		if r.Outcome != executor.Confirmed {
			log.WithFields(log.Fields{"chain": l.call.ChainID, "leg": l.name}).Printf("Flow stopped: %s", r.Outcome)
			if r.Err == nil {
				return fmt.Errorf("%s ended %s", l.name, r.Outcome)
			}
			return fmt.Errorf("%s: %w", l.name, r.Err)
		}
	}
	return nil
}

func (f *Flows) strategyChain(chainID int) (config.ChainConfig, error) {
	chain, ok := f.chains[chainID]
	if !ok || !chain.HasFlashLoan() || chain.Vault == "" || chain.TokenAddress == "" {
		return config.ChainConfig{}, fmt.Errorf("%w: strategies are not supported on chain %d", types.ErrConfiguration, chainID)
	}
	return chain, nil
}

func positive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", types.ErrConfiguration)
	}
	return nil
}

func (f *Flows) fundLegs(chain config.ChainConfig, strategy codec.Strategy, amount *big.Int) ([]leg, error) {
	encoded, err := strategy.Encode()
	if err != nil {
		return nil, err
	}
	vault := common.HexToAddress(chain.Vault)
	approve, err := contracts.PackApprove(vault, amount)
	if err != nil {
		return nil, err
	}
	ship, err := contracts.PackShip(common.HexToAddress(chain.FlashLoan), encoded, []common.Address{strategy.Token}, []*big.Int{amount})
	if err != nil {
		return nil, err
	}
	return []leg{
		{name: "approve", call: executor.Call{ChainID: chain.ChainID, To: strategy.Token, Data: approve}},
		{name: "ship", call: executor.Call{ChainID: chain.ChainID, To: vault, Data: ship}},
	}, nil
}

// NewStrategy builds a strategy of the signing account over the chain's token with a fresh salt
func (f *Flows) NewStrategy(chainID int, feeBps uint64) (codec.Strategy, error) {
	chain, err := f.strategyChain(chainID)
	if err != nil {
		return codec.Strategy{}, err
	}
	return codec.Strategy{
		Maker:  f.exec.Signer().Address(),
		Token:  common.HexToAddress(chain.TokenAddress),
		Salt:   codec.NewSalt(),
		FeeBps: feeBps,
	}, nil
}

// CreateStrategy registers a new strategy and funds it: registerStrategy, approve, ship
func (f *Flows) CreateStrategy(ctx context.Context, chainID int, amount *big.Int, feeBps uint64, progress Progress) (*Result, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	strategy, err := f.NewStrategy(chainID, feeBps)
	if err != nil {
		return nil, err
	}
	strategyHash, err := strategy.Hash()
	if err != nil {
		return nil, err
	}
	chain := f.chains[chainID]

	register, err := contracts.PackRegisterStrategy(strategy)
	if err != nil {
		return nil, err
	}
	fund, err := f.fundLegs(chain, strategy, amount)
	if err != nil {
		return nil, err
	}
	legs := append([]leg{{name: "register", call: executor.Call{ChainID: chainID, To: common.HexToAddress(chain.FlashLoan), Data: register}}}, fund...)

	log.WithField("chain", chainID).Printf("Creating strategy %s with %s raw units", strategyHash.Hex(), amount.String())
	res := &Result{Strategy: &strategy, StrategyHash: strategyHash}
	return res, f.run(ctx, legs, progress, res)
}

// Deposit adds liquidity to an existing strategy: approve, ship
func (f *Flows) Deposit(ctx context.Context, chainID int, strategy codec.Strategy, amount *big.Int, progress Progress) (*Result, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	chain, err := f.strategyChain(chainID)
	if err != nil {
		return nil, err
	}
	strategyHash, err := strategy.Hash()
	if err != nil {
		return nil, err
	}
	legs, err := f.fundLegs(chain, strategy, amount)
	if err != nil {
		return nil, err
	}

	res := &Result{Strategy: &strategy, StrategyHash: strategyHash}
	return res, f.run(ctx, legs, progress, res)
}

// Withdraw docks the strategy's whole balance. Only the signing account's own
// strategies can be docked. Without an active position nothing is submitted
// and ErrNoFunds is returned.
func (f *Flows) Withdraw(ctx context.Context, chainID int, strategy codec.Strategy, progress Progress) (*Result, error) {
	chain, err := f.strategyChain(chainID)
	if err != nil {
		return nil, err
	}
	if account := f.exec.Signer().Address(); strategy.Maker != account {
		return nil, fmt.Errorf("%w: strategy maker %s is not the account %s", types.ErrConfiguration, strategy.Maker.Hex(), account.Hex())
	}
	strategyHash, err := strategy.Hash()
	if err != nil {
		return nil, err
	}

	positions, err := f.positions.ListPositions(ctx, strategy.Maker)
	if err != nil {
		return nil, err
	}
	found := false
	for _, p := range positions {
		found = found || (p.ChainID == chainID && p.StrategyHash == strategyHash && p.IsActive)
	}
	if !found {
		return nil, fmt.Errorf("%w: no active position for strategy %s on chain %d", types.ErrNoFunds, strategyHash.Hex(), chainID)
	}

	dock, err := contracts.PackDock(common.HexToAddress(chain.FlashLoan), strategyHash, []common.Address{strategy.Token})
	if err != nil {
		return nil, err
	}
	legs := []leg{{name: "dock", call: executor.Call{ChainID: chainID, To: common.HexToAddress(chain.Vault), Data: dock}}}

	res := &Result{Strategy: &strategy, StrategyHash: strategyHash}
	return res, f.run(ctx, legs, progress, res)
}

// Send transfers the chain's token to recipient
func (f *Flows) Send(ctx context.Context, chainID int, recipient common.Address, amount *big.Int, progress Progress) (*Result, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	chain, ok := f.chains[chainID]
	if !ok || chain.TokenAddress == "" {
		return nil, fmt.Errorf("%w: no token configured on chain %d", types.ErrConfiguration, chainID)
	}
	if recipient == (common.Address{}) {
		return nil, fmt.Errorf("%w: recipient is the zero address", types.ErrConfiguration)
	}
	transfer, err := contracts.PackTransfer(recipient, amount)
	if err != nil {
		return nil, err
	}
	legs := []leg{{name: "transfer", call: executor.Call{ChainID: chainID, To: common.HexToAddress(chain.TokenAddress), Data: transfer}}}

	res := &Result{}
	return res, f.run(ctx, legs, progress, res)
}
