// Package smartaccount presents a plain signing account as the smart account
// a batched cross-chain operation builder expects: one address on every
// chain, stub nonce and gas values, batch call encoding and user operation
// signing and submission.
package smartaccount

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"gococo/config"
	"gococo/executor"
	"gococo/metrics"
	"gococo/poll"
	"gococo/types"
	"gococo/wallet"
)

// gas limit stubs, enough for the destination protocol to proceed without deploying
const (
	VERIFICATION_GAS_STUB     = 150000
	CALL_GAS_STUB             = 300000
	PRE_VERIFICATION_GAS_STUB = 50000
)

// how many raw-message signatures are requested at once
const signConcurrency = 4

// Capability is how operations get signed, chosen once at construction
type Capability struct {
	native wallet.UserOpSigner
	raw    wallet.Signer
}

// Native delegates whole batches to the wallet
func Native(s wallet.UserOpSigner) Capability {
	return Capability{native: s}
}

// RawMessageOnly signs each operation hash as a raw message
func RawMessageOnly(s wallet.Signer) Capability {
	return Capability{raw: s}
}

func (c Capability) IsNative() bool {
	return c.native != nil
}

func (c Capability) Signer() wallet.Signer {
	if c.native != nil {
		return c.native
	}
	return c.raw
}

type Adapter struct {
	capability Capability
	chains     map[int]config.ChainConfig
	bundler    Bundler
}

func New(capability Capability, chains map[int]config.ChainConfig, bundler Bundler) (*Adapter, error) {
	if capability.Signer() == nil {
		return nil, fmt.Errorf("%w: smart account without a signer", types.ErrConfiguration)
	}
	return &Adapter{capability: capability, chains: chains, bundler: bundler}, nil
}

func (a *Adapter) Capability() Capability {
	return a.capability
}

func (a *Adapter) HasAddress(chainID int) bool {
	_, ok := a.chains[chainID]
	return ok
}

// AddressOn returns the account address, the same on every configured chain
func (a *Adapter) AddressOn(chainID int) (common.Address, error) {
	if !a.HasAddress(chainID) {
		return common.Address{}, fmt.Errorf("%w: account has no address on chain %d", types.ErrConfiguration, chainID)
	}
	return a.capability.Signer().Address(), nil
}

// NonceOn is always zero, the entry point endpoint fills in the real one
func (a *Adapter) NonceOn(ctx context.Context, chainID int) (*big.Int, error) {
	return new(big.Int), nil
}

// FactoryArgs is empty, the account is never deployed through a factory
func (a *Adapter) FactoryArgs(chainID int) (*common.Address, []byte) {
	return nil, nil
}

// FeesPerGas returns zero fee caps
func (a *Adapter) FeesPerGas(ctx context.Context, chainID int) (maxFee, maxPriorityFee *big.Int) {
	return new(big.Int), new(big.Int)
}

func (a *Adapter) EncodeCalls(chainID int, calls []Call) ([]byte, error) {
	return EncodeCalls(chainID, calls)
}

func (a *Adapter) entryPoint(chainID int) (common.Address, error) {
	chain, ok := a.chains[chainID]
	if !ok || chain.EntryPoint == "" {
		return common.Address{}, fmt.Errorf("%w: no entry point on chain %d", types.ErrConfiguration, chainID)
	}
	return common.HexToAddress(chain.EntryPoint), nil
}

// BuildUserOperation encodes calls into an unsigned operation for chainID
func (a *Adapter) BuildUserOperation(ctx context.Context, chainID int, calls []Call) (*types.UserOperation, error) {
	sender, err := a.AddressOn(chainID)
	if err != nil {
		return nil, err
	}
	entryPoint, err := a.entryPoint(chainID)
	if err != nil {
		return nil, err
	}
	callData, err := a.EncodeCalls(chainID, calls)
	if err != nil {
		return nil, err
	}
	nonce, err := a.NonceOn(ctx, chainID)
	if err != nil {
		return nil, err
	}

	var initCode []byte
	if factory, data := a.FactoryArgs(chainID); factory != nil {
		initCode = append(factory.Bytes(), data...)
	}
	maxFee, maxPriority := a.FeesPerGas(ctx, chainID)

	return &types.UserOperation{
		ChainID:            chainID,
		EntryPoint:         entryPoint,
		Sender:             sender,
		Nonce:              nonce,
		InitCode:           initCode,
		CallData:           callData,
		AccountGasLimits:   types.PackUint128Pair(big.NewInt(VERIFICATION_GAS_STUB), big.NewInt(CALL_GAS_STUB)),
		PreVerificationGas: big.NewInt(PRE_VERIFICATION_GAS_STUB),
		GasFees:            types.PackUint128Pair(maxPriority, maxFee),
	}, nil
}

func UserOpHash(op *types.UserOperation) common.Hash {
	return op.Hash()
}

// SignUserOps signs every operation. Order is preserved; on the raw message
// path every operation is attempted and all failures are reported together.
func (a *Adapter) SignUserOps(ctx context.Context, ops []*types.UserOperation) ([]*types.UserOperation, error) {
	if a.capability.IsNative() {
		signed, err := a.capability.native.SignUserOps(ctx, ops)
		if err != nil {
			return nil, err
		}
		if len(signed) != len(ops) {
			return nil, fmt.Errorf("native signer returned %d operations for %d", len(signed), len(ops))
		}
		return signed, nil
	}

	signer := a.capability.raw
	signed := make([]*types.UserOperation, len(ops))
	errs := make([]error, len(ops))

	var g errgroup.Group
	g.SetLimit(signConcurrency)
	for i, op := range ops {
		i, op := i, op
		g.Go(func() error {
			hash := UserOpHash(op)
			sig, err := signer.SignMessage(ctx, hash.Bytes())
			if err != nil {
				errs[i] = fmt.Errorf("user operation %d (%s): %w", i, hash.Hex(), err)
				return nil
			}
			cp := op.Copy()
			cp.Signature = sig
			signed[i] = cp
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return signed, nil
}

// SendUserOperation submits a signed operation and returns the acknowledgement id
func (a *Adapter) SendUserOperation(ctx context.Context, op *types.UserOperation) (common.Hash, error) {
	if a.bundler == nil {
		return common.Hash{}, fmt.Errorf("%w: no entry point endpoint configured", types.ErrConfiguration)
	}
	if len(op.Signature) == 0 {
		return common.Hash{}, fmt.Errorf("%w: user operation for chain %d is not signed", types.ErrConfiguration, op.ChainID)
	}
	return a.bundler.SendUserOperation(ctx, op)
}

// AwaitUserOperation polls the operation receipt and returns the including transaction hash
func (a *Adapter) AwaitUserOperation(ctx context.Context, chainID int, opHash common.Hash, opts executor.WaitOpts) (executor.Outcome, common.Hash, error) {
	if a.bundler == nil {
		return executor.Pending, common.Hash{}, fmt.Errorf("%w: no entry point endpoint configured", types.ErrConfiguration)
	}

	start := time.Now()
	var receipt *UserOpReceipt
	err := poll.Within(ctx, opts.Interval, opts.MaxWait, func(ctx context.Context) (bool, error) {
		r, err := a.bundler.GetUserOperationReceipt(ctx, chainID, opHash)
		if err != nil {
			if errors.Is(err, types.ErrConfiguration) {
				return false, err
			}
			log.WithField("chain", chainID).Printf("Error querying user operation %s: %s", opHash.Hex(), err.Error())
			return false, nil
		}
		receipt = r
		return r != nil, nil
	})
	metrics.ConfirmWait.WithLabelValues(metrics.Chain(chainID), "userop").Observe(time.Since(start).Seconds())

	var outcome executor.Outcome
	var txHash common.Hash
	switch {
	case errors.Is(err, poll.ErrExhausted):
		outcome = executor.TimedOut
		err = fmt.Errorf("%w: no receipt for user operation %s", types.ErrConfirmationTimeout, opHash.Hex())
	case err != nil:
		outcome = executor.Pending
	case receipt.Success:
		outcome, txHash = executor.Confirmed, receipt.TxHash
	default:
		outcome, txHash = executor.Reverted, receipt.TxHash
		err = fmt.Errorf("%w: user operation %s: %s", types.ErrOnChainRevert, opHash.Hex(), receipt.Reason)
	}
	if outcome.Terminal() {
		metrics.TxOutcomes.WithLabelValues(metrics.Chain(chainID), "userop", outcome.String()).Inc()
	}
	return outcome, txHash, err
}
