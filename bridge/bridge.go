// Package bridge moves tokens between chains with a two-leg voucher:
// issued on the source chain, redeemed by reference on the destination.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"gococo/config"
	"gococo/contracts"
	"gococo/executor"
	"gococo/metrics"
	"gococo/smartaccount"
	"gococo/types"
)

type Phase string

const (
	Building             Phase = "building"
	SourceSubmitted      Phase = "sourcesubmitted"
	AwaitingFulfillment  Phase = "awaitingfulfillment"
	DestinationConfirmed Phase = "destinationconfirmed"
	Failed               Phase = "failed"
)

func (p Phase) Terminal() bool {
	return p == DestinationConfirmed || p == Failed
}

// Status is reported to the caller on every phase transition
type Status struct {
	OperationID string
	Phase       Phase
	// Failed only: the phase the failure happened in, and why
	FailedIn Phase
	Err      error
	TxHash   common.Hash // source tx once confirmed, destination tx when done
	Message  string
}

// Journal records operation transitions for later display; prev is empty for a new operation
type Journal interface {
	Record(op *types.BridgeOperation, prev string) error
}

type Request struct {
	SourceChainID      int
	DestinationChainID int
	RawAmount          *big.Int
	Recipient          common.Address // zero means the account itself
}

// Orchestrator drives one voucher end to end per Bridge call and keeps no
// state between calls
type Orchestrator struct {
	account *smartaccount.Adapter
	chains  map[int]config.ChainConfig
	wait    executor.WaitOpts
	journal Journal
}

func New(account *smartaccount.Adapter, chains map[int]config.ChainConfig, wait executor.WaitOpts, journal Journal) *Orchestrator {
	return &Orchestrator{account: account, chains: chains, wait: wait, journal: journal}
}

// flow is the state of one invocation
type flow struct {
	o      *Orchestrator
	op     *types.BridgeOperation
	phase  Phase
	notify func(Status)
}

func (f *flow) transition(next Phase, txHash common.Hash, msg string, cause error) {
	prev := f.phase
	f.phase = next
	f.op.Status = string(next)
	f.op.TsUpdated = time.Now().Unix()
	f.op.Message = msg

	status := Status{OperationID: f.op.ID, Phase: next, TxHash: txHash, Message: msg}
	if next == Failed {
		status.FailedIn = prev
		status.Err = cause
	}

	metrics.BridgePhases.WithLabelValues(string(next)).Inc()
	log.WithFields(log.Fields{"op": f.op.ID, "from": prev, "to": next}).Printf("Bridge transition: %s", msg)

	if f.o.journal != nil {
		if err := f.o.journal.Record(f.op, string(prev)); err != nil {
			log.WithField("op", f.op.ID).Printf("Error journaling bridge operation: %s", err.Error())
		}
	}
	if f.notify != nil {
		f.notify(status)
	}
}

func (f *flow) fail(cause error, format string, args ...any) Status {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, cause.Error())
	}
	failedIn := f.phase
	f.transition(Failed, common.Hash{}, msg, cause)
	return Status{OperationID: f.op.ID, Phase: Failed, FailedIn: failedIn, Err: cause, Message: msg}
}

// newReference derives the voucher reference both legs agree on
func newReference(account common.Address, req Request, id uuid.UUID) common.Hash {
	return crypto.Keccak256Hash(
		account.Bytes(),
		common.BigToHash(big.NewInt(int64(req.SourceChainID))).Bytes(),
		common.BigToHash(big.NewInt(int64(req.DestinationChainID))).Bytes(),
		common.BigToHash(req.RawAmount).Bytes(),
		id[:],
	)
}

func (o *Orchestrator) chain(chainID int) (config.ChainConfig, error) {
	c, ok := o.chains[chainID]
	if !ok || !c.HasBridge() {
		return config.ChainConfig{}, fmt.Errorf("%w: bridging is not configured on chain %d", types.ErrConfiguration, chainID)
	}
	return c, nil
}

// legs builds the source voucher request and the destination redemption
func (o *Orchestrator) legs(ctx context.Context, req Request, recipient common.Address, ref common.Hash) ([]*types.UserOperation, error) {
	src, err := o.chain(req.SourceChainID)
	if err != nil {
		return nil, err
	}
	dst, err := o.chain(req.DestinationChainID)
	if err != nil {
		return nil, err
	}

	token := smartaccount.ChainTarget{Name: "token", Addresses: map[int]common.Address{
		src.ChainID: common.HexToAddress(src.TokenAddress),
		dst.ChainID: common.HexToAddress(dst.TokenAddress),
	}}
	hub := smartaccount.ChainTarget{Name: "voucher hub", Addresses: map[int]common.Address{
		src.ChainID: common.HexToAddress(src.VoucherHub),
		dst.ChainID: common.HexToAddress(dst.VoucherHub),
	}}
	amount := req.RawAmount.String()

	source, err := o.account.BuildUserOperation(ctx, src.ChainID, []smartaccount.Call{
		{Target: token, ABI: contracts.ERC20ABI, Method: "approve", Args: []any{hub, amount}},
		{Target: hub, ABI: contracts.VoucherHubABI, Method: "issueVoucher", Args: []any{token, amount, big.NewInt(int64(dst.ChainID)), [32]byte(ref)}},
	})
	if err != nil {
		return nil, err
	}
	destination, err := o.account.BuildUserOperation(ctx, dst.ChainID, []smartaccount.Call{
		{Target: hub, ABI: contracts.VoucherHubABI, Method: "redeemVoucher", Args: []any{[32]byte(ref), token, amount, recipient}},
	})
	if err != nil {
		return nil, err
	}
	return []*types.UserOperation{source, destination}, nil
}

// leg submits one signed operation and waits for its inclusion
func (o *Orchestrator) leg(ctx context.Context, op *types.UserOperation) (common.Hash, common.Hash, error) {
	opHash, err := o.account.SendUserOperation(ctx, op)
	if err != nil {
		return common.Hash{}, common.Hash{}, err
	}
	outcome, txHash, err := o.account.AwaitUserOperation(ctx, op.ChainID, opHash, o.wait)
	if outcome != executor.Confirmed {
		if err == nil {
			err = fmt.Errorf("user operation %s ended %s", opHash.Hex(), outcome)
		}
		return opHash, txHash, err
	}
	return opHash, txHash, nil
}

// Bridge runs Building, SourceSubmitted, AwaitingFulfillment and
// DestinationConfirmed in order, or stops in Failed. notify sees every
// transition; the returned Status is the final one.
func (o *Orchestrator) Bridge(ctx context.Context, req Request, notify func(Status)) Status {
	id := uuid.New()
	account := o.account.Capability().Signer().Address()
	recipient := req.Recipient
	if recipient == (common.Address{}) {
		recipient = account
	}

	amount := "0"
	if req.RawAmount != nil {
		amount = req.RawAmount.String()
	}
	now := time.Now().Unix()
	f := &flow{o: o, notify: notify, op: &types.BridgeOperation{
		ID:          id.String(),
		SourceChain: req.SourceChainID,
		DestChain:   req.DestinationChainID,
		TsCreated:   now,
		Amount:      amount,
		Account:     account.Hex(),
		Recipient:   recipient.Hex(),
	}}
	if src, ok := o.chains[req.SourceChainID]; ok {
		f.op.Token = src.TokenAddress
	}

	f.transition(Building, common.Hash{}, "building voucher request", nil)

	if req.RawAmount == nil || req.RawAmount.Sign() <= 0 {
		return f.fail(fmt.Errorf("%w: amount must be positive", types.ErrConfiguration), "invalid request")
	}
	if req.SourceChainID == req.DestinationChainID {
		return f.fail(fmt.Errorf("%w: source and destination chain are both %d", types.ErrConfiguration, req.SourceChainID), "invalid request")
	}

	ref := newReference(account, req, id)
	f.op.Reference = ref.Hex()

	ops, err := o.legs(ctx, req, recipient, ref)
	if err != nil {
		return f.fail(err, "cannot build voucher legs")
	}
	signed, err := o.account.SignUserOps(ctx, ops)
	if err != nil {
		return f.fail(err, "cannot sign voucher legs")
	}
	source, destination := signed[0], signed[1]

	opHash, err := o.account.SendUserOperation(ctx, source)
	if err != nil {
		return f.fail(err, "source leg not accepted")
	}
	f.op.SourceOpHash = opHash.Hex()
	f.transition(SourceSubmitted, common.Hash{}, fmt.Sprintf("source leg %s submitted on chain %d", opHash.Hex(), source.ChainID), nil)

	outcome, txHash, err := o.account.AwaitUserOperation(ctx, source.ChainID, opHash, o.wait)
	if txHash != (common.Hash{}) {
		f.op.SourceTxHash = txHash.Hex()
	}
	if outcome != executor.Confirmed {
		return f.fail(err, "source leg %s", outcome)
	}
	f.transition(AwaitingFulfillment, txHash, fmt.Sprintf("source leg confirmed in %s", txHash.Hex()), nil)

	destOpHash, destTxHash, err := o.leg(ctx, destination)
	if destOpHash != (common.Hash{}) {
		f.op.DestOpHash = destOpHash.Hex()
	}
	if destTxHash != (common.Hash{}) {
		f.op.DestTxHash = destTxHash.Hex()
	}
	if err != nil {
		return f.fail(err, "destination leg failed")
	}
	f.transition(DestinationConfirmed, destTxHash, fmt.Sprintf("voucher redeemed in %s on chain %d", destTxHash.Hex(), destination.ChainID), nil)

	return Status{OperationID: f.op.ID, Phase: DestinationConfirmed, TxHash: destTxHash, Message: f.op.Message}
}

// Kind names the failure cause for display
func (s Status) Kind() string {
	if s.Err == nil {
		return ""
	}
	if errors.Is(s.Err, context.Canceled) || errors.Is(s.Err, context.DeadlineExceeded) {
		return "abandoned"
	}
	return types.ErrorKind(s.Err)
}
