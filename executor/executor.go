package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	log "github.com/sirupsen/logrus"

	"gococo/EVMRPC"
	"gococo/config"
	"gococo/metrics"
	"gococo/poll"
	"gococo/types"
	"gococo/wallet"
)

type Outcome int

const (
	Pending Outcome = iota
	Confirmed
	Reverted
	TimedOut
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Reverted:
		return "reverted"
	case TimedOut:
		return "timedout"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

func (o Outcome) Terminal() bool {
	return o != Pending
}

// ClientSource resolves the RPC client of a chain, see EVMRPC.Registry
type ClientSource interface {
	Get(chainID int) (EVMRPC.Client, error)
}

// Call is one contract call sent from the signer's account
type Call struct {
	ChainID  int
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64 // zero means estimate and add the margin
}

type WaitOpts struct {
	Interval time.Duration
	MaxWait  time.Duration
}

func DefaultWaitOpts() WaitOpts {
	return WaitOpts{
		Interval: config.DEFAULT_CONFIRM_INTERVAL_MS * time.Millisecond,
		MaxWait:  config.DEFAULT_CONFIRM_MAX_WAIT_SEC * time.Second,
	}
}

// Result of one leg; Err carries the taxonomy cause for every non-confirmed outcome
type Result struct {
	Outcome Outcome
	TxHash  common.Hash
	Receipt *ethtypes.Receipt
	Err     error
}

type Executor struct {
	clients ClientSource
	signer  wallet.Signer
}

func New(clients ClientSource, signer wallet.Signer) *Executor {
	return &Executor{clients: clients, signer: signer}
}

func (e *Executor) Signer() wallet.Signer {
	return e.signer
}

// WithMargin applies the fixed safety margin to a node estimate
func WithMargin(gas uint64) uint64 {
	return gas * config.GAS_MARGIN_PERCENT / 100
}

func bumpGasPrice(price *big.Int) *big.Int {
	bumped := new(big.Int).Mul(price, big.NewInt(config.GAS_MARGIN_PERCENT))
	return bumped.Div(bumped, big.NewInt(100))
}

// classify maps an RPC error onto the error taxonomy
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrConfiguration) || errors.Is(err, types.ErrOnChainRevert) ||
		errors.Is(err, types.ErrNetwork) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		reason := ""
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(s); decodeErr == nil {
				if r, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					reason = r
				}
			}
		}
		if reason != "" {
			return fmt.Errorf("%w: %s (%s)", types.ErrOnChainRevert, err.Error(), reason)
		}
		return fmt.Errorf("%w: %s", types.ErrOnChainRevert, err.Error())
	}
	if strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
		return fmt.Errorf("%w: %s", types.ErrOnChainRevert, err.Error())
	}
	return fmt.Errorf("%w: %s", types.ErrNetwork, err.Error())
}

func (e *Executor) callMsg(call Call) ethereum.CallMsg {
	to := call.To
	return ethereum.CallMsg{
		From:  e.signer.Address(),
		To:    &to,
		Value: call.Value,
		Data:  call.Data,
	}
}

// EstimateGas returns the raw node estimate, without margin
func (e *Executor) EstimateGas(ctx context.Context, call Call) (uint64, error) {
	client, err := e.clients.Get(call.ChainID)
	if err != nil {
		return 0, err
	}
	gas, err := client.EstimateGas(ctx, e.callMsg(call))
	if err != nil {
		return 0, classify(err)
	}
	return gas, nil
}

// Submit signs and broadcasts call, returning once the node accepted it
func (e *Executor) Submit(ctx context.Context, call Call) (common.Hash, error) {
	client, err := e.clients.Get(call.ChainID)
	if err != nil {
		return common.Hash{}, err
	}
	from := e.signer.Address()
	logger := log.WithFields(log.Fields{"chain": call.ChainID, "to": call.To.Hex()})

	gasLimit := call.GasLimit
	if gasLimit == 0 {
		estimate, err := e.EstimateGas(ctx, call)
		if err != nil {
			return common.Hash{}, err
		}
		gasLimit = WithMargin(estimate)
	}

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, classify(err)
	}
	suggested, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, classify(err)
	}
	gasPrice := bumpGasPrice(suggested)

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	balance, err := client.BalanceAt(ctx, from, nil)
	if err != nil {
		return common.Hash{}, classify(err)
	}
	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	cost.Add(cost, value)
	if balance.Cmp(cost) < 0 {
		return common.Hash{}, fmt.Errorf("%w: balance %s wei, required %s wei for gas", types.ErrNoFunds, balance.String(), cost.String())
	}

	to := call.To
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     call.Data,
	})
	signed, err := e.signer.SignTx(ctx, big.NewInt(int64(call.ChainID)), tx)
	if err != nil {
		if errors.Is(err, types.ErrUserDeclined) {
			return common.Hash{}, err
		}
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		logger.Printf("Error sending transaction: %s", err.Error())
		return common.Hash{}, classify(err)
	}
	logger.Printf("Sent tx %s nonce %d gas %d price %s", signed.Hash().Hex(), nonce, gasLimit, gasPrice.String())
	return signed.Hash(), nil
}

// AwaitConfirmation polls for the receipt of txHash. A missing receipt keeps
// polling, a failed one returns Reverted at once. Abandoning the wait
// through ctx reports Pending, never Confirmed.
func (e *Executor) AwaitConfirmation(ctx context.Context, chainID int, txHash common.Hash, opts WaitOpts) (Outcome, *ethtypes.Receipt, error) {
	client, err := e.clients.Get(chainID)
	if err != nil {
		return Pending, nil, err
	}
	return AwaitReceipt(ctx, client, chainID, txHash, opts)
}

// AwaitReceipt is AwaitConfirmation against a given client
func AwaitReceipt(ctx context.Context, client EVMRPC.Client, chainID int, txHash common.Hash, opts WaitOpts) (Outcome, *ethtypes.Receipt, error) {
	start := time.Now()
	var receipt *ethtypes.Receipt

	err := poll.Within(ctx, opts.Interval, opts.MaxWait, func(ctx context.Context) (bool, error) {
		r, err := client.TransactionReceipt(ctx, txHash)
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				log.WithField("chain", chainID).Printf("Error querying receipt %s: %s", txHash.Hex(), err.Error())
			}
			return false, nil
		}
		receipt = r
		return r != nil, nil
	})
	metrics.ConfirmWait.WithLabelValues(metrics.Chain(chainID), "tx").Observe(time.Since(start).Seconds())

	outcome, err := outcomeOf(receipt, err, txHash)
	if outcome.Terminal() {
		metrics.TxOutcomes.WithLabelValues(metrics.Chain(chainID), "tx", outcome.String()).Inc()
	}
	return outcome, receipt, err
}

func outcomeOf(receipt *ethtypes.Receipt, err error, txHash common.Hash) (Outcome, error) {
	switch {
	case errors.Is(err, poll.ErrExhausted):
		return TimedOut, fmt.Errorf("%w: no receipt for %s", types.ErrConfirmationTimeout, txHash.Hex())
	case err != nil:
		return Pending, err
	case receipt.Status == ethtypes.ReceiptStatusSuccessful:
		return Confirmed, nil
	default:
		return Reverted, fmt.Errorf("%w: tx %s", types.ErrOnChainRevert, txHash.Hex())
	}
}

// Execute runs estimate, submit and await for one leg. Before broadcast a
// signer refusal is Rejected and an estimate revert is Reverted. Any other
// failure to send stays Pending with Err carrying its kind.
func (e *Executor) Execute(ctx context.Context, call Call, opts WaitOpts) Result {
	txHash, err := e.Submit(ctx, call)
	if err != nil {
		outcome, label := Pending, "notsent"
		switch {
		case errors.Is(err, types.ErrUserDeclined):
			outcome, label = Rejected, Rejected.String()
		case errors.Is(err, types.ErrOnChainRevert):
			outcome, label = Reverted, Reverted.String()
		}
		metrics.TxOutcomes.WithLabelValues(metrics.Chain(call.ChainID), "tx", label).Inc()
		return Result{Outcome: outcome, Err: err}
	}

	outcome, receipt, err := e.AwaitConfirmation(ctx, call.ChainID, txHash, opts)
	return Result{Outcome: outcome, TxHash: txHash, Receipt: receipt, Err: err}
}
