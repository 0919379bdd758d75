package smartaccount

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	log "github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"

	"gococo/types"
)

// UserOpReceipt is what the entry point endpoint reports for an included operation
type UserOpReceipt struct {
	OpHash  common.Hash
	Success bool
	Reason  string
	TxHash  common.Hash
}

// Bundler submits signed operations to the per-chain entry point endpoint
type Bundler interface {
	SendUserOperation(ctx context.Context, op *types.UserOperation) (common.Hash, error)
	// GetUserOperationReceipt returns nil without error while the operation is not included
	GetUserOperationReceipt(ctx context.Context, chainID int, opHash common.Hash) (*UserOpReceipt, error)
}

type rpcUserOperation struct {
	Sender               common.Address  `json:"sender"`
	Nonce                *hexutil.Big    `json:"nonce"`
	Factory              *common.Address `json:"factory,omitempty"`
	FactoryData          hexutil.Bytes   `json:"factoryData,omitempty"`
	CallData             hexutil.Bytes   `json:"callData"`
	CallGasLimit         *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes   `json:"paymasterAndData,omitempty"`
	Signature            hexutil.Bytes   `json:"signature"`
}

type rpcUserOpReceipt struct {
	UserOpHash common.Hash `json:"userOpHash"`
	Success    bool        `json:"success"`
	Reason     string      `json:"reason"`
	Receipt    struct {
		TransactionHash common.Hash `json:"transactionHash"`
	} `json:"receipt"`
}

func hexBig(v *big.Int) *hexutil.Big {
	if v == nil {
		v = new(big.Int)
	}
	return (*hexutil.Big)(v)
}

// toRPC unpacks the packed words into the v0.7 JSON-RPC field set
func toRPC(op *types.UserOperation) rpcUserOperation {
	verification, call := types.UnpackUint128Pair(op.AccountGasLimits)
	priority, maxFee := types.UnpackUint128Pair(op.GasFees)
	out := rpcUserOperation{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		CallData:             op.CallData,
		CallGasLimit:         hexBig(call),
		VerificationGasLimit: hexBig(verification),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(maxFee),
		MaxPriorityFeePerGas: hexBig(priority),
		PaymasterAndData:     op.PaymasterAndData,
		Signature:            op.Signature,
	}
	if len(op.InitCode) >= common.AddressLength {
		factory := common.BytesToAddress(op.InitCode[:common.AddressLength])
		out.Factory = &factory
		out.FactoryData = op.InitCode[common.AddressLength:]
	}
	return out
}

// JSONRPCBundler talks eth_sendUserOperation to one endpoint per chain
type JSONRPCBundler struct {
	endpoints map[int]string
	timeout   time.Duration

	mu      sync.Mutex
	clients map[int]jsonrpc.RPCClient
}

func NewJSONRPCBundler(endpoints map[int]string, timeout time.Duration) *JSONRPCBundler {
	return &JSONRPCBundler{
		endpoints: endpoints,
		timeout:   timeout,
		clients:   make(map[int]jsonrpc.RPCClient),
	}
}

func (b *JSONRPCBundler) client(chainID int) (jsonrpc.RPCClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.clients[chainID]; ok {
		return c, nil
	}
	url, ok := b.endpoints[chainID]
	if !ok || url == "" {
		return nil, fmt.Errorf("%w: no entry point endpoint for chain %d", types.ErrConfiguration, chainID)
	}
	c := jsonrpc.NewClientWithOpts(url, &jsonrpc.RPCClientOpts{
		HTTPClient: &http.Client{Timeout: b.timeout},
	})
	b.clients[chainID] = c
	return c, nil
}

// call separates node answers (revert) from transport failures (network)
func (b *JSONRPCBundler) call(ctx context.Context, chainID int, method string, params ...interface{}) (*jsonrpc.RPCResponse, error) {
	c, err := b.client(chainID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := c.Call(method, params...)
	if resp != nil && resp.Error != nil {
		return nil, fmt.Errorf("%w: %s: %d %s", types.ErrOnChainRevert, method, resp.Error.Code, resp.Error.Message)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s on chain %d: %s", types.ErrNetwork, method, chainID, err.Error())
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: %s on chain %d: empty response", types.ErrNetwork, method, chainID)
	}
	return resp, nil
}

func (b *JSONRPCBundler) SendUserOperation(ctx context.Context, op *types.UserOperation) (common.Hash, error) {
	resp, err := b.call(ctx, op.ChainID, "eth_sendUserOperation", toRPC(op), op.EntryPoint.Hex())
	if err != nil {
		return common.Hash{}, err
	}
	s, err := resp.GetString()
	if err != nil || len(common.FromHex(s)) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: eth_sendUserOperation returned %v", types.ErrNetwork, resp.Result)
	}
	log.WithField("chain", op.ChainID).Printf("User operation %s accepted", s)
	return common.HexToHash(s), nil
}

func (b *JSONRPCBundler) GetUserOperationReceipt(ctx context.Context, chainID int, opHash common.Hash) (*UserOpReceipt, error) {
	resp, err := b.call(ctx, chainID, "eth_getUserOperationReceipt", opHash.Hex())
	if err != nil {
		return nil, err
	}
	var r *rpcUserOpReceipt
	if err := resp.GetObject(&r); err != nil {
		return nil, fmt.Errorf("%w: decode user operation receipt: %s", types.ErrNetwork, err.Error())
	}
	if r == nil {
		return nil, nil
	}
	return &UserOpReceipt{
		OpHash:  r.UserOpHash,
		Success: r.Success,
		Reason:  r.Reason,
		TxHash:  r.Receipt.TransactionHash,
	}, nil
}
