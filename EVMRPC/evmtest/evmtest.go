// Package evmtest provides an in-memory EVMRPC.Client for tests.
package evmtest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"gococo/EVMRPC"
)

var _ EVMRPC.Client = (*Client)(nil)

// Client answers from fields set by the test. Sent transactions are mined
// with a successful receipt unless Receipt says otherwise.
type Client struct {
	mu sync.Mutex

	Chain      int64
	Head       uint64
	BlockTimes map[uint64]uint64
	Balance    *big.Int
	GasPrice   *big.Int
	Logs       []ethtypes.Log

	Estimate func(msg ethereum.CallMsg) (uint64, error)
	Call     func(msg ethereum.CallMsg) ([]byte, error)
	// Receipt overrides mining; attempt counts polls per hash from 1
	Receipt func(hash common.Hash, attempt int) (*ethtypes.Receipt, error)

	LogsErr  error
	HeadErr  error
	SendErr  error
	Sent     []*ethtypes.Transaction
	Queries  []ethereum.FilterQuery
	attempts map[common.Hash]int
	nonce    uint64
}

func New(chainID int64) *Client {
	return &Client{
		Chain:      chainID,
		BlockTimes: make(map[uint64]uint64),
		Balance:    new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil),
		GasPrice:   big.NewInt(1_000_000_000),
		attempts:   make(map[common.Hash]int),
	}
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(c.Chain), nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Head, c.HeadErr
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.Head
	if number != nil {
		n = number.Uint64()
	}
	return &ethtypes.Header{Number: new(big.Int).SetUint64(n), Time: c.BlockTimes[n]}, nil
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if c.Call == nil {
		return make([]byte, 32), nil
	}
	return c.Call(msg)
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if c.Estimate == nil {
		return 50_000, nil
	}
	return c.Estimate(msg)
}

func topicMatches(want []common.Hash, got common.Hash) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if w == got {
			return true
		}
	}
	return false
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Queries = append(c.Queries, q)
	if c.LogsErr != nil {
		return nil, c.LogsErr
	}

	var out []ethtypes.Log
	for _, l := range c.Logs {
		if len(q.Addresses) > 0 {
			found := false
			for _, a := range q.Addresses {
				found = found || a == l.Address
			}
			if !found {
				continue
			}
		}
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		match := true
		for i, want := range q.Topics {
			if i >= len(l.Topics) {
				match = match && len(want) == 0
				continue
			}
			match = match && topicMatches(want, l.Topics[i])
		}
		if match {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	c.mu.Lock()
	c.attempts[txHash]++
	attempt := c.attempts[txHash]
	receiptFn := c.Receipt
	sent := false
	for _, tx := range c.Sent {
		sent = sent || tx.Hash() == txHash
	}
	c.mu.Unlock()

	if receiptFn != nil {
		return receiptFn(txHash, attempt)
	}
	if !sent {
		return nil, ethereum.NotFound
	}
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, TxHash: txHash, BlockNumber: new(big.Int).SetUint64(c.Head)}, nil
}

func (c *Client) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		return c.SendErr
	}
	c.Sent = append(c.Sent, tx)
	c.nonce++
	return nil
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce, nil
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.GasPrice), nil
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return new(big.Int).Set(c.Balance), nil
}

// SentTo returns the destinations of the sent transactions, in order
func (c *Client) SentTo() []common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]common.Address, 0, len(c.Sent))
	for _, tx := range c.Sent {
		out = append(out, *tx.To())
	}
	return out
}

func (c *Client) Attempts(hash common.Hash) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[hash]
}

// Registry serves fixed clients by chain id
type Registry map[int]EVMRPC.Client

func (r Registry) Get(chainID int) (EVMRPC.Client, error) {
	return EVMRPC.NewStaticRegistry(r).Get(chainID)
}
