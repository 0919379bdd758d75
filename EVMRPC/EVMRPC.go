package EVMRPC

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"gococo/config"
	"gococo/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	log "github.com/sirupsen/logrus"
)

// Client is the part of ethclient the service talks to
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

var _ Client = (*ethclient.Client)(nil)
var _ Client = (*ChainClient)(nil)

// ChainClient spreads calls over the RPC list of one chain, moving to the
// next endpoint only when the current one could not be reached
type ChainClient struct {
	chainID int
	urls    []string

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

func NewChainClient(chainID int, urls []string) *ChainClient {
	return &ChainClient{
		chainID: chainID,
		urls:    urls,
		clients: make(map[string]*ethclient.Client),
	}
}

func (c *ChainClient) dial(ctx context.Context, url string) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[url]; ok {
		return client, nil
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	c.clients[url] = client
	return client, nil
}

func (c *ChainClient) drop(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[url]; ok {
		client.Close()
		delete(c.clients, url)
	}
}

func (c *ChainClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for url, client := range c.clients {
		client.Close()
		delete(c.clients, url)
	}
}

// answered reports whether the node itself produced err, in which case
// asking another endpoint gives the same answer
func answered(err error) bool {
	if errors.Is(err, ethereum.NotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

func WithClient[T any](ctx context.Context, c *ChainClient, f func(client *ethclient.Client) (T, error)) (res T, err error) {
	if len(c.urls) == 0 {
		err = fmt.Errorf("%w: chain %d has no RPC endpoints", types.ErrConfiguration, c.chainID)
		return
	}

	for _, url := range c.urls {
		var client *ethclient.Client
		client, err = c.dial(ctx, url)
		if err != nil {
			log.Printf("Error connecting to %s: %s", url, err.Error())
			continue
		}

		res, err = f(client)
		if err == nil || answered(err) {
			return
		}
		log.WithField("chain", c.chainID).Printf("RPC %s failed: %s", url, err.Error())
		c.drop(url)
	}
	err = fmt.Errorf("%w: chain %d: all endpoints failed: %s", types.ErrNetwork, c.chainID, err.Error())
	return
}

func (c *ChainClient) ChainID(ctx context.Context) (*big.Int, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) (*big.Int, error) {
		return client.ChainID(ctx)
	})
}

func (c *ChainClient) BlockNumber(ctx context.Context) (uint64, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) (uint64, error) {
		return client.BlockNumber(ctx)
	})
}

func (c *ChainClient) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) (*ethtypes.Header, error) {
		return client.HeaderByNumber(ctx, number)
	})
}

func (c *ChainClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) ([]byte, error) {
		return client.CallContract(ctx, msg, blockNumber)
	})
}

func (c *ChainClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) (uint64, error) {
		return client.EstimateGas(ctx, msg)
	})
}

func (c *ChainClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) ([]ethtypes.Log, error) {
		return client.FilterLogs(ctx, q)
	})
}

func (c *ChainClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) (*ethtypes.Receipt, error) {
		return client.TransactionReceipt(ctx, txHash)
	})
}

func (c *ChainClient) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	_, err := WithClient(ctx, c, func(client *ethclient.Client) (struct{}, error) {
		return struct{}{}, client.SendTransaction(ctx, tx)
	})
	return err
}

func (c *ChainClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) (uint64, error) {
		return client.PendingNonceAt(ctx, account)
	})
}

func (c *ChainClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) (*big.Int, error) {
		return client.SuggestGasPrice(ctx)
	})
}

func (c *ChainClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) (*big.Int, error) {
		return client.BalanceAt(ctx, account, blockNumber)
	})
}

// Registry hands out the client of every configured chain
type Registry struct {
	clients map[int]Client
}

func NewRegistry(chains map[int]config.ChainConfig) *Registry {
	clients := make(map[int]Client, len(chains))
	for id, chain := range chains {
		clients[id] = NewChainClient(id, chain.RPCList)
	}
	return &Registry{clients: clients}
}

// NewStaticRegistry wraps already built clients
func NewStaticRegistry(clients map[int]Client) *Registry {
	return &Registry{clients: clients}
}

func (r *Registry) Get(chainID int) (Client, error) {
	client, ok := r.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: no RPC client for chain %d", types.ErrConfiguration, chainID)
	}
	return client, nil
}

func (r *Registry) Close() {
	for _, client := range r.clients {
		if cc, ok := client.(*ChainClient); ok {
			cc.Close()
		}
	}
}
