package EVMRPC

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gococo/config"
	"gococo/types"
)

type rpcNode struct {
	hits   atomic.Int32
	server *httptest.Server
}

// newNode answers every JSON-RPC request with reply, or with HTTP 502 when down
func newNode(t *testing.T, down bool, reply string) *rpcNode {
	n := &rpcNode{}
	n.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.hits.Add(1)
		if down {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,%s}`, req.ID, reply)
	}))
	t.Cleanup(n.server.Close)
	return n
}

func TestFailoverToNextEndpoint(t *testing.T) {
	dead := newNode(t, true, "")
	alive := newNode(t, false, `"result":"0x10"`)

	client := NewChainClient(8453, []string{dead.server.URL, alive.server.URL})
	defer client.Close()

	height, err := client.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(16), height)
	assert.Equal(t, int32(1), dead.hits.Load())
	assert.Equal(t, int32(1), alive.hits.Load())
}

func TestNodeErrorIsNotRetriedElsewhere(t *testing.T) {
	first := newNode(t, false, `"error":{"code":-32000,"message":"execution reverted"}`)
	second := newNode(t, false, `"result":"0x10"`)

	client := NewChainClient(8453, []string{first.server.URL, second.server.URL})
	defer client.Close()

	_, err := client.BlockNumber(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, types.ErrNetwork))
	assert.Equal(t, int32(0), second.hits.Load())
}

func TestAllEndpointsDown(t *testing.T) {
	a := newNode(t, true, "")
	b := newNode(t, true, "")

	client := NewChainClient(10, []string{a.server.URL, b.server.URL})
	defer client.Close()

	_, err := client.SuggestGasPrice(context.Background())
	assert.True(t, errors.Is(err, types.ErrNetwork))
}

func TestNoEndpoints(t *testing.T) {
	client := NewChainClient(10, nil)
	_, err := client.BlockNumber(context.Background())
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(map[int]config.ChainConfig{
		8453: {ChainID: 8453, RPCList: []string{"http://127.0.0.1:1"}},
	})
	defer reg.Close()

	c, err := reg.Get(8453)
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = reg.Get(1)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}
