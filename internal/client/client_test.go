package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/devblac/indexkit/internal/config"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// fakeNode answers JSON-RPC requests, single or batched, and counts them by method.
type fakeNode struct {
	mu     sync.Mutex
	calls  map[string]int
	handle func(method string, params []json.RawMessage) (any, error)
}

func newFakeNode(t *testing.T, handle func(method string, params []json.RawMessage) (any, error)) (*fakeNode, string) {
	t.Helper()
	n := &fakeNode{calls: map[string]int{}, handle: handle}
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	return n, srv.URL
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		var reqs []rpcRequest
		_ = json.Unmarshal(raw, &reqs)
		out := make([]rpcResponse, len(reqs))
		for i, req := range reqs {
			out[i] = n.answer(req)
		}
		_ = json.NewEncoder(w).Encode(out)
		return
	}
	var req rpcRequest
	_ = json.Unmarshal(raw, &req)
	_ = json.NewEncoder(w).Encode(n.answer(req))
}

func (n *fakeNode) answer(req rpcRequest) rpcResponse {
	n.mu.Lock()
	n.calls[req.Method]++
	n.mu.Unlock()
	res, err := n.handle(req.Method, req.Params)
	if err != nil {
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32000, Message: err.Error()}}
	}
	return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: res}
}

func encodeUint(v int64) string {
	return hexutil.Encode(common.LeftPadBytes(big.NewInt(v).Bytes(), 32))
}

func callTarget(t *testing.T, params []json.RawMessage) (common.Address, []byte) {
	t.Helper()
	var msg struct {
		To    common.Address `json:"to"`
		Data  hexutil.Bytes  `json:"data"`
		Input hexutil.Bytes  `json:"input"`
	}
	require.NoError(t, json.Unmarshal(params[0], &msg))
	if len(msg.Data) == 0 {
		return msg.To, msg.Input
	}
	return msg.To, msg.Data
}

func newPool(t *testing.T, chains map[string]config.Chain) *Pool {
	t.Helper()
	p, err := NewPool(context.Background(), chains, nil)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestReadContractCachesPinnedBlocks(t *testing.T) {
	total := mustEntry("function total() view returns (uint256)")
	node, url := newFakeNode(t, func(method string, params []json.RawMessage) (any, error) {
		require.Equal(t, "eth_call", method)
		_, data := callTarget(t, params)
		require.Equal(t, total.Selector(), []byte(data))
		return encodeUint(7), nil
	})
	r, err := newPool(t, map[string]config.Chain{"mainnet": {ID: 1, RPC: url}}).Chain("mainnet")
	require.NoError(t, err)
	ctx := context.Background()
	addr := common.HexToAddress("0x01")
	block := uint64(100)

	for i := 0; i < 3; i++ {
		out, err := r.ReadContract(ctx, Call{Address: addr, Function: total, Block: &block})
		require.NoError(t, err)
		require.Equal(t, int64(7), out[0].(*big.Int).Int64())
	}
	require.Equal(t, 1, node.count("eth_call"))

	_, err = r.ReadContract(ctx, Call{Address: addr, Function: total})
	require.NoError(t, err)
	_, err = r.ReadContract(ctx, Call{Address: addr, Function: total})
	require.NoError(t, err)
	require.Equal(t, 3, node.count("eth_call"), "latest reads are not cached")
}

func TestReadContractRejectsEvents(t *testing.T) {
	_, url := newFakeNode(t, func(string, []json.RawMessage) (any, error) { return nil, nil })
	r, err := newPool(t, map[string]config.Chain{"mainnet": {ID: 1, RPC: url}}).Chain("mainnet")
	require.NoError(t, err)

	_, err = r.ReadContract(context.Background(), Call{Function: mustEntry("event Ping(uint256)")})
	require.ErrorIs(t, err, ErrNotFunction)
}

func TestMulticallBatchesAndReportsPerCallErrors(t *testing.T) {
	balanceOf := mustEntry("function balanceOf(address owner) view returns (uint256)")
	bad := common.HexToAddress("0xbad")
	node, url := newFakeNode(t, func(method string, params []json.RawMessage) (any, error) {
		to, _ := callTarget(t, params)
		if to == bad {
			return nil, errors.New("execution reverted")
		}
		return encodeUint(int64(to.Big().Uint64())), nil
	})
	r, err := newPool(t, map[string]config.Chain{"mainnet": {ID: 1, RPC: url}}).Chain("mainnet")
	require.NoError(t, err)

	owner := common.HexToAddress("0xabc")
	results, err := r.Multicall(context.Background(), []Call{
		{Address: common.HexToAddress("0x05"), Function: balanceOf, Args: []any{owner}},
		{Address: bad, Function: balanceOf, Args: []any{owner}},
		{Address: common.HexToAddress("0x09"), Function: balanceOf, Args: []any{"not an address"}},
		{Address: common.HexToAddress("0x0a"), Function: balanceOf, Args: []any{owner}},
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	require.NoError(t, results[0].Err)
	require.Equal(t, int64(5), results[0].Values[0].(*big.Int).Int64())
	require.Error(t, results[1].Err)
	require.Error(t, results[2].Err, "pack failures stay local to the call")
	require.Equal(t, int64(10), results[3].Values[0].(*big.Int).Int64())
	require.Equal(t, 3, node.count("eth_call"))
}

func TestStateReads(t *testing.T) {
	node, url := newFakeNode(t, func(method string, params []json.RawMessage) (any, error) {
		switch method {
		case "eth_getBalance":
			return "0x64", nil
		case "eth_getCode":
			return "0x6001", nil
		case "eth_getStorageAt":
			return encodeUint(42), nil
		}
		return nil, fmt.Errorf("unexpected %s", method)
	})
	r, err := newPool(t, map[string]config.Chain{"optimism": {ID: 10, RPC: url, RequestsPerSecond: 1000}}).Chain("optimism")
	require.NoError(t, err)
	ctx := context.Background()
	addr := common.HexToAddress("0x01")
	block := uint64(5)

	bal, err := r.GetBalance(ctx, addr, &block)
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.Int64())
	bal.SetInt64(0)
	bal, err = r.GetBalance(ctx, addr, &block)
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.Int64(), "cached balance is not aliased")
	require.Equal(t, 1, node.count("eth_getBalance"))

	code, err := r.GetCode(ctx, addr, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0x60, 0x01}, code)

	slot, err := r.GetStorageAt(ctx, addr, common.Hash{}, &block)
	require.NoError(t, err)
	require.Equal(t, common.BigToHash(big.NewInt(42)), slot)
}

func TestGetEnsName(t *testing.T) {
	resolver := common.HexToAddress("0x4976fb03C32e5B8cfe2b6cCB31c09Ba78EBaBa41")
	strArgs := abi.Arguments{{Type: mustType(t, "string")}}
	_, url := newFakeNode(t, func(method string, params []json.RawMessage) (any, error) {
		to, data := callTarget(t, params)
		switch to {
		case ensRegistry:
			require.Equal(t, ensResolver.Selector(), []byte(data[:4]))
			return hexutil.Encode(common.LeftPadBytes(resolver.Bytes(), 32)), nil
		case resolver:
			require.Equal(t, ensName.Selector(), []byte(data[:4]))
			out, err := strArgs.Pack("vitalik.eth")
			require.NoError(t, err)
			return hexutil.Encode(out), nil
		}
		return nil, fmt.Errorf("unexpected target %s", to.Hex())
	})
	p := newPool(t, map[string]config.Chain{
		"mainnet":  {ID: 1, RPC: url},
		"optimism": {ID: 10, RPC: url},
	})
	ctx := context.Background()
	addr := common.HexToAddress("0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045")

	mainnet, err := p.Chain("mainnet")
	require.NoError(t, err)
	name, err := mainnet.GetEnsName(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, "vitalik.eth", name)

	optimism, err := p.Chain("optimism")
	require.NoError(t, err)
	_, err = optimism.GetEnsName(ctx, addr)
	require.ErrorIs(t, err, ErrENSUnsupported)
}

func TestNamehash(t *testing.T) {
	require.Equal(t, [32]byte{}, namehash(""))
	require.Equal(t,
		"0xee6c4522aab0003e8d14cd40a6af439055fd2577951148c14b6cea9a53475835",
		hexutil.Encode(func() []byte { h := namehash("vitalik.eth"); return h[:] }()),
	)
	require.Equal(t, "d8da6bf26964af9d7eed9e03e53415d37aa96045.addr.reverse",
		reverseName(common.HexToAddress("0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045")))
}

func TestPoolChainLookupAndPing(t *testing.T) {
	_, url := newFakeNode(t, func(method string, _ []json.RawMessage) (any, error) {
		require.Equal(t, "eth_chainId", method)
		return "0xa", nil
	})
	p := newPool(t, map[string]config.Chain{
		"optimism": {ID: 10, RPC: url},
		"local":    {ID: 31337},
	})
	require.Equal(t, []string{"local", "optimism"}, p.Names())

	_, err := p.Chain("base")
	require.ErrorIs(t, err, ErrUnknownChain)

	local, err := p.Chain("local")
	require.NoError(t, err)
	require.Equal(t, uint64(31337), local.ChainID())
	_, err = local.GetBalance(context.Background(), common.Address{}, nil)
	require.ErrorIs(t, err, ErrNoEndpoint)

	require.NoError(t, p.Ping(context.Background()))
}

func TestPoolPingDetectsWrongChain(t *testing.T) {
	_, url := newFakeNode(t, func(string, []json.RawMessage) (any, error) { return "0x1", nil })
	p := newPool(t, map[string]config.Chain{"optimism": {ID: 10, RPC: url}})
	require.ErrorContains(t, p.Ping(context.Background()), "chain id 1")
}

func mustType(t *testing.T, typ string) abi.Type {
	t.Helper()
	ty, err := abi.NewType(typ, "", nil)
	require.NoError(t, err)
	return ty
}
