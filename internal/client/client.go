// Package client provides the read-only chain client handed to handlers.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/ratelimit"

	"github.com/devblac/indexkit/internal/descriptor"
)

var (
	// ErrUnknownChain is returned by the pool for a chain it was not built with.
	ErrUnknownChain = errors.New("unknown chain")
	// ErrNoEndpoint means the chain was declared without an rpc url.
	ErrNoEndpoint = errors.New("no rpc endpoint configured")
	// ErrNotFunction is returned when a contract call is given an event entry.
	ErrNotFunction = errors.New("entry is not a function")
)

// Reader is the read-only chain access available to handlers.
type Reader interface {
	ChainID() uint64
	// Request performs a raw JSON-RPC call.
	Request(ctx context.Context, result any, method string, args ...any) error
	ReadContract(ctx context.Context, call Call) ([]any, error)
	Multicall(ctx context.Context, calls []Call) ([]CallResult, error)
	GetStorageAt(ctx context.Context, addr common.Address, slot common.Hash, block *uint64) (common.Hash, error)
	GetCode(ctx context.Context, addr common.Address, block *uint64) ([]byte, error)
	GetBalance(ctx context.Context, addr common.Address, block *uint64) (*big.Int, error)
	// GetEnsName returns the primary ENS name of addr, or "" when none is set.
	GetEnsName(ctx context.Context, addr common.Address) (string, error)
	// Transaction fetches a mined transaction with its receipt and block header.
	Transaction(ctx context.Context, hash common.Hash) (*Mined, error)
}

// Call is a contract read. A nil Block reads at the latest block.
type Call struct {
	Address  common.Address
	Function descriptor.Entry
	Args     []any
	Block    *uint64
}

// CallResult is one Multicall outcome.
type CallResult struct {
	Values []any
	Err    error
}

// Options tunes a chain client.
type Options struct {
	RequestsPerSecond int
	CacheSize         int
}

const defaultCacheSize = 4096

type chainClient struct {
	id      uint64
	rpc     *rpc.Client
	eth     *ethclient.Client
	limiter ratelimit.Limiter
	// cache holds reads pinned to a block number; they never change.
	cache *lru.Cache
}

var _ Reader = (*chainClient)(nil)

func newChainClient(id uint64, rc *rpc.Client, opts Options) (*chainClient, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	limiter := ratelimit.NewUnlimited()
	if opts.RequestsPerSecond > 0 {
		limiter = ratelimit.New(opts.RequestsPerSecond)
	}
	return &chainClient{
		id:      id,
		rpc:     rc,
		eth:     ethclient.NewClient(rc),
		limiter: limiter,
		cache:   cache,
	}, nil
}

func (c *chainClient) ChainID() uint64 { return c.id }

func (c *chainClient) Request(ctx context.Context, result any, method string, args ...any) error {
	c.limiter.Take()
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (c *chainClient) ReadContract(ctx context.Context, call Call) ([]any, error) {
	method, data, err := pack(call)
	if err != nil {
		return nil, err
	}
	key := cacheKey("call", call.Address, call.Block, data)
	if out, ok := c.cached(key); ok {
		return method.Outputs.Unpack(out.([]byte))
	}

	c.limiter.Take()
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &call.Address, Data: data}, blockNumber(call.Block))
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", call.Function.Signature(), err)
	}
	c.store(key, call.Block, out)
	values, err := method.Outputs.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", call.Function.Signature(), err)
	}
	return values, nil
}

// Multicall sends every call in a single JSON-RPC batch. Per-call failures are
// reported in the matching CallResult; the returned error covers the batch itself.
func (c *chainClient) Multicall(ctx context.Context, calls []Call) ([]CallResult, error) {
	results := make([]CallResult, len(calls))
	methods := make([]abi.Method, len(calls))
	raw := make([]hexutil.Bytes, len(calls))
	batch := make([]rpc.BatchElem, 0, len(calls))
	index := make([]int, 0, len(calls))

	for i, call := range calls {
		method, data, err := pack(call)
		if err != nil {
			results[i].Err = err
			continue
		}
		methods[i] = method
		batch = append(batch, rpc.BatchElem{
			Method: "eth_call",
			Args: []any{
				map[string]any{"to": call.Address, "data": hexutil.Bytes(data)},
				blockArg(call.Block),
			},
			Result: &raw[i],
		})
		index = append(index, i)
	}
	if len(batch) == 0 {
		return results, nil
	}

	c.limiter.Take()
	if err := c.rpc.BatchCallContext(ctx, batch); err != nil {
		return nil, fmt.Errorf("multicall: %w", err)
	}
	for j, elem := range batch {
		i := index[j]
		if elem.Error != nil {
			results[i].Err = elem.Error
			continue
		}
		results[i].Values, results[i].Err = methods[i].Outputs.Unpack(raw[i])
	}
	return results, nil
}

func (c *chainClient) GetStorageAt(ctx context.Context, addr common.Address, slot common.Hash, block *uint64) (common.Hash, error) {
	key := cacheKey("storage", addr, block, slot.Bytes())
	if v, ok := c.cached(key); ok {
		return v.(common.Hash), nil
	}
	c.limiter.Take()
	raw, err := c.eth.StorageAt(ctx, addr, slot, blockNumber(block))
	if err != nil {
		return common.Hash{}, fmt.Errorf("storage at %s: %w", addr.Hex(), err)
	}
	value := common.BytesToHash(raw)
	c.store(key, block, value)
	return value, nil
}

func (c *chainClient) GetCode(ctx context.Context, addr common.Address, block *uint64) ([]byte, error) {
	key := cacheKey("code", addr, block, nil)
	if v, ok := c.cached(key); ok {
		return v.([]byte), nil
	}
	c.limiter.Take()
	code, err := c.eth.CodeAt(ctx, addr, blockNumber(block))
	if err != nil {
		return nil, fmt.Errorf("code at %s: %w", addr.Hex(), err)
	}
	c.store(key, block, code)
	return code, nil
}

func (c *chainClient) GetBalance(ctx context.Context, addr common.Address, block *uint64) (*big.Int, error) {
	key := cacheKey("balance", addr, block, nil)
	if v, ok := c.cached(key); ok {
		return new(big.Int).Set(v.(*big.Int)), nil
	}
	c.limiter.Take()
	balance, err := c.eth.BalanceAt(ctx, addr, blockNumber(block))
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", addr.Hex(), err)
	}
	c.store(key, block, new(big.Int).Set(balance))
	return balance, nil
}

func (c *chainClient) cached(key string) (any, bool) {
	if key == "" {
		return nil, false
	}
	return c.cache.Get(key)
}

func (c *chainClient) store(key string, block *uint64, v any) {
	if key == "" || block == nil {
		return
	}
	c.cache.Add(key, v)
}

func pack(call Call) (abi.Method, []byte, error) {
	if call.Function.Kind != descriptor.KindFunction {
		return abi.Method{}, nil, fmt.Errorf("%s: %w", call.Function.Name, ErrNotFunction)
	}
	method, err := call.Function.Method()
	if err != nil {
		return abi.Method{}, nil, err
	}
	args, err := method.Inputs.Pack(call.Args...)
	if err != nil {
		return abi.Method{}, nil, fmt.Errorf("pack %s: %w", call.Function.Signature(), err)
	}
	return method, append(append([]byte{}, method.ID...), args...), nil
}

// cacheKey is empty for reads at the latest block.
func cacheKey(kind string, addr common.Address, block *uint64, extra []byte) string {
	if block == nil {
		return ""
	}
	return fmt.Sprintf("%s:%s:%d:%x", kind, addr.Hex(), *block, extra)
}

func blockNumber(block *uint64) *big.Int {
	if block == nil {
		return nil
	}
	return new(big.Int).SetUint64(*block)
}

func blockArg(block *uint64) string {
	if block == nil {
		return "latest"
	}
	return hexutil.EncodeUint64(*block)
}
