package client

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/devblac/indexkit/internal/config"
)

// Pool holds one Reader per declared chain. It is shared by every handler context.
type Pool struct {
	readers map[string]Reader
	rpcs    []*rpc.Client
}

// NewPool dials every chain that has an rpc url. Chains without one get a
// Reader that fails each call with ErrNoEndpoint.
func NewPool(ctx context.Context, chains map[string]config.Chain, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{readers: make(map[string]Reader, len(chains))}
	for _, name := range sortedNames(chains) {
		ch := chains[name]
		if ch.RPC == "" {
			p.readers[name] = unavailable{id: ch.ID}
			logger.Debug("chain has no rpc endpoint", zap.String("chain", name))
			continue
		}
		rc, err := rpc.DialContext(ctx, ch.RPC)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("dial chain %s: %w", name, err)
		}
		p.rpcs = append(p.rpcs, rc)
		cc, err := newChainClient(ch.ID, rc, Options{RequestsPerSecond: ch.RequestsPerSecond})
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("chain %s: %w", name, err)
		}
		p.readers[name] = cc
		logger.Debug("chain client ready", zap.String("chain", name), zap.Uint64("chain_id", ch.ID), zap.Int("rps", ch.RequestsPerSecond))
	}
	return p, nil
}

// Chain returns the reader for a chain name.
func (p *Pool) Chain(name string) (Reader, error) {
	if p == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownChain)
	}
	r, ok := p.readers[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownChain)
	}
	return r, nil
}

// Names lists the chains in the pool, sorted.
func (p *Pool) Names() []string {
	if p == nil {
		return nil
	}
	return sortedNames(p.readers)
}

// Ping checks that every reachable chain answers eth_chainId with its declared id.
func (p *Pool) Ping(ctx context.Context) error {
	var lastErr error
	for _, name := range p.Names() {
		r := p.readers[name]
		if _, ok := r.(unavailable); ok {
			continue
		}
		var id hexutil.Big
		if err := r.Request(ctx, &id, "eth_chainId"); err != nil {
			lastErr = fmt.Errorf("chain %s: %w", name, err)
			continue
		}
		if got := (*big.Int)(&id).Uint64(); got != r.ChainID() {
			lastErr = fmt.Errorf("chain %s: rpc reports chain id %d, want %d", name, got, r.ChainID())
		}
	}
	return lastErr
}

// Close releases every rpc connection.
func (p *Pool) Close() {
	if p == nil {
		return
	}
	for _, rc := range p.rpcs {
		rc.Close()
	}
	p.rpcs = nil
}

type unavailable struct{ id uint64 }

func (u unavailable) ChainID() uint64 { return u.id }

func (unavailable) Request(context.Context, any, string, ...any) error { return ErrNoEndpoint }

func (unavailable) ReadContract(context.Context, Call) ([]any, error) { return nil, ErrNoEndpoint }

func (unavailable) Multicall(context.Context, []Call) ([]CallResult, error) {
	return nil, ErrNoEndpoint
}

func (unavailable) GetStorageAt(context.Context, common.Address, common.Hash, *uint64) (common.Hash, error) {
	return common.Hash{}, ErrNoEndpoint
}

func (unavailable) GetCode(context.Context, common.Address, *uint64) ([]byte, error) {
	return nil, ErrNoEndpoint
}

func (unavailable) GetBalance(context.Context, common.Address, *uint64) (*big.Int, error) {
	return nil, ErrNoEndpoint
}

func (unavailable) GetEnsName(context.Context, common.Address) (string, error) {
	return "", ErrNoEndpoint
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
