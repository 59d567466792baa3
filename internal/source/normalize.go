package source

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devblac/indexkit/internal/config"
	"github.com/devblac/indexkit/internal/descriptor"
)

// defaults are the source-level values a per-chain override falls back to.
type defaults struct {
	address    string
	startBlock uint64
	endBlock   *uint64
	interval   uint64
	receipts   bool
	traces     bool
}

// Normalize resolves every source binding against the declared chains and loads contract descriptors.
func Normalize(cfg *config.Config) (*Set, error) {
	set := &Set{byName: map[string]*Source{}}
	for _, name := range sortedNames(cfg.Chains) {
		set.Chains = append(set.Chains, Chain{Name: name, ID: cfg.Chains[name].ID})
	}

	for _, name := range sortedNames(cfg.Contracts) {
		ct := cfg.Contracts[name]
		descs, err := descriptor.Load(ct.ABI, ct.ABIOpaque, cfg.Dir)
		if err != nil {
			return nil, &ConfigError{Source: name, Err: err}
		}
		src, err := set.add(name, KindContract, ct.Chain, defaults{
			address:    ct.Address,
			startBlock: ct.StartBlock,
			endBlock:   ct.EndBlock,
			receipts:   ct.IncludeTransactionReceipts,
			traces:     ct.IncludeCallTraces,
		})
		if err != nil {
			return nil, err
		}
		src.Descriptors = descs
		set.Contracts = append(set.Contracts, src)
	}

	for _, name := range sortedNames(cfg.Accounts) {
		a := cfg.Accounts[name]
		src, err := set.add(name, KindAccount, a.Chain, defaults{
			address:    a.Address,
			startBlock: a.StartBlock,
			endBlock:   a.EndBlock,
		})
		if err != nil {
			return nil, err
		}
		set.Accounts = append(set.Accounts, src)
	}

	for _, name := range sortedNames(cfg.Blocks) {
		b := cfg.Blocks[name]
		src, err := set.add(name, KindBlock, b.Chain, defaults{
			startBlock: b.StartBlock,
			endBlock:   b.EndBlock,
			interval:   b.Interval,
		})
		if err != nil {
			return nil, err
		}
		set.Blocks = append(set.Blocks, src)
	}

	return set, nil
}

func (s *Set) add(name string, kind Kind, binding config.ChainBinding, base defaults) (*Source, error) {
	if _, exists := s.byName[name]; exists {
		return nil, &ConfigError{Source: name, Err: ErrDuplicateSource}
	}
	deployments, err := s.resolve(binding, base)
	if err != nil {
		return nil, &ConfigError{Source: name, Err: err}
	}
	src := &Source{Name: name, Kind: kind, Deployments: deployments}
	s.byName[name] = src
	return src, nil
}

func (s *Set) resolve(binding config.ChainBinding, base defaults) ([]Deployment, error) {
	if binding.IsZero() {
		if len(s.Chains) != 1 {
			return nil, ErrAmbiguousChain
		}
		d, err := base.on(s.Chains[0], config.ChainOverride{})
		if err != nil {
			return nil, err
		}
		return []Deployment{d}, nil
	}

	names := binding.ChainNames()
	deployments := make([]Deployment, 0, len(names))
	for _, name := range names {
		chain, ok := s.Chain(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownChain, name)
		}
		d, err := base.on(chain, binding.Overrides[name])
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", name, err)
		}
		deployments = append(deployments, d)
	}
	return deployments, nil
}

// on applies an override on top of the defaults for one chain.
func (b defaults) on(chain Chain, o config.ChainOverride) (Deployment, error) {
	d := Deployment{
		Chain:                      chain,
		StartBlock:                 b.startBlock,
		EndBlock:                   b.endBlock,
		Interval:                   b.interval,
		IncludeTransactionReceipts: b.receipts,
		IncludeCallTraces:          b.traces,
	}
	address := b.address
	if o.Address != nil {
		address = *o.Address
	}
	if address != "" {
		d.Address = common.HexToAddress(address)
	}
	if o.StartBlock != nil {
		d.StartBlock = *o.StartBlock
	}
	if o.EndBlock != nil {
		end := *o.EndBlock
		d.EndBlock = &end
	}
	if o.Interval != nil {
		d.Interval = *o.Interval
	}
	if o.IncludeTransactionReceipts != nil {
		d.IncludeTransactionReceipts = *o.IncludeTransactionReceipts
	}
	if o.IncludeCallTraces != nil {
		d.IncludeCallTraces = *o.IncludeCallTraces
	}
	if d.EndBlock != nil && *d.EndBlock < d.StartBlock {
		return Deployment{}, fmt.Errorf("end_block %d is before start_block %d", *d.EndBlock, d.StartBlock)
	}
	return d, nil
}
