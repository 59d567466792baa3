// Package resolver computes the execution context handed to handlers for each catalog name.
package resolver

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devblac/indexkit/internal/catalog"
	"github.com/devblac/indexkit/internal/client"
	"github.com/devblac/indexkit/internal/descriptor"
	"github.com/devblac/indexkit/internal/source"
	"github.com/devblac/indexkit/internal/storage"
)

// ErrChainNotBound is returned when narrowing to a chain the source is not deployed on.
var ErrChainNotBound = errors.New("chain not bound to source")

// UnknownNameError is returned for names missing from the catalog.
type UnknownNameError struct {
	Name string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("unknown event name %q", e.Name)
}

// ChainView is a contract deployment on one chain.
type ChainView struct {
	Chain      source.Chain   `json:"chain"`
	Address    common.Address `json:"address"`
	StartBlock uint64         `json:"startBlock"`
	EndBlock   *uint64        `json:"endBlock,omitempty"`
}

// ContractBinding describes a configured contract to handlers.
// Address, StartBlock and EndBlock are set when every deployment agrees on them.
type ContractBinding struct {
	Name        string               `json:"name"`
	Descriptors descriptor.Set       `json:"-"`
	Address     common.Address       `json:"address"`
	StartBlock  uint64               `json:"startBlock"`
	EndBlock    *uint64              `json:"endBlock,omitempty"`
	Chains      map[string]ChainView `json:"chains"`
}

// On returns the deployment on chain.
func (b ContractBinding) On(chain string) (ChainView, bool) {
	v, ok := b.Chains[chain]
	return v, ok
}

// Context is what a handler sees for one occurrence: one concrete chain.
type Context struct {
	Chain     source.Chain
	DB        storage.DB
	Client    client.Reader
	Contracts map[string]ContractBinding
}

// Contract returns the named contract's deployment on the context chain.
func (c Context) Contract(name string) (ChainView, bool) {
	b, ok := c.Contracts[name]
	if !ok {
		return ChainView{}, false
	}
	return b.On(c.Chain.Name)
}

// Static is the cached context of a source before narrowing. Chains holds every
// chain the source is bound to.
type Static struct {
	Source    string
	Chains    []source.Chain
	DB        storage.DB
	Client    *client.Pool
	Contracts map[string]ContractBinding

	narrowed map[string]Context
}

// Single returns the only chain of a single-chain source.
func (s *Static) Single() (source.Chain, bool) {
	if len(s.Chains) != 1 {
		return source.Chain{}, false
	}
	return s.Chains[0], true
}

// Narrow returns the context for an occurrence on chain.
func (s *Static) Narrow(chain string) (Context, error) {
	ctx, ok := s.narrowed[chain]
	if !ok {
		return Context{}, fmt.Errorf("%s on %s: %w", s.Source, chain, ErrChainNotBound)
	}
	return ctx, nil
}

// NarrowID is Narrow keyed by chain id.
func (s *Static) NarrowID(id uint64) (Context, error) {
	for _, c := range s.Chains {
		if c.ID == id {
			return s.narrowed[c.Name], nil
		}
	}
	return Context{}, fmt.Errorf("%s on chain id %d: %w", s.Source, id, ErrChainNotBound)
}

// Resolver holds one Static per source, built once and never mutated.
type Resolver struct {
	cat     *catalog.Catalog
	chains  []source.Chain
	statics map[string]*Static
	union   *Static
}

// New precomputes contexts for every source in set. pool may be nil when no
// chain access is needed; contexts then carry a nil Client.
func New(set *source.Set, cat *catalog.Catalog, db storage.DB, pool *client.Pool) (*Resolver, error) {
	contracts := bindings(set)
	r := &Resolver{
		cat:     cat,
		chains:  append([]source.Chain(nil), set.Chains...),
		statics: map[string]*Static{},
	}
	newStatic := func(name string, chains []source.Chain) (*Static, error) {
		st := &Static{
			Source:    name,
			Chains:    chains,
			DB:        db,
			Client:    pool,
			Contracts: contracts,
			narrowed:  map[string]Context{},
		}
		for _, ch := range chains {
			ctx := Context{Chain: ch, DB: db, Contracts: contracts}
			if pool != nil {
				reader, err := pool.Chain(ch.Name)
				if err != nil {
					return nil, fmt.Errorf("context for %s: %w", name, err)
				}
				ctx.Client = reader
			}
			st.narrowed[ch.Name] = ctx
		}
		return st, nil
	}

	for _, src := range set.All() {
		st, err := newStatic(src.Name, src.Chains())
		if err != nil {
			return nil, err
		}
		r.statics[src.Name] = st
	}
	union, err := newStatic("", r.AllChains())
	if err != nil {
		return nil, err
	}
	r.union = union
	return r, nil
}

// Static returns the cached context for a catalog name.
func (r *Resolver) Static(name string) (*Static, error) {
	entry, ok := r.cat.Lookup(name)
	if !ok {
		return nil, &UnknownNameError{Name: name}
	}
	st, ok := r.statics[entry.Source.Name]
	if !ok {
		return nil, fmt.Errorf("%s: no context for source %s", name, entry.Source.Name)
	}
	return st, nil
}

// Union is the context of a handler registered for every name: all declared
// chains and every contract. Its Source is empty.
func (r *Resolver) Union() *Static {
	return r.union
}

// AllChains returns every declared chain, ordered by name.
func (r *Resolver) AllChains() []source.Chain {
	out := append([]source.Chain(nil), r.chains...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func bindings(set *source.Set) map[string]ContractBinding {
	out := make(map[string]ContractBinding, len(set.Contracts))
	for _, src := range set.Contracts {
		b := ContractBinding{
			Name:        src.Name,
			Descriptors: src.Descriptors,
			Chains:      make(map[string]ChainView, len(src.Deployments)),
		}
		for i, d := range src.Deployments {
			b.Chains[d.Chain.Name] = ChainView{
				Chain:      d.Chain,
				Address:    d.Address,
				StartBlock: d.StartBlock,
				EndBlock:   d.EndBlock,
			}
			if i == 0 {
				b.Address, b.StartBlock, b.EndBlock = d.Address, d.StartBlock, d.EndBlock
				continue
			}
			if d.Address != b.Address {
				b.Address = common.Address{}
			}
			if d.StartBlock != b.StartBlock {
				b.StartBlock = 0
			}
			if !sameEnd(d.EndBlock, b.EndBlock) {
				b.EndBlock = nil
			}
		}
		out[src.Name] = b
	}
	return out
}

func sameEnd(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
