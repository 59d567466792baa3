// Package source resolves configured contracts, accounts and block sources into
// per-chain deployments.
package source

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devblac/indexkit/internal/descriptor"
)

var (
	// ErrUnknownChain means a binding names a chain missing from the chains section.
	ErrUnknownChain = errors.New("unknown chain")
	// ErrAmbiguousChain means a source omits its binding while several chains are declared.
	ErrAmbiguousChain = errors.New("chain binding required when more than one chain is declared")
	// ErrDuplicateSource means the same name is used by two sources.
	ErrDuplicateSource = errors.New("source name already used")
)

// ConfigError is a fatal configuration problem attributed to one source.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: source %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Chain is a declared chain.
type Chain struct {
	Name string `json:"name"`
	ID   uint64 `json:"id"`
}

// Kind classifies a source.
type Kind int

const (
	KindContract Kind = iota + 1
	KindAccount
	KindBlock
)

func (k Kind) String() string {
	switch k {
	case KindContract:
		return "contract"
	case KindAccount:
		return "account"
	case KindBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Deployment is a source's effective settings on one chain.
type Deployment struct {
	Chain                      Chain          `json:"chain"`
	Address                    common.Address `json:"address"`
	StartBlock                 uint64         `json:"startBlock"`
	EndBlock                   *uint64        `json:"endBlock,omitempty"`
	Interval                   uint64         `json:"interval,omitempty"`
	IncludeTransactionReceipts bool           `json:"includeTransactionReceipts"`
	IncludeCallTraces          bool           `json:"includeCallTraces"`
}

// Source is a normalized contract, account or block source.
type Source struct {
	Name        string
	Kind        Kind
	Descriptors descriptor.Set
	// Deployments are ordered by chain name.
	Deployments []Deployment
}

// Chains returns the chains the source is deployed on.
func (s *Source) Chains() []Chain {
	out := make([]Chain, len(s.Deployments))
	for i, d := range s.Deployments {
		out[i] = d.Chain
	}
	return out
}

// Deployment returns the deployment on the named chain.
func (s *Source) Deployment(chain string) (Deployment, bool) {
	for _, d := range s.Deployments {
		if d.Chain.Name == chain {
			return d, true
		}
	}
	return Deployment{}, false
}

// CallTraces reports whether any deployment includes call traces.
func (s *Source) CallTraces() bool {
	for _, d := range s.Deployments {
		if d.IncludeCallTraces {
			return true
		}
	}
	return false
}

// Set is the normalized configuration.
type Set struct {
	Chains    []Chain
	Contracts []*Source
	Accounts  []*Source
	Blocks    []*Source

	byName map[string]*Source
}

// Source looks up a source by name.
func (s *Set) Source(name string) (*Source, bool) {
	src, ok := s.byName[name]
	return src, ok
}

// All returns contracts, accounts and blocks, each group ordered by name.
func (s *Set) All() []*Source {
	out := make([]*Source, 0, len(s.Contracts)+len(s.Accounts)+len(s.Blocks))
	out = append(out, s.Contracts...)
	out = append(out, s.Accounts...)
	return append(out, s.Blocks...)
}

// Chain returns the declared chain with the given name.
func (s *Set) Chain(name string) (Chain, bool) {
	for _, c := range s.Chains {
		if c.Name == name {
			return c, true
		}
	}
	return Chain{}, false
}

// ChainByID returns the declared chain with the given id.
func (s *Set) ChainByID(id uint64) (Chain, bool) {
	for _, c := range s.Chains {
		if c.ID == id {
			return c, true
		}
	}
	return Chain{}, false
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
