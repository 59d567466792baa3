// Package catalog derives the canonical event names handlers can subscribe to.
package catalog

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/devblac/indexkit/internal/descriptor"
	"github.com/devblac/indexkit/internal/source"
)

// Kind is the closed set of occurrence kinds.
type Kind int

const (
	KindSetup Kind = iota + 1
	KindLog
	KindFunctionCall
	KindAccountTransfer
	KindAccountTransaction
	KindBlockTick
)

func (k Kind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindLog:
		return "log"
	case KindFunctionCall:
		return "function_call"
	case KindAccountTransfer:
		return "account_transfer"
	case KindAccountTransaction:
		return "account_transaction"
	case KindBlockTick:
		return "block_tick"
	default:
		return "unknown"
	}
}

// Direction tags account entries.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionFrom
	DirectionTo
)

func (d Direction) String() string {
	switch d {
	case DirectionFrom:
		return "from"
	case DirectionTo:
		return "to"
	default:
		return ""
	}
}

// Entry is one catalog name and what it refers to.
type Entry struct {
	Name      string
	Kind      Kind
	Source    *source.Source
	Direction Direction
	// Descriptor is set for Log and FunctionCall entries.
	Descriptor *descriptor.Entry
	// Overloaded is set when the name carries the full signature.
	Overloaded bool
}

func (e *Entry) MarshalJSON() ([]byte, error) {
	out := struct {
		Name       string `json:"name"`
		Kind       string `json:"kind"`
		Source     string `json:"source"`
		Direction  string `json:"direction,omitempty"`
		Signature  string `json:"signature,omitempty"`
		Overloaded bool   `json:"overloaded,omitempty"`
	}{
		Name:       e.Name,
		Kind:       e.Kind.String(),
		Direction:  e.Direction.String(),
		Overloaded: e.Overloaded,
	}
	if e.Source != nil {
		out.Source = e.Source.Name
	}
	if e.Descriptor != nil {
		out.Signature = e.Descriptor.Signature()
	}
	return json.Marshal(out)
}

// CollisionError means two derivations produced the same name with different meanings.
type CollisionError struct {
	Name     string
	Existing string
	Incoming string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("catalog: name %q derived twice (%s vs %s)", e.Name, e.Existing, e.Incoming)
}

// Catalog is the immutable set of canonical names. It is safe for concurrent reads.
type Catalog struct {
	entries []*Entry
	byName  map[string]*Entry
}

// Lookup returns the entry for name.
func (c *Catalog) Lookup(name string) (*Entry, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// Has reports whether name is in the catalog.
func (c *Catalog) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Entries returns entries in derivation order.
func (c *Catalog) Entries() []*Entry {
	return append([]*Entry(nil), c.entries...)
}

// Names returns names in derivation order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

func (c *Catalog) Len() int { return len(c.entries) }

// Build derives the catalog from a normalized source set. Malformed interface
// entries were skipped by the descriptor loader and are logged here.
func Build(set *source.Set, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{byName: map[string]*Entry{}}

	for _, src := range set.Contracts {
		for _, w := range src.Descriptors.Warnings {
			logger.Warn("skipped malformed interface entry",
				zap.String("source", src.Name),
				zap.Int("index", w.Index),
				zap.String("entry", w.Text),
				zap.Error(w.Err),
			)
		}
		if err := c.addContract(src); err != nil {
			return nil, err
		}
	}

	for _, src := range set.Accounts {
		for _, e := range []*Entry{
			{Name: src.Name + ":transfer:from", Kind: KindAccountTransfer, Direction: DirectionFrom},
			{Name: src.Name + ":transfer:to", Kind: KindAccountTransfer, Direction: DirectionTo},
			{Name: src.Name + ":transaction:from", Kind: KindAccountTransaction, Direction: DirectionFrom},
			{Name: src.Name + ":transaction:to", Kind: KindAccountTransaction, Direction: DirectionTo},
		} {
			e.Source = src
			if err := c.add(e); err != nil {
				return nil, err
			}
		}
	}

	for _, src := range set.Blocks {
		if err := c.add(&Entry{Name: src.Name + ":block", Kind: KindBlockTick, Source: src}); err != nil {
			return nil, err
		}
	}

	logger.Debug("catalog built", zap.Int("entries", len(c.entries)))
	return c, nil
}

func (c *Catalog) addContract(src *source.Source) error {
	if err := c.add(&Entry{Name: src.Name + ":setup", Kind: KindSetup, Source: src}); err != nil {
		return err
	}
	if src.Descriptors.Opaque {
		return nil
	}
	if err := c.addGroup(src, src.Descriptors.Events(), ":", KindLog); err != nil {
		return err
	}
	if !src.CallTraces() {
		return nil
	}
	return c.addGroup(src, src.Descriptors.Functions(), ".", KindFunctionCall)
}

// addGroup names entries in two passes: group by bare name, then use the full
// signature for every member of a group with more than one distinct shape.
func (c *Catalog) addGroup(src *source.Source, entries []descriptor.Entry, sep string, kind Kind) error {
	var (
		order  []string
		groups = map[string][]descriptor.Entry{}
	)
	for _, e := range entries {
		members, seen := groups[e.Name]
		if !seen {
			order = append(order, e.Name)
		}
		if containsShape(members, e) {
			continue
		}
		groups[e.Name] = append(members, e)
	}

	for _, name := range order {
		members := groups[name]
		overloaded := len(members) > 1
		for i := range members {
			d := members[i]
			catalogName := src.Name + sep + d.Name
			if overloaded {
				catalogName = src.Name + sep + d.Signature()
			}
			entry := &Entry{Name: catalogName, Kind: kind, Source: src, Descriptor: &d, Overloaded: overloaded}
			if err := c.add(entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func containsShape(members []descriptor.Entry, e descriptor.Entry) bool {
	for _, m := range members {
		if m.SameShape(e) {
			return true
		}
	}
	return false
}

func (c *Catalog) add(e *Entry) error {
	if existing, ok := c.byName[e.Name]; ok {
		if existing.Kind == e.Kind && existing.Source == e.Source && sameDescriptor(existing.Descriptor, e.Descriptor) {
			return nil
		}
		return &CollisionError{Name: e.Name, Existing: describe(existing), Incoming: describe(e)}
	}
	c.byName[e.Name] = e
	c.entries = append(c.entries, e)
	return nil
}

func sameDescriptor(a, b *descriptor.Entry) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.SameShape(*b)
}

func describe(e *Entry) string {
	if e.Descriptor != nil {
		return e.Kind.String() + " " + e.Descriptor.Signature()
	}
	return e.Kind.String()
}
