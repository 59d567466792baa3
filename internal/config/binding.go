package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ChainBinding is either a single chain name or a map of chain name to override.
type ChainBinding struct {
	Name      string
	Overrides map[string]ChainOverride
}

// ChainOverride replaces source-level values on one chain. Nil fields inherit.
type ChainOverride struct {
	Address                    *string `yaml:"address"`
	StartBlock                 *uint64 `yaml:"start_block"`
	EndBlock                   *uint64 `yaml:"end_block"`
	Interval                   *uint64 `yaml:"interval"`
	IncludeTransactionReceipts *bool   `yaml:"include_transaction_receipts"`
	IncludeCallTraces          *bool   `yaml:"include_call_traces"`
}

// IsZero reports whether the binding was omitted.
func (b ChainBinding) IsZero() bool {
	return b.Name == "" && len(b.Overrides) == 0
}

// ChainNames returns the referenced chain names in sorted order.
func (b ChainBinding) ChainNames() []string {
	if b.Name != "" {
		return []string{b.Name}
	}
	return sortedKeys(b.Overrides)
}

func (b *ChainBinding) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			*b = ChainBinding{}
			return nil
		}
		b.Name = n.Value
		return nil
	case yaml.MappingNode:
		overrides := make(map[string]ChainOverride, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i].Value, n.Content[i+1]
			var o ChainOverride
			if !(val.Kind == yaml.ScalarNode && val.ShortTag() == "!!null") {
				if err := val.Decode(&o); err != nil {
					return fmt.Errorf("chain %s: %w", key, err)
				}
			}
			overrides[key] = o
		}
		if len(overrides) == 0 {
			return errors.New("chain: mapping must name at least one chain")
		}
		b.Overrides = overrides
		return nil
	default:
		return fmt.Errorf("chain: expected a chain name or a mapping at line %d", n.Line)
	}
}

func (b ChainBinding) MarshalYAML() (any, error) {
	if b.Name != "" {
		return b.Name, nil
	}
	if len(b.Overrides) == 0 {
		return nil, nil
	}
	return b.Overrides, nil
}

// InterfaceSource is where a contract's ABI comes from: a file path or an inline list.
type InterfaceSource struct {
	Path  string
	Items []InterfaceItem
}

// InterfaceItem is one inline ABI entry: a human-readable signature or a JSON ABI object.
type InterfaceItem struct {
	Signature string
	JSON      json.RawMessage
}

func (s InterfaceSource) IsZero() bool {
	return s.Path == "" && len(s.Items) == 0
}

func (s *InterfaceSource) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			*s = InterfaceSource{}
			return nil
		}
		s.Path = n.Value
		return nil
	case yaml.SequenceNode:
		items := make([]InterfaceItem, 0, len(n.Content))
		for i, item := range n.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				items = append(items, InterfaceItem{Signature: item.Value})
			case yaml.MappingNode:
				var entry map[string]any
				if err := item.Decode(&entry); err != nil {
					return fmt.Errorf("abi[%d]: %w", i, err)
				}
				raw, err := json.Marshal(entry)
				if err != nil {
					return fmt.Errorf("abi[%d]: %w", i, err)
				}
				items = append(items, InterfaceItem{JSON: raw})
			default:
				return fmt.Errorf("abi[%d]: expected a signature or an ABI object", i)
			}
		}
		s.Items = items
		return nil
	default:
		return fmt.Errorf("abi: expected a path or a list at line %d", n.Line)
	}
}

func (s InterfaceSource) MarshalYAML() (any, error) {
	if s.Path != "" {
		return s.Path, nil
	}
	out := make([]any, 0, len(s.Items))
	for _, item := range s.Items {
		if item.Signature != "" {
			out = append(out, item.Signature)
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal(item.JSON, &entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}
