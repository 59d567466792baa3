package descriptor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type jsonParam struct {
	Name         string      `json:"name"`
	Type         string      `json:"type"`
	InternalType string      `json:"internalType"`
	Indexed      bool        `json:"indexed"`
	Components   []jsonParam `json:"components"`
}

type jsonEntry struct {
	Type            string      `json:"type"`
	Name            string      `json:"name"`
	Inputs          []jsonParam `json:"inputs"`
	Outputs         []jsonParam `json:"outputs"`
	Anonymous       bool        `json:"anonymous"`
	StateMutability string      `json:"stateMutability"`
	Constant        bool        `json:"constant"`
	Payable         bool        `json:"payable"`
}

// ParseJSON parses a JSON ABI array, or a build artifact with an "abi" field.
// Entries that fail to parse are skipped and returned as warnings.
func ParseJSON(data []byte) ([]Entry, []Warning, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(data, &artifact); err != nil {
			return nil, nil, fmt.Errorf("parse abi artifact: %w", err)
		}
		if len(artifact.ABI) == 0 {
			return nil, nil, errors.New("parse abi artifact: missing abi field")
		}
		data = artifact.ABI
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parse abi: %w", err)
	}

	var (
		entries  []Entry
		warnings []Warning
	)
	for i, item := range raw {
		entry, ok, err := ParseJSONEntry(item)
		if err != nil {
			warnings = append(warnings, Warning{Index: i, Text: string(item), Err: err})
			continue
		}
		if ok {
			entries = append(entries, entry)
		}
	}
	return entries, warnings, nil
}

// ParseJSONEntry parses one ABI object. ok is false for entries that are neither events
// nor functions (constructor, error, fallback, receive).
func ParseJSONEntry(data []byte) (Entry, bool, error) {
	var je jsonEntry
	if err := json.Unmarshal(data, &je); err != nil {
		return Entry{}, false, err
	}

	var kind Kind
	switch je.Type {
	case "event":
		kind = KindEvent
	case "function", "":
		kind = KindFunction
	case "constructor", "error", "fallback", "receive":
		return Entry{}, false, nil
	default:
		return Entry{}, false, fmt.Errorf("unsupported entry type %q", je.Type)
	}
	if je.Name == "" {
		return Entry{}, false, fmt.Errorf("%s without a name", kind)
	}

	inputs, err := convertParams(je.Inputs)
	if err != nil {
		return Entry{}, false, fmt.Errorf("%s inputs: %w", je.Name, err)
	}
	entry := Entry{Kind: kind, Name: je.Name, Inputs: inputs, Anonymous: je.Anonymous}

	if kind == KindFunction {
		outputs, err := convertParams(je.Outputs)
		if err != nil {
			return Entry{}, false, fmt.Errorf("%s outputs: %w", je.Name, err)
		}
		entry.Outputs = outputs
		entry.StateMutability = je.StateMutability
		if entry.StateMutability == "" {
			switch {
			case je.Constant:
				entry.StateMutability = "view"
			case je.Payable:
				entry.StateMutability = "payable"
			default:
				entry.StateMutability = "nonpayable"
			}
		}
	}
	return entry, true, nil
}

func convertParams(in []jsonParam) (Params, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(Params, len(in))
	for i, jp := range in {
		components, err := convertParams(jp.Components)
		if err != nil {
			return nil, fmt.Errorf("%s components: %w", jp.Name, err)
		}
		p, err := newParam(jp.Name, jp.Type, jp.InternalType, jp.Indexed, components)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
