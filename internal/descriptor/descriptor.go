// Package descriptor turns contract interface text into ordered event and function entries.
package descriptor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Kind tags an interface entry.
type Kind int

const (
	KindEvent Kind = iota + 1
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Param is one input or output parameter. Type holds the canonical type text.
type Param struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Indexed    bool    `json:"indexed,omitempty"`
	Components []Param `json:"components,omitempty"`

	abiType abi.Type
}

// Params is an ordered parameter list.
type Params []Param

// Entry is a single event or function from a contract interface.
type Entry struct {
	Kind            Kind   `json:"kind"`
	Name            string `json:"name"`
	Inputs          Params `json:"inputs"`
	Outputs         Params `json:"outputs,omitempty"`
	Anonymous       bool   `json:"anonymous,omitempty"`
	StateMutability string `json:"stateMutability,omitempty"`
}

// Warning records an entry that was skipped because it could not be parsed.
type Warning struct {
	Index int
	Text  string
	Err   error
}

func (w Warning) String() string {
	return fmt.Sprintf("entry %d (%s): %v", w.Index, w.Text, w.Err)
}

// Set is the parsed interface of one contract. Opaque sets have no enumerable entries.
type Set struct {
	Entries  []Entry
	Opaque   bool
	Warnings []Warning
}

// OpaqueSet returns a Set whose entries are not statically known.
func OpaqueSet() Set {
	return Set{Opaque: true}
}

// Events returns the event entries in declaration order.
func (s Set) Events() []Entry {
	return s.filter(KindEvent)
}

// Functions returns the function entries in declaration order.
func (s Set) Functions() []Entry {
	return s.filter(KindFunction)
}

func (s Set) filter(kind Kind) []Entry {
	var out []Entry
	for _, e := range s.Entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Types returns the canonical parameter type list, e.g. "address,uint256".
func (p Params) Types() string {
	types := make([]string, len(p))
	for i, param := range p {
		types[i] = param.Type
	}
	return strings.Join(types, ",")
}

// AllNamed reports whether every parameter carries a name.
func (p Params) AllNamed() bool {
	for _, param := range p {
		if param.Name == "" {
			return false
		}
	}
	return true
}

// Arguments converts the list to go-ethereum arguments. Each argument is keyed by its
// position, which no Solidity identifier can spell, so declared names never collide.
func (p Params) Arguments() (abi.Arguments, error) {
	args := make(abi.Arguments, len(p))
	for i, param := range p {
		t, err := param.ABIType()
		if err != nil {
			return nil, err
		}
		args[i] = abi.Argument{Name: PositionKey(i), Type: t, Indexed: param.Indexed}
	}
	return args, nil
}

// PositionKey is the decoding key of the parameter at position i.
func PositionKey(i int) string {
	return strconv.Itoa(i)
}

// ABIType returns the go-ethereum type of the parameter.
func (p Param) ABIType() (abi.Type, error) {
	if p.abiType.String() != "" {
		return p.abiType, nil
	}
	typ := p.Type
	if len(p.Components) > 0 {
		typ = "tuple" + arraySuffix(p.Type)
	}
	return abi.NewType(normalizeType(typ), "", marshaling(p.Components))
}

// Signature returns the canonical "Name(type,...)" text.
func (e Entry) Signature() string {
	return e.Name + "(" + e.Inputs.Types() + ")"
}

// SameShape reports whether two entries share kind, bare name and input types.
func (e Entry) SameShape(other Entry) bool {
	return e.Kind == other.Kind && e.Name == other.Name && e.Inputs.Types() == other.Inputs.Types()
}

// Topic returns the event topic0 hash.
func (e Entry) Topic() common.Hash {
	return crypto.Keccak256Hash([]byte(e.Signature()))
}

// Selector returns the 4-byte function selector.
func (e Entry) Selector() []byte {
	return crypto.Keccak256([]byte(e.Signature()))[:4]
}

// Method builds the go-ethereum method for a function entry.
func (e Entry) Method() (abi.Method, error) {
	inputs, err := e.Inputs.Arguments()
	if err != nil {
		return abi.Method{}, fmt.Errorf("%s inputs: %w", e.Name, err)
	}
	outputs, err := e.Outputs.Arguments()
	if err != nil {
		return abi.Method{}, fmt.Errorf("%s outputs: %w", e.Name, err)
	}
	mutability := e.StateMutability
	if mutability == "" {
		mutability = "nonpayable"
	}
	isConst := mutability == "view" || mutability == "pure"
	return abi.NewMethod(e.Name, e.Name, abi.Function, mutability, isConst, mutability == "payable", inputs, outputs), nil
}

// newParam validates typ with go-ethereum and returns a param carrying the canonical type text.
func newParam(name, typ, internalType string, indexed bool, components []Param) (Param, error) {
	typ = normalizeType(typ)
	t, err := abi.NewType(typ, internalType, marshaling(components))
	if err != nil {
		return Param{}, fmt.Errorf("parse type %s: %w", typ, err)
	}
	return Param{
		Name:       name,
		Type:       t.String(),
		Indexed:    indexed,
		Components: components,
		abiType:    t,
	}, nil
}

func marshaling(components []Param) []abi.ArgumentMarshaling {
	if len(components) == 0 {
		return nil
	}
	out := make([]abi.ArgumentMarshaling, len(components))
	for i, c := range components {
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("field%d", i)
		}
		typ := c.Type
		if len(c.Components) > 0 {
			typ = "tuple" + arraySuffix(c.Type)
		}
		out[i] = abi.ArgumentMarshaling{Name: name, Type: typ, Components: marshaling(c.Components)}
	}
	return out
}

// normalizeType expands the uint/int aliases to their 256-bit forms.
func normalizeType(typ string) string {
	base, suffix := typ, ""
	if i := strings.Index(typ, "["); i >= 0 && !strings.HasPrefix(typ, "(") {
		base, suffix = typ[:i], typ[i:]
	}
	switch base {
	case "uint", "int":
		return base + "256" + suffix
	default:
		return typ
	}
}

// arraySuffix returns the trailing array dimensions of a type, e.g. "[2][]".
func arraySuffix(typ string) string {
	depth := 0
	for i, r := range typ {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case '[':
			if depth == 0 {
				return typ[i:]
			}
		}
	}
	return ""
}
