package payload

import (
	"encoding/json"
	"math/big"
	"reflect"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Args holds decoded parameters. Named args keep declaration order in Keys.
// Positional args have no keys and encode as a JSON array.
type Args struct {
	Keys   []string
	Values []any
}

// NamedArgs builds named args; keys and values must have equal length.
func NamedArgs(keys []string, values []any) *Args {
	return &Args{Keys: keys, Values: values}
}

// PositionalArgs builds positional args.
func PositionalArgs(values []any) *Args {
	if values == nil {
		values = []any{}
	}
	return &Args{Values: values}
}

// Named reports whether args are keyed by parameter name.
func (a *Args) Named() bool {
	return a != nil && a.Keys != nil
}

// Len returns the number of arguments.
func (a *Args) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Values)
}

// Get returns a named argument.
func (a *Args) Get(name string) (any, bool) {
	if a == nil {
		return nil, false
	}
	for i, k := range a.Keys {
		if k == name {
			return a.Values[i], true
		}
	}
	return nil, false
}

// At returns the argument at position i.
func (a *Args) At(i int) (any, bool) {
	if a == nil || i < 0 || i >= len(a.Values) {
		return nil, false
	}
	return a.Values[i], true
}

// Map returns named args as a map of JSON-friendly values. Positional args are keyed by index.
func (a *Args) Map() map[string]any {
	out := make(map[string]any, a.Len())
	if a == nil {
		return out
	}
	for i, v := range a.Values {
		key := strconv.Itoa(i)
		if a.Named() {
			key = a.Keys[i]
		}
		out[key] = plain(v)
	}
	return out
}

func (a *Args) MarshalJSON() ([]byte, error) {
	if a.Named() {
		return json.Marshal(a.Map())
	}
	values := make([]any, len(a.Values))
	for i, v := range a.Values {
		values[i] = plain(v)
	}
	return json.Marshal(values)
}

// Result is the decoded return value of a call: the single output, or all outputs in order.
type Result struct {
	Value any
}

// Plain returns the result in the same JSON-friendly form as Args.Map.
func (r *Result) Plain() any {
	if r == nil {
		return nil
	}
	return plain(r.Value)
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(plain(r.Value))
}

var (
	bigIntType  = reflect.TypeOf((*big.Int)(nil))
	addressType = reflect.TypeOf(common.Address{})
	hashType    = reflect.TypeOf(common.Hash{})
)

// plain converts decoded ABI values into JSON-friendly forms: integers as decimal
// strings, byte arrays as 0x hex, tuples as objects.
func plain(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Type() {
	case bigIntType:
		if rv.IsNil() {
			return nil
		}
		return v.(*big.Int).String()
	case addressType:
		return v.(common.Address).Hex()
	case hashType:
		return v.(common.Hash).Hex()
	}

	switch rv.Kind() {
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return hexutil.Encode(b)
		}
		return plainList(rv)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return hexutil.Encode(rv.Bytes())
		}
		return plainList(rv)
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		for i := 0; i < rv.NumField(); i++ {
			f := rv.Type().Field(i)
			if !f.IsExported() {
				continue
			}
			key := f.Name
			if tag := f.Tag.Get("json"); tag != "" && tag != "-" {
				key = tag
			}
			out[key] = plain(rv.Field(i).Interface())
		}
		return out
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	default:
		return v
	}
}

func plainList(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = plain(rv.Index(i).Interface())
	}
	return out
}
