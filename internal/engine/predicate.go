package engine

import (
	"fmt"
	"math/big"
	"strings"
)

// Predicate evaluates whether an event's fields satisfy a condition.
type Predicate func(fields map[string]any) (bool, error)

// CompilePredicates parses route conditions of the form "<field> <op> <value>".
// Operators are ==, !=, >, <, >=, <=, in and contains. Numeric values accept
// underscores, exponents, one multiplication and the wei(), gwei() and ether() helpers:
//
//	"amount >= ether(1.5)"
//	"from in 0xabc...,0xdef..."
//	"memo contains alert"
func CompilePredicates(exprs []string) ([]Predicate, error) {
	var preds []Predicate
	for _, raw := range exprs {
		expr := strings.TrimSpace(raw)
		if expr == "" {
			continue
		}
		p, err := compile(expr)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// wordOps take a raw right-hand side and are matched before symbolic operators.
var wordOps = []struct {
	token string
	build func(field, rhs string) (Predicate, bool)
}{
	{" in ", memberOf},
	{" contains ", containing},
}

// comparisons is ordered so two-character operators win over their prefixes.
var comparisons = []struct {
	op  string
	num func(cmp int) bool
	// str is nil for orderings, which never match non-numeric values.
	str func(a, b string) bool
}{
	{"==", func(c int) bool { return c == 0 }, func(a, b string) bool { return a == b }},
	{"!=", func(c int) bool { return c != 0 }, func(a, b string) bool { return a != b }},
	{">=", func(c int) bool { return c >= 0 }, nil},
	{"<=", func(c int) bool { return c <= 0 }, nil},
	{">", func(c int) bool { return c > 0 }, nil},
	{"<", func(c int) bool { return c < 0 }, nil},
}

func compile(expr string) (Predicate, error) {
	for _, w := range wordOps {
		field, rhs, found := strings.Cut(expr, w.token)
		if !found {
			continue
		}
		p, ok := w.build(strings.TrimSpace(field), strings.TrimSpace(rhs))
		if !ok {
			return nil, fmt.Errorf("invalid %s expression: %s", strings.TrimSpace(w.token), expr)
		}
		return p, nil
	}

	for _, c := range comparisons {
		field, rhs, found := strings.Cut(expr, c.op)
		if !found {
			continue
		}
		field, rhs = strings.TrimSpace(field), strings.TrimSpace(rhs)
		if field == "" || rhs == "" {
			return nil, fmt.Errorf("invalid expression: %s", expr)
		}
		num, str := c.num, c.str
		want, numeric := evaluateNumber(rhs)
		return withField(field, func(val any) bool {
			if numeric {
				have, ok := toNumber(val)
				return ok && num(have.Cmp(want))
			}
			return str != nil && str(normalize(fmt.Sprint(val)), normalize(rhs))
		}), nil
	}
	return nil, fmt.Errorf("unsupported expression: %s", expr)
}

// withField adapts a value test into a Predicate. Missing fields never match.
func withField(field string, test func(any) bool) Predicate {
	return func(fields map[string]any) (bool, error) {
		val, ok := fields[field]
		if !ok {
			return false, nil
		}
		return test(val), nil
	}
}

func memberOf(field, rhs string) (Predicate, bool) {
	set := map[string]struct{}{}
	for _, v := range strings.Split(rhs, ",") {
		if v = strings.TrimSpace(v); v != "" {
			set[normalize(v)] = struct{}{}
		}
	}
	if field == "" || len(set) == 0 {
		return nil, false
	}
	return withField(field, func(val any) bool {
		_, hit := set[normalize(fmt.Sprint(val))]
		return hit
	}), true
}

func containing(field, needle string) (Predicate, bool) {
	if field == "" {
		return nil, false
	}
	return withField(field, func(val any) bool {
		return strings.Contains(fmt.Sprint(val), needle)
	}), true
}

// normalize lowercases hex literals so checksummed and plain addresses compare equal.
func normalize(s string) string {
	if isHex(s) {
		return strings.ToLower(s)
	}
	return s
}

func isHex(s string) bool {
	return len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

var unitScales = []struct {
	name  string
	scale *big.Float
}{
	{"wei", big.NewFloat(1)},
	{"gwei", big.NewFloat(1e9)},
	{"ether", big.NewFloat(1e18)},
}

func evaluateNumber(s string) (*big.Float, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")

	if a, b, found := strings.Cut(s, "*"); found {
		if strings.Contains(b, "*") {
			return nil, false
		}
		x, ok := evaluateNumber(a)
		if !ok {
			return nil, false
		}
		y, ok := evaluateNumber(b)
		if !ok {
			return nil, false
		}
		return newFloat().Mul(x, y), true
	}

	for _, u := range unitScales {
		inner, ok := strings.CutPrefix(s, u.name+"(")
		if !ok || !strings.HasSuffix(inner, ")") {
			continue
		}
		v, ok := evaluateNumber(strings.TrimSuffix(inner, ")"))
		if !ok {
			return nil, false
		}
		return newFloat().Mul(v, u.scale), true
	}

	v, _, err := newFloat().Parse(s, 10)
	return v, err == nil
}

func newFloat() *big.Float {
	return new(big.Float).SetPrec(512)
}

// toNumber converts handler field values. Hex strings stay strings.
func toNumber(v any) (*big.Float, bool) {
	switch n := v.(type) {
	case int:
		return newFloat().SetInt64(int64(n)), true
	case int64:
		return newFloat().SetInt64(n), true
	case uint64:
		return newFloat().SetUint64(n), true
	case float64:
		return newFloat().SetFloat64(n), true
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return newFloat().SetInt(n), true
	case string:
		if isHex(n) {
			return nil, false
		}
		return evaluateNumber(n)
	default:
		return nil, false
	}
}
