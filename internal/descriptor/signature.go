package descriptor

import (
	"errors"
	"fmt"
	"strings"
)

// ParseSignature parses a human-readable entry such as
// "event Transfer(address indexed from, address indexed to, uint256 value)" or
// "function balanceOf(address) view returns (uint256)". A bare "Name(types)" is an event.
// ok is false for constructor, error, fallback and receive declarations.
func ParseSignature(sig string) (Entry, bool, error) {
	text := strings.TrimSpace(sig)
	if text == "" {
		return Entry{}, false, errors.New("empty signature")
	}

	kind := KindEvent
	if keyword, rest, found := strings.Cut(text, " "); found && !strings.Contains(keyword, "(") {
		switch keyword {
		case "event":
			kind = KindEvent
		case "function":
			kind = KindFunction
		case "constructor", "error", "fallback", "receive":
			return Entry{}, false, nil
		default:
			return Entry{}, false, fmt.Errorf("unknown keyword %q", keyword)
		}
		text = strings.TrimSpace(rest)
	}

	open := strings.Index(text, "(")
	if open <= 0 {
		return Entry{}, false, fmt.Errorf("invalid signature: %s", sig)
	}
	name := strings.TrimSpace(text[:open])
	if strings.ContainsAny(name, " \t") {
		return Entry{}, false, fmt.Errorf("invalid name %q", name)
	}
	closing := matchParen(text, open)
	if closing < 0 {
		return Entry{}, false, fmt.Errorf("unbalanced parentheses: %s", sig)
	}

	inputs, err := parseParamList(text[open+1 : closing])
	if err != nil {
		return Entry{}, false, fmt.Errorf("%s inputs: %w", name, err)
	}
	entry := Entry{Kind: kind, Name: name, Inputs: inputs}
	tail := strings.TrimSpace(text[closing+1:])

	if kind == KindEvent {
		switch tail {
		case "":
		case "anonymous":
			entry.Anonymous = true
		default:
			return Entry{}, false, fmt.Errorf("unexpected %q after event parameters", tail)
		}
		return entry, true, nil
	}

	entry.StateMutability = "nonpayable"
	for tail != "" {
		word, rest, _ := strings.Cut(tail, " ")
		if strings.HasPrefix(word, "returns") {
			ret := strings.TrimSpace(strings.TrimPrefix(tail, "returns"))
			if !strings.HasPrefix(ret, "(") {
				return Entry{}, false, fmt.Errorf("%s: returns without parameter list", name)
			}
			end := matchParen(ret, 0)
			if end < 0 {
				return Entry{}, false, fmt.Errorf("%s: unbalanced returns list", name)
			}
			outputs, err := parseParamList(ret[1:end])
			if err != nil {
				return Entry{}, false, fmt.Errorf("%s outputs: %w", name, err)
			}
			entry.Outputs = outputs
			tail = strings.TrimSpace(ret[end+1:])
			continue
		}
		switch word {
		case "view", "pure", "payable", "nonpayable":
			entry.StateMutability = word
		case "external", "public", "constant":
			if word == "constant" {
				entry.StateMutability = "view"
			}
		default:
			return Entry{}, false, fmt.Errorf("%s: unexpected modifier %q", name, word)
		}
		tail = strings.TrimSpace(rest)
	}
	return entry, true, nil
}

func parseParamList(list string) (Params, error) {
	parts := splitTopLevel(list)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make(Params, 0, len(parts))
	for _, part := range parts {
		p, err := parseParam(part)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parseParam(text string) (Param, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Param{}, errors.New("empty parameter")
	}

	var (
		typ        string
		components Params
		rest       string
	)
	if strings.HasPrefix(text, "tuple(") {
		text = strings.TrimPrefix(text, "tuple")
	}
	if strings.HasPrefix(text, "(") {
		end := matchParen(text, 0)
		if end < 0 {
			return Param{}, fmt.Errorf("unbalanced tuple: %s", text)
		}
		inner, err := parseParamList(text[1:end])
		if err != nil {
			return Param{}, err
		}
		if len(inner) == 0 {
			return Param{}, errors.New("empty tuple")
		}
		components = inner
		after := text[end+1:]
		suffixEnd := strings.IndexAny(after, " \t")
		if suffixEnd < 0 {
			suffixEnd = len(after)
		}
		typ = "tuple" + after[:suffixEnd]
		rest = after[suffixEnd:]
	} else {
		typ, rest, _ = strings.Cut(text, " ")
	}

	var (
		indexed bool
		name    string
	)
	for _, word := range strings.Fields(rest) {
		switch word {
		case "indexed":
			indexed = true
		case "memory", "calldata", "storage", "payable":
		default:
			if name != "" {
				return Param{}, fmt.Errorf("unexpected token %q in parameter %q", word, text)
			}
			name = word
		}
	}
	return newParam(name, typ, "", indexed, components)
}

// splitTopLevel splits on commas that are not nested in parentheses.
func splitTopLevel(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	var (
		parts []string
		depth int
		start int
	)
	for i, r := range list {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, list[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, list[start:])
}

// matchParen returns the index of the parenthesis closing the one at open, or -1.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
