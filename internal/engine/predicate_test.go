package engine

import (
	"math/big"
	"testing"
)

func evalAll(t *testing.T, exprs []string, fields map[string]any) bool {
	t.Helper()
	preds, err := CompilePredicates(exprs)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ok, err := allPredicates(preds, fields)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	return ok
}

func TestCompilePredicates_NumericComparisons(t *testing.T) {
	if !evalAll(t, []string{"value > 10", "value < 20", "value >= 15", "value <= 15"}, map[string]any{"value": 15}) {
		t.Fatalf("expected predicates to pass")
	}
	if evalAll(t, []string{"value != 15"}, map[string]any{"value": uint64(15)}) {
		t.Fatalf("expected != to fail")
	}
}

func TestCompilePredicates_LargeDecimalStrings(t *testing.T) {
	// uint256 args arrive as decimal strings; float64 would lose the last digit.
	fields := map[string]any{"amount": "1000000000000000000000001"}
	if !evalAll(t, []string{"amount > 1000000000000000000000000"}, fields) {
		t.Fatalf("expected exact comparison of large values")
	}
	if !evalAll(t, []string{"amount > ether(1_000_000)"}, fields) {
		t.Fatalf("expected unit helper to scale")
	}
	if evalAll(t, []string{"amount < gwei(1) * 1e9"}, fields) {
		t.Fatalf("expected multiplication to apply")
	}
	if !evalAll(t, []string{"raw >= 5"}, map[string]any{"raw": big.NewInt(5)}) {
		t.Fatalf("expected big.Int field to compare")
	}
}

func TestCompilePredicates_InAndContains(t *testing.T) {
	fields := map[string]any{
		"from": "0xAbC0000000000000000000000000000000000001",
		"memo": "critical alert raised",
	}
	exprs := []string{
		"from in 0xabc0000000000000000000000000000000000001,0xdef0000000000000000000000000000000000002",
		"memo contains alert",
	}
	if !evalAll(t, exprs, fields) {
		t.Fatalf("expected predicates to pass")
	}
}

func TestCompilePredicates_StringEquality(t *testing.T) {
	if !evalAll(t, []string{"status == ok"}, map[string]any{"status": "ok"}) {
		t.Fatalf("expected equality to pass")
	}
	if evalAll(t, []string{"status == ok"}, map[string]any{}) {
		t.Fatalf("missing field never matches")
	}
	if evalAll(t, []string{"to > 5"}, map[string]any{"to": "0x05"}) {
		t.Fatalf("hex strings are not numbers")
	}
}

func TestCompilePredicates_Rejects(t *testing.T) {
	for _, expr := range []string{"value ~ 3", "== 3", " in a,b"} {
		if _, err := CompilePredicates([]string{expr}); err == nil {
			t.Fatalf("expected %q to be rejected", expr)
		}
	}
}
