package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devblac/indexkit/internal/payload"
)

// Fields flattens a payload into the map route predicates and templates see.
// Decoded args are merged in under their parameter names (or positions), so a
// parameter named like a built-in field shadows it.
func Fields(ev payload.Event) map[string]any {
	out := map[string]any{"id": ev.EventID()}
	switch e := ev.(type) {
	case *payload.Setup:
	case *payload.Log:
		out["address"] = e.Log.Address.Hex()
		out["txhash"] = e.Transaction.Hash.Hex()
		out["block"] = e.Block.Number
		out["logIndex"] = e.Log.Index
		merge(out, e.Args.Map())
	case *payload.Call:
		out["txhash"] = e.Transaction.Hash.Hex()
		out["block"] = e.Block.Number
		out["from"] = e.Trace.From.Hex()
		if e.HasResult() {
			out["result"] = e.Result.Plain()
		}
		merge(out, e.Args.Map())
	case *payload.Transfer:
		out["txhash"] = e.Transaction.Hash.Hex()
		out["block"] = e.Block.Number
		out["from"] = e.Transfer.From.Hex()
		out["to"] = e.Transfer.To.Hex()
		out["value"] = decimal(e.Transfer.Value)
	case *payload.Transaction:
		out["txhash"] = e.Transaction.Hash.Hex()
		out["block"] = e.Block.Number
		out["from"] = e.Transaction.From.Hex()
		out["to"] = hexOrEmpty(e.Transaction.To)
		out["value"] = decimal(e.Transaction.Value)
		out["status"] = e.TransactionReceipt.Status
	case *payload.Block:
		out["block"] = e.Block.Number
		out["hash"] = e.Block.Hash.Hex()
		out["timestamp"] = e.Block.Timestamp
	}
	return out
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func hexOrEmpty(a *common.Address) string {
	if a == nil {
		return ""
	}
	return a.Hex()
}
