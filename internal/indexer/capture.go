package indexer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/devblac/indexkit/internal/catalog"
	"github.com/devblac/indexkit/internal/client"
	"github.com/devblac/indexkit/internal/model"
	"github.com/devblac/indexkit/internal/source"
)

// Capture fetches one mined transaction and returns the envelopes it produces,
// ready for Replay. Only log and account transaction names are derived: transfers
// and function calls need call traces.
func (ix *Indexer) Capture(ctx context.Context, chain string, hash common.Hash) ([]Envelope, error) {
	ch, ok := ix.project.Sources.Chain(chain)
	if !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrUnknownChain, chain)
	}
	r, err := ix.pool.Chain(chain)
	if err != nil {
		return nil, err
	}
	mined, err := r.Transaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	return Occurrences(ix.project.Catalog, ch, mined)
}

// Occurrences matches a mined transaction against the catalog entries deployed on chain.
// Log envelopes come first, in log order, then account transactions.
func Occurrences(cat *catalog.Catalog, chain source.Chain, mined *client.Mined) ([]Envelope, error) {
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chain.ID))
	block := model.FromHeader(mined.Header)
	tx, err := model.FromTransaction(mined.Tx, uint64(mined.Receipt.TransactionIndex), signer)
	if err != nil {
		return nil, err
	}
	receipt := model.FromReceipt(mined.Receipt)

	occurrence := func(l *model.Log) model.Occurrence {
		return model.Occurrence{ChainID: chain.ID, Block: &block, Transaction: &tx, Receipt: &receipt, Log: l}
	}

	var out []Envelope
	for i := range receipt.Logs {
		l := &receipt.Logs[i]
		for _, e := range cat.Entries() {
			if e.Kind == catalog.KindLog && logMatches(e, chain, block.Number, l) {
				out = append(out, Envelope{Name: e.Name, Occurrence: occurrence(l)})
			}
		}
	}
	for _, e := range cat.Entries() {
		if e.Kind != catalog.KindAccountTransaction {
			continue
		}
		dep, ok := deployedAt(e, chain, block.Number)
		if !ok {
			continue
		}
		if (e.Direction == catalog.DirectionFrom && tx.From == dep.Address) ||
			(e.Direction == catalog.DirectionTo && tx.To != nil && *tx.To == dep.Address) {
			out = append(out, Envelope{Name: e.Name, Occurrence: occurrence(nil)})
		}
	}
	return out, nil
}

// logMatches checks topic0 and emitter. A deployment without an address matches any emitter.
func logMatches(e *catalog.Entry, chain source.Chain, n uint64, l *model.Log) bool {
	if e.Descriptor == nil || e.Descriptor.Anonymous || len(l.Topics) == 0 {
		return false
	}
	if l.Topics[0] != e.Descriptor.Topic() {
		return false
	}
	dep, ok := deployedAt(e, chain, n)
	if !ok {
		return false
	}
	return dep.Address == (common.Address{}) || dep.Address == l.Address
}

func deployedAt(e *catalog.Entry, chain source.Chain, n uint64) (source.Deployment, bool) {
	dep, ok := e.Source.Deployment(chain.Name)
	if !ok || n < dep.StartBlock || (dep.EndBlock != nil && n > *dep.EndBlock) {
		return source.Deployment{}, false
	}
	return dep, true
}
