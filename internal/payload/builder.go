package payload

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devblac/indexkit/internal/catalog"
	"github.com/devblac/indexkit/internal/model"
	"github.com/devblac/indexkit/internal/source"
)

// Builder constructs payloads. Decoders are prepared once per catalog entry and
// never mutated, so Build is safe for concurrent use.
type Builder struct {
	decoders map[string]*decoder
}

// NewBuilder prepares decoders for every Log and FunctionCall entry in the catalog.
func NewBuilder(cat *catalog.Catalog) (*Builder, error) {
	b := &Builder{decoders: map[string]*decoder{}}
	for _, e := range cat.Entries() {
		if e.Kind != catalog.KindLog && e.Kind != catalog.KindFunctionCall {
			continue
		}
		d, err := newDecoder(e)
		if err != nil {
			return nil, fmt.Errorf("prepare %s: %w", e.Name, err)
		}
		b.decoders[e.Name] = d
	}
	return b, nil
}

// Build returns a fresh payload for one occurrence of entry on chain.
func (b *Builder) Build(entry *catalog.Entry, chain source.Chain, occ model.Occurrence) (Event, error) {
	ev, err := b.build(entry, chain, occ)
	if err != nil {
		return nil, &ConstructionError{Name: entry.Name, Kind: entry.Kind, Err: err}
	}
	return ev, nil
}

func (b *Builder) build(entry *catalog.Entry, chain source.Chain, occ model.Occurrence) (Event, error) {
	dep, ok := entry.Source.Deployment(chain.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotDeployed, chain.Name)
	}
	pos := position{chainID: chain.ID, kind: entry.Kind, nameHash: nameHash(entry.Name)}

	switch entry.Kind {
	case catalog.KindSetup:
		pos.block = dep.StartBlock
		if occ.Block != nil {
			pos.block = occ.Block.Number
		}
		return &Setup{ID: pos.ID()}, nil

	case catalog.KindLog:
		if err := need(occ, ErrMissingLog, ErrMissingBlock, ErrMissingTransaction); err != nil {
			return nil, err
		}
		if dep.IncludeTransactionReceipts && occ.Receipt == nil {
			return nil, ErrMissingReceipt
		}
		args, err := b.decoders[entry.Name].logArgs(*occ.Log)
		if err != nil {
			return nil, err
		}
		pos.block, pos.txIndex, pos.ordinal = occ.Block.Number, occ.Log.TransactionIndex, occ.Log.Index
		ev := &Log{
			ID:          pos.ID(),
			Args:        args,
			Log:         *occ.Log,
			Block:       *occ.Block,
			Transaction: *occ.Transaction,
		}
		if dep.IncludeTransactionReceipts {
			receipt := *occ.Receipt
			ev.TransactionReceipt = &receipt
		}
		return ev, nil

	case catalog.KindFunctionCall:
		if !dep.IncludeCallTraces {
			return nil, fmt.Errorf("%w: %s", ErrTracesDisabled, chain.Name)
		}
		if err := need(occ, ErrMissingTrace, ErrMissingBlock, ErrMissingTransaction); err != nil {
			return nil, err
		}
		d := b.decoders[entry.Name]
		args, err := d.callArgs(*occ.Trace)
		if err != nil {
			return nil, err
		}
		result, err := d.callResult(*occ.Trace)
		if err != nil {
			return nil, err
		}
		pos.block, pos.txIndex, pos.ordinal = occ.Block.Number, occ.Transaction.Index, occ.Trace.Position
		return &Call{
			ID:          pos.ID(),
			Args:        args,
			Result:      result,
			Trace:       *occ.Trace,
			Block:       *occ.Block,
			Transaction: *occ.Transaction,
		}, nil

	case catalog.KindAccountTransfer:
		if err := need(occ, ErrMissingTrace, ErrMissingBlock, ErrMissingTransaction); err != nil {
			return nil, err
		}
		tr := occ.Trace
		if !matchesDirection(entry.Direction, dep.Address, tr.From, tr.To) {
			return nil, ErrDirection
		}
		value := Value{From: tr.From, Value: new(big.Int)}
		if tr.To != nil {
			value.To = *tr.To
		}
		if tr.Value != nil {
			value.Value.Set(tr.Value)
		}
		pos.block, pos.txIndex, pos.ordinal = occ.Block.Number, occ.Transaction.Index, tr.Position
		return &Transfer{
			ID:          pos.ID(),
			Transfer:    value,
			Block:       *occ.Block,
			Transaction: *occ.Transaction,
			Trace:       *tr,
		}, nil

	case catalog.KindAccountTransaction:
		if err := need(occ, ErrMissingBlock, ErrMissingTransaction, ErrMissingReceipt); err != nil {
			return nil, err
		}
		tx := occ.Transaction
		if !matchesDirection(entry.Direction, dep.Address, tx.From, tx.To) {
			return nil, ErrDirection
		}
		pos.block, pos.txIndex = occ.Block.Number, tx.Index
		return &Transaction{
			ID:                 pos.ID(),
			Block:              *occ.Block,
			Transaction:        *tx,
			TransactionReceipt: *occ.Receipt,
		}, nil

	case catalog.KindBlockTick:
		if occ.Block == nil {
			return nil, ErrMissingBlock
		}
		n := occ.Block.Number
		if n < dep.StartBlock || (dep.EndBlock != nil && n > *dep.EndBlock) {
			return nil, fmt.Errorf("%w: block %d", ErrOutsideWindow, n)
		}
		if dep.Interval > 0 && (n-dep.StartBlock)%dep.Interval != 0 {
			return nil, fmt.Errorf("%w: block %d is not on interval %d from %d", ErrOutsideWindow, n, dep.Interval, dep.StartBlock)
		}
		pos.block = n
		return &Block{ID: pos.ID(), Block: *occ.Block}, nil

	default:
		return nil, fmt.Errorf("unknown kind %d", entry.Kind)
	}
}

// need checks presence of the occurrence parts named by their missing-data errors.
func need(occ model.Occurrence, parts ...error) error {
	for _, part := range parts {
		var missing bool
		switch part {
		case ErrMissingBlock:
			missing = occ.Block == nil
		case ErrMissingTransaction:
			missing = occ.Transaction == nil
		case ErrMissingReceipt:
			missing = occ.Receipt == nil
		case ErrMissingLog:
			missing = occ.Log == nil
		case ErrMissingTrace:
			missing = occ.Trace == nil
		}
		if missing {
			return part
		}
	}
	return nil
}

func matchesDirection(dir catalog.Direction, account, from common.Address, to *common.Address) bool {
	switch dir {
	case catalog.DirectionFrom:
		return from == account
	case catalog.DirectionTo:
		return to != nil && *to == account
	default:
		return false
	}
}
