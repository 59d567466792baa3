package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/devblac/indexkit/internal/model"
	"github.com/devblac/indexkit/internal/registry"
	"github.com/devblac/indexkit/internal/source"
	"github.com/devblac/indexkit/internal/storage"
)

// Envelope is one recorded occurrence of a catalog name.
type Envelope struct {
	Name       string           `json:"name"`
	Occurrence model.Occurrence `json:"occurrence"`
}

// Failure is written for every envelope replay could not dispatch.
type Failure struct {
	Line     int    `json:"line"`
	Name     string `json:"name,omitempty"`
	Error    string `json:"error"`
	Envelope string `json:"envelope"`
}

// ReplayStats counts replay outcomes.
type ReplayStats struct {
	Dispatched int `json:"dispatched"`
	// Unhandled envelopes name an entry without a handler.
	Unhandled int `json:"unhandled"`
	Failed    int `json:"failed"`
}

// Replay dispatches JSONL envelopes from in, in order. With a failures writer a
// bad envelope is recorded and skipped; without one replay stops at the first.
// Each dispatched payload advances the checkpoint of its name and chain.
func (ix *Indexer) Replay(ctx context.Context, in io.Reader, failures *storage.JSONLWriter) (ReplayStats, error) {
	var stats ReplayStats
	err := storage.ReadJSONL(in, func(line int, raw []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		name, handled, err := ix.replayOne(ctx, raw)
		switch {
		case err == nil && handled:
			stats.Dispatched++
			return nil
		case err == nil:
			stats.Unhandled++
			return nil
		case failures == nil:
			stats.Failed++
			return fmt.Errorf("line %d: %w", line, err)
		}
		stats.Failed++
		ix.logger.Warn("replay failed", zap.Int("line", line), zap.String("name", name), zap.Error(err))
		return failures.Append(Failure{
			Line:     line,
			Name:     name,
			Error:    err.Error(),
			Envelope: string(raw),
		})
	})
	return stats, err
}

func (ix *Indexer) replayOne(ctx context.Context, raw []byte) (string, bool, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", false, fmt.Errorf("decode envelope: %w", err)
	}
	if !ix.project.Catalog.Has(env.Name) {
		return env.Name, false, &registry.NameNotInCatalogError{Name: env.Name}
	}
	if _, ok := ix.project.Sources.ChainByID(env.Occurrence.ChainID); !ok {
		return env.Name, false, fmt.Errorf("%w: id %d", source.ErrUnknownChain, env.Occurrence.ChainID)
	}
	ev, err := ix.registry.DispatchEvent(ctx, env.Name, env.Occurrence)
	if err != nil || ev == nil {
		return env.Name, false, err
	}
	return env.Name, true, ix.advance(ctx, env.Name, env.Occurrence.ChainID, ev.EventID())
}

// advance moves the checkpoint forward only; event IDs sort by chain position.
func (ix *Indexer) advance(ctx context.Context, name string, chainID uint64, id string) error {
	last, ok, err := ix.store.Checkpoint(ctx, name, chainID)
	if err != nil {
		return err
	}
	if ok && last >= id {
		return nil
	}
	return ix.store.SetCheckpoint(ctx, name, chainID, id)
}

// Checkpoint returns the last replayed event ID of name on a chain.
func (ix *Indexer) Checkpoint(ctx context.Context, name string, chainID uint64) (string, bool, error) {
	return ix.store.Checkpoint(ctx, name, chainID)
}
