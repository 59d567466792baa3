package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyKey is returned for writes without a namespace or key.
var ErrEmptyKey = errors.New("namespace and key required")

// DB is the read/write store handle shared by every handler context.
type DB interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	PutBatch(ctx context.Context, namespace string, values map[string][]byte) error
	Delete(ctx context.Context, namespace, key string) error
	Ping(ctx context.Context) error
}

// RouteStore holds what routes need to deduplicate and record deliveries.
type RouteStore interface {
	IsDuplicate(ctx context.Context, key string, now time.Time) (bool, error)
	MarkDedupe(ctx context.Context, key string, expiresAt time.Time) error
	InsertMatch(ctx context.Context, m Match) error
	InsertSend(ctx context.Context, s Send) error
}

// Checkpointer tracks the last dispatched occurrence per name and chain.
type Checkpointer interface {
	Checkpoint(ctx context.Context, name string, chainID uint64) (string, bool, error)
	SetCheckpoint(ctx context.Context, name string, chainID uint64, eventID string) error
}

// Backend is a store usable for every persistence concern.
type Backend interface {
	DB
	RouteStore
	Checkpointer
	Close() error
}

// Match is a route hit for one occurrence.
type Match struct {
	ID          string
	RouteID     string
	EventID     string
	PayloadJSON string
	CreatedAt   time.Time
}

// Send represents a sink delivery record.
type Send struct {
	MatchID      string
	SinkID       string
	Status       string
	ResponseCode int
	CreatedAt    time.Time
}

// GetJSON reads a record and decodes it into v.
func GetJSON(ctx context.Context, db DB, namespace, key string, v any) (bool, error) {
	raw, ok, err := db.Get(ctx, namespace, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", namespace, key, err)
	}
	return true, nil
}

// PutJSON encodes v and writes it as a record.
func PutJSON(ctx context.Context, db DB, namespace, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", namespace, key, err)
	}
	return db.Put(ctx, namespace, key, raw)
}
