// Package postgres is the pgx-backed alternative to the embedded SQLite store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devblac/indexkit/internal/storage"
)

var _ storage.Backend = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, key)
);
CREATE TABLE IF NOT EXISTS checkpoints (
	name       TEXT NOT NULL,
	chain_id   BIGINT NOT NULL,
	event_id   TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (name, chain_id)
);
CREATE TABLE IF NOT EXISTS matches (
	id           TEXT PRIMARY KEY,
	route_id     TEXT NOT NULL,
	event_id     TEXT NOT NULL,
	payload_json TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS sends (
	match_id      TEXT NOT NULL,
	sink_id       TEXT NOT NULL,
	status        TEXT NOT NULL,
	response_code INTEGER,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (match_id, sink_id)
);
CREATE TABLE IF NOT EXISTS dedupe (
	key        TEXT PRIMARY KEY,
	expires_at TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for handler records and routes.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn and applies the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("store not initialized")
	}
	return s.pool.Ping(ctx)
}

func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM records WHERE namespace = $1 AND key = $2`, namespace, key).Scan(&value)
	switch {
	case err == nil:
		return value, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("get record: %w", err)
	}
}

func (s *Store) Put(ctx context.Context, namespace, key string, value []byte) error {
	if namespace == "" || key == "" {
		return storage.ErrEmptyKey
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO records (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, namespace, key, value)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM records WHERE namespace = $1 AND key = $2`, namespace, key); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// PutBatch writes several records of one namespace in a single round trip.
func (s *Store) PutBatch(ctx context.Context, namespace string, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}
	if namespace == "" {
		return storage.ErrEmptyKey
	}
	batch := &pgx.Batch{}
	for key, value := range values {
		if key == "" {
			return storage.ErrEmptyKey
		}
		batch.Queue(`
			INSERT INTO records (namespace, key, value, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (namespace, key)
			DO UPDATE SET value = EXCLUDED.value, updated_at = now()
		`, namespace, key, value)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range values {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("put batch: %w", err)
		}
	}
	return nil
}

func (s *Store) Checkpoint(ctx context.Context, name string, chainID uint64) (string, bool, error) {
	var eventID string
	err := s.pool.QueryRow(ctx, `SELECT event_id FROM checkpoints WHERE name = $1 AND chain_id = $2`, name, int64(chainID)).Scan(&eventID)
	switch {
	case err == nil:
		return eventID, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("get checkpoint: %w", err)
	}
}

func (s *Store) SetCheckpoint(ctx context.Context, name string, chainID uint64, eventID string) error {
	if name == "" || eventID == "" {
		return errors.New("name and event id required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkpoints (name, chain_id, event_id, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name, chain_id)
		DO UPDATE SET event_id = EXCLUDED.event_id, updated_at = now()
	`, name, int64(chainID), eventID)
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}

func (s *Store) MarkDedupe(ctx context.Context, key string, expiresAt time.Time) error {
	if key == "" {
		return storage.ErrEmptyKey
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dedupe (key, expires_at) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, key, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("mark dedupe: %w", err)
	}
	return nil
}

func (s *Store) IsDuplicate(ctx context.Context, key string, now time.Time) (bool, error) {
	if key == "" {
		return false, storage.ErrEmptyKey
	}
	var expires time.Time
	err := s.pool.QueryRow(ctx, `SELECT expires_at FROM dedupe WHERE key = $1`, key).Scan(&expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check dedupe: %w", err)
	}
	if expires.After(now.UTC()) {
		return true, nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM dedupe WHERE key = $1`, key); err != nil {
		return false, fmt.Errorf("prune dedupe: %w", err)
	}
	return false, nil
}

func (s *Store) InsertMatch(ctx context.Context, m storage.Match) error {
	if m.ID == "" || m.RouteID == "" {
		return errors.New("match id and route_id required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO matches (id, route_id, event_id, payload_json, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, m.ID, m.RouteID, m.EventID, m.PayloadJSON, nullTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (s *Store) InsertSend(ctx context.Context, send storage.Send) error {
	if send.MatchID == "" || send.SinkID == "" || send.Status == "" {
		return errors.New("send needs match, sink and status")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sends (match_id, sink_id, status, response_code, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, send.MatchID, send.SinkID, send.Status, send.ResponseCode, nullTime(send.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert send: %w", err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
