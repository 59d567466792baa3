package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for handler records, checkpoints, route matches and dedupe.
type Store struct {
	db *sql.DB
}

var _ Backend = (*Store)(nil)

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
}

// tables are created in order on Open.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS records (
  namespace  TEXT NOT NULL,
  key        TEXT NOT NULL,
  value      BLOB NOT NULL,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (namespace, key))`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
  name       TEXT NOT NULL,
  chain_id   INTEGER NOT NULL,
  event_id   TEXT NOT NULL,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (name, chain_id))`,
	`CREATE TABLE IF NOT EXISTS matches (
  id           TEXT PRIMARY KEY,
  route_id     TEXT NOT NULL,
  event_id     TEXT NOT NULL,
  payload_json TEXT,
  created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)`,
	`CREATE TABLE IF NOT EXISTS sends (
  match_id      TEXT NOT NULL,
  sink_id       TEXT NOT NULL,
  status        TEXT NOT NULL,
  response_code INTEGER,
  created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (match_id, sink_id))`,
	`CREATE TABLE IF NOT EXISTS dedupe (
  key        TEXT PRIMARY KEY,
  expires_at TIMESTAMP NOT NULL)`,
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, stmt := range tables {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Get reads a handler record.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `
SELECT value FROM records WHERE namespace = ? AND key = ?;
`, namespace, key).Scan(&value)
	switch {
	case err == nil:
		return value, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("get record: %w", err)
	}
}

// Put writes or replaces a handler record.
func (s *Store) Put(ctx context.Context, namespace, key string, value []byte) error {
	if namespace == "" || key == "" {
		return ErrEmptyKey
	}
	if _, err := s.db.ExecContext(ctx, upsertRecord, namespace, key, value); err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

const upsertRecord = `
INSERT INTO records (namespace, key, value, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(namespace, key) DO UPDATE SET
  value=excluded.value,
  updated_at=CURRENT_TIMESTAMP;
`

// PutBatch writes several records of one namespace in a single transaction.
func (s *Store) PutBatch(ctx context.Context, namespace string, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}
	if namespace == "" {
		return ErrEmptyKey
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertRecord)
		if err != nil {
			return fmt.Errorf("prepare put batch: %w", err)
		}
		defer stmt.Close()
		for key, value := range values {
			if key == "" {
				return ErrEmptyKey
			}
			if _, err := stmt.ExecContext(ctx, namespace, key, value); err != nil {
				return fmt.Errorf("put batch: %w", err)
			}
		}
		return nil
	})
}

// Delete removes a handler record. Missing records are not an error.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE namespace = ? AND key = ?;`, namespace, key); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// SetCheckpoint records the last dispatched occurrence id for a name on a chain.
func (s *Store) SetCheckpoint(ctx context.Context, name string, chainID uint64, eventID string) error {
	if name == "" || eventID == "" {
		return errors.New("name and event id required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO checkpoints (name, chain_id, event_id, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(name, chain_id) DO UPDATE SET
  event_id=excluded.event_id,
  updated_at=CURRENT_TIMESTAMP;
`, name, chainID, eventID)
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}

// Checkpoint retrieves the last dispatched occurrence id for a name on a chain.
func (s *Store) Checkpoint(ctx context.Context, name string, chainID uint64) (eventID string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
SELECT event_id FROM checkpoints WHERE name = ? AND chain_id = ?;
`, name, chainID)
	switch err = row.Scan(&eventID); {
	case err == nil:
		return eventID, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("get checkpoint: %w", err)
	}
}

// MarkDedupe sets or refreshes a dedupe key until expiresAt.
func (s *Store) MarkDedupe(ctx context.Context, key string, expiresAt time.Time) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO dedupe (key, expires_at)
VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET expires_at=excluded.expires_at;
`, key, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("mark dedupe: %w", err)
	}
	return nil
}

// IsDuplicate reports whether key is marked and unexpired. An expired mark is removed.
func (s *Store) IsDuplicate(ctx context.Context, key string, now time.Time) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	var expires time.Time
	switch err := s.db.QueryRowContext(ctx, `SELECT expires_at FROM dedupe WHERE key = ?`, key).Scan(&expires); {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("check dedupe: %w", err)
	case expires.After(now.UTC()):
		return true, nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dedupe WHERE key = ?`, key); err != nil {
		return false, fmt.Errorf("prune dedupe: %w", err)
	}
	return false, nil
}

// InsertMatch stores a route match; the primary key enforces exactly-once insertion.
func (s *Store) InsertMatch(ctx context.Context, m Match) error {
	if m.ID == "" || m.RouteID == "" {
		return errors.New("match id and route_id required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO matches (id, route_id, event_id, payload_json, created_at)
VALUES (?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP));
`, m.ID, m.RouteID, m.EventID, m.PayloadJSON, nullTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

// InsertSend records one delivery of a match to a sink. A second record for the pair fails.
func (s *Store) InsertSend(ctx context.Context, d Send) error {
	if d.MatchID == "" || d.SinkID == "" || d.Status == "" {
		return errors.New("send needs match, sink and status")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sends (match_id, sink_id, status, response_code, created_at) VALUES (?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))`,
		d.MatchID, d.SinkID, d.Status, d.ResponseCode, nullTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert send: %w", err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
