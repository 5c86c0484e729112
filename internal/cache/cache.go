// Package cache persists the last successfully fetched remote snapshots so a
// session can degrade to stale-but-present data when the gateway is
// unreachable. Entries are namespaced per user id: cached financial data for
// one user must never be visible to, or overwritten by, another user sharing
// the same machine.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Dataset names used as cache keys alongside the user id.
const (
	DatasetPositions   = "positions"
	DatasetSummary     = "summary"
	DatasetMarketData  = "marketdata"
	DatasetOrders      = "orders"
	DatasetTradability = "tradability"
	DatasetAccountID   = "account_id"
)

// legacyCleanupKey marks that the one-time deletion of pre-namespacing rows
// has already run.
const legacyCleanupKey = "legacy_cleanup_done"

// ErrNoSnapshot is returned by Get when no cached copy exists for the
// requested user and dataset.
var ErrNoSnapshot = errors.New("cache: no snapshot available")

// Store is a SQLite-backed snapshot cache.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at dbPath and ensures the
// schema exists.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		user_id   TEXT NOT NULL,
		dataset   TEXT NOT NULL,
		payload   BLOB NOT NULL,
		fetched_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, dataset)
	);
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put serializes payload and stores it under (userID, dataset), replacing
// any previous snapshot. The stored timestamp records when the data was
// fetched, not when it is later read back.
func (s *Store) Put(ctx context.Context, userID, dataset string, payload any) error {
	return s.PutAt(ctx, userID, dataset, payload, time.Now().UTC())
}

// PutAt is Put with an explicit fetch timestamp.
func (s *Store) PutAt(ctx context.Context, userID, dataset string, payload any, fetchedAt time.Time) error {
	if userID == "" {
		return fmt.Errorf("cache: refusing to store %s without a user id", dataset)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s snapshot: %w", dataset, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (user_id, dataset, payload, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, dataset) DO UPDATE
		SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		userID, dataset, raw, fetchedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("storing %s snapshot: %w", dataset, err)
	}
	return nil
}

// Get loads the snapshot for (userID, dataset) into out and returns its
// original fetch timestamp. Returns ErrNoSnapshot when nothing is cached.
// Get never mutates the stored row: repeated reads after repeated fetch
// failures yield the identical payload and timestamp.
func (s *Store) Get(ctx context.Context, userID, dataset string, out any) (time.Time, error) {
	var raw []byte
	var fetchedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM snapshots WHERE user_id = ? AND dataset = ?`,
		userID, dataset).Scan(&raw, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading %s snapshot: %w", dataset, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return time.Time{}, fmt.Errorf("unmarshaling %s snapshot: %w", dataset, err)
	}
	return time.UnixMilli(fetchedAt).UTC(), nil
}

// Delete removes the snapshot for (userID, dataset); no-op if absent.
func (s *Store) Delete(ctx context.Context, userID, dataset string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE user_id = ? AND dataset = ?`, userID, dataset)
	return err
}

// CleanupLegacy deletes snapshot rows written before per-user namespacing
// (empty user id). It runs at most once per database; subsequent calls are
// no-ops. Returns whether the cleanup actually ran.
func (s *Store) CleanupLegacy(ctx context.Context) (bool, error) {
	var done string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = ?`, legacyCleanupKey).Scan(&done)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("checking legacy cleanup sentinel: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE user_id = ''`); err != nil {
		return false, fmt.Errorf("deleting legacy snapshots: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)`, legacyCleanupKey, "1"); err != nil {
		return false, fmt.Errorf("recording legacy cleanup sentinel: %w", err)
	}
	return true, nil
}
