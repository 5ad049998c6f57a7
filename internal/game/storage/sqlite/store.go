// Package sqlite provides a DocumentStore backed by a local SQLite file.
//
// It exists for single-host deployments and integration tests that want
// durability without a Redis dependency. The index table enforces uniqueness
// itself, so AppendToIndex is a true append-if-absent.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/Honey-Be/trlg-statemachine/internal/game/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	game_id TEXT PRIMARY KEY,
	initialized INTEGER NOT NULL,
	snapshot TEXT NOT NULL,
	player_account_0 TEXT NOT NULL,
	player_account_1 TEXT NOT NULL,
	player_account_2 TEXT NOT NULL,
	player_account_3 TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS session_index (
	position INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id TEXT NOT NULL UNIQUE
);
`

// Store persists session documents in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDocument returns the session document for gameID.
func (s *Store) GetDocument(ctx context.Context, gameID string) (storage.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT initialized, snapshot,
			player_account_0, player_account_1, player_account_2, player_account_3
		FROM sessions WHERE game_id = ?`, gameID)

	var record storage.SessionRecord
	var initialized int
	err := row.Scan(
		&initialized,
		&record.Snapshot,
		&record.PlayerAccounts[0],
		&record.PlayerAccounts[1],
		&record.PlayerAccounts[2],
		&record.PlayerAccounts[3],
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SessionRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SessionRecord{}, fmt.Errorf("select session %s: %w", gameID, err)
	}
	record.Initialized = initialized != 0
	return record, nil
}

// SetDocument writes the full session document for gameID.
func (s *Store) SetDocument(ctx context.Context, gameID string, record storage.SessionRecord) error {
	initialized := 0
	if record.Initialized {
		initialized = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (game_id, initialized, snapshot,
			player_account_0, player_account_1, player_account_2, player_account_3)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(game_id) DO UPDATE SET
			initialized = excluded.initialized,
			snapshot = excluded.snapshot,
			player_account_0 = excluded.player_account_0,
			player_account_1 = excluded.player_account_1,
			player_account_2 = excluded.player_account_2,
			player_account_3 = excluded.player_account_3`,
		gameID, initialized, record.Snapshot,
		record.PlayerAccounts[0], record.PlayerAccounts[1],
		record.PlayerAccounts[2], record.PlayerAccounts[3],
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", gameID, err)
	}
	return nil
}

// GetIndex returns the session index in insertion order.
//
// An empty table reports ErrNotFound so the registration protocol's
// create-when-absent path behaves the same as on document stores where the
// index key itself can be missing.
func (s *Store) GetIndex(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT game_id FROM session_index ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("select session index: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session index: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session index: %w", err)
	}
	if len(ids) == 0 {
		return nil, storage.ErrNotFound
	}
	return ids, nil
}

// CreateIndex replaces the index with the given ids.
func (s *Store) CreateIndex(ctx context.Context, gameIDs ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index rewrite: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_index`); err != nil {
		return fmt.Errorf("clear session index: %w", err)
	}
	for _, id := range gameIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO session_index (game_id) VALUES (?)`, id); err != nil {
			return fmt.Errorf("insert index entry %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index rewrite: %w", err)
	}
	return nil
}

// AppendToIndex appends gameID to the index unless it is already present.
// The UNIQUE constraint makes this safe under concurrent registration.
func (s *Store) AppendToIndex(ctx context.Context, gameID string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO session_index (game_id) VALUES (?)`, gameID); err != nil {
		return fmt.Errorf("append index entry %s: %w", gameID, err)
	}
	return nil
}
