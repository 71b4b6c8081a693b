package cachestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// SQLite implements Store on a single database file. Useful when an operator
// wants the whole cache in one artifact instead of a directory tree.
type SQLite struct {
	counters
	db  *sql.DB
	log *slog.Logger
}

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	category TEXT NOT NULL,
	key TEXT NOT NULL,
	value BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (category, key)
);
`

// NewSQLite opens (creating if needed) a SQLite-backed store at dbPath.
func NewSQLite(dbPath string, log *slog.Logger) (*SQLite, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createEntriesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &SQLite{db: db, log: log}, nil
}

// Get retrieves an entry. Query errors are misses, never caller errors.
func (s *SQLite) Get(ctx context.Context, category, key string) ([]byte, bool) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE category = ? AND key = ?`,
		category, key,
	).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			s.log.Debug("cache query failed, treating as miss",
				"category", category, "error", err)
		}
		s.miss()
		return nil, false
	}

	s.hit()
	return value, true
}

// Put stores an entry, replacing any previous value for the key.
func (s *SQLite) Put(ctx context.Context, category, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (category, key, value) VALUES (?, ?, ?)`,
		category, key, value,
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Clear removes every entry in a category. Operator action only.
func (s *SQLite) Clear(category string) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE category = ?`, category)
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}
