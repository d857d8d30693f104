// Package store is the durable persistence layer: sessions, turns, steps,
// events, file versions, terminal chunks, permission requests and pinned
// context, backed by a single-file embedded SQL database.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opencode-ai/opencode/internal/logging"
)

// Store is a thread-safe SQLite DAO. A single *sql.DB is shared across
// goroutines; per-session seq allocation is serialized via an immediate
// transaction (see insertEventTx in events.go).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and ensures
// the schema exists. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single shared connection avoids SQLITE_BUSY under WAL when the
	// writer-serializing transaction in events.go is in flight.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	logging.Info().Str("path", path).Msg("store opened")
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nowTs() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
