// Package jobstore persists jobs, platform configurations, and retrieval
// records in a SQLite database.
//
// The store is the single source of truth for job state. State
// transitions are guarded in SQL so that a job can never leave a
// terminal state and a completion timestamp is written exactly once.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Config struct {
	// Path is a local filesystem path to the job database, or ":memory:"
	// for an ephemeral store.
	Path string
}

// Store wraps the job database connection.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the SQLite-backed job database and
// applies schema migrations.
//
// For file-backed databases, WAL and busy_timeout are applied and the
// connection pool is pinned to a single connection to reduce lock
// contention.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("job store path is required")
	}
	if path != ":memory:" {
		if err := ensureStoreDir(path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping job store: %w", err)
	}

	if err := configureLocal(ctx, db, path); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

func configureLocal(ctx context.Context, db *sql.DB, path string) error {
	// In-memory databases must also be pinned to one connection:
	// each pool connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if path == ":memory:" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	var busyTimeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}

func ensureStoreDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
