package jobstore

import (
	"context"
	"fmt"
)

const SchemaVersion = 1

// Migrate creates (or upgrades) the job schema in-place.
func (s *Store) Migrate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			platform TEXT NOT NULL,
			source_url TEXT NOT NULL,
			quality TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'pending',
			progress INTEGER NOT NULL DEFAULT 0,
			error_detail TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			thumbnail_url TEXT NOT NULL DEFAULT '',
			artifact_key TEXT NOT NULL DEFAULT '',
			file_size INTEGER NOT NULL DEFAULT 0,
			format TEXT NOT NULL DEFAULT '',
			access_count INTEGER NOT NULL DEFAULT 0,
			requester_id TEXT NOT NULL DEFAULT '',
			requester_addr TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_platform ON jobs(platform);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_requester_created ON jobs(requester_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_addr_platform_created ON jobs(requester_addr, platform, created_at);`,

		`CREATE TABLE IF NOT EXISTS platform_configs (
			platform TEXT PRIMARY KEY,
			active INTEGER NOT NULL DEFAULT 1,
			max_file_size_bytes INTEGER NOT NULL DEFAULT 0,
			formats TEXT NOT NULL DEFAULT '[]',
			rate_limit_per_hour INTEGER NOT NULL DEFAULT 0,
			api_key_required INTEGER NOT NULL DEFAULT 0,
			api_key TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS retrievals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			requester_id TEXT NOT NULL DEFAULT '',
			requester_addr TEXT NOT NULL DEFAULT '',
			retrieved_at TIMESTAMP NOT NULL,
			FOREIGN KEY(job_id) REFERENCES jobs(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_retrievals_job ON retrievals(job_id);`,
		`CREATE INDEX IF NOT EXISTS idx_retrievals_requester ON retrievals(requester_id, retrieved_at);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	if current != SchemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, SchemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
