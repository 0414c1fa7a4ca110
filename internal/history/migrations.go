package history

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	Version int
	Name    string
	SQL     string
}

func migrations() []migration {
	return []migration{
		{
			Version: 1,
			Name:    "create_runs_table",
			SQL: `
				CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					filename TEXT NOT NULL,
					content_hash TEXT NOT NULL DEFAULT '',
					model TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT '',
					policy_number TEXT NOT NULL DEFAULT '',
					insured_name TEXT NOT NULL DEFAULT '',
					loss_count INTEGER NOT NULL DEFAULT 0,
					report TEXT NOT NULL DEFAULT '{}',
					prompt_tokens INTEGER NOT NULL DEFAULT 0,
					completion_tokens INTEGER NOT NULL DEFAULT 0,
					total_tokens INTEGER NOT NULL DEFAULT 0,
					cost TEXT NOT NULL DEFAULT '0',
					chunks_total INTEGER NOT NULL DEFAULT 0,
					chunks_failed INTEGER NOT NULL DEFAULT 0,
					created_at TEXT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at);
				CREATE INDEX IF NOT EXISTS idx_runs_content_hash ON runs (content_hash);
			`,
		},
	}
}

// migrate applies every migration newer than the recorded schema version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations() {
		if m.Version <= current {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
