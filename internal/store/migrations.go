package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all flowsched tables.
// Each statement uses IF NOT EXISTS for idempotency.
//
// Job rows are deliberately flat and text-typed (RFC3339Nano timestamps,
// JSON payload column) so that a row is human-inspectable with the sqlite3
// shell during operational debugging and crash recovery.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL DEFAULT '',
		handle          TEXT NOT NULL DEFAULT '',
		state           TEXT NOT NULL DEFAULT 'PENDING',
		payload         TEXT NOT NULL,
		attempts        INTEGER NOT NULL DEFAULT 0,
		max_attempts    INTEGER NOT NULL DEFAULT 5,
		fault           TEXT NOT NULL DEFAULT '',
		created_at      TEXT NOT NULL,
		submitted_at    TEXT,
		finished_at     TEXT,
		next_attempt_at TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`,
}

// migrate applies all schema statements in order.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
