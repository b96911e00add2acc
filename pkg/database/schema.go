package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is idempotent; every statement can run on each start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS solve_runs (
		id UUID PRIMARY KEY,
		status TEXT NOT NULL,
		engine TEXT NOT NULL,
		outcome TEXT,
		engine_status TEXT,
		message TEXT,
		fingerprint TEXT,
		policy JSONB NOT NULL,
		input JSONB NOT NULL,
		params JSONB NOT NULL DEFAULT '{}'::jsonb,
		summary JSONB,
		objective DOUBLE PRECISION,
		bound DOUBLE PRECISION,
		gap DOUBLE PRECISION,
		requested_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS solve_runs_status_idx ON solve_runs (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS run_assignments (
		run_id UUID NOT NULL REFERENCES solve_runs (id) ON DELETE CASCADE,
		requester_id INTEGER NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		slot INTEGER,
		rank INTEGER,
		size INTEGER NOT NULL,
		score DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, requester_id)
	)`,
	`CREATE TABLE IF NOT EXISTS run_slots (
		run_id UUID NOT NULL REFERENCES solve_runs (id) ON DELETE CASCADE,
		slot INTEGER NOT NULL,
		open BOOLEAN NOT NULL,
		occupancy INTEGER NOT NULL,
		groups INTEGER NOT NULL,
		min_occupancy INTEGER NOT NULL,
		max_occupancy INTEGER NOT NULL,
		PRIMARY KEY (run_id, slot)
	)`,
}

// EnsureSchema creates the run tables when they are missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
