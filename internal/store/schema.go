package store

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Schema DDL shared by both engines: TEXT ids, RFC3339 UTC text timestamps
// (lexicographic order == chronological order), BOOLEAN flags.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS scheduler_jobs (
		id TEXT PRIMARY KEY,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		label TEXT NOT NULL,
		server TEXT NOT NULL,
		tool TEXT NOT NULL,
		args_json TEXT NOT NULL DEFAULT '{}',
		interval_seconds INTEGER NOT NULL,
		next_run_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduler_jobs_due ON scheduler_jobs(enabled, next_run_at)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduler_jobs_created ON scheduler_jobs(created_at)`,

	`CREATE TABLE IF NOT EXISTS scheduler_runs (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		ok BOOLEAN,
		result_json TEXT,
		error TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduler_runs_job ON scheduler_runs(job_id)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduler_runs_started ON scheduler_runs(started_at)`,

	`CREATE TABLE IF NOT EXISTS mcp_tool_calls (
		id TEXT PRIMARY KEY,
		server_name TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		args_json TEXT,
		success BOOLEAN NOT NULL,
		result_preview TEXT,
		error_message TEXT,
		error_type TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		source TEXT,
		request_id TEXT,
		session_id TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mcp_tool_calls_server ON mcp_tool_calls(server_name)`,
	`CREATE INDEX IF NOT EXISTS idx_mcp_tool_calls_started ON mcp_tool_calls(started_at)`,
}

// Additive migrations for databases created by earlier schema revisions.
// Duplicate-column failures mean the column already exists and are ignored.
var additiveColumns = []string{
	`ALTER TABLE mcp_tool_calls ADD COLUMN session_id TEXT`,
	`ALTER TABLE mcp_tool_calls ADD COLUMN source TEXT`,
	`ALTER TABLE scheduler_runs ADD COLUMN error TEXT`,
}

func migrate(db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	for _, stmt := range additiveColumns {
		if _, err := db.Exec(stmt); err != nil {
			if isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("apply additive migration: %w", err)
		}
	}

	return nil
}

func isDuplicateColumn(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || // sqlite & postgres 42701 text
		strings.Contains(msg, "already exists")
}
