// Package store persists job definitions, run history, and the tool-call
// audit log. One SQL implementation serves both the embedded (sqlite) and
// networked (postgres) engines; the database URL alone decides which.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// MinIntervalSeconds is the floor enforced on job intervals at write time.
const MinIntervalSeconds = 5

// ClaimHorizon is how far claim_due_jobs pushes next_run_at forward while a
// job is being executed. Best-effort dedupe across instances, not a lock.
const ClaimHorizon = 30 * time.Second

// Job is a stored instruction to invoke one tool on one backend repeatedly.
type Job struct {
	ID              string     `json:"id"`
	Enabled         bool       `json:"enabled"`
	Label           string     `json:"label"`
	Server          string     `json:"server"`
	Tool            string     `json:"tool"`
	ArgsJSON        string     `json:"args_json"`
	IntervalSeconds int        `json:"interval_seconds"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Args parses the stored args JSON. Invalid or non-object content yields an
// empty map (the write path should have prevented it).
func (j *Job) Args() map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(j.ArgsJSON), &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// JobFields carries caller-supplied fields for upsert. ID empty = insert.
// Enabled nil keeps the existing value (true on insert).
type JobFields struct {
	ID              string
	Enabled         *bool
	Label           string
	Server          string
	Tool            string
	Args            any // JSON object; anything else is coerced to {}
	IntervalSeconds int
	NextRunAt       *time.Time
}

// Run records one execution attempt of one job. Append-only.
type Run struct {
	ID         string     `json:"id"`
	JobID      string     `json:"job_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	OK         *bool      `json:"ok"`
	ResultJSON *string    `json:"result_json,omitempty"`
	Error      *string    `json:"error,omitempty"`
}

// AuditEntry is one persistent row describing one tool invocation,
// scheduled or interactive. ArgsJSON is stored redacted.
type AuditEntry struct {
	ID            string    `json:"id"`
	ServerName    string    `json:"server_name"`
	ToolName      string    `json:"tool_name"`
	ArgsJSON      string    `json:"args_json"`
	Success       bool      `json:"success"`
	ResultPreview string    `json:"result_preview,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ErrorType     string    `json:"error_type,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	DurationMS    int64     `json:"duration_ms"`
	Source        string    `json:"source,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
}

// ToolCallFilter narrows audit queries. Zero values mean "any".
type ToolCallFilter struct {
	Server  string
	Tool    string
	Success *bool
	Since   *time.Time
	Until   *time.Time
	Limit   int
}

// ToolCallStats aggregates the audit log over a window.
type ToolCallStats struct {
	Total         int     `json:"total"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	UniqueServers int     `json:"unique_servers"`
}

// ServerStats aggregates the audit log per backend.
type ServerStats struct {
	Server        string  `json:"server"`
	Total         int     `json:"total"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	MaxDurationMS int64   `json:"max_duration_ms"`
	UniqueTools   int     `json:"unique_tools"`
}

// ToolStats aggregates the audit log per (server, tool).
type ToolStats struct {
	Server        string  `json:"server"`
	Tool          string  `json:"tool"`
	Total         int     `json:"total"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// HourlyBucket is one hour of audit activity ("2026-08-24T13" style key).
type HourlyBucket struct {
	Hour       string `json:"hour"`
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
}

// Store is the persistence boundary. Engine-specific types never leak past it.
type Store interface {
	ListJobs(ctx context.Context) ([]Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	UpsertJob(ctx context.Context, fields JobFields) (*Job, error)
	DeleteJob(ctx context.Context, id string) (bool, error)
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error)
	SetNextRun(ctx context.Context, id string, at time.Time) error

	RecordRun(ctx context.Context, jobID string, started, finished time.Time, ok *bool, result map[string]any, errMsg string) (*Run, error)
	ListRuns(ctx context.Context, limit int, jobID string) ([]Run, error)

	InsertToolCall(ctx context.Context, entry AuditEntry) error
	ListToolCalls(ctx context.Context, filter ToolCallFilter) ([]AuditEntry, error)
	ToolCallStats(ctx context.Context, since, until *time.Time) (*ToolCallStats, error)
	ServerStats(ctx context.Context, since, until *time.Time) ([]ServerStats, error)
	ToolStats(ctx context.Context, server string, since, until *time.Time, limit int) ([]ToolStats, error)
	HourlyStats(ctx context.Context, since, until *time.Time) ([]HourlyBucket, error)
	RecentErrors(ctx context.Context, since *time.Time, limit int) ([]AuditEntry, error)
	CleanupOldToolCalls(ctx context.Context, olderThan time.Time) (int64, error)

	Kind() string // "sqlite" or "postgres"
	Close() error
}
