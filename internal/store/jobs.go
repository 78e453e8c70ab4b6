package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// sqlStore implements Store over either engine. Queries are written with ?
// placeholders and rebound per engine by sqlx.
type sqlStore struct {
	db   *sqlx.DB
	kind string
}

func (s *sqlStore) Kind() string { return s.kind }

func (s *sqlStore) Close() error { return s.db.Close() }

// fmtTime renders an instant as RFC3339 UTC at second resolution so stored
// timestamps compare lexicographically.
func fmtTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

type jobRow struct {
	ID              string         `db:"id"`
	Enabled         bool           `db:"enabled"`
	Label           string         `db:"label"`
	Server          string         `db:"server"`
	Tool            string         `db:"tool"`
	ArgsJSON        string         `db:"args_json"`
	IntervalSeconds int            `db:"interval_seconds"`
	NextRunAt       sql.NullString `db:"next_run_at"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
}

const jobColumns = `id, enabled, label, server, tool, args_json, interval_seconds, next_run_at, created_at, updated_at`

func (r jobRow) toJob() (Job, error) {
	job := Job{
		ID:              r.ID,
		Enabled:         r.Enabled,
		Label:           r.Label,
		Server:          r.Server,
		Tool:            r.Tool,
		ArgsJSON:        r.ArgsJSON,
		IntervalSeconds: r.IntervalSeconds,
	}

	var err error
	if job.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return job, fmt.Errorf("parse created_at for job %s: %w", r.ID, err)
	}
	if job.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return job, fmt.Errorf("parse updated_at for job %s: %w", r.ID, err)
	}
	if r.NextRunAt.Valid {
		t, err := parseTime(r.NextRunAt.String)
		if err != nil {
			return job, fmt.Errorf("parse next_run_at for job %s: %w", r.ID, err)
		}
		job.NextRunAt = &t
	}
	return job, nil
}

func rowsToJobs(rows []jobRow) ([]Job, error) {
	jobs := make([]Job, 0, len(rows))
	for _, r := range rows {
		job, err := r.toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *sqlStore) ListJobs(ctx context.Context) ([]Job, error) {
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM scheduler_jobs ORDER BY created_at DESC, id`)
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return rowsToJobs(rows)
}

func (s *sqlStore) GetJob(ctx context.Context, id string) (*Job, error) {
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM scheduler_jobs WHERE id = ?`)
	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	job, err := row.toJob()
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *sqlStore) UpsertJob(ctx context.Context, fields JobFields) (*Job, error) {
	norm, err := normalizeJobFields(fields)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if fields.ID != "" {
		existing, err := s.GetJob(ctx, fields.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.updateJob(ctx, existing, fields, norm, now)
		}
	}

	id := fields.ID
	if id == "" {
		id = uuid.NewString()
	}
	enabled := true
	if fields.Enabled != nil {
		enabled = *fields.Enabled
	}
	nextRun := fields.NextRunAt
	if nextRun == nil {
		t := now.Add(time.Duration(norm.IntervalSeconds) * time.Second)
		nextRun = &t
	}

	query := s.db.Rebind(`INSERT INTO scheduler_jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query,
		id, enabled, norm.Label, norm.Server, norm.Tool, norm.ArgsJSON,
		norm.IntervalSeconds, fmtTime(*nextRun), fmtTime(now), fmtTime(now),
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetJob(ctx, id)
}

func (s *sqlStore) updateJob(ctx context.Context, existing *Job, fields JobFields, norm *normalizedJob, now time.Time) (*Job, error) {
	enabled := existing.Enabled
	if fields.Enabled != nil {
		enabled = *fields.Enabled
	}

	nextRun := existing.NextRunAt
	if fields.NextRunAt != nil {
		nextRun = fields.NextRunAt
	}
	if nextRun == nil {
		// Previously null: initialize to now + interval.
		t := now.Add(time.Duration(norm.IntervalSeconds) * time.Second)
		nextRun = &t
	}

	query := s.db.Rebind(`UPDATE scheduler_jobs
		SET enabled = ?, label = ?, server = ?, tool = ?, args_json = ?,
		    interval_seconds = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query,
		enabled, norm.Label, norm.Server, norm.Tool, norm.ArgsJSON,
		norm.IntervalSeconds, fmtTime(*nextRun), fmtTime(now), existing.ID,
	); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	return s.GetJob(ctx, existing.ID)
}

func (s *sqlStore) DeleteJob(ctx context.Context, id string) (bool, error) {
	query := s.db.Rebind(`DELETE FROM scheduler_jobs WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete job rows affected: %w", err)
	}
	return n > 0, nil
}

// ClaimDueJobs selects up to limit enabled jobs whose next_run_at is null or
// past, then pushes each selected job's next_run_at forward by the claim
// horizon inside the same transaction. Best-effort: a second instance may
// still race the select; backends must tolerate the duplicate.
func (s *sqlStore) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: begin: %w", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`SELECT ` + jobColumns + ` FROM scheduler_jobs
		WHERE enabled = ? AND (next_run_at IS NULL OR next_run_at <= ?)
		ORDER BY next_run_at ASC NULLS FIRST
		LIMIT ?`)
	var rows []jobRow
	if err := tx.SelectContext(ctx, &rows, query, true, fmtTime(now), limit); err != nil {
		return nil, fmt.Errorf("claim due jobs: select: %w", err)
	}

	jobs, err := rowsToJobs(rows)
	if err != nil {
		return nil, err
	}

	horizon := fmtTime(now.Add(ClaimHorizon))
	update := tx.Rebind(`UPDATE scheduler_jobs SET next_run_at = ? WHERE id = ?`)
	for _, job := range jobs {
		if _, err := tx.ExecContext(ctx, update, horizon, job.ID); err != nil {
			return nil, fmt.Errorf("claim due jobs: push horizon: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim due jobs: commit: %w", err)
	}
	return jobs, nil
}

func (s *sqlStore) SetNextRun(ctx context.Context, id string, at time.Time) error {
	query := s.db.Rebind(`UPDATE scheduler_jobs SET next_run_at = ?, updated_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, fmtTime(at), fmtTime(time.Now().UTC()), id); err != nil {
		return fmt.Errorf("set next run: %w", err)
	}
	return nil
}
