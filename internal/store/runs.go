package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type runRow struct {
	ID         string         `db:"id"`
	JobID      string         `db:"job_id"`
	StartedAt  string         `db:"started_at"`
	FinishedAt sql.NullString `db:"finished_at"`
	OK         sql.NullBool   `db:"ok"`
	ResultJSON sql.NullString `db:"result_json"`
	Error      sql.NullString `db:"error"`
}

func (r runRow) toRun() (Run, error) {
	run := Run{ID: r.ID, JobID: r.JobID}

	var err error
	if run.StartedAt, err = parseTime(r.StartedAt); err != nil {
		return run, fmt.Errorf("parse started_at for run %s: %w", r.ID, err)
	}
	if r.FinishedAt.Valid {
		t, err := parseTime(r.FinishedAt.String)
		if err != nil {
			return run, fmt.Errorf("parse finished_at for run %s: %w", r.ID, err)
		}
		run.FinishedAt = &t
	}
	if r.OK.Valid {
		v := r.OK.Bool
		run.OK = &v
	}
	if r.ResultJSON.Valid {
		v := r.ResultJSON.String
		run.ResultJSON = &v
	}
	if r.Error.Valid {
		v := r.Error.String
		run.Error = &v
	}
	return run, nil
}

func (s *sqlStore) RecordRun(ctx context.Context, jobID string, started, finished time.Time, ok *bool, result map[string]any, errMsg string) (*Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		JobID:     jobID,
		StartedAt: started.UTC().Truncate(time.Second),
	}
	f := finished.UTC().Truncate(time.Second)
	run.FinishedAt = &f
	run.OK = ok

	var resultJSON any
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal run result: %w", err)
		}
		str := string(data)
		run.ResultJSON = &str
		resultJSON = str
	}

	var errText any
	if errMsg != "" {
		run.Error = &errMsg
		errText = errMsg
	}

	query := s.db.Rebind(`INSERT INTO scheduler_runs (id, job_id, started_at, finished_at, ok, result_json, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query,
		run.ID, jobID, fmtTime(started), fmtTime(finished), boolOrNil(ok), resultJSON, errText,
	); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	return &run, nil
}

func boolOrNil(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func (s *sqlStore) ListRuns(ctx context.Context, limit int, jobID string) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, job_id, started_at, finished_at, ok, result_json, error
		FROM scheduler_runs`
	args := []any{}
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, limit)

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]Run, 0, len(rows))
	for _, r := range rows {
		run, err := r.toRun()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}
