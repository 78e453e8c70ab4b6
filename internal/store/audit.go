package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type auditRow struct {
	ID            string         `db:"id"`
	ServerName    string         `db:"server_name"`
	ToolName      string         `db:"tool_name"`
	ArgsJSON      sql.NullString `db:"args_json"`
	Success       bool           `db:"success"`
	ResultPreview sql.NullString `db:"result_preview"`
	ErrorMessage  sql.NullString `db:"error_message"`
	ErrorType     sql.NullString `db:"error_type"`
	StartedAt     string         `db:"started_at"`
	FinishedAt    string         `db:"finished_at"`
	DurationMS    int64          `db:"duration_ms"`
	Source        sql.NullString `db:"source"`
	RequestID     sql.NullString `db:"request_id"`
	SessionID     sql.NullString `db:"session_id"`
}

const auditColumns = `id, server_name, tool_name, args_json, success, result_preview,
	error_message, error_type, started_at, finished_at, duration_ms, source, request_id, session_id`

func (r auditRow) toEntry() (AuditEntry, error) {
	e := AuditEntry{
		ID:            r.ID,
		ServerName:    r.ServerName,
		ToolName:      r.ToolName,
		ArgsJSON:      r.ArgsJSON.String,
		Success:       r.Success,
		ResultPreview: r.ResultPreview.String,
		ErrorMessage:  r.ErrorMessage.String,
		ErrorType:     r.ErrorType.String,
		DurationMS:    r.DurationMS,
		Source:        r.Source.String,
		RequestID:     r.RequestID.String,
		SessionID:     r.SessionID.String,
	}

	var err error
	if e.StartedAt, err = parseTime(r.StartedAt); err != nil {
		return e, fmt.Errorf("parse started_at for tool call %s: %w", r.ID, err)
	}
	if e.FinishedAt, err = parseTime(r.FinishedAt); err != nil {
		return e, fmt.Errorf("parse finished_at for tool call %s: %w", r.ID, err)
	}
	return e, nil
}

func rowsToEntries(rows []auditRow) ([]AuditEntry, error) {
	entries := make([]AuditEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *sqlStore) InsertToolCall(ctx context.Context, entry AuditEntry) error {
	query := s.db.Rebind(`INSERT INTO mcp_tool_calls (` + auditColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.ServerName, entry.ToolName, nullIfEmpty(entry.ArgsJSON),
		entry.Success, nullIfEmpty(entry.ResultPreview), nullIfEmpty(entry.ErrorMessage),
		nullIfEmpty(entry.ErrorType), fmtTime(entry.StartedAt), fmtTime(entry.FinishedAt),
		entry.DurationMS, nullIfEmpty(entry.Source), nullIfEmpty(entry.RequestID),
		nullIfEmpty(entry.SessionID),
	); err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

// auditWindow builds the shared WHERE fragment for time-bounded audit
// queries. Returns the clause (starting with " WHERE" or empty) and its args.
func auditWindow(since, until *time.Time) (string, []any) {
	var conds []string
	var args []any
	if since != nil {
		conds = append(conds, "started_at >= ?")
		args = append(args, fmtTime(*since))
	}
	if until != nil {
		conds = append(conds, "started_at <= ?")
		args = append(args, fmtTime(*until))
	}
	if len(conds) == 0 {
		return "", nil
	}
	clause := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		clause += " AND " + c
	}
	return clause, args
}

func (s *sqlStore) ListToolCalls(ctx context.Context, filter ToolCallFilter) ([]AuditEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + auditColumns + ` FROM mcp_tool_calls WHERE 1=1`
	var args []any
	if filter.Server != "" {
		query += ` AND server_name = ?`
		args = append(args, filter.Server)
	}
	if filter.Tool != "" {
		query += ` AND tool_name = ?`
		args = append(args, filter.Tool)
	}
	if filter.Success != nil {
		query += ` AND success = ?`
		args = append(args, *filter.Success)
	}
	if filter.Since != nil {
		query += ` AND started_at >= ?`
		args = append(args, fmtTime(*filter.Since))
	}
	if filter.Until != nil {
		query += ` AND started_at <= ?`
		args = append(args, fmtTime(*filter.Until))
	}
	query += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, limit)

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list tool calls: %w", err)
	}
	return rowsToEntries(rows)
}

func (s *sqlStore) ToolCallStats(ctx context.Context, since, until *time.Time) (*ToolCallStats, error) {
	where, args := auditWindow(since, until)
	query := s.db.Rebind(`SELECT
		COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS successful,
		COALESCE(AVG(duration_ms), 0) AS avg_duration_ms,
		COUNT(DISTINCT server_name) AS unique_servers
		FROM mcp_tool_calls` + where)

	var row struct {
		Total         int     `db:"total"`
		Successful    int     `db:"successful"`
		AvgDurationMS float64 `db:"avg_duration_ms"`
		UniqueServers int     `db:"unique_servers"`
	}
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("tool call stats: %w", err)
	}

	stats := &ToolCallStats{
		Total:         row.Total,
		Successful:    row.Successful,
		Failed:        row.Total - row.Successful,
		AvgDurationMS: row.AvgDurationMS,
		UniqueServers: row.UniqueServers,
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats, nil
}

func (s *sqlStore) ServerStats(ctx context.Context, since, until *time.Time) ([]ServerStats, error) {
	where, args := auditWindow(since, until)
	query := s.db.Rebind(`SELECT
		server_name,
		COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS successful,
		COALESCE(AVG(duration_ms), 0) AS avg_duration_ms,
		COALESCE(MAX(duration_ms), 0) AS max_duration_ms,
		COUNT(DISTINCT tool_name) AS unique_tools
		FROM mcp_tool_calls` + where + `
		GROUP BY server_name
		ORDER BY total DESC, server_name`)

	var rows []struct {
		ServerName    string  `db:"server_name"`
		Total         int     `db:"total"`
		Successful    int     `db:"successful"`
		AvgDurationMS float64 `db:"avg_duration_ms"`
		MaxDurationMS int64   `db:"max_duration_ms"`
		UniqueTools   int     `db:"unique_tools"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("server stats: %w", err)
	}

	out := make([]ServerStats, 0, len(rows))
	for _, r := range rows {
		st := ServerStats{
			Server:        r.ServerName,
			Total:         r.Total,
			Successful:    r.Successful,
			Failed:        r.Total - r.Successful,
			AvgDurationMS: r.AvgDurationMS,
			MaxDurationMS: r.MaxDurationMS,
			UniqueTools:   r.UniqueTools,
		}
		if st.Total > 0 {
			st.SuccessRate = float64(st.Successful) / float64(st.Total)
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *sqlStore) ToolStats(ctx context.Context, server string, since, until *time.Time, limit int) ([]ToolStats, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT
		server_name,
		tool_name,
		COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS successful,
		COALESCE(AVG(duration_ms), 0) AS avg_duration_ms
		FROM mcp_tool_calls WHERE 1=1`
	var args []any
	if server != "" {
		query += ` AND server_name = ?`
		args = append(args, server)
	}
	if since != nil {
		query += ` AND started_at >= ?`
		args = append(args, fmtTime(*since))
	}
	if until != nil {
		query += ` AND started_at <= ?`
		args = append(args, fmtTime(*until))
	}
	query += ` GROUP BY server_name, tool_name ORDER BY total DESC, server_name, tool_name LIMIT ?`
	args = append(args, limit)

	var rows []struct {
		ServerName    string  `db:"server_name"`
		ToolName      string  `db:"tool_name"`
		Total         int     `db:"total"`
		Successful    int     `db:"successful"`
		AvgDurationMS float64 `db:"avg_duration_ms"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("tool stats: %w", err)
	}

	out := make([]ToolStats, 0, len(rows))
	for _, r := range rows {
		st := ToolStats{
			Server:        r.ServerName,
			Tool:          r.ToolName,
			Total:         r.Total,
			Successful:    r.Successful,
			Failed:        r.Total - r.Successful,
			AvgDurationMS: r.AvgDurationMS,
		}
		if st.Total > 0 {
			st.SuccessRate = float64(st.Successful) / float64(st.Total)
		}
		out = append(out, st)
	}
	return out, nil
}

// HourlyStats buckets by the first 13 characters of started_at, which for
// RFC3339 text is "2026-08-24T13", the calendar hour in UTC.
func (s *sqlStore) HourlyStats(ctx context.Context, since, until *time.Time) ([]HourlyBucket, error) {
	where, args := auditWindow(since, until)
	query := s.db.Rebind(`SELECT
		substr(started_at, 1, 13) AS hour,
		COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS successful
		FROM mcp_tool_calls` + where + `
		GROUP BY substr(started_at, 1, 13)
		ORDER BY hour`)

	var rows []struct {
		Hour       string `db:"hour"`
		Total      int    `db:"total"`
		Successful int    `db:"successful"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("hourly stats: %w", err)
	}

	out := make([]HourlyBucket, 0, len(rows))
	for _, r := range rows {
		out = append(out, HourlyBucket{
			Hour:       r.Hour,
			Total:      r.Total,
			Successful: r.Successful,
			Failed:     r.Total - r.Successful,
		})
	}
	return out, nil
}

func (s *sqlStore) RecentErrors(ctx context.Context, since *time.Time, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + auditColumns + ` FROM mcp_tool_calls WHERE success = ?`
	args := []any{false}
	if since != nil {
		query += ` AND started_at >= ?`
		args = append(args, fmtTime(*since))
	}
	query += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, limit)

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("recent errors: %w", err)
	}
	return rowsToEntries(rows)
}

func (s *sqlStore) CleanupOldToolCalls(ctx context.Context, olderThan time.Time) (int64, error) {
	query := s.db.Rebind(`DELETE FROM mcp_tool_calls WHERE started_at < ?`)
	res, err := s.db.ExecContext(ctx, query, fmtTime(olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup tool calls: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup tool calls rows affected: %w", err)
	}
	return n, nil
}
