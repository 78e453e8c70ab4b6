package control

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/mcptick/internal/store"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("scheduler_health",
		mcp.WithDescription("Report scheduler liveness, configuration, and the last tick summary"),
	), s.handleHealth)

	s.mcp.AddTool(mcp.NewTool("scheduler_list_jobs",
		mcp.WithDescription("List all scheduled jobs"),
	), s.handleListJobs)

	s.mcp.AddTool(mcp.NewTool("scheduler_get_job",
		mcp.WithDescription("Fetch one job by id"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Job id")),
	), s.handleGetJob)

	s.mcp.AddTool(mcp.NewTool("scheduler_upsert_job",
		mcp.WithDescription("Create or update a scheduled job. Provide id to update an existing job."),
		mcp.WithString("id", mcp.Description("Existing job id; omit to create")),
		mcp.WithString("label", mcp.Required(), mcp.Description("Human-readable job label")),
		mcp.WithString("server", mcp.Required(), mcp.Description("Backend name the job targets")),
		mcp.WithString("tool", mcp.Required(), mcp.Description("Tool name to invoke")),
		mcp.WithObject("args", mcp.Description("Arguments passed to the tool on each run")),
		mcp.WithNumber("interval_seconds", mcp.Required(), mcp.Description("Run interval in seconds (minimum 5)")),
		mcp.WithBoolean("enabled", mcp.Description("Whether the job is eligible to run (default true)")),
	), s.handleUpsertJob)

	s.mcp.AddTool(mcp.NewTool("scheduler_delete_job",
		mcp.WithDescription("Delete a job. Its run history is preserved."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Job id")),
	), s.handleDeleteJob)

	s.mcp.AddTool(mcp.NewTool("scheduler_list_runs",
		mcp.WithDescription("List recent job runs, newest first"),
		mcp.WithString("job_id", mcp.Description("Restrict to one job")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows (default 50)")),
	), s.handleListRuns)

	s.mcp.AddTool(mcp.NewTool("scheduler_tool_calls",
		mcp.WithDescription("List audited tool invocations, newest first"),
		mcp.WithString("server", mcp.Description("Restrict to one backend")),
		mcp.WithString("tool", mcp.Description("Restrict to one tool")),
		mcp.WithBoolean("success", mcp.Description("Restrict to successes or failures")),
		mcp.WithNumber("since_hours", mcp.Description("Look back this many hours")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows (default 50)")),
	), s.handleToolCalls)

	s.mcp.AddTool(mcp.NewTool("scheduler_tool_call_stats",
		mcp.WithDescription("Aggregate audit statistics with hourly buckets"),
		mcp.WithNumber("since_hours", mcp.Description("Look back this many hours (default 24)")),
	), s.handleToolCallStats)

	s.mcp.AddTool(mcp.NewTool("scheduler_server_stats",
		mcp.WithDescription("Per-backend audit statistics; pass server for a per-tool breakdown"),
		mcp.WithString("server", mcp.Description("Backend to break down by tool")),
		mcp.WithNumber("since_hours", mcp.Description("Look back this many hours (default 24)")),
	), s.handleServerStats)

	s.mcp.AddTool(mcp.NewTool("scheduler_recent_errors",
		mcp.WithDescription("List recent failed tool invocations"),
		mcp.WithNumber("since_hours", mcp.Description("Look back this many hours (default 24)")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows (default 20)")),
	), s.handleRecentErrors)
}

// --- arg helpers: JSON numbers arrive as float64 ---

func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

func argBoolPtr(args map[string]any, key string) *bool {
	if v, ok := args[key].(bool); ok {
		return &v
	}
	return nil
}

// jobIDArg accepts both "id" and the older "job_id" spelling.
func jobIDArg(args map[string]any) string {
	if id := argString(args, "id"); id != "" {
		return id
	}
	return argString(args, "job_id")
}

func sinceHours(args map[string]any, def int) *time.Time {
	h := argInt(args, "since_hours", def)
	if h <= 0 {
		return nil
	}
	t := time.Now().UTC().Add(-time.Duration(h) * time.Hour)
	return &t
}

// --- handlers ---

func (s *Server) handleHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, deny := s.authorize(ctx, req); deny != nil {
		return deny, nil
	}

	state := s.ticker.State()
	payload := map[string]any{
		"ok":             true,
		"service":        "mcptick",
		"thread_alive":   s.ticker.Alive(),
		"tick_seconds":   s.cfg.TickSeconds,
		"db_kind":        s.store.Kind(),
		"started_at_utc": state.StartedAt.Format(time.RFC3339),
	}
	if state.LastTickAt != nil {
		payload["last_tick_at_utc"] = state.LastTickAt.Format(time.RFC3339)
	}
	if state.LastSummary != nil {
		payload["last_tick_summary"] = state.LastSummary
	}
	return jsonResult(payload), nil
}

func (s *Server) handleListJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, deny := s.authorize(ctx, req); deny != nil {
		return deny, nil
	}

	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return jsonResult(map[string]any{"ok": true, "jobs": jobs, "count": len(jobs)}), nil
}

func (s *Server) handleGetJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, deny := s.authorize(ctx, req)
	if deny != nil {
		return deny, nil
	}

	id := jobIDArg(args)
	if id == "" {
		return errResult("id is required"), nil
	}

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return errResult(err.Error()), nil
	}
	if job == nil {
		return errResult("not_found"), nil
	}
	return jsonResult(map[string]any{"ok": true, "job": job}), nil
}

func (s *Server) handleUpsertJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, deny := s.authorize(ctx, req)
	if deny != nil {
		return deny, nil
	}

	fields := store.JobFields{
		ID:              argString(args, "id"),
		Label:           argString(args, "label"),
		Server:          argString(args, "server"),
		Tool:            argString(args, "tool"),
		Args:            args["args"],
		IntervalSeconds: argInt(args, "interval_seconds", 0),
		Enabled:         argBoolPtr(args, "enabled"),
	}

	job, err := s.store.UpsertJob(ctx, fields)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return jsonResult(map[string]any{"ok": true, "job": job}), nil
}

func (s *Server) handleDeleteJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, deny := s.authorize(ctx, req)
	if deny != nil {
		return deny, nil
	}

	id := jobIDArg(args)
	if id == "" {
		return errResult("id is required"), nil
	}

	deleted, err := s.store.DeleteJob(ctx, id)
	if err != nil {
		return errResult(err.Error()), nil
	}
	if !deleted {
		return errResult("not_found"), nil
	}
	return jsonResult(map[string]any{"ok": true}), nil
}

func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, deny := s.authorize(ctx, req)
	if deny != nil {
		return deny, nil
	}

	runs, err := s.store.ListRuns(ctx, argInt(args, "limit", 50), argString(args, "job_id"))
	if err != nil {
		return errResult(err.Error()), nil
	}
	return jsonResult(map[string]any{"ok": true, "runs": runs, "count": len(runs)}), nil
}

func (s *Server) handleToolCalls(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, deny := s.authorize(ctx, req)
	if deny != nil {
		return deny, nil
	}

	filter := store.ToolCallFilter{
		Server:  argString(args, "server"),
		Tool:    argString(args, "tool"),
		Success: argBoolPtr(args, "success"),
		Since:   sinceHours(args, 0),
		Limit:   argInt(args, "limit", 50),
	}

	entries, err := s.store.ListToolCalls(ctx, filter)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return jsonResult(map[string]any{"ok": true, "tool_calls": entries, "count": len(entries)}), nil
}

func (s *Server) handleToolCallStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, deny := s.authorize(ctx, req)
	if deny != nil {
		return deny, nil
	}

	since := sinceHours(args, 24)

	stats, err := s.store.ToolCallStats(ctx, since, nil)
	if err != nil {
		return errResult(err.Error()), nil
	}
	hourly, err := s.store.HourlyStats(ctx, since, nil)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return jsonResult(map[string]any{"ok": true, "stats": stats, "hourly": hourly}), nil
}

func (s *Server) handleServerStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, deny := s.authorize(ctx, req)
	if deny != nil {
		return deny, nil
	}

	since := sinceHours(args, 24)

	servers, err := s.store.ServerStats(ctx, since, nil)
	if err != nil {
		return errResult(err.Error()), nil
	}
	payload := map[string]any{"ok": true, "servers": servers}

	if server := argString(args, "server"); server != "" {
		tools, err := s.store.ToolStats(ctx, server, since, nil, 20)
		if err != nil {
			return errResult(err.Error()), nil
		}
		payload["tools"] = tools
	}
	return jsonResult(payload), nil
}

func (s *Server) handleRecentErrors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, deny := s.authorize(ctx, req)
	if deny != nil {
		return deny, nil
	}

	entries, err := s.store.RecentErrors(ctx, sinceHours(args, 24), argInt(args, "limit", 20))
	if err != nil {
		return errResult(err.Error()), nil
	}
	return jsonResult(map[string]any{"ok": true, "errors": entries, "count": len(entries)}), nil
}
