package control

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/mcptick/internal/audit"
	"github.com/nextlevelbuilder/mcptick/internal/clock"
	"github.com/nextlevelbuilder/mcptick/internal/config"
	"github.com/nextlevelbuilder/mcptick/internal/scheduler"
	"github.com/nextlevelbuilder/mcptick/internal/store"
	"github.com/nextlevelbuilder/mcptick/internal/store/sqlite"
)

func newTestServer(t *testing.T, token string) *Server {
	t.Helper()

	db, err := sqlite.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st, err := store.NewWithDB(db, "sqlite")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		Transport:   config.TransportHTTP,
		TickSeconds: 5,
		ClientToken: token,
	}
	ticker := scheduler.New(st, nil, audit.NewRecorder(st), clock.Real{}, scheduler.Options{})
	return New(cfg, st, ticker)
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultPayload(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("expected a tool result with content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Fatalf("parse payload %q: %v", text.Text, err)
	}
	return payload
}

func TestAuthRejectsBadToken(t *testing.T) {
	s := newTestServer(t, "correct-token")
	ctx := context.Background()

	res, err := s.handleListJobs(ctx, toolRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	payload := resultPayload(t, res)
	if payload["ok"] != false || payload["error"] != "unauthorized" {
		t.Errorf("expected unauthorized, got %v", payload)
	}

	res, err = s.handleListJobs(ctx, toolRequest(map[string]any{"_client_token": "wrong"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if payload := resultPayload(t, res); payload["error"] != "unauthorized" {
		t.Errorf("expected unauthorized for wrong token, got %v", payload)
	}

	res, err = s.handleListJobs(ctx, toolRequest(map[string]any{"_client_token": "correct-token"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if payload := resultPayload(t, res); payload["ok"] != true {
		t.Errorf("expected success with the right token, got %v", payload)
	}
}

func TestAuthOpenWithoutToken(t *testing.T) {
	s := newTestServer(t, "")

	res, err := s.handleListJobs(context.Background(), toolRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if payload := resultPayload(t, res); payload["ok"] != true {
		t.Errorf("expected open access without configured token, got %v", payload)
	}
}

func TestJobLifecycleHandlers(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	res, err := s.handleUpsertJob(ctx, toolRequest(map[string]any{
		"label":            "health",
		"server":           "docker",
		"tool":             "ps",
		"args":             map[string]any{"all": true},
		"interval_seconds": float64(60),
	}))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	payload := resultPayload(t, res)
	if payload["ok"] != true {
		t.Fatalf("expected upsert success, got %v", payload)
	}
	job := payload["job"].(map[string]any)
	id := job["id"].(string)
	if id == "" {
		t.Fatal("expected a job id")
	}

	res, err = s.handleGetJob(ctx, toolRequest(map[string]any{"id": id}))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	payload = resultPayload(t, res)
	if payload["ok"] != true {
		t.Fatalf("expected get success, got %v", payload)
	}

	res, err = s.handleDeleteJob(ctx, toolRequest(map[string]any{"id": id}))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	payload = resultPayload(t, res)
	if payload["ok"] != true {
		t.Errorf("expected deletion, got %v", payload)
	}

	res, err = s.handleGetJob(ctx, toolRequest(map[string]any{"id": id}))
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if payload := resultPayload(t, res); payload["error"] != "not_found" {
		t.Errorf("expected not_found, got %v", payload)
	}

	res, err = s.handleDeleteJob(ctx, toolRequest(map[string]any{"id": id}))
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if payload := resultPayload(t, res); payload["ok"] != false || payload["error"] != "not_found" {
		t.Errorf("expected not_found on second delete, got %v", payload)
	}
}

func TestUpsertJobValidation(t *testing.T) {
	s := newTestServer(t, "")

	res, err := s.handleUpsertJob(context.Background(), toolRequest(map[string]any{
		"label": "", "server": "docker", "tool": "ps", "interval_seconds": float64(60),
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if payload := resultPayload(t, res); payload["ok"] != false {
		t.Errorf("expected validation failure, got %v", payload)
	}
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, "")

	res, err := s.handleHealth(context.Background(), toolRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	payload := resultPayload(t, res)
	if payload["ok"] != true {
		t.Fatalf("expected ok, got %v", payload)
	}
	if payload["service"] != "mcptick" {
		t.Errorf("unexpected service name %v", payload["service"])
	}
	if payload["db_kind"] != "sqlite" {
		t.Errorf("expected sqlite db kind, got %v", payload["db_kind"])
	}
	if payload["thread_alive"] != false {
		t.Errorf("expected loop not alive before Start, got %v", payload["thread_alive"])
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"n_float": float64(7),
		"n_int":   5,
		"s":       "x",
		"b":       true,
	}

	if got := argInt(args, "n_float", 0); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
	if got := argInt(args, "n_int", 0); got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
	if got := argInt(args, "missing", 9); got != 9 {
		t.Errorf("expected default, got %d", got)
	}
	if got := argString(args, "s"); got != "x" {
		t.Errorf("expected x, got %q", got)
	}
	if b := argBoolPtr(args, "b"); b == nil || !*b {
		t.Errorf("expected true pointer, got %v", b)
	}
	if b := argBoolPtr(args, "missing"); b != nil {
		t.Errorf("expected nil for missing bool, got %v", b)
	}
}
