package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/mcptick/internal/store"
)

// previewLimit caps the stored result preview, in runes.
const previewLimit = 2000

// Recorder writes one audit row per tool invocation. A nil Recorder is a
// no-op, so callers never have to branch on whether auditing is wired.
type Recorder struct {
	store store.Store
}

func NewRecorder(s store.Store) *Recorder {
	return &Recorder{store: s}
}

// Call is an in-flight invocation. Begin captures the redacted arguments
// before any credential injection happens; Finish persists the row.
type Call struct {
	rec       *Recorder
	id        string
	server    string
	tool      string
	argsJSON  string
	source    string
	sessionID string
	started   time.Time
}

// Begin snapshots the invocation before it is dispatched. args must be the
// caller-supplied arguments, not the wire payload, so injected credentials
// never reach the audit log.
func (r *Recorder) Begin(server, tool string, args map[string]any, source, sessionID string) *Call {
	if r == nil {
		return nil
	}

	argsJSON := "{}"
	if data, err := json.Marshal(RedactArgs(args)); err == nil && args != nil {
		argsJSON = string(data)
	}

	return &Call{
		rec:       r,
		id:        uuid.NewString(),
		server:    server,
		tool:      tool,
		argsJSON:  argsJSON,
		source:    source,
		sessionID: sessionID,
		started:   time.Now().UTC(),
	}
}

// Finish persists the audit row. Write failures are logged, never propagated:
// audit must not break dispatch.
func (c *Call) Finish(ctx context.Context, success bool, preview, errMsg, errType string) {
	if c == nil {
		return
	}

	finished := time.Now().UTC()
	entry := store.AuditEntry{
		ID:            c.id,
		ServerName:    c.server,
		ToolName:      c.tool,
		ArgsJSON:      c.argsJSON,
		Success:       success,
		ResultPreview: truncate(preview, previewLimit),
		ErrorMessage:  truncate(errMsg, previewLimit),
		ErrorType:     errType,
		StartedAt:     c.started,
		FinishedAt:    finished,
		DurationMS:    finished.Sub(c.started).Milliseconds(),
		Source:        c.source,
		RequestID:     c.id,
		SessionID:     c.sessionID,
	}

	if err := c.rec.store.InsertToolCall(ctx, entry); err != nil {
		slog.Warn("audit write failed",
			"server", c.server, "tool", c.tool, "error", err)
	}
}

// Cleanup deletes audit rows older than the retention window.
func (r *Recorder) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if r == nil {
		return 0, nil
	}
	return r.store.CleanupOldToolCalls(ctx, time.Now().UTC().Add(-retention))
}

// truncate caps s at limit runes. The ellipsis counts against the cap so
// the stored value never exceeds it.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
