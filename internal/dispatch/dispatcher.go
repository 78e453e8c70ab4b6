package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/mcptick/internal/audit"
	"github.com/nextlevelbuilder/mcptick/internal/config"
)

// Dispatcher routes tool invocations to backends, connecting sessions
// lazily and relaunching them after transport failures.
type Dispatcher struct {
	mu       sync.Mutex
	specs    map[string]config.BackendSpec
	inproc   map[string]inprocBackend
	sessions map[string]*session

	recorder *audit.Recorder
}

// inprocBackend is an in-process MCP server registered as a backend, with
// the token its tools expect. Self-dispatch must authenticate like any
// other caller.
type inprocBackend struct {
	srv   *mcpserver.MCPServer
	token string
}

// New builds a dispatcher over the configured backends. recorder may be nil
// to disable auditing.
func New(specs map[string]config.BackendSpec, recorder *audit.Recorder) *Dispatcher {
	copied := make(map[string]config.BackendSpec, len(specs))
	for name, spec := range specs {
		copied[name] = spec
	}
	return &Dispatcher{
		specs:    copied,
		inproc:   make(map[string]inprocBackend),
		sessions: make(map[string]*session),
		recorder: recorder,
	}
}

// RegisterInProcess exposes an in-process MCP server under the given backend
// name. Jobs can then target this service's own tools regardless of which
// transport the control plane listens on. token is injected into every call
// the same way a spec's client_token would be.
func (d *Dispatcher) RegisterInProcess(name string, srv *mcpserver.MCPServer, token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inproc[name] = inprocBackend{srv: srv, token: token}
}

// Backends lists the names jobs may target, sorted.
func (d *Dispatcher) Backends() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.specs)+len(d.inproc))
	for name := range d.specs {
		names = append(names, name)
	}
	for name := range d.inproc {
		if _, dup := d.specs[name]; !dup {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// UpdateBackends swaps the backend set after a config reload. Sessions for
// removed or changed backends are closed; they reconnect on next use.
func (d *Dispatcher) UpdateBackends(specs map[string]config.BackendSpec) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, sess := range d.sessions {
		if _, inproc := d.inproc[name]; inproc {
			continue
		}
		next, stillThere := specs[name]
		if !stillThere || !specEqual(d.specs[name], next) {
			sess.close()
			delete(d.sessions, name)
		}
	}

	d.specs = make(map[string]config.BackendSpec, len(specs))
	for name, spec := range specs {
		d.specs[name] = spec
	}
	slog.Info("backends updated", "count", len(specs))
}

func specEqual(a, b config.BackendSpec) bool {
	if a.Transport != b.Transport || a.URL != b.URL || a.Root != b.Root ||
		a.ClientToken != b.ClientToken || a.TimeoutSec != b.TimeoutSec {
		return false
	}
	if len(a.Command) != len(b.Command) {
		return false
	}
	for i := range a.Command {
		if a.Command[i] != b.Command[i] {
			return false
		}
	}
	if len(a.Env) != len(b.Env) {
		return false
	}
	for k, v := range a.Env {
		if b.Env[k] != v {
			return false
		}
	}
	return true
}

// Call invokes one tool on one backend and returns the normalized result.
// It never returns a Go error: every failure mode becomes a failed Result.
// The audit row captures args as supplied; the client token is injected
// only into the wire payload.
func (d *Dispatcher) Call(ctx context.Context, server, tool string, args map[string]any, source string, timeout time.Duration) Result {
	sess, err := d.getSession(ctx, server)

	var sessionID string
	if sess != nil {
		sessionID = sess.id
	}
	call := d.recorder.Begin(server, tool, args, source, sessionID)

	if err != nil {
		msg := fmt.Sprintf("backend %s unavailable: %v", server, err)
		call.Finish(ctx, false, "", msg, "connect")
		return errResult(msg)
	}

	wireArgs := args
	if token := d.clientToken(server); token != "" {
		wireArgs = make(map[string]any, len(args)+1)
		for k, v := range args {
			wireArgs[k] = v
		}
		wireArgs["_client_token"] = token
	}

	resolved := sess.resolve(ctx, tool)

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = resolved
	req.Params.Arguments = wireArgs

	sess.callMu.Lock()
	raw, err := sess.client.CallTool(callCtx, req)
	sess.callMu.Unlock()
	if err != nil {
		d.dropSession(server, sess)

		msg := fmt.Sprintf("tool %s on %s: %v", tool, server, err)
		errType := "transport"
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("tool %s on %s timed out after %s", tool, server, timeout)
			errType = "timeout"
		}
		call.Finish(ctx, false, "", msg, errType)
		return errResult(msg)
	}

	result := normalizeCallResult(raw)
	call.Finish(ctx, !result.Failed(), extractText(raw), result.Err, errTypeOf(result))
	return result
}

func errTypeOf(r Result) string {
	if r.Failed() {
		return "tool"
	}
	return ""
}

func (d *Dispatcher) clientToken(server string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.inproc[server]; ok && b.token != "" {
		return b.token
	}
	return d.specs[server].ClientToken
}

// getSession returns the live session for a backend, connecting if needed.
// The lock is held across connect so concurrent callers do not race to
// spawn the same child process twice.
func (d *Dispatcher) getSession(ctx context.Context, server string) (*session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if sess, ok := d.sessions[server]; ok {
		return sess, nil
	}

	if b, ok := d.inproc[server]; ok {
		sess, err := connectInProcess(ctx, server, b.srv)
		if err != nil {
			return nil, err
		}
		d.sessions[server] = sess
		return sess, nil
	}

	spec, ok := d.specs[server]
	if !ok {
		return nil, fmt.Errorf("unknown backend")
	}
	if !spec.Configured() {
		return nil, fmt.Errorf("not configured")
	}

	sess, err := connect(ctx, spec)
	if err != nil {
		return nil, err
	}
	d.sessions[server] = sess
	return sess, nil
}

// dropSession discards a session after a transport error so the next call
// reconnects. Only drops if the stored session is still the one that failed.
func (d *Dispatcher) dropSession(server string, failed *session) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if current, ok := d.sessions[server]; ok && current == failed {
		delete(d.sessions, server)
		failed.close()
		slog.Warn("backend session dropped", "backend", server)
	}
}

// Close shuts down all live sessions.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, sess := range d.sessions {
		sess.close()
		delete(d.sessions, name)
	}
}
