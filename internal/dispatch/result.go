// Package dispatch maintains MCP client sessions to the configured backends
// and routes tool invocations to them, normalizing every outcome into a
// plain result map so schedulers and operators never see transport detail.
package dispatch

// Result is the normalized outcome of one tool invocation. Call never
// returns a Go error: transport failures, protocol errors, and tool-level
// errors all collapse into a failed Result.
type Result struct {
	// OK is nil when the backend's payload did not carry an "ok" flag.
	OK   *bool
	Body map[string]any
	Err  string
}

// Failed reports whether the result should be recorded as a failure.
// A nil OK counts as success: the call completed, the payload just did
// not self-report.
func (r Result) Failed() bool {
	return r.OK != nil && !*r.OK
}

func okResult(body map[string]any) Result {
	t := true
	if body == nil {
		body = map[string]any{"ok": true}
	}
	return Result{OK: &t, Body: body}
}

func errResult(msg string) Result {
	f := false
	return Result{
		OK:   &f,
		Body: map[string]any{"ok": false, "error": msg},
		Err:  msg,
	}
}

func boolPtr(b bool) *bool { return &b }
