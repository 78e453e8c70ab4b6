package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/mcptick/internal/audit"
	"github.com/nextlevelbuilder/mcptick/internal/dispatch"
	"github.com/nextlevelbuilder/mcptick/internal/store"
	"github.com/nextlevelbuilder/mcptick/internal/store/sqlite"
)

type fakeCall struct {
	Server  string
	Tool    string
	Args    map[string]any
	Timeout time.Duration
}

// fakeDispatcher records calls and answers from a per-tool script.
type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []fakeCall
	results map[string]dispatch.Result // tool -> result
}

func (f *fakeDispatcher) Call(ctx context.Context, server, tool string, args map[string]any, source string, timeout time.Duration) dispatch.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{Server: server, Tool: tool, Args: args, Timeout: timeout})
	if res, ok := f.results[tool]; ok {
		return res
	}
	ok := true
	return dispatch.Result{OK: &ok, Body: map[string]any{"ok": true}}
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func failedResult(msg string) dispatch.Result {
	ok := false
	return dispatch.Result{OK: &ok, Body: map[string]any{"ok": false, "error": msg}, Err: msg}
}

func newTestStore(t *testing.T) store.Store {
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
	return st
}

func addDueJob(t *testing.T, st store.Store, label, tool string, intervalSec int) *store.Job {
	t.Helper()
	past := time.Now().UTC().Add(-time.Minute)
	job, err := st.UpsertJob(context.Background(), store.JobFields{
		Label: label, Server: "docker", Tool: tool,
		IntervalSeconds: intervalSec, NextRunAt: &past,
	})
	if err != nil {
		t.Fatalf("upsert job: %v", err)
	}
	return job
}

func TestTickExecutesDueJobs(t *testing.T) {
	st := newTestStore(t)
	disp := &fakeDispatcher{}
	job := addDueJob(t, st, "health", "ping", 60)

	ticker := New(st, disp, audit.NewRecorder(st), nil, Options{})
	ticker.tick(context.Background())

	if disp.callCount() != 1 {
		t.Fatalf("expected 1 dispatch, got %d", disp.callCount())
	}

	runs, err := st.ListRuns(context.Background(), 10, job.ID)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run recorded, got %d", len(runs))
	}
	if runs[0].OK == nil || !*runs[0].OK {
		t.Errorf("expected ok run, got %+v", runs[0])
	}

	// Rescheduled one interval past completion, not the claim horizon.
	reloaded, err := st.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if reloaded.NextRunAt == nil {
		t.Fatal("expected next_run_at set")
	}
	want := time.Now().UTC().Add(60 * time.Second)
	if diff := reloaded.NextRunAt.Sub(want); diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("next_run_at off by %s", diff)
	}

	state := ticker.State()
	if state.LastSummary == nil {
		t.Fatal("expected tick summary published")
	}
	if state.LastSummary.Executed != 1 || state.LastSummary.OK != 1 || state.LastSummary.Failed != 0 {
		t.Errorf("unexpected summary: %+v", state.LastSummary)
	}
}

func TestTickCountsFailures(t *testing.T) {
	st := newTestStore(t)
	disp := &fakeDispatcher{results: map[string]dispatch.Result{
		"broken": failedResult("boom"),
	}}
	addDueJob(t, st, "good", "ping", 60)
	broken := addDueJob(t, st, "bad", "broken", 60)

	ticker := New(st, disp, audit.NewRecorder(st), nil, Options{})
	ticker.tick(context.Background())

	state := ticker.State()
	if state.LastSummary.Executed != 2 || state.LastSummary.OK != 1 || state.LastSummary.Failed != 1 {
		t.Errorf("unexpected summary: %+v", state.LastSummary)
	}

	// A failing job is still rescheduled.
	reloaded, err := st.GetJob(context.Background(), broken.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if reloaded.NextRunAt == nil || !reloaded.NextRunAt.After(time.Now().UTC()) {
		t.Errorf("expected failing job rescheduled into the future, got %v", reloaded.NextRunAt)
	}
}

func TestTickRespectsMaxJobsPerTick(t *testing.T) {
	st := newTestStore(t)
	disp := &fakeDispatcher{}
	for i := 0; i < 5; i++ {
		addDueJob(t, st, "job", "ping", 60)
	}

	ticker := New(st, disp, audit.NewRecorder(st), nil, Options{MaxJobsPerTick: 2})
	ticker.tick(context.Background())

	if disp.callCount() != 2 {
		t.Errorf("expected 2 dispatches, got %d", disp.callCount())
	}
	if got := ticker.State().LastSummary.JobsDue; got != 2 {
		t.Errorf("expected 2 jobs due in summary, got %d", got)
	}
}

func TestRunJobTimeoutCappedByInterval(t *testing.T) {
	st := newTestStore(t)
	disp := &fakeDispatcher{}

	// 5s interval, 15s default ceiling: the interval wins.
	addDueJob(t, st, "fast", "ping", 5)

	ticker := New(st, disp, audit.NewRecorder(st), nil, Options{CallTimeout: 15 * time.Second})
	ticker.tick(context.Background())

	if disp.callCount() != 1 {
		t.Fatalf("expected 1 dispatch, got %d", disp.callCount())
	}
	if got := disp.calls[0].Timeout; got != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", got)
	}
}

func TestTickSurvivesStoreError(t *testing.T) {
	st := newTestStore(t)
	disp := &fakeDispatcher{}
	ticker := New(st, disp, audit.NewRecorder(st), nil, Options{})

	st.Close()
	ticker.tick(context.Background()) // must not panic

	if ticker.State().LastSummary == nil {
		t.Error("expected summary published even on claim failure")
	}
}

func TestStartStop(t *testing.T) {
	st := newTestStore(t)
	disp := &fakeDispatcher{}
	addDueJob(t, st, "health", "ping", 60)

	ticker := New(st, disp, audit.NewRecorder(st), nil, Options{TickInterval: time.Second})
	ticker.Start(context.Background())

	if !ticker.Alive() {
		t.Error("expected alive after start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for disp.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if disp.callCount() == 0 {
		t.Fatal("expected the loop to dispatch the due job")
	}

	ticker.Stop()
	if ticker.Alive() {
		t.Error("expected not alive after stop")
	}
}
