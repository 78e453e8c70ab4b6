package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/mcptick/internal/audit"
	"github.com/nextlevelbuilder/mcptick/internal/clock"
	"github.com/nextlevelbuilder/mcptick/internal/dispatch"
	"github.com/nextlevelbuilder/mcptick/internal/store"
)

// minLoopDelay is the floor between ticks even when a tick overruns its
// interval, so a saturated loop still yields.
const minLoopDelay = 200 * time.Millisecond

// sweepEvery is how often the audit retention sweep runs.
const sweepEvery = time.Hour

// Dispatcher is the slice of the dispatch layer the loop needs.
type Dispatcher interface {
	Call(ctx context.Context, server, tool string, args map[string]any, source string, timeout time.Duration) dispatch.Result
}

// Options tune the loop. Zero values fall back to safe defaults.
type Options struct {
	TickInterval   time.Duration // default 5s
	MaxJobsPerTick int           // default 20
	Parallelism    int           // default 4
	CallTimeout    time.Duration // per-call ceiling, default 15s
	Retention      time.Duration // audit retention window, default 30 days
}

func (o *Options) fill() {
	if o.TickInterval <= 0 {
		o.TickInterval = 5 * time.Second
	}
	if o.MaxJobsPerTick <= 0 {
		o.MaxJobsPerTick = 20
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 4
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 15 * time.Second
	}
	if o.Retention <= 0 {
		o.Retention = 30 * 24 * time.Hour
	}
}

// Ticker is the background scheduler loop. No tick outcome ever terminates
// it; only Stop (or context cancellation) does.
type Ticker struct {
	store    store.Store
	disp     Dispatcher
	recorder *audit.Recorder
	clk      clock.Clock
	opts     Options

	alive     atomic.Bool
	state     stateHolder
	lastSweep time.Time

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func New(s store.Store, disp Dispatcher, recorder *audit.Recorder, clk clock.Clock, opts Options) *Ticker {
	opts.fill()
	if clk == nil {
		clk = clock.Real{}
	}
	return &Ticker{
		store:    s,
		disp:     disp,
		recorder: recorder,
		clk:      clk,
		opts:     opts,
	}
}

// Start launches the loop goroutine. Calling Start twice is a no-op.
func (t *Ticker) Start(ctx context.Context) {
	t.once.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		t.cancel = cancel
		t.done = make(chan struct{})

		t.state.store(RuntimeState{StartedAt: t.clk.Now()})
		t.alive.Store(true)

		go t.run(runCtx)
		slog.Info("scheduler started",
			"tick", t.opts.TickInterval,
			"max_jobs_per_tick", t.opts.MaxJobsPerTick,
			"parallelism", t.opts.Parallelism)
	})
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (t *Ticker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
	slog.Info("scheduler stopped")
}

// Alive reports whether the loop goroutine is running.
func (t *Ticker) Alive() bool { return t.alive.Load() }

// State returns a snapshot for health reporting.
func (t *Ticker) State() RuntimeState { return t.state.load() }

func (t *Ticker) run(ctx context.Context) {
	defer close(t.done)
	defer t.alive.Store(false)

	for {
		start := t.clk.Now()
		t.tick(ctx)
		t.maybeSweep(ctx)

		delay := t.opts.TickInterval - t.clk.Now().Sub(start)
		if delay < minLoopDelay {
			delay = minLoopDelay
		}
		if !clock.Sleep(ctx, delay) {
			return
		}
	}
}

func (t *Ticker) tick(ctx context.Context) {
	now := t.clk.Now()

	jobs, err := t.store.ClaimDueJobs(ctx, now, t.opts.MaxJobsPerTick)
	if err != nil {
		slog.Error("claim due jobs failed", "error", err)
		t.publish(now, TickSummary{})
		return
	}

	summary := TickSummary{JobsDue: len(jobs)}
	if len(jobs) == 0 {
		t.publish(now, summary)
		return
	}

	var okCount, failCount atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Parallelism)
	for _, job := range jobs {
		g.Go(func() error {
			if t.runJob(gctx, job) {
				okCount.Add(1)
			} else {
				failCount.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	summary.Executed = len(jobs)
	summary.OK = int(okCount.Load())
	summary.Failed = int(failCount.Load())
	t.publish(now, summary)

	if summary.Failed > 0 {
		slog.Warn("tick finished with failures",
			"due", summary.JobsDue, "ok", summary.OK, "failed", summary.Failed)
	} else {
		slog.Debug("tick finished", "due", summary.JobsDue, "ok", summary.OK)
	}
}

// runJob dispatches one job, records the run, and reschedules from the
// completion instant. Returns true when the run did not fail.
func (t *Ticker) runJob(ctx context.Context, job store.Job) bool {
	interval := time.Duration(job.IntervalSeconds) * time.Second

	timeout := t.opts.CallTimeout
	if interval < timeout {
		timeout = interval
	}
	if timeout < time.Second {
		timeout = time.Second
	}

	started := t.clk.Now()
	result := t.disp.Call(ctx, job.Server, job.Tool, job.Args(), "scheduler", timeout)
	finished := t.clk.Now()

	if _, err := t.store.RecordRun(ctx, job.ID, started, finished, result.OK, result.Body, result.Err); err != nil {
		slog.Error("record run failed", "job", job.ID, "error", err)
	}

	// Next run is anchored at completion so slow tools do not pile up.
	if err := t.store.SetNextRun(ctx, job.ID, finished.Add(interval)); err != nil {
		slog.Error("set next run failed", "job", job.ID, "error", err)
	}

	return !result.Failed()
}

func (t *Ticker) publish(at time.Time, summary TickSummary) {
	state := t.state.load()
	state.LastTickAt = &at
	state.LastSummary = &summary
	t.state.store(state)
}

func (t *Ticker) maybeSweep(ctx context.Context) {
	now := t.clk.Now()
	if !t.lastSweep.IsZero() && now.Sub(t.lastSweep) < sweepEvery {
		return
	}
	t.lastSweep = now

	deleted, err := t.recorder.Cleanup(ctx, t.opts.Retention)
	if err != nil {
		slog.Warn("audit retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("audit retention sweep", "deleted", deleted)
	}
}
