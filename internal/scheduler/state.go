// Package scheduler runs the background tick loop: claim due jobs, dispatch
// them with bounded parallelism, record the runs, and reschedule.
package scheduler

import (
	"sync/atomic"
	"time"
)

// TickSummary describes the last completed tick.
type TickSummary struct {
	JobsDue  int `json:"jobs_due"`
	Executed int `json:"executed"`
	OK       int `json:"ok"`
	Failed   int `json:"failed"`
}

// RuntimeState is a snapshot of the loop for health reporting. Published
// atomically; readers never block the loop.
type RuntimeState struct {
	StartedAt   time.Time    `json:"started_at_utc"`
	LastTickAt  *time.Time   `json:"last_tick_at_utc,omitempty"`
	LastSummary *TickSummary `json:"last_tick_summary,omitempty"`
}

type stateHolder struct {
	ptr atomic.Pointer[RuntimeState]
}

func (h *stateHolder) load() RuntimeState {
	if s := h.ptr.Load(); s != nil {
		return *s
	}
	return RuntimeState{}
}

func (h *stateHolder) store(s RuntimeState) {
	h.ptr.Store(&s)
}
