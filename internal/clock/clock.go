// Package clock abstracts wall-clock time so the tick loop can be driven
// deterministically in tests.
package clock

import (
	"context"
	"time"
)

// Clock produces UTC instants with at least second resolution.
type Clock interface {
	Now() time.Time
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// Sleep waits for d or until ctx is cancelled, whichever comes first.
// Returns false when the wait was cancelled.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
