package control

import (
	"sync"
	"testing"
	"time"
)

func TestRateLimiterBurstAndRefusal(t *testing.T) {
	rl := NewRateLimiter(60, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("caller") {
			t.Fatalf("expected burst request %d allowed", i)
		}
	}
	if rl.Allow("caller") {
		t.Error("expected refusal once the burst is spent")
	}
	if !rl.Allow("other") {
		t.Error("expected an independent bucket per caller")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		if !rl.Allow("caller") {
			t.Fatal("expected rpm<=0 to disable limiting")
		}
	}
}

func TestRateLimiterCleanupEvictsIdle(t *testing.T) {
	rl := NewRateLimiter(60, 3)
	defer rl.Stop()

	rl.Allow("idle")
	// A cutoff in the future makes every entry idle.
	rl.cleanup(time.Now().Add(time.Minute))
	if _, ok := rl.limiters.Load("idle"); ok {
		t.Error("expected idle caller evicted")
	}
}

func TestRateLimiterConcurrentAllow(t *testing.T) {
	rl := NewRateLimiter(6000, 100)
	defer rl.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rl.Allow("shared")
				rl.cleanup(time.Now().Add(-time.Hour))
			}
		}()
	}
	wg.Wait()
}

func TestRateLimiterStopIdempotent(t *testing.T) {
	rl := NewRateLimiter(60, 3)
	rl.Stop()
	rl.Stop()
}
