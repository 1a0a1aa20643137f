// Package transaction implements the TransactionLayer: client-side
// retransmission of STUN requests, server-side response caching, and
// Scheduler, the timer helper used for server-response cache eviction and
// TURN allocation refresh.
package transaction

import (
	"context"
	"time"
)

// Scheduler runs recurring and one-shot timers for callers that would
// otherwise each start their own goroutine. Layer uses it to evict expired
// server responses, and the relayed harvester to refresh TURN allocations.
// Client-transaction retransmission and the ICE agent's pacing and consent
// timers do not go through it; they run their own timers.
type Scheduler struct{}

// NewScheduler returns a Scheduler. It holds no state of its own; every
// method starts and owns its own goroutine tied to ctx, scoping each
// ticker's lifetime to whichever caller started it.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Every invokes fn on each tick of interval until ctx is canceled.
func (s *Scheduler) Every(ctx context.Context, interval time.Duration, fn func()) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fn()
			}
		}
	}()
}

// After invokes fn once after delay, unless ctx is canceled first.
func (s *Scheduler) After(ctx context.Context, delay time.Duration, fn func()) {
	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}()
}
