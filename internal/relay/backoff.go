// ABOUTME: Fixed-interval reconnect policy with a bounded attempt budget.
// ABOUTME: Owns the single cancellable retry timer; all calls happen under the manager lock.

package relay

import "time"

// backoff decides whether and when to re-attempt a connection after an
// unplanned close. The interval is constant between attempts, not
// exponential. All methods must be called with the manager mutex held; the
// timer callback re-enters the manager, which re-checks its generation
// counter before acting.
type backoff struct {
	attempts int
	max      int
	interval time.Duration

	clock clock
	// pending is non-nil only while a retry is scheduled and not yet fired.
	pending timer
}

func newBackoff(interval time.Duration, max int, clk clock) *backoff {
	return &backoff{interval: interval, max: max, clock: clk}
}

// reset clears the attempt counter. Called on every successful connection
// and on explicit Reconnect, which is the caller's manual override of
// attempt exhaustion.
func (b *backoff) reset() {
	b.attempts = 0
}

// cancel stops any pending retry timer. Idempotent.
func (b *backoff) cancel() {
	if b.pending != nil {
		b.pending.Stop()
		b.pending = nil
	}
}

// next records a failed attempt and schedules fire after the configured
// interval. It returns false, scheduling nothing, once the attempt budget is
// exhausted.
func (b *backoff) next(fire func()) bool {
	b.cancel()
	b.attempts++
	if b.attempts > b.max {
		return false
	}
	b.pending = b.clock.AfterFunc(b.interval, func() {
		fire()
	})
	return true
}

// configure swaps the interval and attempt budget, used when console
// settings change at runtime. A pending timer keeps its original deadline.
func (b *backoff) configure(interval time.Duration, max int) {
	b.interval = interval
	b.max = max
}
