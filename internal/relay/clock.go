// ABOUTME: Minimal timer abstraction so retry scheduling is testable.
// ABOUTME: Production code uses real time.AfterFunc; tests substitute a fake.

package relay

import "time"

// timer is a scheduled callback that can be stopped before it fires.
type timer interface {
	// Stop cancels the timer. It reports whether the callback was prevented
	// from running; a false return means it already fired or was stopped.
	Stop() bool
}

// clock schedules callbacks. The only waiting the relay manager ever does is
// through here, which keeps cancellation explicit and tests deterministic.
type clock interface {
	AfterFunc(d time.Duration, f func()) timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}
