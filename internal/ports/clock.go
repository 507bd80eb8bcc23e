package ports

import (
	"time"
)

// Timer is the single cancellable-timer abstraction used by every scheduling
// call site: coarse clock waits, precise in-track schedules, debounce timers.
// Cancel is idempotent and safe to call after the timer has fired.
type Timer interface {
	Cancel()
}

// Clock schedules wall-time callbacks. It is specified separately from the
// in-track scheduler (Sound.Schedule) because coarse waits must stay accurate
// even when the host process is throttled, and because tests substitute a
// deterministic virtual implementation.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc fires fn after d has elapsed. A non-positive d fires on the
	// next tick. The returned timer is cancellable.
	AfterFunc(d time.Duration, fn func()) Timer
}

// TimerFunc adapts a plain cancel function to the Timer interface.
type TimerFunc func()

// Cancel invokes the wrapped function.
func (f TimerFunc) Cancel() {
	if f != nil {
		f()
	}
}
