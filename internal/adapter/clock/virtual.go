package clock

import (
	"sort"
	"sync"
	"time"

	"github.com/lumeaudio/segue/internal/ports"
)

// Virtual is a deterministic clock for tests. Time only moves when Advance is
// called; due timers fire synchronously, in deadline order, on the advancing
// goroutine. Callbacks scheduled during an Advance that fall within the same
// window fire in the same call.
type Virtual struct {
	mu     sync.Mutex
	now    time.Time
	timers []*virtualTimer
	seq    uint64
}

type virtualTimer struct {
	clock     *Virtual
	at        time.Time
	seq       uint64 // breaks ties at identical deadlines, preserves schedule order
	fn        func()
	cancelled bool
	fired     bool
}

// NewVirtual creates a virtual clock starting at the given time.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

// Now returns the current virtual time.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// AfterFunc registers fn to fire once the virtual clock reaches now+d.
// A non-positive d fires on the next Advance call, including Advance(0).
func (v *Virtual) AfterFunc(d time.Duration, fn func()) ports.Timer {
	if d < 0 {
		d = 0
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.seq++
	t := &virtualTimer{
		clock: v,
		at:    v.now.Add(d),
		seq:   v.seq,
		fn:    fn,
	}
	v.timers = append(v.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every due timer in deadline
// order. Timers must not be fired while the clock's lock is held: callbacks
// commonly schedule new timers on the same clock.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now.Add(d)

	for {
		next := v.nextDueLocked(target)
		if next == nil {
			break
		}
		if next.at.After(v.now) {
			v.now = next.at
		}
		next.fired = true
		fn := next.fn
		v.mu.Unlock()
		fn()
		v.mu.Lock()
	}

	v.now = target
	v.compactLocked()
	v.mu.Unlock()
}

// nextDueLocked returns the earliest live timer with a deadline at or before
// target, or nil.
func (v *Virtual) nextDueLocked(target time.Time) *virtualTimer {
	var due *virtualTimer
	for _, t := range v.timers {
		if t.cancelled || t.fired || t.at.After(target) {
			continue
		}
		if due == nil || t.at.Before(due.at) || (t.at.Equal(due.at) && t.seq < due.seq) {
			due = t
		}
	}
	return due
}

// compactLocked drops fired and cancelled timers.
func (v *Virtual) compactLocked() {
	live := v.timers[:0]
	for _, t := range v.timers {
		if !t.cancelled && !t.fired {
			live = append(live, t)
		}
	}
	v.timers = live
}

// PendingTimers returns the number of live timers, for test assertions.
func (v *Virtual) PendingTimers() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	count := 0
	for _, t := range v.timers {
		if !t.cancelled && !t.fired {
			count++
		}
	}
	return count
}

// NextDeadlines returns the live deadlines in ascending order, for test
// assertions about what is armed.
func (v *Virtual) NextDeadlines() []time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()

	deadlines := make([]time.Time, 0, len(v.timers))
	for _, t := range v.timers {
		if !t.cancelled && !t.fired {
			deadlines = append(deadlines, t.at)
		}
	}
	sort.Slice(deadlines, func(i, j int) bool { return deadlines[i].Before(deadlines[j]) })
	return deadlines
}

// Cancel marks the timer dead. Safe to call concurrently with Advance; a
// timer observed as due before cancellation may still fire.
func (t *virtualTimer) Cancel() {
	t.clock.mu.Lock()
	t.cancelled = true
	t.clock.mu.Unlock()
}

// Verify that Virtual implements the Clock interface
var _ ports.Clock = (*Virtual)(nil)
