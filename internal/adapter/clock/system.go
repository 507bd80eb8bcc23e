// Package clock provides Clock implementations: the system clock for
// production and a virtual clock for deterministic tests.
package clock

import (
	"time"

	"github.com/lumeaudio/segue/internal/ports"
)

// System is the wall-clock implementation backed by the time package.
type System struct{}

// NewSystem creates a system clock.
func NewSystem() *System {
	return &System{}
}

// Now returns the current wall time.
func (s *System) Now() time.Time {
	return time.Now()
}

// AfterFunc fires fn on its own goroutine after d.
func (s *System) AfterFunc(d time.Duration, fn func()) ports.Timer {
	if d < 0 {
		d = 0
	}
	t := time.AfterFunc(d, fn)
	return &systemTimer{t: t}
}

type systemTimer struct {
	t *time.Timer
}

// Cancel stops the timer. Stopping an already-fired timer is a no-op.
func (st *systemTimer) Cancel() {
	st.t.Stop()
}

// Verify that System implements the Clock interface
var _ ports.Clock = (*System)(nil)
