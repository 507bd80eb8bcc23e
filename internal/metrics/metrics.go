// Package metrics keeps process-wide playback counters. The collector
// observes the event bus rather than being threaded through every service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/ports"
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Crossfades        int64
	CrossfadeDuration time.Duration
	LoopIterations    int64
	LoopSessions      int64
	SilenceGaps       int64
	SilenceDuration   time.Duration
}

// Collector accumulates counters from bus events.
//
// Thread-safety: this implementation is thread-safe.
type Collector struct {
	bus  ports.EventBus
	subs []domain.SubscriptionID

	crossfades      atomic.Int64
	crossfadeNanos  atomic.Int64
	loopIterations  atomic.Int64
	loopSessions    atomic.Int64
	silenceGaps     atomic.Int64
	silenceGapNanos atomic.Int64
}

// NewCollector creates a collector and subscribes it to the bus.
func NewCollector(bus ports.EventBus) *Collector {
	c := &Collector{bus: bus}
	c.subs = []domain.SubscriptionID{
		bus.Subscribe(domain.EventCrossfadeCompleted, func(e domain.Event) {
			c.crossfades.Add(1)
			c.crossfadeNanos.Add(int64(e.(domain.CrossfadeCompletedEvent).Duration))
		}),
		bus.Subscribe(domain.EventLoopIteration, func(domain.Event) {
			c.loopIterations.Add(1)
		}),
		bus.Subscribe(domain.EventLoopEnded, func(domain.Event) {
			c.loopSessions.Add(1)
		}),
		bus.Subscribe(domain.EventSilenceStarted, func(e domain.Event) {
			c.silenceGaps.Add(1)
			c.silenceGapNanos.Add(int64(e.(domain.SilenceStartedEvent).Duration))
		}),
	}
	return c
}

// Snapshot returns the current counter values.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Crossfades:        c.crossfades.Load(),
		CrossfadeDuration: time.Duration(c.crossfadeNanos.Load()),
		LoopIterations:    c.loopIterations.Load(),
		LoopSessions:      c.loopSessions.Load(),
		SilenceGaps:       c.silenceGaps.Load(),
		SilenceDuration:   time.Duration(c.silenceGapNanos.Load()),
	}
}

// Reset zeroes every counter.
func (c *Collector) Reset() {
	c.crossfades.Store(0)
	c.crossfadeNanos.Store(0)
	c.loopIterations.Store(0)
	c.loopSessions.Store(0)
	c.silenceGaps.Store(0)
	c.silenceGapNanos.Store(0)
}

// Close unsubscribes the collector from the bus.
func (c *Collector) Close() {
	for _, id := range c.subs {
		c.bus.Unsubscribe(id)
	}
	c.subs = nil
}
