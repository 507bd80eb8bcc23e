package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lumeaudio/segue/internal/adapter/eventbus"
	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/testutil"
)

func TestCollector(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	bus := eventbus.NewSyncEventBus()
	c := NewCollector(bus)
	defer c.Close()

	seg := domain.Segment{Start: 10 * time.Second, End: 40 * time.Second}

	bus.Publish(domain.NewCrossfadeCompletedEvent("p1", "t1", "t2", 2*time.Second))
	bus.Publish(domain.NewCrossfadeCompletedEvent("p1", "t2", "t3", 3*time.Second))
	bus.Publish(domain.NewLoopIterationEvent("t1", seg, 1))
	bus.Publish(domain.NewLoopIterationEvent("t1", seg, 2))
	bus.Publish(domain.NewLoopIterationEvent("t1", seg, 3))
	bus.Publish(domain.NewLoopEndedEvent("t1", domain.LoopEndRetired))
	bus.Publish(domain.NewSilenceStartedEvent("p1", "gap", 5*time.Second))

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.Crossfades)
	assert.Equal(t, 5*time.Second, snap.CrossfadeDuration)
	assert.Equal(t, int64(3), snap.LoopIterations)
	assert.Equal(t, int64(1), snap.LoopSessions)
	assert.Equal(t, int64(1), snap.SilenceGaps)
	assert.Equal(t, 5*time.Second, snap.SilenceDuration)

	c.Reset()
	assert.Equal(t, Snapshot{}, c.Snapshot())

	// A closed collector stops counting.
	c.Close()
	bus.Publish(domain.NewLoopEndedEvent("t2", domain.LoopEndRetired))
	assert.Equal(t, int64(0), c.Snapshot().LoopSessions)
}
