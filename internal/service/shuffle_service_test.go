package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/testutil"
)

func TestShuffleServiceSequentialOrder(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newServiceFixture(t, 3)
	svc := f.newShuffleService(1)

	next, ok := svc.NextTrack(f.playlist, f.track(0).ID())
	require.True(t, ok)
	assert.Equal(t, f.track(1).ID(), next.ID())

	// Sequential play ends past the last track.
	_, ok = svc.NextTrack(f.playlist, f.track(2).ID())
	assert.False(t, ok)
}

func TestShuffleServiceSetModePersists(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newServiceFixture(t, 3)
	svc := f.newShuffleService(1)

	require.NoError(t, svc.SetMode(f.playlist, domain.ShuffleWeighted))

	assert.Equal(t, domain.ShuffleWeighted, svc.Mode(f.playlist))
	segue, err := f.config.SegueConfig(f.playlist)
	require.NoError(t, err)
	assert.Equal(t, domain.ShuffleWeighted, segue.Shuffle)
	assert.Equal(t, domain.ShuffleWeighted, f.registry.Shuffle(f.playlist.ID()).Mode)
}

func TestShuffleServiceExhaustiveDrawsWithoutRepeats(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newServiceFixture(t, 4)
	svc := f.newShuffleService(42)
	require.NoError(t, svc.SetMode(f.playlist, domain.ShuffleExhaustive))

	current := f.track(0).ID()
	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		next, ok := svc.NextTrack(f.playlist, current)
		require.True(t, ok)
		assert.NotEqual(t, current, next.ID())
		assert.False(t, seen[next.ID()], "track drawn twice before the pool emptied")
		seen[next.ID()] = true
		current = next.ID()
	}

	// Every track except the starting one played exactly once.
	assert.Len(t, seen, 3)
	assert.False(t, seen[f.track(0).ID()])

	// The pool refills once exhausted.
	next, ok := svc.NextTrack(f.playlist, current)
	require.True(t, ok)
	assert.NotEqual(t, current, next.ID())
}

func TestShuffleServiceWeightedTracksMisses(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newServiceFixture(t, 3)
	svc := f.newShuffleService(7)
	require.NoError(t, svc.SetMode(f.playlist, domain.ShuffleWeighted))

	current := f.track(0).ID()
	next, ok := svc.NextTrack(f.playlist, current)
	require.True(t, ok)
	assert.NotEqual(t, current, next.ID())

	// The chosen track's weight resets; every passed-over candidate gains one.
	misses := f.registry.Shuffle(f.playlist.ID()).Misses
	assert.Zero(t, misses[next.ID()])
	for _, track := range f.playlist.Tracks() {
		if track.ID() == next.ID() || track.ID() == current {
			continue
		}
		assert.Equal(t, 1, misses[track.ID()])
	}
}

func TestShuffleServiceRoundRobinCycles(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newServiceFixture(t, 3)
	svc := f.newShuffleService(3)
	require.NoError(t, svc.SetMode(f.playlist, domain.ShuffleRoundRobin))

	next, ok := svc.NextTrack(f.playlist, f.track(0).ID())
	require.True(t, ok)
	assert.Equal(t, f.track(1).ID(), next.ID())

	next, ok = svc.NextTrack(f.playlist, f.track(1).ID())
	require.True(t, ok)
	assert.Equal(t, f.track(2).ID(), next.ID())

	// The cycle wraps back to the first track.
	next, ok = svc.NextTrack(f.playlist, f.track(2).ID())
	require.True(t, ok)
	assert.Equal(t, f.track(0).ID(), next.ID())
}

func TestShuffleServiceResetDropsState(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newServiceFixture(t, 4)
	svc := f.newShuffleService(42)
	require.NoError(t, svc.SetMode(f.playlist, domain.ShuffleExhaustive))

	_, ok := svc.NextTrack(f.playlist, f.track(0).ID())
	require.True(t, ok)
	require.NotEmpty(t, f.registry.Shuffle(f.playlist.ID()).Remaining)

	svc.Reset(f.playlist.ID())
	assert.Empty(t, f.registry.Shuffle(f.playlist.ID()).Remaining)
}

func TestShuffleServiceEmptyPlaylist(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newServiceFixture(t, 0)
	svc := f.newShuffleService(1)

	_, ok := svc.NextTrack(f.playlist, "missing")
	assert.False(t, ok)
}
