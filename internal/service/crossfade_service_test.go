package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/testutil"
)

type stubLooper struct {
	trackID   string
	destroyed bool
}

func (l *stubLooper) Destroy(bool)      { l.destroyed = true }
func (l *stubLooper) IsDestroyed() bool { return l.destroyed }
func (l *stubLooper) TrackID() string   { return l.trackID }

func newCrossfadeFixture(t *testing.T, trackCount int) (*serviceFixture, *CrossfadeService) {
	t.Helper()

	f := newServiceFixture(t, trackCount)
	shuffle := f.newShuffleService(1)
	silence := f.newSilenceService(t)
	return f, f.newCrossfadeService(shuffle, silence)
}

func TestCrossfadeServiceArmWithoutConfigIsNoOp(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f, svc := newCrossfadeFixture(t, 2)
	require.NoError(t, f.playlist.PlayTrack(f.track(0)))

	require.NoError(t, svc.Arm(f.playlist))
	assert.False(t, svc.IsScheduled(f.playlist.ID()))
}

func TestCrossfadeServiceArmRequiresCurrentTrack(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f, svc := newCrossfadeFixture(t, 2)
	f.storeSegue(t, domain.SegueConfig{CrossfadeEnabled: true, Crossfade: 5 * time.Second})

	assert.ErrorIs(t, svc.Arm(f.playlist), domain.ErrTrackNotPlaying)
}

func TestCrossfadeServiceAutomaticTransition(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f, svc := newCrossfadeFixture(t, 2)
	f.storeSegue(t, domain.SegueConfig{CrossfadeEnabled: true, Crossfade: 5 * time.Second})

	first, second := f.track(0), f.track(1)
	require.NoError(t, f.playlist.PlayTrack(first))
	require.NoError(t, svc.Arm(f.playlist))
	require.True(t, svc.IsScheduled(f.playlist.ID()))

	// Nothing happens until playback reaches duration minus crossfade.
	f.clock.Advance(174 * time.Second)
	assert.Empty(t, f.events.ofType(domain.EventCrossfadeStarted))

	f.clock.Advance(time.Second)
	started := f.events.ofType(domain.EventCrossfadeStarted)
	require.Len(t, started, 1)
	ev := started[0].(domain.CrossfadeStartedEvent)
	assert.Equal(t, first.ID(), ev.FromTrackID)
	assert.Equal(t, second.ID(), ev.ToTrackID)

	assert.True(t, second.Playing())
	assert.True(t, f.registry.IsCrossfading(f.playlist.ID()))

	// The outgoing buffer keeps fading while detached from the host handle.
	sounds := f.source.CreatedSounds()
	require.Len(t, sounds, 2)
	assert.False(t, sounds[0].Stopped())
	assert.Nil(t, first.Sound())

	f.clock.Advance(5 * time.Second)
	require.Len(t, f.events.ofType(domain.EventCrossfadeCompleted), 1)
	assert.True(t, sounds[0].Stopped())
	assert.False(t, f.registry.IsCrossfading(f.playlist.ID()))

	// The transition re-arms for the track that became current.
	assert.True(t, svc.IsScheduled(f.playlist.ID()))
}

func TestCrossfadeServiceArmDefersUntilPlaybackStarts(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f, svc := newCrossfadeFixture(t, 2)
	f.storeSegue(t, domain.SegueConfig{CrossfadeEnabled: true, Crossfade: 5 * time.Second})

	track := f.track(0)
	require.NoError(t, f.playlist.PlayTrack(track))
	track.SetPlaying(false)

	require.NoError(t, svc.Arm(f.playlist))
	assert.False(t, svc.IsScheduled(f.playlist.ID()))

	// Arming completes once the host reports the track started.
	track.SetPlaying(true)
	f.bus.Publish(domain.NewTrackStartedEvent(track.ID(), f.playlist.ID()))
	assert.True(t, svc.IsScheduled(f.playlist.ID()))
}

func TestCrossfadeServiceArmSkipsLooperOwnedTrack(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f, svc := newCrossfadeFixture(t, 2)
	f.storeSegue(t, domain.SegueConfig{CrossfadeEnabled: true, Crossfade: 5 * time.Second})

	track := f.track(0)
	require.NoError(t, f.playlist.PlayTrack(track))
	f.registry.SetLooper(f.playlist.ID(), track.ID(), &stubLooper{trackID: track.ID()})

	require.NoError(t, svc.Arm(f.playlist))
	assert.False(t, svc.IsScheduled(f.playlist.ID()))
}

func TestCrossfadeServiceCancel(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f, svc := newCrossfadeFixture(t, 2)
	f.storeSegue(t, domain.SegueConfig{CrossfadeEnabled: true, Crossfade: 5 * time.Second})

	require.NoError(t, f.playlist.PlayTrack(f.track(0)))
	require.NoError(t, svc.Arm(f.playlist))
	require.True(t, svc.IsScheduled(f.playlist.ID()))

	svc.Cancel(f.playlist)
	assert.False(t, svc.IsScheduled(f.playlist.ID()))

	f.clock.Advance(180 * time.Second)
	assert.Empty(t, f.events.ofType(domain.EventCrossfadeStarted))
}

func TestCrossfadeServiceManualTransitionGuards(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f, svc := newCrossfadeFixture(t, 2)
	f.storeSegue(t, domain.SegueConfig{CrossfadeEnabled: true, Crossfade: 5 * time.Second})
	require.NoError(t, f.playlist.PlayTrack(f.track(0)))

	f.registry.SetCrossfading(f.playlist.ID(), true)
	require.NoError(t, svc.CrossfadeToNext(f.playlist))
	assert.Empty(t, f.events.ofType(domain.EventCrossfadeStarted))
	f.registry.SetCrossfading(f.playlist.ID(), false)

	f.registry.SetStopping(f.playlist.ID(), true)
	require.NoError(t, svc.CrossfadeToNext(f.playlist))
	assert.Empty(t, f.events.ofType(domain.EventCrossfadeStarted))
}

func TestCrossfadeServiceNoNextTrack(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f, svc := newCrossfadeFixture(t, 1)
	f.storeSegue(t, domain.SegueConfig{CrossfadeEnabled: true, Crossfade: 5 * time.Second})

	track := f.track(0)
	require.NoError(t, f.playlist.PlayTrack(track))

	// Sequential order past the last track: the playlist ends naturally.
	require.NoError(t, svc.CrossfadeToNext(f.playlist))
	assert.Empty(t, f.events.ofType(domain.EventCrossfadeStarted))
	assert.True(t, track.Playing())
}

func TestCrossfadeServiceFiresSilenceWhenConfigured(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f, svc := newCrossfadeFixture(t, 2)
	f.storeSegue(t, domain.SegueConfig{SilenceEnabled: true, Silence: 2 * time.Second})

	require.NoError(t, f.playlist.PlayTrack(f.track(0)))
	require.NoError(t, svc.Arm(f.playlist))
	require.True(t, svc.IsScheduled(f.playlist.ID()))

	// With no crossfade, the timer fires at the track's natural end.
	f.clock.Advance(180 * time.Second)
	require.Len(t, f.events.ofType(domain.EventSilenceStarted), 1)
	assert.True(t, f.registry.IsSilenceActive(f.playlist.ID()))
	assert.Empty(t, f.events.ofType(domain.EventCrossfadeStarted))
}
