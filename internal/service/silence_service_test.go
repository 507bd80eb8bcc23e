package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeaudio/segue/internal/adapter/host/memory"
	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/testutil"
)

func TestSilenceServiceBeginInsertsGap(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newServiceFixture(t, 2)
	svc := f.newSilenceService(t)
	f.storeSegue(t, domain.SegueConfig{SilenceEnabled: true, Silence: 2 * time.Second})

	first := f.track(0)
	require.NoError(t, f.playlist.PlayTrack(first))
	require.NoError(t, svc.Begin(f.playlist))

	assert.True(t, svc.IsActive(f.playlist.ID()))
	assert.False(t, first.Playing())

	// The gap sits right after the source track and is backed by a real
	// silent asset on disk.
	tracks := f.playlist.Tracks()
	require.Len(t, tracks, 3)
	gap := tracks[1].(*memory.Track)
	assert.Equal(t, "Silence", gap.Name())
	_, err := os.Stat(gap.Path())
	require.NoError(t, err)

	started := f.events.ofType(domain.EventSilenceStarted)
	require.Len(t, started, 1)
	assert.Equal(t, gap.ID(), started[0].(domain.SilenceStartedEvent).GapTrackID)
}

func TestSilenceServiceResolvesAndAdvances(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newServiceFixture(t, 2)
	svc := f.newSilenceService(t)
	f.storeSegue(t, domain.SegueConfig{SilenceEnabled: true, Silence: 2 * time.Second})

	require.NoError(t, f.playlist.PlayTrack(f.track(0)))
	require.NoError(t, svc.Begin(f.playlist))

	f.clock.Advance(2 * time.Second)

	assert.False(t, svc.IsActive(f.playlist.ID()))
	assert.Len(t, f.playlist.Tracks(), 2)
	assert.True(t, f.track(1).Playing())

	ended := f.events.ofType(domain.EventSilenceEnded)
	require.Len(t, ended, 1)
	assert.False(t, ended[0].(domain.SilenceEndedEvent).Cancelled)
}

func TestSilenceServiceCancel(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newServiceFixture(t, 2)
	svc := f.newSilenceService(t)
	f.storeSegue(t, domain.SegueConfig{SilenceEnabled: true, Silence: 2 * time.Second})

	require.NoError(t, f.playlist.PlayTrack(f.track(0)))
	require.NoError(t, svc.Begin(f.playlist))

	svc.Cancel(f.playlist)

	assert.False(t, svc.IsActive(f.playlist.ID()))
	assert.Len(t, f.playlist.Tracks(), 2)
	assert.False(t, f.track(1).Playing())

	ended := f.events.ofType(domain.EventSilenceEnded)
	require.Len(t, ended, 1)
	assert.True(t, ended[0].(domain.SilenceEndedEvent).Cancelled)

	// The original timer must not resolve the gap a second time.
	f.clock.Advance(2 * time.Second)
	assert.Len(t, f.events.ofType(domain.EventSilenceEnded), 1)
}

func TestSilenceServiceBeginWithoutConfigIsNoOp(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newServiceFixture(t, 2)
	svc := f.newSilenceService(t)

	require.NoError(t, f.playlist.PlayTrack(f.track(0)))
	require.NoError(t, svc.Begin(f.playlist))

	assert.False(t, svc.IsActive(f.playlist.ID()))
	assert.Len(t, f.playlist.Tracks(), 2)
}

func TestSilenceServiceBeginRequiresCurrentTrack(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newServiceFixture(t, 2)
	svc := f.newSilenceService(t)
	f.storeSegue(t, domain.SegueConfig{SilenceEnabled: true, Silence: 2 * time.Second})

	assert.ErrorIs(t, svc.Begin(f.playlist), domain.ErrTrackNotPlaying)
}

func TestWriteSilenceWAV(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	path := filepath.Join(t.TempDir(), "gap.wav")
	require.NoError(t, WriteSilenceWAV(path, 500*time.Millisecond))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, file.Close())
	}()

	decoder := wav.NewDecoder(file)
	require.True(t, decoder.IsValidFile())

	duration, err := decoder.Duration()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, duration.Seconds(), 0.01)
}
