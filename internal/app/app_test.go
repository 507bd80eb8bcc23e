package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeaudio/segue/internal/adapter/audio/mock"
	clockadapter "github.com/lumeaudio/segue/internal/adapter/clock"
	"github.com/lumeaudio/segue/internal/adapter/eventbus"
	"github.com/lumeaudio/segue/internal/adapter/host/memory"
	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/testutil"
)

type appFixture struct {
	app      *Application
	clock    *clockadapter.Virtual
	source   *mock.Engine
	host     *memory.Host
	playlist *memory.Playlist
}

func newAppFixture(t *testing.T) *appFixture {
	t.Helper()

	clk := clockadapter.NewVirtual(time.Unix(0, 0))
	bus := eventbus.NewSyncEventBus()
	source := mock.NewEngine(clk)
	source.SetDefaultDuration(time.Minute)
	host := memory.NewHost(bus, source)

	application, err := NewApplication(Config{
		LogLevel: slog.LevelError,
		AssetDir: t.TempDir(),
		RandSeed: 1,
	}, Dependencies{
		Bus:        bus,
		Clock:      clk,
		Source:     source,
		Authority:  host,
		Replicator: host,
	})
	require.NoError(t, err)
	t.Cleanup(application.Shutdown)

	return &appFixture{
		app:      application,
		clock:    clk,
		source:   source,
		host:     host,
		playlist: host.NewPlaylist("set"),
	}
}

func TestApplicationWiresAllServices(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newAppFixture(t)
	assert.NotNil(t, f.app.Loops())
	assert.NotNil(t, f.app.Crossfades())
	assert.NotNil(t, f.app.Silences())
	assert.NotNil(t, f.app.Shuffles())
	assert.NotNil(t, f.app.Config())
	assert.NotNil(t, f.app.Registry())
	assert.NotNil(t, f.app.Metrics())
	assert.NotNil(t, f.app.EventBus())
	assert.NotNil(t, f.app.Logger())
}

func TestApplicationSchedulesLoopOnTrackStart(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newAppFixture(t)
	track := f.playlist.AddTrack("theme", 0.8)
	require.NoError(t, f.app.Config().StoreLoopConfig(track, domain.LoopConfig{
		Enabled: true, Active: true, StartFromBeginning: true,
		Segments: []domain.Segment{{Start: 10 * time.Second, End: 40 * time.Second, Crossfade: time.Second}},
	}))

	require.NoError(t, f.playlist.PlayTrack(track))
	f.app.HandleTrackStarted(track)

	assert.True(t, f.app.Loops().IsLooping(track.ID()))
	f.clock.Advance(50 * time.Millisecond)
	f.clock.Advance(10 * time.Second)

	segment, ok := f.app.Loops().ActiveSegment(track.ID())
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, segment.Start)
}

func TestApplicationArmsCrossfadeOnTrackStart(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newAppFixture(t)
	first := f.playlist.AddTrack("one", 0.8)
	f.playlist.AddTrack("two", 0.8)
	require.NoError(t, f.app.Config().StoreSegueConfig(f.playlist, domain.SegueConfig{
		CrossfadeEnabled: true, Crossfade: 5 * time.Second,
	}))

	require.NoError(t, f.playlist.PlayTrack(first))
	f.app.HandleTrackStarted(first)
	require.True(t, f.app.Crossfades().IsScheduled(f.playlist.ID()))

	// The crossfade runs at duration minus crossfade and records metrics.
	f.clock.Advance(time.Minute)
	assert.Equal(t, int64(1), f.app.Metrics().Snapshot().Crossfades)
}

func TestApplicationLoopCompletionHandsOffToPlaylist(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newAppFixture(t)
	first := f.playlist.AddTrack("one", 0.8)
	second := f.playlist.AddTrack("two", 0.8)
	require.NoError(t, f.app.Config().StoreSegueConfig(f.playlist, domain.SegueConfig{
		CrossfadeEnabled: true, Crossfade: 3 * time.Second,
	}))
	require.NoError(t, f.app.Config().StoreLoopConfig(first, domain.LoopConfig{
		Enabled: true, Active: true, StartFromBeginning: true,
		Segments: []domain.Segment{{
			Start: 10 * time.Second, End: 40 * time.Second,
			Crossfade: time.Second, LoopCount: 1,
		}},
	}))

	require.NoError(t, f.playlist.PlayTrack(first))
	f.app.HandleTrackStarted(first)

	// One loop iteration, then retirement; the looper hands the track ending
	// to the playlist layer, which crossfades into the next track.
	f.clock.Advance(2 * time.Minute)
	assert.True(t, second.Playing())
	assert.Equal(t, int64(1), f.app.Metrics().Snapshot().LoopIterations)
}

func TestApplicationSkipCompletionCrossfadesToNext(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newAppFixture(t)
	first := f.playlist.AddTrack("one", 0.8)
	second := f.playlist.AddTrack("two", 0.8)
	require.NoError(t, f.app.Config().StoreSegueConfig(f.playlist, domain.SegueConfig{
		CrossfadeEnabled: true, Crossfade: 3 * time.Second,
	}))
	require.NoError(t, f.app.Config().StoreLoopConfig(first, domain.LoopConfig{
		Enabled: true, Active: true, StartFromBeginning: true,
		Segments: []domain.Segment{{
			Start: 10 * time.Second, End: 40 * time.Second,
			Crossfade: time.Second, LoopCount: 1, SkipToNext: true,
		}},
	}))

	require.NoError(t, f.playlist.PlayTrack(first))
	f.app.HandleTrackStarted(first)

	// The final iteration has nothing to skip to, so the looper hands the
	// track ending to the playlist layer right at the segment boundary. The
	// handoff stops the first track, whose cleanup re-enters the looper.
	f.clock.Advance(2 * time.Minute)
	assert.True(t, second.Playing())
	assert.False(t, first.Playing())
	assert.Equal(t, int64(1), f.app.Metrics().Snapshot().LoopIterations)
	assert.Equal(t, int64(1), f.app.Metrics().Snapshot().Crossfades)
}

func TestApplicationPlaylistStopTearsDown(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newAppFixture(t)
	track := f.playlist.AddTrack("theme", 0.8)
	require.NoError(t, f.app.Config().StoreLoopConfig(track, domain.LoopConfig{
		Enabled: true, Active: true, StartFromBeginning: true,
		Segments: []domain.Segment{{Start: 10 * time.Second, End: 40 * time.Second}},
	}))

	require.NoError(t, f.playlist.PlayTrack(track))
	f.app.HandleTrackStarted(track)
	require.True(t, f.app.Loops().IsLooping(track.ID()))

	f.app.HandlePlaylistStopped(f.playlist.ID())
	assert.False(t, f.app.Loops().IsLooping(track.ID()))
}
