package service

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumeaudio/segue/internal/adapter/audio/mock"
	clockadapter "github.com/lumeaudio/segue/internal/adapter/clock"
	"github.com/lumeaudio/segue/internal/adapter/eventbus"
	"github.com/lumeaudio/segue/internal/adapter/host/memory"
	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/fade"
	"github.com/lumeaudio/segue/internal/logger"
	"github.com/lumeaudio/segue/internal/ports"
	"github.com/lumeaudio/segue/internal/registry"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) record(e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) ofType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Event
	for _, e := range r.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// serviceFixture wires the full in-memory stack the services run against:
// virtual clock, synchronous bus, mock sound source, and one host playlist.
type serviceFixture struct {
	clock    *clockadapter.Virtual
	bus      ports.EventBus
	source   *mock.Engine
	host     *memory.Host
	playlist *memory.Playlist
	registry *registry.Registry
	config   *ConfigService
	fader    *fade.Engine
	events   *eventRecorder
}

func newServiceFixture(t *testing.T, trackCount int) *serviceFixture {
	t.Helper()

	clk := clockadapter.NewVirtual(time.Unix(0, 0))
	bus := eventbus.NewSyncEventBus()
	source := mock.NewEngine(clk)
	source.SetDefaultDuration(3 * time.Minute)

	host := memory.NewHost(bus, source)
	playlist := host.NewPlaylist("set")
	for i := 1; i <= trackCount; i++ {
		playlist.AddTrack(fmt.Sprintf("track-%d", i), 0.8)
	}

	events := &eventRecorder{}
	bus.SubscribeAll(events.record)

	return &serviceFixture{
		clock:    clk,
		bus:      bus,
		source:   source,
		host:     host,
		playlist: playlist,
		registry: registry.New(logger.NewTestLogger(), clk, bus),
		config:   NewConfigService(logger.NewTestLogger()),
		fader:    fade.NewEngine(logger.NewTestLogger(), clk),
		events:   events,
	}
}

func (f *serviceFixture) track(i int) *memory.Track {
	return f.playlist.Tracks()[i].(*memory.Track)
}

func (f *serviceFixture) newLoopService() *LoopService {
	return NewLoopService(
		logger.NewTestLogger(), f.clock, f.bus, f.fader, f.source,
		f.registry, f.config, f.host, f.host,
	)
}

func (f *serviceFixture) newShuffleService(seed int64) *ShuffleService {
	return NewShuffleService(
		logger.NewTestLogger(), f.registry, f.config,
		newTestRand(seed),
	)
}

func (f *serviceFixture) newSilenceService(t *testing.T) *SilenceService {
	t.Helper()
	return NewSilenceService(
		logger.NewTestLogger(), f.clock, f.bus, f.registry, f.config, t.TempDir(),
	)
}

func (f *serviceFixture) newCrossfadeService(shuffle *ShuffleService, silence *SilenceService) *CrossfadeService {
	return NewCrossfadeService(
		logger.NewTestLogger(), f.clock, f.bus, f.fader,
		f.registry, f.config, shuffle, silence,
	)
}

func (f *serviceFixture) storeSegue(t *testing.T, cfg domain.SegueConfig) {
	t.Helper()
	require.NoError(t, f.config.StoreSegueConfig(f.playlist, cfg))
}

func (f *serviceFixture) storeLoop(t *testing.T, track ports.Track, cfg domain.LoopConfig) {
	t.Helper()
	require.NoError(t, f.config.StoreLoopConfig(track, cfg))
}

// newTestRand pins the random source so shuffle draws are reproducible.
func newTestRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
