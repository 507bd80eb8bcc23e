package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeaudio/segue/internal/adapter/audio/mock"
	clockadapter "github.com/lumeaudio/segue/internal/adapter/clock"
	"github.com/lumeaudio/segue/internal/adapter/eventbus"
	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/testutil"
)

type hostFixture struct {
	clock    *clockadapter.Virtual
	bus      *eventbus.SyncEventBus
	source   *mock.Engine
	host     *Host
	playlist *Playlist
	events   *eventRecorder
}

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

func newHostFixture(t *testing.T) *hostFixture {
	t.Helper()

	clk := clockadapter.NewVirtual(time.Unix(0, 0))
	bus := eventbus.NewSyncEventBus()
	source := mock.NewEngine(clk)
	source.SetDefaultDuration(time.Minute)
	host := NewHost(bus, source)

	events := &eventRecorder{}
	bus.SubscribeAll(events.record)

	return &hostFixture{
		clock:    clk,
		bus:      bus,
		source:   source,
		host:     host,
		playlist: host.NewPlaylist("set"),
		events:   events,
	}
}

func TestHostAuthorityToggle(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newHostFixture(t)
	assert.True(t, f.host.IsAuthority())

	f.host.SetAuthority(false)
	assert.False(t, f.host.IsAuthority())

	f.host.SetAuthority(true)
	assert.True(t, f.host.IsAuthority())
}

func TestHostBroadcastReachesEveryHandler(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newHostFixture(t)

	type delivery struct {
		entityID string
		payload  string
	}
	var first, second []delivery
	f.host.OnReceive(func(entityID string, payload []byte) {
		first = append(first, delivery{entityID, string(payload)})
	})
	f.host.OnReceive(func(entityID string, payload []byte) {
		second = append(second, delivery{entityID, string(payload)})
	})

	require.NoError(t, f.host.Broadcast("track-1", []byte("cmd")))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, delivery{"track-1", "cmd"}, first[0])
	assert.Equal(t, delivery{"track-1", "cmd"}, second[0])
}

func TestHostOnReceiveCancelUnregisters(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newHostFixture(t)

	calls := 0
	sub := f.host.OnReceive(func(string, []byte) { calls++ })

	require.NoError(t, f.host.Broadcast("track-1", []byte("one")))
	sub.Cancel()
	require.NoError(t, f.host.Broadcast("track-1", []byte("two")))

	assert.Equal(t, 1, calls)
}

func TestHostPlaylistLookup(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newHostFixture(t)

	found, ok := f.host.Playlist(f.playlist.ID())
	require.True(t, ok)
	assert.Same(t, f.playlist, found)

	_, ok = f.host.Playlist("missing")
	assert.False(t, ok)
}
