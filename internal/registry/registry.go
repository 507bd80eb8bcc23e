// Package registry is the process-wide store of ephemeral playback state:
// active loopers, crossfade timers, silence-gap state, debounce flags. No
// persistence; entries are removed eagerly on every destroy and cleanup path.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/ports"
)

// stateChangeDebounce coalesces bursts of registry mutations into one
// StateChanged notification per playlist.
const stateChangeDebounce = 50 * time.Millisecond

// Looper is the registry's view of an active loop instance.
type Looper interface {
	Destroy(allowFadeOut bool)
	IsDestroyed() bool
	TrackID() string
}

// SilenceState tracks one in-flight silent gap for a playlist.
type SilenceState struct {
	// Timer fires when the gap elapses.
	Timer ports.Timer

	// GapTrackID is the placeholder track inserted for the gap.
	GapTrackID string

	// SourceTrackID is the track that ended before the gap.
	SourceTrackID string

	// Cancelled marks the gap as torn down; its completion handler must
	// become a no-op.
	Cancelled bool

	// Resolve finishes the gap. Called exactly once, with cancelled=true
	// when the gap was torn down before elapsing.
	Resolve func(cancelled bool)
}

// ShuffleState is the per-playlist bookkeeping for the alternative shuffle
// algorithms.
type ShuffleState struct {
	Mode domain.ShuffleMode

	// Remaining is the without-replacement pool for exhaustive shuffle.
	Remaining []string

	// Misses counts how often each track was passed over, for weighted
	// shuffle.
	Misses map[string]int

	// Cursor is the round-robin position.
	Cursor int
}

type looperEntry struct {
	playlistID string
	looper     Looper
}

// playlistState groups every per-playlist ephemeral entry.
type playlistState struct {
	crossfadeTimer ports.Timer
	playWaiter     ports.Timer
	endFadeTimer   ports.Timer
	silence        *SilenceState
	shuffle        *ShuffleState
	crossfading    bool
	stopping       bool
}

func (s *playlistState) empty() bool {
	return s.crossfadeTimer == nil && s.playWaiter == nil && s.endFadeTimer == nil &&
		s.silence == nil && s.shuffle == nil && !s.crossfading && !s.stopping
}

// Registry is the runtime-state store.
//
// Thread-safety: this implementation is thread-safe. Cleanup destroys
// loopers outside the registry lock, because teardown publishes events whose
// handlers may call back into the registry.
type Registry struct {
	logger *slog.Logger
	clock  ports.Clock
	bus    ports.EventBus

	mu        sync.Mutex
	loopers   map[string]looperEntry
	playlists map[string]*playlistState
	debounce  map[string]ports.Timer
}

// New creates an empty registry.
func New(logger *slog.Logger, clock ports.Clock, bus ports.EventBus) *Registry {
	return &Registry{
		logger:    logger,
		clock:     clock,
		bus:       bus,
		loopers:   make(map[string]looperEntry),
		playlists: make(map[string]*playlistState),
		debounce:  make(map[string]ports.Timer),
	}
}

// SetLooper records the active looper for a track, replacing any previous
// entry. The caller is responsible for destroying a replaced looper first
// (cancel-before-create).
func (r *Registry) SetLooper(playlistID, trackID string, l Looper) {
	r.mu.Lock()
	r.loopers[trackID] = looperEntry{playlistID: playlistID, looper: l}
	r.notifyLocked(playlistID)
	r.mu.Unlock()
}

// ActiveLooper returns the non-destroyed looper for a track, if any. A
// destroyed entry is removed on sight, keeping the at-most-one-live-looper
// invariant observable.
func (r *Registry) ActiveLooper(trackID string) (Looper, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.loopers[trackID]
	if !ok {
		return nil, false
	}
	if entry.looper.IsDestroyed() {
		delete(r.loopers, trackID)
		return nil, false
	}
	return entry.looper, true
}

// RemoveLooper drops the registry entry for a track without destroying it.
func (r *Registry) RemoveLooper(trackID string) {
	r.mu.Lock()
	if entry, ok := r.loopers[trackID]; ok {
		delete(r.loopers, trackID)
		r.notifyLocked(entry.playlistID)
	}
	r.mu.Unlock()
}

// LoopersForPlaylist returns the registered loopers for a playlist's tracks.
func (r *Registry) LoopersForPlaylist(playlistID string) []Looper {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := lo.PickBy(r.loopers, func(_ string, e looperEntry) bool {
		return e.playlistID == playlistID
	})
	return lo.Map(lo.Values(entries), func(e looperEntry, _ int) Looper {
		return e.looper
	})
}

// SetCrossfadeTimer stores the playlist's armed crossfade timer, cancelling
// any previous one.
func (r *Registry) SetCrossfadeTimer(playlistID string, t ports.Timer) {
	r.mu.Lock()
	s := r.stateLocked(playlistID)
	if s.crossfadeTimer != nil {
		s.crossfadeTimer.Cancel()
	}
	s.crossfadeTimer = t
	r.notifyLocked(playlistID)
	r.pruneLocked(playlistID)
	r.mu.Unlock()
}

// ClearCrossfadeTimer cancels and drops the playlist's crossfade timer.
func (r *Registry) ClearCrossfadeTimer(playlistID string) {
	r.SetCrossfadeTimer(playlistID, nil)
}

// IsCrossfadeScheduled reports whether a crossfade timer is armed.
func (r *Registry) IsCrossfadeScheduled(playlistID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.playlists[playlistID]
	return ok && s.crossfadeTimer != nil
}

// SetPlayWaiter stores the one-shot "track started" listener used to defer
// arming a timer until playback truly begins. Replaces and cancels any
// previous waiter.
func (r *Registry) SetPlayWaiter(playlistID string, t ports.Timer) {
	r.mu.Lock()
	s := r.stateLocked(playlistID)
	if s.playWaiter != nil {
		s.playWaiter.Cancel()
	}
	s.playWaiter = t
	r.pruneLocked(playlistID)
	r.mu.Unlock()
}

// SetEndFadeTimer stores the end-of-track fade timer, cancelling any
// previous one.
func (r *Registry) SetEndFadeTimer(playlistID string, t ports.Timer) {
	r.mu.Lock()
	s := r.stateLocked(playlistID)
	if s.endFadeTimer != nil {
		s.endFadeTimer.Cancel()
	}
	s.endFadeTimer = t
	r.pruneLocked(playlistID)
	r.mu.Unlock()
}

// SetSilence records the playlist's active silent gap. At most one gap is
// active per playlist; a previous one is resolved as cancelled first.
func (r *Registry) SetSilence(playlistID string, s *SilenceState) {
	r.mu.Lock()
	state := r.stateLocked(playlistID)
	prev := state.silence
	state.silence = s
	r.notifyLocked(playlistID)
	r.mu.Unlock()

	if prev != nil {
		resolveSilence(prev)
	}
}

// Silence returns the playlist's active silent gap, if any.
func (r *Registry) Silence(playlistID string) (*SilenceState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.playlists[playlistID]
	if !ok || s.silence == nil {
		return nil, false
	}
	return s.silence, true
}

// ClearSilence drops the playlist's silence entry without resolving it. The
// injector calls this from its own completion path.
func (r *Registry) ClearSilence(playlistID string) {
	r.mu.Lock()
	if s, ok := r.playlists[playlistID]; ok {
		s.silence = nil
		r.notifyLocked(playlistID)
		r.pruneLocked(playlistID)
	}
	r.mu.Unlock()
}

// IsSilenceActive reports whether a silent gap is in flight.
func (r *Registry) IsSilenceActive(playlistID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.playlists[playlistID]
	return ok && s.silence != nil
}

// SetCrossfading flips the playlist's "a crossfade is running now" flag.
func (r *Registry) SetCrossfading(playlistID string, crossfading bool) {
	r.mu.Lock()
	r.stateLocked(playlistID).crossfading = crossfading
	r.notifyLocked(playlistID)
	r.pruneLocked(playlistID)
	r.mu.Unlock()
}

// IsCrossfading reports whether a playlist-level crossfade is running.
func (r *Registry) IsCrossfading(playlistID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.playlists[playlistID]
	return ok && s.crossfading
}

// SetStopping flips the playlist's "stop in progress" flag, which suppresses
// automatic advancement while a stop unwinds.
func (r *Registry) SetStopping(playlistID string, stopping bool) {
	r.mu.Lock()
	r.stateLocked(playlistID).stopping = stopping
	r.pruneLocked(playlistID)
	r.mu.Unlock()
}

// IsStopping reports whether a stop is unwinding for the playlist.
func (r *Registry) IsStopping(playlistID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.playlists[playlistID]
	return ok && s.stopping
}

// Shuffle returns the playlist's shuffle state, creating it on first use.
func (r *Registry) Shuffle(playlistID string) *ShuffleState {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stateLocked(playlistID)
	if s.shuffle == nil {
		s.shuffle = &ShuffleState{Misses: make(map[string]int)}
	}
	return s.shuffle
}

// ClearShuffle drops the playlist's shuffle state.
func (r *Registry) ClearShuffle(playlistID string) {
	r.mu.Lock()
	if s, ok := r.playlists[playlistID]; ok {
		s.shuffle = nil
		r.pruneLocked(playlistID)
	}
	r.mu.Unlock()
}

// CleanupTrack destroys and removes the looper for one track, if present.
func (r *Registry) CleanupTrack(trackID string, allowFadeOut bool) {
	r.mu.Lock()
	entry, ok := r.loopers[trackID]
	if ok {
		delete(r.loopers, trackID)
		r.notifyLocked(entry.playlistID)
	}
	r.mu.Unlock()

	if ok {
		entry.looper.Destroy(allowFadeOut)
	}
}

// CleanupPlaylist tears down every ephemeral entry for a playlist, in fixed
// order: the crossfade timer and its play-waiter first, then the silent gap
// (resolved as cancelled so its completion handler no-ops), then the
// loopers. Loopers may depend on crossfade and silence state being settled,
// and resolving silence first ensures no looper races a silence-completion
// advance.
func (r *Registry) CleanupPlaylist(playlistID string) {
	r.mu.Lock()

	var silence *SilenceState
	if s, ok := r.playlists[playlistID]; ok {
		if s.crossfadeTimer != nil {
			s.crossfadeTimer.Cancel()
			s.crossfadeTimer = nil
		}
		if s.playWaiter != nil {
			s.playWaiter.Cancel()
			s.playWaiter = nil
		}
		if s.endFadeTimer != nil {
			s.endFadeTimer.Cancel()
			s.endFadeTimer = nil
		}
		silence = s.silence
		s.silence = nil
		s.crossfading = false
		s.stopping = false
	}

	var loopers []Looper
	for trackID, entry := range r.loopers {
		if entry.playlistID == playlistID {
			loopers = append(loopers, entry.looper)
			delete(r.loopers, trackID)
		}
	}

	delete(r.playlists, playlistID)
	if t, ok := r.debounce[playlistID]; ok {
		t.Cancel()
		delete(r.debounce, playlistID)
	}
	r.mu.Unlock()

	if silence != nil {
		resolveSilence(silence)
	}
	for _, l := range loopers {
		l.Destroy(false)
	}

	r.logger.Debug("playlist state cleaned up",
		slog.String("playlist", playlistID), slog.Int("loopers", len(loopers)))
	r.bus.Publish(domain.NewStateChangedEvent(playlistID))
}

// resolveSilence marks the gap cancelled, cancels its timer, and runs its
// resolver once.
func resolveSilence(s *SilenceState) {
	if s.Cancelled {
		return
	}
	s.Cancelled = true
	if s.Timer != nil {
		s.Timer.Cancel()
	}
	if s.Resolve != nil {
		s.Resolve(true)
	}
}

// pruneLocked drops a playlist bucket once every entry has cleared, so
// disposed entities do not accumulate state.
func (r *Registry) pruneLocked(playlistID string) {
	if s, ok := r.playlists[playlistID]; ok && s.empty() {
		delete(r.playlists, playlistID)
	}
}

// stateLocked returns the playlist's state bucket, creating it on first use.
func (r *Registry) stateLocked(playlistID string) *playlistState {
	s, ok := r.playlists[playlistID]
	if !ok {
		s = &playlistState{}
		r.playlists[playlistID] = s
	}
	return s
}

// notifyLocked schedules a debounced StateChanged event for the playlist.
// Mutations within the debounce window coalesce into one notification.
func (r *Registry) notifyLocked(playlistID string) {
	if _, pending := r.debounce[playlistID]; pending {
		return
	}
	r.debounce[playlistID] = r.clock.AfterFunc(stateChangeDebounce, func() {
		r.mu.Lock()
		delete(r.debounce, playlistID)
		r.mu.Unlock()
		r.bus.Publish(domain.NewStateChangedEvent(playlistID))
	})
}
