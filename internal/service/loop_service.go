package service

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/fade"
	"github.com/lumeaudio/segue/internal/loop"
	"github.com/lumeaudio/segue/internal/ports"
	"github.com/lumeaudio/segue/internal/registry"
)

// scheduleStartDelay defers a looper's start slightly past the host engine's
// own playback-start bookkeeping.
const scheduleStartDelay = 50 * time.Millisecond

// LoopService is the lifecycle manager for per-track loopers: idempotent
// create/cancel, pause/resume, and the replicated user commands (break,
// disable, segment skip).
//
// User commands follow local-then-replicate: the authority client applies
// the effect, then broadcasts a sequenced command record; replicas replay it
// against their own looper. Stale or duplicate sequences are dropped.
//
// Thread-safety: all operations are thread-safe.
type LoopService struct {
	logger     *slog.Logger
	clock      ports.Clock
	bus        ports.EventBus
	fader      *fade.Engine
	source     ports.SoundSource
	registry   *registry.Registry
	config     *ConfigService
	authority  ports.Authority
	replicator ports.Replicator

	mu          sync.Mutex
	nextSeq     map[string]uint64
	lastApplied map[string]uint64
	trackEnding func(track ports.Track)

	recvSub    ports.Timer
	stoppedSub domain.SubscriptionID
}

// NewLoopService creates the lifecycle manager and hooks it into the
// replication channel and the host's track-stopped events.
func NewLoopService(
	logger *slog.Logger,
	clock ports.Clock,
	bus ports.EventBus,
	fader *fade.Engine,
	source ports.SoundSource,
	reg *registry.Registry,
	config *ConfigService,
	authority ports.Authority,
	replicator ports.Replicator,
) *LoopService {
	s := &LoopService{
		logger:      logger,
		clock:       clock,
		bus:         bus,
		fader:       fader,
		source:      source,
		registry:    reg,
		config:      config,
		authority:   authority,
		replicator:  replicator,
		nextSeq:     make(map[string]uint64),
		lastApplied: make(map[string]uint64),
	}

	s.recvSub = replicator.OnReceive(s.handleRemote)
	s.stoppedSub = bus.Subscribe(domain.EventTrackStopped, func(e domain.Event) {
		stopped := e.(domain.TrackStoppedEvent)
		s.registry.CleanupTrack(stopped.TrackID, false)
	})

	logger.Debug("loop service initialized")
	return s
}

// SetTrackEndingHandler wires the playlist-level transition invoked when a
// looper that owns its track's ending reaches it. Set once at composition.
func (s *LoopService) SetTrackEndingHandler(handler func(track ports.Track)) {
	s.mu.Lock()
	s.trackEnding = handler
	s.mu.Unlock()
}

// Schedule creates and starts a looper for the track. Idempotent: an
// existing looper is cancelled first. No-op when the track is not playing or
// its configuration does not call for looping.
//
// When the playlist-level crossfade is enabled, the looper takes ownership
// of the track's ending and the playlist's crossfade timer is cancelled;
// loopers and the crossfade scheduler are never both armed for one track.
func (s *LoopService) Schedule(track ports.Track) error {
	s.registry.CleanupTrack(track.ID(), false)

	if !track.Playing() {
		s.logger.Debug("track not playing, loop not scheduled", slog.String("track", track.ID()))
		return nil
	}

	cfg, err := s.config.LoopConfig(track)
	if err != nil || !cfg.ShouldLoop() {
		return nil
	}

	playlist := track.Playlist()
	segue, err := s.config.SegueConfig(playlist)
	if err != nil {
		segue = domain.SegueConfig{}
	}

	opts := loop.Options{PlaylistFadeOut: segue.FadeOut}
	if opts.PlaylistFadeOut <= 0 && segue.SilenceEnabled {
		opts.PlaylistFadeOut = segue.Silence
	}
	if segue.CrossfadeEnabled {
		opts.PlaylistCrossfade = segue.Crossfade
		s.registry.ClearCrossfadeTimer(playlist.ID())
		s.registry.SetPlayWaiter(playlist.ID(), nil)

		s.mu.Lock()
		handler := s.trackEnding
		s.mu.Unlock()
		if handler != nil {
			opts.OnTrackEnding = func() { handler(track) }
		}
	}

	l := loop.New(s.logger, s.clock, s.bus, s.fader, s.source, track, cfg, opts)
	s.registry.SetLooper(playlist.ID(), track.ID(), l)

	s.clock.AfterFunc(scheduleStartDelay, func() {
		if l.IsDestroyed() {
			return
		}
		if err := l.Start(); err != nil {
			s.logger.Warn("looper start failed",
				slog.String("track", track.ID()), slog.Any("error", err))
			s.registry.RemoveLooper(track.ID())
		}
	})

	s.logger.Debug("loop scheduled", slog.String("track", track.ID()),
		slog.Int("segments", len(cfg.Segments)))
	return nil
}

// Cancel destroys the track's looper, if any.
func (s *LoopService) Cancel(track ports.Track, allowFadeOut bool) {
	s.registry.CleanupTrack(track.ID(), allowFadeOut)
}

// Pause suspends the track's loop scheduling.
func (s *LoopService) Pause(track ports.Track) {
	if l, ok := s.activeLooper(track.ID()); ok {
		l.Pause()
	}
}

// Resume re-arms the track's loop scheduling after a pause.
func (s *LoopService) Resume(track ports.Track) {
	if l, ok := s.activeLooper(track.ID()); ok {
		l.Resume()
	}
}

// Break skips the track's current loop. Authority only; replicated.
func (s *LoopService) Break(track ports.Track) error {
	return s.command(track, domain.CommandBreak)
}

// Disable switches looping off for the track and fades it out. Authority
// only; replicated.
func (s *LoopService) Disable(track ports.Track) error {
	return s.command(track, domain.CommandDisable)
}

// SkipToNextSegment crossfades the track's loop into the following segment.
// Authority only; replicated.
func (s *LoopService) SkipToNextSegment(track ports.Track) error {
	return s.command(track, domain.CommandSegmentNext)
}

// SkipToPreviousSegment crossfades the track's loop into the preceding
// segment. Authority only; replicated.
func (s *LoopService) SkipToPreviousSegment(track ports.Track) error {
	return s.command(track, domain.CommandSegmentPrevious)
}

// IsLooping reports whether the track has a live looper.
func (s *LoopService) IsLooping(trackID string) bool {
	_, ok := s.registry.ActiveLooper(trackID)
	return ok
}

// ActiveSegment returns the segment the track's looper is currently looping.
func (s *LoopService) ActiveSegment(trackID string) (domain.Segment, bool) {
	l, ok := s.activeLooper(trackID)
	if !ok {
		return domain.Segment{}, false
	}
	return l.ActiveSegment()
}

// ActiveLooper returns the track's live looper handle.
func (s *LoopService) ActiveLooper(trackID string) (*loop.Looper, bool) {
	return s.activeLooper(trackID)
}

// Close detaches the service from the replication channel and the bus.
func (s *LoopService) Close() {
	if s.recvSub != nil {
		s.recvSub.Cancel()
	}
	s.bus.Unsubscribe(s.stoppedSub)
}

// command runs the local-then-replicate pattern for a user-initiated loop
// command.
func (s *LoopService) command(track ports.Track, kind domain.CommandKind) error {
	if !s.authority.IsAuthority() {
		return domain.ErrNotAuthority
	}
	if err := s.apply(track.ID(), kind); err != nil {
		return err
	}

	s.mu.Lock()
	s.nextSeq[track.ID()]++
	seq := s.nextSeq[track.ID()]
	// Record the sequence as applied so our own loopback is dropped.
	s.lastApplied[track.ID()] = seq
	s.mu.Unlock()

	payload, err := json.Marshal(domain.LoopCommand{
		Kind:     kind,
		TrackID:  track.ID(),
		Sequence: seq,
	})
	if err != nil {
		return err
	}
	if err := s.replicator.Broadcast(track.ID(), payload); err != nil {
		s.logger.Warn("loop command broadcast failed",
			slog.String("track", track.ID()), slog.Any("error", err))
	}
	return nil
}

// handleRemote replays a replicated command against the local looper.
// Out-of-order and already-seen sequences are dropped; that is expected
// network behavior, not an error.
func (s *LoopService) handleRemote(entityID string, payload []byte) {
	var cmd domain.LoopCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		s.logger.Warn("malformed loop command dropped",
			slog.String("entity", entityID), slog.Any("error", err))
		return
	}

	s.mu.Lock()
	if cmd.Sequence <= s.lastApplied[cmd.TrackID] {
		s.mu.Unlock()
		return
	}
	s.lastApplied[cmd.TrackID] = cmd.Sequence
	s.mu.Unlock()

	if err := s.apply(cmd.TrackID, cmd.Kind); err != nil {
		s.logger.Debug("replicated loop command had no effect",
			slog.String("track", cmd.TrackID), slog.String("kind", string(cmd.Kind)),
			slog.Any("error", err))
	}
}

// apply dispatches a command kind onto the track's live looper.
func (s *LoopService) apply(trackID string, kind domain.CommandKind) error {
	l, ok := s.activeLooper(trackID)
	if !ok {
		return domain.ErrNoActiveLooper
	}

	switch kind {
	case domain.CommandBreak:
		l.Break()
		return nil
	case domain.CommandDisable:
		l.Disable()
		return nil
	case domain.CommandSegmentNext:
		return l.SkipToNextSegment()
	case domain.CommandSegmentPrevious:
		return l.SkipToPreviousSegment()
	default:
		return domain.NewServiceError("LoopService", "apply", "unknown command kind", nil)
	}
}

func (s *LoopService) activeLooper(trackID string) (*loop.Looper, bool) {
	entry, ok := s.registry.ActiveLooper(trackID)
	if !ok {
		return nil, false
	}
	l, ok := entry.(*loop.Looper)
	return l, ok
}
