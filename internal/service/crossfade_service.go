package service

import (
	"log/slog"
	"sync"

	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/fade"
	"github.com/lumeaudio/segue/internal/ports"
	"github.com/lumeaudio/segue/internal/registry"
)

// CrossfadeService arms one timer per playlist that fires an automatic
// crossfade to the next track near the current track's natural end. The
// actual transition, CrossfadeToNext, is shared with manual skips and with
// loopers that own their track's ending.
//
// Thread-safety: all operations are thread-safe.
type CrossfadeService struct {
	logger   *slog.Logger
	clock    ports.Clock
	bus      ports.EventBus
	fader    *fade.Engine
	registry *registry.Registry
	config   *ConfigService
	shuffle  *ShuffleService
	silence  *SilenceService

	mu sync.Mutex
}

// NewCrossfadeService creates the playlist-level crossfade scheduler.
func NewCrossfadeService(
	logger *slog.Logger,
	clock ports.Clock,
	bus ports.EventBus,
	fader *fade.Engine,
	reg *registry.Registry,
	config *ConfigService,
	shuffle *ShuffleService,
	silence *SilenceService,
) *CrossfadeService {
	return &CrossfadeService{
		logger:   logger,
		clock:    clock,
		bus:      bus,
		fader:    fader,
		registry: reg,
		config:   config,
		shuffle:  shuffle,
		silence:  silence,
	}
}

// Arm schedules the end-of-track transition for the playlist's current
// track. When the track has not started playing yet, a one-shot waiter
// defers arming until the host reports it started. No-op when neither
// crossfade nor silence is configured, or when a looper owns the track's
// ending.
func (s *CrossfadeService) Arm(playlist ports.Playlist) error {
	segue, err := s.config.SegueConfig(playlist)
	if err != nil {
		return err
	}
	if !segue.CrossfadeEnabled && !segue.SilenceEnabled {
		return nil
	}

	track, ok := playlist.CurrentTrack()
	if !ok {
		return domain.ErrTrackNotPlaying
	}

	// Loopers and this scheduler are mutually exclusive authorities over a
	// track's ending.
	if _, looping := s.registry.ActiveLooper(track.ID()); looping {
		s.logger.Debug("looper owns the track ending, crossfade not armed",
			slog.String("track", track.ID()))
		return nil
	}

	if !track.Playing() || track.Sound() == nil {
		s.armOnPlay(playlist, track)
		return nil
	}
	return s.armTimer(playlist, track, segue)
}

// armOnPlay registers the play-waiter: a one-shot subscription that arms the
// timer once the host reports the track started.
func (s *CrossfadeService) armOnPlay(playlist ports.Playlist, track ports.Track) {
	var subID domain.SubscriptionID
	subID = s.bus.Subscribe(domain.EventTrackStarted, func(e domain.Event) {
		started := e.(domain.TrackStartedEvent)
		if started.TrackID != track.ID() {
			return
		}
		s.bus.Unsubscribe(subID)
		s.registry.SetPlayWaiter(playlist.ID(), nil)

		if err := s.Arm(playlist); err != nil {
			s.logger.Warn("deferred crossfade arming failed",
				slog.String("playlist", playlist.ID()), slog.Any("error", err))
		}
	})

	s.registry.SetPlayWaiter(playlist.ID(), ports.TimerFunc(func() {
		s.bus.Unsubscribe(subID)
	}))
	s.logger.Debug("crossfade arming deferred until playback starts",
		slog.String("track", track.ID()))
}

// armTimer schedules the transition on the track's own timeline, at its
// duration minus the configured crossfade (or at the very end for a silence
// gap).
func (s *CrossfadeService) armTimer(playlist ports.Playlist, track ports.Track, segue domain.SegueConfig) error {
	sound := track.Sound()
	duration, err := sound.Duration()
	if err != nil {
		return domain.NewSoundError("arm", track.ID(), err)
	}

	fireAt := duration
	if segue.CrossfadeEnabled {
		fireAt = duration - segue.Crossfade
	} else if segue.FadeOut > 0 {
		fireAt = duration - segue.FadeOut
	}

	timer := sound.Schedule(fireAt, func() {
		s.registry.ClearCrossfadeTimer(playlist.ID())
		s.fire(playlist, segue)
	})
	s.registry.SetCrossfadeTimer(playlist.ID(), timer)

	s.logger.Debug("end-of-track transition armed",
		slog.String("track", track.ID()), slog.Duration("at", fireAt))
	return nil
}

// fire runs the armed transition: a silent gap when configured, otherwise
// the crossfade.
func (s *CrossfadeService) fire(playlist ports.Playlist, segue domain.SegueConfig) {
	if segue.SilenceEnabled {
		if err := s.silence.Begin(playlist); err != nil {
			s.logger.Warn("silence gap failed", slog.Any("error", err))
		}
		return
	}
	if err := s.CrossfadeToNext(playlist); err != nil {
		s.logger.Warn("automatic crossfade failed", slog.Any("error", err))
	}
}

// Cancel disarms the playlist's transition timer and its play-waiter.
func (s *CrossfadeService) Cancel(playlist ports.Playlist) {
	s.registry.ClearCrossfadeTimer(playlist.ID())
	s.registry.SetPlayWaiter(playlist.ID(), nil)
}

// IsScheduled reports whether a transition timer is armed for the playlist.
func (s *CrossfadeService) IsScheduled(playlistID string) bool {
	return s.registry.IsCrossfadeScheduled(playlistID)
}

// CrossfadeToNext crossfades the playlist from its current track into the
// next one. This is the single transition path for the armed timer, manual
// skips, and looper-owned endings. No-op while another crossfade runs or a
// stop is unwinding.
func (s *CrossfadeService) CrossfadeToNext(playlist ports.Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry.IsCrossfading(playlist.ID()) || s.registry.IsStopping(playlist.ID()) {
		return nil
	}

	current, ok := playlist.CurrentTrack()
	if !ok {
		return domain.ErrTrackNotPlaying
	}
	next, ok := s.shuffle.NextTrack(playlist, current.ID())
	if !ok {
		s.logger.Debug("no next track, playlist ends naturally",
			slog.String("playlist", playlist.ID()))
		return nil
	}

	segue, err := s.config.SegueConfig(playlist)
	if err != nil {
		return err
	}

	// Detach the outgoing sound from the host handle so stopping the
	// outgoing track cannot clip the fade; this service owns the buffer
	// until the transition completes.
	outgoing := current.Sound()
	current.BindSound(nil)

	if err := playlist.PlayTrack(next); err != nil {
		current.BindSound(outgoing)
		return domain.NewServiceError("CrossfadeService", "crossfade", "next track failed to start", err)
	}
	incoming := next.Sound()

	s.registry.SetCrossfading(playlist.ID(), true)
	s.fader.Crossfade(outgoing, incoming, next.Volume(), segue.Crossfade)
	s.bus.Publish(domain.NewCrossfadeStartedEvent(playlist.ID(), current.ID(), next.ID(), segue.Crossfade))

	s.clock.AfterFunc(segue.Crossfade, func() {
		if outgoing != nil && !outgoing.Stopped() {
			_ = outgoing.Stop()
		}
		s.registry.SetCrossfading(playlist.ID(), false)
		s.bus.Publish(domain.NewCrossfadeCompletedEvent(playlist.ID(), current.ID(), next.ID(), segue.Crossfade))

		// Arm the transition for the track that just became current.
		if err := s.Arm(playlist); err != nil {
			s.logger.Warn("re-arming after crossfade failed", slog.Any("error", err))
		}
	})
	return nil
}
