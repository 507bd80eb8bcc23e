package service

import (
	"log/slog"
	"math/rand"

	"github.com/samber/lo"

	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/ports"
	"github.com/lumeaudio/segue/internal/registry"
)

// ShuffleService implements the alternative track-ordering algorithms
// layered under the host's shuffle mode: exhaustive (no repeats until every
// track played), weighted random (passed-over tracks grow more likely), and
// round-robin from a random start.
//
// Thread-safety: all operations are thread-safe (per-playlist state lives in
// the registry; the random source is guarded here).
type ShuffleService struct {
	logger   *slog.Logger
	registry *registry.Registry
	config   *ConfigService
	rng      *rand.Rand
}

// NewShuffleService creates the shuffle engine. The random source is
// injected so tests can pin it.
func NewShuffleService(logger *slog.Logger, reg *registry.Registry, config *ConfigService, rng *rand.Rand) *ShuffleService {
	return &ShuffleService{
		logger:   logger,
		registry: reg,
		config:   config,
		rng:      rng,
	}
}

// SetMode selects the playlist's shuffle algorithm, persists it in the
// transitions flag, and resets any accumulated ordering state.
func (s *ShuffleService) SetMode(playlist ports.Playlist, mode domain.ShuffleMode) error {
	segue, err := s.config.SegueConfig(playlist)
	if err != nil {
		segue = domain.SegueConfig{}
	}
	segue.Shuffle = mode
	if err := s.config.StoreSegueConfig(playlist, segue); err != nil {
		return err
	}

	s.registry.ClearShuffle(playlist.ID())
	s.registry.Shuffle(playlist.ID()).Mode = mode
	s.logger.Debug("shuffle mode set",
		slog.String("playlist", playlist.ID()), slog.String("mode", mode.String()))
	return nil
}

// Mode returns the playlist's configured shuffle algorithm.
func (s *ShuffleService) Mode(playlist ports.Playlist) domain.ShuffleMode {
	segue, err := s.config.SegueConfig(playlist)
	if err != nil {
		return domain.ShuffleNone
	}
	return segue.Shuffle
}

// Reset drops the playlist's accumulated ordering state.
func (s *ShuffleService) Reset(playlistID string) {
	s.registry.ClearShuffle(playlistID)
}

// NextTrack picks the track to play after the given one, honoring the
// playlist's shuffle mode. The second return is false when nothing should
// follow (sequential play past the last track).
func (s *ShuffleService) NextTrack(playlist ports.Playlist, currentID string) (ports.Track, bool) {
	tracks := playlist.Tracks()
	if len(tracks) == 0 {
		return nil, false
	}

	switch s.Mode(playlist) {
	case domain.ShuffleExhaustive:
		return s.nextExhaustive(playlist, tracks, currentID)
	case domain.ShuffleWeighted:
		return s.nextWeighted(playlist, tracks, currentID)
	case domain.ShuffleRoundRobin:
		return s.nextRoundRobin(playlist, tracks, currentID)
	default:
		return s.nextSequential(tracks, currentID)
	}
}

// nextSequential is the host's own ordering: the following track, or nothing
// past the end.
func (s *ShuffleService) nextSequential(tracks []ports.Track, currentID string) (ports.Track, bool) {
	for i, t := range tracks {
		if t.ID() == currentID && i+1 < len(tracks) {
			return tracks[i+1], true
		}
	}
	return nil, false
}

// nextExhaustive draws without replacement until every track has played,
// then refills the pool.
func (s *ShuffleService) nextExhaustive(playlist ports.Playlist, tracks []ports.Track, currentID string) (ports.Track, bool) {
	state := s.registry.Shuffle(playlist.ID())

	// Drop ids for tracks no longer in the playlist.
	ids := lo.Map(tracks, func(t ports.Track, _ int) string { return t.ID() })
	state.Remaining = lo.Intersect(state.Remaining, ids)

	if len(state.Remaining) == 0 {
		state.Remaining = lo.Without(ids, currentID)
	}
	if len(state.Remaining) == 0 {
		return nil, false
	}

	idx := s.rng.Intn(len(state.Remaining))
	chosen := state.Remaining[idx]
	state.Remaining = append(state.Remaining[:idx], state.Remaining[idx+1:]...)
	return playlist.Track(chosen)
}

// nextWeighted draws randomly with weights that grow each time a track is
// passed over, keeping long-run play counts near uniform.
func (s *ShuffleService) nextWeighted(playlist ports.Playlist, tracks []ports.Track, currentID string) (ports.Track, bool) {
	state := s.registry.Shuffle(playlist.ID())
	candidates := lo.Filter(tracks, func(t ports.Track, _ int) bool { return t.ID() != currentID })
	if len(candidates) == 0 {
		return nil, false
	}

	total := 0
	for _, t := range candidates {
		total += 1 + state.Misses[t.ID()]
	}

	draw := s.rng.Intn(total)
	var chosen ports.Track
	for _, t := range candidates {
		draw -= 1 + state.Misses[t.ID()]
		if draw < 0 {
			chosen = t
			break
		}
	}

	for _, t := range candidates {
		if t.ID() == chosen.ID() {
			delete(state.Misses, t.ID())
		} else {
			state.Misses[t.ID()]++
		}
	}
	return chosen, true
}

// nextRoundRobin cycles the playlist in fixed order from a random start.
func (s *ShuffleService) nextRoundRobin(playlist ports.Playlist, tracks []ports.Track, currentID string) (ports.Track, bool) {
	state := s.registry.Shuffle(playlist.ID())

	if state.Cursor == 0 && state.Mode != domain.ShuffleRoundRobin {
		state.Mode = domain.ShuffleRoundRobin
		state.Cursor = s.rng.Intn(len(tracks))
	}

	// Continue from the current track's slot when the host moved playback
	// underneath us.
	if idx := lo.IndexOf(lo.Map(tracks, func(t ports.Track, _ int) string { return t.ID() }), currentID); idx >= 0 {
		state.Cursor = idx
	}

	state.Cursor = (state.Cursor + 1) % len(tracks)
	return tracks[state.Cursor], true
}
