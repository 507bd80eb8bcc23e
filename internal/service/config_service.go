// Package service provides the orchestration services of the segue layer:
// loop lifecycle, playlist crossfades, silence injection, shuffle ordering,
// and flag validation.
package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/ports"
)

// Flag keys under which configuration lives on host documents.
const (
	// FlagKeyLoop holds a track's loop configuration.
	FlagKeyLoop = "segue.loop"

	// FlagKeyTransitions holds a playlist's crossfade/silence/shuffle
	// configuration.
	FlagKeyTransitions = "segue.transitions"
)

// loopFlag is the wire shape of the loop configuration flag.
type loopFlag struct {
	Enabled            bool          `json:"enabled"`
	Active             bool          `json:"active"`
	StartFromBeginning bool          `json:"startFromBeginning"`
	Segments           []segmentFlag `json:"segments"`
}

type segmentFlag struct {
	StartSec    float64 `json:"startSec"`
	EndSec      float64 `json:"endSec"`
	CrossfadeMs int     `json:"crossfadeMs"`
	LoopCount   int     `json:"loopCount"`
	SkipToNext  bool    `json:"skipToNext"`
}

// transitionsFlag is the wire shape of the playlist transitions flag.
type transitionsFlag struct {
	Crossfade durationToggle `json:"crossfade"`
	FadeOutMs int            `json:"fadeOutMs"`
	Silence   durationToggle `json:"silence"`
	Shuffle   string         `json:"shuffle"`
}

type durationToggle struct {
	Enabled    bool `json:"enabled"`
	DurationMs int  `json:"durationMs"`
}

type cachedConfig[T any] struct {
	raw    json.RawMessage
	config T
}

// ConfigService validates and caches the opaque flag payloads stored on host
// documents, producing the typed configuration structs the core consumes.
// Invalid or malformed payloads degrade to the zero configuration ("no
// looping", no transitions) with an error for the caller to log.
//
// Thread-safety: all operations are thread-safe.
type ConfigService struct {
	logger *slog.Logger

	mu         sync.Mutex
	loopCache  map[string]cachedConfig[domain.LoopConfig]
	segueCache map[string]cachedConfig[domain.SegueConfig]
}

// NewConfigService creates a new flag-validation service.
func NewConfigService(logger *slog.Logger) *ConfigService {
	return &ConfigService{
		logger:     logger,
		loopCache:  make(map[string]cachedConfig[domain.LoopConfig]),
		segueCache: make(map[string]cachedConfig[domain.SegueConfig]),
	}
}

// LoopConfig reads and validates the track's loop configuration. A missing
// flag yields the zero configuration and no error; a malformed or invalid
// flag yields the zero configuration and the validation error.
func (s *ConfigService) LoopConfig(track ports.Track) (domain.LoopConfig, error) {
	raw, ok := track.Flag(FlagKeyLoop)
	if !ok {
		return domain.LoopConfig{}, nil
	}

	s.mu.Lock()
	if cached, hit := s.loopCache[track.ID()]; hit && bytes.Equal(cached.raw, raw) {
		s.mu.Unlock()
		return cached.config, nil
	}
	s.mu.Unlock()

	config, err := parseLoopFlag(raw)
	if err != nil {
		s.logger.Warn("invalid loop configuration, looping disabled",
			slog.String("track", track.ID()), slog.Any("error", err))
		return domain.LoopConfig{}, err
	}

	s.mu.Lock()
	s.loopCache[track.ID()] = cachedConfig[domain.LoopConfig]{raw: raw, config: config}
	s.mu.Unlock()
	return config, nil
}

// SegueConfig reads and validates the playlist's transitions configuration.
// Missing flag yields the zero configuration and no error.
func (s *ConfigService) SegueConfig(playlist ports.Playlist) (domain.SegueConfig, error) {
	raw, ok := playlist.Flag(FlagKeyTransitions)
	if !ok {
		return domain.SegueConfig{}, nil
	}

	s.mu.Lock()
	if cached, hit := s.segueCache[playlist.ID()]; hit && bytes.Equal(cached.raw, raw) {
		s.mu.Unlock()
		return cached.config, nil
	}
	s.mu.Unlock()

	config, err := parseTransitionsFlag(raw)
	if err != nil {
		s.logger.Warn("invalid transitions configuration, transitions disabled",
			slog.String("playlist", playlist.ID()), slog.Any("error", err))
		return domain.SegueConfig{}, err
	}

	s.mu.Lock()
	s.segueCache[playlist.ID()] = cachedConfig[domain.SegueConfig]{raw: raw, config: config}
	s.mu.Unlock()
	return config, nil
}

// StoreLoopConfig serializes and stores a loop configuration on the track.
func (s *ConfigService) StoreLoopConfig(track ports.Track, config domain.LoopConfig) error {
	flag := loopFlag{
		Enabled:            config.Enabled,
		Active:             config.Active,
		StartFromBeginning: config.StartFromBeginning,
		Segments:           make([]segmentFlag, 0, len(config.Segments)),
	}
	for _, seg := range config.Segments {
		flag.Segments = append(flag.Segments, segmentFlag{
			StartSec:    seg.Start.Seconds(),
			EndSec:      seg.End.Seconds(),
			CrossfadeMs: int(seg.Crossfade / time.Millisecond),
			LoopCount:   seg.LoopCount,
			SkipToNext:  seg.SkipToNext,
		})
	}

	payload, err := json.Marshal(flag)
	if err != nil {
		return err
	}
	return track.SetFlag(FlagKeyLoop, payload)
}

// StoreSegueConfig serializes and stores a transitions configuration on the
// playlist.
func (s *ConfigService) StoreSegueConfig(playlist ports.Playlist, config domain.SegueConfig) error {
	payload, err := json.Marshal(transitionsFlag{
		Crossfade: durationToggle{
			Enabled:    config.CrossfadeEnabled,
			DurationMs: int(config.Crossfade / time.Millisecond),
		},
		FadeOutMs: int(config.FadeOut / time.Millisecond),
		Silence: durationToggle{
			Enabled:    config.SilenceEnabled,
			DurationMs: int(config.Silence / time.Millisecond),
		},
		Shuffle: config.Shuffle.String(),
	})
	if err != nil {
		return err
	}
	return playlist.SetFlag(FlagKeyTransitions, payload)
}

// InvalidateTrack drops the cached configuration for a track.
func (s *ConfigService) InvalidateTrack(trackID string) {
	s.mu.Lock()
	delete(s.loopCache, trackID)
	s.mu.Unlock()
}

// InvalidatePlaylist drops the cached configuration for a playlist.
func (s *ConfigService) InvalidatePlaylist(playlistID string) {
	s.mu.Lock()
	delete(s.segueCache, playlistID)
	s.mu.Unlock()
}

// parseLoopFlag decodes and validates the loop flag payload. Segments come
// out sorted by start time.
func parseLoopFlag(raw json.RawMessage) (domain.LoopConfig, error) {
	var flag loopFlag
	if err := json.Unmarshal(raw, &flag); err != nil {
		return domain.LoopConfig{}, domain.NewValidationError(FlagKeyLoop, string(raw), "malformed payload")
	}

	segments := make([]domain.Segment, 0, len(flag.Segments))
	for i, sf := range flag.Segments {
		field := fmt.Sprintf("segments[%d]", i)
		if sf.StartSec < 0 {
			return domain.LoopConfig{}, domain.NewValidationError(field+".startSec", sf.StartSec, "must not be negative")
		}
		if sf.EndSec < sf.StartSec {
			return domain.LoopConfig{}, domain.NewValidationError(field+".endSec", sf.EndSec, "must not precede startSec")
		}
		if sf.CrossfadeMs < 0 {
			return domain.LoopConfig{}, domain.NewValidationError(field+".crossfadeMs", sf.CrossfadeMs, "must not be negative")
		}
		if float64(sf.CrossfadeMs) > (sf.EndSec-sf.StartSec)*1000 {
			return domain.LoopConfig{}, domain.NewValidationError(field+".crossfadeMs", sf.CrossfadeMs, "must not exceed the segment duration")
		}
		if sf.LoopCount < 0 {
			return domain.LoopConfig{}, domain.NewValidationError(field+".loopCount", sf.LoopCount, "must not be negative")
		}
		segments = append(segments, domain.Segment{
			Start:      secondsToDuration(sf.StartSec),
			End:        secondsToDuration(sf.EndSec),
			Crossfade:  time.Duration(sf.CrossfadeMs) * time.Millisecond,
			LoopCount:  sf.LoopCount,
			SkipToNext: sf.SkipToNext,
		})
	}

	sort.Slice(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
	for i := 1; i < len(segments); i++ {
		if segments[i].Start < segments[i-1].End {
			return domain.LoopConfig{}, domain.NewValidationError(
				fmt.Sprintf("segments[%d].startSec", i), segments[i].Start.Seconds(), "overlaps the previous segment")
		}
	}

	return domain.LoopConfig{
		Enabled:            flag.Enabled,
		Active:             flag.Active,
		StartFromBeginning: flag.StartFromBeginning,
		Segments:           segments,
	}, nil
}

// parseTransitionsFlag decodes and validates the transitions flag payload.
func parseTransitionsFlag(raw json.RawMessage) (domain.SegueConfig, error) {
	var flag transitionsFlag
	if err := json.Unmarshal(raw, &flag); err != nil {
		return domain.SegueConfig{}, domain.NewValidationError(FlagKeyTransitions, string(raw), "malformed payload")
	}

	if flag.Crossfade.DurationMs < 0 {
		return domain.SegueConfig{}, domain.NewValidationError("crossfade.durationMs", flag.Crossfade.DurationMs, "must not be negative")
	}
	if flag.FadeOutMs < 0 {
		return domain.SegueConfig{}, domain.NewValidationError("fadeOutMs", flag.FadeOutMs, "must not be negative")
	}
	if flag.Silence.DurationMs < 0 {
		return domain.SegueConfig{}, domain.NewValidationError("silence.durationMs", flag.Silence.DurationMs, "must not be negative")
	}

	return domain.SegueConfig{
		CrossfadeEnabled: flag.Crossfade.Enabled,
		Crossfade:        time.Duration(flag.Crossfade.DurationMs) * time.Millisecond,
		FadeOut:          time.Duration(flag.FadeOutMs) * time.Millisecond,
		SilenceEnabled:   flag.Silence.Enabled,
		Silence:          time.Duration(flag.Silence.DurationMs) * time.Millisecond,
		Shuffle:          domain.ParseShuffleMode(flag.Shuffle),
	}, nil
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
