package service

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/ports"
	"github.com/lumeaudio/segue/internal/registry"
)

// Silent WAV parameters for the generated gap asset.
const (
	silenceSampleRate = 44100
	silenceBitDepth   = 16
)

// SilenceService injects a silent gap between tracks: it stops the current
// track, inserts a placeholder gap track, waits the configured duration on a
// precise timer, and advances the playlist afterward.
//
// Thread-safety: all operations are thread-safe (state lives in the
// registry, which serializes access).
type SilenceService struct {
	logger   *slog.Logger
	clock    ports.Clock
	bus      ports.EventBus
	registry *registry.Registry
	config   *ConfigService
	assetDir string
}

// NewSilenceService creates the silence injector. Gap WAV assets are written
// under assetDir; an empty assetDir selects the system temp directory.
func NewSilenceService(
	logger *slog.Logger,
	clock ports.Clock,
	bus ports.EventBus,
	reg *registry.Registry,
	config *ConfigService,
	assetDir string,
) *SilenceService {
	if assetDir == "" {
		assetDir = os.TempDir()
	}
	return &SilenceService{
		logger:   logger,
		clock:    clock,
		bus:      bus,
		registry: reg,
		config:   config,
		assetDir: assetDir,
	}
}

// Begin starts a silent gap after the playlist's current track. At most one
// gap is active per playlist; beginning a new one cancels the previous.
func (s *SilenceService) Begin(playlist ports.Playlist) error {
	segue, err := s.config.SegueConfig(playlist)
	if err != nil {
		return err
	}
	if !segue.SilenceEnabled || segue.Silence <= 0 {
		return nil
	}

	current, ok := playlist.CurrentTrack()
	if !ok {
		return domain.ErrTrackNotPlaying
	}
	next, hasNext := nextInOrder(playlist, current.ID())

	assetPath, err := s.ensureGapAsset(segue.Silence)
	if err != nil {
		return domain.NewServiceError("SilenceService", "begin", "gap asset unavailable", err)
	}

	gap, err := playlist.CreateGapTrack(current, "Silence", assetPath)
	if err != nil {
		return domain.NewServiceError("SilenceService", "begin", "gap track not created", err)
	}

	if err := playlist.StopTrack(current); err != nil {
		s.logger.Warn("stopping current track before silence failed", slog.Any("error", err))
	}

	state := &registry.SilenceState{
		GapTrackID:    gap.ID(),
		SourceTrackID: current.ID(),
	}
	state.Resolve = func(cancelled bool) {
		s.finish(playlist, gap, next, hasNext, cancelled)
	}
	state.Timer = s.clock.AfterFunc(segue.Silence, func() {
		st, ok := s.registry.Silence(playlist.ID())
		if !ok || st != state || st.Cancelled {
			return
		}
		st.Cancelled = true
		s.registry.ClearSilence(playlist.ID())
		state.Resolve(false)
	})
	s.registry.SetSilence(playlist.ID(), state)

	s.bus.Publish(domain.NewSilenceStartedEvent(playlist.ID(), gap.ID(), segue.Silence))
	s.logger.Debug("silence gap started",
		slog.String("playlist", playlist.ID()), slog.Duration("duration", segue.Silence))
	return nil
}

// Cancel resolves the playlist's active gap as cancelled, if any.
func (s *SilenceService) Cancel(playlist ports.Playlist) {
	s.registry.SetSilence(playlist.ID(), nil)
}

// IsActive reports whether a silent gap is in flight for the playlist.
func (s *SilenceService) IsActive(playlistID string) bool {
	return s.registry.IsSilenceActive(playlistID)
}

// finish removes the gap track and, unless cancelled, advances the playlist
// to the track that followed the source.
func (s *SilenceService) finish(playlist ports.Playlist, gap, next ports.Track, hasNext, cancelled bool) {
	if err := playlist.RemoveTrack(gap); err != nil {
		s.logger.Warn("gap track removal failed", slog.Any("error", err))
	}

	if !cancelled && hasNext {
		if err := playlist.PlayTrack(next); err != nil {
			s.logger.Warn("advancing after silence failed", slog.Any("error", err))
		}
	}

	s.bus.Publish(domain.NewSilenceEndedEvent(playlist.ID(), cancelled))
	s.logger.Debug("silence gap ended",
		slog.String("playlist", playlist.ID()), slog.Bool("cancelled", cancelled))
}

// ensureGapAsset writes the silent WAV for the given duration if it is not
// already on disk, and returns its path.
func (s *SilenceService) ensureGapAsset(d time.Duration) (string, error) {
	name := "segue-silence-" + d.String() + ".wav"
	path := filepath.Join(s.assetDir, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := WriteSilenceWAV(path, d); err != nil {
		return "", err
	}
	return path, nil
}

// WriteSilenceWAV writes a 44.1kHz 16-bit mono WAV of silence spanning the
// given duration.
func WriteSilenceWAV(path string, d time.Duration) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	enc := wav.NewEncoder(f, silenceSampleRate, silenceBitDepth, 1, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  silenceSampleRate,
		},
		SourceBitDepth: silenceBitDepth,
		Data:           make([]int, int(float64(silenceSampleRate)*d.Seconds())),
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// nextInOrder returns the track following the given one in playback order.
func nextInOrder(playlist ports.Playlist, trackID string) (ports.Track, bool) {
	tracks := playlist.Tracks()
	for i, t := range tracks {
		if t.ID() == trackID && i+1 < len(tracks) {
			return tracks[i+1], true
		}
	}
	return nil, false
}
