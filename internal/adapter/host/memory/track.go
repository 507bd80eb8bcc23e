package memory

import (
	"encoding/json"
	"sync"

	"github.com/lumeaudio/segue/internal/ports"
)

// Track is the in-memory track document.
type Track struct {
	playlist *Playlist
	id       string
	name     string
	path     string
	volume   float64

	mu      sync.RWMutex
	playing bool
	sound   ports.Sound
	flags   map[string][]byte
}

// ID returns the stable entity identifier.
func (t *Track) ID() string {
	return t.id
}

// Name returns the display name.
func (t *Track) Name() string {
	return t.name
}

// Path returns the backing asset path, if any.
func (t *Track) Path() string {
	return t.path
}

// Playlist returns the parent playlist.
func (t *Track) Playlist() ports.Playlist {
	return t.playlist
}

// Playing reports whether the host considers the track playing.
func (t *Track) Playing() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.playing
}

// Volume returns the track's configured target volume.
func (t *Track) Volume() float64 {
	return t.volume
}

// Sound returns the track's public sound handle, nil when not loaded.
func (t *Track) Sound() ports.Sound {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sound
}

// BindSound retargets the track's public handle. Loop handoffs use this to
// keep the host pointing at the audible buffer.
func (t *Track) BindSound(sound ports.Sound) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sound = sound
}

// SetPlaying force-sets the playing state without touching sounds.
// Test setup helper for scenarios that bypass PlayTrack.
func (t *Track) SetPlaying(playing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = playing
}

// Flag returns the raw payload stored under the given key.
func (t *Track) Flag(key string) (json.RawMessage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	payload, ok := t.flags[key]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), payload...), true
}

// SetFlag stores a payload under the given key.
func (t *Track) SetFlag(key string, payload json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flags[key] = append([]byte(nil), payload...)
	return nil
}

// Verify that Track implements the ports interface
var _ ports.Track = (*Track)(nil)
