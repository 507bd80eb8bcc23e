package memory

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/ports"
)

// Playlist is the in-memory playlist document.
type Playlist struct {
	host *Host
	id   string
	name string

	mu      sync.RWMutex
	tracks  []*Track
	current int
	flags   map[string][]byte
}

// ID returns the stable entity identifier.
func (p *Playlist) ID() string {
	return p.id
}

// Name returns the display name.
func (p *Playlist) Name() string {
	return p.name
}

// AddTrack appends a track to the playlist and returns it.
func (p *Playlist) AddTrack(name string, volume float64) *Track {
	t := &Track{
		playlist: p,
		id:       uuid.NewString(),
		name:     name,
		volume:   volume,
		flags:    make(map[string][]byte),
	}

	p.mu.Lock()
	p.tracks = append(p.tracks, t)
	p.mu.Unlock()
	return t
}

// Tracks returns the member tracks in playback order.
func (p *Playlist) Tracks() []ports.Track {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ports.Track, len(p.tracks))
	for i, t := range p.tracks {
		out[i] = t
	}
	return out
}

// Track looks a member track up by id.
func (p *Playlist) Track(id string) (ports.Track, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, t := range p.tracks {
		if t.id == id {
			return t, true
		}
	}
	return nil, false
}

// Playing reports whether any member track is playing.
func (p *Playlist) Playing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, t := range p.tracks {
		if t.Playing() {
			return true
		}
	}
	return false
}

// CurrentTrack returns the member the host considers current.
func (p *Playlist) CurrentTrack() (ports.Track, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.current < 0 || p.current >= len(p.tracks) {
		return nil, false
	}
	return p.tracks[p.current], true
}

// PlayTrack makes the given member current and starts it. Any previously
// current track is stopped first.
func (p *Playlist) PlayTrack(track ports.Track) error {
	t, ok := p.member(track)
	if !ok {
		return domain.ErrTrackNotFound
	}

	if cur, ok := p.CurrentTrack(); ok && cur.ID() != t.id {
		if err := p.StopTrack(cur); err != nil {
			return err
		}
	}

	sound, err := p.host.source.NewSound(t)
	if err != nil {
		return err
	}
	if err := sound.Play(0, t.volume); err != nil {
		return err
	}

	t.mu.Lock()
	t.playing = true
	t.sound = sound
	t.mu.Unlock()

	p.mu.Lock()
	for i, candidate := range p.tracks {
		if candidate.id == t.id {
			p.current = i
			break
		}
	}
	p.mu.Unlock()

	p.host.bus.Publish(domain.NewTrackStartedEvent(t.id, p.id))
	return nil
}

// StopTrack stops the given member.
func (p *Playlist) StopTrack(track ports.Track) error {
	t, ok := p.member(track)
	if !ok {
		return domain.ErrTrackNotFound
	}

	t.mu.Lock()
	wasPlaying := t.playing
	t.playing = false
	sound := t.sound
	t.sound = nil
	t.mu.Unlock()

	if sound != nil {
		_ = sound.Stop()
	}

	p.mu.Lock()
	if p.current >= 0 && p.current < len(p.tracks) && p.tracks[p.current].id == t.id {
		p.current = -1
	}
	p.mu.Unlock()

	if wasPlaying {
		p.host.bus.Publish(domain.NewTrackStoppedEvent(t.id, p.id))
	}
	return nil
}

// CreateGapTrack inserts a short placeholder track after the given member.
func (p *Playlist) CreateGapTrack(after ports.Track, name, path string) (ports.Track, error) {
	gap := &Track{
		playlist: p,
		id:       uuid.NewString(),
		name:     name,
		path:     path,
		volume:   0,
		flags:    make(map[string][]byte),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos := len(p.tracks)
	if after != nil {
		for i, t := range p.tracks {
			if t.id == after.ID() {
				pos = i + 1
				break
			}
		}
	}

	p.tracks = append(p.tracks, nil)
	copy(p.tracks[pos+1:], p.tracks[pos:])
	p.tracks[pos] = gap
	if p.current >= pos {
		p.current++
	}
	return gap, nil
}

// RemoveTrack deletes a member track.
func (p *Playlist) RemoveTrack(track ports.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, t := range p.tracks {
		if t.id == track.ID() {
			p.tracks = append(p.tracks[:i], p.tracks[i+1:]...)
			if p.current == i {
				p.current = -1
			} else if p.current > i {
				p.current--
			}
			return nil
		}
	}
	return domain.ErrTrackNotFound
}

// Flag returns the raw payload stored under the given key.
func (p *Playlist) Flag(key string) (json.RawMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	payload, ok := p.flags[key]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), payload...), true
}

// SetFlag stores a payload under the given key.
func (p *Playlist) SetFlag(key string, payload json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flags[key] = append([]byte(nil), payload...)
	return nil
}

// member resolves a ports.Track back to the concrete document.
func (p *Playlist) member(track ports.Track) (*Track, bool) {
	if track == nil {
		return nil, false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, t := range p.tracks {
		if t.id == track.ID() {
			return t, true
		}
	}
	return nil, false
}

// Verify that Playlist implements the ports interface
var _ ports.Playlist = (*Playlist)(nil)
