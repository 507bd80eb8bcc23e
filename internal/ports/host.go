package ports

import (
	"encoding/json"
)

// Track is the host's audio-bearing document. The orchestrator treats it as
// a handle: identity, flags, playback state, and the public sound binding.
// The host owns its lifecycle.
type Track interface {
	// ID returns the stable entity identifier.
	ID() string

	// Name returns the display name.
	Name() string

	// Playlist returns the parent playlist.
	Playlist() Playlist

	// Playing reports whether the host considers the track playing.
	Playing() bool

	// Volume returns the track's configured target volume (0.0 to 1.0).
	Volume() float64

	// Sound returns the track's public sound handle, or nil when the track
	// is not loaded. Handoffs rebind this.
	Sound() Sound

	// BindSound retargets the track's public handle to a new sound.
	BindSound(sound Sound)

	// Flag returns the raw payload stored under the given key.
	Flag(key string) (json.RawMessage, bool)

	// SetFlag stores a payload under the given key and broadcasts the change
	// through the host's own replication.
	SetFlag(key string, payload json.RawMessage) error
}

// Playlist is the host's ordered collection of tracks.
type Playlist interface {
	// ID returns the stable entity identifier.
	ID() string

	// Tracks returns the sibling tracks in playback order.
	Tracks() []Track

	// Track looks a member track up by id.
	Track(id string) (Track, bool)

	// Playing reports whether any member track is playing.
	Playing() bool

	// CurrentTrack returns the member the host considers current.
	CurrentTrack() (Track, bool)

	// PlayTrack makes the given member current and starts it.
	PlayTrack(track Track) error

	// StopTrack stops the given member.
	StopTrack(track Track) error

	// CreateGapTrack inserts a short placeholder track after the given
	// member, backed by the audio asset at path. Used by silence injection.
	CreateGapTrack(after Track, name, path string) (Track, error)

	// RemoveTrack deletes a member track (used to clean up gap tracks).
	RemoveTrack(track Track) error

	// Flag returns the raw payload stored under the given key.
	Flag(key string) (json.RawMessage, bool)

	// SetFlag stores a payload under the given key.
	SetFlag(key string, payload json.RawMessage) error
}

// Authority reports whether this client may execute document-mutating side
// effects in a multi-client setting. Exactly one connected client holds the
// role at a time; election is the host's concern.
type Authority interface {
	IsAuthority() bool
}

// ReplicationHandler receives a replicated command payload for an entity.
type ReplicationHandler func(entityID string, payload []byte)

// Replicator is the small flag-based control channel: the authority writes a
// payload, every other client observes it. Payloads are control messages,
// never audio.
type Replicator interface {
	// Broadcast delivers the payload to all other clients (and, loopback,
	// to this one; receivers deduplicate by sequence number).
	Broadcast(entityID string, payload []byte) error

	// OnReceive registers the handler invoked for incoming payloads.
	// The returned timer unregisters the handler when cancelled.
	OnReceive(handler ReplicationHandler) Timer
}
