// Package memory provides an in-memory implementation of the host document
// contracts: tracks, playlists, flag storage, authority, and the flag-based
// replication channel. It backs tests and the demo entry point; a real
// deployment implements the same ports against the embedding application.
package memory

import (
	"sync"

	"github.com/google/uuid"
	"github.com/lumeaudio/segue/internal/ports"
)

// Host owns the document tree and the replication loopback.
//
// Thread-safety: this implementation is thread-safe.
type Host struct {
	bus    ports.EventBus
	source ports.SoundSource

	mu        sync.RWMutex
	playlists map[string]*Playlist
	authority bool
	handlers  map[string]ports.ReplicationHandler
}

// NewHost creates an empty host. The source is used to manufacture the
// initial sound handle when a track starts playing.
func NewHost(bus ports.EventBus, source ports.SoundSource) *Host {
	return &Host{
		bus:       bus,
		source:    source,
		playlists: make(map[string]*Playlist),
		authority: true,
		handlers:  make(map[string]ports.ReplicationHandler),
	}
}

// SetAuthority toggles whether this client holds the authority role.
func (h *Host) SetAuthority(authority bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authority = authority
}

// IsAuthority reports whether this client may mutate shared documents.
func (h *Host) IsAuthority() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.authority
}

// Broadcast delivers the payload to every registered handler, including this
// client's own (loopback); receivers deduplicate by sequence number.
func (h *Host) Broadcast(entityID string, payload []byte) error {
	h.mu.RLock()
	handlers := make([]ports.ReplicationHandler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		handlers = append(handlers, handler)
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(entityID, payload)
	}
	return nil
}

// OnReceive registers a replication handler. Cancelling the returned timer
// unregisters it.
func (h *Host) OnReceive(handler ports.ReplicationHandler) ports.Timer {
	id := uuid.NewString()

	h.mu.Lock()
	h.handlers[id] = handler
	h.mu.Unlock()

	return ports.TimerFunc(func() {
		h.mu.Lock()
		delete(h.handlers, id)
		h.mu.Unlock()
	})
}

// NewPlaylist creates and registers a playlist.
func (h *Host) NewPlaylist(name string) *Playlist {
	p := &Playlist{
		host:    h,
		id:      uuid.NewString(),
		name:    name,
		current: -1,
		flags:   make(map[string][]byte),
	}

	h.mu.Lock()
	h.playlists[p.id] = p
	h.mu.Unlock()
	return p
}

// Playlist looks a playlist up by id.
func (h *Host) Playlist(id string) (*Playlist, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.playlists[id]
	return p, ok
}

// Verify interface compliance
var (
	_ ports.Authority  = (*Host)(nil)
	_ ports.Replicator = (*Host)(nil)
)
