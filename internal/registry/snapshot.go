package registry

import (
	"sort"

	"github.com/samber/lo"

	"github.com/lumeaudio/segue/internal/domain"
)

// PlaylistSnapshot is a point-in-time view of one playlist's ephemeral state,
// for UI and debug consumers.
type PlaylistSnapshot struct {
	PlaylistID         string
	LooperTrackIDs     []string
	CrossfadeScheduled bool
	SilenceActive      bool
	Crossfading        bool
	Stopping           bool
	ShuffleMode        domain.ShuffleMode
}

// Snapshot returns the current state for one playlist.
func (r *Registry) Snapshot(playlistID string) PlaylistSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(playlistID)
}

// SnapshotAll returns the current state of every playlist with at least one
// live entry, ordered by playlist id.
func (r *Registry) SnapshotAll() []PlaylistSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := lo.Keys(r.playlists)
	for _, entry := range r.loopers {
		ids = append(ids, entry.playlistID)
	}
	ids = lo.Uniq(ids)
	sort.Strings(ids)

	return lo.Map(ids, func(id string, _ int) PlaylistSnapshot {
		return r.snapshotLocked(id)
	})
}

func (r *Registry) snapshotLocked(playlistID string) PlaylistSnapshot {
	snap := PlaylistSnapshot{PlaylistID: playlistID}

	for trackID, entry := range r.loopers {
		if entry.playlistID == playlistID && !entry.looper.IsDestroyed() {
			snap.LooperTrackIDs = append(snap.LooperTrackIDs, trackID)
		}
	}
	sort.Strings(snap.LooperTrackIDs)

	if s, ok := r.playlists[playlistID]; ok {
		snap.CrossfadeScheduled = s.crossfadeTimer != nil
		snap.SilenceActive = s.silence != nil
		snap.Crossfading = s.crossfading
		snap.Stopping = s.stopping
		if s.shuffle != nil {
			snap.ShuffleMode = s.shuffle.Mode
		}
	}
	return snap
}
