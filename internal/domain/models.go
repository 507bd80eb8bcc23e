// Package domain contains core business models and logic with no external dependencies.
// This package defines the fundamental entities of the Segue playback orchestrator.
package domain

import (
	"time"
)

// SegmentEpsilon is the tolerance used when comparing a playback position
// against a segment boundary. A segment whose start lies within this distance
// of the current position is treated as already passed.
const SegmentEpsilon = 10 * time.Millisecond

// Segment is a configured time range within a track that loops independently.
type Segment struct {
	// Start is the offset into the track where the segment begins.
	Start time.Duration

	// End is the offset into the track where the segment ends. Always >= Start.
	End time.Duration

	// Crossfade is the duration of the loop-back crossfade. Never exceeds
	// the segment duration.
	Crossfade time.Duration

	// LoopCount is the number of loop iterations before the segment is
	// complete. Zero means the segment repeats indefinitely.
	LoopCount int

	// SkipToNext makes a completed segment crossfade directly into the next
	// segment instead of letting the track play through naturally.
	SkipToNext bool
}

// Duration returns the length of the segment.
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// LoopConfig is the per-track looping configuration. It is an immutable
// snapshot: a looper receives it at construction and it is re-read from flag
// storage on each (re)schedule.
type LoopConfig struct {
	// Enabled indicates the loop feature is switched on for the track.
	Enabled bool

	// Active indicates the configuration should take effect when the track plays.
	Active bool

	// StartFromBeginning plays the track from offset zero; when false the
	// looper seeks straight to the first segment on start.
	StartFromBeginning bool

	// Segments is ordered by Start ascending and non-overlapping.
	Segments []Segment
}

// ShouldLoop reports whether the configuration calls for a looper at all.
func (c LoopConfig) ShouldLoop() bool {
	return c.Enabled && c.Active && len(c.Segments) > 0
}

// NextSegment returns the first segment whose start lies strictly beyond the
// given position (with SegmentEpsilon tolerance), or nil if none remains.
// Selection is deterministic: segments are scanned in Start order.
func (c LoopConfig) NextSegment(pos time.Duration) *Segment {
	for i := range c.Segments {
		if c.Segments[i].Start > pos+SegmentEpsilon {
			return &c.Segments[i]
		}
	}
	return nil
}

// SegmentAfter returns the segment following seg in configuration order,
// or nil if seg is the last one.
func (c LoopConfig) SegmentAfter(seg Segment) *Segment {
	for i := range c.Segments {
		if c.Segments[i].Start == seg.Start && c.Segments[i].End == seg.End {
			if i+1 < len(c.Segments) {
				return &c.Segments[i+1]
			}
			return nil
		}
	}
	return nil
}

// SegmentBefore returns the segment preceding seg in configuration order,
// or nil if seg is the first one.
func (c LoopConfig) SegmentBefore(seg Segment) *Segment {
	for i := range c.Segments {
		if c.Segments[i].Start == seg.Start && c.Segments[i].End == seg.End {
			if i > 0 {
				return &c.Segments[i-1]
			}
			return nil
		}
	}
	return nil
}

// SegueConfig is the per-playlist transition configuration.
type SegueConfig struct {
	// CrossfadeEnabled arms the automatic playlist-level crossfade near each
	// track's natural end.
	CrossfadeEnabled bool

	// Crossfade is the playlist-level crossfade duration.
	Crossfade time.Duration

	// FadeOut is the fade applied to a track's natural ending when no
	// playlist crossfade is armed.
	FadeOut time.Duration

	// SilenceEnabled injects a silent gap between tracks.
	SilenceEnabled bool

	// Silence is the duration of the injected gap.
	Silence time.Duration

	// Shuffle selects the ordering algorithm used under shuffle mode.
	Shuffle ShuffleMode
}

// ShuffleMode selects an alternative track-ordering algorithm.
type ShuffleMode int

const (
	// ShuffleNone falls back to the host's own ordering.
	ShuffleNone ShuffleMode = iota

	// ShuffleExhaustive draws tracks without replacement until every track
	// has played, then refills the pool.
	ShuffleExhaustive

	// ShuffleWeighted draws randomly with weights that grow for tracks
	// passed over, keeping long-run play counts near uniform.
	ShuffleWeighted

	// ShuffleRoundRobin cycles tracks in fixed order from a random start.
	ShuffleRoundRobin
)

// String returns a human-readable representation of the shuffle mode.
func (m ShuffleMode) String() string {
	switch m {
	case ShuffleExhaustive:
		return "exhaustive"
	case ShuffleWeighted:
		return "weighted"
	case ShuffleRoundRobin:
		return "round-robin"
	default:
		return "none"
	}
}

// ParseShuffleMode converts a string to a ShuffleMode.
func ParseShuffleMode(s string) ShuffleMode {
	switch s {
	case "exhaustive":
		return ShuffleExhaustive
	case "weighted":
		return ShuffleWeighted
	case "round-robin":
		return ShuffleRoundRobin
	default:
		return ShuffleNone
	}
}

// CommandKind identifies a replicated user-initiated loop command.
type CommandKind string

const (
	// CommandBreak skips the current loop iteration and lets the segment end.
	CommandBreak CommandKind = "break"

	// CommandDisable turns looping off for the track and fades it out.
	CommandDisable CommandKind = "disable"

	// CommandSegmentNext crossfades into the following segment.
	CommandSegmentNext CommandKind = "segment-next"

	// CommandSegmentPrevious crossfades into the preceding segment.
	CommandSegmentPrevious CommandKind = "segment-previous"
)

// LoopCommand is the small sequenced record broadcast by the authority client
// and replayed by replicas. Sequence numbers are monotonically increasing per
// track; stale or duplicate sequences are dropped on delivery.
type LoopCommand struct {
	Kind     CommandKind `json:"kind"`
	TrackID  string      `json:"trackId"`
	Sequence uint64      `json:"seq"`
}

// LoopEndReason explains why a looper stopped managing its track.
type LoopEndReason string

const (
	// LoopEndRetired: no further loop work remained and the track was left
	// to play to its natural end. A terminal, intentional exit.
	LoopEndRetired LoopEndReason = "retired"

	// LoopEndCompleted: the final segment finished its configured loop count
	// and faded the track out.
	LoopEndCompleted LoopEndReason = "completed"

	// LoopEndDisabled: looping was switched off by a user command.
	LoopEndDisabled LoopEndReason = "disabled"

	// LoopEndDestroyed: the looper was torn down externally (track stopped,
	// removed, or rescheduled).
	LoopEndDestroyed LoopEndReason = "destroyed"
)
