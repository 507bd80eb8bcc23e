// Package ports defines interfaces for dependency inversion.
// These interfaces allow the core orchestration logic to remain independent
// of the embedding host and its audio engine.
package ports

import (
	"time"
)

// GainParam is the scheduled-gain parameter of a sound.
//
// It mirrors an audio-graph gain node: values may be set immediately, set at
// a future point on the sound's own clock, or driven along a sampled curve.
// Value may report NaN before any explicit set; fade code must tolerate that.
type GainParam interface {
	// Value returns the current gain, possibly NaN before the first set.
	Value() float64

	// SetValueAtTime sets the gain at the given delay from now.
	// A zero delay applies immediately.
	SetValueAtTime(value float64, delay time.Duration)

	// SetValueCurveAtTime schedules a sampled gain curve starting at the
	// given delay from now and spanning the given duration.
	SetValueCurveAtTime(curve []float64, delay, duration time.Duration)

	// CancelScheduledValues drops scheduled sets and curves from the given
	// delay onward.
	CancelScheduledValues(delay time.Duration)
}

// Sound is one playable buffer handle for a track.
//
// Implementations must be safe for concurrent use: timer callbacks, fade
// scheduling, and user commands may touch the same handle from different
// goroutines.
type Sound interface {
	// Play starts (or restarts) playback at the given offset and volume.
	// Calling Play on an already-playing sound seeks it.
	Play(offset time.Duration, volume float64) error

	// Pause halts playback, preserving the current position.
	Pause() error

	// Stop halts playback and releases the underlying buffer. A stopped
	// sound must be recreated through its SoundSource before reuse.
	Stop() error

	// Playing reports whether the sound is currently audible.
	Playing() bool

	// Stopped reports whether the handle was stopped and unloaded.
	Stopped() bool

	// CurrentTime returns the playback position. Engines may report stale
	// positions for a few frames after a seek.
	CurrentTime() (time.Duration, error)

	// Duration returns the total length of the buffer.
	Duration() (time.Duration, error)

	// Gain returns the sound's scheduled-gain parameter.
	Gain() GainParam

	// Schedule fires fn when playback reaches the given point on the
	// sound's own timeline. The returned timer is cancellable. Precision is
	// engine-dependent; it is only trustworthy while the sound plays
	// continuously.
	Schedule(at time.Duration, fn func()) Timer
}

// SoundSource creates or reloads buffer handles for a track. Loopers use it
// lazily: the alternate buffer is created on first need and reloaded if the
// engine unloaded it.
type SoundSource interface {
	NewSound(track Track) (Sound, error)
}
