// Package domain defines domain-specific errors.
// These errors represent business logic failures and are independent of infrastructure.
package domain

import (
	"errors"
	"fmt"
)

// Common errors that services can return.
var (
	// ErrTrackNotFound is returned when a requested track cannot be found.
	ErrTrackNotFound = errors.New("track not found")

	// ErrPlaylistNotFound is returned when a requested playlist cannot be found.
	ErrPlaylistNotFound = errors.New("playlist not found")

	// ErrTrackNotPlaying is returned when an operation requires an actively
	// playing track.
	ErrTrackNotPlaying = errors.New("track is not playing")

	// ErrLooperDestroyed is returned when an operation targets a looper that
	// has already been torn down.
	ErrLooperDestroyed = errors.New("looper already destroyed")

	// ErrNoActiveLooper is returned when a loop command targets a track with
	// no live looper.
	ErrNoActiveLooper = errors.New("no active looper for track")

	// ErrNoSegments is returned when a loop configuration carries no usable
	// segments. The core treats this as "no looping", never as a crash.
	ErrNoSegments = errors.New("loop configuration has no segments")

	// ErrSoundUnavailable is returned when a buffer handle is missing or was
	// unloaded by the underlying engine.
	ErrSoundUnavailable = errors.New("sound handle unavailable")

	// ErrCrossfadeFailed is returned when a handoff could not complete; the
	// caller falls back to ending the segment without a seamless transition.
	ErrCrossfadeFailed = errors.New("crossfade handoff failed")

	// ErrStaleCommand is returned when a replicated command's sequence number
	// does not exceed the last applied sequence for its entity.
	ErrStaleCommand = errors.New("stale or duplicate command sequence")

	// ErrNotAuthority is returned when a document-mutating operation is
	// attempted by a client without the authority role.
	ErrNotAuthority = errors.New("client does not hold authority")

	// ErrInvalidVolume is returned when a volume is out of the [0,1] range.
	ErrInvalidVolume = errors.New("invalid volume: must be between 0.0 and 1.0")

	// ErrSilenceActive is returned when a silent gap is already in progress
	// for the playlist.
	ErrSilenceActive = errors.New("silence gap already active")
)

// SoundError wraps a failure from the audio primitive with operation context.
type SoundError struct {
	Op      string // Operation that failed (e.g. "play", "stop", "schedule")
	TrackID string // Owning track, if known
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *SoundError) Error() string {
	if e.TrackID != "" {
		return fmt.Sprintf("sound %s failed for track %s: %v", e.Op, e.TrackID, e.Err)
	}
	return fmt.Sprintf("sound %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *SoundError) Unwrap() error {
	return e.Err
}

// NewSoundError creates a new SoundError.
func NewSoundError(op, trackID string, err error) *SoundError {
	return &SoundError{Op: op, TrackID: trackID, Err: err}
}

// ValidationError represents a flag-validation error.
type ValidationError struct {
	Field   string      // Field that failed validation
	Value   interface{} // Value that failed validation
	Message string      // Error message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ServiceError represents an error from a service layer operation.
type ServiceError struct {
	Service string // Service name (e.g. "LoopService", "CrossfadeService")
	Op      string // Operation that failed
	Message string // Error message
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("service %s.%s failed: %s", e.Service, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(service, op, message string, err error) *ServiceError {
	return &ServiceError{
		Service: service,
		Op:      op,
		Message: message,
		Err:     err,
	}
}
