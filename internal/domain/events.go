// Package domain defines events for the event-driven architecture.
// Events replace direct callbacks and enable loose coupling between the
// orchestration services and their UI/automation consumers.
package domain

import (
	"time"
)

// Event is the base interface for all events in the system.
// All events must implement this interface to be published via the event bus.
type Event interface {
	// Type returns the event type identifier
	Type() EventType

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// EventType is a string identifier for different event types.
type EventType string

// Event type constants define all possible events in the system.
const (
	// Host playback events
	EventTrackStarted EventType = "track.started"
	EventTrackStopped EventType = "track.stopped"

	// Loop events
	EventLoopStarted   EventType = "loop.started"
	EventLoopIteration EventType = "loop.iteration"
	EventLoopEnded     EventType = "loop.ended"

	// Crossfade events
	EventCrossfadeStarted   EventType = "crossfade.started"
	EventCrossfadeCompleted EventType = "crossfade.completed"

	// Silence-gap events
	EventSilenceStarted EventType = "silence.started"
	EventSilenceEnded   EventType = "silence.ended"

	// Registry events
	EventStateChanged EventType = "state.changed"
)

// EventHandler is a function that handles events.
type EventHandler func(event Event)

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID string

// baseEvent provides common event functionality.
// All concrete events should embed this struct.
type baseEvent struct {
	timestamp time.Time
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// newBaseEvent creates a new base event with the current timestamp.
func newBaseEvent() baseEvent {
	return baseEvent{timestamp: time.Now()}
}

// TrackStartedEvent is published by the host adapter when a track begins playing.
type TrackStartedEvent struct {
	baseEvent
	TrackID    string
	PlaylistID string
}

// Type returns the event type.
func (e TrackStartedEvent) Type() EventType {
	return EventTrackStarted
}

// NewTrackStartedEvent creates a new TrackStartedEvent.
func NewTrackStartedEvent(trackID, playlistID string) TrackStartedEvent {
	return TrackStartedEvent{
		baseEvent:  newBaseEvent(),
		TrackID:    trackID,
		PlaylistID: playlistID,
	}
}

// TrackStoppedEvent is published by the host adapter when a track stops.
type TrackStoppedEvent struct {
	baseEvent
	TrackID    string
	PlaylistID string
}

// Type returns the event type.
func (e TrackStoppedEvent) Type() EventType {
	return EventTrackStopped
}

// NewTrackStoppedEvent creates a new TrackStoppedEvent.
func NewTrackStoppedEvent(trackID, playlistID string) TrackStoppedEvent {
	return TrackStoppedEvent{
		baseEvent:  newBaseEvent(),
		TrackID:    trackID,
		PlaylistID: playlistID,
	}
}

// LoopStartedEvent is published when playback enters a configured segment.
type LoopStartedEvent struct {
	baseEvent
	TrackID string
	Segment Segment
}

// Type returns the event type.
func (e LoopStartedEvent) Type() EventType {
	return EventLoopStarted
}

// NewLoopStartedEvent creates a new LoopStartedEvent.
func NewLoopStartedEvent(trackID string, segment Segment) LoopStartedEvent {
	return LoopStartedEvent{
		baseEvent: newBaseEvent(),
		TrackID:   trackID,
		Segment:   segment,
	}
}

// LoopIterationEvent is published each time a loop-back handoff completes.
type LoopIterationEvent struct {
	baseEvent
	TrackID   string
	Segment   Segment
	Iteration int
}

// Type returns the event type.
func (e LoopIterationEvent) Type() EventType {
	return EventLoopIteration
}

// NewLoopIterationEvent creates a new LoopIterationEvent.
func NewLoopIterationEvent(trackID string, segment Segment, iteration int) LoopIterationEvent {
	return LoopIterationEvent{
		baseEvent: newBaseEvent(),
		TrackID:   trackID,
		Segment:   segment,
		Iteration: iteration,
	}
}

// LoopEndedEvent is published when a looper stops managing its track.
type LoopEndedEvent struct {
	baseEvent
	TrackID string
	Reason  LoopEndReason
}

// Type returns the event type.
func (e LoopEndedEvent) Type() EventType {
	return EventLoopEnded
}

// NewLoopEndedEvent creates a new LoopEndedEvent.
func NewLoopEndedEvent(trackID string, reason LoopEndReason) LoopEndedEvent {
	return LoopEndedEvent{
		baseEvent: newBaseEvent(),
		TrackID:   trackID,
		Reason:    reason,
	}
}

// CrossfadeStartedEvent is published when an equal-power crossfade begins,
// for both intra-track loop handoffs and playlist-level transitions.
type CrossfadeStartedEvent struct {
	baseEvent
	PlaylistID  string
	FromTrackID string
	ToTrackID   string
	Duration    time.Duration
}

// Type returns the event type.
func (e CrossfadeStartedEvent) Type() EventType {
	return EventCrossfadeStarted
}

// NewCrossfadeStartedEvent creates a new CrossfadeStartedEvent.
func NewCrossfadeStartedEvent(playlistID, fromTrackID, toTrackID string, duration time.Duration) CrossfadeStartedEvent {
	return CrossfadeStartedEvent{
		baseEvent:   newBaseEvent(),
		PlaylistID:  playlistID,
		FromTrackID: fromTrackID,
		ToTrackID:   toTrackID,
		Duration:    duration,
	}
}

// CrossfadeCompletedEvent is published when a crossfade handoff finishes.
type CrossfadeCompletedEvent struct {
	baseEvent
	PlaylistID  string
	FromTrackID string
	ToTrackID   string
	Duration    time.Duration
}

// Type returns the event type.
func (e CrossfadeCompletedEvent) Type() EventType {
	return EventCrossfadeCompleted
}

// NewCrossfadeCompletedEvent creates a new CrossfadeCompletedEvent.
func NewCrossfadeCompletedEvent(playlistID, fromTrackID, toTrackID string, duration time.Duration) CrossfadeCompletedEvent {
	return CrossfadeCompletedEvent{
		baseEvent:   newBaseEvent(),
		PlaylistID:  playlistID,
		FromTrackID: fromTrackID,
		ToTrackID:   toTrackID,
		Duration:    duration,
	}
}

// SilenceStartedEvent is published when a silent gap begins.
type SilenceStartedEvent struct {
	baseEvent
	PlaylistID string
	GapTrackID string
	Duration   time.Duration
}

// Type returns the event type.
func (e SilenceStartedEvent) Type() EventType {
	return EventSilenceStarted
}

// NewSilenceStartedEvent creates a new SilenceStartedEvent.
func NewSilenceStartedEvent(playlistID, gapTrackID string, duration time.Duration) SilenceStartedEvent {
	return SilenceStartedEvent{
		baseEvent:  newBaseEvent(),
		PlaylistID: playlistID,
		GapTrackID: gapTrackID,
		Duration:   duration,
	}
}

// SilenceEndedEvent is published when a silent gap resolves or is cancelled.
type SilenceEndedEvent struct {
	baseEvent
	PlaylistID string
	Cancelled  bool
}

// Type returns the event type.
func (e SilenceEndedEvent) Type() EventType {
	return EventSilenceEnded
}

// NewSilenceEndedEvent creates a new SilenceEndedEvent.
func NewSilenceEndedEvent(playlistID string, cancelled bool) SilenceEndedEvent {
	return SilenceEndedEvent{
		baseEvent:  newBaseEvent(),
		PlaylistID: playlistID,
		Cancelled:  cancelled,
	}
}

// StateChangedEvent is the debounced notification emitted by the runtime
// state registry for UI observers.
type StateChangedEvent struct {
	baseEvent
	PlaylistID string
}

// Type returns the event type.
func (e StateChangedEvent) Type() EventType {
	return EventStateChanged
}

// NewStateChangedEvent creates a new StateChangedEvent.
func NewStateChangedEvent(playlistID string) StateChangedEvent {
	return StateChangedEvent{
		baseEvent:  newBaseEvent(),
		PlaylistID: playlistID,
	}
}
