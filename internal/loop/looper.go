// Package loop implements the per-track looping engine: a state machine that
// owns two alternating buffer handles for one track, schedules segment
// boundaries and loop-back crossfades, and hands playback between the buffers
// without audible gaps.
package loop

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/fade"
	"github.com/lumeaudio/segue/internal/ports"
)

const (
	// defaultSeekSettleDelay is the coarse wait inserted before trusting the
	// precise in-track scheduler right after a programmatic seek. Engines
	// tend to misfire precise schedules for a short window after seeking;
	// the exact value is engine-dependent and tunable through Options.
	defaultSeekSettleDelay = time.Second

	// defaultHandoffBuffer pads the crossfade duration before the outgoing
	// buffer is stopped, so the tail of the ramp is never clipped.
	defaultHandoffBuffer = 50 * time.Millisecond

	// breakFadeDuration restores the source buffer's volume when an
	// in-flight crossfade is aborted by a break command.
	breakFadeDuration = 250 * time.Millisecond

	// Position stabilization after a seek: the reported position must match
	// the seek target within stabilizeTolerance for stabilizeRequired
	// consecutive reads spaced stabilizePollInterval apart. Engines report
	// stale positions for a few frames after seeking.
	stabilizePollInterval = 50 * time.Millisecond
	stabilizeTolerance    = 500 * time.Millisecond
	stabilizeRequired     = 3
	stabilizeMaxPolls     = 40
)

// armedKind tags which scheduling timer is live. At most one of the boundary
// and crossfade timers is armed at any moment.
type armedKind int

const (
	armedNone armedKind = iota
	armedBoundary
	armedCrossfade
)

// Options tunes engine-dependent behavior and wires the looper into the
// playlist-level transition machinery.
type Options struct {
	// SeekSettleDelay overrides the post-seek settle wait. Zero selects the
	// default.
	SeekSettleDelay time.Duration

	// HandoffBuffer overrides the pad between crossfade end and outgoing
	// buffer stop. Zero selects the default.
	HandoffBuffer time.Duration

	// PlaylistCrossfade is the playlist-level crossfade duration when that
	// feature owns the track's natural end; the retirement fade uses it.
	PlaylistCrossfade time.Duration

	// PlaylistFadeOut is the fade applied to the track's natural end when no
	// playlist crossfade is configured. Zero leaves the ending untouched.
	PlaylistFadeOut time.Duration

	// OnTrackEnding, when set, is invoked instead of a plain fade-out at the
	// point the retired track should transition away. The lifecycle manager
	// uses it to hand the ending to the playlist-level crossfade.
	OnTrackEnding func()
}

func (o Options) withDefaults() Options {
	if o.SeekSettleDelay <= 0 {
		o.SeekSettleDelay = defaultSeekSettleDelay
	}
	if o.HandoffBuffer <= 0 {
		o.HandoffBuffer = defaultHandoffBuffer
	}
	return o
}

// Looper is the looping engine for one track. It exclusively owns its two
// buffer slots; the host's public handle is rebound to whichever slot is
// audible after each handoff.
//
// Thread-safety: this implementation is thread-safe. Timer callbacks
// re-validate the destroyed flag on entry before mutating anything.
type Looper struct {
	logger *slog.Logger
	clock  ports.Clock
	bus    ports.EventBus
	fader  *fade.Engine
	source ports.SoundSource
	track  ports.Track
	config domain.LoopConfig
	opts   Options

	mu             sync.Mutex
	soundA, soundB ports.Sound
	activeIsA      bool
	destroyed      bool
	crossfading    bool
	disabled       bool
	activeSegment  *domain.Segment
	loopsDone      int
	afterSeek      bool

	armed        armedKind
	armedTimer   ports.Timer
	handoffTimer ports.Timer
	stallTimer   ports.Timer
	settleTimer  ports.Timer
}

// New creates a looper for the track. The configuration snapshot is fixed for
// the looper's lifetime; reschedule to pick up changes.
func New(
	logger *slog.Logger,
	clock ports.Clock,
	bus ports.EventBus,
	fader *fade.Engine,
	source ports.SoundSource,
	track ports.Track,
	config domain.LoopConfig,
	opts Options,
) *Looper {
	return &Looper{
		logger:    logger.With(slog.String("track", track.ID())),
		clock:     clock,
		bus:       bus,
		fader:     fader,
		source:    source,
		track:     track,
		config:    config,
		opts:      opts.withDefaults(),
		activeIsA: true,
	}
}

// Start adopts the track's public sound handle as the first buffer and arms
// the initial schedule. When the configuration starts at the first segment
// rather than the track beginning, Start seeks there and waits for the
// engine's position reporting to stabilize before arming the precise
// scheduler.
func (l *Looper) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return domain.ErrLooperDestroyed
	}

	sound := l.track.Sound()
	if sound == nil {
		return domain.NewSoundError("start", l.track.ID(), domain.ErrSoundUnavailable)
	}
	l.soundA = sound
	l.activeIsA = true

	if !l.config.StartFromBeginning && len(l.config.Segments) > 0 {
		target := l.config.Segments[0].Start
		if err := sound.Play(target, l.track.Volume()); err != nil {
			return domain.NewSoundError("seek", l.track.ID(), err)
		}
		l.beginStabilizationLocked(target)
		return nil
	}

	l.armNextBoundaryLocked()
	return nil
}

// beginStabilizationLocked polls the playback position until it matches the
// seek target for several consecutive reads, then enters the first segment
// directly. A poll budget bounds the wait; on exhaustion the looper falls
// back to normal boundary scheduling.
func (l *Looper) beginStabilizationLocked(target time.Duration) {
	stable := 0
	polls := 0

	var poll func()
	poll = func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.destroyed {
			return
		}
		l.settleTimer = nil

		pos, err := l.activeLocked().CurrentTime()
		if err != nil {
			l.logger.Warn("position read failed during seek stabilization", "error", err)
			l.armNextBoundaryLocked()
			return
		}

		if diff := pos - target; diff >= -stabilizeTolerance && diff <= stabilizeTolerance {
			stable++
		} else {
			stable = 0
		}
		polls++

		if stable >= stabilizeRequired {
			seg := l.config.Segments[0]
			l.enterSegmentLocked(seg, true)
			return
		}
		if polls >= stabilizeMaxPolls {
			l.logger.Warn("seek position never stabilized, falling back to boundary scheduling",
				slog.Duration("target", target), slog.Duration("lastRead", pos))
			l.armNextBoundaryLocked()
			return
		}
		l.settleTimer = l.clock.AfterFunc(stabilizePollInterval, poll)
	}

	l.settleTimer = l.clock.AfterFunc(stabilizePollInterval, poll)
}

// enterSegmentLocked records the segment as active and arms its loop-back
// crossfade. afterSeek selects the hybrid settle schedule for the first
// iteration.
func (l *Looper) enterSegmentLocked(seg domain.Segment, afterSeek bool) {
	l.activeSegment = &seg
	l.loopsDone = 0
	l.afterSeek = afterSeek
	l.bus.Publish(domain.NewLoopStartedEvent(l.track.ID(), seg))
	l.armCrossfadeLocked()
}

// armNextBoundaryLocked schedules the boundary timer for the next configured
// segment past the current position, or retires when none remains.
func (l *Looper) armNextBoundaryLocked() {
	l.cancelArmedLocked()
	if l.destroyed || l.disabled {
		return
	}

	active := l.activeLocked()
	pos, err := active.CurrentTime()
	if err != nil {
		l.logger.Warn("position read failed, retiring looper", "error", err)
		l.retireLocked(domain.LoopEndRetired)
		return
	}

	next := l.config.NextSegment(pos)
	if next == nil {
		l.retireLocked(domain.LoopEndRetired)
		return
	}

	seg := *next
	l.armed = armedBoundary
	l.armedTimer = active.Schedule(seg.Start, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.destroyed || l.armed != armedBoundary {
			return
		}
		l.armed = armedNone
		l.armedTimer = nil
		l.enterSegmentLocked(seg, false)
	})
	l.logger.Debug("boundary timer armed", slog.Duration("at", seg.Start))
}

// armCrossfadeLocked schedules the loop-back crossfade for the active
// segment. Immediately after a seek the precise scheduler is unreliable, so
// the first arm goes through a coarse settle wait before the precise
// schedule takes over.
func (l *Looper) armCrossfadeLocked() {
	l.cancelArmedLocked()
	if l.destroyed || l.disabled || l.activeSegment == nil {
		return
	}

	seg := *l.activeSegment
	fireAt := seg.End - seg.Crossfade

	if l.afterSeek {
		l.afterSeek = false
		l.armed = armedCrossfade
		l.armedTimer = l.clock.AfterFunc(l.opts.SeekSettleDelay, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.destroyed || l.armed != armedCrossfade {
				return
			}
			l.armedTimer = l.activeLocked().Schedule(fireAt, l.onCrossfadeFire)
		})
		l.logger.Debug("crossfade armed via settle delay", slog.Duration("at", fireAt))
		return
	}

	l.armed = armedCrossfade
	l.armedTimer = l.activeLocked().Schedule(fireAt, l.onCrossfadeFire)
	l.logger.Debug("crossfade timer armed", slog.Duration("at", fireAt))
}

// onCrossfadeFire runs when playback reaches the loop-back point.
func (l *Looper) onCrossfadeFire() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed || l.armed != armedCrossfade {
		return
	}
	l.armed = armedNone
	l.armedTimer = nil

	seg := l.activeSegment
	if seg == nil {
		return
	}

	if err := l.beginHandoffLocked(seg.Start, seg.Crossfade, l.afterLoopHandoffLocked); err != nil {
		l.logger.Warn("loop-back handoff failed, ending segment", "error", err)
		l.endSegmentFallbackLocked()
	}
}

// afterLoopHandoffLocked is the handoff continuation for loop-back
// crossfades: count the iteration, then decide between another iteration,
// a skip into the next segment, or a natural play-through.
func (l *Looper) afterLoopHandoffLocked() {
	seg := l.activeSegment
	if seg == nil {
		return
	}

	l.loopsDone++
	l.bus.Publish(domain.NewLoopIterationEvent(l.track.ID(), *seg, l.loopsDone))

	if seg.LoopCount == 0 || l.loopsDone < seg.LoopCount {
		l.armCrossfadeLocked()
		return
	}

	// Segment complete.
	if seg.SkipToNext {
		next := l.config.SegmentAfter(*seg)
		if next == nil {
			l.completeFinalSegmentLocked()
			return
		}
		nextSeg := *next
		l.activeSegment = &nextSeg
		l.loopsDone = 0
		l.bus.Publish(domain.NewLoopStartedEvent(l.track.ID(), nextSeg))
		if err := l.beginHandoffLocked(nextSeg.Start, nextSeg.Crossfade, l.afterSkipHandoffLocked); err != nil {
			l.logger.Warn("segment-skip handoff failed, ending segment", "error", err)
			l.endSegmentFallbackLocked()
		}
		return
	}

	l.activeSegment = nil
	l.armNextBoundaryLocked()
}

// afterSkipHandoffLocked is the handoff continuation for segment-to-segment
// skips: playback now sits at the new segment's start, arm its crossfade.
func (l *Looper) afterSkipHandoffLocked() {
	l.armCrossfadeLocked()
}

// completeFinalSegmentLocked fades the track out after the last segment
// finishes its loop count with nothing to skip to. The ending handler may
// stop the track, which re-enters this looper through the host's cleanup
// path, so it runs on a fresh timer callback once the lock is released.
func (l *Looper) completeFinalSegmentLocked() {
	active := l.activeLocked()
	onEnding := l.opts.OnTrackEnding
	fadeDur := l.opts.PlaylistFadeOut
	if l.opts.PlaylistCrossfade > 0 {
		fadeDur = l.opts.PlaylistCrossfade
	}
	fader := l.fader

	l.teardownLocked(domain.LoopEndCompleted)

	l.clock.AfterFunc(0, func() {
		if onEnding != nil {
			onEnding()
			return
		}
		if active == nil || active.Stopped() {
			return
		}
		fader.FadeOutAndStop(active, fadeDur)
	})
}

// endSegmentFallbackLocked recovers from a failed handoff: the segment ends
// without a seamless transition, and scheduling continues from whatever
// position the track actually holds. Audio never drops out or doubles.
func (l *Looper) endSegmentFallbackLocked() {
	l.crossfading = false
	l.activeSegment = nil
	l.loopsDone = 0
	l.armNextBoundaryLocked()
}

// retireLocked is the terminal, intentional exit: no further loop work
// remains and the track keeps playing through the host's own handle. The
// final fade-out is scheduled against the track's natural end and survives
// the looper itself.
func (l *Looper) retireLocked(reason domain.LoopEndReason) {
	if l.destroyed {
		return
	}

	active := l.activeLocked()
	onEnding := l.opts.OnTrackEnding
	fadeDur := l.opts.PlaylistFadeOut
	if l.opts.PlaylistCrossfade > 0 {
		fadeDur = l.opts.PlaylistCrossfade
	}

	l.teardownLocked(reason)

	if active == nil {
		return
	}
	if onEnding == nil && fadeDur <= 0 {
		return
	}

	duration, err := active.Duration()
	if err != nil {
		l.logger.Warn("duration read failed, skipping retirement fade", "error", err)
		return
	}

	fader := l.fader
	active.Schedule(duration-fadeDur, func() {
		if active.Stopped() {
			return
		}
		if onEnding != nil {
			onEnding()
			return
		}
		fader.FadeOutAndStop(active, fadeDur)
	})
	l.logger.Debug("looper retired", slog.Duration("fadeAt", duration-fadeDur))
}

// teardownLocked cancels every timer, stops the inactive buffer, releases
// both slots, and publishes the end event. The active buffer keeps playing.
func (l *Looper) teardownLocked(reason domain.LoopEndReason) {
	l.destroyed = true
	l.cancelArmedLocked()
	l.cancelTimerLocked(&l.handoffTimer)
	l.cancelTimerLocked(&l.stallTimer)
	l.cancelTimerLocked(&l.settleTimer)

	if inactive := l.inactiveLocked(); inactive != nil && !inactive.Stopped() {
		_ = inactive.Stop()
	}
	l.soundA = nil
	l.soundB = nil
	l.crossfading = false

	l.bus.Publish(domain.NewLoopEndedEvent(l.track.ID(), reason))
}

// Pause cancels the boundary or crossfade timer. An in-flight handoff is
// allowed to complete; only future scheduling stops.
func (l *Looper) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return
	}
	l.cancelArmedLocked()
}

// Resume re-arms scheduling after a pause: the crossfade timer when a
// segment is active, the boundary timer otherwise. No-op while crossfading
// or destroyed.
func (l *Looper) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed || l.crossfading {
		return
	}
	if l.activeSegment != nil {
		l.armCrossfadeLocked()
		return
	}
	l.armNextBoundaryLocked()
}

// Break skips the current loop: an in-flight crossfade is aborted (the
// incoming buffer stops, the source fades back up) and the segment ends as
// if it had played out, re-arming the boundary timer for whatever is next.
func (l *Looper) Break() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return
	}
	l.abortCrossfadeLocked()
	l.activeSegment = nil
	l.loopsDone = 0
	l.armNextBoundaryLocked()
}

// Disable is Break plus a permanent stop: no further timers are armed and
// the final fade-out is scheduled immediately.
func (l *Looper) Disable() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return
	}
	l.abortCrossfadeLocked()
	l.activeSegment = nil
	l.disabled = true
	l.retireLocked(domain.LoopEndDisabled)
}

// abortCrossfadeLocked tears an in-flight handoff down: the incoming buffer
// stops and the source ramps back to the track volume.
func (l *Looper) abortCrossfadeLocked() {
	if !l.crossfading {
		return
	}
	l.cancelTimerLocked(&l.handoffTimer)
	l.cancelTimerLocked(&l.stallTimer)

	if incoming := l.inactiveLocked(); incoming != nil && !incoming.Stopped() {
		_ = incoming.Stop()
	}
	l.fader.Fade(l.activeLocked(), l.track.Volume(), breakFadeDuration)
	l.crossfading = false
}

// SkipToNextSegment crossfades directly into the segment after the active
// one (or the next upcoming segment when between segments).
func (l *Looper) SkipToNextSegment() error {
	return l.skipToAdjacent(true)
}

// SkipToPreviousSegment crossfades directly into the segment before the
// active one.
func (l *Looper) SkipToPreviousSegment() error {
	return l.skipToAdjacent(false)
}

func (l *Looper) skipToAdjacent(forward bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return domain.ErrLooperDestroyed
	}
	if l.crossfading {
		return domain.ErrCrossfadeFailed
	}

	var target *domain.Segment
	switch {
	case l.activeSegment != nil && forward:
		target = l.config.SegmentAfter(*l.activeSegment)
	case l.activeSegment != nil:
		target = l.config.SegmentBefore(*l.activeSegment)
	case forward:
		pos, err := l.activeLocked().CurrentTime()
		if err != nil {
			return domain.NewSoundError("skip", l.track.ID(), err)
		}
		target = l.config.NextSegment(pos)
	}
	if target == nil {
		return domain.ErrNoSegments
	}

	seg := *target
	l.cancelArmedLocked()
	l.activeSegment = &seg
	l.loopsDone = 0
	l.bus.Publish(domain.NewLoopStartedEvent(l.track.ID(), seg))

	crossfade := seg.Crossfade
	if crossfade <= 0 {
		crossfade = breakFadeDuration
	}
	if err := l.beginHandoffLocked(seg.Start, crossfade, l.afterSkipHandoffLocked); err != nil {
		l.endSegmentFallbackLocked()
		return err
	}
	return nil
}

// Destroy tears the looper down. With allowFadeOut the active buffer is left
// for the caller to fade and stop; otherwise both buffers stop immediately.
// Idempotent: a second call is a no-op, and pending callbacks against a
// destroyed instance do nothing.
func (l *Looper) Destroy(allowFadeOut bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return
	}

	active := l.activeLocked()
	l.teardownLocked(domain.LoopEndDestroyed)

	if !allowFadeOut && active != nil && !active.Stopped() {
		_ = active.Stop()
	}
}

// IsDestroyed reports whether the looper has been torn down or retired.
func (l *Looper) IsDestroyed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.destroyed
}

// IsCrossfading reports whether a handoff is in flight.
func (l *Looper) IsCrossfading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.crossfading
}

// ActiveSegment returns a copy of the segment being looped, if any.
func (l *Looper) ActiveSegment() (domain.Segment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.activeSegment == nil {
		return domain.Segment{}, false
	}
	return *l.activeSegment, true
}

// TrackID returns the id of the managed track.
func (l *Looper) TrackID() string {
	return l.track.ID()
}

func (l *Looper) activeLocked() ports.Sound {
	if l.activeIsA {
		return l.soundA
	}
	return l.soundB
}

func (l *Looper) inactiveLocked() ports.Sound {
	if l.activeIsA {
		return l.soundB
	}
	return l.soundA
}

func (l *Looper) cancelArmedLocked() {
	l.armed = armedNone
	l.cancelTimerLocked(&l.armedTimer)
}

func (l *Looper) cancelTimerLocked(t *ports.Timer) {
	if *t != nil {
		(*t).Cancel()
		*t = nil
	}
}
