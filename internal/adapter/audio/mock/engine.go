// Package mock provides a mock implementation of the Sound and SoundSource
// interfaces. It is used for testing the orchestration services without a
// live audio engine: playback positions derive from the injected clock, so a
// virtual clock makes every timing scenario deterministic.
package mock

import (
	"math"
	"sync"
	"time"

	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/ports"
)

// Engine is a mock SoundSource. It manufactures Sound handles whose playback
// clock is the injected ports.Clock.
//
// Thread-safety: this implementation is thread-safe.
type Engine struct {
	clock ports.Clock

	mu              sync.RWMutex
	defaultDuration time.Duration
	durations       map[string]time.Duration
	created         []*Sound

	// Behavior configuration (for testing error scenarios)
	failNewSound bool
	failPlay     bool
}

// NewEngine creates a new mock sound source.
func NewEngine(clock ports.Clock) *Engine {
	return &Engine{
		clock:           clock,
		defaultDuration: 3 * time.Minute,
		durations:       make(map[string]time.Duration),
	}
}

// SetDefaultDuration sets the duration reported by sounds created afterwards.
func (e *Engine) SetDefaultDuration(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaultDuration = d
}

// SetTrackDuration overrides the duration for one track id.
func (e *Engine) SetTrackDuration(trackID string, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.durations[trackID] = d
}

// SetFailNewSound configures the mock to fail handle creation (for testing).
func (e *Engine) SetFailNewSound(fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNewSound = fail
}

// SetFailPlay configures every sound's Play to fail (for testing).
func (e *Engine) SetFailPlay(fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failPlay = fail
}

// CreatedSounds returns every handle this engine has manufactured, in order.
func (e *Engine) CreatedSounds() []*Sound {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Sound, len(e.created))
	copy(out, e.created)
	return out
}

// NewSound creates a fresh stopped handle for the track.
func (e *Engine) NewSound(track ports.Track) (ports.Sound, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failNewSound {
		return nil, domain.NewSoundError("load", track.ID(), domain.ErrSoundUnavailable)
	}

	duration := e.defaultDuration
	if d, ok := e.durations[track.ID()]; ok {
		duration = d
	}

	s := &Sound{
		engine:   e,
		clock:    e.clock,
		trackID:  track.ID(),
		duration: duration,
		gain:     newGain(e.clock),
	}
	e.created = append(e.created, s)
	return s, nil
}

// Sound is one mock buffer handle. Position advances with the engine's clock
// while the sound plays.
type Sound struct {
	engine  *Engine
	clock   ports.Clock
	trackID string

	mu       sync.Mutex
	duration time.Duration
	playing  bool
	stopped  bool
	anchor   time.Time     // clock reading when playback last (re)started
	offset   time.Duration // position at anchor

	gain *Gain

	// Call recording for test assertions
	playCalls      int
	stopCalls      int
	lastPlayOffset time.Duration
	lastPlayVolume float64
}

// TrackID returns the owning track's id.
func (s *Sound) TrackID() string {
	return s.trackID
}

// Play starts or seeks the sound. Playing a stopped (unloaded) handle fails;
// the caller must reload through the source.
func (s *Sound) Play(offset time.Duration, volume float64) error {
	s.engine.mu.RLock()
	fail := s.engine.failPlay
	s.engine.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if fail {
		return domain.NewSoundError("play", s.trackID, domain.ErrSoundUnavailable)
	}
	if s.stopped {
		return domain.NewSoundError("play", s.trackID, domain.ErrSoundUnavailable)
	}

	s.playing = true
	s.anchor = s.clock.Now()
	s.offset = offset
	s.playCalls++
	s.lastPlayOffset = offset
	s.lastPlayVolume = volume
	s.gain.SetValueAtTime(volume, 0)
	return nil
}

// Pause halts playback keeping position.
func (s *Sound) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.playing {
		s.offset = s.positionLocked()
		s.playing = false
	}
	return nil
}

// Stop halts playback and unloads the handle.
func (s *Sound) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.playing = false
	s.stopped = true
	s.offset = 0
	s.stopCalls++
	return nil
}

// Playing reports whether the sound is audible.
func (s *Sound) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Stopped reports whether the handle was stopped and unloaded.
func (s *Sound) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// CurrentTime returns the playback position.
func (s *Sound) CurrentTime() (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, domain.NewSoundError("position", s.trackID, domain.ErrSoundUnavailable)
	}
	return s.positionLocked(), nil
}

// positionLocked computes the position from the clock; caller holds s.mu.
func (s *Sound) positionLocked() time.Duration {
	if !s.playing {
		return s.offset
	}
	pos := s.offset + s.clock.Now().Sub(s.anchor)
	if pos > s.duration {
		pos = s.duration
	}
	return pos
}

// Duration returns the buffer length.
func (s *Sound) Duration() (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration, nil
}

// Gain returns the sound's gain parameter.
func (s *Sound) Gain() ports.GainParam {
	return s.gain
}

// MockGain returns the concrete gain for test inspection.
func (s *Sound) MockGain() *Gain {
	return s.gain
}

// Schedule fires fn when playback reaches the given in-track point. The mock
// assumes continuous playback from the current position, which holds in tests
// because loopers cancel their schedules around pauses.
func (s *Sound) Schedule(at time.Duration, fn func()) ports.Timer {
	s.mu.Lock()
	delay := at - s.positionLocked()
	s.mu.Unlock()

	if delay < 0 {
		delay = 0
	}
	return s.clock.AfterFunc(delay, fn)
}

// PlayCalls returns how many times Play was invoked.
func (s *Sound) PlayCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playCalls
}

// StopCalls returns how many times Stop was invoked.
func (s *Sound) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// LastPlay returns the offset and volume of the most recent Play call.
func (s *Sound) LastPlay() (time.Duration, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPlayOffset, s.lastPlayVolume
}

// Gain is the mock scheduled-gain parameter. It records curve applications
// for assertions and realises a curve by snapping to its final sample when
// the curve's duration elapses.
type Gain struct {
	clock ports.Clock

	mu      sync.Mutex
	value   float64
	pending []ports.Timer
	curves  []CurveApplication
}

// CurveApplication records one SetValueCurveAtTime call.
type CurveApplication struct {
	Curve    []float64
	Delay    time.Duration
	Duration time.Duration
}

func newGain(clock ports.Clock) *Gain {
	return &Gain{
		clock: clock,
		value: math.NaN(), // engines report NaN before the first explicit set
	}
}

// Value returns the current gain, NaN before the first set.
func (g *Gain) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// SetValueAtTime sets the gain now or at a future clock point.
func (g *Gain) SetValueAtTime(value float64, delay time.Duration) {
	if delay <= 0 {
		g.mu.Lock()
		g.value = value
		g.mu.Unlock()
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	var t ports.Timer
	t = g.clock.AfterFunc(delay, func() {
		g.mu.Lock()
		g.value = value
		g.mu.Unlock()
	})
	g.pending = append(g.pending, t)
}

// SetValueCurveAtTime records the curve and snaps to its final sample once
// the duration elapses. Intermediate samples are not simulated; the fade
// engine's stalled-ramp fallback is expected to cover the midpoint.
func (g *Gain) SetValueCurveAtTime(curve []float64, delay, duration time.Duration) {
	if len(curve) == 0 {
		return
	}

	final := curve[len(curve)-1]
	g.mu.Lock()
	g.curves = append(g.curves, CurveApplication{
		Curve:    append([]float64(nil), curve...),
		Delay:    delay,
		Duration: duration,
	})
	t := g.clock.AfterFunc(delay+duration, func() {
		g.mu.Lock()
		g.value = final
		g.mu.Unlock()
	})
	g.pending = append(g.pending, t)
	g.mu.Unlock()
}

// CancelScheduledValues cancels all pending sets and curve completions.
func (g *Gain) CancelScheduledValues(_ time.Duration) {
	g.mu.Lock()
	pending := g.pending
	g.pending = nil
	g.mu.Unlock()

	for _, t := range pending {
		t.Cancel()
	}
}

// Curves returns the recorded curve applications.
func (g *Gain) Curves() []CurveApplication {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]CurveApplication, len(g.curves))
	copy(out, g.curves)
	return out
}

// SetValueNow force-sets the gain, bypassing scheduling (test setup helper).
func (g *Gain) SetValueNow(value float64) {
	g.mu.Lock()
	g.value = value
	g.mu.Unlock()
}

// Verify interface compliance
var (
	_ ports.SoundSource = (*Engine)(nil)
	_ ports.Sound       = (*Sound)(nil)
	_ ports.GainParam   = (*Gain)(nil)
)
