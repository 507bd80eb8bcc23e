package fade

import (
	"log/slog"
	"math"
	"time"

	"github.com/lumeaudio/segue/internal/ports"
)

// Engine applies volume transitions onto sound handles through their
// scheduled gain parameters.
//
// Thread-safety: this implementation is thread-safe.
type Engine struct {
	logger *slog.Logger
	clock  ports.Clock
}

// NewEngine creates a fade engine.
func NewEngine(logger *slog.Logger, clock ports.Clock) *Engine {
	return &Engine{
		logger: logger,
		clock:  clock,
	}
}

// Fade ramps the sound's gain exponentially to target over duration. The
// current gain is re-asserted first so the curve starts from a defined value
// even when the engine reports NaN; the curve itself begins slightly in the
// future so the two writes cannot land on the same instant. A non-positive
// duration sets the target immediately.
func (e *Engine) Fade(sound ports.Sound, target float64, duration time.Duration) {
	if sound == nil {
		return
	}
	gain := sound.Gain()

	if duration <= 0 {
		gain.CancelScheduledValues(0)
		gain.SetValueAtTime(clampUnit(target), 0)
		return
	}

	start := gain.Value()
	if math.IsNaN(start) {
		start = clampUnit(target)
	}

	gain.CancelScheduledValues(0)
	gain.SetValueAtTime(clampUnit(start), 0)
	gain.SetValueCurveAtTime(ExponentialCurve(start, target), curveStartDelay, duration)
}

// Crossfade runs an equal-power transition between two sounds: the outgoing
// gain ramps from its current value to zero while the incoming ramps from
// zero to inTarget. A non-positive duration snaps both gains instead of
// curving.
//
// The returned timer is a stall guard armed at half duration: if the incoming
// gain has not crossed half its target by then the engine assumes the ramp
// was dropped and sets the target directly. Callers cancel the guard when
// they tear the transition down early.
func (e *Engine) Crossfade(out, in ports.Sound, inTarget float64, duration time.Duration) ports.Timer {
	if in == nil {
		return nil
	}
	inGain := in.Gain()

	if duration <= 0 {
		if out != nil {
			out.Gain().CancelScheduledValues(0)
			out.Gain().SetValueAtTime(0, 0)
		}
		inGain.CancelScheduledValues(0)
		inGain.SetValueAtTime(clampUnit(inTarget), 0)
		return nil
	}

	outStart := clampUnit(inTarget)
	if out != nil {
		if v := out.Gain().Value(); !math.IsNaN(v) {
			outStart = clampUnit(v)
		}
	}

	outCurve, inCurve := EqualPowerCurves(outStart, inTarget)

	if out != nil {
		out.Gain().CancelScheduledValues(0)
		out.Gain().SetValueCurveAtTime(outCurve, 0, duration)
	}
	inGain.CancelScheduledValues(0)
	inGain.SetValueAtTime(0, 0)
	inGain.SetValueCurveAtTime(inCurve, 0, duration)

	target := clampUnit(inTarget)
	return e.clock.AfterFunc(duration/2, func() {
		v := inGain.Value()
		if math.IsNaN(v) || v < target/2 {
			e.logger.Warn("crossfade ramp stalled, forcing target volume",
				"value", v, "target", target)
			inGain.SetValueAtTime(target, 0)
		}
	})
}

// FadeOutAndStop ramps the sound to silence and stops it once the ramp has
// run its course. Returns the stop timer so callers can cancel the teardown.
func (e *Engine) FadeOutAndStop(sound ports.Sound, duration time.Duration) ports.Timer {
	if sound == nil {
		return nil
	}
	if duration <= 0 {
		_ = sound.Stop()
		return nil
	}

	e.Fade(sound, 0, duration)
	return e.clock.AfterFunc(duration, func() {
		if !sound.Stopped() {
			if err := sound.Stop(); err != nil {
				e.logger.Warn("stop after fade-out failed", "error", err)
			}
		}
	})
}
