// Package fade computes and applies gain-vs-time curves onto sound handles:
// exponential fades for single sounds and equal-power crossfades for pairs.
package fade

import (
	"math"
	"time"
)

const (
	// curveResolution is the number of samples in every generated curve.
	curveResolution = 64

	// volumeEpsilon substitutes for true-zero endpoints inside the
	// exponential computation, which cannot take log(0).
	volumeEpsilon = 1e-4

	// curveStartDelay offsets scheduled curves slightly into the future so
	// they do not collide with the set-current-value call that anchors the
	// curve start against a possibly-NaN prior value.
	curveStartDelay = time.Millisecond
)

// ExponentialCurve builds a fixed-resolution exponential volume ramp from
// start to target. All interior samples lie within [0,1]; the first and last
// samples exactly equal the requested start and target.
func ExponentialCurve(start, target float64) []float64 {
	from := clampUnit(start)
	to := clampUnit(target)

	// Compute against epsilon-floored values so zero endpoints stay finite.
	base := math.Max(from, volumeEpsilon)
	goal := math.Max(to, volumeEpsilon)

	curve := make([]float64, curveResolution)
	for i := range curve {
		t := float64(i) / float64(curveResolution-1)
		curve[i] = clampUnit(base * math.Pow(goal/base, t))
	}

	curve[0] = from
	curve[curveResolution-1] = to
	return curve
}

// EqualPowerCurves builds the simultaneous outgoing and incoming ramps of an
// equal-power crossfade. The outgoing curve runs from outStart to 0 along
// cos(t*pi/2); the incoming from 0 to inTarget along sin(t*pi/2). At every
// sampled progress the unscaled pair satisfies cos^2+sin^2 = 1, keeping the
// perceived power constant through the transition.
func EqualPowerCurves(outStart, inTarget float64) (out, in []float64) {
	from := clampUnit(outStart)
	to := clampUnit(inTarget)

	out = make([]float64, curveResolution)
	in = make([]float64, curveResolution)
	for i := range out {
		theta := float64(i) / float64(curveResolution-1) * math.Pi / 2
		out[i] = from * math.Cos(theta)
		in[i] = to * math.Sin(theta)
	}

	out[curveResolution-1] = 0
	in[curveResolution-1] = to
	return out, in
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
