// Package utils contains the angle, planar-vector and fixed-point helpers
// shared by the trajectory packages. Distances are millimeters and angles
// radians unless stated otherwise.
package utils

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// NormalizeAngle wraps an arbitrary angle into [-pi, pi].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// NormalizeAngleLegacy is the wrap historically applied by the control loop:
// angles just outside [-pi, pi] are nudged by pi/2 instead of a full turn.
// Only meaningful for inputs already close to the principal range; kept so
// tunings that grew around it keep behaving the same. Selected via the
// trajectory config.
func NormalizeAngleLegacy(a float64) float64 {
	if a < -math.Pi {
		a += math.Pi / 2
	} else if a > math.Pi {
		a -= math.Pi / 2
	}
	return a
}

// ReduceModulo2Pi reduces an arbitrary angle into [-pi, pi].
func ReduceModulo2Pi(a float64) float64 {
	return NormalizeAngle(math.Mod(a, 2*math.Pi))
}

// ReduceModulo2PiLegacy reduces by the nearest truncated multiple of pi/2 and
// then applies the legacy wrap. Same caveat as NormalizeAngleLegacy.
func ReduceModulo2PiLegacy(a float64) float64 {
	res := a - math.Trunc(a/(math.Pi/2))*(math.Pi/2)
	return NormalizeAngleLegacy(res)
}

// BestDeltaAngle returns the shorter signed rotation equivalent to the raw
// angular delta a, given a in [-2pi, 2pi]. The result is in [-pi, pi] and
// represents the same net rotation modulo 2pi.
func BestDeltaAngle(a float64) float64 {
	switch {
	case a > math.Pi:
		return a - 2*math.Pi
	case a < -math.Pi:
		return a + 2*math.Pi
	default:
		return a
	}
}

// Dist returns the planar distance between two points. Z is ignored.
func Dist(p, q r3.Vector) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// AngleOf returns the angle of v relative to the +X axis.
func AngleOf(v r3.Vector) float64 {
	return math.Atan2(v.Y, v.X)
}

// ArcLength converts the chord between p and q into the length of the arc it
// subtends on a circle of the given radius, via the law of cosines. The chord
// must not exceed the circle's diameter.
func ArcLength(p, q r3.Vector, radius float64) (float64, error) {
	if radius <= 0 {
		return 0, errors.Errorf("arc radius must be positive, got %f", radius)
	}
	d := Dist(p, q) / radius
	if d > 2 {
		return 0, errors.Errorf("chord %f exceeds the diameter of a circle with radius %f", Dist(p, q), radius)
	}
	return radius * math.Acos(1-0.5*d*d), nil
}
