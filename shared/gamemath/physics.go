package gamemath

import "math"

// Epsilon is the default tolerance used when comparing replicated floats.
const Epsilon = 1e-5

// NearlyEqual reports whether a and b differ by no more than eps.
func NearlyEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

// ClampSpeed clamps a value to [-max, max].
func ClampSpeed(speed, max float64) float64 {
	if speed > max {
		return max
	}
	if speed < -max {
		return -max
	}
	return speed
}

// ClampLength scales v down so that its magnitude does not exceed max. The
// direction is preserved. A non-positive max disables the clamp. The second
// return value reports whether v was shortened.
func ClampLength(v Vec3, max float64) (Vec3, bool) {
	if max <= 0 {
		return v, false
	}
	lenSq := v.LengthSq()
	if lenSq <= max*max {
		return v, false
	}
	return v.Scale(max / math.Sqrt(lenSq)), true
}

// IsFinite reports whether every component of v is a real number.
func IsFinite(v Vec3) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
