package gamemath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Quat is a rotation quaternion. The zero value is not a valid rotation; use
// Identity. Arithmetic is delegated to mgl64; the named components keep the
// wire and log format readable.
type Quat struct {
	X, Y, Z, W float64
}

// Identity is the no-rotation quaternion.
var Identity = Quat{W: 1}

func (q Quat) mgl() mgl64.Quat {
	return mgl64.Quat{W: q.W, V: mgl64.Vec3{q.X, q.Y, q.Z}}
}

func quatFromMgl(m mgl64.Quat) Quat {
	return Quat{X: m.V[0], Y: m.V[1], Z: m.V[2], W: m.W}
}

// QuatFromAxisAngle builds a rotation of angle radians around axis. A zero
// axis yields Identity.
func QuatFromAxisAngle(axis Vec3, angle float64) Quat {
	axis = axis.Normalize()
	if axis == Zero {
		return Identity
	}
	return quatFromMgl(mgl64.QuatRotate(angle, axis.mgl()))
}

// Mul composes q and o so that the result applies o first, then q.
func (q Quat) Mul(o Quat) Quat {
	return quatFromMgl(q.mgl().Mul(o.mgl()))
}

func (q Quat) Conjugate() Quat {
	return quatFromMgl(q.mgl().Conjugate())
}

func (q Quat) Dot(o Quat) float64 {
	return q.mgl().Dot(o.mgl())
}

// Normalize returns q scaled to unit length; a degenerate quaternion becomes
// Identity.
func (q Quat) Normalize() Quat {
	l := q.mgl().Len()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return Identity
	}
	return quatFromMgl(q.mgl().Scale(1 / l))
}

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	return vecFromMgl(q.mgl().Rotate(v.mgl()))
}

func (q Quat) negate() Quat {
	return Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
}

// AxisAngle decomposes q into a unit axis and an angle in [0, π] following
// the shortest arc.
func (q Quat) AxisAngle() (Vec3, float64) {
	q = q.Normalize()
	if q.W < 0 {
		q = q.negate()
	}
	s := math.Sqrt(1 - q.W*q.W)
	if s < 1e-9 {
		return Vec3{}, 0
	}
	angle := 2 * math.Acos(mgl64.Clamp(q.W, -1, 1))
	return Vec3{X: q.X / s, Y: q.Y / s, Z: q.Z / s}, angle
}

// AngleTo returns the shortest angle in radians between q and o.
func (q Quat) AngleTo(o Quat) float64 {
	d := math.Abs(q.Normalize().Dot(o.Normalize()))
	return 2 * math.Acos(math.Min(1, d))
}

// Integrate advances q by the angular velocity w (radians per second) over
// dt seconds.
func (q Quat) Integrate(w Vec3, dt float64) Quat {
	speed := w.Length()
	if speed == 0 || dt == 0 {
		return q
	}
	return QuatFromAxisAngle(w, speed*dt).Mul(q).Normalize()
}

// AngularVelocityTo returns the angular velocity that rotates q onto o in dt
// seconds along the shortest arc.
func (q Quat) AngularVelocityTo(o Quat, dt float64) Vec3 {
	if dt <= 0 {
		return Vec3{}
	}
	axis, angle := o.Mul(q.Conjugate()).AxisAngle()
	return axis.Scale(angle / dt)
}

// Slerp spherically interpolates from q to o by t along the shortest arc.
func (q Quat) Slerp(o Quat, t float64) Quat {
	if q.Dot(o) < 0 {
		o = o.negate()
	}
	return quatFromMgl(mgl64.QuatSlerp(q.Normalize().mgl(), o.Normalize().mgl(), t))
}

// ApproxEqual compares q and o component-wise within eps.
func (q Quat) ApproxEqual(o Quat, eps float64) bool {
	return NearlyEqual(q.X, o.X, eps) && NearlyEqual(q.Y, o.Y, eps) &&
		NearlyEqual(q.Z, o.Z, eps) && NearlyEqual(q.W, o.W, eps)
}
