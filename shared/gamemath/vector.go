package gamemath

import "github.com/go-gl/mathgl/mgl64"

// Vec3 is a value-type 3D vector backed by mgl64 arithmetic.
type Vec3 struct {
	X, Y, Z float64
}

// Zero is the zero vector.
var Zero = Vec3{}

func V3(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func (v Vec3) mgl() mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

func vecFromMgl(m mgl64.Vec3) Vec3 {
	return Vec3{X: m[0], Y: m[1], Z: m[2]}
}

func (v Vec3) Add(o Vec3) Vec3 {
	return vecFromMgl(v.mgl().Add(o.mgl()))
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return vecFromMgl(v.mgl().Sub(o.mgl()))
}

func (v Vec3) Scale(s float64) Vec3 {
	return vecFromMgl(v.mgl().Mul(s))
}

func (v Vec3) Dot(o Vec3) float64 {
	return v.mgl().Dot(o.mgl())
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return vecFromMgl(v.mgl().Cross(o.mgl()))
}

func (v Vec3) LengthSq() float64 {
	return v.mgl().LenSqr()
}

func (v Vec3) Length() float64 {
	return v.mgl().Len()
}

// Normalize returns the unit vector of v, or the zero vector when v has no
// length.
func (v Vec3) Normalize() Vec3 {
	if v.Length() == 0 {
		return Vec3{}
	}
	return vecFromMgl(v.mgl().Normalize())
}

// Lerp interpolates between v and o by t.
func (v Vec3) Lerp(o Vec3, t float64) Vec3 {
	return v.Add(o.Sub(v).Scale(t))
}

// ApproxEqual compares v and o component-wise within eps.
func (v Vec3) ApproxEqual(o Vec3, eps float64) bool {
	return NearlyEqual(v.X, o.X, eps) && NearlyEqual(v.Y, o.Y, eps) && NearlyEqual(v.Z, o.Z, eps)
}
