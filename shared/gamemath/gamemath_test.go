package gamemath

import (
	"math"
	"testing"
)

const tol = 1e-9

func TestRotateQuarterTurn(t *testing.T) {
	q := QuatFromAxisAngle(V3(0, 0, 1), math.Pi/2)
	got := q.Rotate(V3(1, 0, 0))
	if !got.ApproxEqual(V3(0, 1, 0), tol) {
		t.Fatalf("rotate = %+v, want (0,1,0)", got)
	}
}

func TestQuatFromZeroAxis(t *testing.T) {
	if q := QuatFromAxisAngle(Zero, 1); q != Identity {
		t.Fatalf("zero axis = %+v, want identity", q)
	}
}

func TestTransformInverse(t *testing.T) {
	tr := Transform{
		Position: V3(3, -2, 5),
		Rotation: QuatFromAxisAngle(V3(1, 1, 0), 0.7),
	}
	if got := tr.Mul(tr.Inverse()); !got.ApproxEqual(IdentityTransform, 1e-9) {
		t.Fatalf("t * t^-1 = %+v", got)
	}
}

func TestRelativeToRoundTrip(t *testing.T) {
	frame := Transform{Position: V3(10, 0, 0), Rotation: QuatFromAxisAngle(V3(0, 0, 1), math.Pi/2)}
	local := Transform{Position: V3(1, 0, 0), Rotation: Identity}

	world := frame.Mul(local)
	if !world.Position.ApproxEqual(V3(10, 1, 0), tol) {
		t.Fatalf("world position = %+v, want (10,1,0)", world.Position)
	}
	if back := world.RelativeTo(frame); !back.ApproxEqual(local, 1e-9) {
		t.Fatalf("relative = %+v, want %+v", back, local)
	}
}

func TestAngularVelocityRoundTrip(t *testing.T) {
	w := V3(0, 0, 1)
	q := Identity.Integrate(w, 0.5)
	got := Identity.AngularVelocityTo(q, 0.5)
	if !got.ApproxEqual(w, 1e-9) {
		t.Fatalf("angular velocity = %+v, want %+v", got, w)
	}
	if v := Identity.AngularVelocityTo(q, 0); v != Zero {
		t.Fatalf("zero dt = %+v, want zero", v)
	}
}

func TestAxisAngleShortestArc(t *testing.T) {
	q := QuatFromAxisAngle(V3(0, 1, 0), 1.5*math.Pi) // same as -π/2
	axis, angle := q.AxisAngle()
	if !NearlyEqual(angle, math.Pi/2, 1e-9) {
		t.Fatalf("angle = %v, want π/2", angle)
	}
	if !axis.ApproxEqual(V3(0, -1, 0), 1e-9) {
		t.Fatalf("axis = %+v, want (0,-1,0)", axis)
	}
}

func TestSlerpHalfway(t *testing.T) {
	a := Identity
	b := QuatFromAxisAngle(V3(0, 0, 1), math.Pi/2)
	got := a.Slerp(b, 0.5)
	want := QuatFromAxisAngle(V3(0, 0, 1), math.Pi/4)
	if !got.ApproxEqual(want, 1e-9) {
		t.Fatalf("slerp = %+v, want %+v", got, want)
	}
	if d := a.AngleTo(got); !NearlyEqual(d, math.Pi/4, 1e-9) {
		t.Fatalf("angle to halfway = %v", d)
	}
}

func TestSlerpTakesShortestArc(t *testing.T) {
	a := Identity
	b := QuatFromAxisAngle(V3(0, 0, 1), math.Pi/2)
	flipped := Quat{X: -b.X, Y: -b.Y, Z: -b.Z, W: -b.W}
	got := a.Slerp(flipped, 0.5)
	if d := a.AngleTo(got); !NearlyEqual(d, math.Pi/4, 1e-9) {
		t.Fatalf("slerp toward negated target travelled %v, want π/4", d)
	}
}

func TestMulAppliesRightOperandFirst(t *testing.T) {
	yaw := QuatFromAxisAngle(V3(0, 0, 1), math.Pi/2)
	pitch := QuatFromAxisAngle(V3(0, 1, 0), math.Pi/2)
	v := V3(1, 0, 0)
	if got, want := yaw.Mul(pitch).Rotate(v), yaw.Rotate(pitch.Rotate(v)); !got.ApproxEqual(want, tol) {
		t.Fatalf("composed rotate = %+v, want %+v", got, want)
	}
	if got := yaw.Mul(yaw.Conjugate()); !got.ApproxEqual(Identity, tol) {
		t.Fatalf("q * q* = %+v, want identity", got)
	}
}

func TestNormalizeDegenerate(t *testing.T) {
	if q := (Quat{}).Normalize(); q != Identity {
		t.Fatalf("zero quaternion normalized to %+v", q)
	}
	if v := Zero.Normalize(); v != Zero {
		t.Fatalf("zero vector normalized to %+v", v)
	}
}

func TestClampLength(t *testing.T) {
	tests := []struct {
		in      Vec3
		max     float64
		want    Vec3
		clamped bool
	}{
		{V3(3, 4, 0), 2.5, V3(1.5, 2, 0), true},
		{V3(3, 4, 0), 5, V3(3, 4, 0), false},
		{V3(3, 4, 0), 0, V3(3, 4, 0), false},
	}
	for _, tc := range tests {
		got, clamped := ClampLength(tc.in, tc.max)
		if clamped != tc.clamped || !got.ApproxEqual(tc.want, tol) {
			t.Fatalf("ClampLength(%+v, %v) = %+v, %v", tc.in, tc.max, got, clamped)
		}
	}
}

func TestClampSpeed(t *testing.T) {
	if ClampSpeed(12, 10) != 10 || ClampSpeed(-12, 10) != -10 || ClampSpeed(3, 10) != 3 {
		t.Fatal("ClampSpeed out of range")
	}
}

func TestIsFinite(t *testing.T) {
	if !IsFinite(V3(1, 2, 3)) {
		t.Fatal("finite vector rejected")
	}
	if IsFinite(V3(math.NaN(), 0, 0)) || IsFinite(V3(0, math.Inf(1), 0)) {
		t.Fatal("non-finite vector accepted")
	}
}
