package gamemath

// Transform is a rigid pose: a position plus a rotation.
type Transform struct {
	Position Vec3
	Rotation Quat
}

// IdentityTransform places a body at the origin with no rotation.
var IdentityTransform = Transform{Rotation: Identity}

// Mul returns the pose of child (expressed in t's frame) in t's parent frame.
func (t Transform) Mul(child Transform) Transform {
	return Transform{
		Position: t.Position.Add(t.Rotation.Rotate(child.Position)),
		Rotation: t.Rotation.Mul(child.Rotation).Normalize(),
	}
}

// Inverse returns the transform that undoes t.
func (t Transform) Inverse() Transform {
	inv := t.Rotation.Conjugate()
	return Transform{
		Position: inv.Rotate(t.Position.Scale(-1)),
		Rotation: inv,
	}
}

// RelativeTo expresses the world pose t in the frame whose world pose is
// frame.
func (t Transform) RelativeTo(frame Transform) Transform {
	return frame.Inverse().Mul(t)
}

// ApproxEqual compares both position and rotation within eps.
func (t Transform) ApproxEqual(o Transform, eps float64) bool {
	return t.Position.ApproxEqual(o.Position, eps) && t.Rotation.ApproxEqual(o.Rotation, eps)
}
