package patch

import "github.com/automoto/bodysync/shared/gamemath"

// Generate returns the fields of current that differ from baseline by more
// than eps. It never encodes a deletion: a sub-record present in baseline but
// missing from current produces no patch for that record.
func Generate(current, baseline ActorState, eps float64) ActorPatch {
	p := ActorPatch{ID: current.ID}

	if current.Name != baseline.Name {
		p.Name = ptr(current.Name)
	}
	if current.ParentID != baseline.ParentID {
		p.ParentID = ptr(current.ParentID)
	}
	if current.Owner != baseline.Owner {
		p.Owner = ptr(current.Owner)
	}

	if tp := diffTransform(current.Transform, baseline.Transform, eps); !tp.IsEmpty() {
		p.Transform = tp
	}

	switch {
	case current.RigidBody == nil:
	case baseline.RigidBody == nil:
		p.RigidBody = FullRigidBody(*current.RigidBody)
	default:
		if rp := diffRigidBody(*current.RigidBody, *baseline.RigidBody, eps); !rp.IsEmpty() {
			p.RigidBody = rp
		}
	}

	switch {
	case current.Collider == nil:
	case baseline.Collider == nil:
		c := *current.Collider
		p.Collider = &ColliderPatch{Enabled: ptr(c.Enabled), IsTrigger: ptr(c.IsTrigger), Geometry: ptr(c.Geometry)}
	default:
		if cp := diffCollider(*current.Collider, *baseline.Collider, eps); !cp.IsEmpty() {
			p.Collider = cp
		}
	}

	if ap := diffAttachment(current.Attachment, baseline.Attachment); !ap.IsEmpty() {
		p.Attachment = ap
	}
	if ap := diffAppearance(current.Appearance, baseline.Appearance); !ap.IsEmpty() {
		p.Appearance = ap
	}
	return p
}

func diffTransform(cur, base TransformState, eps float64) *TransformPatch {
	tp := &TransformPatch{}

	app := &AppTransformPatch{}
	if !cur.App.Position.ApproxEqual(base.App.Position, eps) {
		app.Position = ptr(cur.App.Position)
	}
	if !cur.App.Rotation.ApproxEqual(base.App.Rotation, eps) {
		app.Rotation = ptr(cur.App.Rotation)
	}
	if !app.IsEmpty() {
		tp.App = app
	}

	local := &LocalTransformPatch{}
	if !cur.Local.Position.ApproxEqual(base.Local.Position, eps) {
		local.Position = ptr(cur.Local.Position)
	}
	if !cur.Local.Rotation.ApproxEqual(base.Local.Rotation, eps) {
		local.Rotation = ptr(cur.Local.Rotation)
	}
	if !cur.Local.Scale.ApproxEqual(base.Local.Scale, eps) {
		local.Scale = ptr(cur.Local.Scale)
	}
	if !local.IsEmpty() {
		tp.Local = local
	}
	return tp
}

func diffRigidBody(cur, base RigidBodyState, eps float64) *RigidBodyPatch {
	rp := &RigidBodyPatch{}
	if !gamemath.NearlyEqual(cur.Mass, base.Mass, eps) {
		rp.Mass = ptr(cur.Mass)
	}
	if !cur.Velocity.ApproxEqual(base.Velocity, eps) {
		rp.Velocity = ptr(cur.Velocity)
	}
	if !cur.AngularVelocity.ApproxEqual(base.AngularVelocity, eps) {
		rp.AngularVelocity = ptr(cur.AngularVelocity)
	}
	if cur.UseGravity != base.UseGravity {
		rp.UseGravity = ptr(cur.UseGravity)
	}
	if cur.IsKinematic != base.IsKinematic {
		rp.IsKinematic = ptr(cur.IsKinematic)
	}
	if cur.DetectCollisions != base.DetectCollisions {
		rp.DetectCollisions = ptr(cur.DetectCollisions)
	}
	return rp
}

func diffCollider(cur, base ColliderState, eps float64) *ColliderPatch {
	cp := &ColliderPatch{}
	if cur.Enabled != base.Enabled {
		cp.Enabled = ptr(cur.Enabled)
	}
	if cur.IsTrigger != base.IsTrigger {
		cp.IsTrigger = ptr(cur.IsTrigger)
	}
	if !geometryEqual(cur.Geometry, base.Geometry, eps) {
		cp.Geometry = ptr(cur.Geometry)
	}
	return cp
}

func geometryEqual(a, b ColliderGeometry, eps float64) bool {
	return a.Shape == b.Shape &&
		a.Center.ApproxEqual(b.Center, eps) &&
		a.Size.ApproxEqual(b.Size, eps) &&
		gamemath.NearlyEqual(a.Radius, b.Radius, eps)
}

func diffAttachment(cur, base AttachmentState) *AttachmentPatch {
	ap := &AttachmentPatch{}
	if cur.UserID != base.UserID {
		ap.UserID = ptr(cur.UserID)
	}
	if cur.AttachPoint != base.AttachPoint {
		ap.AttachPoint = ptr(cur.AttachPoint)
	}
	return ap
}

func diffAppearance(cur, base AppearanceState) *AppearancePatch {
	ap := &AppearancePatch{}
	if cur.Enabled != base.Enabled {
		ap.Enabled = ptr(cur.Enabled)
	}
	if cur.MeshID != base.MeshID {
		ap.MeshID = ptr(cur.MeshID)
	}
	if cur.MaterialID != base.MaterialID {
		ap.MaterialID = ptr(cur.MaterialID)
	}
	return ap
}
