package patch

// Apply returns target with every present field of p written over it. The
// input state is not modified and applying the same patch twice yields the
// same result as applying it once.
func Apply(target ActorState, p ActorPatch) ActorState {
	next := target.Clone()

	if p.Name != nil {
		next.Name = *p.Name
	}
	if p.ParentID != nil {
		next.ParentID = *p.ParentID
	}
	if p.Owner != nil {
		next.Owner = *p.Owner
	}

	if t := p.Transform; t != nil {
		if t.App != nil {
			setIf(&next.Transform.App.Position, t.App.Position)
			setIf(&next.Transform.App.Rotation, t.App.Rotation)
		}
		if t.Local != nil {
			setIf(&next.Transform.Local.Position, t.Local.Position)
			setIf(&next.Transform.Local.Rotation, t.Local.Rotation)
			setIf(&next.Transform.Local.Scale, t.Local.Scale)
		}
	}

	if rp := p.RigidBody; !rp.IsEmpty() {
		if next.RigidBody == nil {
			next.RigidBody = &RigidBodyState{}
		}
		rb := next.RigidBody
		setIf(&rb.Mass, rp.Mass)
		setIf(&rb.Velocity, rp.Velocity)
		setIf(&rb.AngularVelocity, rp.AngularVelocity)
		setIf(&rb.UseGravity, rp.UseGravity)
		setIf(&rb.IsKinematic, rp.IsKinematic)
		setIf(&rb.DetectCollisions, rp.DetectCollisions)
	}

	if cp := p.Collider; !cp.IsEmpty() {
		if next.Collider == nil {
			next.Collider = &ColliderState{}
		}
		setIf(&next.Collider.Enabled, cp.Enabled)
		setIf(&next.Collider.IsTrigger, cp.IsTrigger)
		setIf(&next.Collider.Geometry, cp.Geometry)
	}

	if ap := p.Attachment; ap != nil {
		setIf(&next.Attachment.UserID, ap.UserID)
		setIf(&next.Attachment.AttachPoint, ap.AttachPoint)
	}

	if ap := p.Appearance; ap != nil {
		setIf(&next.Appearance.Enabled, ap.Enabled)
		setIf(&next.Appearance.MeshID, ap.MeshID)
		setIf(&next.Appearance.MaterialID, ap.MaterialID)
	}

	return next
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
