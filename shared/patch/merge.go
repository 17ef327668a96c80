package patch

// Merge folds newer over older: every field present in newer wins, fields
// only present in older are kept. Both patches must target the same actor.
func Merge(older, newer ActorPatch) ActorPatch {
	out := older
	out.ID = newer.ID
	pick(&out.Name, newer.Name)
	pick(&out.ParentID, newer.ParentID)
	pick(&out.Owner, newer.Owner)

	if newer.Transform != nil {
		t := TransformPatch{}
		if older.Transform != nil {
			t = *older.Transform
		}
		if newer.Transform.App != nil {
			app := AppTransformPatch{}
			if t.App != nil {
				app = *t.App
			}
			pick(&app.Position, newer.Transform.App.Position)
			pick(&app.Rotation, newer.Transform.App.Rotation)
			t.App = &app
		}
		if newer.Transform.Local != nil {
			local := LocalTransformPatch{}
			if t.Local != nil {
				local = *t.Local
			}
			pick(&local.Position, newer.Transform.Local.Position)
			pick(&local.Rotation, newer.Transform.Local.Rotation)
			pick(&local.Scale, newer.Transform.Local.Scale)
			t.Local = &local
		}
		out.Transform = &t
	}

	if newer.RigidBody != nil {
		rb := RigidBodyPatch{}
		if older.RigidBody != nil {
			rb = *older.RigidBody
		}
		n := newer.RigidBody
		pick(&rb.Mass, n.Mass)
		pick(&rb.Velocity, n.Velocity)
		pick(&rb.AngularVelocity, n.AngularVelocity)
		pick(&rb.UseGravity, n.UseGravity)
		pick(&rb.IsKinematic, n.IsKinematic)
		pick(&rb.DetectCollisions, n.DetectCollisions)
		out.RigidBody = &rb
	}

	if newer.Collider != nil {
		c := ColliderPatch{}
		if older.Collider != nil {
			c = *older.Collider
		}
		pick(&c.Enabled, newer.Collider.Enabled)
		pick(&c.IsTrigger, newer.Collider.IsTrigger)
		pick(&c.Geometry, newer.Collider.Geometry)
		out.Collider = &c
	}

	if newer.Attachment != nil {
		a := AttachmentPatch{}
		if older.Attachment != nil {
			a = *older.Attachment
		}
		pick(&a.UserID, newer.Attachment.UserID)
		pick(&a.AttachPoint, newer.Attachment.AttachPoint)
		out.Attachment = &a
	}

	if newer.Appearance != nil {
		a := AppearancePatch{}
		if older.Appearance != nil {
			a = *older.Appearance
		}
		pick(&a.Enabled, newer.Appearance.Enabled)
		pick(&a.MeshID, newer.Appearance.MeshID)
		pick(&a.MaterialID, newer.Appearance.MaterialID)
		out.Appearance = &a
	}
	return out
}

func pick[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}
