package patch

import (
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/netconfig"
)

// ActorPatch is a sparse delta for one actor. A nil field means "unchanged".
type ActorPatch struct {
	ID         netconfig.ActorID
	Name       *string
	ParentID   *netconfig.ActorID
	Owner      *netconfig.SourceID
	Transform  *TransformPatch
	RigidBody  *RigidBodyPatch
	Collider   *ColliderPatch
	Attachment *AttachmentPatch
	Appearance *AppearancePatch
}

type TransformPatch struct {
	App   *AppTransformPatch
	Local *LocalTransformPatch
}

type AppTransformPatch struct {
	Position *gamemath.Vec3
	Rotation *gamemath.Quat
}

type LocalTransformPatch struct {
	Position *gamemath.Vec3
	Rotation *gamemath.Quat
	Scale    *gamemath.Vec3
}

type RigidBodyPatch struct {
	Mass             *float64
	Velocity         *gamemath.Vec3
	AngularVelocity  *gamemath.Vec3
	UseGravity       *bool
	IsKinematic      *bool
	DetectCollisions *bool
}

type ColliderPatch struct {
	Enabled   *bool
	IsTrigger *bool
	Geometry  *ColliderGeometry
}

type AttachmentPatch struct {
	UserID      *netconfig.SourceID
	AttachPoint *string
}

type AppearancePatch struct {
	Enabled    *bool
	MeshID     *string
	MaterialID *string
}

// IsEmpty reports whether applying p would change nothing.
func (p ActorPatch) IsEmpty() bool {
	return p.Name == nil && p.ParentID == nil && p.Owner == nil &&
		p.Transform.IsEmpty() && p.RigidBody.IsEmpty() && p.Collider.IsEmpty() &&
		p.Attachment.IsEmpty() && p.Appearance.IsEmpty()
}

func (p *TransformPatch) IsEmpty() bool {
	return p == nil || (p.App.IsEmpty() && p.Local.IsEmpty())
}

func (p *AppTransformPatch) IsEmpty() bool {
	return p == nil || (p.Position == nil && p.Rotation == nil)
}

func (p *LocalTransformPatch) IsEmpty() bool {
	return p == nil || (p.Position == nil && p.Rotation == nil && p.Scale == nil)
}

func (p *RigidBodyPatch) IsEmpty() bool {
	return p == nil || (p.Mass == nil && p.Velocity == nil && p.AngularVelocity == nil &&
		p.UseGravity == nil && p.IsKinematic == nil && p.DetectCollisions == nil)
}

func (p *ColliderPatch) IsEmpty() bool {
	return p == nil || (p.Enabled == nil && p.IsTrigger == nil && p.Geometry == nil)
}

func (p *AttachmentPatch) IsEmpty() bool {
	return p == nil || (p.UserID == nil && p.AttachPoint == nil)
}

func (p *AppearancePatch) IsEmpty() bool {
	return p == nil || (p.Enabled == nil && p.MeshID == nil && p.MaterialID == nil)
}

// FullTransform returns a patch that carries every transform field of s.
func FullTransform(s TransformState) *TransformPatch {
	return &TransformPatch{
		App: &AppTransformPatch{
			Position: ptr(s.App.Position),
			Rotation: ptr(s.App.Rotation),
		},
		Local: &LocalTransformPatch{
			Position: ptr(s.Local.Position),
			Rotation: ptr(s.Local.Rotation),
			Scale:    ptr(s.Local.Scale),
		},
	}
}

// FullRigidBody returns a patch that carries every rigid-body field of s.
func FullRigidBody(s RigidBodyState) *RigidBodyPatch {
	return &RigidBodyPatch{
		Mass:             ptr(s.Mass),
		Velocity:         ptr(s.Velocity),
		AngularVelocity:  ptr(s.AngularVelocity),
		UseGravity:       ptr(s.UseGravity),
		IsKinematic:      ptr(s.IsKinematic),
		DetectCollisions: ptr(s.DetectCollisions),
	}
}

func ptr[T any](v T) *T {
	return &v
}
