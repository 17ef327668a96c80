// Package patch holds the sparse actor patch model and the pure functions
// that diff and apply it. Present patch fields fully replace the matching
// state field; absent fields are left untouched. Patches never delete.
package patch

import (
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/netconfig"
)

// ActorState is the full replicated state of one actor.
type ActorState struct {
	ID         netconfig.ActorID
	Name       string
	ParentID   netconfig.ActorID
	Owner      netconfig.SourceID
	Transform  TransformState
	RigidBody  *RigidBodyState
	Collider   *ColliderState
	Attachment AttachmentState
	Appearance AppearanceState
}

// TransformState holds the actor pose in app (scene root) space and in its
// parent's local space.
type TransformState struct {
	App   gamemath.Transform
	Local LocalTransform
}

type LocalTransform struct {
	Position gamemath.Vec3
	Rotation gamemath.Quat
	Scale    gamemath.Vec3
}

type RigidBodyState struct {
	Mass             float64
	Velocity         gamemath.Vec3
	AngularVelocity  gamemath.Vec3
	UseGravity       bool
	IsKinematic      bool
	DetectCollisions bool
}

// ColliderShape enumerates the supported collider geometries.
type ColliderShape uint8

const (
	ShapeBox ColliderShape = iota
	ShapeSphere
	ShapeCapsule
)

type ColliderGeometry struct {
	Shape  ColliderShape
	Center gamemath.Vec3
	Size   gamemath.Vec3
	Radius float64
}

type ColliderState struct {
	Enabled   bool
	IsTrigger bool
	Geometry  ColliderGeometry
}

// AttachmentState links an actor to a user's attach point. An empty UserID
// means unattached.
type AttachmentState struct {
	UserID      netconfig.SourceID
	AttachPoint string
}

type AppearanceState struct {
	Enabled    bool
	MeshID     string
	MaterialID string
}

// Clone returns a deep copy so callers never share nested records.
func (s ActorState) Clone() ActorState {
	out := s
	if s.RigidBody != nil {
		rb := *s.RigidBody
		out.RigidBody = &rb
	}
	if s.Collider != nil {
		c := *s.Collider
		out.Collider = &c
	}
	return out
}
