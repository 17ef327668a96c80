package messages

import (
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/automoto/bodysync/shared/patch"
)

// BodySnapshot is the sampled state of one body, expressed relative to the
// shared scene root.
type BodySnapshot struct {
	ID              netconfig.BodyID
	Transform       gamemath.Transform
	LinearVelocity  gamemath.Vec3
	AngularVelocity gamemath.Vec3
	Motion          netconfig.MotionType
}

// Snapshot is a timestamped batch of body states from one source. Time is in
// seconds on the source's own clock.
type Snapshot struct {
	Source netconfig.SourceID
	Time   float64
	Flags  netconfig.SnapshotFlags
	Bodies []BodySnapshot
}

// Body returns the entry for id, if the snapshot carries one.
func (s Snapshot) Body(id netconfig.BodyID) (BodySnapshot, bool) {
	for _, b := range s.Bodies {
		if b.ID == id {
			return b, true
		}
	}
	return BodySnapshot{}, false
}

// TransformUpdate is one actor's absolute pose in a low-frequency upload.
// World* is relative to the scene root (app space), Local* to the parent.
type TransformUpdate struct {
	ActorID       netconfig.ActorID
	WorldPosition gamemath.Vec3
	WorldRotation gamemath.Quat
	LocalPosition gamemath.Vec3
	LocalRotation gamemath.Quat
}

// ServerTransformUpload lets a consumer without a physics engine keep an
// approximate world state. Emitted at most once per upload interval.
type ServerTransformUpload struct {
	InstanceID netconfig.SourceID
	Updates    []TransformUpdate
}

// SetOwnership hands write authority over a body to Source.
type SetOwnership struct {
	Body        netconfig.BodyID
	Source      netconfig.SourceID
	IsKinematic bool
}

// SetKeyframed toggles whether the owner pushes the body as keyframed.
type SetKeyframed struct {
	Body      netconfig.BodyID
	Keyframed bool
}

// BodySpawned announces a new replicated body and its initial owner.
type BodySpawned struct {
	Body        netconfig.BodyID
	Source      netconfig.SourceID
	IsKinematic bool
	Transform   gamemath.Transform
}

// BodyRemoved announces that a body left the simulation.
type BodyRemoved struct {
	Body netconfig.BodyID
}

// ActorUpdate carries one sparse actor patch on the application channel.
type ActorUpdate struct {
	Source netconfig.SourceID
	Patch  patch.ActorPatch
}
