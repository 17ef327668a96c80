// Package physics declares what the synchronization core needs from a
// rigid-body engine and a scene graph, and ships two small implementations:
// an in-memory body for tests and tools, and a resolv-backed planar world
// used by the sandbox peer.
package physics

import (
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/netconfig"
)

// Body is one rigid body owned by the host engine. Positions and rotations
// are in engine world space.
type Body interface {
	Mass() float64
	SetMass(m float64)
	LinearVelocity() gamemath.Vec3
	SetLinearVelocity(v gamemath.Vec3)
	AngularVelocity() gamemath.Vec3
	SetAngularVelocity(w gamemath.Vec3)
	Position() gamemath.Vec3
	SetPosition(p gamemath.Vec3)
	Rotation() gamemath.Quat
	SetRotation(q gamemath.Quat)
	IsKinematic() bool
	SetKinematic(k bool)
}

// Engine advances the simulation of every non-kinematic body.
type Engine interface {
	Step(dt float64)
}

// SceneGraph resolves the world transforms replicated poses are expressed
// against.
type SceneGraph interface {
	// RootTransform is the world pose of the shared scene root.
	RootTransform() gamemath.Transform
	// ParentTransform is the world pose of the node a body hangs under.
	ParentTransform(id netconfig.BodyID) gamemath.Transform
}

// WorldTransform reads the engine pose of b.
func WorldTransform(b Body) gamemath.Transform {
	return gamemath.Transform{Position: b.Position(), Rotation: b.Rotation()}
}

// SetWorldTransform writes t into b.
func SetWorldTransform(b Body, t gamemath.Transform) {
	b.SetPosition(t.Position)
	b.SetRotation(t.Rotation)
}

// StaticScene is a SceneGraph with fixed transforms. Bodies without a parent
// entry hang directly under the root.
type StaticScene struct {
	Root    gamemath.Transform
	Parents map[netconfig.BodyID]gamemath.Transform
}

// NewStaticScene returns a scene whose root sits at the world origin.
func NewStaticScene() *StaticScene {
	return &StaticScene{
		Root:    gamemath.IdentityTransform,
		Parents: make(map[netconfig.BodyID]gamemath.Transform),
	}
}

func (s *StaticScene) RootTransform() gamemath.Transform {
	return s.Root
}

func (s *StaticScene) ParentTransform(id netconfig.BodyID) gamemath.Transform {
	if t, ok := s.Parents[id]; ok {
		return t
	}
	return s.Root
}
