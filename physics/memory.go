package physics

import "github.com/automoto/bodysync/shared/gamemath"

// MemoryBody is a Body that only stores its state. Integrate moves it
// ballistically, which is enough for tools and tests that need motion
// without an engine.
type MemoryBody struct {
	mass      float64
	linear    gamemath.Vec3
	angular   gamemath.Vec3
	position  gamemath.Vec3
	rotation  gamemath.Quat
	kinematic bool
}

// NewMemoryBody returns a unit-mass body at p.
func NewMemoryBody(p gamemath.Vec3) *MemoryBody {
	return &MemoryBody{mass: 1, position: p, rotation: gamemath.Identity}
}

func (b *MemoryBody) Mass() float64                      { return b.mass }
func (b *MemoryBody) SetMass(m float64)                  { b.mass = m }
func (b *MemoryBody) LinearVelocity() gamemath.Vec3      { return b.linear }
func (b *MemoryBody) SetLinearVelocity(v gamemath.Vec3)  { b.linear = v }
func (b *MemoryBody) AngularVelocity() gamemath.Vec3     { return b.angular }
func (b *MemoryBody) SetAngularVelocity(w gamemath.Vec3) { b.angular = w }
func (b *MemoryBody) Position() gamemath.Vec3            { return b.position }
func (b *MemoryBody) SetPosition(p gamemath.Vec3)        { b.position = p }
func (b *MemoryBody) Rotation() gamemath.Quat            { return b.rotation }
func (b *MemoryBody) SetRotation(q gamemath.Quat)        { b.rotation = q }
func (b *MemoryBody) IsKinematic() bool                  { return b.kinematic }
func (b *MemoryBody) SetKinematic(k bool)                { b.kinematic = k }

// Integrate advances a dynamic body by dt seconds at constant velocity.
// Kinematic bodies are left alone.
func (b *MemoryBody) Integrate(dt float64) {
	if b.kinematic {
		return
	}
	b.position = b.position.Add(b.linear.Scale(dt))
	b.rotation = b.rotation.Integrate(b.angular, dt)
}
