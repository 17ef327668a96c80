package physics

import (
	"math"
	"sort"

	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/automoto/bodysync/tags"
	"github.com/solarlune/resolv"
)

// PlanarConfig tunes the planar world. Lengths are world units; the resolv
// space works in pixels, PixelsPerUnit converts between them. Y grows
// downward like screen space.
type PlanarConfig struct {
	PixelsPerUnit  float64
	Gravity        float64 // units/s²
	Friction       float64 // Horizontal deceleration on ground, units/s²
	MaxFallSpeed   float64 // units/s
	AngularDamping float64 // Fraction of spin lost per second on ground
}

func DefaultPlanarConfig() PlanarConfig {
	return PlanarConfig{
		PixelsPerUnit:  16,
		Gravity:        9.81,
		Friction:       6,
		MaxFallSpeed:   20,
		AngularDamping: 0.9,
	}
}

// PlanarWorld is a small axis-aligned box world on top of resolv: gravity,
// ground friction and solid collision for dynamic bodies. Rotation is a
// spin about +Z and does not affect collision shapes.
type PlanarWorld struct {
	cfg    PlanarConfig
	space  *resolv.Space
	bodies map[netconfig.BodyID]*PlanarBody
	order  []netconfig.BodyID
}

// NewPlanarWorld creates a world of width×height pixels.
func NewPlanarWorld(width, height int, cfg PlanarConfig) *PlanarWorld {
	if cfg.PixelsPerUnit <= 0 {
		cfg.PixelsPerUnit = 1
	}
	return &PlanarWorld{
		cfg:    cfg,
		space:  resolv.NewSpace(width, height, 16, 16),
		bodies: make(map[netconfig.BodyID]*PlanarBody),
	}
}

// AddSolid adds static level geometry. Coordinates are pixels.
func (w *PlanarWorld) AddSolid(x, y, width, height float64) {
	obj := resolv.NewObject(x, y, width, height, tags.ResolvSolid)
	obj.SetShape(resolv.NewRectangle(0, 0, width, height))
	w.space.Add(obj)
}

// AddBody adds a dynamic box whose top-left corner is at (x, y) pixels. An
// existing body with the same id is replaced.
func (w *PlanarWorld) AddBody(id netconfig.BodyID, x, y, width, height, mass float64) *PlanarBody {
	w.RemoveBody(id)
	obj := resolv.NewObject(x, y, width, height, tags.ResolvBody)
	obj.SetShape(resolv.NewRectangle(0, 0, width, height))
	w.space.Add(obj)

	b := &PlanarBody{world: w, obj: obj, mass: mass}
	obj.Data = b
	w.bodies[id] = b
	w.order = append(w.order, id)
	sort.Slice(w.order, func(i, j int) bool { return w.order[i] < w.order[j] })
	return b
}

func (w *PlanarWorld) RemoveBody(id netconfig.BodyID) {
	b, ok := w.bodies[id]
	if !ok {
		return
	}
	w.space.Remove(b.obj)
	delete(w.bodies, id)
	for i, o := range w.order {
		if o == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

func (w *PlanarWorld) Body(id netconfig.BodyID) (*PlanarBody, bool) {
	b, ok := w.bodies[id]
	return b, ok
}

// Bodies returns body ids in a stable order.
func (w *PlanarWorld) Bodies() []netconfig.BodyID {
	out := make([]netconfig.BodyID, len(w.order))
	copy(out, w.order)
	return out
}

// Step advances every dynamic body by dt seconds. Bodies are processed in id
// order so two peers stepping the same world agree on contact resolution.
func (w *PlanarWorld) Step(dt float64) {
	for _, id := range w.order {
		b := w.bodies[id]
		if b.kinematic {
			continue
		}
		b.step(dt)
	}
}

// PlanarBody is a Body living in a PlanarWorld.
type PlanarBody struct {
	world     *PlanarWorld
	obj       *resolv.Object
	mass      float64
	vel       gamemath.Vec3
	angle     float64
	spin      float64
	kinematic bool
	onGround  bool
}

func (b *PlanarBody) Mass() float64     { return b.mass }
func (b *PlanarBody) SetMass(m float64) { b.mass = m }

func (b *PlanarBody) LinearVelocity() gamemath.Vec3 { return b.vel }

func (b *PlanarBody) SetLinearVelocity(v gamemath.Vec3) {
	b.vel = gamemath.V3(v.X, v.Y, 0)
}

func (b *PlanarBody) AngularVelocity() gamemath.Vec3 { return gamemath.V3(0, 0, b.spin) }

func (b *PlanarBody) SetAngularVelocity(w gamemath.Vec3) { b.spin = w.Z }

// Position is the box centre in world units.
func (b *PlanarBody) Position() gamemath.Vec3 {
	ppu := b.world.cfg.PixelsPerUnit
	return gamemath.V3((b.obj.X+b.obj.W/2)/ppu, (b.obj.Y+b.obj.H/2)/ppu, 0)
}

func (b *PlanarBody) SetPosition(p gamemath.Vec3) {
	ppu := b.world.cfg.PixelsPerUnit
	b.obj.X = p.X*ppu - b.obj.W/2
	b.obj.Y = p.Y*ppu - b.obj.H/2
	b.obj.Update()
}

func (b *PlanarBody) Rotation() gamemath.Quat {
	return gamemath.QuatFromAxisAngle(gamemath.V3(0, 0, 1), b.angle)
}

// SetRotation keeps only the twist about +Z.
func (b *PlanarBody) SetRotation(q gamemath.Quat) {
	axis, angle := q.AxisAngle()
	if axis.Z < 0 {
		angle = -angle
	}
	b.angle = angle
}

func (b *PlanarBody) IsKinematic() bool   { return b.kinematic }
func (b *PlanarBody) SetKinematic(k bool) { b.kinematic = k }

// OnGround reports whether the last step ended resting on something.
func (b *PlanarBody) OnGround() bool { return b.onGround }

// Rect returns the collision box in pixels.
func (b *PlanarBody) Rect() (x, y, w, h float64) {
	return b.obj.X, b.obj.Y, b.obj.W, b.obj.H
}

func (b *PlanarBody) step(dt float64) {
	cfg := b.world.cfg

	b.vel.Y += cfg.Gravity * dt
	if b.vel.Y > cfg.MaxFallSpeed {
		b.vel.Y = cfg.MaxFallSpeed
	}

	if b.onGround {
		decel := cfg.Friction * dt
		if math.Abs(b.vel.X) <= decel {
			b.vel.X = 0
		} else {
			b.vel.X -= math.Copysign(decel, b.vel.X)
		}
		b.spin *= math.Max(0, 1-cfg.AngularDamping*dt)
	}

	b.resolveHorizontal(b.vel.X * dt * cfg.PixelsPerUnit)
	b.resolveVertical(b.vel.Y * dt * cfg.PixelsPerUnit)
	b.angle = math.Remainder(b.angle+b.spin*dt, 2*math.Pi)
}

func (b *PlanarBody) resolveHorizontal(dx float64) {
	if dx == 0 {
		return
	}
	if check := b.obj.Check(dx, 0, tags.ResolvSolid, tags.ResolvBody); check != nil {
		if hits := check.ObjectsByTags(tags.ResolvSolid, tags.ResolvBody); len(hits) > 0 {
			contact := check.ContactWithObject(hits[0])
			dx = contact.X()
			b.vel.X = 0
		}
	}
	b.obj.X += dx
	b.obj.Update()
}

func (b *PlanarBody) resolveVertical(dy float64) {
	checkDist := dy
	if dy >= 0 {
		checkDist++
	}

	if check := b.obj.Check(0, checkDist, tags.ResolvSolid, tags.ResolvBody); check != nil {
		if hits := check.ObjectsByTags(tags.ResolvSolid, tags.ResolvBody); len(hits) > 0 {
			contact := check.ContactWithObject(hits[0])
			b.obj.Y += contact.Y()
			b.obj.Update()
			b.vel.Y = 0
			b.onGround = dy >= 0
			return
		}
	}

	b.onGround = false
	b.obj.Y += dy
	b.obj.Update()
}
