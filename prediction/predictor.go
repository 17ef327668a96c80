// Package prediction turns the jitter buffer's played-back samples into a
// smooth per-tick pose for bodies this peer does not own. Between snapshots
// it dead-reckons with the last accepted velocity; when a snapshot arrives it
// re-derives the velocity from the correction it implies and clamps it, so a
// single corrupt or delayed update cannot fling the body away.
//
// All poses are relative to the shared scene root.
package prediction

import (
	"log"

	"github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/jitter"
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/netconfig"
)

// minSpan is the shortest time span a velocity is derived over.
const minSpan = 1e-4

// State is the predicted pose and implicit velocity for the current tick.
type State struct {
	Pose    gamemath.Transform
	Linear  gamemath.Vec3
	Angular gamemath.Vec3
	Motion  netconfig.MotionType
	Valid   bool // A pose has been seeded or received
	Stale   bool
	Holding bool // Extrapolation budget exhausted; pose frozen
}

// Predictor tracks one remote body. It is not safe for concurrent use; the
// bridge drives it from the physics tick.
type Predictor struct {
	id  netconfig.BodyID
	cfg config.PredictionConfig

	pose      gamemath.Transform
	poseTime  float64 // Source-clock time the pose corresponds to
	timeKnown bool
	linear    gamemath.Vec3
	angular   gamemath.Vec3
	motion    netconfig.MotionType
	valid     bool

	hasSample   bool
	source      netconfig.SourceID // Owner whose clock sampleTime is on
	sampleTime  float64
	prevPose    gamemath.Transform
	sinceSample float64
	stale       bool
	holding     bool

	clamps uint64
}

func New(id netconfig.BodyID, cfg config.PredictionConfig) *Predictor {
	return &Predictor{id: id, cfg: cfg, pose: gamemath.IdentityTransform}
}

// Reset seeds the predictor from a locally known pose, e.g. when this peer
// hands the body to a remote owner and starts consuming its snapshots.
func (p *Predictor) Reset(pose gamemath.Transform, linear, angular gamemath.Vec3) {
	p.pose = pose
	p.linear, _ = p.clampLinear(linear)
	p.angular, _ = p.clampAngular(angular)
	p.motion = netconfig.MotionDynamic
	p.valid = true
	p.timeKnown = false
	p.hasSample = false
	p.sinceSample = 0
	p.stale = false
	p.holding = false
}

// Advance moves the prediction forward by one tick of dt seconds. sample is
// the body's entry in the current jitter frame, or nil when the buffer has
// nothing for it yet.
func (p *Predictor) Advance(sample *jitter.BodySample, dt float64) State {
	if sample != nil {
		p.stale = sample.Stale
	}
	if sample != nil && sample.Fresh && p.hasSample && (sample.Reset || sample.Source != p.source) {
		p.restartTimeline()
	}
	if sample != nil && sample.Fresh && (!p.hasSample || sample.Time > p.sampleTime) {
		p.accept(*sample)
	} else {
		p.extrapolate(dt)
	}
	return p.State()
}

// restartTimeline forgets the source clock while keeping the current pose.
// Samples from a new owner or after a jitter reset are on a clock that can
// be behind the last accepted one.
func (p *Predictor) restartTimeline() {
	p.hasSample = false
	p.timeKnown = false
}

// State returns the current prediction without advancing it.
func (p *Predictor) State() State {
	return State{
		Pose:    p.pose,
		Linear:  p.linear,
		Angular: p.angular,
		Motion:  p.motion,
		Valid:   p.valid,
		Stale:   p.stale,
		Holding: p.holding,
	}
}

// Clamps reports how many derived velocities were clamped so far.
func (p *Predictor) Clamps() uint64 {
	return p.clamps
}

func (p *Predictor) accept(s jitter.BodySample) {
	reported := s.Body.Transform
	reported.Rotation = reported.Rotation.Normalize()

	switch s.Body.Motion {
	case netconfig.MotionKeyframed:
		// Driven straight to the reported pose; no velocity, no extrapolation.
		p.linear = gamemath.Zero
		p.angular = gamemath.Zero
	case netconfig.MotionSleeping:
		p.linear = gamemath.Zero
		p.angular = gamemath.Zero
	default:
		lin, ang := p.derive(s, reported)
		p.linear = p.trustLinear(lin)
		p.angular = p.trustAngular(ang)
	}

	p.prevPose = reported
	p.pose = reported
	p.poseTime = s.Time
	p.timeKnown = true
	p.motion = s.Body.Motion
	p.valid = true
	p.hasSample = true
	p.source = s.Source
	p.sampleTime = s.Time
	p.sinceSample = 0
	p.holding = false

	if p.motion == netconfig.MotionDynamic {
		if ahead := s.Clock - s.Time; ahead > 0 {
			p.integrate(ahead)
		}
	}
}

// derive returns the implicit velocity that carries the current prediction
// onto the reported pose. The first sample trusts the reported velocity.
func (p *Predictor) derive(s jitter.BodySample, reported gamemath.Transform) (gamemath.Vec3, gamemath.Vec3) {
	if p.valid && p.timeKnown {
		if span := s.Time - p.poseTime; span > minSpan {
			return reported.Position.Sub(p.pose.Position).Scale(1 / span),
				p.pose.Rotation.AngularVelocityTo(reported.Rotation, span)
		}
	}
	if p.hasSample {
		if span := s.Time - p.sampleTime; span > minSpan {
			return reported.Position.Sub(p.prevPose.Position).Scale(1 / span),
				p.prevPose.Rotation.AngularVelocityTo(reported.Rotation, span)
		}
	}
	return s.Body.LinearVelocity, s.Body.AngularVelocity
}

func (p *Predictor) extrapolate(dt float64) {
	if !p.valid || dt <= 0 {
		return
	}
	p.sinceSample += dt
	if !p.holding && (p.stale || p.sinceSample > p.cfg.MaxExtrapolation) && p.moving() {
		p.holding = true
		p.linear = gamemath.Zero
		p.angular = gamemath.Zero
	}
	p.integrate(dt)
}

func (p *Predictor) integrate(dt float64) {
	p.pose.Position = p.pose.Position.Add(p.linear.Scale(dt))
	p.pose.Rotation = p.pose.Rotation.Integrate(p.angular, dt)
	p.poseTime += dt
}

func (p *Predictor) moving() bool {
	return p.linear != gamemath.Zero || p.angular != gamemath.Zero
}

func (p *Predictor) trustLinear(v gamemath.Vec3) gamemath.Vec3 {
	if !gamemath.IsFinite(v) {
		log.Printf("[prediction] warning: body %s derived a non-finite linear velocity, dropping it", p.id)
		return gamemath.Zero
	}
	clamped, hit := p.clampLinear(v)
	if hit {
		p.clamps++
		log.Printf("[prediction] warning: body %s linear velocity %.2f clamped to %.2f",
			p.id, v.Length(), p.cfg.MaxLinearVelocity)
	}
	return clamped
}

func (p *Predictor) trustAngular(w gamemath.Vec3) gamemath.Vec3 {
	if !gamemath.IsFinite(w) {
		log.Printf("[prediction] warning: body %s derived a non-finite angular velocity, dropping it", p.id)
		return gamemath.Zero
	}
	clamped, hit := p.clampAngular(w)
	if hit {
		p.clamps++
		log.Printf("[prediction] warning: body %s angular velocity %.2f clamped to %.2f",
			p.id, w.Length(), p.cfg.MaxAngularVelocity)
	}
	return clamped
}

func (p *Predictor) clampLinear(v gamemath.Vec3) (gamemath.Vec3, bool) {
	return gamemath.ClampLength(v, p.cfg.MaxLinearVelocity)
}

func (p *Predictor) clampAngular(w gamemath.Vec3) (gamemath.Vec3, bool) {
	return gamemath.ClampLength(w, p.cfg.MaxAngularVelocity)
}

// ClampVelocity limits v to max while keeping its direction. The bridge uses
// it on outgoing snapshots so both ends agree on the same maxima.
func ClampVelocity(v gamemath.Vec3, max float64) gamemath.Vec3 {
	clamped, _ := gamemath.ClampLength(v, max)
	return clamped
}
