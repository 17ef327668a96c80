package prediction

import (
	"math"
	"testing"

	"github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/jitter"
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netconfig"
)

func testConfig() config.PredictionConfig {
	return config.PredictionConfig{MaxLinearVelocity: 5, MaxAngularVelocity: 10, MaxExtrapolation: 0.5}
}

func sample(t float64, pos gamemath.Vec3, vel gamemath.Vec3, motion netconfig.MotionType) *jitter.BodySample {
	return &jitter.BodySample{
		Source: "owner",
		Body: messages.BodySnapshot{
			ID:             "ball",
			Transform:      gamemath.Transform{Position: pos, Rotation: gamemath.Identity},
			LinearVelocity: vel,
			Motion:         motion,
		},
		Time:  t,
		Clock: t,
		Fresh: true,
	}
}

func held(s *jitter.BodySample) *jitter.BodySample {
	c := *s
	c.Fresh = false
	return &c
}

func TestExtrapolateThenRederive(t *testing.T) {
	p := New("ball", testConfig())

	first := sample(1.0, gamemath.V3(0, 0, 0), gamemath.V3(1, 0, 0), netconfig.MotionDynamic)
	st := p.Advance(first, 0.1)
	if !st.Valid || st.Linear != gamemath.V3(1, 0, 0) {
		t.Fatalf("first sample should trust the reported velocity, got %+v", st)
	}

	st = p.Advance(held(first), 0.1)
	if !st.Pose.Position.ApproxEqual(gamemath.V3(0.1, 0, 0), 1e-9) {
		t.Fatalf("extrapolated position = %+v, want (0.1,0,0)", st.Pose.Position)
	}

	st = p.Advance(sample(1.2, gamemath.V3(0.22, 0, 0), gamemath.V3(1, 0, 0), netconfig.MotionDynamic), 0.1)
	if !st.Linear.ApproxEqual(gamemath.V3(1.2, 0, 0), 1e-6) {
		t.Fatalf("re-derived velocity = %+v, want (1.2,0,0)", st.Linear)
	}
	if !st.Pose.Position.ApproxEqual(gamemath.V3(0.22, 0, 0), 1e-9) {
		t.Fatalf("pose should snap to the reported position, got %+v", st.Pose.Position)
	}
}

func TestDerivedVelocityIsClampedPreservingDirection(t *testing.T) {
	cfg := testConfig()
	cases := []gamemath.Vec3{
		gamemath.V3(30, 0, 0),
		gamemath.V3(3, -40, 12),
		gamemath.V3(-100, 100, -100),
	}
	for _, jump := range cases {
		p := New("ball", cfg)
		p.Advance(sample(1.0, gamemath.Zero, gamemath.Zero, netconfig.MotionDynamic), 0.1)
		st := p.Advance(sample(2.0, jump, gamemath.Zero, netconfig.MotionDynamic), 0.1)

		if got := st.Linear.Length(); math.Abs(got-cfg.MaxLinearVelocity) > 1e-9 {
			t.Fatalf("jump %+v: |v| = %v, want %v", jump, got, cfg.MaxLinearVelocity)
		}
		if dir := st.Linear.Normalize(); !dir.ApproxEqual(jump.Normalize(), 1e-9) {
			t.Fatalf("jump %+v: direction changed to %+v", jump, dir)
		}
		if p.Clamps() != 1 {
			t.Fatalf("clamp counter = %d", p.Clamps())
		}
	}
}

func TestSleepingForcesZeroVelocity(t *testing.T) {
	p := New("ball", testConfig())
	p.Advance(sample(1.0, gamemath.Zero, gamemath.V3(1, 0, 0), netconfig.MotionDynamic), 0.1)
	st := p.Advance(sample(1.1, gamemath.V3(0.3, 0, 0), gamemath.V3(2, 0, 0), netconfig.MotionSleeping), 0.1)
	if st.Linear != gamemath.Zero || st.Angular != gamemath.Zero {
		t.Fatalf("sleeping body kept velocity %+v / %+v", st.Linear, st.Angular)
	}
	st = p.Advance(nil, 0.1)
	if !st.Pose.Position.ApproxEqual(gamemath.V3(0.3, 0, 0), 1e-12) {
		t.Fatalf("sleeping body drifted to %+v", st.Pose.Position)
	}
}

func TestKeyframedDrivesPoseDirectly(t *testing.T) {
	p := New("ball", testConfig())
	p.Advance(sample(1.0, gamemath.Zero, gamemath.V3(1, 0, 0), netconfig.MotionDynamic), 0.1)

	key := sample(1.1, gamemath.V3(4, 4, 4), gamemath.V3(9, 9, 9), netconfig.MotionKeyframed)
	key.Clock = 1.3
	st := p.Advance(key, 0.1)
	if st.Pose.Position != gamemath.V3(4, 4, 4) {
		t.Fatalf("keyframed pose = %+v, want reported pose", st.Pose.Position)
	}
	if st.Linear != gamemath.Zero || p.Clamps() != 0 {
		t.Fatalf("keyframed body must not derive velocity, got %+v clamps=%d", st.Linear, p.Clamps())
	}
	st = p.Advance(held(key), 0.1)
	if st.Pose.Position != gamemath.V3(4, 4, 4) {
		t.Fatalf("keyframed body extrapolated to %+v", st.Pose.Position)
	}
}

func TestHoldsAfterExtrapolationBudget(t *testing.T) {
	p := New("ball", testConfig())
	first := sample(1.0, gamemath.Zero, gamemath.V3(1, 0, 0), netconfig.MotionDynamic)
	p.Advance(first, 0.1)

	var st State
	for i := 0; i < 10; i++ {
		st = p.Advance(held(first), 0.1)
	}
	if !st.Holding || st.Linear != gamemath.Zero {
		t.Fatalf("expected hold after the extrapolation budget, got %+v", st)
	}
	if x := st.Pose.Position.X; x < 0.49 || x > 0.61 {
		t.Fatalf("held position %v outside the budgeted range", x)
	}

	st = p.Advance(sample(2.0, gamemath.V3(1, 0, 0), gamemath.Zero, netconfig.MotionDynamic), 0.1)
	if st.Holding {
		t.Fatal("a fresh sample must release the hold")
	}
}

func TestStaleSampleHolds(t *testing.T) {
	p := New("ball", testConfig())
	first := sample(1.0, gamemath.Zero, gamemath.V3(1, 0, 0), netconfig.MotionDynamic)
	p.Advance(first, 0.1)

	stale := held(first)
	stale.Stale = true
	st := p.Advance(stale, 0.1)
	if !st.Holding || !st.Stale {
		t.Fatalf("stale sample should hold, got %+v", st)
	}
}

func TestAngularVelocityIsDerived(t *testing.T) {
	p := New("ball", testConfig())
	p.Advance(sample(1.0, gamemath.Zero, gamemath.Zero, netconfig.MotionDynamic), 0.1)

	turned := sample(1.5, gamemath.Zero, gamemath.Zero, netconfig.MotionDynamic)
	turned.Body.Transform.Rotation = gamemath.QuatFromAxisAngle(gamemath.V3(0, 1, 0), 1)
	turned.Clock = 1.5
	st := p.Advance(turned, 0.1)

	// One radian about +Y over half a second.
	if !st.Angular.ApproxEqual(gamemath.V3(0, 2, 0), 1e-6) {
		t.Fatalf("angular velocity = %+v, want (0,2,0)", st.Angular)
	}
}

func TestResetSeedsFromLocalPose(t *testing.T) {
	p := New("ball", testConfig())
	pose := gamemath.Transform{Position: gamemath.V3(3, 2, 1), Rotation: gamemath.Identity}
	p.Reset(pose, gamemath.V3(100, 0, 0), gamemath.Zero)

	st := p.State()
	if !st.Valid || st.Pose != pose {
		t.Fatalf("reset pose not applied: %+v", st)
	}
	if st.Linear.Length() > testConfig().MaxLinearVelocity+1e-9 {
		t.Fatalf("seeded velocity not clamped: %+v", st.Linear)
	}
}

func TestNewOwnerClockRestartsTimeline(t *testing.T) {
	p := New("ball", testConfig())
	p.Advance(sample(100, gamemath.V3(1, 0, 0), gamemath.Zero, netconfig.MotionDynamic), 0.1)
	p.Advance(sample(100.1, gamemath.V3(1, 0, 0), gamemath.Zero, netconfig.MotionDynamic), 0.1)

	next := sample(5, gamemath.V3(7, 0, 0), gamemath.Zero, netconfig.MotionDynamic)
	next.Source = "next-owner"
	st := p.Advance(next, 0.1)
	if !st.Pose.Position.ApproxEqual(gamemath.V3(7, 0, 0), 1e-9) {
		t.Fatalf("sample from new owner with earlier clock ignored: %+v", st.Pose.Position)
	}
	if st.Linear != gamemath.Zero {
		t.Fatalf("velocity derived across owner clocks: %+v", st.Linear)
	}
}

func TestResetSampleRestartsTimeline(t *testing.T) {
	p := New("ball", testConfig())
	p.Advance(sample(50, gamemath.V3(1, 0, 0), gamemath.Zero, netconfig.MotionDynamic), 0.1)

	stale := sample(0, gamemath.V3(4, 0, 0), gamemath.Zero, netconfig.MotionDynamic)
	if st := p.Advance(stale, 0.1); st.Pose.Position.X != 1 {
		t.Fatalf("older sample without reset accepted: %+v", st.Pose.Position)
	}

	restarted := sample(0, gamemath.V3(4, 0, 0), gamemath.Zero, netconfig.MotionDynamic)
	restarted.Reset = true
	if st := p.Advance(restarted, 0.1); !st.Pose.Position.ApproxEqual(gamemath.V3(4, 0, 0), 1e-9) {
		t.Fatalf("reset sample ignored: %+v", st.Pose.Position)
	}
	follow := sample(0.1, gamemath.V3(4, 0, 0), gamemath.Zero, netconfig.MotionDynamic)
	if st := p.Advance(follow, 0.1); !st.Pose.Position.ApproxEqual(gamemath.V3(4, 0, 0), 1e-9) {
		t.Fatalf("sample after reset ignored: %+v", st.Pose.Position)
	}
}
