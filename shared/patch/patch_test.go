package patch

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/netconfig"
)

const testEps = 1e-6

func randVec(r *rand.Rand) gamemath.Vec3 {
	return gamemath.V3(r.Float64()*20-10, r.Float64()*20-10, r.Float64()*20-10)
}

func randQuat(r *rand.Rand) gamemath.Quat {
	return gamemath.QuatFromAxisAngle(randVec(r), r.Float64()*3)
}

func randState(r *rand.Rand, id netconfig.ActorID) ActorState {
	s := ActorState{
		ID:       id,
		Name:     []string{"crate", "ball", "door"}[r.Intn(3)],
		ParentID: netconfig.ActorID([]string{"", "root", "table"}[r.Intn(3)]),
		Owner:    netconfig.SourceID([]string{"alice", "bob"}[r.Intn(2)]),
		Transform: TransformState{
			App: gamemath.Transform{Position: randVec(r), Rotation: randQuat(r)},
			Local: LocalTransform{
				Position: randVec(r),
				Rotation: randQuat(r),
				Scale:    gamemath.V3(1, 1, 1),
			},
		},
		RigidBody: &RigidBodyState{
			Mass:             r.Float64() * 5,
			Velocity:         randVec(r),
			AngularVelocity:  randVec(r),
			UseGravity:       r.Intn(2) == 0,
			DetectCollisions: true,
		},
		Collider: &ColliderState{
			Enabled:  r.Intn(2) == 0,
			Geometry: ColliderGeometry{Shape: ColliderShape(r.Intn(3)), Size: randVec(r), Radius: r.Float64()},
		},
		Attachment: AttachmentState{AttachPoint: []string{"", "left-hand"}[r.Intn(2)]},
		Appearance: AppearanceState{Enabled: true, MeshID: "mesh", MaterialID: []string{"red", "blue"}[r.Intn(2)]},
	}
	if s.Attachment.AttachPoint != "" {
		s.Attachment.UserID = "alice"
	}
	return s
}

func statesEqual(t *testing.T, got, want ActorState) {
	t.Helper()
	if !got.Transform.App.ApproxEqual(want.Transform.App, testEps) ||
		!got.Transform.Local.Position.ApproxEqual(want.Transform.Local.Position, testEps) ||
		!got.Transform.Local.Rotation.ApproxEqual(want.Transform.Local.Rotation, testEps) ||
		!got.Transform.Local.Scale.ApproxEqual(want.Transform.Local.Scale, testEps) {
		t.Fatalf("transform mismatch: got %+v want %+v", got.Transform, want.Transform)
	}
	gotCopy, wantCopy := got.Clone(), want.Clone()
	gotCopy.Transform, wantCopy.Transform = TransformState{}, TransformState{}
	if !reflect.DeepEqual(gotCopy, wantCopy) {
		t.Fatalf("state mismatch:\n got %+v\nwant %+v", gotCopy, wantCopy)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		target := randState(r, "a")
		p := Generate(randState(r, "a"), randState(r, "a"), testEps)

		once := Apply(target, p)
		twice := Apply(once, p)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("iteration %d: apply twice differs from once\nonce  %+v\ntwice %+v", i, once, twice)
		}
	}
}

func TestGenerateApplyRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		a := randState(r, "a")
		b := randState(r, "a")
		statesEqual(t, Apply(a, Generate(b, a, testEps)), b)
	}
}

func TestGenerateSkipsUnchangedFields(t *testing.T) {
	base := randState(rand.New(rand.NewSource(3)), "a")
	cur := base.Clone()
	cur.Transform.App.Position = cur.Transform.App.Position.Add(gamemath.V3(testEps/10, 0, 0))

	if p := Generate(cur, base, testEps); !p.IsEmpty() {
		t.Fatalf("expected empty patch for sub-epsilon change, got %+v", p)
	}

	cur.Appearance.MaterialID = "green"
	p := Generate(cur, base, testEps)
	if p.Appearance == nil || p.Appearance.MaterialID == nil || *p.Appearance.MaterialID != "green" {
		t.Fatalf("expected material change, got %+v", p.Appearance)
	}
	if p.Transform != nil || p.RigidBody != nil || p.Collider != nil || p.Name != nil {
		t.Fatalf("unexpected fields in patch: %+v", p)
	}
}

func TestApplyLeavesUnsetFieldsUntouched(t *testing.T) {
	target := randState(rand.New(rand.NewSource(5)), "a")
	mass := 42.0
	got := Apply(target, ActorPatch{ID: "a", RigidBody: &RigidBodyPatch{Mass: &mass}})

	if got.RigidBody.Mass != 42 {
		t.Fatalf("mass = %v, want 42", got.RigidBody.Mass)
	}
	want := target.Clone()
	want.RigidBody.Mass = 42
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unrelated fields changed:\n got %+v\nwant %+v", got, want)
	}
	if target.RigidBody.Mass == 42 {
		t.Fatal("Apply mutated its input")
	}
}

func TestGenerateNeverEncodesDeletion(t *testing.T) {
	base := randState(rand.New(rand.NewSource(9)), "a")
	cur := base.Clone()
	cur.RigidBody = nil
	cur.Collider = nil

	p := Generate(cur, base, testEps)
	if p.RigidBody != nil || p.Collider != nil {
		t.Fatalf("missing records must not produce patches: %+v", p)
	}
	got := Apply(base, p)
	if got.RigidBody == nil || got.Collider == nil {
		t.Fatal("apply removed a record")
	}
}

func TestGenerateCreatesMissingRecords(t *testing.T) {
	base := ActorState{ID: "a"}
	cur := base
	cur.RigidBody = &RigidBodyState{Mass: 2, UseGravity: true}

	got := Apply(base, Generate(cur, base, testEps))
	if got.RigidBody == nil || got.RigidBody.Mass != 2 || !got.RigidBody.UseGravity {
		t.Fatalf("rigid body not created: %+v", got.RigidBody)
	}
}

func TestMergeIsLastWriteWins(t *testing.T) {
	r := rand.New(rand.NewSource(13))
	base := randState(r, "a")
	mid := randState(r, "a")
	last := randState(r, "a")
	last.Collider = mid.Collider

	first := Generate(mid, base, testEps)
	second := Generate(last, mid, testEps)
	merged := Merge(first, second)

	statesEqual(t, Apply(base, merged), Apply(Apply(base, first), second))
}
