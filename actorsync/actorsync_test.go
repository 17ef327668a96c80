package actorsync

import (
	"testing"

	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/automoto/bodysync/shared/patch"
)

func TestParseModel(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want Model
	}{
		{"server", ServerAuthoritative},
		{"peer", PeerAuthoritative},
	} {
		got, err := ParseModel(tt.in)
		if err != nil || got != tt.want {
			t.Fatalf("ParseModel(%q) = %v, %v", tt.in, got, err)
		}
		if got.String() != tt.in {
			t.Fatalf("String() = %q, want %q", got.String(), tt.in)
		}
	}
	if _, err := ParseModel("anarchy"); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestDecide(t *testing.T) {
	withBody := patch.ActorState{ID: "ball", Owner: "alice", RigidBody: &patch.RigidBodyState{Mass: 1}}
	plain := patch.ActorState{ID: "lamp", Owner: "alice"}

	tests := []struct {
		name   string
		policy Policy
		entity Entity
		want   Decision
	}{
		{
			name:   "server writes everything",
			policy: Policy{Model: ServerAuthoritative, LocalID: netconfig.ServerSource},
			entity: Entity{State: plain},
			want:   Decision{Emit: true, Metadata: true, Transform: true, Collider: true, Attachment: true, Appearance: true},
		},
		{
			name:   "peer is silent under server authority",
			policy: Policy{Model: ServerAuthoritative, LocalID: "alice"},
			entity: Entity{State: plain},
			want:   Decision{},
		},
		{
			name:   "local attachment hierarchy grants authority",
			policy: Policy{Model: ServerAuthoritative, LocalID: "bob"},
			entity: Entity{State: plain, HierarchyOwner: "bob"},
			want:   Decision{Emit: true, Metadata: true, Transform: true, Collider: true, Attachment: true, Appearance: true},
		},
		{
			name:   "foreign attachment hierarchy denies authority",
			policy: Policy{Model: PeerAuthoritative, LocalID: "alice"},
			entity: Entity{State: plain, HierarchyOwner: "carol"},
			want:   Decision{},
		},
		{
			name:   "foreign attachment hierarchy silences the server",
			policy: Policy{Model: ServerAuthoritative, LocalID: netconfig.ServerSource},
			entity: Entity{State: plain, HierarchyOwner: "carol"},
			want:   Decision{},
		},
		{
			name:   "owner writes under peer authority",
			policy: Policy{Model: PeerAuthoritative, LocalID: "alice"},
			entity: Entity{State: withBody},
			want:   Decision{Emit: true, Metadata: true, Transform: true, RigidBody: true, Collider: true, Attachment: true, Appearance: true},
		},
		{
			name:   "non-owner is silent under peer authority",
			policy: Policy{Model: PeerAuthoritative, LocalID: "bob"},
			entity: Entity{State: withBody},
			want:   Decision{},
		},
		{
			name:   "grab forces transform and rigid body only",
			policy: Policy{Model: PeerAuthoritative, LocalID: "bob"},
			entity: Entity{State: withBody, Grabbed: true},
			want:   Decision{Emit: true, Transform: true, RigidBody: true, ForceTransform: true},
		},
		{
			name:   "release forces transform",
			policy: Policy{Model: ServerAuthoritative, LocalID: "bob"},
			entity: Entity{State: plain, JustReleased: true},
			want:   Decision{Emit: true, Transform: true, ForceTransform: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Decide(tt.entity); got != tt.want {
				t.Fatalf("Decide = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMaskDropsDisallowedFields(t *testing.T) {
	name := "crate"
	enabled := true
	ap := patch.ActorPatch{
		ID:         "crate",
		Name:       &name,
		Collider:   &patch.ColliderPatch{Enabled: &enabled},
		Appearance: &patch.AppearancePatch{Enabled: &enabled},
		Transform:  patch.FullTransform(patch.TransformState{}),
	}
	got := Decision{Emit: true, Transform: true}.Mask(ap)
	if got.Name != nil || got.Collider != nil || got.Appearance != nil {
		t.Fatalf("mask kept disallowed fields: %+v", got)
	}
	if got.Transform == nil {
		t.Fatal("mask dropped the transform")
	}
	if !(Decision{}).Mask(ap).IsEmpty() {
		t.Fatal("a non-emitting decision must mask everything")
	}
}

func movedState(x float64) patch.ActorState {
	st := patch.ActorState{ID: "crate", Owner: "alice"}
	st.Transform.App = gamemath.Transform{Position: gamemath.V3(x, 0, 0), Rotation: gamemath.Identity}
	st.Transform.Local.Rotation = gamemath.Identity
	st.Transform.Local.Scale = gamemath.V3(1, 1, 1)
	return st
}

func TestSyncerSendsOnlyChanges(t *testing.T) {
	s := NewSyncer(Policy{Model: PeerAuthoritative, LocalID: "alice"}, 1e-6)

	first := s.Sync([]Entity{{State: movedState(0)}})
	if len(first) != 1 || first[0].Owner == nil || first[0].Transform == nil {
		t.Fatalf("first sync = %+v, want a full patch", first)
	}
	if again := s.Sync([]Entity{{State: movedState(0)}}); len(again) != 0 {
		t.Fatalf("unchanged actor produced %+v", again)
	}

	moved := s.Sync([]Entity{{State: movedState(1)}})
	if len(moved) != 1 {
		t.Fatalf("moved actor produced %d patches", len(moved))
	}
	p := moved[0]
	if p.Owner != nil || p.Transform.Local != nil || p.Transform.App.Rotation != nil {
		t.Fatalf("patch carries unchanged fields: %+v", p)
	}
	if *p.Transform.App.Position != gamemath.V3(1, 0, 0) {
		t.Fatalf("position = %+v", *p.Transform.App.Position)
	}
}

func TestReleaseForcesOneMoreTransform(t *testing.T) {
	s := NewSyncer(Policy{Model: PeerAuthoritative, LocalID: "bob"}, 1e-6)
	st := movedState(2)

	frames := []struct {
		grabbed bool
		want    int
	}{
		{true, 1},
		{true, 1},
		{false, 1},
		{false, 0},
	}
	for i, f := range frames {
		got := s.Sync([]Entity{{State: st, Grabbed: f.grabbed}})
		if len(got) != f.want {
			t.Fatalf("frame %d: %d patches, want %d", i, len(got), f.want)
		}
		if f.want == 1 && got[0].Transform.App.Position == nil {
			t.Fatalf("frame %d: forced patch lacks the transform", i)
		}
		if f.want == 1 && got[0].Owner != nil {
			t.Fatalf("frame %d: non-owner leaked metadata", i)
		}
	}
}

func TestReceiveSuppressesEcho(t *testing.T) {
	s := NewSyncer(Policy{Model: PeerAuthoritative, LocalID: "alice"}, 1e-6)
	remote := patch.Generate(movedState(4), patch.ActorState{ID: "crate"}, 1e-6)
	s.Receive(remote)

	if out := s.Sync([]Entity{{State: movedState(4)}}); len(out) != 0 {
		t.Fatalf("received state echoed back: %+v", out)
	}
	base, ok := s.Baseline("crate")
	if !ok || base.Transform.App.Position != gamemath.V3(4, 0, 0) {
		t.Fatalf("baseline = %+v %v", base, ok)
	}

	s.Forget("crate")
	if _, ok := s.Baseline("crate"); ok {
		t.Fatal("baseline survived Forget")
	}
}

func TestSyncOrdersByActor(t *testing.T) {
	s := NewSyncer(Policy{Model: ServerAuthoritative, LocalID: netconfig.ServerSource}, 1e-6)
	out := s.Sync([]Entity{
		{State: patch.ActorState{ID: "b", Name: "b"}},
		{State: patch.ActorState{ID: "a", Name: "a"}},
	})
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("patches = %+v, want a then b", out)
	}
}
