package sandbox

import (
	"context"
	"testing"

	"github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netconfig"
)

// offlinePeer loads the embedded scene without a server. Sends fail and are
// only logged.
func offlinePeer(t *testing.T) *Peer {
	t.Helper()
	p := NewPeer(Options{Name: "test"}, config.Default())
	data, err := p.parseScene(context.Background())
	if err != nil {
		t.Fatalf("parse scene: %v", err)
	}
	p.buildWorld(data)
	p.start("peer-1")
	p.applyScene(data)
	return p
}

func TestSceneBodiesOwnedLocally(t *testing.T) {
	p := offlinePeer(t)
	ids := p.Bridge().Bodies()
	if len(ids) != 7 {
		t.Fatalf("bodies = %v, want 7", ids)
	}
	for _, id := range ids {
		if mode, _ := p.Bridge().Mode(id); mode != netconfig.DriveLocal {
			t.Fatalf("%s mode = %s, want local", id, mode)
		}
	}
	if info, _ := p.Bridge().Info("lift"); !info.Keyframed || !info.Kinematic {
		t.Fatalf("lift info = %+v, want keyframed kinematic", info)
	}
	if got := p.grabbable(); len(got) != 4 {
		t.Fatalf("grabbable = %v, want the 4 dynamic bodies", got)
	}
}

func TestStepMovesBodies(t *testing.T) {
	p := offlinePeer(t)
	ball, _ := p.World().Body("ball")
	lift, _ := p.World().Body("lift")
	ballStart, liftStart := ball.Position(), lift.Position()

	dt := p.tuning.FixedDelta()
	for i := 0; i < 60; i++ {
		p.Step(dt)
	}

	if ball.Position().Y <= ballStart.Y {
		t.Fatalf("ball did not fall: %v -> %v", ballStart, ball.Position())
	}
	if lift.Position().Y >= liftStart.Y {
		t.Fatalf("lift did not rise: %v -> %v", liftStart, lift.Position())
	}
	if lift.LinearVelocity().Y >= 0 {
		t.Fatalf("lift velocity = %v, want upward", lift.LinearVelocity())
	}
	if p.Clock() <= 0.99 {
		t.Fatalf("clock = %v, want ~1s", p.Clock())
	}
}

func TestReapplySceneIsNoop(t *testing.T) {
	p := offlinePeer(t)
	data, err := p.parseScene(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	p.applyScene(data)
	if n := len(p.World().Bodies()); n != 7 {
		t.Fatalf("world bodies = %d after reapply, want 7", n)
	}
}

func TestRemoteBodyUsesSceneSize(t *testing.T) {
	p := offlinePeer(t)
	p.World().RemoveBody("barrel")

	body := p.makeRemoteBody(messages.BodySpawned{
		Body:      "barrel",
		Source:    "peer-2",
		Transform: gamemath.Transform{Position: gamemath.V3(10, 5, 0), Rotation: gamemath.Identity},
	})
	if body == nil {
		t.Fatal("no body created")
	}
	pb, _ := p.World().Body("barrel")
	if _, _, w, h := pb.Rect(); w != 24 || h != 32 {
		t.Fatalf("size = %vx%v, want 24x32", w, h)
	}
	if !body.Position().ApproxEqual(gamemath.V3(10, 5, 0), 1e-9) {
		t.Fatalf("position = %v", body.Position())
	}

	p.makeRemoteBody(messages.BodySpawned{Body: "stranger", Transform: gamemath.Transform{Rotation: gamemath.Identity}})
	stranger, _ := p.World().Body("stranger")
	if _, _, w, h := stranger.Rect(); w != 16 || h != 16 {
		t.Fatalf("default size = %vx%v, want 16x16", w, h)
	}
}

func TestSyncActorsBuildsBaselines(t *testing.T) {
	p := offlinePeer(t)
	p.SyncActors()
	base, ok := p.syncer.Baseline("crate-a")
	if !ok {
		t.Fatal("no baseline for crate-a")
	}
	if base.RigidBody == nil || base.RigidBody.Mass != 4 || base.Collider == nil {
		t.Fatalf("baseline = %+v", base)
	}
}
