package network

import (
	"testing"

	"github.com/automoto/bodysync/actorsync"
	"github.com/automoto/bodysync/bridge"
	"github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/jitter"
	"github.com/automoto/bodysync/physics"
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/automoto/bodysync/shared/patch"
)

func newTestClient(local netconfig.SourceID) (*Client, *bridge.Bridge) {
	tuning := config.Default()
	tuning.Jitter.Delay = 0
	buf := jitter.New(tuning.Jitter)
	c := NewClient(buf)
	c.source = local
	return c, bridge.New(local, physics.NewStaticScene(), buf, tuning)
}

func TestHandleSnapshotSkipsOwnEcho(t *testing.T) {
	c, b := newTestClient("peer-a")
	if err := b.AddBody("crate", "peer-b", false, physics.NewMemoryBody(gamemath.Zero)); err != nil {
		t.Fatal(err)
	}

	snap := messages.Snapshot{Time: 1, Bodies: []messages.BodySnapshot{{ID: "crate", Transform: gamemath.IdentityTransform}}}
	snap.Source = "peer-a"
	c.HandleSnapshot(snap)
	if st := b.Buffer().Stats(); st.Queued != 0 {
		t.Fatalf("own snapshot was queued: %+v", st)
	}

	snap.Source = "peer-b"
	c.HandleSnapshot(snap)
	if st := b.Buffer().Stats(); st.Queued != 1 {
		t.Fatalf("queued = %d, want 1", st.Queued)
	}
}

func TestDispatchQueuesBridgeCommands(t *testing.T) {
	c, b := newTestClient("peer-a")
	syncer := actorsync.NewSyncer(actorsync.Policy{Model: actorsync.PeerAuthoritative, LocalID: "peer-a"}, 1e-6)

	push(c.spawnCh, messages.BodySpawned{Body: "crate", Source: "peer-b", Transform: gamemath.IdentityTransform}, "spawn")
	push(c.spawnCh, messages.BodySpawned{Body: "mine", Source: "peer-a"}, "spawn")
	push(c.ownershipCh, messages.SetOwnership{Body: "crate", Source: "peer-a"}, "ownership")
	push(c.actorCh, messages.ActorUpdate{Source: "peer-b", Patch: patch.ActorPatch{ID: "lamp", Owner: ptr(netconfig.SourceID("peer-b"))}}, "actor update")

	spawned := 0
	updates := c.Dispatch(b, func(msg messages.BodySpawned) physics.Body {
		spawned++
		return physics.NewMemoryBody(msg.Transform.Position)
	}, syncer)
	if spawned != 1 {
		t.Fatalf("factory called %d times, want 1 (own spawn skipped)", spawned)
	}
	if len(updates) != 1 {
		t.Fatalf("updates = %+v", updates)
	}
	if base, ok := syncer.Baseline("lamp"); !ok || base.Owner != "peer-b" {
		t.Fatalf("remote patch not folded into syncer baseline: %+v", base)
	}

	b.FixedUpdate(1.0 / 60)
	if mode, ok := b.Mode("crate"); !ok || mode != netconfig.DriveLocal {
		t.Fatalf("crate mode = %v %v, want local after ownership command", mode, ok)
	}

	push(c.removeCh, messages.BodyRemoved{Body: "crate"}, "remove")
	c.Dispatch(b, nil, nil)
	b.FixedUpdate(1.0 / 60)
	if _, ok := b.Info("crate"); ok {
		t.Fatal("crate survived removal")
	}
}

func TestDispatchSpawnsRepeatedBodyOnce(t *testing.T) {
	c, b := newTestClient("peer-a")

	spawn := messages.BodySpawned{Body: "crate", Source: "peer-b", Transform: gamemath.IdentityTransform}
	push(c.spawnCh, spawn, "spawn")
	push(c.spawnCh, spawn, "spawn")

	var created []*physics.MemoryBody
	c.Dispatch(b, func(msg messages.BodySpawned) physics.Body {
		body := physics.NewMemoryBody(msg.Transform.Position)
		created = append(created, body)
		return body
	}, nil)
	b.FixedUpdate(1.0 / 60)

	if len(created) != 1 {
		t.Fatalf("factory called %d times for one body, want 1", len(created))
	}
	if n := len(b.Bodies()); n != 1 {
		t.Fatalf("bridge bodies = %d, want 1", n)
	}
	if !created[0].IsKinematic() {
		t.Fatal("spawned remote body is not kinematic")
	}
}

func TestPushDropsWhenFull(t *testing.T) {
	ch := make(chan int, 1)
	push(ch, 1, "test")
	push(ch, 2, "test")
	if got := drainChan(ch); len(got) != 1 || got[0] != 1 {
		t.Fatalf("drained %v, want [1]", got)
	}
}

func ptr[T any](v T) *T { return &v }
