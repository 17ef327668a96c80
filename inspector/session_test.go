package inspector

import (
	"testing"
	"time"

	"github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/recorder"
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netconfig"
)

func snapshotEntry(at time.Time, src netconfig.SourceID, ts, x float64) recorder.Entry {
	return recorder.Entry{
		Kind:     recorder.KindSnapshot,
		Received: at,
		Source:   src,
		Snapshot: &messages.Snapshot{
			Source: src,
			Time:   ts,
			Bodies: []messages.BodySnapshot{{
				ID:             "crate",
				Transform:      gamemath.Transform{Position: gamemath.V3(x, 0, 0), Rotation: gamemath.Identity},
				LinearVelocity: gamemath.V3(1, 0, 0),
			}},
		},
	}
}

func TestReplaySessionPredictsBodies(t *testing.T) {
	t0 := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	var entries []recorder.Entry
	for i := 0; i < 20; i++ {
		ts := float64(i) * 0.05
		entries = append(entries, snapshotEntry(t0.Add(time.Duration(i)*50*time.Millisecond), "peer-1", ts, ts))
	}
	s := NewReplaySession(NewReplay(entries), config.Default())
	if !s.Ready() {
		t.Fatal("replay session should be ready immediately")
	}

	for i := 0; i < 60; i++ {
		s.Step(1.0 / 60)
	}

	views := s.Bodies()
	if len(views) != 1 {
		t.Fatalf("views = %+v, want one body", views)
	}
	v := views[0]
	if v.ID != "crate" || v.Source != "peer-1" {
		t.Fatalf("view = %+v", v)
	}
	if v.Position.X <= 0.5 || v.Position.X > 1.0 {
		t.Fatalf("predicted x = %v, want between 0.5 and 1 after 1s with 0.1s delay", v.Position.X)
	}
}

func TestReplaySessionAppliesOwnership(t *testing.T) {
	t0 := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	entries := []recorder.Entry{
		snapshotEntry(t0, "peer-1", 0, 0),
		{
			Kind:      recorder.KindOwnership,
			Received:  t0.Add(100 * time.Millisecond),
			Source:    netconfig.ServerSource,
			Ownership: &messages.SetOwnership{Body: "crate", Source: "peer-2"},
		},
	}
	s := NewReplaySession(NewReplay(entries), config.Default())
	for i := 0; i < 12; i++ {
		s.Step(1.0 / 60)
	}

	info, ok := s.bridge.Info("crate")
	if !ok || info.Source != "peer-2" {
		t.Fatalf("crate info = %+v, want source peer-2", info)
	}
}

func TestTwist(t *testing.T) {
	q := gamemath.QuatFromAxisAngle(gamemath.V3(0, 0, -1), 0.5)
	if got := twist(q); got > -0.49 || got < -0.51 {
		t.Fatalf("twist = %v, want -0.5", got)
	}
}
