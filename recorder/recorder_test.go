package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/jitter"
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netconfig"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func snapshot(at float64, x float64) messages.Snapshot {
	return messages.Snapshot{
		Source: "peer-a",
		Time:   at,
		Bodies: []messages.BodySnapshot{{
			ID:        "crate",
			Transform: gamemath.Transform{Position: gamemath.V3(x, 0, 0), Rotation: gamemath.Identity},
			Motion:    netconfig.MotionDynamic,
		}},
	}
}

func TestWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "traffic")
	w.now = fixedClock(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC))

	if err := w.RecordSnapshot("peer-a", snapshot(1, 0.5)); err != nil {
		t.Fatalf("record snapshot: %v", err)
	}
	if err := w.RecordOwnership("server", messages.SetOwnership{Body: "crate", Source: "peer-b"}); err != nil {
		t.Fatalf("record ownership: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir, "traffic")
	if err != nil || len(files) != 1 {
		t.Fatalf("files = %v, %v", files, err)
	}
	if want := filepath.Join(dir, "traffic-2026-03-01-12.jsonl.zst"); files[0] != want {
		t.Fatalf("file = %s, want %s", files[0], want)
	}

	var got []Entry
	if err := ReadFile(files[0], func(e Entry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d entries, want 2", len(got))
	}
	if got[0].Kind != KindSnapshot || got[0].Snapshot.Bodies[0].Transform.Position.X != 0.5 {
		t.Fatalf("first entry = %+v", got[0])
	}
	if got[1].Kind != KindOwnership || got[1].Ownership.Source != "peer-b" {
		t.Fatalf("second entry = %+v", got[1])
	}
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "traffic")
	base := time.Date(2026, 3, 1, 12, 59, 0, 0, time.UTC)

	w.now = fixedClock(base)
	_ = w.RecordSnapshot("peer-a", snapshot(1, 0))
	w.now = fixedClock(base.Add(2 * time.Minute))
	_ = w.RecordSnapshot("peer-a", snapshot(2, 0))
	_ = w.Close()

	files, _ := Files(dir, "traffic")
	if len(files) != 2 {
		t.Fatalf("files = %v, want one per hour", files)
	}
}

func TestReplayFeedsJitterBuffer(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "traffic")
	w.now = fixedClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	_ = w.RecordSnapshot("peer-a", snapshot(1, 1))
	_ = w.RecordUpload("peer-a", messages.ServerTransformUpload{InstanceID: "peer-a"})
	_ = w.RecordSnapshot("peer-a", snapshot(1.5, 2))
	_ = w.Close()
	files, _ := Files(dir, "traffic")

	cfg := config.Default().Jitter
	cfg.Delay = 0
	buf := jitter.New(cfg)
	buf.RegisterBody("crate", "peer-a")

	n, err := Replay(files[0], buf)
	if err != nil || n != 2 {
		t.Fatalf("replayed %d, %v; want 2 snapshots", n, err)
	}
	frame := buf.Step(0.5)
	s, ok := frame.Sample("crate")
	if !ok || s.Body.Transform.Position.X != 2 {
		t.Fatalf("sample = %+v %v, want newest replayed pose", s, ok)
	}
}
