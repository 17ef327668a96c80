package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default tuning invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := `
sleep:
  frame_count: 8
  heartbeat_ticks: 120
jitter:
  delay_sec: 0.25
actor_sync:
  model: server
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Sleep.FrameCount != 8 || got.Sleep.HeartbeatTicks != 120 {
		t.Fatalf("sleep overrides not applied: %+v", got.Sleep)
	}
	if got.Jitter.Delay != 0.25 {
		t.Fatalf("jitter delay = %v, want 0.25", got.Jitter.Delay)
	}
	if got.Jitter.Capacity != Default().Jitter.Capacity {
		t.Fatalf("untouched field lost its default: %d", got.Jitter.Capacity)
	}
	if got.ActorSync.Model != "server" {
		t.Fatalf("model = %q", got.ActorSync.Model)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("bridge:\n  tick_rate_hz: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "tick_rate_hz") {
		t.Fatalf("expected tick rate error, got %v", err)
	}
}
