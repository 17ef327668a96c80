package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// JitterConfig controls the per-source playback delay buffer.
type JitterConfig struct {
	Delay        float64 `yaml:"delay_sec"`         // Playback lag behind the newest timestamp
	StaleTimeout float64 `yaml:"stale_timeout_sec"` // Silence after which a body is marked stale
	MaxLag       float64 `yaml:"max_lag_sec"`       // Extra backlog tolerated before re-anchoring
	Capacity     int     `yaml:"capacity"`          // Snapshots queued per source
}

// PredictionConfig bounds what the predictor will trust from the network.
type PredictionConfig struct {
	MaxLinearVelocity  float64 `yaml:"max_linear_velocity"`
	MaxAngularVelocity float64 `yaml:"max_angular_velocity"`
	MaxExtrapolation   float64 `yaml:"max_extrapolation_sec"`
}

// SleepConfig tunes the owner-side sleep detector. Thresholds are squared
// magnitudes compared against per-tick measurements.
type SleepConfig struct {
	FrameCount        int     `yaml:"frame_count"`
	HeartbeatTicks    int     `yaml:"heartbeat_ticks"`
	LinearVelocitySq  float64 `yaml:"linear_velocity_sq"`
	AngularVelocitySq float64 `yaml:"angular_velocity_sq"`
	PositionDeltaSq   float64 `yaml:"position_delta_sq"`
	RotationDeltaSq   float64 `yaml:"rotation_delta_sq"`
}

// BridgeConfig covers snapshot generation and the low-frequency upload.
type BridgeConfig struct {
	TickRate        int     `yaml:"tick_rate_hz"`
	ChangeEpsilon   float64 `yaml:"change_epsilon"`
	ClampOutgoing   bool    `yaml:"clamp_outgoing"`
	UploadInterval  float64 `yaml:"upload_interval_sec"`
	UploadEpsilon   float64 `yaml:"upload_epsilon"`
	CommandCapacity int     `yaml:"command_capacity"`
}

// ActorSyncConfig governs the variable-rate patch channel.
type ActorSyncConfig struct {
	Model   string  `yaml:"model"` // "server" or "peer"
	Epsilon float64 `yaml:"epsilon"`
}

// ServerConfig holds the relay server's operational parameters.
type ServerConfig struct {
	Name            string        `yaml:"name"`
	Port            uint          `yaml:"port"`
	Version         string        `yaml:"version"`
	AppName         string        `yaml:"app_name"`
	PersistInterval time.Duration `yaml:"persist_interval"`
	RecordDir       string        `yaml:"record_dir"`
	AuditPath       string        `yaml:"audit_path"` // SQLite ownership log, empty disables
	Directory       string        `yaml:"directory"`  // Relay directory base URL, empty disables
	Advertise       string        `yaml:"advertise"`  // host:port peers should dial
	Region          string        `yaml:"region"`
}

// Tuning is the complete set of knobs shared by every binary.
type Tuning struct {
	Jitter     JitterConfig     `yaml:"jitter"`
	Prediction PredictionConfig `yaml:"prediction"`
	Sleep      SleepConfig      `yaml:"sleep"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	ActorSync  ActorSyncConfig  `yaml:"actor_sync"`
	Server     ServerConfig     `yaml:"server"`
}

// C is the process-wide tuning. Binaries replace it after loading overrides.
var C = Default()

// Default returns the built-in tuning.
func Default() Tuning {
	return Tuning{
		Jitter: JitterConfig{
			Delay:        0.1,
			StaleTimeout: 1.0,
			MaxLag:       0.5,
			Capacity:     128,
		},
		Prediction: PredictionConfig{
			MaxLinearVelocity:  50,
			MaxAngularVelocity: 30,
			MaxExtrapolation:   0.5,
		},
		Sleep: SleepConfig{
			FrameCount:        5,
			HeartbeatTicks:    500,
			LinearVelocitySq:  1e-4,
			AngularVelocitySq: 1e-4,
			PositionDeltaSq:   1e-6,
			RotationDeltaSq:   1e-6,
		},
		Bridge: BridgeConfig{
			TickRate:        60,
			ChangeEpsilon:   1e-4,
			ClampOutgoing:   true,
			UploadInterval:  3.0,
			UploadEpsilon:   1e-3,
			CommandCapacity: 256,
		},
		ActorSync: ActorSyncConfig{
			Model:   "peer",
			Epsilon: 1e-4,
		},
		Server: ServerConfig{
			Name:            "bodysync relay",
			Port:            7373,
			AppName:         "bodysync",
			PersistInterval: 30 * time.Second,
		},
	}
}

// Load reads YAML overrides from path on top of Default.
func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := CheckSchema(raw); err != nil {
		return t, fmt.Errorf("tuning %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning %s: %w", path, err)
	}
	return t, nil
}

// Validate rejects settings that would stall or break the tick loop.
func (t Tuning) Validate() error {
	switch {
	case t.Bridge.TickRate <= 0:
		return fmt.Errorf("bridge.tick_rate_hz must be positive, got %d", t.Bridge.TickRate)
	case t.Sleep.FrameCount <= 0:
		return fmt.Errorf("sleep.frame_count must be positive, got %d", t.Sleep.FrameCount)
	case t.Sleep.HeartbeatTicks <= 0:
		return fmt.Errorf("sleep.heartbeat_ticks must be positive, got %d", t.Sleep.HeartbeatTicks)
	case t.Jitter.Delay < 0:
		return fmt.Errorf("jitter.delay_sec must not be negative, got %v", t.Jitter.Delay)
	case t.Jitter.Capacity <= 0:
		return fmt.Errorf("jitter.capacity must be positive, got %d", t.Jitter.Capacity)
	case t.ActorSync.Model != "server" && t.ActorSync.Model != "peer":
		return fmt.Errorf("actor_sync.model must be \"server\" or \"peer\", got %q", t.ActorSync.Model)
	}
	return nil
}

// FixedDelta is the physics tick length in seconds.
func (t Tuning) FixedDelta() float64 {
	return 1 / float64(t.Bridge.TickRate)
}
