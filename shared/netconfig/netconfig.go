// Package netconfig defines lightweight types shared between peers and the
// relay server for network serialization. It must have zero dependencies on
// ebiten or any physics engine so the dedicated server binary stays headless.
package netconfig

// BodyID identifies a replicated rigid body across every peer.
type BodyID string

// SourceID identifies a peer (session/user) that can own bodies and emit
// snapshots.
type SourceID string

// ActorID identifies an entity on the actor patch channel.
type ActorID string

// ServerSource is the identity the relay server uses when it speaks for the
// world (server-authoritative actors, replayed ownership).
const ServerSource SourceID = "server"

// MotionType classifies how a body moved on the tick it was sampled.
type MotionType uint8

const (
	MotionDynamic   MotionType = iota // Simulated by the owner's dynamics
	MotionKeyframed                   // Driven by explicit poses (grabbed, scripted)
	MotionSleeping                    // At rest; updates suppressed
)

var motionNames = [...]string{
	MotionDynamic:   "dynamic",
	MotionKeyframed: "keyframed",
	MotionSleeping:  "sleeping",
}

func (m MotionType) String() string {
	if int(m) < len(motionNames) {
		return motionNames[m]
	}
	return "unknown"
}

// SnapshotFlags is a bitset carried by every snapshot.
type SnapshotFlags uint8

const (
	FlagNone SnapshotFlags = 0
	// FlagResetJitterBuffer tells consumers to drop everything buffered for
	// the source and re-anchor its playback clock on this snapshot.
	FlagResetJitterBuffer SnapshotFlags = 1 << 0
)

func (f SnapshotFlags) Has(flag SnapshotFlags) bool {
	return f&flag != 0
}

// DriveMode reports who moves a body on this peer.
type DriveMode int

const (
	DriveLocal  DriveMode = iota // Local physics engine simulates and uploads
	DriveRemote                  // Consumed from the jitter buffer and predicted
)

func (d DriveMode) String() string {
	if d == DriveLocal {
		return "local"
	}
	return "remote"
}

// Protocol defaults shared by every binary.
const (
	DefaultPort       = 7373
	PhysicsTickRate   = 60
	ProtocolVersion   = "1"
	UploadIntervalSec = 3.0
)
