package bridge

import (
	"github.com/automoto/bodysync/physics"
	"github.com/automoto/bodysync/prediction"
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/yohamta/donburi"
)

// BodyInfoData is the bridge's bookkeeping for one body. Transforms and
// velocities are relative to the scene root.
type BodyInfoData struct {
	ID        netconfig.BodyID
	Source    netconfig.SourceID // Current authoritative owner
	Owned     bool               // Driven by the local engine
	Keyframed bool
	Kinematic bool // Engine flag the owner wants while it simulates

	LastUpdateTime   float64
	LastValidLinear  gamemath.Vec3
	LastValidAngular gamemath.Vec3

	// Sleep detection and emission, owned bodies only
	SleepFrames    int
	SilentTicks    int
	Sent           bool
	LastSentMotion netconfig.MotionType
	LastSent       messages.BodySnapshot
	PrevTransform  gamemath.Transform
	HasPrev        bool

	// Low-frequency upload
	Uploaded        bool
	LastUploadApp   gamemath.Transform
	LastUploadLocal gamemath.Transform
}

var BodyInfo = donburi.NewComponentType[BodyInfoData]()

// EngineBodyData links an arena entry to the engine body it mirrors.
type EngineBodyData struct {
	physics.Body
}

var EngineBody = donburi.NewComponentType[EngineBodyData]()

// PredictorData holds the predictor used while the body is remote.
type PredictorData struct {
	*prediction.Predictor
}

var Predictor = donburi.NewComponentType[PredictorData]()
