// Package bridge arbitrates between the local physics engine and the
// network. For every registered body it decides whether the local engine
// simulates it (this peer owns it) or whether its pose comes from the jitter
// buffer through a predictor. Owned bodies feed outgoing snapshots and the
// low-frequency server upload; remote bodies are forced kinematic and
// written each tick from their prediction.
package bridge

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/jitter"
	"github.com/automoto/bodysync/physics"
	"github.com/automoto/bodysync/prediction"
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/automoto/bodysync/tags"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"
)

var (
	ErrBodyExists         = errors.New("body already registered")
	ErrUnknownBody        = errors.New("unknown body")
	ErrOwnershipUnchanged = errors.New("ownership unchanged")
	ErrNotOwned           = errors.New("body not owned locally")
	ErrNilBody            = errors.New("nil engine body")
)

// Bridge must be driven from a single goroutine, except for Submit which is
// safe to call from network handlers.
type Bridge struct {
	localID netconfig.SourceID
	scene   physics.SceneGraph
	buffer  *jitter.Buffer
	tuning  config.Tuning

	world  donburi.World
	index  map[netconfig.BodyID]donburi.Entity
	queue  *commandQueue
	owned  *donburi.Query
	remote *donburi.Query

	resetPending bool
	uploaded     bool
	lastUpload   float64
}

// New creates a bridge for the peer identified by localID. The first
// snapshot it generates asks receivers to reset their jitter buffer.
func New(localID netconfig.SourceID, scene physics.SceneGraph, buffer *jitter.Buffer, tuning config.Tuning) *Bridge {
	return &Bridge{
		localID:      localID,
		scene:        scene,
		buffer:       buffer,
		tuning:       tuning,
		world:        donburi.NewWorld(),
		index:        make(map[netconfig.BodyID]donburi.Entity),
		queue:        newCommandQueue(tuning.Bridge.CommandCapacity),
		owned:        donburi.NewQuery(filter.Contains(tags.Owned, BodyInfo, EngineBody)),
		remote:       donburi.NewQuery(filter.Contains(tags.Remote, BodyInfo, EngineBody, Predictor)),
		resetPending: true,
	}
}

func (b *Bridge) LocalID() netconfig.SourceID { return b.localID }

func (b *Bridge) Buffer() *jitter.Buffer { return b.buffer }

// Submit queues cmd for the next FixedUpdate. It returns false when the
// queue is full and the command was dropped.
func (b *Bridge) Submit(cmd Command) bool {
	if !b.queue.push(cmd) {
		log.Printf("[bridge] warning: command queue full, dropping %T", cmd)
		return false
	}
	return true
}

// AddBody registers an engine body. Bodies owned by another source are
// handed to the jitter buffer and forced kinematic.
func (b *Bridge) AddBody(id netconfig.BodyID, source netconfig.SourceID, isKinematic bool, body physics.Body) error {
	if body == nil {
		return fmt.Errorf("add body %s: %w", id, ErrNilBody)
	}
	if _, exists := b.index[id]; exists {
		log.Printf("[bridge] body %s already registered, ignoring", id)
		return fmt.Errorf("add body %s: %w", id, ErrBodyExists)
	}

	owned := source == b.localID
	ownership := tags.Remote
	if owned {
		ownership = tags.Owned
	}
	entity := b.world.Create(BodyInfo, EngineBody, Predictor, ownership)
	entry := b.world.Entry(entity)

	BodyInfo.Set(entry, &BodyInfoData{
		ID:        id,
		Source:    source,
		Owned:     owned,
		Kinematic: isKinematic,
	})
	EngineBody.Set(entry, &EngineBodyData{Body: body})
	pred := prediction.New(id, b.tuning.Prediction)
	Predictor.Set(entry, &PredictorData{Predictor: pred})
	b.index[id] = entity

	if owned {
		body.SetKinematic(isKinematic)
	} else {
		b.buffer.RegisterBody(id, source)
		body.SetKinematic(true)
		pred.Reset(b.rootPose(body), gamemath.Zero, gamemath.Zero)
	}
	log.Printf("[bridge] body %s added, source %s, owned %v", id, source, owned)
	return nil
}

// RemoveBody drops id from the arena and the jitter buffer.
func (b *Bridge) RemoveBody(id netconfig.BodyID) error {
	entity, ok := b.index[id]
	if !ok {
		return fmt.Errorf("remove body %s: %w", id, ErrUnknownBody)
	}
	if b.world.Valid(entity) {
		b.world.Remove(entity)
	}
	delete(b.index, id)
	b.buffer.UnregisterBody(id)
	return nil
}

// TransferOwnership applies a new owner for id. Becoming the owner stops
// jitter playback in the same call and hands the engine the last predicted
// velocity; losing ownership seeds the predictor from the current pose, as
// does a move between two remote owners whose clocks are unrelated.
func (b *Bridge) TransferOwnership(id netconfig.BodyID, newSource netconfig.SourceID, isKinematic bool) error {
	entry, err := b.entry(id)
	if err != nil {
		return fmt.Errorf("transfer %s: %w", id, err)
	}
	info := BodyInfo.Get(entry)
	body := EngineBody.Get(entry).Body
	incoming := newSource == b.localID

	if (info.Owned && incoming) || (!info.Owned && info.Source == newSource) {
		log.Printf("[bridge] warning: body %s is already owned by %s", id, newSource)
		return fmt.Errorf("transfer %s to %s: %w", id, newSource, ErrOwnershipUnchanged)
	}

	prev := info.Source
	switch {
	case incoming:
		b.buffer.UnregisterBody(id)
		body.SetKinematic(isKinematic)
		body.SetLinearVelocity(b.worldVector(info.LastValidLinear))
		body.SetAngularVelocity(b.worldVector(info.LastValidAngular))
		entry.RemoveComponent(tags.Remote)
		entry.AddComponent(tags.Owned)
		info.Owned = true
		info.Keyframed = false
		info.resetEmission()

	case info.Owned:
		b.buffer.RegisterBody(id, newSource)
		linear := b.rootVector(body.LinearVelocity())
		angular := b.rootVector(body.AngularVelocity())
		Predictor.Get(entry).Reset(b.rootPose(body), linear, angular)
		body.SetKinematic(true)
		entry.RemoveComponent(tags.Owned)
		entry.AddComponent(tags.Remote)
		info.Owned = false
		info.Keyframed = false
		info.LastValidLinear = linear
		info.LastValidAngular = angular

	default:
		b.buffer.RegisterBody(id, newSource)
		Predictor.Get(entry).Reset(b.rootPose(body), info.LastValidLinear, info.LastValidAngular)
	}

	info.Source = newSource
	info.Kinematic = isKinematic
	log.Printf("[bridge] body %s ownership %s -> %s", id, prev, newSource)
	return nil
}

// SetKeyframed marks an owned body as animated rather than simulated.
// Keyframed bodies are kinematic in the engine and never sleep.
func (b *Bridge) SetKeyframed(id netconfig.BodyID, keyframed bool) error {
	entry, err := b.entry(id)
	if err != nil {
		return fmt.Errorf("keyframe %s: %w", id, err)
	}
	info := BodyInfo.Get(entry)
	if !info.Owned {
		log.Printf("[bridge] warning: cannot keyframe body %s owned by %s", id, info.Source)
		return fmt.Errorf("keyframe %s: %w", id, ErrNotOwned)
	}
	info.Keyframed = keyframed
	info.SleepFrames = 0
	EngineBody.Get(entry).SetKinematic(keyframed || info.Kinematic)
	return nil
}

// RequestJitterReset makes the next snapshot ask receivers to discard their
// queued snapshots from this peer, e.g. after a local time discontinuity.
func (b *Bridge) RequestJitterReset() {
	b.resetPending = true
}

// FixedUpdate runs once per physics tick before the engine steps: it applies
// queued commands, advances the jitter buffer and writes predicted poses
// into the engine for every remote body.
func (b *Bridge) FixedUpdate(dt float64) {
	for _, cmd := range b.queue.drain() {
		if err := cmd.apply(b); err != nil {
			log.Printf("[bridge] command %T: %v", cmd, err)
		}
	}

	frame := b.buffer.Step(dt)

	b.remote.Each(b.world, func(entry *donburi.Entry) {
		info := BodyInfo.Get(entry)
		body := EngineBody.Get(entry).Body
		pred := Predictor.Get(entry)

		var sample *jitter.BodySample
		if s, ok := frame.Sample(info.ID); ok {
			sample = &s
			if s.Fresh {
				info.LastUpdateTime = s.Time
			}
		}

		state := pred.Advance(sample, dt)
		if !state.Valid {
			return
		}
		physics.SetWorldTransform(body, b.worldPose(state.Pose))
		body.SetLinearVelocity(b.worldVector(state.Linear))
		body.SetAngularVelocity(b.worldVector(state.Angular))
		info.LastValidLinear = state.Linear
		info.LastValidAngular = state.Angular
	})
}

// GenerateSnapshot builds the outgoing snapshot of owned bodies for time.
// Bodies that are asleep or unchanged since their last emission are left
// out until a heartbeat is due. The second result is false when there is
// nothing to send.
func (b *Bridge) GenerateSnapshot(time float64) (messages.Snapshot, bool) {
	var bodies []messages.BodySnapshot

	for _, entry := range b.sortedEntries(b.owned) {
		info := BodyInfo.Get(entry)
		body := EngineBody.Get(entry).Body

		pose := b.rootPose(body)
		linear := b.rootVector(body.LinearVelocity())
		angular := b.rootVector(body.AngularVelocity())
		if b.tuning.Bridge.ClampOutgoing {
			linear = prediction.ClampVelocity(linear, b.tuning.Prediction.MaxLinearVelocity)
			angular = prediction.ClampVelocity(angular, b.tuning.Prediction.MaxAngularVelocity)
		}
		info.LastUpdateTime = time
		info.LastValidLinear = linear
		info.LastValidAngular = angular

		snap := messages.BodySnapshot{
			ID:              info.ID,
			Transform:       pose,
			LinearVelocity:  linear,
			AngularVelocity: angular,
			Motion:          b.detectMotion(info, pose, linear, angular),
		}

		if !b.shouldEmit(info, snap) {
			info.SilentTicks++
			if info.SilentTicks < b.tuning.Sleep.HeartbeatTicks {
				continue
			}
		}
		info.Sent = true
		info.LastSent = snap
		info.LastSentMotion = snap.Motion
		info.SilentTicks = 0
		bodies = append(bodies, snap)
	}

	if len(bodies) == 0 {
		return messages.Snapshot{}, false
	}
	snapshot := messages.Snapshot{
		Source: b.localID,
		Time:   time,
		Bodies: bodies,
	}
	if b.resetPending {
		snapshot.Flags |= netconfig.FlagResetJitterBuffer
		b.resetPending = false
	}
	return snapshot, true
}

// LowFrequencyUpload reports owned bodies whose app or local transform moved
// since their last upload. It yields at most once per upload interval.
func (b *Bridge) LowFrequencyUpload(time float64) (messages.ServerTransformUpload, bool) {
	if b.uploaded && time-b.lastUpload < b.tuning.Bridge.UploadInterval {
		return messages.ServerTransformUpload{}, false
	}
	b.uploaded = true
	b.lastUpload = time

	eps := b.tuning.Bridge.UploadEpsilon
	upload := messages.ServerTransformUpload{InstanceID: b.localID}
	for _, entry := range b.sortedEntries(b.owned) {
		info := BodyInfo.Get(entry)
		world := physics.WorldTransform(EngineBody.Get(entry).Body)
		app := world.RelativeTo(b.scene.RootTransform())
		local := world.RelativeTo(b.scene.ParentTransform(info.ID))

		if info.Uploaded && app.ApproxEqual(info.LastUploadApp, eps) && local.ApproxEqual(info.LastUploadLocal, eps) {
			continue
		}
		info.Uploaded = true
		info.LastUploadApp = app
		info.LastUploadLocal = local
		upload.Updates = append(upload.Updates, messages.TransformUpdate{
			ActorID:       netconfig.ActorID(info.ID),
			WorldPosition: app.Position,
			WorldRotation: app.Rotation,
			LocalPosition: local.Position,
			LocalRotation: local.Rotation,
		})
	}
	return upload, len(upload.Updates) > 0
}

// Mode reports whether id is simulated locally or driven from the network.
func (b *Bridge) Mode(id netconfig.BodyID) (netconfig.DriveMode, bool) {
	entry, err := b.entry(id)
	if err != nil {
		return netconfig.DriveRemote, false
	}
	if BodyInfo.Get(entry).Owned {
		return netconfig.DriveLocal, true
	}
	return netconfig.DriveRemote, true
}

// Info returns a copy of the bookkeeping for id.
func (b *Bridge) Info(id netconfig.BodyID) (BodyInfoData, bool) {
	entry, err := b.entry(id)
	if err != nil {
		return BodyInfoData{}, false
	}
	return *BodyInfo.Get(entry), true
}

// Prediction returns the current prediction for a remote body.
func (b *Bridge) Prediction(id netconfig.BodyID) (prediction.State, bool) {
	entry, err := b.entry(id)
	if err != nil || !entry.HasComponent(tags.Remote) {
		return prediction.State{}, false
	}
	return Predictor.Get(entry).State(), true
}

// Bodies returns every registered body id in sorted order.
func (b *Bridge) Bodies() []netconfig.BodyID {
	ids := make([]netconfig.BodyID, 0, len(b.index))
	for id := range b.index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (b *Bridge) entry(id netconfig.BodyID) (*donburi.Entry, error) {
	entity, ok := b.index[id]
	if !ok || !b.world.Valid(entity) {
		return nil, ErrUnknownBody
	}
	return b.world.Entry(entity), nil
}

func (b *Bridge) sortedEntries(q *donburi.Query) []*donburi.Entry {
	var entries []*donburi.Entry
	q.Each(b.world, func(entry *donburi.Entry) {
		entries = append(entries, entry)
	})
	sort.Slice(entries, func(i, j int) bool {
		return BodyInfo.Get(entries[i]).ID < BodyInfo.Get(entries[j]).ID
	})
	return entries
}

// detectMotion classifies an owned body for this tick. A body sleeps after
// SleepFrameCount consecutive ticks with every motion measure below its
// threshold.
func (b *Bridge) detectMotion(info *BodyInfoData, pose gamemath.Transform, linear, angular gamemath.Vec3) netconfig.MotionType {
	defer func() {
		info.PrevTransform = pose
		info.HasPrev = true
	}()

	if info.Keyframed {
		info.SleepFrames = 0
		return netconfig.MotionKeyframed
	}

	cfg := b.tuning.Sleep
	quiet := info.HasPrev &&
		linear.LengthSq() < cfg.LinearVelocitySq &&
		angular.LengthSq() < cfg.AngularVelocitySq &&
		pose.Position.Sub(info.PrevTransform.Position).LengthSq() < cfg.PositionDeltaSq &&
		sq(pose.Rotation.AngleTo(info.PrevTransform.Rotation)) < cfg.RotationDeltaSq
	if quiet {
		info.SleepFrames++
	} else {
		info.SleepFrames = 0
	}
	if info.SleepFrames >= cfg.FrameCount {
		return netconfig.MotionSleeping
	}
	return netconfig.MotionDynamic
}

func (b *Bridge) shouldEmit(info *BodyInfoData, snap messages.BodySnapshot) bool {
	if !info.Sent || snap.Motion != info.LastSentMotion {
		return true
	}
	if snap.Motion == netconfig.MotionSleeping {
		return false
	}
	eps := b.tuning.Bridge.ChangeEpsilon
	last := info.LastSent
	return !snap.Transform.ApproxEqual(last.Transform, eps) ||
		!snap.LinearVelocity.ApproxEqual(last.LinearVelocity, eps) ||
		!snap.AngularVelocity.ApproxEqual(last.AngularVelocity, eps)
}

func (b *Bridge) rootPose(body physics.Body) gamemath.Transform {
	return physics.WorldTransform(body).RelativeTo(b.scene.RootTransform())
}

func (b *Bridge) worldPose(root gamemath.Transform) gamemath.Transform {
	return b.scene.RootTransform().Mul(root)
}

func (b *Bridge) rootVector(v gamemath.Vec3) gamemath.Vec3 {
	return b.scene.RootTransform().Rotation.Conjugate().Rotate(v)
}

func (b *Bridge) worldVector(v gamemath.Vec3) gamemath.Vec3 {
	return b.scene.RootTransform().Rotation.Rotate(v)
}

func (info *BodyInfoData) resetEmission() {
	info.SleepFrames = 0
	info.SilentTicks = 0
	info.Sent = false
	info.HasPrev = false
}

func sq(x float64) float64 { return x * x }
