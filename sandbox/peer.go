// Package sandbox is a headless simulating peer. It loads a TMX scene into
// the planar engine, announces the bodies it owns, drives keyframed movers
// and grabs other peers' bodies on a schedule so ownership changes hands
// continuously.
package sandbox

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/automoto/bodysync/actorsync"
	"github.com/automoto/bodysync/bridge"
	"github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/jitter"
	"github.com/automoto/bodysync/loader"
	"github.com/automoto/bodysync/network"
	"github.com/automoto/bodysync/physics"
	"github.com/automoto/bodysync/recorder"
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/leveldata"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/automoto/bodysync/shared/patch"
)

//go:embed scenes/*.tmx
var sceneFS embed.FS

// DefaultScene is the embedded scene loaded when none is given.
const DefaultScene = "scenes/lab.tmx"

// SceneFS exposes the embedded scenes.
func SceneFS() fs.FS { return sceneFS }

var errJoinTimeout = errors.New("timed out waiting for join")

// Options configure a Peer.
type Options struct {
	Address    string
	Name       string
	SceneFS    fs.FS
	ScenePath  string
	ClaimEvery time.Duration
	HoldFor    time.Duration
	ActorRate  int // Actor patch frames per second
	RecordDir  string
}

// Peer owns every piece of one simulating participant. Everything except
// Reload runs on the goroutine that called Run.
type Peer struct {
	opts   Options
	tuning config.Tuning

	world  *physics.PlanarWorld
	scene  *physics.StaticScene
	buffer *jitter.Buffer
	client *network.Client
	bridge *bridge.Bridge
	syncer *actorsync.Syncer

	sceneLock *loader.Lock
	reloads   chan *leveldata.SceneData
	loaded    bool
	spawns    map[netconfig.BodyID]leveldata.BodySpawn
	movers    map[netconfig.BodyID]*mover
	schedule  *Schedule

	clock float64
}

func NewPeer(opts Options, tuning config.Tuning) *Peer {
	if opts.SceneFS == nil {
		opts.SceneFS = sceneFS
		opts.ScenePath = DefaultScene
	}
	if opts.ActorRate <= 0 {
		opts.ActorRate = 20
	}
	buffer := jitter.New(tuning.Jitter)
	return &Peer{
		opts:      opts,
		tuning:    tuning,
		scene:     physics.NewStaticScene(),
		buffer:    buffer,
		client:    network.NewClient(buffer),
		sceneLock: loader.NewLock("scene"),
		reloads:   make(chan *leveldata.SceneData, 1),
		spawns:    make(map[netconfig.BodyID]leveldata.BodySpawn),
		movers:    make(map[netconfig.BodyID]*mover),
		schedule:  NewSchedule(opts.ClaimEvery.Seconds(), opts.HoldFor.Seconds()),
	}
}

// Run connects, loads the scene and simulates until ctx is done.
func (p *Peer) Run(ctx context.Context) error {
	if p.opts.RecordDir != "" {
		w := recorder.NewWriter(p.opts.RecordDir, "sandbox")
		defer w.Close()
		p.client.SetRecorder(w)
	}

	data, err := p.parseScene(ctx)
	if err != nil {
		return err
	}
	p.buildWorld(data)

	p.client.Connect(p.opts.Address, netconfig.ProtocolVersion, p.opts.Name)
	defer p.client.Disconnect()

	if err := p.awaitJoin(ctx, 10*time.Second); err != nil {
		return err
	}
	p.start(p.client.Source())
	log.Printf("[sandbox] joined %q as %s", p.client.ServerName(), p.client.Source())

	// Let the server's replay of existing bodies arrive before claiming ours.
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(250 * time.Millisecond):
	}
	p.Dispatch()
	p.applyScene(data)

	return p.loop(ctx)
}

// Reload re-reads the scene and hands it to the simulation goroutine. Bodies
// that already exist are left alone.
func (p *Peer) Reload(ctx context.Context) error {
	data, err := p.parseScene(ctx)
	if err != nil {
		return err
	}
	select {
	case p.reloads <- data:
	default:
		log.Println("[sandbox] warning: reload already pending")
	}
	return nil
}

func (p *Peer) parseScene(ctx context.Context) (*leveldata.SceneData, error) {
	var data *leveldata.SceneData
	err := loader.Retry(ctx, p.sceneLock, p.opts.Name, 2*time.Second, 3, 200*time.Millisecond, func() error {
		d, err := leveldata.LoadScene(p.opts.SceneFS, p.opts.ScenePath)
		if err != nil {
			return err
		}
		data = d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", p.opts.ScenePath, err)
	}
	return data, nil
}

func (p *Peer) awaitJoin(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	for {
		switch p.client.State() {
		case network.StateJoined:
			return nil
		case network.StateError:
			return p.client.LastError()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return errJoinTimeout
		case <-poll.C:
		}
	}
}

// start builds the per-session state once the server has named us.
func (p *Peer) start(local netconfig.SourceID) {
	p.bridge = bridge.New(local, p.scene, p.buffer, p.tuning)
	model, err := actorsync.ParseModel(p.tuning.ActorSync.Model)
	if err != nil {
		log.Printf("[sandbox] warning: %v, using %s", err, model)
	}
	p.syncer = actorsync.NewSyncer(actorsync.Policy{Model: model, LocalID: local}, p.tuning.ActorSync.Epsilon)
}

// buildWorld creates the engine world from the first scene loaded and
// indexes the scene's bodies so remote announcements get the right size.
func (p *Peer) buildWorld(data *leveldata.SceneData) {
	if !p.loaded {
		p.world = physics.NewPlanarWorld(data.MapWidth, data.MapHeight, physics.DefaultPlanarConfig())
		for _, s := range data.Solids {
			p.world.AddSolid(s.X, s.Y, s.W, s.H)
		}
		p.loaded = true
	}
	for _, spawn := range data.Bodies {
		p.spawns[netconfig.BodyID(spawn.ID)] = spawn
	}
}

// applyScene registers every body this peer should own and nobody has
// announced yet.
func (p *Peer) applyScene(data *leveldata.SceneData) {
	p.buildWorld(data)

	local := p.bridge.LocalID()
	added := 0
	for _, spawn := range data.Bodies {
		id := netconfig.BodyID(spawn.ID)
		if _, known := p.bridge.Info(id); known {
			continue
		}
		if _, announced := p.world.Body(id); announced {
			continue
		}
		if spawn.Owner != "" && netconfig.SourceID(spawn.Owner) != local {
			continue
		}

		body := p.world.AddBody(id, spawn.X, spawn.Y, spawn.W, spawn.H, spawn.Mass)
		if err := p.bridge.AddBody(id, local, spawn.Kinematic, body); err != nil {
			log.Printf("[sandbox] add %s: %v", id, err)
			p.world.RemoveBody(id)
			continue
		}
		p.send(p.client.SendSpawn(messages.BodySpawned{
			Body:        id,
			Source:      local,
			IsKinematic: spawn.Kinematic,
			Transform:   physics.WorldTransform(body),
		}))
		if spawn.Mover != nil {
			p.movers[id] = newMover(spawn)
			if err := p.bridge.SetKeyframed(id, true); err == nil {
				p.send(p.client.SendKeyframed(id, true))
			}
		}
		added++
	}
	log.Printf("[sandbox] scene %s: %d solids, %d bodies, %d added", data.Name, len(data.Solids), len(data.Bodies), added)
}

func (p *Peer) loop(ctx context.Context) error {
	dt := p.tuning.FixedDelta()
	physicsTick := time.NewTicker(time.Duration(dt * float64(time.Second)))
	defer physicsTick.Stop()
	actorTick := time.NewTicker(time.Second / time.Duration(p.opts.ActorRate))
	defer actorTick.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[sandbox] stopping")
			return nil
		case data := <-p.reloads:
			p.applyScene(data)
		case <-physicsTick.C:
			p.Step(dt)
		case <-actorTick.C:
			p.SyncActors()
		}
	}
}

// Dispatch moves queued network messages into the bridge.
func (p *Peer) Dispatch() {
	p.client.Dispatch(p.bridge, p.makeRemoteBody, p.syncer)
}

// Step runs one fixed physics tick.
func (p *Peer) Step(dt float64) {
	p.Dispatch()
	p.bridge.FixedUpdate(dt)
	p.reconcile()
	p.driveMovers(dt)
	p.world.Step(dt)
	p.clock += dt

	if snap, ok := p.bridge.GenerateSnapshot(p.clock); ok {
		p.send(p.client.SendSnapshot(snap))
	}
	if up, ok := p.bridge.LowFrequencyUpload(p.clock); ok {
		p.send(p.client.SendUpload(up))
	}

	claim, release := p.schedule.Tick(p.clock, p.grabbable(), p.isLocal)
	for _, id := range claim {
		info, _ := p.bridge.Info(id)
		log.Printf("[sandbox] claiming %s from %s", id, info.Source)
		p.send(p.client.RequestOwnership(id, info.Kinematic))
	}
	for _, id := range release {
		info, _ := p.bridge.Info(id)
		log.Printf("[sandbox] releasing %s", id)
		p.send(p.client.ReleaseOwnership(id, netconfig.ServerSource, info.Kinematic))
	}
}

// SyncActors publishes patches for every locally driven body. Bodies held
// through the schedule count as grabbed.
func (p *Peer) SyncActors() {
	var entities []actorsync.Entity
	for _, id := range p.bridge.Bodies() {
		info, _ := p.bridge.Info(id)
		body, ok := p.world.Body(id)
		if !ok {
			continue
		}
		pose := physics.WorldTransform(body)
		state := patch.ActorState{
			ID:    netconfig.ActorID(id),
			Name:  string(id),
			Owner: info.Source,
			Transform: patch.TransformState{
				App: pose,
				Local: patch.LocalTransform{
					Position: pose.Position,
					Rotation: pose.Rotation,
					Scale:    gamemath.V3(1, 1, 1),
				},
			},
			RigidBody: &patch.RigidBodyState{
				Mass:             body.Mass(),
				Velocity:         body.LinearVelocity(),
				AngularVelocity:  body.AngularVelocity(),
				UseGravity:       !body.IsKinematic(),
				IsKinematic:      body.IsKinematic(),
				DetectCollisions: true,
			},
			Appearance: patch.AppearanceState{Enabled: true, MeshID: "box"},
		}
		if spawn, ok := p.spawns[id]; ok {
			state.Collider = &patch.ColliderState{
				Enabled: true,
				Geometry: patch.ColliderGeometry{
					Shape: patch.ShapeBox,
					Size:  gamemath.V3(spawn.W, spawn.H, 0),
				},
			}
		}
		entities = append(entities, actorsync.Entity{
			State:   state,
			Grabbed: p.schedule.Held(id) && p.isLocal(id),
		})
	}

	local := p.bridge.LocalID()
	for _, ap := range p.syncer.Sync(entities) {
		p.send(p.client.SendActorUpdate(messages.ActorUpdate{Source: local, Patch: ap}))
	}
}

func (p *Peer) driveMovers(dt float64) {
	ppu := physics.DefaultPlanarConfig().PixelsPerUnit
	for id, m := range p.movers {
		if !p.isLocal(id) {
			continue
		}
		body, ok := p.world.Body(id)
		if !ok {
			delete(p.movers, id)
			continue
		}
		_, _, w, h := body.Rect()
		x, y := m.step(dt)
		next := gamemath.V3((x+w/2)/ppu, (y+h/2)/ppu, 0)
		body.SetLinearVelocity(next.Sub(body.Position()).Scale(1 / dt))
		body.SetPosition(next)
	}
}

// reconcile drops engine bodies the bridge no longer tracks.
func (p *Peer) reconcile() {
	for _, id := range p.world.Bodies() {
		if _, ok := p.bridge.Info(id); !ok {
			p.world.RemoveBody(id)
			delete(p.movers, id)
		}
	}
}

// makeRemoteBody creates the engine body for a body announced by another peer.
func (p *Peer) makeRemoteBody(msg messages.BodySpawned) physics.Body {
	if p.world == nil {
		return nil
	}
	w, h, mass := 16.0, 16.0, 1.0
	spawn, fromScene := p.spawns[msg.Body]
	if fromScene {
		w, h, mass = spawn.W, spawn.H, spawn.Mass
	}
	ppu := physics.DefaultPlanarConfig().PixelsPerUnit
	pos := msg.Transform.Position
	body := p.world.AddBody(msg.Body, pos.X*ppu-w/2, pos.Y*ppu-h/2, w, h, mass)
	body.SetRotation(msg.Transform.Rotation)
	return body
}

// grabbable lists the dynamic bodies, the only ones the schedule claims.
func (p *Peer) grabbable() []netconfig.BodyID {
	var out []netconfig.BodyID
	for _, id := range p.bridge.Bodies() {
		if info, ok := p.bridge.Info(id); ok && !info.Kinematic {
			out = append(out, id)
		}
	}
	return out
}

func (p *Peer) isLocal(id netconfig.BodyID) bool {
	mode, ok := p.bridge.Mode(id)
	return ok && mode == netconfig.DriveLocal
}

func (p *Peer) send(err error) {
	if err != nil {
		log.Printf("[sandbox] send: %v", err)
	}
}

func (p *Peer) Bridge() *bridge.Bridge { return p.bridge }

func (p *Peer) World() *physics.PlanarWorld { return p.world }

func (p *Peer) Clock() float64 { return p.clock }
