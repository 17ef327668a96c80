package core

import (
	"log"
	"sort"

	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netcomponents"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/leap-fish/necs/esync/srvsync"
	"github.com/yohamta/donburi"
)

// SyncFunc marks a freshly created entity for network replication.
type SyncFunc func(w donburi.World, e *donburi.Entity) error

// NetworkSync replicates body entities through esync, interpolating NetBody
// between uploads.
func NetworkSync(w donburi.World, e *donburi.Entity) error {
	return srvsync.NetworkSync(w, e, srvsync.WithInterp(netcomponents.NetBody))
}

func networkSyncState(w donburi.World, e *donburi.Entity) error {
	return srvsync.NetworkSync(w, e, netcomponents.NetWorldState)
}

// WorldState is the server's approximate world, built from low-frequency
// uploads. Only the game loop goroutine touches it.
type WorldState struct {
	world     donburi.World
	sync      SyncFunc
	syncState SyncFunc
	bodies    map[netconfig.ActorID]donburi.Entity
	summary   donburi.Entity
	hasState  bool
}

// NewWorldState wraps world. A nil sync leaves entities local, which is what
// tests want.
func NewWorldState(world donburi.World, sync SyncFunc) *WorldState {
	ws := &WorldState{
		world:  world,
		sync:   sync,
		bodies: make(map[netconfig.ActorID]donburi.Entity),
	}
	if sync != nil {
		ws.syncState = networkSyncState
	}
	return ws
}

func (ws *WorldState) World() donburi.World { return ws.world }

// ApplyUpload overwrites the stored pose of every actor in u, creating
// entities for actors seen for the first time.
func (ws *WorldState) ApplyUpload(u messages.ServerTransformUpload, now float64) int {
	applied := 0
	for _, up := range u.Updates {
		entry := ws.ensure(up.ActorID)
		if entry == nil {
			continue
		}
		data := netcomponents.NetBody.Get(entry)
		data.Owner = string(u.InstanceID)
		data.Position = up.WorldPosition
		data.Rotation = up.WorldRotation
		data.LocalPosition = up.LocalPosition
		data.LocalRotation = up.LocalRotation
		data.UpdatedAt = now
		applied++
	}
	return applied
}

// Place seeds an actor with an app-space pose, as on spawn or restore.
func (ws *WorldState) Place(id netconfig.ActorID, owner netconfig.SourceID, t gamemath.Transform, now float64) {
	entry := ws.ensure(id)
	if entry == nil {
		return
	}
	data := netcomponents.NetBody.Get(entry)
	data.Owner = string(owner)
	data.Position = t.Position
	data.Rotation = t.Rotation
	data.UpdatedAt = now
}

func (ws *WorldState) SetOwner(id netconfig.ActorID, owner netconfig.SourceID) {
	if entry := ws.entry(id); entry != nil {
		netcomponents.NetBody.Get(entry).Owner = string(owner)
	}
}

func (ws *WorldState) SetKeyframed(id netconfig.ActorID, keyframed bool) {
	if entry := ws.entry(id); entry != nil {
		netcomponents.NetBody.Get(entry).Keyframed = keyframed
	}
}

func (ws *WorldState) Remove(id netconfig.ActorID) bool {
	e, ok := ws.bodies[id]
	if !ok {
		return false
	}
	delete(ws.bodies, id)
	if ws.world.Valid(e) {
		ws.world.Remove(e)
	}
	return true
}

// Body returns a copy of the stored state for id.
func (ws *WorldState) Body(id netconfig.ActorID) (netcomponents.NetBodyData, bool) {
	entry := ws.entry(id)
	if entry == nil {
		return netcomponents.NetBodyData{}, false
	}
	return *netcomponents.NetBody.Get(entry), true
}

// Bodies returns every stored body sorted by actor id.
func (ws *WorldState) Bodies() []netcomponents.NetBodyData {
	out := make([]netcomponents.NetBodyData, 0, len(ws.bodies))
	for id := range ws.bodies {
		if b, ok := ws.Body(id); ok {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out
}

// UpdateSummary refreshes the single world-state entity viewers use for
// their status line.
func (ws *WorldState) UpdateSummary(s netcomponents.NetWorldStateData) {
	if !ws.hasState {
		e := ws.world.Create(netcomponents.NetWorldState)
		if ws.syncState != nil {
			if err := ws.syncState(ws.world, &e); err != nil {
				log.Printf("[server] warning: world state sync: %v", err)
			}
		}
		ws.summary = e
		ws.hasState = true
	}
	netcomponents.NetWorldState.Set(ws.world.Entry(ws.summary), &s)
}

func (ws *WorldState) Len() int { return len(ws.bodies) }

func (ws *WorldState) entry(id netconfig.ActorID) *donburi.Entry {
	e, ok := ws.bodies[id]
	if !ok || !ws.world.Valid(e) {
		return nil
	}
	return ws.world.Entry(e)
}

func (ws *WorldState) ensure(id netconfig.ActorID) *donburi.Entry {
	if entry := ws.entry(id); entry != nil {
		return entry
	}
	e := ws.world.Create(netcomponents.NetBody)
	netcomponents.NetBody.Set(ws.world.Entry(e), &netcomponents.NetBodyData{
		ActorID:       string(id),
		Rotation:      gamemath.Identity,
		LocalRotation: gamemath.Identity,
	})
	if ws.sync != nil {
		if err := ws.sync(ws.world, &e); err != nil {
			log.Printf("[server] failed to set up network sync for %s: %v", id, err)
			ws.world.Remove(e)
			return nil
		}
	}
	ws.bodies[id] = e
	return ws.world.Entry(e)
}

func transformOf(up messages.TransformUpdate) gamemath.Transform {
	return gamemath.Transform{Position: up.WorldPosition, Rotation: up.WorldRotation}
}
