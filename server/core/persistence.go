package core

import (
	"encoding/json"
	"fmt"

	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/quasilyte/gdata"
)

const worldItemKey = "world"

// ItemStore is the subset of gdata.Manager the server persists through.
type ItemStore interface {
	LoadItem(itemKey string) ([]byte, error)
	SaveItem(itemKey string, data []byte) error
}

// OpenStore opens the per-user gdata store for appName.
func OpenStore(appName string) (ItemStore, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", appName, err)
	}
	return m, nil
}

// SavedBody is one body as written to disk.
type SavedBody struct {
	ID            netconfig.BodyID `json:"id"`
	Kinematic     bool             `json:"kinematic"`
	Position      gamemath.Vec3    `json:"position"`
	Rotation      gamemath.Quat    `json:"rotation"`
	LocalPosition gamemath.Vec3    `json:"localPosition"`
	LocalRotation gamemath.Quat    `json:"localRotation"`
}

// SavedWorld is the persisted approximate world.
type SavedWorld struct {
	Uptime float64     `json:"uptime"`
	Bodies []SavedBody `json:"bodies"`
}

// LoadWorld returns nil without error when nothing has been saved yet.
func LoadWorld(store ItemStore) (*SavedWorld, error) {
	data, err := store.LoadItem(worldItemKey)
	if err != nil {
		return nil, fmt.Errorf("load world: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var w SavedWorld
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse saved world: %w", err)
	}
	return &w, nil
}

func SaveWorld(store ItemStore, w SavedWorld) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("serialize world: %w", err)
	}
	if err := store.SaveItem(worldItemKey, data); err != nil {
		return fmt.Errorf("save world: %w", err)
	}
	return nil
}

// CaptureWorld merges the registry's bookkeeping with the latest uploaded
// poses. Bodies never uploaded keep the pose they were spawned with.
func CaptureWorld(reg *Registry, ws *WorldState, uptime float64) SavedWorld {
	out := SavedWorld{Uptime: uptime}
	for _, rec := range reg.Records() {
		sb := SavedBody{
			ID:            rec.Body,
			Kinematic:     rec.Kinematic,
			Position:      rec.Transform.Position,
			Rotation:      rec.Transform.Rotation,
			LocalRotation: gamemath.Identity,
		}
		if b, ok := ws.Body(netconfig.ActorID(rec.Body)); ok {
			sb.Position = b.Position
			sb.Rotation = b.Rotation
			sb.LocalPosition = b.LocalPosition
			sb.LocalRotation = b.LocalRotation
		}
		out.Bodies = append(out.Bodies, sb)
	}
	return out
}

// RestoreWorld registers every saved body under server ownership.
func RestoreWorld(saved SavedWorld, reg *Registry, ws *WorldState) int {
	n := 0
	for _, b := range saved.Bodies {
		t := gamemath.Transform{Position: b.Position, Rotation: b.Rotation}
		err := reg.Spawn(BodyRecord{
			Body:      b.ID,
			Owner:     netconfig.ServerSource,
			Kinematic: b.Kinematic,
			Transform: t,
		})
		if err != nil {
			continue
		}
		ws.ApplyUpload(messages.ServerTransformUpload{
			InstanceID: netconfig.ServerSource,
			Updates: []messages.TransformUpdate{{
				ActorID:       netconfig.ActorID(b.ID),
				WorldPosition: b.Position,
				WorldRotation: b.Rotation,
				LocalPosition: b.LocalPosition,
				LocalRotation: b.LocalRotation,
			}},
		}, saved.Uptime)
		n++
	}
	return n
}
