package network

import (
	"github.com/automoto/bodysync/actorsync"
	"github.com/automoto/bodysync/bridge"
	"github.com/automoto/bodysync/physics"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netconfig"
)

// BodyFactory creates the local engine body for a body announced by
// another peer. Returning nil skips the body.
type BodyFactory func(msg messages.BodySpawned) physics.Body

// Dispatch moves queued network messages into the bridge's command queue
// and folds remote actor patches into syncer. Call it from the physics loop
// before Bridge.FixedUpdate. The actor updates are returned for the caller
// to apply to its own actors.
func (c *Client) Dispatch(b *bridge.Bridge, spawn BodyFactory, syncer *actorsync.Syncer) []messages.ActorUpdate {
	// The bridge only learns about a spawn when FixedUpdate applies the
	// command, so repeats within one drain are caught here.
	seen := make(map[netconfig.BodyID]bool)
	for _, msg := range c.DrainSpawns() {
		if msg.Source == b.LocalID() || spawn == nil || seen[msg.Body] {
			continue
		}
		if _, known := b.Info(msg.Body); known {
			continue
		}
		seen[msg.Body] = true
		body := spawn(msg)
		if body == nil {
			continue
		}
		b.Submit(bridge.AddBodyCommand{ID: msg.Body, Source: msg.Source, IsKinematic: msg.IsKinematic, Body: body})
	}

	for _, msg := range c.DrainOwnership() {
		b.Submit(bridge.TransferCommand{ID: msg.Body, NewSource: msg.Source, IsKinematic: msg.IsKinematic})
	}

	for _, msg := range c.DrainKeyframes() {
		// Only the owner acts on keyframe toggles.
		if mode, ok := b.Mode(msg.Body); ok && mode == netconfig.DriveLocal {
			b.Submit(bridge.KeyframeCommand{ID: msg.Body, Keyframed: msg.Keyframed})
		}
	}

	for _, msg := range c.DrainRemovals() {
		b.Submit(bridge.RemoveBodyCommand{ID: msg.Body})
	}

	updates := c.DrainActorUpdates()
	if syncer != nil {
		for _, u := range updates {
			if u.Source != b.LocalID() {
				syncer.Receive(u.Patch)
			}
		}
	}
	return updates
}
