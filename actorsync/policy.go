// Package actorsync decides, per actor and per frame, what the variable-rate
// patch channel should carry. It complements the physics bridge: the bridge
// streams rigid-body motion at tick rate, this package emits sparse actor
// patches (attachment, appearance, collider, transforms) when this peer has
// a say over the actor.
package actorsync

import (
	"fmt"

	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/automoto/bodysync/shared/patch"
)

// Model selects who holds write authority over actors.
type Model int

const (
	// ServerAuthoritative: only the server writes actors, except those held
	// in a hierarchy owned by the local user.
	ServerAuthoritative Model = iota
	// PeerAuthoritative: each actor is written by its owner.
	PeerAuthoritative
)

func (m Model) String() string {
	switch m {
	case ServerAuthoritative:
		return "server"
	case PeerAuthoritative:
		return "peer"
	}
	return fmt.Sprintf("Model(%d)", int(m))
}

// ParseModel accepts the tuning spelling, "server" or "peer".
func ParseModel(s string) (Model, error) {
	switch s {
	case "server":
		return ServerAuthoritative, nil
	case "peer":
		return PeerAuthoritative, nil
	}
	return ServerAuthoritative, fmt.Errorf("unknown sync model %q", s)
}

// Entity is the per-frame view of an actor the policy decides on.
type Entity struct {
	State patch.ActorState
	// HierarchyOwner owns the attachment hierarchy the actor sits in, or is
	// empty when the actor is not attached.
	HierarchyOwner netconfig.SourceID
	Grabbed        bool // Held by the local user this frame
	JustReleased   bool // Was held last frame, is not now
}

// Decision is the field mask for one actor this frame.
type Decision struct {
	Emit           bool
	Metadata       bool // Name, parent, owner
	Transform      bool
	RigidBody      bool
	Collider       bool
	Attachment     bool
	Appearance     bool
	ForceTransform bool // Send the full transform even if unchanged
}

type Policy struct {
	Model   Model
	LocalID netconfig.SourceID
}

// HasAuthority reports whether this peer may write e. An attached actor
// belongs to whoever owns its hierarchy, whatever the model.
func (p Policy) HasAuthority(e Entity) bool {
	if e.HierarchyOwner != "" {
		return e.HierarchyOwner == p.LocalID
	}
	switch p.Model {
	case ServerAuthoritative:
		return p.LocalID == netconfig.ServerSource
	case PeerAuthoritative:
		return e.State.Owner == p.LocalID
	}
	return false
}

// Decide returns what to sync for e. Grabbing or releasing forces a
// transform sync even without authority so observers converge on the final
// pose. A rigid body always rides along with the transform.
func (p Policy) Decide(e Entity) Decision {
	authority := p.HasAuthority(e)
	force := e.Grabbed || e.JustReleased
	if !authority && !force {
		return Decision{}
	}
	return Decision{
		Emit:           true,
		Metadata:       authority,
		Transform:      true,
		RigidBody:      e.State.RigidBody != nil,
		Collider:       authority,
		Attachment:     authority,
		Appearance:     authority,
		ForceTransform: force,
	}
}

// Mask drops the fields of ap that d does not allow.
func (d Decision) Mask(ap patch.ActorPatch) patch.ActorPatch {
	if !d.Emit {
		return patch.ActorPatch{ID: ap.ID}
	}
	if !d.Metadata {
		ap.Name, ap.ParentID, ap.Owner = nil, nil, nil
	}
	if !d.Transform {
		ap.Transform = nil
	}
	if !d.RigidBody {
		ap.RigidBody = nil
	}
	if !d.Collider {
		ap.Collider = nil
	}
	if !d.Attachment {
		ap.Attachment = nil
	}
	if !d.Appearance {
		ap.Appearance = nil
	}
	return ap
}
