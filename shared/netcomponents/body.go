package netcomponents

import (
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/yohamta/donburi"
)

// NetBodyData is the server's approximate view of one body, fed by the
// owners' low-frequency uploads. Poses are relative to the scene root
// (Position/Rotation) and to the body's parent (Local*).
type NetBodyData struct {
	ActorID       string
	Owner         string
	Keyframed     bool
	Position      gamemath.Vec3
	Rotation      gamemath.Quat
	LocalPosition gamemath.Vec3
	LocalRotation gamemath.Quat
	UpdatedAt     float64 // Server uptime in seconds when last uploaded
}

var NetBody = donburi.NewComponentType[NetBodyData]()

// LerpNetBody interpolates between two body states. Uploads arrive seconds
// apart, so rotations are slerped rather than snapped.
func LerpNetBody(from, to NetBodyData, t float64) *NetBodyData {
	return &NetBodyData{
		ActorID:       to.ActorID,
		Owner:         to.Owner,
		Keyframed:     to.Keyframed,
		Position:      from.Position.Lerp(to.Position, t),
		Rotation:      from.Rotation.Slerp(to.Rotation, t),
		LocalPosition: from.LocalPosition.Lerp(to.LocalPosition, t),
		LocalRotation: from.LocalRotation.Slerp(to.LocalRotation, t),
		UpdatedAt:     to.UpdatedAt,
	}
}
