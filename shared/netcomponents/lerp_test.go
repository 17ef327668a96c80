package netcomponents

import (
	"math"
	"testing"

	"github.com/automoto/bodysync/shared/gamemath"
)

func TestLerpNetBody(t *testing.T) {
	from := NetBodyData{
		ActorID:       "crate",
		Owner:         "peer-a",
		Position:      gamemath.V3(0, 0, 0),
		Rotation:      gamemath.Identity,
		LocalRotation: gamemath.Identity,
	}
	to := NetBodyData{
		ActorID:       "crate",
		Owner:         "peer-b",
		Position:      gamemath.V3(2, 4, 0),
		Rotation:      gamemath.QuatFromAxisAngle(gamemath.V3(0, 1, 0), math.Pi/2),
		LocalRotation: gamemath.Identity,
		UpdatedAt:     3,
	}

	mid := LerpNetBody(from, to, 0.5)
	if !mid.Position.ApproxEqual(gamemath.V3(1, 2, 0), 1e-9) {
		t.Fatalf("position = %+v, want (1,2,0)", mid.Position)
	}
	if got := mid.Rotation.AngleTo(gamemath.Identity); math.Abs(got-math.Pi/4) > 1e-6 {
		t.Fatalf("rotation angle = %.6f, want π/4", got)
	}
	if mid.Owner != "peer-b" || mid.UpdatedAt != 3 {
		t.Fatalf("discrete fields should come from the newer state: %+v", mid)
	}
}
