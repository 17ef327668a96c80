package sandbox

import (
	"github.com/automoto/bodysync/shared/leveldata"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// mover drives a keyframed body along its scene path. Coordinates are the
// body's top-left corner in pixels.
type mover struct {
	fromX, fromY float32
	toX, toY     float32
	duration     float32
	pingPong     bool
	forward      bool

	x, y *gween.Tween
}

func newMover(spawn leveldata.BodySpawn) *mover {
	m := &mover{
		fromX:    float32(spawn.X),
		fromY:    float32(spawn.Y),
		toX:      float32(spawn.Mover.ToX),
		toY:      float32(spawn.Mover.ToY),
		duration: float32(spawn.Mover.Duration),
		pingPong: spawn.Mover.PingPong,
		forward:  true,
	}
	m.leg()
	return m
}

func (m *mover) leg() {
	ax, ay, bx, by := m.fromX, m.fromY, m.toX, m.toY
	if !m.forward {
		ax, ay, bx, by = bx, by, ax, ay
	}
	m.x = gween.New(ax, bx, m.duration, ease.InOutQuad)
	m.y = gween.New(ay, by, m.duration, ease.InOutQuad)
}

// step advances the path by dt seconds and returns the new corner.
func (m *mover) step(dt float64) (x, y float64) {
	cx, doneX := m.x.Update(float32(dt))
	cy, doneY := m.y.Update(float32(dt))
	if doneX && doneY {
		if m.pingPong {
			m.forward = !m.forward
		}
		m.leg()
	}
	return float64(cx), float64(cy)
}
