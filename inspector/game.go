package inspector

import (
	"fmt"
	"image/color"
	"math"

	cfg "github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/fonts"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// Game draws a Session with ebitengine.
type Game struct {
	session *Session
	dt      float64
	paused  bool
	labels  bool
}

func NewGame(session *Session) *Game {
	return &Game{
		session: session,
		dt:      1 / float64(ebiten.TPS()),
		labels:  true,
	}
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyL) {
		g.labels = !g.labels
	}
	if !g.paused {
		g.session.Step(g.dt)
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(cfg.Background)
	ppu := cfg.Inspector.PixelsPerUnit
	size := cfg.Inspector.BodySize
	small := fonts.Small.Get()

	// Server view: outlines at the last uploaded pose.
	for _, b := range g.session.ServerBodies() {
		x := float32(b.Position.X*ppu) - size/2
		y := float32(b.Position.Y*ppu) - size/2
		vector.StrokeRect(screen, x-2, y-2, size+4, size+4, 1, cfg.Grey, false)
	}

	for _, b := range g.session.Bodies() {
		if b.Stale && !cfg.Inspector.ShowStale {
			continue
		}
		cx := float32(b.Position.X * ppu)
		cy := float32(b.Position.Y * ppu)

		fill := color.Color(cfg.Red)
		if int(b.Motion) < len(cfg.MotionColors) {
			fill = cfg.MotionColors[b.Motion]
		}
		if b.Stale || b.Holding {
			fill = cfg.Grey
		}
		vector.FillRect(screen, cx-size/2, cy-size/2, size, size, fill, false)

		// Heading tick shows the spin.
		hx := cx + float32(math.Cos(b.Angle))*size/2
		hy := cy + float32(math.Sin(b.Angle))*size/2
		vector.StrokeLine(screen, cx, cy, hx, hy, 1, cfg.White, false)

		if g.labels {
			label := fmt.Sprintf("%s [%s]", b.ID, b.Source)
			text.Draw(screen, label, small, int(cx-size/2), int(cy-size/2)-3, cfg.White)
		}
	}

	g.drawHUD(screen)
}

func (g *Game) drawHUD(screen *ebiten.Image) {
	st := g.session.Stats()
	status := g.session.Status()
	line := fmt.Sprintf("%s  peers:%d bodies:%d up:%.0fs", status.ServerName, status.Peers, status.Bodies, status.Uptime)
	if r := g.session.Replay(); r != nil {
		done, total := r.Progress()
		line = fmt.Sprintf("replay %d/%d", done, total)
	}
	if !g.session.Ready() {
		line = "waiting for server..."
	}
	text.Draw(screen, line, fonts.Regular.Get(), 8, 18, cfg.LightGreen)

	stats := fmt.Sprintf("queued:%d late:%d dup:%d dropped:%d reanchor:%d", st.Queued, st.Late, st.Duplicates, st.Dropped, st.Reanchors)
	text.Draw(screen, stats, fonts.Small.Get(), 8, 34, cfg.LightBlue)

	if g.paused {
		text.Draw(screen, "PAUSED", fonts.Title.Get(), cfg.Inspector.Width-90, 24, cfg.Yellow)
	}
}

func (g *Game) Layout(width, height int) (int, int) {
	return cfg.Inspector.Width, cfg.Inspector.Height
}
