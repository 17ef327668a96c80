// Package inspector is a read-only viewer: it joins the relay like any peer
// but owns nothing, so every body it draws comes out of the jitter buffer and
// predictor. It can also replay a recorded journal without a server.
package inspector

import (
	"log"
	"sort"

	"github.com/automoto/bodysync/bridge"
	"github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/jitter"
	"github.com/automoto/bodysync/network"
	"github.com/automoto/bodysync/physics"
	"github.com/automoto/bodysync/recorder"
	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netcomponents"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/leap-fish/necs/esync"
)

// ReplaySource is the local identity used when there is no server.
const ReplaySource netconfig.SourceID = "inspector"

// BodyView is what the viewer draws for one body.
type BodyView struct {
	ID       netconfig.BodyID
	Source   netconfig.SourceID
	Position gamemath.Vec3
	Angle    float64 // Twist about +Z
	Motion   netconfig.MotionType
	Stale    bool
	Holding  bool
}

// Session holds the non-graphical state of the viewer. Step must be called
// from a single goroutine.
type Session struct {
	tuning config.Tuning
	buffer *jitter.Buffer
	client *network.Client
	replay *Replay
	bridge *bridge.Bridge

	server map[esync.NetworkId]netcomponents.NetBodyData
	status netcomponents.NetWorldStateData
}

// NewLiveSession views the session client is (or will be) joined to.
func NewLiveSession(client *network.Client, buffer *jitter.Buffer, tuning config.Tuning) *Session {
	return &Session{
		tuning: tuning,
		buffer: buffer,
		client: client,
		server: make(map[esync.NetworkId]netcomponents.NetBodyData),
	}
}

// NewReplaySession plays back a recorded journal.
func NewReplaySession(replay *Replay, tuning config.Tuning) *Session {
	buffer := jitter.New(tuning.Jitter)
	return &Session{
		tuning: tuning,
		buffer: buffer,
		replay: replay,
		bridge: bridge.New(ReplaySource, physics.NewStaticScene(), buffer, tuning),
		server: make(map[esync.NetworkId]netcomponents.NetBodyData),
	}
}

// Ready reports whether there is a bridge to draw from.
func (s *Session) Ready() bool { return s.bridge != nil }

// Step advances the viewer by dt seconds.
func (s *Session) Step(dt float64) {
	if s.client != nil {
		s.stepLive()
	} else {
		s.stepReplay(dt)
	}
	if s.bridge != nil {
		s.bridge.FixedUpdate(dt)
	}
}

func (s *Session) stepLive() {
	if s.bridge == nil {
		if s.client.State() != network.StateJoined {
			return
		}
		s.bridge = bridge.New(s.client.Source(), physics.NewStaticScene(), s.buffer, s.tuning)
		log.Printf("[inspector] viewing %q as %s", s.client.ServerName(), s.client.Source())
	}
	s.client.Dispatch(s.bridge, newViewBody, nil)
	if snap := s.client.LatestWorld(); snap != nil {
		s.applyWorld(*snap)
	}
}

func (s *Session) stepReplay(dt float64) {
	for _, e := range s.replay.Advance(dt) {
		switch e.Kind {
		case recorder.KindSnapshot:
			if e.Snapshot == nil {
				continue
			}
			s.track(e.Source, *e.Snapshot)
			s.buffer.AddSnapshot(e.Source, *e.Snapshot)
		case recorder.KindOwnership:
			if e.Ownership == nil {
				continue
			}
			o := e.Ownership
			s.bridge.Submit(bridge.TransferCommand{ID: o.Body, NewSource: o.Source, IsKinematic: o.IsKinematic})
		}
	}
}

// track registers bodies the first time a replayed snapshot mentions them.
func (s *Session) track(src netconfig.SourceID, snap messages.Snapshot) {
	for _, b := range snap.Bodies {
		if _, known := s.bridge.Info(b.ID); known {
			continue
		}
		body := physics.NewMemoryBody(b.Transform.Position)
		if err := s.bridge.AddBody(b.ID, src, false, body); err != nil {
			log.Printf("[inspector] replay add %s: %v", b.ID, err)
		}
	}
}

// applyWorld decodes the server's esync world into plain component values.
func (s *Session) applyWorld(snapshot esync.WorldSnapshot) {
	clear(s.server)
	for _, ent := range snapshot {
		for _, componentBytes := range ent.State {
			instance, err := esync.Mapper.Deserialize(componentBytes)
			if err != nil {
				continue
			}
			switch v := instance.(type) {
			case netcomponents.NetBodyData:
				s.server[ent.Id] = v
			case netcomponents.NetWorldStateData:
				s.status = v
			}
		}
	}
}

// Bodies returns the predicted view of every tracked body, sorted by id.
func (s *Session) Bodies() []BodyView {
	if s.bridge == nil {
		return nil
	}
	var out []BodyView
	for _, id := range s.bridge.Bodies() {
		info, _ := s.bridge.Info(id)
		st, ok := s.bridge.Prediction(id)
		if !ok || !st.Valid {
			continue
		}
		out = append(out, BodyView{
			ID:       id,
			Source:   info.Source,
			Position: st.Pose.Position,
			Angle:    twist(st.Pose.Rotation),
			Motion:   st.Motion,
			Stale:    st.Stale,
			Holding:  st.Holding,
		})
	}
	return out
}

// ServerBodies returns the server's approximate world, sorted by actor id.
func (s *Session) ServerBodies() []netcomponents.NetBodyData {
	out := make([]netcomponents.NetBodyData, 0, len(s.server))
	for _, b := range s.server {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out
}

func (s *Session) Status() netcomponents.NetWorldStateData { return s.status }

func (s *Session) Stats() jitter.Stats { return s.buffer.Stats() }

func (s *Session) Replay() *Replay { return s.replay }

func newViewBody(msg messages.BodySpawned) physics.Body {
	b := physics.NewMemoryBody(msg.Transform.Position)
	b.SetRotation(msg.Transform.Rotation)
	return b
}

func twist(q gamemath.Quat) float64 {
	axis, angle := q.AxisAngle()
	if axis.Z < 0 {
		return -angle
	}
	return angle
}
