package actorsync

import (
	"sort"

	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/automoto/bodysync/shared/patch"
)

// Syncer turns per-frame actor states into outgoing patches. It keeps the
// last state every peer is known to hold for each actor and tracks grab
// state to notice releases. Not safe for concurrent use.
type Syncer struct {
	policy    Policy
	eps       float64
	baselines map[netconfig.ActorID]patch.ActorState
	grabbed   map[netconfig.ActorID]bool
}

func NewSyncer(policy Policy, eps float64) *Syncer {
	return &Syncer{
		policy:    policy,
		eps:       eps,
		baselines: make(map[netconfig.ActorID]patch.ActorState),
		grabbed:   make(map[netconfig.ActorID]bool),
	}
}

func (s *Syncer) Policy() Policy { return s.policy }

// Sync returns the patches to send for this frame, ordered by actor id.
// Entity.JustReleased is derived from the previous frame's grab state.
func (s *Syncer) Sync(entities []Entity) []patch.ActorPatch {
	var out []patch.ActorPatch
	for _, e := range entities {
		id := e.State.ID
		e.JustReleased = s.grabbed[id] && !e.Grabbed
		if e.Grabbed {
			s.grabbed[id] = true
		} else {
			delete(s.grabbed, id)
		}

		d := s.policy.Decide(e)
		if !d.Emit {
			continue
		}

		base, known := s.baselines[id]
		if !known {
			base = patch.ActorState{ID: id}
		}
		ap := d.Mask(patch.Generate(e.State, base, s.eps))
		if d.ForceTransform {
			ap.Transform = patch.FullTransform(e.State.Transform)
		}
		if ap.IsEmpty() {
			continue
		}
		s.baselines[id] = patch.Apply(base, ap)
		out = append(out, ap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Receive folds a patch from another peer into the baseline so it is not
// echoed back.
func (s *Syncer) Receive(ap patch.ActorPatch) {
	base, known := s.baselines[ap.ID]
	if !known {
		base = patch.ActorState{ID: ap.ID}
	}
	s.baselines[ap.ID] = patch.Apply(base, ap)
}

// Baseline returns the last synced state of id.
func (s *Syncer) Baseline(id netconfig.ActorID) (patch.ActorState, bool) {
	st, ok := s.baselines[id]
	return st, ok
}

// Forget drops all tracking for id.
func (s *Syncer) Forget(id netconfig.ActorID) {
	delete(s.baselines, id)
	delete(s.grabbed, id)
}
