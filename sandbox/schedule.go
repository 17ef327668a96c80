package sandbox

import "github.com/automoto/bodysync/shared/netconfig"

// Schedule decides when the sandbox grabs a body it does not own and when it
// lets go again. Times are seconds on the peer clock.
type Schedule struct {
	Every float64 // Gap between claims; zero disables claiming
	Hold  float64 // How long a claimed body is kept

	next   float64
	cursor int
	held   map[netconfig.BodyID]float64
}

func NewSchedule(every, hold float64) *Schedule {
	return &Schedule{
		Every: every,
		Hold:  hold,
		next:  every,
		held:  make(map[netconfig.BodyID]float64),
	}
}

// Tick returns the bodies to claim and to release at now. bodies must be
// sorted; local reports whether this peer currently drives a body.
func (s *Schedule) Tick(now float64, bodies []netconfig.BodyID, local func(netconfig.BodyID) bool) (claim, release []netconfig.BodyID) {
	for _, id := range bodies {
		at, ok := s.held[id]
		if !ok || now-at < s.Hold {
			continue
		}
		delete(s.held, id)
		if local(id) {
			release = append(release, id)
		}
	}

	if s.Every <= 0 || now < s.next || len(bodies) == 0 {
		return claim, release
	}
	s.next = now + s.Every

	for i := 0; i < len(bodies); i++ {
		id := bodies[(s.cursor+i)%len(bodies)]
		if local(id) {
			continue
		}
		if _, busy := s.held[id]; busy {
			continue
		}
		s.cursor = (s.cursor + i + 1) % len(bodies)
		s.held[id] = now
		claim = append(claim, id)
		break
	}
	return claim, release
}

// Held reports whether id was claimed by the schedule and not yet released.
func (s *Schedule) Held(id netconfig.BodyID) bool {
	_, ok := s.held[id]
	return ok
}
