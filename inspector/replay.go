package inspector

import (
	"sort"

	"github.com/automoto/bodysync/recorder"
)

// Replay releases journal entries at the pace they were originally
// received.
type Replay struct {
	entries []recorder.Entry
	next    int
	elapsed float64
}

// LoadReplay reads a journal file written by recorder.Writer.
func LoadReplay(path string) (*Replay, error) {
	var entries []recorder.Entry
	err := recorder.ReadFile(path, func(e recorder.Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewReplay(entries), nil
}

func NewReplay(entries []recorder.Entry) *Replay {
	sorted := append([]recorder.Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Received.Before(sorted[j].Received) })
	return &Replay{entries: sorted}
}

// Advance moves the replay clock by dt seconds and returns the entries that
// became due.
func (r *Replay) Advance(dt float64) []recorder.Entry {
	if r.next >= len(r.entries) {
		return nil
	}
	r.elapsed += dt
	start := r.entries[0].Received
	from := r.next
	for r.next < len(r.entries) && r.entries[r.next].Received.Sub(start).Seconds() <= r.elapsed {
		r.next++
	}
	return r.entries[from:r.next]
}

func (r *Replay) Done() bool { return r.next >= len(r.entries) }

// Progress returns how many entries have been released out of the total.
func (r *Replay) Progress() (int, int) { return r.next, len(r.entries) }
