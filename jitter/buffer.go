// Package jitter buffers remote body snapshots per source and replays them
// on a delayed virtual clock so that irregular, reordered and duplicated
// network updates reach the predictor as a steady, ordered stream.
package jitter

import (
	"log"
	"sort"
	"sync"

	"github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netconfig"
)

// BodySample is the newest played-back state of one body.
type BodySample struct {
	Source netconfig.SourceID
	Body   messages.BodySnapshot
	Time   float64 // Timestamp of the snapshot the state came from
	Clock  float64 // Source virtual clock at the step that produced this frame
	Fresh  bool    // First frame this sample is returned in
	Stale  bool    // No update for longer than the stale timeout
	Reset  bool    // First sample after the source restarted its timeline
}

// Frame is the result of one Step: the newest sample per tracked body.
type Frame struct {
	Bodies map[netconfig.BodyID]BodySample
}

// Sample returns the frame entry for id.
func (f Frame) Sample(id netconfig.BodyID) (BodySample, bool) {
	s, ok := f.Bodies[id]
	return s, ok
}

// Stats counts how the buffer absorbed network irregularities.
type Stats struct {
	Queued     int
	Late       uint64 // Arrived after a newer snapshot was already played
	Duplicates uint64 // Merged into an already-queued timestamp
	Dropped    uint64 // Evicted by the capacity bound
	Reanchors  uint64 // Clock jumps after falling too far behind
	Foreign    uint64 // Body entries from a source the body is not bound to
}

type source struct {
	id        netconfig.SourceID
	queue     []messages.Snapshot // Sorted by Time, not yet played
	clock     float64
	anchored  bool
	played    float64
	hasPlayed bool
}

type track struct {
	source  netconfig.SourceID
	sample  BodySample
	has     bool
	fresh   bool
	rebound bool // Last sample came from a previous source
	restart bool // Source reset since the last played sample
}

// Buffer is safe for one consumer calling Step and any number of producers
// calling AddSnapshot.
type Buffer struct {
	mu      sync.Mutex
	cfg     config.JitterConfig
	sources map[netconfig.SourceID]*source
	bodies  map[netconfig.BodyID]*track
	stats   Stats
}

func New(cfg config.JitterConfig) *Buffer {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	return &Buffer{
		cfg:     cfg,
		sources: make(map[netconfig.SourceID]*source),
		bodies:  make(map[netconfig.BodyID]*track),
	}
}

// RegisterSource starts buffering snapshots from id. Registering twice is a
// no-op.
func (b *Buffer) RegisterSource(id netconfig.SourceID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sourceLocked(id)
}

// UnregisterSource drops everything queued for id. Bodies bound to it keep
// their last sample and go stale.
func (b *Buffer) UnregisterSource(id netconfig.SourceID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sources, id)
}

// RegisterBody binds body to the source whose snapshots drive it. Rebinding
// to another source keeps the last sample so playback holds until the new
// source delivers.
func (b *Buffer) RegisterBody(body netconfig.BodyID, src netconfig.SourceID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sourceLocked(src)
	if t, ok := b.bodies[body]; ok {
		if t.source != src {
			t.source = src
			t.rebound = t.has
		}
		return
	}
	b.bodies[body] = &track{source: src}
}

// UnregisterBody stops tracking body.
func (b *Buffer) UnregisterBody(body netconfig.BodyID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bodies, body)
}

// IsTracked reports whether body is consumed from the buffer.
func (b *Buffer) IsTracked(body netconfig.BodyID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.bodies[body]
	return ok
}

// SourceOf returns the source body is bound to.
func (b *Buffer) SourceOf(body netconfig.BodyID) (netconfig.SourceID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.bodies[body]
	if !ok {
		return "", false
	}
	return t.source, true
}

// AddSnapshot queues snap for src. Unknown sources are registered on the
// fly. Snapshots older than what has already been played are discarded.
func (b *Buffer) AddSnapshot(src netconfig.SourceID, snap messages.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.sourceLocked(src)
	if snap.Flags.Has(netconfig.FlagResetJitterBuffer) {
		s.queue = s.queue[:0]
		s.anchored = false
		s.hasPlayed = false
		for _, t := range b.bodies {
			if t.source == src {
				t.restart = true
			}
		}
	}
	if s.hasPlayed && snap.Time <= s.played {
		b.stats.Late++
		return
	}
	if !s.anchored {
		s.clock = snap.Time - b.cfg.Delay
		s.anchored = true
	}

	idx := sort.Search(len(s.queue), func(i int) bool { return s.queue[i].Time >= snap.Time })
	if idx < len(s.queue) && s.queue[idx].Time == snap.Time {
		s.queue[idx] = mergeSnapshots(s.queue[idx], snap)
		b.stats.Duplicates++
		return
	}
	s.queue = append(s.queue, messages.Snapshot{})
	copy(s.queue[idx+1:], s.queue[idx:])
	s.queue[idx] = cloneSnapshot(snap)

	if over := len(s.queue) - b.cfg.Capacity; over > 0 {
		s.queue = append(s.queue[:0], s.queue[over:]...)
		b.stats.Dropped += uint64(over)
	}
}

// Step advances every source clock by dt, consumes the snapshots that became
// due and returns the newest sample of each tracked body.
func (b *Buffer) Step(dt float64) Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.bodies {
		t.fresh = false
	}

	for _, s := range b.sources {
		if !s.anchored {
			continue
		}
		s.clock += dt
		if n := len(s.queue); n > 0 {
			newest := s.queue[n-1].Time
			if behind := newest - s.clock; behind > b.cfg.Delay+b.cfg.MaxLag {
				log.Printf("[jitter] source %s fell %.3fs behind, re-anchoring", s.id, behind)
				s.clock = newest - b.cfg.Delay
				b.stats.Reanchors++
			}
		}

		played := 0
		for played < len(s.queue) && s.queue[played].Time <= s.clock {
			b.playLocked(s, s.queue[played])
			played++
		}
		if played > 0 {
			s.queue = append(s.queue[:0], s.queue[played:]...)
		}
	}

	frame := Frame{Bodies: make(map[netconfig.BodyID]BodySample, len(b.bodies))}
	for id, t := range b.bodies {
		if !t.has {
			continue
		}
		sample := t.sample
		sample.Fresh = t.fresh
		sample.Reset = t.fresh && sample.Reset
		sample.Stale = true
		if s, ok := b.sources[t.source]; ok && s.anchored && !t.rebound {
			sample.Clock = s.clock
			sample.Stale = sample.Clock-sample.Time > b.cfg.StaleTimeout
		}
		frame.Bodies[id] = sample
	}
	return frame
}

// Stats returns a copy of the buffer counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.stats
	for _, s := range b.sources {
		st.Queued += len(s.queue)
	}
	return st
}

func (b *Buffer) playLocked(s *source, snap messages.Snapshot) {
	s.played = snap.Time
	s.hasPlayed = true
	for _, body := range snap.Bodies {
		t, ok := b.bodies[body.ID]
		if !ok {
			continue
		}
		if t.source != s.id {
			b.stats.Foreign++
			continue
		}
		t.sample = BodySample{
			Source: s.id,
			Body:   body,
			Time:   snap.Time,
			Clock:  s.clock,
			Reset:  t.restart || (t.fresh && t.sample.Reset),
		}
		t.restart = false
		t.has = true
		t.fresh = true
		t.rebound = false
	}
}

func (b *Buffer) sourceLocked(id netconfig.SourceID) *source {
	s, ok := b.sources[id]
	if !ok {
		s = &source{id: id}
		b.sources[id] = s
	}
	return s
}

// mergeSnapshots folds the bodies of dup into base; entries in dup replace
// same-id entries so re-delivery of an identical snapshot is a no-op.
func mergeSnapshots(base, dup messages.Snapshot) messages.Snapshot {
	out := cloneSnapshot(base)
	out.Flags |= dup.Flags
	for _, body := range dup.Bodies {
		replaced := false
		for i := range out.Bodies {
			if out.Bodies[i].ID == body.ID {
				out.Bodies[i] = body
				replaced = true
				break
			}
		}
		if !replaced {
			out.Bodies = append(out.Bodies, body)
		}
	}
	return out
}

func cloneSnapshot(s messages.Snapshot) messages.Snapshot {
	s.Bodies = append([]messages.BodySnapshot(nil), s.Bodies...)
	return s
}
