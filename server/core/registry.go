package core

import (
	"errors"
	"sort"
	"sync"

	"github.com/automoto/bodysync/shared/gamemath"
	"github.com/automoto/bodysync/shared/netconfig"
)

var (
	ErrUnknownBody = errors.New("unknown body")
	ErrSameOwner   = errors.New("body already owned by source")
	ErrBodyExists  = errors.New("body already registered")
)

// BodyRecord is the server's authoritative bookkeeping for one body.
type BodyRecord struct {
	Body      netconfig.BodyID
	Owner     netconfig.SourceID
	Kinematic bool
	Keyframed bool
	Transform gamemath.Transform // Last uploaded app-space pose
}

// Registry records the current owner of every body so late joiners can be
// told who drives what. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	bodies map[netconfig.BodyID]*BodyRecord
}

func NewRegistry() *Registry {
	return &Registry{bodies: make(map[netconfig.BodyID]*BodyRecord)}
}

func (r *Registry) Spawn(rec BodyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bodies[rec.Body]; ok {
		return ErrBodyExists
	}
	r.bodies[rec.Body] = &rec
	return nil
}

func (r *Registry) Remove(id netconfig.BodyID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bodies[id]; !ok {
		return false
	}
	delete(r.bodies, id)
	return true
}

func (r *Registry) Get(id netconfig.BodyID) (BodyRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.bodies[id]
	if !ok {
		return BodyRecord{}, false
	}
	return *rec, true
}

// Transfer records a new owner and returns the previous one.
func (r *Registry) Transfer(id netconfig.BodyID, to netconfig.SourceID, kinematic bool) (netconfig.SourceID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.bodies[id]
	if !ok {
		return "", ErrUnknownBody
	}
	if rec.Owner == to {
		return rec.Owner, ErrSameOwner
	}
	prev := rec.Owner
	rec.Owner = to
	rec.Kinematic = kinematic
	rec.Keyframed = false
	return prev, nil
}

func (r *Registry) SetKeyframed(id netconfig.BodyID, keyframed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.bodies[id]
	if !ok {
		return ErrUnknownBody
	}
	rec.Keyframed = keyframed
	return nil
}

func (r *Registry) UpdateTransform(id netconfig.BodyID, t gamemath.Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.bodies[id]; ok {
		rec.Transform = t
	}
}

// Release hands every body owned by src back to the server and returns the
// updated records.
func (r *Registry) Release(src netconfig.SourceID) []BodyRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []BodyRecord
	for _, rec := range r.bodies {
		if rec.Owner != src {
			continue
		}
		rec.Owner = netconfig.ServerSource
		rec.Keyframed = false
		out = append(out, *rec)
	}
	sortRecords(out)
	return out
}

// Records returns a copy of every record, sorted by body id.
func (r *Registry) Records() []BodyRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BodyRecord, 0, len(r.bodies))
	for _, rec := range r.bodies {
		out = append(out, *rec)
	}
	sortRecords(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bodies)
}

// Owners maps body id to owner for the world-state component.
func (r *Registry) Owners() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.bodies))
	for id, rec := range r.bodies {
		out[string(id)] = string(rec.Owner)
	}
	return out
}

func sortRecords(recs []BodyRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Body < recs[j].Body })
}
