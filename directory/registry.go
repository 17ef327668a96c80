package main

import (
	"crypto/rand"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// RelayInfo describes a relay server peers can join.
type RelayInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Peers   int    `json:"peers"`
	Bodies  int    `json:"bodies"`
	Version string `json:"version"`
	Region  string `json:"region"`
}

type relayRecord struct {
	RelayInfo
	LastSeen time.Time
}

// Registry is an in-memory set of live relays. Entries expire when their
// heartbeat stops for longer than ttl.
type Registry struct {
	mu       sync.RWMutex
	relays   map[string]*relayRecord
	ttl      time.Duration
	revision uint64
	changed  chan struct{} // closed and replaced on every change
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		relays:  make(map[string]*relayRecord),
		ttl:     ttl,
		changed: make(chan struct{}),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// StartExpiry sweeps stale relays every interval until Stop.
func (r *Registry) StartExpiry(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.Expire()
			}
		}
	}()
}

func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Registry) Register(info RelayInfo) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	info.ID = fmt.Sprintf("%x", b)

	r.mu.Lock()
	r.relays[info.ID] = &relayRecord{RelayInfo: info, LastSeen: r.now()}
	r.bump()
	r.mu.Unlock()

	return info.ID
}

// Heartbeat refreshes a relay's load figures. It reports false for unknown
// or expired ids so the relay knows to register again.
func (r *Registry) Heartbeat(id string, peers, bodies int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.relays[id]
	if !ok {
		return false
	}
	rec.LastSeen = r.now()
	if rec.Peers != peers || rec.Bodies != bodies {
		rec.Peers = peers
		rec.Bodies = bodies
		r.bump()
	}
	return true
}

// List returns live relays ordered by name then id.
func (r *Registry) List() []RelayInfo {
	list, _ := r.Snapshot()
	return list
}

// Snapshot returns the relay list and its revision together.
func (r *Registry) Snapshot() ([]RelayInfo, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RelayInfo, 0, len(r.relays))
	for _, rec := range r.relays {
		out = append(out, rec.RelayInfo)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, r.revision
}

// Changed returns a channel closed on the next change.
func (r *Registry) Changed() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.changed
}

// Expire drops relays whose last heartbeat is older than the TTL.
func (r *Registry) Expire() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for id, rec := range r.relays {
		if now.Sub(rec.LastSeen) >= r.ttl {
			log.Printf("[directory] expired relay %q (id=%s, last seen %s ago)",
				rec.Name, id, now.Sub(rec.LastSeen).Round(time.Second))
			delete(r.relays, id)
			n++
		}
	}
	if n > 0 {
		r.bump()
	}
	return n
}

// bump must be called with mu held.
func (r *Registry) bump() {
	r.revision++
	close(r.changed)
	r.changed = make(chan struct{})
}
