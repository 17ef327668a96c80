package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type fixedLoad struct{ peers, bodies int }

func (l fixedLoad) PeerCount() int { return l.peers }
func (l fixedLoad) BodyCount() int { return l.bodies }

// fakeDirectory accepts registrations and forgets them on demand.
type fakeDirectory struct {
	mu         sync.Mutex
	registered int
	known      map[string]bool
	beats      []heartbeatRequest
}

func (d *fakeDirectory) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch r.URL.Path {
	case "/relays/register":
		var req regRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		d.registered++
		id := req.Name + "-" + string(rune('0'+d.registered))
		d.known[id] = true
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(regResponse{ID: id})
	case "/relays/heartbeat":
		var req heartbeatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !d.known[req.ID] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		d.beats = append(d.beats, req)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestRegistrationHeartbeat(t *testing.T) {
	dir := &fakeDirectory{known: map[string]bool{}}
	srv := httptest.NewServer(dir)
	defer srv.Close()

	reg := NewRegistration(srv.URL+"/", "lab", "127.0.0.1:7373", "1", "local", fixedLoad{peers: 2, bodies: 9})
	if err := reg.register(); err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.ID() != "lab-1" {
		t.Fatalf("id = %q", reg.ID())
	}
	if err := reg.sendHeartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if len(dir.beats) != 1 || dir.beats[0].Peers != 2 || dir.beats[0].Bodies != 9 {
		t.Fatalf("beats = %+v", dir.beats)
	}
}

func TestRegistrationReRegistersWhenForgotten(t *testing.T) {
	dir := &fakeDirectory{known: map[string]bool{}}
	srv := httptest.NewServer(dir)
	defer srv.Close()

	reg := NewRegistration(srv.URL, "lab", "127.0.0.1:7373", "1", "", fixedLoad{})
	if err := reg.register(); err != nil {
		t.Fatal(err)
	}
	dir.mu.Lock()
	dir.known = map[string]bool{}
	dir.mu.Unlock()

	if err := reg.sendHeartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if reg.ID() != "lab-2" {
		t.Fatalf("id after re-register = %q, want lab-2", reg.ID())
	}
}
