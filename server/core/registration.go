package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Load is what the relay reports to the directory on each heartbeat.
type Load interface {
	PeerCount() int
	BodyCount() int
}

var _ Load = (*Server)(nil)

// Registration announces the relay to a directory and keeps it alive with
// periodic heartbeats.
type Registration struct {
	directory string
	name      string
	address   string
	version   string
	region    string
	load      Load
	client    *http.Client
	interval  time.Duration

	mu       sync.Mutex
	relayID  string
	stopCh   chan struct{}
	stopOnce sync.Once
}

type regRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Peers   int    `json:"peers"`
	Bodies  int    `json:"bodies"`
	Version string `json:"version"`
	Region  string `json:"region"`
}

type regResponse struct {
	ID string `json:"id"`
}

type heartbeatRequest struct {
	ID     string `json:"id"`
	Peers  int    `json:"peers"`
	Bodies int    `json:"bodies"`
}

func NewRegistration(directory, name, address, version, region string, load Load) *Registration {
	return &Registration{
		directory: strings.TrimRight(directory, "/"),
		name:      name,
		address:   address,
		version:   version,
		region:    region,
		load:      load,
		client:    &http.Client{Timeout: 5 * time.Second},
		interval:  30 * time.Second,
		stopCh:    make(chan struct{}),
	}
}

func (r *Registration) Start() {
	if err := r.register(); err != nil {
		log.Printf("[registration] initial registration failed: %v", err)
	}
	go r.heartbeatLoop()
}

func (r *Registration) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// ID is the directory-assigned relay id, empty until registered.
func (r *Registration) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relayID
}

func (r *Registration) register() error {
	body, err := json.Marshal(regRequest{
		Name:    r.name,
		Address: r.address,
		Peers:   r.load.PeerCount(),
		Bodies:  r.load.BodyCount(),
		Version: r.version,
		Region:  r.region,
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	resp, err := r.client.Post(r.directory+"/relays/register", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result regResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	r.mu.Lock()
	r.relayID = result.ID
	r.mu.Unlock()
	log.Printf("[registration] registered with directory (id=%s)", result.ID)
	return nil
}

func (r *Registration) heartbeatLoop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.sendHeartbeat(); err != nil {
				log.Printf("[registration] heartbeat failed: %v", err)
			}
		}
	}
}

func (r *Registration) sendHeartbeat() error {
	id := r.ID()
	if id == "" {
		return r.register()
	}

	body, err := json.Marshal(heartbeatRequest{
		ID:     id,
		Peers:  r.load.PeerCount(),
		Bodies: r.load.BodyCount(),
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	resp, err := r.client.Post(r.directory+"/relays/heartbeat", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		log.Println("[registration] directory lost our registration, re-registering")
		return r.register()
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
