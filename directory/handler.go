package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type registerRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Peers   int    `json:"peers"`
	Bodies  int    `json:"bodies"`
	Version string `json:"version"`
	Region  string `json:"region"`
}

type registerResponse struct {
	ID string `json:"id"`
}

type heartbeatRequest struct {
	ID     string `json:"id"`
	Peers  int    `json:"peers"`
	Bodies int    `json:"bodies"`
}

// watchMessage is pushed to /watch subscribers on every change.
type watchMessage struct {
	Revision uint64      `json:"revision"`
	Relays   []RelayInfo `json:"relays"`
}

const maxRequestBody = 1 << 16 // 64 KB

func ListRelays(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		relays := reg.List()
		if v := r.URL.Query().Get("version"); v != "" {
			filtered := relays[:0]
			for _, info := range relays {
				if info.Version == v {
					filtered = append(filtered, info)
				}
			}
			relays = filtered
		}
		if err := json.NewEncoder(w).Encode(relays); err != nil {
			log.Printf("[directory] list encode error: %v", err)
		}
	}
}

func RegisterRelay(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
			return
		}
		if req.Name == "" || req.Address == "" {
			http.Error(w, `{"error":"name and address required"}`, http.StatusBadRequest)
			return
		}

		id := reg.Register(RelayInfo{
			Name:    req.Name,
			Address: req.Address,
			Peers:   req.Peers,
			Bodies:  req.Bodies,
			Version: req.Version,
			Region:  req.Region,
		})

		log.Printf("[directory] registered relay %q at %s (id=%s)", req.Name, req.Address, id)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(registerResponse{ID: id})
	}
}

func Heartbeat(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		var req heartbeatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
			return
		}

		if !reg.Heartbeat(req.ID, req.Peers, req.Bodies) {
			http.Error(w, `{"error":"unknown relay"}`, http.StatusNotFound)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// Watch streams the relay list over a WebSocket: once on connect, then after
// every registration, load change or expiry.
func Watch(reg *Registry) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[directory] upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		// Reader goroutine notices the client going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			changed := reg.Changed()
			relays, rev := reg.Snapshot()
			data, err := json.Marshal(watchMessage{Revision: rev, Relays: relays})
			if err != nil {
				log.Printf("[directory] watch encode error: %v", err)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

			select {
			case <-changed:
			case <-gone:
				return
			}
		}
	}
}

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// NewMux wires every directory endpoint.
func NewMux(reg *Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /relays", ListRelays(reg))
	mux.HandleFunc("POST /relays/register", RegisterRelay(reg))
	mux.HandleFunc("POST /relays/heartbeat", Heartbeat(reg))
	mux.HandleFunc("GET /watch", Watch(reg))
	mux.HandleFunc("GET /health", Health())
	return mux
}
