package core

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/recorder"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netcomponents"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/leap-fish/necs/esync/srvsync"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
	"github.com/yohamta/donburi"
)

// Conn is the outbound half of a peer connection.
type Conn interface {
	SendMessage(msg any) error
}

type peer struct {
	conn   Conn
	source netconfig.SourceID
	name   string
	joined bool
}

// worldCommand mutates the world state on the game loop goroutine.
type worldCommand func(ws *WorldState, now float64)

// Server relays snapshots between peers, arbitrates body ownership and keeps
// an approximate world built from the owners' uploads.
type Server struct {
	cfg      config.ServerConfig
	tickRate int

	registry  *Registry
	world     *WorldState
	loop      *TickLoop
	transport *transports.WsServerTransport
	store     ItemStore
	rec       *recorder.Writer
	audit     *AuditLog

	mu       sync.RWMutex
	peers    map[Conn]*peer
	nextPeer int

	cmdMu   sync.Mutex
	pending []worldCommand

	// Game loop goroutine only.
	uptime    float64
	sinceSave float64
}

// NewServer creates a relay. A nil store disables persistence.
func NewServer(cfg config.ServerConfig, tickRate int, store ItemStore) *Server {
	return newServer(cfg, tickRate, store, donburi.NewWorld(), NetworkSync)
}

func newServer(cfg config.ServerConfig, tickRate int, store ItemStore, world donburi.World, sync SyncFunc) *Server {
	s := &Server{
		cfg:      cfg,
		tickRate: tickRate,
		registry: NewRegistry(),
		world:    NewWorldState(world, sync),
		store:    store,
		peers:    make(map[Conn]*peer),
	}
	s.loop = NewTickLoop(s, tickRate)
	return s
}

// SetRecorder journals relayed snapshots, uploads and ownership changes.
func (s *Server) SetRecorder(w *recorder.Writer) {
	s.rec = w
}

// SetAudit logs every ownership change to a. The server closes it on Stop.
func (s *Server) SetAudit(a *AuditLog) {
	s.audit = a
}

// Restore loads the persisted world, if any. Call before Start.
func (s *Server) Restore() error {
	if s.store == nil {
		return nil
	}
	saved, err := LoadWorld(s.store)
	if err != nil {
		return err
	}
	if saved == nil {
		log.Println("[server] no saved world, starting empty")
		return nil
	}
	n := RestoreWorld(*saved, s.registry, s.world)
	s.uptime = saved.Uptime
	log.Printf("[server] restored %d bodies from saved world", n)
	return nil
}

// Start runs the game loop and blocks serving WebSocket connections.
func (s *Server) Start(port uint) error {
	srvsync.UseEsync(s.world.World())
	s.setupRouterCallbacks()

	s.loop.Start()

	s.transport = transports.NewWsServerTransport(port, "", nil)
	return s.transport.Start()
}

// Stop halts the loop and writes the world one last time.
func (s *Server) Stop() {
	s.loop.Stop()
	s.Persist()
	if s.rec != nil {
		if err := s.rec.Close(); err != nil {
			log.Printf("[server] warning: close recorder: %v", err)
		}
	}
	if err := s.audit.Close(); err != nil {
		log.Printf("[server] warning: close audit log: %v", err)
	}
}

func (s *Server) setupRouterCallbacks() {
	router.OnConnect(func(client *router.NetworkClient) {
		log.Printf("[server] client connected: %s", client.Id())
		s.Connect(client)
	})

	router.OnDisconnect(func(client *router.NetworkClient, err error) {
		if err != nil {
			log.Printf("[server] client %s disconnected with error: %v", client.Id(), err)
		} else {
			log.Printf("[server] client %s disconnected", client.Id())
		}
		s.Disconnect(client)
	})

	router.On(func(client *router.NetworkClient, msg messages.JoinRequest) {
		s.HandleJoin(client, msg)
	})
	router.On(func(client *router.NetworkClient, msg messages.Snapshot) {
		s.HandleSnapshot(client, msg)
	})
	router.On(func(client *router.NetworkClient, msg messages.SetOwnership) {
		s.HandleOwnership(client, msg)
	})
	router.On(func(client *router.NetworkClient, msg messages.SetKeyframed) {
		s.HandleKeyframed(client, msg)
	})
	router.On(func(client *router.NetworkClient, msg messages.BodySpawned) {
		s.HandleSpawn(client, msg)
	})
	router.On(func(client *router.NetworkClient, msg messages.BodyRemoved) {
		s.HandleRemove(client, msg)
	})
	router.On(func(client *router.NetworkClient, msg messages.ActorUpdate) {
		s.HandleActorUpdate(client, msg)
	})
	router.On(func(client *router.NetworkClient, msg messages.ServerTransformUpload) {
		s.HandleUpload(client, msg)
	})

	router.OnError(func(client *router.NetworkClient, err error) {
		log.Printf("[server] client error: %v", err)
	})
}

func (s *Server) Connect(conn Conn) {
	s.mu.Lock()
	s.peers[conn] = &peer{conn: conn}
	s.mu.Unlock()
}

// Disconnect forgets conn and hands its bodies back to the server so another
// peer can claim them.
func (s *Server) Disconnect(conn Conn) {
	s.mu.Lock()
	p, ok := s.peers[conn]
	delete(s.peers, conn)
	s.mu.Unlock()
	if !ok || !p.joined {
		return
	}

	released := s.registry.Release(p.source)
	for _, rec := range released {
		msg := messages.SetOwnership{Body: rec.Body, Source: netconfig.ServerSource, IsKinematic: rec.Kinematic}
		s.record(func(w *recorder.Writer) error { return w.RecordOwnership(netconfig.ServerSource, msg) })
		s.broadcast(msg, nil)
		s.audit.Record(AuditEntry{Kind: AuditDisconnect, Body: rec.Body, From: p.source, To: netconfig.ServerSource, By: p.source})
		id := netconfig.ActorID(rec.Body)
		s.enqueue(func(ws *WorldState, _ float64) { ws.SetOwner(id, netconfig.ServerSource) })
	}
	if len(released) > 0 {
		log.Printf("[server] released %d bodies owned by %s", len(released), p.source)
	}
}

func (s *Server) HandleJoin(conn Conn, req messages.JoinRequest) {
	if s.cfg.Version != "" && req.Version != s.cfg.Version {
		reason := fmt.Sprintf("version mismatch: server requires %q, got %q", s.cfg.Version, req.Version)
		log.Printf("[server] rejecting %q: %s", req.Name, reason)
		s.send(conn, messages.JoinRejected{Reason: reason})
		return
	}

	s.mu.Lock()
	p, ok := s.peers[conn]
	if !ok {
		p = &peer{conn: conn}
		s.peers[conn] = p
	}
	if p.joined {
		s.mu.Unlock()
		log.Printf("[server] warning: %s sent a second join request", p.source)
		return
	}
	s.nextPeer++
	p.source = netconfig.SourceID(fmt.Sprintf("peer-%d", s.nextPeer))
	p.name = req.Name
	p.joined = true
	s.mu.Unlock()

	log.Printf("[server] %q joined as %s", req.Name, p.source)
	s.send(conn, messages.JoinAccepted{Source: p.source, ServerName: s.cfg.Name, TickRate: s.tickRate})

	// Late joiners learn every body and its current owner.
	for _, rec := range s.registry.Records() {
		s.send(conn, messages.BodySpawned{
			Body:        rec.Body,
			Source:      rec.Owner,
			IsKinematic: rec.Kinematic,
			Transform:   rec.Transform,
		})
		if rec.Keyframed {
			s.send(conn, messages.SetKeyframed{Body: rec.Body, Keyframed: true})
		}
	}
}

func (s *Server) HandleSnapshot(conn Conn, snap messages.Snapshot) {
	src, ok := s.sourceOf(conn)
	if !ok {
		return
	}
	if snap.Source != src {
		if snap.Source != "" {
			log.Printf("[server] warning: %s stamped snapshot as %s, overriding", src, snap.Source)
		}
		snap.Source = src
	}
	s.record(func(w *recorder.Writer) error { return w.RecordSnapshot(src, snap) })
	s.broadcast(snap, conn)
}

// HandleOwnership arbitrates a transfer. A peer may claim any body for
// itself; handing a body to someone else requires owning it.
func (s *Server) HandleOwnership(conn Conn, msg messages.SetOwnership) {
	src, ok := s.sourceOf(conn)
	if !ok {
		return
	}
	owner, known := s.registry.Get(msg.Body)
	if !known {
		log.Printf("[server] warning: %s requested ownership of unknown body %s", src, msg.Body)
		return
	}
	if msg.Source != src && owner.Owner != src {
		log.Printf("[server] warning: %s cannot hand %s (owned by %s) to %s", src, msg.Body, owner.Owner, msg.Source)
		return
	}
	if msg.Source != netconfig.ServerSource && msg.Source != src && !s.isJoined(msg.Source) {
		log.Printf("[server] warning: %s tried to hand %s to unknown source %s", src, msg.Body, msg.Source)
		return
	}

	prev, err := s.registry.Transfer(msg.Body, msg.Source, msg.IsKinematic)
	if errors.Is(err, ErrSameOwner) {
		return
	}
	if err != nil {
		log.Printf("[server] warning: transfer %s: %v", msg.Body, err)
		return
	}
	log.Printf("[server] %s: %s -> %s", msg.Body, prev, msg.Source)

	s.record(func(w *recorder.Writer) error { return w.RecordOwnership(src, msg) })
	s.audit.Record(AuditEntry{Kind: AuditTransfer, Body: msg.Body, From: prev, To: msg.Source, By: src})
	s.broadcast(msg, nil)
	id, to := netconfig.ActorID(msg.Body), msg.Source
	s.enqueue(func(ws *WorldState, _ float64) {
		ws.SetOwner(id, to)
		ws.SetKeyframed(id, false)
	})
}

func (s *Server) HandleKeyframed(conn Conn, msg messages.SetKeyframed) {
	src, ok := s.sourceOf(conn)
	if !ok {
		return
	}
	rec, known := s.registry.Get(msg.Body)
	if !known || rec.Owner != src {
		log.Printf("[server] warning: %s cannot keyframe %s", src, msg.Body)
		return
	}
	if err := s.registry.SetKeyframed(msg.Body, msg.Keyframed); err != nil {
		return
	}
	s.broadcast(msg, conn)
	id, flag := netconfig.ActorID(msg.Body), msg.Keyframed
	s.enqueue(func(ws *WorldState, _ float64) { ws.SetKeyframed(id, flag) })
}

func (s *Server) HandleSpawn(conn Conn, msg messages.BodySpawned) {
	src, ok := s.sourceOf(conn)
	if !ok {
		return
	}
	if msg.Source == "" {
		msg.Source = src
	}
	if msg.Source != src && msg.Source != netconfig.ServerSource {
		log.Printf("[server] warning: %s cannot spawn %s for %s", src, msg.Body, msg.Source)
		return
	}
	err := s.registry.Spawn(BodyRecord{
		Body:      msg.Body,
		Owner:     msg.Source,
		Kinematic: msg.IsKinematic,
		Transform: msg.Transform,
	})
	if err != nil {
		log.Printf("[server] %s spawn %s: %v", src, msg.Body, err)
		return
	}
	s.audit.Record(AuditEntry{Kind: AuditSpawn, Body: msg.Body, To: msg.Source, By: src})
	s.broadcast(msg, conn)
	id, owner, t := netconfig.ActorID(msg.Body), msg.Source, msg.Transform
	s.enqueue(func(ws *WorldState, now float64) { ws.Place(id, owner, t, now) })
}

func (s *Server) HandleRemove(conn Conn, msg messages.BodyRemoved) {
	src, ok := s.sourceOf(conn)
	if !ok {
		return
	}
	rec, known := s.registry.Get(msg.Body)
	if !known {
		return
	}
	if rec.Owner != src && rec.Owner != netconfig.ServerSource {
		log.Printf("[server] warning: %s cannot remove %s owned by %s", src, msg.Body, rec.Owner)
		return
	}
	s.registry.Remove(msg.Body)
	s.audit.Record(AuditEntry{Kind: AuditRemove, Body: msg.Body, From: rec.Owner, By: src})
	s.broadcast(msg, conn)
	id := netconfig.ActorID(msg.Body)
	s.enqueue(func(ws *WorldState, _ float64) { ws.Remove(id) })
}

func (s *Server) HandleActorUpdate(conn Conn, msg messages.ActorUpdate) {
	src, ok := s.sourceOf(conn)
	if !ok {
		return
	}
	msg.Source = src
	s.broadcast(msg, conn)
}

// HandleUpload keeps the poses of bodies the uploader owns. Actors that are
// not registered bodies are accepted as-is.
func (s *Server) HandleUpload(conn Conn, u messages.ServerTransformUpload) {
	src, ok := s.sourceOf(conn)
	if !ok {
		return
	}
	u.InstanceID = src
	kept := u.Updates[:0:0]
	for _, up := range u.Updates {
		rec, known := s.registry.Get(netconfig.BodyID(up.ActorID))
		if known && rec.Owner != src {
			continue
		}
		if known {
			s.registry.UpdateTransform(rec.Body, transformOf(up))
		}
		kept = append(kept, up)
	}
	if len(kept) == 0 {
		return
	}
	u.Updates = kept
	s.record(func(w *recorder.Writer) error { return w.RecordUpload(src, u) })
	s.enqueue(func(ws *WorldState, now float64) { ws.ApplyUpload(u, now) })
}

// ProcessCommands applies queued world mutations. Called by the game loop.
func (s *Server) ProcessCommands() {
	s.cmdMu.Lock()
	cmds := s.pending
	s.pending = nil
	s.cmdMu.Unlock()

	for _, cmd := range cmds {
		cmd(s.world, s.uptime)
	}
}

// Tick advances the server by dt seconds.
func (s *Server) Tick(dt float64) {
	s.ProcessCommands()
	s.uptime += dt

	s.world.UpdateSummary(netcomponents.NetWorldStateData{
		ServerName: s.cfg.Name,
		Peers:      s.PeerCount(),
		Bodies:     s.registry.Len(),
		Uptime:     s.uptime,
		Owners:     s.registry.Owners(),
	})

	if s.store != nil && s.cfg.PersistInterval > 0 {
		s.sinceSave += dt
		if s.sinceSave >= s.cfg.PersistInterval.Seconds() {
			s.sinceSave = 0
			s.Persist()
		}
	}
}

// Persist writes the current world through the store.
func (s *Server) Persist() {
	if s.store == nil {
		return
	}
	if err := SaveWorld(s.store, CaptureWorld(s.registry, s.world, s.uptime)); err != nil {
		log.Printf("[server] warning: %v", err)
	}
}

func (s *Server) Registry() *Registry { return s.registry }

func (s *Server) World() *WorldState { return s.world }

func (s *Server) Uptime() float64 { return s.uptime }

// BodyCount returns the number of registered bodies.
func (s *Server) BodyCount() int { return s.registry.Len() }

// PeerCount returns the number of joined peers.
func (s *Server) PeerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.peers {
		if p.joined {
			n++
		}
	}
	return n
}

func (s *Server) sourceOf(conn Conn) (netconfig.SourceID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[conn]
	if !ok || !p.joined {
		return "", false
	}
	return p.source, true
}

func (s *Server) isJoined(src netconfig.SourceID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.peers {
		if p.joined && p.source == src {
			return true
		}
	}
	return false
}

// broadcast sends msg to every joined peer except skip.
func (s *Server) broadcast(msg any, skip Conn) {
	s.mu.RLock()
	targets := make([]Conn, 0, len(s.peers))
	for conn, p := range s.peers {
		if p.joined && conn != skip {
			targets = append(targets, conn)
		}
	}
	s.mu.RUnlock()

	for _, conn := range targets {
		s.send(conn, msg)
	}
}

func (s *Server) send(conn Conn, msg any) {
	if err := conn.SendMessage(msg); err != nil {
		log.Printf("[server] warning: send %T: %v", msg, err)
	}
}

func (s *Server) enqueue(cmd worldCommand) {
	s.cmdMu.Lock()
	s.pending = append(s.pending, cmd)
	s.cmdMu.Unlock()
}

func (s *Server) record(fn func(w *recorder.Writer) error) {
	if s.rec == nil {
		return
	}
	if err := fn(s.rec); err != nil {
		log.Printf("[server] recorder: %v", err)
	}
}
