package network

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/automoto/bodysync/jitter"
	"github.com/automoto/bodysync/recorder"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/coder/websocket"
	"github.com/leap-fish/necs/esync"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
)

type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateJoined
	StateError
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("ClientState(%d)", int(s))
}

// Client manages a peer's WebSocket connection to the relay server.
// Inbound snapshots go straight into the jitter buffer; ownership and
// lifecycle messages are queued for the physics loop to drain, so router
// goroutines never touch the bridge arena.
// All shared fields are protected by mu (router callbacks run on necs goroutines).
type Client struct {
	mu sync.RWMutex

	state      ClientState
	lastError  error
	source     netconfig.SourceID
	serverName string
	tickRate   int
	conn       *websocket.Conn

	buffer *jitter.Buffer
	rec    *recorder.Writer

	worldCh chan esync.WorldSnapshot // size-1 buffered; latest wins

	ownershipCh chan messages.SetOwnership
	keyframeCh  chan messages.SetKeyframed
	spawnCh     chan messages.BodySpawned
	removeCh    chan messages.BodyRemoved
	actorCh     chan messages.ActorUpdate
}

// NewClient returns a client feeding inbound snapshots into buffer.
func NewClient(buffer *jitter.Buffer) *Client {
	return &Client{
		state:       StateDisconnected,
		buffer:      buffer,
		worldCh:     make(chan esync.WorldSnapshot, 1),
		ownershipCh: make(chan messages.SetOwnership, 64),
		keyframeCh:  make(chan messages.SetKeyframed, 64),
		spawnCh:     make(chan messages.BodySpawned, 64),
		removeCh:    make(chan messages.BodyRemoved, 64),
		actorCh:     make(chan messages.ActorUpdate, 256),
	}
}

// SetRecorder journals every inbound snapshot and ownership change.
func (c *Client) SetRecorder(w *recorder.Writer) {
	c.mu.Lock()
	c.rec = w
	c.mu.Unlock()
}

// Connect dials the server in a background goroutine and initiates the join handshake.
func (c *Client) Connect(address, version, name string) {
	c.mu.Lock()
	c.state = StateConnecting
	c.lastError = nil
	c.mu.Unlock()

	router.OnConnect(func(_ *router.NetworkClient) {
		log.Println("[client] connected to server")
		c.mu.Lock()
		c.state = StateConnected
		c.mu.Unlock()

		if err := c.SendMessage(messages.JoinRequest{Version: version, Name: name}); err != nil {
			c.setError(fmt.Errorf("failed to send join request: %w", err))
		}
	})

	router.On(func(_ *router.NetworkClient, msg messages.JoinAccepted) {
		log.Printf("[client] join accepted: source=%s server=%s tickRate=%d",
			msg.Source, msg.ServerName, msg.TickRate)
		c.mu.Lock()
		c.source = msg.Source
		c.serverName = msg.ServerName
		c.tickRate = msg.TickRate
		c.state = StateJoined
		c.mu.Unlock()
	})

	router.On(func(_ *router.NetworkClient, msg messages.JoinRejected) {
		log.Printf("[client] join rejected: %s", msg.Reason)
		c.setError(fmt.Errorf("join rejected: %s", msg.Reason))
	})

	router.On(func(_ *router.NetworkClient, snap messages.Snapshot) {
		c.HandleSnapshot(snap)
	})

	router.On(func(_ *router.NetworkClient, msg messages.SetOwnership) {
		c.record(func(w *recorder.Writer) error { return w.RecordOwnership(netconfig.ServerSource, msg) })
		push(c.ownershipCh, msg, "ownership")
	})

	router.On(func(_ *router.NetworkClient, msg messages.SetKeyframed) {
		push(c.keyframeCh, msg, "keyframe")
	})

	router.On(func(_ *router.NetworkClient, msg messages.BodySpawned) {
		push(c.spawnCh, msg, "spawn")
	})

	router.On(func(_ *router.NetworkClient, msg messages.BodyRemoved) {
		push(c.removeCh, msg, "remove")
	})

	router.On(func(_ *router.NetworkClient, msg messages.ActorUpdate) {
		push(c.actorCh, msg, "actor update")
	})

	router.On(func(_ *router.NetworkClient, snapshot esync.WorldSnapshot) {
		select { // drain stale, push latest
		case <-c.worldCh:
		default:
		}
		c.worldCh <- snapshot
	})

	router.OnDisconnect(func(_ *router.NetworkClient, err error) {
		log.Printf("[client] disconnected: %v", err)
		c.mu.Lock()
		if c.state != StateError {
			c.state = StateDisconnected
		}
		c.conn = nil
		c.mu.Unlock()
	})

	router.OnError(func(_ *router.NetworkClient, err error) {
		log.Printf("[client] error: %v", err)
	})

	go func() {
		transport := transports.NewWsClientTransport("ws://" + address)
		err := transport.Start(func(conn *websocket.Conn) {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
		})
		if err != nil {
			c.setError(fmt.Errorf("connection failed: %w", err))
		}
	}()
}

// HandleSnapshot feeds one inbound snapshot into the jitter buffer. Our own
// snapshots echoed back by the server are ignored.
func (c *Client) HandleSnapshot(snap messages.Snapshot) {
	if src := c.Source(); src != "" && snap.Source == src {
		return
	}
	c.record(func(w *recorder.Writer) error { return w.RecordSnapshot(snap.Source, snap) })
	c.buffer.AddSnapshot(snap.Source, snap)
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.state = StateDisconnected
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.CloseNow()
	}

	router.ResetRouter()
}

func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// Source is the identity assigned by the server, empty until joined.
func (c *Client) Source() netconfig.SourceID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source
}

func (c *Client) ServerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverName
}

func (c *Client) TickRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tickRate
}

// LatestWorld returns the most recent server world-state snapshot, or nil. Non-blocking.
func (c *Client) LatestWorld() *esync.WorldSnapshot {
	select {
	case snap := <-c.worldCh:
		return &snap
	default:
		return nil
	}
}

func (c *Client) SendMessage(msg any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	payload, err := router.Serialize(msg)
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}

	return conn.Write(context.Background(), websocket.MessageBinary, payload)
}

func (c *Client) SendSnapshot(s messages.Snapshot) error {
	return c.SendMessage(s)
}

func (c *Client) SendUpload(u messages.ServerTransformUpload) error {
	return c.SendMessage(u)
}

// RequestOwnership asks the server to hand body to this peer.
func (c *Client) RequestOwnership(body netconfig.BodyID, isKinematic bool) error {
	return c.SendMessage(messages.SetOwnership{Body: body, Source: c.Source(), IsKinematic: isKinematic})
}

// ReleaseOwnership hands body to another source, usually the server.
func (c *Client) ReleaseOwnership(body netconfig.BodyID, to netconfig.SourceID, isKinematic bool) error {
	return c.SendMessage(messages.SetOwnership{Body: body, Source: to, IsKinematic: isKinematic})
}

func (c *Client) SendKeyframed(body netconfig.BodyID, keyframed bool) error {
	return c.SendMessage(messages.SetKeyframed{Body: body, Keyframed: keyframed})
}

func (c *Client) SendSpawn(msg messages.BodySpawned) error {
	return c.SendMessage(msg)
}

func (c *Client) SendActorUpdate(u messages.ActorUpdate) error {
	return c.SendMessage(u)
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastError = err
	c.mu.Unlock()
}

func (c *Client) record(fn func(w *recorder.Writer) error) {
	c.mu.RLock()
	w := c.rec
	c.mu.RUnlock()
	if w == nil {
		return
	}
	if err := fn(w); err != nil {
		log.Printf("[client] recorder: %v", err)
	}
}

// DrainOwnership returns all pending ownership changes, non-blocking.
func (c *Client) DrainOwnership() []messages.SetOwnership {
	return drainChan(c.ownershipCh)
}

// DrainKeyframes returns all pending keyframe toggles, non-blocking.
func (c *Client) DrainKeyframes() []messages.SetKeyframed {
	return drainChan(c.keyframeCh)
}

// DrainSpawns returns all pending body announcements, non-blocking.
func (c *Client) DrainSpawns() []messages.BodySpawned {
	return drainChan(c.spawnCh)
}

// DrainRemovals returns all pending body removals, non-blocking.
func (c *Client) DrainRemovals() []messages.BodyRemoved {
	return drainChan(c.removeCh)
}

// DrainActorUpdates returns all pending actor patches, non-blocking.
func (c *Client) DrainActorUpdates() []messages.ActorUpdate {
	return drainChan(c.actorCh)
}

// push enqueues without blocking the router goroutine. Lifecycle messages
// must not be lost silently, so overflow is logged.
func push[T any](ch chan T, v T, what string) {
	select {
	case ch <- v:
	default:
		log.Printf("[client] warning: %s queue full, dropping message", what)
	}
}

func drainChan[T any](ch chan T) []T {
	var out []T
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}
