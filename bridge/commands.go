package bridge

import (
	"sync"

	"github.com/automoto/bodysync/physics"
	"github.com/automoto/bodysync/shared/netconfig"
)

// Command is a deferred bridge mutation. Network handlers submit commands
// instead of touching the arena; FixedUpdate applies them in order.
type Command interface {
	apply(b *Bridge) error
}

type AddBodyCommand struct {
	ID          netconfig.BodyID
	Source      netconfig.SourceID
	IsKinematic bool
	Body        physics.Body
}

func (c AddBodyCommand) apply(b *Bridge) error {
	return b.AddBody(c.ID, c.Source, c.IsKinematic, c.Body)
}

type RemoveBodyCommand struct {
	ID netconfig.BodyID
}

func (c RemoveBodyCommand) apply(b *Bridge) error {
	return b.RemoveBody(c.ID)
}

type TransferCommand struct {
	ID          netconfig.BodyID
	NewSource   netconfig.SourceID
	IsKinematic bool
}

func (c TransferCommand) apply(b *Bridge) error {
	return b.TransferOwnership(c.ID, c.NewSource, c.IsKinematic)
}

type KeyframeCommand struct {
	ID        netconfig.BodyID
	Keyframed bool
}

func (c KeyframeCommand) apply(b *Bridge) error {
	return b.SetKeyframed(c.ID, c.Keyframed)
}

// commandQueue is a fixed-size FIFO ring. It is safe for concurrent
// producers and a single consumer.
type commandQueue struct {
	mu    sync.Mutex
	data  []Command
	head  int
	tail  int
	count int
}

func newCommandQueue(capacity int) *commandQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &commandQueue{data: make([]Command, capacity)}
}

// push stages a command, returning false if the queue is full.
func (q *commandQueue) push(cmd Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == len(q.data) {
		return false
	}
	q.data[q.tail] = cmd
	q.tail = (q.tail + 1) % len(q.data)
	q.count++
	return true
}

// drain returns all staged commands in FIFO order and clears the queue.
func (q *commandQueue) drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil
	}
	cmds := make([]Command, q.count)
	for i := 0; i < q.count; i++ {
		idx := (q.head + i) % len(q.data)
		cmds[i] = q.data[idx]
		q.data[idx] = nil
	}
	q.head = 0
	q.tail = 0
	q.count = 0
	return cmds
}

func (q *commandQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
