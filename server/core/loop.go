package core

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leap-fish/necs/esync/srvsync"
)

// Ticker is advanced once per loop tick with the fixed tick length.
type Ticker interface {
	Tick(dt float64)
}

// TickLoop drives the relay's world state at a fixed rate and pushes the
// resulting esync state to every connected client after each tick.
type TickLoop struct {
	target   Ticker
	tickRate int
	sync     func() error

	ticks    atomic.Uint64
	overruns atomic.Uint64
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewTickLoop(target Ticker, tickRate int) *TickLoop {
	return &TickLoop{
		target:   target,
		tickRate: tickRate,
		sync:     srvsync.DoSync,
		stopChan: make(chan struct{}),
	}
}

// Start runs the loop on its own goroutine.
func (l *TickLoop) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.Run()
	}()
}

// Run blocks until Stop.
func (l *TickLoop) Run() {
	period := time.Second / time.Duration(l.tickRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	log.Printf("[server] loop started at %d ticks/second", l.tickRate)

	for {
		select {
		case <-l.stopChan:
			log.Printf("[server] loop stopped after %d ticks (%d overruns)", l.ticks.Load(), l.overruns.Load())
			return
		case <-ticker.C:
			start := time.Now()
			l.tick()
			if took := time.Since(start); took > period {
				if l.overruns.Add(1)%100 == 1 {
					log.Printf("[server] warning: tick took %s, budget %s", took.Round(time.Microsecond), period)
				}
			}
		}
	}
}

// Stop ends the loop and waits for a tick in progress to finish. Safe to
// call more than once.
func (l *TickLoop) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
}

// Ticks is the number of completed ticks.
func (l *TickLoop) Ticks() uint64 { return l.ticks.Load() }

func (l *TickLoop) tick() {
	l.target.Tick(1 / float64(l.tickRate))
	l.ticks.Add(1)

	if l.sync == nil {
		return
	}
	if err := l.sync(); err != nil {
		log.Printf("[server] sync error: %v", err)
	}
}
