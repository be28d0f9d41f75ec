// Package slot provides the engine's time source: a counter that starts at
// zero at a fixed genesis time and advances once per slot duration. Deadlines
// are slot numbers, never wall-clock timestamps. Every process configured with
// the same genesis and duration reports the same slot, so stored deadlines
// keep their meaning across restarts and replicas.
package slot

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Source reports the current slot.
type Source interface {
	Current() uint64
}

// Clock derives slots from elapsed time on a quartz clock. It never reports
// a smaller slot than it has already reported, even if the underlying clock
// steps backwards.
type Clock struct {
	clock    quartz.Clock
	genesis  time.Time
	duration time.Duration

	mu   sync.Mutex
	last uint64
}

// NewClock counts slots elapsed since genesis. Before genesis the slot is 0.
// A non-positive duration falls back to one second.
func NewClock(clock quartz.Clock, genesis time.Time, duration time.Duration) *Clock {
	if duration <= 0 {
		duration = time.Second
	}
	return &Clock{
		clock:    clock,
		genesis:  genesis,
		duration: duration,
	}
}

// Current returns the number of whole slots elapsed since genesis.
func (c *Clock) Current() uint64 {
	elapsed := c.clock.Now().Sub(c.genesis)

	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed > 0 {
		if s := uint64(elapsed / c.duration); s > c.last {
			c.last = s
		}
	}
	return c.last
}

// Fixed is a Source pinned to a settable slot, for tests and replays.
type Fixed struct {
	mu  sync.Mutex
	now uint64
}

// NewFixed returns a Source at slot n.
func NewFixed(n uint64) *Fixed {
	return &Fixed{now: n}
}

func (f *Fixed) Current() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the source to slot n. Moving backwards is ignored.
func (f *Fixed) Set(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n > f.now {
		f.now = n
	}
}

// Advance moves the source forward by n slots.
func (f *Fixed) Advance(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += n
}
