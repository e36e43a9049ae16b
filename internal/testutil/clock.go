package testutil

import (
	"sync"

	"github.com/roach88/sysval/internal/dht"
)

// DefaultClockStart is the first instant a DeterministicClock reports.
const DefaultClockStart dht.Timestamp = 1_700_000_000_000_000

// DeterministicClock is a wall clock for tests that advances by a fixed
// step on every reading.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start dht.Timestamp
	step  dht.Timestamp
	now   dht.Timestamp
}

// NewDeterministicClock creates a clock at DefaultClockStart advancing one
// second per reading.
//
// The first call to Now() returns DefaultClockStart + 1s.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultClockStart, 1_000_000)
}

// NewDeterministicClockAt creates a clock at start advancing by step.
func NewDeterministicClockAt(start, step dht.Timestamp) *DeterministicClock {
	return &DeterministicClock{start: start, step: step, now: start}
}

// Now advances the clock and returns the new reading.
func (c *DeterministicClock) Now() dht.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}

// Current returns the last reading without advancing.
func (c *DeterministicClock) Current() dht.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset moves the clock back to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
