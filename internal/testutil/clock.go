package testutil

import (
	"sync"
	"time"
)

// FakeClock provides a thread-safe, manually advanced wall clock for tests.
//
// Unlike time.Now, FakeClock only moves when Advance or Set is called, so
// cache timestamps and remote last-modified values are reproducible.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time. Its signature matches time.Now so it
// can be passed wherever a func() time.Time is expected.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Tick returns the current time and then advances by step. Useful when each
// call must observe a strictly later time.
func (c *FakeClock) Tick(step time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(step)
	return now
}
