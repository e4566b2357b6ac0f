package testutil

import (
	"sync"
	"time"
)

// Clock is a manual time source for the func() time.Time seams taken by
// memo.Accumulator and session.WithClock. Each reading moves it forward by
// its step, so consecutive timestamps in a run are distinct and ordered.
type Clock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewClock starts a clock at start that advances by step after every reading.
// A zero step freezes it.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{next: start, step: step}
}

// Now returns the current reading.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(c.step)
	return now
}

// Advance jumps the clock forward without taking a reading.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.next = c.next.Add(d)
	c.mu.Unlock()
}
