package api

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// MonotonicClock never reports an instant earlier than one it already
// returned, even if the wall clock is stepped backwards.
type MonotonicClock struct {
	mu   sync.Mutex
	base Clock
	last time.Time
}

func NewMonotonicClock(base Clock) *MonotonicClock {
	if base == nil {
		base = RealClock{}
	}
	return &MonotonicClock{base: base}
}

func (c *MonotonicClock) Now() time.Time {
	now := c.base.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Before(c.last) {
		return c.last
	}
	c.last = now
	return now
}
