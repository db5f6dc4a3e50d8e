// Package clock implements a thread-safe Lamport logical clock.
package clock

import "sync"

// Clock is a Lamport logical clock. The zero value is ready to use.
type Clock struct {
	mu   sync.Mutex
	time int64
}

// New returns a Clock starting at zero.
func New() *Clock {
	return &Clock{}
}

// Tick advances the clock by one local event and returns the new value.
func (c *Clock) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time++
	return c.time
}

// Observe applies the Lamport receive rule: time = max(time, received) + 1.
func (c *Clock) Observe(received int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if received > c.time {
		c.time = received
	}
	c.time++
	return c.time
}

// Read returns the current value without advancing it.
func (c *Clock) Read() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}
