// Package device assembles the full stack into one runnable device:
// transport, sessions, handshakes, token processing, authorization,
// resources, and discovery. It also simulates the peripherals of a
// small sensor node.
package device

import (
	"sync"
	"time"
)

// SystemClock is the device's time reference. The device boots with no
// notion of wall time; until a peer sets it, Now reports unset and
// everything that needs time fails closed. Once set, time advances on
// the monotonic clock from the moment of setting.
type SystemClock struct {
	mu    sync.Mutex
	base  time.Time
	setAt time.Time
	set   bool
}

// NewSystemClock returns an unset clock.
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now returns the current wall time. The second return is false while
// the clock has never been set.
func (c *SystemClock) Now() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.set {
		return time.Time{}, false
	}
	return c.base.Add(time.Since(c.setAt)), true
}

// Set installs a wall time reference. Later calls re-anchor the clock.
func (c *SystemClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.base = t
	c.setAt = time.Now()
	c.set = true
}
