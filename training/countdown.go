package training

import (
	"sync"
	"time"

	"github.com/dgnsrekt/kaiwa/internal/clock"
)

// Countdown ticks once a second from a starting value down to zero.
type Countdown struct {
	clock clock.Clock

	mu       sync.Mutex
	seconds  int
	left     int
	active   bool
	expired  bool
	gen      uint64
	timer    clock.Timer
	onTick   func(left int)
	onExpire func()
}

// NewCountdown creates a stopped countdown of seconds.
func NewCountdown(clk clock.Clock, seconds int) *Countdown {
	if clk == nil {
		clk = clock.Real()
	}
	return &Countdown{clock: clk, seconds: seconds, left: seconds}
}

// OnTick registers a callback fired after every decrement, including the
// final one to zero.
func (c *Countdown) OnTick(fn func(left int)) { c.mu.Lock(); c.onTick = fn; c.mu.Unlock() }

// OnExpire registers a callback fired when the countdown reaches zero.
func (c *Countdown) OnExpire(fn func()) { c.mu.Lock(); c.onExpire = fn; c.mu.Unlock() }

// Start restarts the countdown from its full duration.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.left = c.seconds
	c.expired = false
	if c.seconds <= 0 {
		return
	}
	c.active = true
	gen := c.gen
	c.timer = c.clock.AfterFunc(time.Second, func() { c.tick(gen) })
}

// Stop halts the countdown, keeping the time left.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Reset stops the countdown and sets a new duration.
func (c *Countdown) Reset(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.seconds = seconds
	c.left = seconds
	c.expired = false
}

// Left returns the whole seconds remaining.
func (c *Countdown) Left() int { c.mu.Lock(); defer c.mu.Unlock(); return c.left }

// Active reports whether the countdown is running.
func (c *Countdown) Active() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.active }

// Expired reports whether the countdown ran out since the last Start.
func (c *Countdown) Expired() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.expired }

func (c *Countdown) stopLocked() {
	c.gen++
	c.active = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Countdown) tick(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.active {
		c.mu.Unlock()
		return
	}
	c.left--
	left := c.left
	onTick := c.onTick
	var onExpire func()
	if left <= 0 {
		c.left = 0
		left = 0
		c.active = false
		c.expired = true
		c.timer = nil
		onExpire = c.onExpire
	} else {
		c.timer = c.clock.AfterFunc(time.Second, func() { c.tick(gen) })
	}
	c.mu.Unlock()

	if onTick != nil {
		onTick(left)
	}
	if onExpire != nil {
		onExpire()
	}
}
