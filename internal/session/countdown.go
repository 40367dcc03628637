// internal/session/countdown.go
package session

import (
	"sync"
	"time"
)

// Countdown derives the remaining battle time from a fixed server start
// epoch plus a duration, so a resumed session shows correct elapsed time
// regardless of local restarts. It ticks once per second, floors at zero
// and stops itself there; hitting zero only freezes the displayed value,
// match termination is the backend's call.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	running   bool
	stop      chan struct{}

	onTick   func(remaining int)
	interval time.Duration
}

// NewCountdown creates a stopped countdown. onTick may be nil; when set it
// is invoked once per tick (including the final zero) from the countdown's
// own goroutine.
func NewCountdown(onTick func(remaining int)) *Countdown {
	return &Countdown{onTick: onTick, interval: time.Second}
}

// Start computes remaining = max(0, timeLimit - (now - start)) at call time
// and begins ticking. Any previous run is stopped first, so a session never
// has two live tickers.
func (c *Countdown) Start(timeLimitSec int, startEpochSec int64) {
	c.Stop()

	elapsed := time.Now().Unix() - startEpochSec
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := timeLimitSec - int(elapsed)
	if remaining < 0 {
		remaining = 0
	}

	c.mu.Lock()
	c.remaining = remaining
	if remaining == 0 {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.stop = stop
	c.running = true
	c.mu.Unlock()

	go c.run(stop)
}

func (c *Countdown) run(stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if !c.running || c.stop != stop {
				c.mu.Unlock()
				return
			}
			c.remaining--
			rem := c.remaining
			done := rem <= 0
			if done {
				c.remaining = 0
				rem = 0
				c.running = false
				c.stop = nil
			}
			onTick := c.onTick
			c.mu.Unlock()

			if onTick != nil {
				onTick(rem)
			}
			if done {
				return
			}
		}
	}
}

// Stop halts ticking. Idempotent and safe to call when not running.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.running = false
}

// Remaining returns the current displayed value in seconds.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Running reports whether the countdown is actively ticking.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
