package fifo

import (
	"fmt"
	"sync"
	"time"
)

// Clock is the monotonic time source and sleep capability used by every poll loop.
type Clock interface {
	Now() time.Time
	// Sleep blocks for a duration in [lo, hi].
	Sleep(lo, hi time.Duration)
}

// RealClock sleeps on the wall clock.
type RealClock struct{}

// Now returns time.Now, which carries a monotonic reading.
func (RealClock) Now() time.Time { return time.Now() }

// Sleep sleeps for the lower bound of the range.
func (RealClock) Sleep(lo, _ time.Duration) { time.Sleep(lo) }

// VirtualClock is a clock whose time only moves when something sleeps on it.
// Simulated targets use it so that a three second preempt timeout costs
// nothing in wall time.
type VirtualClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

// NewVirtualClock returns a VirtualClock starting at the Unix epoch.
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{now: time.Unix(0, 0)}
}

// Now returns the current virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances virtual time by lo and records the sleep.
func (c *VirtualClock) Sleep(lo, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(lo)
	c.slept = append(c.slept, lo)
}

// Advance moves virtual time forward without recording a sleep.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns a copy of every sleep duration seen so far.
func (c *VirtualClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

// Timeout is a deadline measured on a Clock.
type Timeout struct {
	clock    Clock
	start    time.Time
	duration time.Duration
}

// NewTimeout starts a timeout of duration d. A non-positive duration or a
// missing clock is a configuration error.
func NewTimeout(clock Clock, d time.Duration) (*Timeout, error) {
	if clock == nil {
		return nil, fmt.Errorf("%w: nil clock", ErrTimeoutInit)
	}
	if d <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %v", ErrTimeoutInit, d)
	}
	return &Timeout{clock: clock, start: clock.Now(), duration: d}, nil
}

// Elapsed returns the time since the timeout started.
func (t *Timeout) Elapsed() time.Duration {
	return t.clock.Now().Sub(t.start)
}

// Expired reports whether the deadline has passed.
func (t *Timeout) Expired() bool {
	return t.Elapsed() >= t.duration
}

// Backoff produces the exponentially growing sleep between poll attempts.
type Backoff struct {
	delay time.Duration
	max   time.Duration
}

// NewBackoff returns a Backoff starting at initial and capped at ceiling.
// A ceiling below initial is raised to initial.
func NewBackoff(initial, ceiling time.Duration) *Backoff {
	if ceiling < initial {
		ceiling = initial
	}
	return &Backoff{delay: initial, max: ceiling}
}

// Next returns the delay for the current attempt and doubles it for the next one.
func (b *Backoff) Next() time.Duration {
	d := b.delay
	b.delay = min(b.delay*2, b.max)
	return d
}

// Wait sleeps on clock for the next delay, using the range [d, 2d].
func (b *Backoff) Wait(clock Clock) {
	d := b.Next()
	clock.Sleep(d, 2*d)
}
