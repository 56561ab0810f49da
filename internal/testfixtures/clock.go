package testfixtures

import (
	"sync"
	"time"

	"github.com/example/networking-rounds/internal/clock"
)

// Clock provides a controllable time source for tests. It satisfies
// clock.Clock; tickers it hands out fire when Set or Advance moves time past
// their next deadline.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	c       chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

var _ clock.Clock = (*Clock)(nil)

// NewClock starts a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now implements clock.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc returns Now as a plain func; a nil clock falls back to wall time.
func (c *Clock) NowFunc() func() time.Time {
	if c != nil {
		return c.Now
	}
	return time.Now
}

// NewTicker returns a ticker driven by Set and Advance.
func (c *Clock) NewTicker(d time.Duration) *clock.Ticker {
	if d <= 0 {
		panic("testfixtures: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ticker := &fakeTicker{c: make(chan time.Time, 1), period: d, next: c.current.Add(d)}
	c.tickers = append(c.tickers, ticker)
	return clock.NewTicker(ticker.c, func() {
		c.mu.Lock()
		ticker.stopped = true
		c.mu.Unlock()
	})
}

// Tickers reports how many live tickers the clock has handed out.
func (c *Clock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	live := 0
	for _, ticker := range c.tickers {
		if !ticker.stopped {
			live++
		}
	}
	return live
}

// Set jumps to t, firing every ticker deadline passed on the way.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
	c.fireLocked()
}

// Advance moves forward by d and reports the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	c.fireLocked()
	return c.current
}

// Current is Now, spelled for assertions.
func (c *Clock) Current() time.Time { return c.Now() }

// fireLocked delivers due ticks. Like time.Ticker, a tick is dropped when the
// previous one has not been received.
func (c *Clock) fireLocked() {
	for _, ticker := range c.tickers {
		if ticker.stopped {
			continue
		}
		for !ticker.next.After(c.current) {
			select {
			case ticker.c <- ticker.next:
			default:
			}
			ticker.next = ticker.next.Add(ticker.period)
		}
	}
}
