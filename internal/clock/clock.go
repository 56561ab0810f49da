// Package clock abstracts the time source used by the round lifecycle.
//
// Production wiring passes Real(); tests pass the fake clock from
// internal/testfixtures so phase decisions and driver ticks are
// reproducible.
package clock

import "time"

// Clock supplies the current instant and periodic tickers.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if
	// d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. The C channel has capacity 1; ticks are
// dropped when the consumer falls behind.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// NewTicker builds a Ticker from a channel and a stop function. Fake clock
// implementations outside this package use it to satisfy Clock.
func NewTicker(c <-chan time.Time, stop func()) *Ticker {
	if stop == nil {
		stop = func() {}
	}
	return &Ticker{C: c, stopFunc: stop}
}

// Stop turns off the ticker. It does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}

// Func adapts a Clock to the `func() time.Time` shape the services accept.
func Func(c Clock) func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}
