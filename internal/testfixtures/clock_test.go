package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2024, time.March, 14, 9, 26, 0, 0, time.UTC)
	clock := NewClock(start)

	updated := clock.Advance(90 * time.Minute)
	if !updated.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("advance returned %v", updated)
	}

	clock.Set(start.Add(2 * time.Hour))
	if got := clock.Current(); !got.Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("expected %v, got %v", start.Add(2*time.Hour), got)
	}
}

func TestClockNowFunc(t *testing.T) {
	clock := NewClock(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	nowFn := clock.NowFunc()

	if got := nowFn(); !got.Equal(clock.Current()) {
		t.Fatalf("expected %v from NowFunc, got %v", clock.Current(), got)
	}

	clock.Advance(time.Minute)
	if got := nowFn(); !got.Equal(clock.Current()) {
		t.Fatalf("expected updated time %v, got %v", clock.Current(), got)
	}
}

func TestClockTickerFiresOnAdvance(t *testing.T) {
	clock := NewClock(time.Time{})
	ticker := clock.NewTicker(time.Minute)

	clock.Advance(30 * time.Second)
	select {
	case tick := <-ticker.C:
		t.Fatalf("unexpected early tick at %v", tick)
	default:
	}

	clock.Advance(30 * time.Second)
	select {
	case tick := <-ticker.C:
		if !tick.Equal(ReferenceTime().Add(time.Minute)) {
			t.Fatalf("unexpected tick time %v", tick)
		}
	default:
		t.Fatalf("expected a tick after one interval")
	}

	// Ticks the consumer misses are dropped rather than queued.
	clock.Advance(5 * time.Minute)
	<-ticker.C
	select {
	case <-ticker.C:
		t.Fatalf("expected missed ticks to be dropped")
	default:
	}

	if clock.Tickers() != 1 {
		t.Fatalf("expected one live ticker")
	}
	ticker.Stop()
	if clock.Tickers() != 0 {
		t.Fatalf("expected stopped ticker to be released")
	}
	clock.Advance(time.Hour)
	select {
	case <-ticker.C:
		t.Fatalf("stopped ticker must not fire")
	default:
	}
}
