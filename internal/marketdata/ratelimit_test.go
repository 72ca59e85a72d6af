package marketdata

import (
	"testing"
	"time"
)

func TestWindowLimiter_FullWindowRefuses(t *testing.T) {
	l := newWindowLimiter(time.Minute, 3, 0)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if _, ok := l.Acquire(now); !ok {
			t.Fatalf("request %d should fit in the window", i)
		}
	}
	if _, ok := l.Acquire(now); ok {
		t.Error("fourth request must be refused, window holds 3")
	}
}

func TestWindowLimiter_OldStampsExpire(t *testing.T) {
	l := newWindowLimiter(time.Minute, 2, 0)
	start := time.Now()

	l.Acquire(start)
	l.Acquire(start)
	if _, ok := l.Acquire(start); ok {
		t.Fatal("window should be full")
	}

	// After the window rolls past the first stamps, capacity returns.
	later := start.Add(61 * time.Second)
	if _, ok := l.Acquire(later); !ok {
		t.Error("expired stamps must free window capacity")
	}
	if got := l.Usage(later); got != 1 {
		t.Errorf("expected 1 live stamp, got %d", got)
	}
}

func TestWindowLimiter_MinDelayBetweenRequests(t *testing.T) {
	l := newWindowLimiter(time.Minute, 10, 200*time.Millisecond)
	now := time.Now()

	if delay, _ := l.Acquire(now); delay != 0 {
		t.Errorf("first request needs no delay, got %v", delay)
	}
	delay, ok := l.Acquire(now)
	if !ok {
		t.Fatal("second request should be admitted")
	}
	if delay != 200*time.Millisecond {
		t.Errorf("expected 200ms spacing delay, got %v", delay)
	}

	// A request arriving after the spacing has already passed pays nothing.
	if delay, _ := l.Acquire(now.Add(time.Second)); delay != 0 {
		t.Errorf("spaced-out request needs no delay, got %v", delay)
	}
}

func TestWindowLimiter_ResetClearsWindow(t *testing.T) {
	l := newWindowLimiter(time.Minute, 1, 0)
	now := time.Now()

	l.Acquire(now)
	if _, ok := l.Acquire(now); ok {
		t.Fatal("window should be full")
	}

	l.Reset()
	if _, ok := l.Acquire(now); !ok {
		t.Error("reset must free the window for the retry")
	}
}
