package marketdata

import (
	"sync"
	"time"
)

// windowLimiter gates requests to one provider: at most maxRequests within
// a rolling window, plus a minimum inter-request delay once the window has
// any usage. Parallel symbol evaluations share a limiter, so all state is
// guarded by the mutex.
type windowLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	max      int
	minDelay time.Duration

	stamps []time.Time
	last   time.Time
}

func newWindowLimiter(window time.Duration, max int, minDelay time.Duration) *windowLimiter {
	return &windowLimiter{window: window, max: max, minDelay: minDelay}
}

// Acquire reserves one request slot. It returns false when the rolling
// window is full; otherwise it records the request and returns the delay
// the caller must sleep before issuing it (zero when the window was empty
// or enough time has already passed).
func (l *windowLimiter) Acquire(now time.Time) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(now)
	if len(l.stamps) >= l.max {
		return 0, false
	}

	var delay time.Duration
	if len(l.stamps) > 0 {
		if since := now.Sub(l.last); since < l.minDelay {
			delay = l.minDelay - since
		}
	}

	l.stamps = append(l.stamps, now)
	l.last = now.Add(delay)
	return delay, true
}

// Reset forcibly clears the window. Called once when the provider itself
// reports a rate limit, so a single retry can go through.
func (l *windowLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamps = l.stamps[:0]
	l.last = time.Time{}
}

// Usage returns how many requests sit in the current window.
func (l *windowLimiter) Usage(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)
	return len(l.stamps)
}

func (l *windowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && l.stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
