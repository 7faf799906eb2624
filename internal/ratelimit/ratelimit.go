// ABOUTME: Sliding-window limiter gating outbound visitor messages
// ABOUTME: Keeps accepted send timestamps and denies once the window is full

// Package ratelimit implements the per-widget sliding-window send limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter accepts at most max events in any window-long span.
// The zero value is not usable; construct with New.
type Limiter struct {
	mu       sync.Mutex
	window   time.Duration
	max      int
	accepted []time.Time
}

// New returns a limiter allowing max events per window.
func New(window time.Duration, max int) *Limiter {
	return &Limiter{window: window, max: max}
}

// TryAccept records an event at now and reports whether it is allowed.
// Denied events are not recorded.
func (l *Limiter) TryAccept(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accepted = prune(l.accepted, now, l.window)
	if len(l.accepted) >= l.max {
		return false
	}
	l.accepted = append(l.accepted, now)
	return true
}

// Remaining reports how many more events would be accepted at now.
func (l *Limiter) Remaining(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accepted = prune(l.accepted, now, l.window)
	return l.max - len(l.accepted)
}

// RetryAfter reports how long until the oldest accepted event leaves the
// window, or zero when an event would be accepted now.
func (l *Limiter) RetryAfter(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accepted = prune(l.accepted, now, l.window)
	if len(l.accepted) < l.max {
		return 0
	}
	return l.accepted[0].Add(l.window).Sub(now)
}

// prune drops timestamps older than window relative to now. The slice is kept
// in acceptance order, so the survivors are a suffix.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
