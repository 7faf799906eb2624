// ABOUTME: Poll interval ladder with empty-poll counting
// ABOUTME: Pure state; the engine decides when to read and reset it

package msgsync

import "time"

// DefaultLadder is the poll cadence used when none is configured.
var DefaultLadder = []time.Duration{
	3 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// Backoff tracks consecutive empty polls and maps them to an interval.
// After N empty polls the interval is ladder[min(N-1, len-1)], and ladder[0]
// when N is 0. Not safe for concurrent use.
type Backoff struct {
	ladder  []time.Duration
	maxIdle int

	empty   int
	slowest int // empty polls that ran at the slowest interval
}

// NewBackoff creates a backoff over ladder. maxIdle is the number of empty
// polls at the slowest step after which RecordEmpty reports idle; 0 means
// never idle.
func NewBackoff(ladder []time.Duration, maxIdle int) *Backoff {
	if len(ladder) == 0 {
		ladder = DefaultLadder
	}
	return &Backoff{ladder: ladder, maxIdle: maxIdle}
}

// Interval returns the delay before the next poll.
func (b *Backoff) Interval() time.Duration {
	return b.ladder[b.index()]
}

// EmptyPolls returns the consecutive empty poll count.
func (b *Backoff) EmptyPolls() int { return b.empty }

// RecordEmpty notes a poll that found nothing new and reports whether
// polling should stop.
func (b *Backoff) RecordEmpty() (idle bool) {
	if b.index() == len(b.ladder)-1 {
		b.slowest++
	}
	b.empty++
	return b.maxIdle > 0 && b.slowest >= b.maxIdle
}

// Reset returns to the fastest interval.
func (b *Backoff) Reset() {
	b.empty = 0
	b.slowest = 0
}

func (b *Backoff) index() int {
	if b.empty == 0 {
		return 0
	}
	return min(b.empty-1, len(b.ladder)-1)
}
