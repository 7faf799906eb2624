// ABOUTME: Tests for the poll backoff ladder and idle detection
// ABOUTME: Pure table tests, no timers

package msgsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_IntervalFollowsLadder(t *testing.T) {
	ladder := []time.Duration{3 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second, 60 * time.Second}
	b := NewBackoff(ladder, 0)

	assert.Equal(t, ladder[0], b.Interval())
	for n := 1; n <= 12; n++ {
		b.RecordEmpty()
		want := ladder[min(n-1, len(ladder)-1)]
		assert.Equal(t, want, b.Interval(), "after %d empty polls", n)
		assert.Equal(t, n, b.EmptyPolls())
	}
}

func TestBackoff_ResetReturnsToFastest(t *testing.T) {
	b := NewBackoff(nil, 0)
	for range 7 {
		b.RecordEmpty()
	}
	assert.Equal(t, DefaultLadder[len(DefaultLadder)-1], b.Interval())

	b.Reset()
	assert.Equal(t, DefaultLadder[0], b.Interval())
	assert.Equal(t, 0, b.EmptyPolls())
}

func TestBackoff_IdleAfterMaxPollsAtSlowest(t *testing.T) {
	ladder := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	b := NewBackoff(ladder, 4)

	// Polls 1..3 run at 1s, 1s, 2s; polls 4..7 run at 3s.
	polls := 0
	for {
		polls++
		if b.RecordEmpty() {
			break
		}
		if polls > 100 {
			t.Fatal("never went idle")
		}
	}
	assert.Equal(t, 7, polls)
}

func TestBackoff_ResetClearsIdleProgress(t *testing.T) {
	b := NewBackoff([]time.Duration{time.Second}, 2)

	assert.False(t, b.RecordEmpty())
	b.Reset()
	assert.False(t, b.RecordEmpty())
	assert.True(t, b.RecordEmpty())
}

func TestBackoff_ZeroMaxIdleNeverStops(t *testing.T) {
	b := NewBackoff([]time.Duration{time.Second}, 0)
	for range 50 {
		assert.False(t, b.RecordEmpty())
	}
}
