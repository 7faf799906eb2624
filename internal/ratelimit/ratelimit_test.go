// ABOUTME: Tests for the sliding-window send limiter
// ABOUTME: Covers the 11th-send denial, window expiry, and retry hints

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestLimiter_EleventhDeniedRegardlessOfSpacing(t *testing.T) {
	spacings := map[string]func(i int) time.Duration{
		"burst":   func(int) time.Duration { return 0 },
		"even":    func(i int) time.Duration { return time.Duration(i) * 5 * time.Second },
		"clumped": func(i int) time.Duration { return time.Duration(i*i) * 500 * time.Millisecond },
	}

	for name, offset := range spacings {
		t.Run(name, func(t *testing.T) {
			l := New(time.Minute, 10)
			for i := 0; i < 10; i++ {
				assert.True(t, l.TryAccept(base.Add(offset(i))), "send %d should be accepted", i+1)
			}
			// 11th still inside the window opened by the first send
			assert.False(t, l.TryAccept(base.Add(59*time.Second)))
		})
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	l := New(time.Minute, 2)

	assert.True(t, l.TryAccept(base))
	assert.True(t, l.TryAccept(base.Add(30*time.Second)))
	assert.False(t, l.TryAccept(base.Add(45*time.Second)))

	// first send leaves the window exactly at +60s
	assert.True(t, l.TryAccept(base.Add(60*time.Second)))
	assert.False(t, l.TryAccept(base.Add(61*time.Second)))
	assert.True(t, l.TryAccept(base.Add(91*time.Second)))
}

func TestLimiter_DeniedNotRecorded(t *testing.T) {
	l := New(time.Minute, 1)

	assert.True(t, l.TryAccept(base))
	for i := 1; i <= 5; i++ {
		assert.False(t, l.TryAccept(base.Add(time.Duration(i)*time.Second)))
	}
	// denials did not extend the window
	assert.True(t, l.TryAccept(base.Add(time.Minute+time.Millisecond)))
}

func TestLimiter_RemainingAndRetryAfter(t *testing.T) {
	l := New(time.Minute, 3)

	assert.Equal(t, 3, l.Remaining(base))
	assert.Zero(t, l.RetryAfter(base))

	l.TryAccept(base)
	l.TryAccept(base.Add(10 * time.Second))
	l.TryAccept(base.Add(20 * time.Second))

	assert.Equal(t, 0, l.Remaining(base.Add(30*time.Second)))
	assert.Equal(t, 30*time.Second, l.RetryAfter(base.Add(30*time.Second)))
	assert.Equal(t, 1, l.Remaining(base.Add(61*time.Second)))
}
