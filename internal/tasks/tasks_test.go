// ABOUTME: Tests for cancellable session tasks
// ABOUTME: Covers one-shot, repeating, variable cadence, cancellation, and shutdown sweeps

package tasks

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/coven-widget/internal/logging"
)

func TestGroup_AfterRunsOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := NewGroup(logging.Discard())
	defer g.Shutdown()

	var n int32
	done := make(chan struct{})
	h := g.After("once", time.Millisecond, func() {
		atomic.AddInt32(&n, 1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&n))
	assert.False(t, h.Active())
	assert.Empty(t, g.Active())
}

func TestGroup_EveryUntilCancel(t *testing.T) {
	g := NewGroup(logging.Discard())
	defer g.Shutdown()

	var n int32
	h := g.Every("tick", time.Millisecond, func() { atomic.AddInt32(&n, 1) })

	require.Eventually(t, func() bool { return atomic.LoadInt32(&n) >= 3 }, time.Second, time.Millisecond)
	h.Cancel()
	h.Cancel()

	stopped := atomic.LoadInt32(&n)
	time.Sleep(20 * time.Millisecond)
	// at most one in-flight tick may land after Cancel
	assert.LessOrEqual(t, atomic.LoadInt32(&n), stopped+1)
	assert.False(t, h.Active())
}

func TestGroup_RepeatVariableCadence(t *testing.T) {
	g := NewGroup(logging.Discard())
	defer g.Shutdown()

	delays := []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}
	var calls int32
	done := make(chan struct{})

	g.Repeat("ladder", time.Millisecond, func() (time.Duration, bool) {
		i := atomic.AddInt32(&calls, 1)
		if int(i) == len(delays) {
			close(done)
			return 0, false
		}
		return delays[i], true
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("repeat did not finish")
	}
	assert.Equal(t, int32(len(delays)), atomic.LoadInt32(&calls))
	assert.Empty(t, g.Active())
}

func TestGroup_CancelFromInsideCallback(t *testing.T) {
	g := NewGroup(logging.Discard())
	defer g.Shutdown()

	var n int32
	var h *Handle
	ready := make(chan struct{})
	h = g.Every("self-cancel", time.Millisecond, func() {
		<-ready
		if atomic.AddInt32(&n, 1) == 2 {
			h.Cancel()
		}
	})
	close(ready)

	require.Eventually(t, func() bool { return !h.Active() }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&n))
}

func TestGroup_ShutdownSweepsEverything(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := NewGroup(logging.Discard())

	var fired int32
	g.After("later", time.Hour, func() { atomic.AddInt32(&fired, 1) })
	g.Every("monitor", time.Hour, func() { atomic.AddInt32(&fired, 1) })
	assert.Len(t, g.Active(), 2)

	g.Shutdown()
	g.Shutdown()

	assert.False(t, g.Alive())
	assert.Empty(t, g.Active())

	// scheduling on a dead group is a no-op
	h := g.After("too-late", time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	assert.False(t, h.Active())
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&fired))
}

func TestGroup_ShutdownWaitsForRunningCallback(t *testing.T) {
	g := NewGroup(logging.Discard())

	started := make(chan struct{})
	var finished int32
	g.After("slow", time.Millisecond, func() {
		close(started)
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
	})

	<-started
	g.Shutdown()
	assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
}

func TestHandle_NilSafe(t *testing.T) {
	var h *Handle
	h.Cancel()
	assert.False(t, h.Active())
}
