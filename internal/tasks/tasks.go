// ABOUTME: Cancellable timer tasks owned by one widget session
// ABOUTME: Every callback checks the group's liveness before running; Shutdown sweeps them all

// Package tasks provides cancellable one-shot and repeating timers grouped
// under a single owner, so teardown is one deterministic sweep.
package tasks

import (
	"log/slog"
	"sync"
	"time"
)

// Group owns a set of timer tasks. After Shutdown no task callback starts.
type Group struct {
	mu      sync.Mutex
	alive   bool
	nextID  uint64
	handles map[uint64]*Handle
	running sync.WaitGroup
	logger  *slog.Logger
}

// Handle controls one scheduled task.
type Handle struct {
	group *Group
	id    uint64
	name  string

	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
}

// NewGroup creates a live group.
func NewGroup(logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{
		alive:   true,
		handles: make(map[uint64]*Handle),
		logger:  logger.With("component", "tasks"),
	}
}

// After runs fn once after delay.
func (g *Group) After(name string, delay time.Duration, fn func()) *Handle {
	return g.Repeat(name, delay, func() (time.Duration, bool) {
		fn()
		return 0, false
	})
}

// Every runs fn every interval until cancelled.
func (g *Group) Every(name string, interval time.Duration, fn func()) *Handle {
	return g.Repeat(name, interval, func() (time.Duration, bool) {
		fn()
		return interval, true
	})
}

// Repeat runs fn after first, then again after each delay fn returns, until fn
// returns false or the handle is cancelled. Used for variable cadences such as
// the poll backoff ladder.
func (g *Group) Repeat(name string, first time.Duration, fn func() (time.Duration, bool)) *Handle {
	g.mu.Lock()
	g.nextID++
	h := &Handle{group: g, id: g.nextID, name: name}
	if !g.alive {
		h.cancelled = true
		g.mu.Unlock()
		g.logger.Debug("task not scheduled on dead group", "task", name)
		return h
	}
	g.handles[h.id] = h
	g.mu.Unlock()

	var step func()
	step = func() {
		next, again := fn()
		if again {
			h.arm(next, step)
			return
		}
		h.Cancel()
	}
	h.arm(first, step)

	g.logger.Debug("task scheduled", "task", name, "delay", first)
	return h
}

// Alive reports whether the group still runs tasks.
func (g *Group) Alive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.alive
}

// Active returns the names of scheduled tasks.
func (g *Group) Active() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	names := make([]string, 0, len(g.handles))
	for _, h := range g.handles {
		names = append(names, h.name)
	}
	return names
}

// Shutdown cancels every task and waits for callbacks already running to
// return. It must not be called from inside a task callback.
func (g *Group) Shutdown() {
	g.mu.Lock()
	if !g.alive {
		g.mu.Unlock()
		return
	}
	g.alive = false
	handles := g.handles
	g.handles = make(map[uint64]*Handle)
	g.mu.Unlock()

	for _, h := range handles {
		h.stop()
	}
	g.running.Wait()
	g.logger.Debug("all tasks stopped", "count", len(handles))
}

// run invokes fn unless the group is dead or the handle cancelled.
func (g *Group) run(h *Handle, fn func()) {
	g.mu.Lock()
	if !g.alive || h.isCancelled() {
		g.mu.Unlock()
		return
	}
	g.running.Add(1)
	g.mu.Unlock()

	defer g.running.Done()
	fn()
}

func (g *Group) forget(h *Handle) {
	g.mu.Lock()
	delete(g.handles, h.id)
	g.mu.Unlock()
}

// Cancel stops the task. Safe to call more than once and from inside the
// task's own callback.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.stop()
	h.group.forget(h)
}

// Active reports whether the task is still scheduled.
func (h *Handle) Active() bool {
	if h == nil {
		return false
	}
	return !h.isCancelled() && h.group.Alive()
}

// Name returns the task's name.
func (h *Handle) Name() string { return h.name }

func (h *Handle) arm(delay time.Duration, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancelled {
		return
	}
	h.timer = time.AfterFunc(delay, func() { h.group.run(h, fn) })
}

func (h *Handle) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cancelled = true
	if h.timer != nil {
		h.timer.Stop()
	}
}

func (h *Handle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}
