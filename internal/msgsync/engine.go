// ABOUTME: Poll loop delivering new human and system messages exactly once
// ABOUTME: Gated on open/visible/handoff state; backs off when nothing arrives

package msgsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-widget/internal/backend"
	"github.com/2389/coven-widget/internal/dedupe"
	"github.com/2389/coven-widget/internal/tasks"
)

// Source fetches a conversation's messages.
type Source interface {
	Messages(ctx context.Context, id backend.ID) ([]backend.Message, error)
}

// Handler receives messages the visitor has not seen yet. Calls happen on the
// poll goroutine, in backend order.
type Handler interface {
	HumanMessage(msg backend.Message)
	SystemEvent(ev Event)
}

// Options configures an Engine.
type Options struct {
	Source  Source
	Handler Handler
	Seen    *dedupe.Set
	Tasks   *tasks.Group
	// Gate reports whether polling is allowed right now (widget open, page
	// visible, handoff active). A closed gate skips the tick but keeps the
	// timer.
	Gate         func() bool
	Ladder       []time.Duration
	MaxIdlePolls int
	Logger       *slog.Logger
}

// Result describes one tick.
type Result struct {
	Skipped bool
	Human   int
	System  int
	Idle    bool
	Err     error
}

// Engine polls one conversation at a time.
type Engine struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	convID  backend.ID
	backoff *Backoff
	handle  *tasks.Handle
}

// NewEngine creates an engine. It does nothing until Bind and Resume.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Gate == nil {
		opts.Gate = func() bool { return true }
	}
	if opts.Seen == nil {
		opts.Seen = dedupe.New()
	}
	return &Engine{
		opts:    opts,
		logger:  logger.With("component", "msgsync"),
		backoff: NewBackoff(opts.Ladder, opts.MaxIdlePolls),
	}
}

// Bind switches to conversation id without scheduling a poll. Any running
// poll timer is cancelled.
func (e *Engine) Bind(ctx context.Context, id backend.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx = ctx
	e.convID = id
	e.handle.Cancel()
	e.handle = nil
}

// Resume restarts polling at the fastest interval with a zero empty count.
// It does nothing before Bind.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.convID == "" {
		return
	}
	e.handle.Cancel()
	e.backoff.Reset()
	first := e.backoff.Interval()
	e.handle = e.opts.Tasks.Repeat("msgsync.poll", first, e.fire)
	e.logger.Debug("polling resumed", "conversation_id", e.convID, "interval", first)
}

// Stop cancels the poll timer. The conversation is kept so Resume works.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handle.Cancel()
	e.handle = nil
}

// Forget stops polling and drops the conversation.
func (e *Engine) Forget() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handle.Cancel()
	e.handle = nil
	e.convID = ""
}

// Running reports whether a poll timer is scheduled.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle.Active()
}

// Interval returns the current poll interval.
func (e *Engine) Interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backoff.Interval()
}

// EmptyPolls returns the consecutive empty poll count.
func (e *Engine) EmptyPolls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backoff.EmptyPolls()
}

func (e *Engine) fire() (time.Duration, bool) {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	res := e.Tick(ctx)
	if res.Idle {
		e.logger.Info("polling stopped after idle period")
		return 0, false
	}
	return e.Interval(), true
}

// Tick performs one poll.
func (e *Engine) Tick(ctx context.Context) Result {
	e.mu.Lock()
	id := e.convID
	e.mu.Unlock()

	if id == "" || !e.opts.Gate() {
		return Result{Skipped: true}
	}

	msgs, err := e.opts.Source.Messages(ctx, id)
	if err != nil {
		e.logger.Warn("poll failed", "conversation_id", id, "error", err)
		return Result{Err: err}
	}

	var res Result
	for _, msg := range msgs {
		if msg.Type != backend.MessageHuman && msg.Type != backend.MessageSystem {
			continue
		}
		if !e.opts.Seen.Claim(msg.ID) {
			continue
		}
		if msg.Type == backend.MessageHuman {
			res.Human++
			e.opts.Handler.HumanMessage(msg)
		} else {
			res.System++
			e.opts.Handler.SystemEvent(ParseEvent(msg))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if res.Human > 0 || res.System > 0 {
		e.backoff.Reset()
	} else {
		res.Idle = e.backoff.RecordEmpty()
	}
	e.logger.Debug("poll complete",
		"conversation_id", id,
		"human", res.Human,
		"system", res.System,
		"next_interval", e.backoff.Interval(),
	)
	return res
}
