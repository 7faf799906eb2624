// ABOUTME: Tests for the poll engine: dedupe, backoff reset, idle stop and gating
// ABOUTME: Uses a scripted message source and a recording handler

package msgsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/coven-widget/internal/backend"
	"github.com/2389/coven-widget/internal/dedupe"
	"github.com/2389/coven-widget/internal/logging"
	"github.com/2389/coven-widget/internal/tasks"
)

type fakeSource struct {
	mu    sync.Mutex
	msgs  []backend.Message
	err   error
	calls int
}

func (f *fakeSource) Messages(_ context.Context, _ backend.ID) ([]backend.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]backend.Message(nil), f.msgs...), nil
}

func (f *fakeSource) add(m backend.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingHandler struct {
	mu     sync.Mutex
	human  []backend.Message
	events []Event
}

func (h *recordingHandler) HumanMessage(msg backend.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.human = append(h.human, msg)
}

func (h *recordingHandler) SystemEvent(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) humanCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.human)
}

func newTestEngine(t *testing.T, src Source, gate func() bool) (*Engine, *recordingHandler, *tasks.Group) {
	t.Helper()
	group := tasks.NewGroup(logging.Discard())
	t.Cleanup(group.Shutdown)
	h := &recordingHandler{}
	e := NewEngine(Options{
		Source:       src,
		Handler:      h,
		Seen:         dedupe.New(),
		Tasks:        group,
		Gate:         gate,
		Ladder:       []time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour},
		MaxIdlePolls: 2,
		Logger:       logging.Discard(),
	})
	return e, h, group
}

func TestTick_SameHumanMessageRenderedOnce(t *testing.T) {
	src := &fakeSource{}
	e, h, _ := newTestEngine(t, src, nil)
	e.Bind(context.Background(), "c1")
	e.Resume()
	ctx := context.Background()

	src.add(backend.Message{ID: "7", Type: backend.MessageHuman, Text: "Hi, I'm Sam"})
	res := e.Tick(ctx)
	assert.Equal(t, 1, res.Human)

	res = e.Tick(ctx)
	assert.Equal(t, 0, res.Human)
	assert.Equal(t, 1, h.humanCount())
}

func TestTick_IgnoresUserAndBotMessages(t *testing.T) {
	src := &fakeSource{msgs: []backend.Message{
		{ID: "1", Type: backend.MessageUser, Text: "hello"},
		{ID: "2", Type: backend.MessageBot, Text: "hi"},
	}}
	e, h, _ := newTestEngine(t, src, nil)
	e.Bind(context.Background(), "c1")
	e.Resume()

	res := e.Tick(context.Background())
	assert.Equal(t, 0, res.Human+res.System)
	assert.Equal(t, 0, h.humanCount())
	assert.Equal(t, 1, e.EmptyPolls())
}

func TestTick_NewMessageResetsBackoff(t *testing.T) {
	src := &fakeSource{}
	e, _, _ := newTestEngine(t, src, nil)
	e.Bind(context.Background(), "c1")
	e.Resume()
	ctx := context.Background()

	e.Tick(ctx)
	e.Tick(ctx)
	e.Tick(ctx)
	assert.Equal(t, 3, e.EmptyPolls())
	assert.Equal(t, 2*time.Hour, e.Interval())

	src.add(backend.Message{ID: "9", Type: backend.MessageHuman, Text: "back"})
	e.Tick(ctx)
	assert.Equal(t, 0, e.EmptyPolls())
	assert.Equal(t, time.Hour, e.Interval())
}

func TestTick_SystemEvents(t *testing.T) {
	src := &fakeSource{msgs: []backend.Message{
		{ID: "3", Type: backend.MessageSystem, Text: `{"event":"conversation_stopped","message":"Agent ended the chat"}`},
		{ID: "4", Type: backend.MessageSystem, Text: "Sam has left"},
	}}
	e, h, _ := newTestEngine(t, src, nil)
	e.Bind(context.Background(), "c1")
	e.Resume()

	res := e.Tick(context.Background())
	assert.Equal(t, 2, res.System)
	require.Len(t, h.events, 2)
	assert.Equal(t, EventConversationStopped, h.events[0].Name)
	assert.Equal(t, "Agent ended the chat", h.events[0].Text)
	assert.False(t, h.events[1].Structured())
	assert.Equal(t, "Sam has left", h.events[1].Text)

	// Marked regardless of structure.
	res = e.Tick(context.Background())
	assert.Equal(t, 0, res.System)
}

func TestTick_TransportErrorLeavesBackoff(t *testing.T) {
	src := &fakeSource{}
	e, _, _ := newTestEngine(t, src, nil)
	e.Bind(context.Background(), "c1")
	e.Resume()
	ctx := context.Background()

	e.Tick(ctx)
	e.Tick(ctx)
	before := e.EmptyPolls()

	src.mu.Lock()
	src.err = errors.New("connection refused")
	src.mu.Unlock()

	res := e.Tick(ctx)
	require.Error(t, res.Err)
	assert.False(t, res.Idle)
	assert.Equal(t, before, e.EmptyPolls())
	assert.True(t, e.Running())
}

func TestTick_ClosedGateSkips(t *testing.T) {
	src := &fakeSource{msgs: []backend.Message{{ID: "5", Type: backend.MessageHuman}}}
	e, h, _ := newTestEngine(t, src, func() bool { return false })
	e.Bind(context.Background(), "c1")
	e.Resume()

	res := e.Tick(context.Background())
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, src.callCount())
	assert.Equal(t, 0, h.humanCount())
	assert.True(t, e.Running())
}

func TestTick_IdleAfterEmptyPolls(t *testing.T) {
	src := &fakeSource{}
	e, _, _ := newTestEngine(t, src, nil)
	e.Bind(context.Background(), "c1")
	e.Resume()
	ctx := context.Background()

	// Ladder has three steps, MaxIdlePolls is 2: polls 1-3 advance the
	// ladder, polls 4 and 5 run at the slowest step.
	var res Result
	for range 5 {
		res = e.Tick(ctx)
	}
	assert.True(t, res.Idle)
}

func TestEngine_PollsOnTimerAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &fakeSource{}
	group := tasks.NewGroup(logging.Discard())
	h := &recordingHandler{}
	e := NewEngine(Options{
		Source:       src,
		Handler:      h,
		Seen:         dedupe.New(),
		Tasks:        group,
		Ladder:       []time.Duration{5 * time.Millisecond, 10 * time.Millisecond},
		MaxIdlePolls: 3,
		Logger:       logging.Discard(),
	})

	e.Bind(context.Background(), "c1")
	e.Resume()
	require.Eventually(t, func() bool { return !e.Running() }, 2*time.Second, 5*time.Millisecond)
	calls := src.callCount()
	assert.GreaterOrEqual(t, calls, 4)

	src.add(backend.Message{ID: "1", Type: backend.MessageHuman, Text: "hello"})
	e.Resume()
	assert.True(t, e.Running())
	require.Eventually(t, func() bool { return h.humanCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	group.Shutdown()
	assert.False(t, e.Running())
	after := src.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, src.callCount())
}

func TestResumeBeforeBindIsNoop(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeSource{}, nil)
	e.Resume()
	assert.False(t, e.Running())
}

func TestForget(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeSource{}, nil)
	e.Bind(context.Background(), "c1")
	e.Resume()
	e.Forget()
	assert.False(t, e.Running())
	assert.True(t, e.Tick(context.Background()).Skipped)
}

func TestBind_DoesNotSchedule(t *testing.T) {
	src := &fakeSource{}
	e, _, _ := newTestEngine(t, src, nil)
	e.Bind(context.Background(), "c1")
	e.Resume()
	require.True(t, e.Running())

	e.Bind(context.Background(), "c2")
	assert.False(t, e.Running())

	e.Resume()
	assert.True(t, e.Running())
}
