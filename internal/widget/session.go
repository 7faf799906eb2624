// ABOUTME: Per-instance widget session: identity, visibility, and wiring
// ABOUTME: Commands the host invokes; presenter calls happen outside the session lock

package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/2389/coven-widget/internal/backend"
	"github.com/2389/coven-widget/internal/config"
	"github.com/2389/coven-widget/internal/dedupe"
	"github.com/2389/coven-widget/internal/handover"
	"github.com/2389/coven-widget/internal/intro"
	"github.com/2389/coven-widget/internal/msgsync"
	"github.com/2389/coven-widget/internal/present"
	"github.com/2389/coven-widget/internal/ratelimit"
	"github.com/2389/coven-widget/internal/storage"
	"github.com/2389/coven-widget/internal/tasks"
)

var (
	// ErrRateLimited is returned by Send when the visitor is sending too fast.
	ErrRateLimited = errors.New("rate limited")
	// ErrReopenPending means a closed conversation is waiting for the visitor
	// to answer the reopen prompt.
	ErrReopenPending = errors.New("reopen prompt pending")
	// ErrIntroRequired means the intake form must be submitted first.
	ErrIntroRequired = errors.New("intake form required")
	// ErrNoConversation is returned by commands that need a conversation.
	ErrNoConversation = errors.New("no conversation")
	// ErrShutdown is returned after Shutdown.
	ErrShutdown = errors.New("session shut down")
)

// Backend is the REST surface the session uses. *backend.Client implements it.
type Backend interface {
	Config(ctx context.Context) (*backend.WidgetConfig, error)
	CreateConversation(ctx context.Context, req backend.CreateConversationRequest) (backend.ID, error)
	FindByVisitor(ctx context.Context, visitorSessionID string) (*backend.Conversation, error)
	Status(ctx context.Context, id backend.ID) (*backend.StatusReport, error)
	Messages(ctx context.Context, id backend.ID) ([]backend.Message, error)
	SendMessage(ctx context.Context, req backend.SendMessageRequest) (*backend.BotReply, error)
	SubmitIntro(ctx context.Context, req backend.IntroDataRequest) error
	Feedback(ctx context.Context, req backend.FeedbackRequest) error
	End(ctx context.Context, id backend.ID) error
	Reopen(ctx context.Context, id backend.ID) error
	ReactivateOrClose(ctx context.Context, id backend.ID, action backend.ReactivateAction) error
	RequestHandover(ctx context.Context, req backend.HandoverRequest) (*backend.HandoverResponse, error)
}

// Options configures a Session.
type Options struct {
	Config    *config.Config
	Backend   Backend
	Storage   *storage.Adapter
	Presenter present.Presenter
	Logger    *slog.Logger
	// Now is the clock used for rate limiting. Defaults to time.Now.
	Now func() time.Time
}

// Session is one widget instance.
type Session struct {
	cfg       *config.Config
	backend   Backend
	store     *storage.Adapter
	presenter present.Presenter
	logger    *slog.Logger
	now       func() time.Time

	limiter  *ratelimit.Limiter
	tasks    *tasks.Group
	seen     *dedupe.Set
	poller   *msgsync.Engine
	handover *handover.Coordinator
	flight   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	visitorID string
	tabID     string

	mu              sync.Mutex
	widgetCfg       *backend.WidgetConfig
	intro           *intro.Engine
	convID          backend.ID
	convExpired     bool
	reopenCandidate backend.ID
	open            bool
	visible         bool
	handoff         bool
	warned          bool
	monitor         *tasks.Handle
	unread          int
	pendingText     string
	visitorEmail    string
	expired         map[backend.ID]bool
	introSynced     map[backend.ID]bool
	shutdown        bool
}

// New creates a session and establishes the visitor and tab ids. It makes no
// backend calls; the widget configuration is fetched on Open.
func New(ctx context.Context, opts Options) *Session {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "widget", "widget_key", cfg.Widget.Key)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	store := opts.Storage
	if store == nil {
		store = storage.NewAdapter(nil, nil, logger)
	}

	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		cfg:         cfg,
		backend:     opts.Backend,
		store:       store.WithNamespace(cfg.Widget.Key),
		presenter:   opts.Presenter,
		logger:      logger,
		now:         now,
		limiter:     ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.Max),
		tasks:       tasks.NewGroup(logger),
		seen:        dedupe.New(dedupe.WithLimit(cfg.Sync.SeenLimit)),
		ctx:         lifetime,
		cancel:      cancel,
		intro:       intro.New(nil),
		visible:     true,
		expired:     make(map[backend.ID]bool),
		introSynced: make(map[backend.ID]bool),
	}

	s.poller = msgsync.NewEngine(msgsync.Options{
		Source:       opts.Backend,
		Handler:      syncHandler{s},
		Seen:         s.seen,
		Tasks:        s.tasks,
		Gate:         s.pollGate,
		Ladder:       cfg.Sync.Ladder,
		MaxIdlePolls: cfg.Sync.MaxIdlePolls,
		Logger:       logger,
	})
	s.handover = handover.New(handover.Options{
		Client:       opts.Backend,
		Tasks:        s.tasks,
		Method:       cfg.Handover.Method,
		ConfirmDelay: cfg.Handover.ConfirmDelay,
		OnConfirm:    s.onHandoverConfirm,
		Logger:       logger,
	})

	s.visitorID = s.ensureID(ctx, storage.Durable, storage.KeyVisitorSession)
	s.tabID = s.ensureID(ctx, storage.Ephemeral, storage.KeyTabSession)
	return s
}

func (s *Session) ensureID(ctx context.Context, scope storage.Scope, key string) string {
	if id, ok := s.store.Read(ctx, scope, key); ok && id != "" {
		return id
	}
	id := uuid.NewString()
	s.store.Write(ctx, scope, key, id)
	return id
}

// VisitorID returns the cross-tab visitor session id.
func (s *Session) VisitorID() string { return s.visitorID }

// TabID returns this tab's session id.
func (s *Session) TabID() string { return s.tabID }

// ConversationID returns the conversation currently in use, or "" when none
// is, including after it expired.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.convExpired {
		return ""
	}
	return string(s.convID)
}

// ReopenCandidate returns the closed conversation awaiting the reopen answer.
func (s *Session) ReopenCandidate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.reopenCandidate)
}

// HandoffActive reports whether a human agent owns the conversation.
func (s *Session) HandoffActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handoff
}

// IntroState returns the intake flow state.
func (s *Session) IntroState() intro.State {
	return s.introEngine().State()
}

// Polling reports whether the message poller is scheduled.
func (s *Session) Polling() bool { return s.poller.Running() }

// Monitoring reports whether the inactivity monitor is scheduled.
func (s *Session) Monitoring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitor.Active()
}

// SendsRemaining reports how many messages the visitor may send right now
// before the rate limit refuses one.
func (s *Session) SendsRemaining() int {
	return s.limiter.Remaining(s.now())
}

// StorageDegraded reports which storage scopes have failed and are being
// served from memory for the rest of the session.
func (s *Session) StorageDegraded() (durable, ephemeral bool) {
	return s.store.Degraded(storage.Durable), s.store.Degraded(storage.Ephemeral)
}

// Unread returns the number of messages received while minimized.
func (s *Session) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// IsOpen reports whether the widget is open.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Session) introEngine() *intro.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intro
}

func (s *Session) botName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.widgetCfg != nil && s.widgetCfg.BotName != "" {
		return s.widgetCfg.BotName
	}
	return "Assistant"
}

// Open shows the widget. The first Open fetches the widget configuration,
// shows the welcome message once per tab, and restores any conversation the
// visitor already has without creating one.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return ErrShutdown
	}
	s.open = true
	s.unread = 0
	s.mu.Unlock()
	s.presenter.SetBadge(0)

	_ = s.loadWidgetConfig(ctx)
	s.showWelcome(ctx)

	if _, err := s.restore(ctx); err != nil {
		s.logger.Warn("restoring conversation failed", "error", err)
	}
	// Without the widget config the questions are unknown, so the intake
	// stays undecided until a later Open or Send loads it.
	if s.configLoaded() && s.ReopenCandidate() == "" {
		s.introEngine().Begin(false)
	}

	s.resumeTimers()
	s.maybeShowIntro(ctx, false)
	return nil
}

// Minimize hides the widget and stops the poller and inactivity monitor.
func (s *Session) Minimize() {
	s.mu.Lock()
	s.open = false
	s.stopMonitorLocked()
	s.mu.Unlock()
	s.poller.Stop()
	s.logger.Debug("widget minimized")
}

// SetVisible records page visibility. Becoming visible while open restarts
// polling at the fastest interval.
func (s *Session) SetVisible(visible bool) {
	s.mu.Lock()
	s.visible = visible
	resume := visible && s.open && s.handoff
	s.mu.Unlock()

	if resume {
		s.poller.Resume()
	}
}

// SavePosition remembers where the visitor dragged the widget.
func (s *Session) SavePosition(ctx context.Context, position string) {
	s.store.Write(ctx, storage.Durable, storage.KeyWidgetPosition, position)
}

// Position returns the saved widget position.
func (s *Session) Position(ctx context.Context) (string, bool) {
	return s.store.Read(ctx, storage.Durable, storage.KeyWidgetPosition)
}

// Shutdown tears the session down. No timer callback runs after it returns.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.open = false
	s.mu.Unlock()

	s.cancel()
	s.tasks.Shutdown()
	s.logger.Debug("session shut down")
}

func (s *Session) configLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.widgetCfg != nil
}

// loadWidgetConfig fetches the widget config once. A failure is retried by
// the next Open or Send.
func (s *Session) loadWidgetConfig(ctx context.Context) error {
	if s.configLoaded() {
		return nil
	}

	wc, err := s.backend.Config(ctx)
	if err != nil {
		s.logger.Warn("fetching widget config failed", "error", err)
		return fmt.Errorf("fetching widget config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.widgetCfg != nil {
		return nil
	}
	s.widgetCfg = wc
	if wc.IntroEnabled {
		// Answers restored from the backend before the config arrived are
		// kept; anything else starts over with the real questions.
		next := intro.New(intro.QuestionsFromConfig(wc.IntroQuestions))
		if s.intro.Settled() {
			next.Restore(s.intro.Answers())
		}
		s.intro = next
	}
	return nil
}

func (s *Session) showWelcome(ctx context.Context) {
	if s.store.ReadFlag(ctx, storage.Ephemeral, storage.KeyWelcomeShown) {
		return
	}
	s.mu.Lock()
	var text string
	if s.widgetCfg != nil {
		text = s.widgetCfg.WelcomeMessage
	}
	s.mu.Unlock()
	if text == "" {
		return
	}

	s.presenter.ShowMessage(present.Message{Role: present.RoleBot, Author: s.botName(), Text: text, At: s.now()})
	s.store.WriteFlag(ctx, storage.Ephemeral, storage.KeyWelcomeShown, true)
}

// maybeShowIntro shows the intake form if it is active. Unless force is set
// the form is shown once per tab.
func (s *Session) maybeShowIntro(ctx context.Context, force bool) {
	engine := s.introEngine()
	if engine.State() != intro.Active {
		return
	}
	if !force && s.store.ReadFlag(ctx, storage.Ephemeral, storage.KeyIntroShown) {
		return
	}
	s.presenter.ShowIntroForm(engine.Questions())
	s.store.WriteFlag(ctx, storage.Ephemeral, storage.KeyIntroShown, true)
}

// resumeTimers restarts the monitor and poller after Open.
func (s *Session) resumeTimers() {
	s.mu.Lock()
	hasConv := s.convID != "" && !s.convExpired
	if hasConv {
		s.startMonitorLocked()
	}
	poll := hasConv && s.handoff && s.visible
	s.mu.Unlock()

	if poll {
		s.poller.Resume()
	}
}

func (s *Session) pollGate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open && s.visible && s.handoff && !s.shutdown
}

func (s *Session) notice(level present.NoticeLevel, text string) {
	s.presenter.ShowNotice(present.Notice{Level: level, Text: text})
}

func (s *Session) connectionTrouble() {
	s.notice(present.Error, "We're having trouble connecting. Please try again in a moment.")
}
