// ABOUTME: In-memory widget backend serving the REST contract over net/http
// ABOUTME: Test hooks for clock, replies, handover outcome, and injected failures

package fakebackend

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-widget/internal/backend"
)

// Responder produces the bot reply for a visitor message.
type Responder func(text string) backend.BotReply

// EchoResponder answers every message with a canned reply at the given confidence.
func EchoResponder(confidence float64) Responder {
	return func(text string) backend.BotReply {
		return backend.BotReply{
			Response:   fmt.Sprintf("You said: %s", text),
			Confidence: confidence,
		}
	}
}

// RecordedRequest is one request seen by the server.
type RecordedRequest struct {
	Method string
	Path   string
}

type conversation struct {
	record       backend.Conversation
	visitor      string
	visitorEmail string
	messages     []backend.Message
}

// Server is an http.Handler implementing the widget backend.
type Server struct {
	mu            sync.Mutex
	widgets       map[string]backend.WidgetConfig
	conversations map[backend.ID]*conversation
	byVisitor     map[string]backend.ID
	nextID        int
	requests      []RecordedRequest
	failures      map[string]int
	handover      backend.HandoverStatus
	intro         map[backend.ID]map[string]string
	feedback      []backend.FeedbackRequest

	responder   Responder
	now         func() time.Time
	warnAfter   time.Duration
	expireAfter time.Duration

	mux    *http.ServeMux
	logger *slog.Logger
}

// New creates an empty backend. Register widgets with AddWidget.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		widgets:       make(map[string]backend.WidgetConfig),
		conversations: make(map[backend.ID]*conversation),
		byVisitor:     make(map[string]backend.ID),
		failures:      make(map[string]int),
		intro:         make(map[backend.ID]map[string]string),
		handover:      backend.HandoverSuccess,
		responder:     EchoResponder(0.5),
		now:           time.Now,
		warnAfter:     25 * time.Minute,
		expireAfter:   30 * time.Minute,
		logger:        logger.With("component", "fakebackend"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /widget/{key}/config", s.handleConfig)
	mux.HandleFunc("POST /widget/{key}/conversation", s.handleCreate)
	mux.HandleFunc("GET /widget/{key}/conversation/by-visitor/{visitor}", s.handleByVisitor)
	mux.HandleFunc("GET /widget/{key}/conversations/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /widget/{key}/conversations/{id}/messages", s.handleMessages)
	mux.HandleFunc("POST /widget/{key}/conversations/{id}/end", s.handleEnd)
	mux.HandleFunc("POST /widget/{key}/conversations/{id}/reopen", s.handleReopen)
	mux.HandleFunc("POST /widget/{key}/conversations/{id}/reactivate-or-close", s.handleReactivateOrClose)
	mux.HandleFunc("POST /widget/{key}/message", s.handleMessage)
	mux.HandleFunc("POST /widget/{key}/intro-data", s.handleIntroData)
	mux.HandleFunc("POST /widget/{key}/feedback", s.handleFeedback)
	mux.HandleFunc("POST /handover/request", s.handleHandover)
	s.mux = mux
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{Method: r.Method, Path: r.URL.Path})
	route := r.Method + " " + r.URL.Path
	fail := s.failures[route] > 0
	if fail {
		s.failures[route]--
	}
	s.mu.Unlock()

	if fail {
		s.sendJSONError(w, http.StatusServiceUnavailable, "injected failure")
		return
	}
	s.mux.ServeHTTP(w, r)
}

// AddWidget registers a widget key with its configuration.
func (s *Server) AddWidget(key string, cfg backend.WidgetConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.widgets[key] = cfg
}

// SetResponder replaces the bot reply generator.
func (s *Server) SetResponder(r Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responder = r
}

// SetClock replaces the server's notion of now.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetThresholds sets the inactivity warning and expiry thresholds.
func (s *Server) SetThresholds(warn, expire time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnAfter = warn
	s.expireAfter = expire
}

// SetHandoverStatus sets the outcome of every later handover request.
func (s *Server) SetHandoverStatus(status backend.HandoverStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handover = status
}

// FailNext makes the next n requests to "METHOD /path" answer 503.
func (s *Server) FailNext(method, path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = n
}

// Requests returns every request seen so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// CountRequests counts requests matching method and path.
func (s *Server) CountRequests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Conversation returns a copy of the stored conversation record.
func (s *Server) Conversation(id backend.ID) (backend.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return backend.Conversation{}, false
	}
	return c.record, true
}

// SetStatus forces a conversation's status.
func (s *Server) SetStatus(id backend.ID, status backend.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		c.record.Status = status
	}
}

// SetIntroCompleted marks a conversation's intake as done.
func (s *Server) SetIntroCompleted(id backend.ID, data map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		c.record.IntroCompleted = true
		c.record.IntroData = data
	}
}

// IntroData returns what the widget submitted for id.
func (s *Server) IntroData(id backend.ID) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intro[id]
}

// Feedback returns every feedback submission.
func (s *Server) Feedback() []backend.FeedbackRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.FeedbackRequest(nil), s.feedback...)
}

// AddMessage appends a message to a conversation, as an agent console or the
// backend itself would. An empty id gets the next sequence number.
func (s *Server) AddMessage(id backend.ID, msg backend.Message) backend.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return msg
	}
	if msg.ID == "" {
		msg.ID = s.newIDLocked()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	c.messages = append(c.messages, msg)
	if msg.Type == backend.MessageHuman {
		c.record.LastActivity = s.now()
	}
	return msg
}

// CreateConversationFor creates a conversation directly, bypassing HTTP.
func (s *Server) CreateConversationFor(visitor string) backend.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(backend.CreateConversationRequest{VisitorSessionID: visitor})
}

func (s *Server) newIDLocked() backend.ID {
	s.nextID++
	return backend.ID(strconv.Itoa(s.nextID))
}

func (s *Server) createLocked(req backend.CreateConversationRequest) backend.ID {
	id := backend.ID(uuid.NewString())
	now := s.now()
	s.conversations[id] = &conversation{
		record: backend.Conversation{
			ID:           id,
			Status:       backend.StatusActive,
			CreatedAt:    now,
			LastActivity: now,
		},
		visitor:      req.VisitorSessionID,
		visitorEmail: req.VisitorEmail,
	}
	if req.VisitorSessionID != "" {
		s.byVisitor[req.VisitorSessionID] = id
	}
	return id
}

// refreshLocked applies inactivity expiry to c.
func (s *Server) refreshLocked(c *conversation) (inactive time.Duration) {
	inactive = s.now().Sub(c.record.LastActivity)
	if c.record.Status == backend.StatusActive && s.expireAfter > 0 && inactive >= s.expireAfter {
		c.record.Status = backend.StatusExpired
	}
	c.record.IsExpired = c.record.Status == backend.StatusExpired
	return inactive
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*conversation, bool) {
	if _, ok := s.widgets[r.PathValue("key")]; !ok {
		s.sendJSONError(w, http.StatusNotFound, "unknown widget")
		return nil, false
	}
	c, ok := s.conversations[backend.ID(r.PathValue("id"))]
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	return c, true
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cfg, ok := s.widgets[r.PathValue("key")]
	s.mu.Unlock()
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, "unknown widget")
		return
	}
	s.sendJSON(w, cfg)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req backend.CreateConversationRequest
	if !s.decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	if _, ok := s.widgets[r.PathValue("key")]; !ok {
		s.mu.Unlock()
		s.sendJSONError(w, http.StatusNotFound, "unknown widget")
		return
	}
	id := s.createLocked(req)
	s.mu.Unlock()

	s.logger.Debug("conversation created", "conversation_id", id, "visitor", req.VisitorSessionID)
	s.sendJSON(w, backend.CreateConversationResponse{ConversationID: id})
}

func (s *Server) handleByVisitor(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byVisitor[r.PathValue("visitor")]
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, "no conversation for visitor")
		return
	}
	c := s.conversations[id]
	s.refreshLocked(c)
	s.sendJSON(w, map[string]any{"conversation": c.record})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	inactive := s.refreshLocked(c)
	s.sendJSON(w, backend.StatusReport{
		Status:             c.record.Status,
		IsExpired:          c.record.IsExpired,
		IsWarningThreshold: c.record.Status == backend.StatusActive && s.warnAfter > 0 && inactive >= s.warnAfter,
		MinutesInactive:    inactive.Minutes(),
		IntroCompleted:     c.record.IntroCompleted,
		IntroData:          c.record.IntroData,
		AgentHandoff:       c.record.AgentHandoff,
		VisitorEmail:       c.visitorEmail,
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	msgs := append([]backend.Message(nil), c.messages...)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	s.sendJSON(w, map[string]any{"messages": msgs})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	s.setStatusHandler(w, r, backend.StatusClosed)
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if c.record.Status != backend.StatusClosed {
		s.sendJSONError(w, http.StatusConflict, "conversation is not closed")
		return
	}
	c.record.Status = backend.StatusActive
	c.record.LastActivity = s.now()
	s.sendJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleReactivateOrClose(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action backend.ReactivateAction `json:"action"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	switch body.Action {
	case backend.ActionReactivate:
		s.setStatusHandler(w, r, backend.StatusActive)
	case backend.ActionClose:
		s.setStatusHandler(w, r, backend.StatusClosed)
	default:
		s.sendJSONError(w, http.StatusBadRequest, "action must be reactivate or close")
	}
}

func (s *Server) setStatusHandler(w http.ResponseWriter, r *http.Request, status backend.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	c.record.Status = status
	c.record.LastActivity = s.now()
	s.sendJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req backend.SendMessageRequest
	if !s.decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[req.ConversationID]
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if c.record.Status != backend.StatusActive {
		s.sendJSONError(w, http.StatusConflict, "conversation is "+string(c.record.Status))
		return
	}

	now := s.now()
	c.record.LastActivity = now
	c.messages = append(c.messages, backend.Message{
		ID: s.newIDLocked(), Type: backend.MessageUser, Text: req.Text, CreatedAt: now,
	})

	if c.record.AgentHandoff {
		// A human owns the conversation; the bot stays quiet.
		s.sendJSON(w, backend.BotReply{})
		return
	}

	reply := s.responder(req.Text)
	botID := s.newIDLocked()
	reply.MessageID = botID
	c.messages = append(c.messages, backend.Message{
		ID: botID, Type: backend.MessageBot, Text: reply.Response, CreatedAt: now,
	})
	s.sendJSON(w, reply)
}

func (s *Server) handleIntroData(w http.ResponseWriter, r *http.Request) {
	var req backend.IntroDataRequest
	if !s.decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[req.ConversationID]
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	s.intro[req.ConversationID] = req.IntroData
	c.record.IntroCompleted = true
	c.record.IntroData = req.IntroData
	if email := req.IntroData["email"]; email != "" {
		c.visitorEmail = email
	}
	s.sendJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req backend.FeedbackRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	s.feedback = append(s.feedback, req)
	s.mu.Unlock()
	s.sendJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleHandover(w http.ResponseWriter, r *http.Request) {
	var req backend.HandoverRequest
	if !s.decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[req.ConversationID]
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}

	status := s.handover
	if status == backend.HandoverSuccess {
		c.record.AgentHandoff = true
		if req.Email != "" {
			c.visitorEmail = req.Email
		}
	}
	s.sendJSON(w, backend.HandoverResponse{Status: status})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
