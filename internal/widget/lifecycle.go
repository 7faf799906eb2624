// ABOUTME: Conversation resolution, adoption, expiry, reopen, and close
// ABOUTME: The only code that writes the conversation pointer in memory or storage

package widget

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/coven-widget/internal/backend"
	"github.com/2389/coven-widget/internal/intro"
	"github.com/2389/coven-widget/internal/msgsync"
	"github.com/2389/coven-widget/internal/present"
	"github.com/2389/coven-widget/internal/storage"
)

// EnsureConversation returns the conversation to use, creating one if needed.
// It returns ("", nil) when a closed conversation was found and the visitor
// has been asked whether to reopen it.
func (s *Session) EnsureConversation(ctx context.Context) (string, error) {
	v, err, _ := s.flight.Do("ensure", func() (any, error) {
		return s.resolve(ctx, true)
	})
	if err != nil {
		return "", err
	}
	return string(v.(backend.ID)), nil
}

// restore runs resolution without creating a conversation.
func (s *Session) restore(ctx context.Context) (backend.ID, error) {
	v, err, _ := s.flight.Do("restore", func() (any, error) {
		return s.resolve(ctx, false)
	})
	if err != nil {
		return "", err
	}
	return v.(backend.ID), nil
}

// adoption describes what the backend knows about a conversation being
// taken into use.
type adoption struct {
	id             backend.ID
	introCompleted bool
	introData      map[string]string
	handoff        bool
	visitorEmail   string
	fresh          bool
}

func (s *Session) resolve(ctx context.Context, create bool) (backend.ID, error) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return "", ErrShutdown
	}
	inMemory := s.convID
	if inMemory != "" && !s.convExpired {
		s.mu.Unlock()
		return inMemory, nil
	}
	s.mu.Unlock()

	cached, _ := s.store.Read(ctx, storage.Durable, storage.KeyConversation)
	remembered := func(id backend.ID) bool {
		return id != "" && (id == backend.ID(cached) || id == inMemory)
	}

	// Conversation the backend knows for this visitor.
	var handled backend.ID
	conv, err := s.backend.FindByVisitor(ctx, s.visitorID)
	switch {
	case err != nil:
		s.logger.Warn("visitor lookup failed", "error", err)
	case conv != nil:
		expired := conv.IsExpired || conv.Status == backend.StatusExpired
		if conv.Status == backend.StatusActive && !expired {
			s.adopt(ctx, adoption{
				id:             conv.ID,
				introCompleted: conv.IntroCompleted,
				introData:      conv.IntroData,
				handoff:        conv.AgentHandoff,
			})
			return conv.ID, nil
		}
		if expired && conv.IntroCompleted {
			s.introEngine().Restore(conv.IntroData)
		}
		if expired && remembered(conv.ID) {
			s.expire(ctx, conv.ID, "")
			handled = conv.ID
		}
	}

	// Conversation this browser remembers.
	closedHere := s.store.ReadFlag(ctx, storage.Ephemeral, storage.KeyClosedThisSession)
	if cached != "" && !closedHere && backend.ID(cached) != handled {
		id := backend.ID(cached)
		report, err := s.backend.Status(ctx, id)
		switch {
		case errors.Is(err, backend.ErrNotFound):
			s.logger.Info("cached conversation unknown to backend, discarding", "conversation_id", id)
			s.store.Remove(ctx, storage.Durable, storage.KeyConversation)
		case err != nil:
			return "", fmt.Errorf("checking cached conversation: %w", err)
		case report.IsExpired || report.Status == backend.StatusExpired:
			if report.IntroCompleted {
				s.introEngine().Restore(report.IntroData)
			}
			s.expire(ctx, id, report.VisitorEmail)
		case report.Status == backend.StatusActive:
			s.adopt(ctx, adoption{
				id:             id,
				introCompleted: report.IntroCompleted,
				introData:      report.IntroData,
				handoff:        report.AgentHandoff,
				visitorEmail:   report.VisitorEmail,
			})
			return id, nil
		case report.Status == backend.StatusClosed:
			s.offerReopen(id)
			return "", nil
		default:
			s.logger.Info("cached conversation in unexpected state, discarding",
				"conversation_id", id, "status", report.Status)
			s.store.Remove(ctx, storage.Durable, storage.KeyConversation)
		}
	}

	if !create {
		return "", nil
	}
	return s.create(ctx)
}

func (s *Session) create(ctx context.Context) (backend.ID, error) {
	s.recoverIntroFromExpired(ctx)
	contact := s.introEngine().Contact()

	id, err := s.backend.CreateConversation(ctx, backend.CreateConversationRequest{
		VisitorSessionID: s.visitorID,
		TabSessionID:     s.tabID,
		VisitorName:      contact.Name,
		VisitorEmail:     contact.Email,
		VisitorPhone:     contact.Phone,
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("conversation created", "conversation_id", id)

	s.adopt(ctx, adoption{id: id, fresh: true, visitorEmail: contact.Email})

	// Intake answered for an earlier conversation carries over.
	engine := s.introEngine()
	if answers := engine.Answers(); len(answers) > 0 {
		s.syncIntroData(ctx, id, answers)
	}
	return id, nil
}

// recoverIntroFromExpired asks the backend whether the expired conversation
// still held in memory had its intake completed, so a new conversation does
// not ask again.
func (s *Session) recoverIntroFromExpired(ctx context.Context) {
	s.mu.Lock()
	old := s.convID
	expired := s.convExpired
	engine := s.intro
	s.mu.Unlock()

	if old == "" || !expired || engine.State() == intro.Complete {
		return
	}
	report, err := s.backend.Status(ctx, old)
	if err != nil {
		s.logger.Debug("status of expired conversation unavailable", "conversation_id", old, "error", err)
		return
	}
	if report.IntroCompleted {
		engine.Restore(report.IntroData)
	}
}

// adopt takes a conversation into use: persists its id, restores flags,
// renders history, and starts timers.
func (s *Session) adopt(ctx context.Context, a adoption) {
	s.mu.Lock()
	s.convID = a.id
	s.convExpired = false
	s.reopenCandidate = ""
	s.handoff = a.handoff
	s.warned = false
	if a.visitorEmail != "" {
		s.visitorEmail = a.visitorEmail
	}
	engine := s.intro
	open := s.open
	if open {
		s.startMonitorLocked()
	}
	s.mu.Unlock()

	s.store.Write(ctx, storage.Durable, storage.KeyConversation, string(a.id))
	s.store.WriteFlag(ctx, storage.Ephemeral, storage.KeyClosedThisSession, false)
	s.logger.Info("conversation adopted", "conversation_id", a.id, "fresh", a.fresh, "handoff", a.handoff)

	if a.introCompleted {
		engine.Restore(a.introData)
		s.mu.Lock()
		s.introSynced[a.id] = true
		s.mu.Unlock()
	} else if s.configLoaded() {
		engine.Begin(false)
	}

	if !a.fresh {
		s.loadHistory(ctx, a.id)
	}

	s.poller.Bind(s.ctx, a.id)
	if s.pollGate() {
		s.poller.Resume()
	}
}

// loadHistory renders messages not displayed yet, in backend order.
func (s *Session) loadHistory(ctx context.Context, id backend.ID) {
	msgs, err := s.backend.Messages(ctx, id)
	if err != nil {
		s.logger.Warn("loading history failed", "conversation_id", id, "error", err)
		return
	}
	bot := s.botName()
	for _, m := range msgs {
		if !s.seen.Claim(m.ID) {
			continue
		}
		pm := present.Message{ID: string(m.ID), Text: m.Text, At: m.CreatedAt}
		switch m.Type {
		case backend.MessageUser:
			pm.Role = present.RoleVisitor
		case backend.MessageBot:
			pm.Role = present.RoleBot
			pm.Author = bot
		case backend.MessageHuman:
			pm.Role = present.RoleAgent
			pm.Author = m.AgentName
		case backend.MessageSystem:
			ev := msgsync.ParseEvent(m)
			if ev.Structured() {
				// Past events have already been acted on.
				continue
			}
			pm.Role = present.RoleSystem
		default:
			continue
		}
		s.presenter.ShowMessage(pm)
	}
}

// expire runs the expiry side effects once per conversation.
func (s *Session) expire(ctx context.Context, id backend.ID, visitorEmail string) {
	s.mu.Lock()
	if s.expired[id] {
		s.mu.Unlock()
		return
	}
	s.expired[id] = true
	if s.convID == id {
		s.convExpired = true
	}
	s.handoff = false
	s.warned = false
	s.stopMonitorLocked()
	if visitorEmail == "" {
		visitorEmail = s.visitorEmail
	}
	s.mu.Unlock()

	s.poller.Stop()
	s.logger.Info("conversation expired", "conversation_id", id)

	s.notice(present.Warning, "This conversation has ended due to inactivity.")
	if visitorEmail != "" {
		s.notice(present.Info, fmt.Sprintf("A summary will be emailed to %s.", visitorEmail))
	}

	s.store.Remove(ctx, storage.Durable, storage.KeyConversation)
	s.store.WriteFlag(ctx, storage.Ephemeral, storage.KeyIntroShown, false)
	s.presenter.ClearMessages()
	s.seen.Reset()
}

func (s *Session) offerReopen(id backend.ID) {
	s.mu.Lock()
	s.reopenCandidate = id
	s.mu.Unlock()

	s.logger.Info("closed conversation found, offering reopen", "conversation_id", id)
	s.presenter.ShowPrompt(present.Prompt{
		Kind:    present.PromptReopen,
		Text:    "You have a previous conversation. Would you like to continue it?",
		Choices: []string{"yes", "no"},
		Ref:     string(id),
	})
}

// AnswerReopen answers the reopen prompt. Yes reopens the candidate; no
// forgets it so the next message starts a new conversation.
func (s *Session) AnswerReopen(ctx context.Context, yes bool) error {
	s.mu.Lock()
	id := s.reopenCandidate
	s.mu.Unlock()
	if id == "" {
		return ErrNoConversation
	}

	if yes {
		return s.Reopen(ctx, string(id))
	}

	s.mu.Lock()
	s.reopenCandidate = ""
	s.mu.Unlock()
	s.store.Remove(ctx, storage.Durable, storage.KeyConversation)
	s.notice(present.Info, "No problem. Send a message to start a new conversation.")
	return nil
}

// Reopen moves a closed conversation back to active and restores its
// history and flags.
func (s *Session) Reopen(ctx context.Context, id string) error {
	cid := backend.ID(id)
	if err := s.backend.Reopen(ctx, cid); err != nil {
		s.logger.Warn("reopen failed", "conversation_id", cid, "error", err)
		if errors.Is(err, backend.ErrUnavailable) {
			s.connectionTrouble()
		} else {
			s.notice(present.Error, "That conversation can't be reopened. Send a message to start a new one.")
			s.mu.Lock()
			s.reopenCandidate = ""
			s.mu.Unlock()
			s.store.Remove(ctx, storage.Durable, storage.KeyConversation)
		}
		return fmt.Errorf("reopening conversation: %w", err)
	}

	a := adoption{id: cid}
	if report, err := s.backend.Status(ctx, cid); err == nil {
		a.introCompleted = report.IntroCompleted
		a.introData = report.IntroData
		a.handoff = report.AgentHandoff
		a.visitorEmail = report.VisitorEmail
	} else {
		s.logger.Warn("status after reopen failed", "conversation_id", cid, "error", err)
	}

	s.adopt(ctx, a)
	s.notice(present.Info, "Welcome back! Your conversation has been reopened.")
	s.maybeShowIntro(ctx, true)
	return nil
}

// Close ends the conversation, marks it closed for this tab, and stops all
// conversation timers. The widget is minimized.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	id := s.convID
	if s.convExpired {
		id = ""
	}
	s.mu.Unlock()

	var endErr error
	if id != "" {
		if err := s.backend.End(ctx, id); err != nil {
			s.logger.Warn("ending conversation failed", "conversation_id", id, "error", err)
			endErr = fmt.Errorf("ending conversation: %w", err)
		}
	}

	s.forgetConversation(ctx)
	s.store.WriteFlag(ctx, storage.Ephemeral, storage.KeyClosedThisSession, true)

	s.mu.Lock()
	s.open = false
	s.mu.Unlock()

	if id != "" {
		s.notice(present.Info, "Chat closed. Thanks for stopping by!")
	}
	return endErr
}

// ReactivateOrClose answers an agent stopping the conversation.
func (s *Session) ReactivateOrClose(ctx context.Context, reactivate bool) error {
	s.mu.Lock()
	id := s.convID
	if s.convExpired {
		id = ""
	}
	s.mu.Unlock()
	if id == "" {
		return ErrNoConversation
	}

	action := backend.ActionClose
	if reactivate {
		action = backend.ActionReactivate
	}
	if err := s.backend.ReactivateOrClose(ctx, id, action); err != nil {
		s.logger.Warn("reactivate-or-close failed", "conversation_id", id, "action", action, "error", err)
		s.connectionTrouble()
		return err
	}

	if !reactivate {
		s.forgetConversation(ctx)
		s.store.WriteFlag(ctx, storage.Ephemeral, storage.KeyClosedThisSession, true)
		s.notice(present.Info, "Chat closed. Thanks for stopping by!")
		return nil
	}

	// The stop event cleared the handoff flag; the backend says whether the
	// agent still owns the conversation.
	handoff := false
	if report, err := s.backend.Status(ctx, id); err != nil {
		s.logger.Warn("status after reactivation unavailable", "conversation_id", id, "error", err)
	} else {
		handoff = report.AgentHandoff
	}

	s.mu.Lock()
	s.warned = false
	s.handoff = handoff
	if s.open {
		s.startMonitorLocked()
	}
	s.mu.Unlock()
	if s.pollGate() {
		s.poller.Resume()
	}
	s.notice(present.Info, "Your conversation is active again.")
	return nil
}

// forgetConversation drops the current conversation from memory and durable
// storage and stops its timers.
func (s *Session) forgetConversation(ctx context.Context) {
	s.mu.Lock()
	old := s.convID
	s.convID = ""
	s.convExpired = false
	s.reopenCandidate = ""
	s.handoff = false
	s.warned = false
	s.pendingText = ""
	s.stopMonitorLocked()
	s.mu.Unlock()

	s.poller.Forget()
	s.store.Remove(ctx, storage.Durable, storage.KeyConversation)
	if old != "" {
		s.logger.Info("conversation released", "conversation_id", old)
	}
}
