// ABOUTME: Visitor-originated commands: send, intake submit, feedback, handover
// ABOUTME: Also receives polled agent messages and system events

package widget

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/2389/coven-widget/internal/backend"
	"github.com/2389/coven-widget/internal/handover"
	"github.com/2389/coven-widget/internal/intro"
	"github.com/2389/coven-widget/internal/msgsync"
	"github.com/2389/coven-widget/internal/present"
)

// Send delivers a visitor message and renders the bot's reply. Failures are
// shown to the visitor and returned; the visitor can always type again.
func (s *Session) Send(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return ErrShutdown
	}
	s.mu.Unlock()

	now := s.now()
	if !s.limiter.TryAccept(now) {
		wait := int(math.Ceil(s.limiter.RetryAfter(now).Seconds()))
		s.notice(present.Warning, fmt.Sprintf("You're sending messages quickly. Please wait %d seconds and try again.", wait))
		return ErrRateLimited
	}

	// The intake gate depends on the config, so nothing is sent without it.
	if err := s.loadWidgetConfig(ctx); err != nil {
		s.connectionTrouble()
		return err
	}

	rawID, err := s.EnsureConversation(ctx)
	if err != nil {
		s.logger.Warn("resolving conversation failed", "error", err)
		s.connectionTrouble()
		return err
	}
	if rawID == "" {
		return ErrReopenPending
	}
	id := backend.ID(rawID)

	engine := s.introEngine()
	if engine.State() == intro.NotStarted {
		engine.Begin(false)
	}
	if engine.State() == intro.Active {
		s.mu.Lock()
		s.pendingText = text
		s.mu.Unlock()
		s.maybeShowIntro(ctx, true)
		return ErrIntroRequired
	}

	if s.hasPending() {
		// Intake finished while the backend was unreachable.
		s.syncIntroData(ctx, id, engine.Answers())
		if err := s.flushPending(ctx, id); err != nil {
			return err
		}
	}
	return s.deliver(ctx, id, text)
}

func (s *Session) hasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingText != ""
}

// flushPending delivers the message held back by the intake gate, if any.
func (s *Session) flushPending(ctx context.Context, id backend.ID) error {
	s.mu.Lock()
	pending := s.pendingText
	s.pendingText = ""
	s.mu.Unlock()
	if pending == "" {
		return nil
	}
	return s.deliver(ctx, id, pending)
}

func (s *Session) deliver(ctx context.Context, id backend.ID, text string) error {
	s.presenter.ShowMessage(present.Message{Role: present.RoleVisitor, Text: text, At: s.now()})
	s.presenter.ShowTyping(true)
	reply, err := s.backend.SendMessage(ctx, backend.SendMessageRequest{Text: text, ConversationID: id})
	s.presenter.ShowTyping(false)

	if err != nil {
		s.logger.Warn("sending message failed", "conversation_id", id, "error", err)
		var apiErr *backend.APIError
		if errors.Is(err, backend.ErrNotFound) || errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			// The backend no longer accepts messages on this conversation;
			// re-derive from its answer on the next send.
			s.forgetConversation(ctx)
			s.notice(present.Info, "This conversation has ended. Send your message again to start a new one.")
			return err
		}
		s.connectionTrouble()
		return err
	}

	s.mu.Lock()
	handoff := s.handoff
	s.mu.Unlock()

	if handoff {
		s.poller.Resume()
	}

	if reply.Response != "" {
		if reply.MessageID != "" {
			s.seen.Mark(reply.MessageID)
		}
		s.presenter.ShowMessage(present.Message{
			ID:          string(reply.MessageID),
			Role:        present.RoleBot,
			Author:      s.botName(),
			Text:        reply.Response,
			At:          s.now(),
			Suggestions: reply.Suggestions,
		})
		if reply.MessageID != "" && reply.Confidence >= s.cfg.Widget.HelpfulThreshold {
			s.presenter.ShowPrompt(present.Prompt{
				Kind:    present.PromptHelpful,
				Text:    "Was this helpful?",
				Choices: []string{"yes", "no"},
				Ref:     string(reply.MessageID),
			})
		}
	}

	if reply.HandoffRequested && !handoff {
		if _, err := s.RequestHandover(ctx); err != nil {
			s.logger.Warn("handover after bot signal failed", "conversation_id", id, "error", err)
		}
	}
	return nil
}

// SubmitIntro validates and submits the intake form. Field errors are shown
// and returned; a failed upload is logged and does not block the visitor.
// The held message stays pending until a conversation can be resolved, so a
// later SubmitIntro or Send delivers it.
func (s *Session) SubmitIntro(ctx context.Context, answers map[string]string) error {
	engine := s.introEngine()
	if engine.State() == intro.NotStarted && s.configLoaded() {
		engine.Begin(false)
	}
	switch engine.State() {
	case intro.Active:
	case intro.Complete:
		if !s.hasPending() {
			return nil
		}
		return s.deliverHeld(ctx, engine)
	default:
		return nil
	}

	contact, err := engine.Submit(answers)
	if err != nil {
		var fe intro.FieldErrors
		if errors.As(err, &fe) {
			s.presenter.ShowFieldErrors(fe)
		}
		return err
	}

	if contact.Name != "" {
		s.notice(present.Info, fmt.Sprintf("Thanks, %s! How can we help?", contact.Name))
	} else {
		s.notice(present.Info, "Thanks! How can we help?")
	}
	return s.deliverHeld(ctx, engine)
}

// deliverHeld resolves the conversation after intake, uploads the answers
// and sends the message the gate held back.
func (s *Session) deliverHeld(ctx context.Context, engine *intro.Engine) error {
	rawID, err := s.EnsureConversation(ctx)
	if err != nil {
		s.logger.Warn("resolving conversation after intake failed", "error", err)
		if s.hasPending() {
			s.connectionTrouble()
			return err
		}
		return nil
	}
	if rawID == "" {
		return nil
	}
	id := backend.ID(rawID)
	s.syncIntroData(ctx, id, engine.Answers())
	return s.flushPending(ctx, id)
}

// syncIntroData uploads intake answers for id once.
func (s *Session) syncIntroData(ctx context.Context, id backend.ID, answers map[string]string) {
	s.mu.Lock()
	done := s.introSynced[id]
	s.introSynced[id] = true
	s.mu.Unlock()
	if done {
		return
	}

	if err := s.backend.SubmitIntro(ctx, backend.IntroDataRequest{ConversationID: id, IntroData: answers}); err != nil {
		s.logger.Warn("submitting intake answers failed", "conversation_id", id, "error", err)
		s.mu.Lock()
		delete(s.introSynced, id)
		s.mu.Unlock()
	}
}

// AnswerHelpful records the visitor's rating of a bot reply.
func (s *Session) AnswerHelpful(ctx context.Context, messageID string, helpful bool) error {
	s.mu.Lock()
	id := s.convID
	s.mu.Unlock()
	if id == "" {
		return ErrNoConversation
	}

	err := s.backend.Feedback(ctx, backend.FeedbackRequest{
		ConversationID: id,
		MessageID:      backend.ID(messageID),
		Helpful:        helpful,
	})
	if err != nil {
		s.logger.Warn("submitting feedback failed", "conversation_id", id, "message_id", messageID, "error", err)
		return err
	}
	if helpful {
		s.notice(present.Info, "Thanks for your feedback!")
	} else {
		s.notice(present.Info, "Sorry that didn't help. You can ask to talk to a person at any time.")
	}
	return nil
}

// RequestHandover asks for a live agent using the configured method.
func (s *Session) RequestHandover(ctx context.Context) (handover.Outcome, error) {
	rawID, err := s.EnsureConversation(ctx)
	if err != nil {
		s.connectionTrouble()
		return handover.Failed, err
	}
	if rawID == "" {
		return handover.Failed, ErrReopenPending
	}
	id := backend.ID(rawID)

	s.presenter.ShowTyping(true)
	res := s.handover.Request(ctx, id, s.introEngine().Contact())
	s.presenter.ShowTyping(false)

	switch res.Outcome {
	case handover.Accepted:
		s.mu.Lock()
		s.handoff = true
		s.mu.Unlock()
		if s.pollGate() {
			s.poller.Resume()
		}
	case handover.Queued:
		s.notice(present.Info, res.Notice)
	default:
		s.notice(present.Error, res.Notice)
	}
	return res.Outcome, res.Err
}

func (s *Session) onHandoverConfirm(id backend.ID, agentReplied bool) {
	s.mu.Lock()
	current := s.convID == id && !s.convExpired && s.handoff
	s.mu.Unlock()
	if !current || agentReplied {
		return
	}
	s.notice(present.Info, "Your request has been received. An agent will be with you shortly.")
}

// syncHandler receives polled messages for the session.
type syncHandler struct{ s *Session }

func (h syncHandler) HumanMessage(msg backend.Message) {
	h.s.presenter.ShowMessage(present.Message{
		ID:     string(msg.ID),
		Role:   present.RoleAgent,
		Author: msg.AgentName,
		Text:   msg.Text,
		At:     msg.CreatedAt,
	})
	h.s.bumpUnread()
}

func (h syncHandler) SystemEvent(ev msgsync.Event) {
	s := h.s
	switch ev.Name {
	case msgsync.EventConversationStopped:
		s.mu.Lock()
		s.handoff = false
		s.mu.Unlock()
		s.poller.Stop()

		text := ev.Text
		if text == "" {
			text = "The agent has ended this conversation."
		}
		s.presenter.ShowPrompt(present.Prompt{
			Kind:    present.PromptReactivate,
			Text:    text + " Would you like to keep chatting?",
			Choices: []string{"reactivate", "close"},
			Ref:     string(ev.Message.ID),
		})
	case msgsync.EventAgentJoined:
		text := ev.Text
		if text == "" {
			text = "An agent has joined the conversation."
		}
		s.notice(present.Info, text)
	case "":
		s.presenter.ShowMessage(present.Message{
			ID:   string(ev.Message.ID),
			Role: present.RoleSystem,
			Text: ev.Text,
			At:   ev.Message.CreatedAt,
		})
	default:
		s.logger.Debug("ignoring unknown system event", "event", ev.Name)
		return
	}
	s.bumpUnread()
}

func (s *Session) bumpUnread() {
	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return
	}
	s.unread++
	n := s.unread
	s.mu.Unlock()
	s.presenter.SetBadge(n)
}
