// ABOUTME: Live-agent handover request and response interpretation
// ABOUTME: Delays the "request received" confirmation until it is known no agent replied yet

// Package handover submits a conversation to a human agent using the widget's
// configured method and interprets the backend's verdict.
package handover

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/coven-widget/internal/backend"
	"github.com/2389/coven-widget/internal/intro"
	"github.com/2389/coven-widget/internal/tasks"
)

// Supported handover methods.
const (
	MethodLiveChat = "live_chat"
	MethodEmail    = "email"
	MethodPhone    = "phone"
)

// Client is the part of the backend the coordinator talks to.
type Client interface {
	RequestHandover(ctx context.Context, req backend.HandoverRequest) (*backend.HandoverResponse, error)
	Messages(ctx context.Context, id backend.ID) ([]backend.Message, error)
}

// Outcome is what the widget should do after a request.
type Outcome int

const (
	// Failed: show an explanation; the visitor keeps chatting with the bot.
	Failed Outcome = iota
	// Queued: tell the visitor they are waiting; handoff is not active yet.
	Queued
	// Accepted: handoff is active and message sync should start.
	Accepted
)

func (o Outcome) String() string {
	switch o {
	case Queued:
		return "queued"
	case Accepted:
		return "accepted"
	default:
		return "failed"
	}
}

// Result describes a handover attempt.
type Result struct {
	Outcome Outcome
	Status  backend.HandoverStatus
	// Notice is the text to show the visitor. Empty for Accepted, whose
	// confirmation is delivered later through OnConfirm.
	Notice string
	Err    error
}

// Options configures a Coordinator.
type Options struct {
	Client       Client
	Tasks        *tasks.Group
	Method       string
	ConfirmDelay time.Duration
	// OnConfirm runs after ConfirmDelay for an accepted request. agentReplied
	// is true when a human message already exists, in which case the generic
	// confirmation should not be shown.
	OnConfirm func(id backend.ID, agentReplied bool)
	Logger    *slog.Logger
}

// Coordinator submits handover requests.
type Coordinator struct {
	opts   Options
	logger *slog.Logger
}

// New creates a coordinator.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Method == "" {
		opts.Method = MethodLiveChat
	}
	return &Coordinator{opts: opts, logger: logger.With("component", "handover")}
}

// Method returns the configured handover method.
func (c *Coordinator) Method() string { return c.opts.Method }

// Request asks for a live agent on conversation id. ctx bounds the request
// and the delayed reply check.
func (c *Coordinator) Request(ctx context.Context, id backend.ID, contact intro.ContactInfo) Result {
	resp, err := c.opts.Client.RequestHandover(ctx, backend.HandoverRequest{
		ConversationID: id,
		Method:         c.opts.Method,
		Name:           contact.Name,
		Email:          contact.Email,
		Phone:          contact.Phone,
		Reason:         contact.Reason,
	})
	if err != nil {
		c.logger.Warn("handover request failed", "conversation_id", id, "error", err)
		return Result{
			Outcome: Failed,
			Notice:  "We couldn't reach an agent right now. You can keep chatting here and try again shortly.",
			Err:     err,
		}
	}

	c.logger.Info("handover answered", "conversation_id", id, "status", resp.Status, "method", c.opts.Method)

	switch resp.Status {
	case backend.HandoverAgentBusy, backend.HandoverQueued:
		notice := resp.Message
		if notice == "" {
			notice = "All of our agents are busy. You're in the queue and someone will be with you soon."
		}
		return Result{Outcome: Queued, Status: resp.Status, Notice: notice}

	case backend.HandoverSuccess:
		c.scheduleConfirm(ctx, id)
		return Result{Outcome: Accepted, Status: resp.Status}

	default:
		notice := resp.Message
		if notice == "" {
			notice = "Live help isn't available at the moment. You can keep chatting with the assistant."
		}
		return Result{Outcome: Failed, Status: resp.Status, Notice: notice}
	}
}

func (c *Coordinator) scheduleConfirm(ctx context.Context, id backend.ID) {
	if c.opts.OnConfirm == nil {
		return
	}
	c.opts.Tasks.After("handover.confirm", c.opts.ConfirmDelay, func() {
		c.opts.OnConfirm(id, c.agentReplied(ctx, id))
	})
}

// agentReplied reports whether a human message exists. A failed check counts
// as no reply so the visitor still gets a confirmation.
func (c *Coordinator) agentReplied(ctx context.Context, id backend.ID) bool {
	msgs, err := c.opts.Client.Messages(ctx, id)
	if err != nil {
		c.logger.Debug("reply check failed", "conversation_id", id, "error", err)
		return false
	}
	for _, m := range msgs {
		if m.Type == backend.MessageHuman {
			return true
		}
	}
	return false
}
