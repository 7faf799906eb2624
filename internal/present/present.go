// ABOUTME: Presenter sink interface and the value types it renders
// ABOUTME: Messages, notices, prompts, intake form, unread badge

package present

import (
	"time"

	"github.com/2389/coven-widget/internal/intro"
)

// Role identifies who a rendered message belongs to.
type Role string

const (
	RoleVisitor Role = "visitor"
	RoleBot     Role = "bot"
	RoleAgent   Role = "agent"
	RoleSystem  Role = "system"
)

// Message is one chat bubble.
type Message struct {
	ID          string
	Role        Role
	Author      string
	Text        string
	At          time.Time
	Suggestions []string
}

// NoticeLevel sets a notice's tone.
type NoticeLevel int

const (
	Info NoticeLevel = iota
	Warning
	Error
)

// Notice is a status line that is not part of the conversation history.
type Notice struct {
	Level NoticeLevel
	Text  string
}

// PromptKind names a question the widget asks with buttons.
type PromptKind string

const (
	PromptReopen     PromptKind = "reopen"
	PromptHelpful    PromptKind = "helpful"
	PromptReactivate PromptKind = "reactivate"
)

// Prompt is a button question. Ref carries the message or conversation id the
// answer refers to.
type Prompt struct {
	Kind    PromptKind
	Text    string
	Choices []string
	Ref     string
}

// Presenter receives everything the visitor should see. Calls may arrive from
// timer goroutines; implementations must be safe for concurrent use.
type Presenter interface {
	ShowMessage(m Message)
	ShowNotice(n Notice)
	ShowTyping(on bool)
	ShowPrompt(p Prompt)
	ShowIntroForm(questions []intro.Question)
	ShowFieldErrors(errs intro.FieldErrors)
	ClearMessages()
	SetBadge(unread int)
}
