// ABOUTME: Intake form state machine: NotStarted, Active, Complete
// ABOUTME: Tracks answers and derives the visitor's contact info

package intro

import (
	"maps"
	"sync"

	"github.com/2389/coven-widget/internal/backend"
)

// State is the engine's position in the intake flow.
type State int

const (
	NotStarted State = iota
	Active
	Complete
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Active:
		return "active"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// QuestionType is the input kind of a question.
type QuestionType string

const (
	TypeText     QuestionType = "text"
	TypeEmail    QuestionType = "email"
	TypeTel      QuestionType = "tel"
	TypeSelect   QuestionType = "select"
	TypeTextarea QuestionType = "textarea"
)

// Question is one configured intake question.
type Question struct {
	ID       string
	Prompt   string
	Required bool
	Type     QuestionType
	Options  []string
}

// QuestionsFromConfig converts the backend's question list. Unknown types are
// treated as text.
func QuestionsFromConfig(in []backend.IntroQuestion) []Question {
	out := make([]Question, 0, len(in))
	for _, q := range in {
		t := QuestionType(q.Type)
		switch t {
		case TypeText, TypeEmail, TypeTel, TypeSelect, TypeTextarea:
		default:
			t = TypeText
		}
		out = append(out, Question{
			ID:       q.ID,
			Prompt:   q.Prompt,
			Required: q.Required,
			Type:     t,
			Options:  q.Options,
		})
	}
	return out
}

// ContactInfo is derived from the answers; it is never stored on its own.
type ContactInfo struct {
	Name  string
	Email string
	Phone string
	// Reason is what the visitor said they need help with.
	Reason string
}

// Empty reports whether nothing is known about the visitor.
func (c ContactInfo) Empty() bool {
	return c == ContactInfo{}
}

// Engine is the intake state machine for one conversation.
type Engine struct {
	mu        sync.Mutex
	questions []Question
	state     State
	answers   map[string]string
	// settled is set when answers were accepted or restored, as opposed to
	// an engine that completed only because it had no questions.
	settled bool
}

// New creates an engine for the given questions.
func New(questions []Question) *Engine {
	return &Engine{
		questions: questions,
		answers:   make(map[string]string),
	}
}

// Questions returns the configured questions.
func (e *Engine) Questions() []Question {
	return e.questions
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Begin starts the flow for a conversation. priorCompleted is the backend's
// intro_completed flag for it. A Complete engine stays Complete.
func (e *Engine) Begin(priorCompleted bool) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.state == Complete:
	case priorCompleted || len(e.questions) == 0:
		e.state = Complete
	default:
		e.state = Active
	}
	return e.state
}

// Restore marks the flow complete with answers the backend already holds.
func (e *Engine) Restore(data map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = Complete
	e.settled = true
	maps.Copy(e.answers, data)
}

// Settled reports whether the visitor's intake is known: answers were
// submitted or restored from the backend.
func (e *Engine) Settled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settled
}

// Submit validates answers. On success the engine becomes Complete and the
// derived contact info is returned; otherwise the error is a FieldErrors and
// the engine stays Active.
func (e *Engine) Submit(answers map[string]string) (ContactInfo, error) {
	normalized, errs := e.validate(answers)
	if len(errs) > 0 {
		return ContactInfo{}, errs
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.answers = normalized
	e.state = Complete
	e.settled = true
	return e.contactLocked(), nil
}

// Validate checks answers without changing state.
func (e *Engine) Validate(answers map[string]string) FieldErrors {
	_, errs := e.validate(answers)
	return errs
}

// Answers returns a copy of the accepted answers.
func (e *Engine) Answers() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.answers)
}

// Contact returns the contact info derived from the accepted answers.
func (e *Engine) Contact() ContactInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contactLocked()
}

func (e *Engine) contactLocked() ContactInfo {
	var c ContactInfo
	for _, q := range e.questions {
		v := e.answers[q.ID]
		if v == "" {
			continue
		}
		switch kindOf(q) {
		case kindName:
			if c.Name == "" {
				c.Name = v
			}
		case kindEmail:
			if c.Email == "" {
				c.Email = v
			}
		case kindPhone:
			if c.Phone == "" {
				c.Phone = v
			}
		case kindReason:
			if c.Reason == "" {
				c.Reason = v
			}
		}
	}
	// Answers restored from the backend may use conventional keys without a
	// matching configured question.
	for key, dst := range map[string]*string{"name": &c.Name, "email": &c.Email, "phone": &c.Phone, "reason": &c.Reason} {
		if *dst == "" {
			*dst = e.answers[key]
		}
	}
	return c
}
