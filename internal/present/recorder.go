// ABOUTME: Presenter that records every call for assertions
// ABOUTME: Safe for concurrent use from timer goroutines

package present

import (
	"sync"

	"github.com/2389/coven-widget/internal/intro"
)

// Recorder stores what would have been shown.
type Recorder struct {
	mu          sync.Mutex
	messages    []Message
	notices     []Notice
	prompts     []Prompt
	forms       int
	fieldErrors []intro.FieldErrors
	clears      int
	badge       int
	typing      bool
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) ShowMessage(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *Recorder) ShowNotice(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *Recorder) ShowTyping(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typing = on
}

func (r *Recorder) ShowPrompt(p Prompt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, p)
}

func (r *Recorder) ShowIntroForm(_ []intro.Question) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms++
}

func (r *Recorder) ShowFieldErrors(errs intro.FieldErrors) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fieldErrors = append(r.fieldErrors, errs)
}

// ClearMessages drops the recorded messages, as a real widget would empty
// its message list.
func (r *Recorder) ClearMessages() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
	r.clears++
}

func (r *Recorder) SetBadge(unread int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.badge = unread
}

// Messages returns the messages currently displayed.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// MessagesByRole returns displayed messages of one role.
func (r *Recorder) MessagesByRole(role Role) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

// Notices returns every notice shown.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Prompts returns every prompt shown.
func (r *Recorder) Prompts() []Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Prompt(nil), r.prompts...)
}

// PromptsOf returns prompts of one kind.
func (r *Recorder) PromptsOf(kind PromptKind) []Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Prompt
	for _, p := range r.prompts {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// IntroForms counts how many times the intake form was shown.
func (r *Recorder) IntroForms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forms
}

// FieldErrors returns every validation error set shown.
func (r *Recorder) FieldErrors() []intro.FieldErrors {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]intro.FieldErrors(nil), r.fieldErrors...)
}

// Clears counts ClearMessages calls.
func (r *Recorder) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears
}

// Badge returns the last unread count set.
func (r *Recorder) Badge() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.badge
}

// Typing reports the last typing indicator state.
func (r *Recorder) Typing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typing
}
