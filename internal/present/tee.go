// ABOUTME: Presenter that forwards every call to several presenters in order
// ABOUTME: Lets the harness draw to the terminal and keep a transcript at once

package present

import "github.com/2389/coven-widget/internal/intro"

// Tee forwards to each presenter in order.
type Tee []Presenter

func (t Tee) ShowMessage(m Message) {
	for _, p := range t {
		p.ShowMessage(m)
	}
}

func (t Tee) ShowNotice(n Notice) {
	for _, p := range t {
		p.ShowNotice(n)
	}
}

func (t Tee) ShowTyping(on bool) {
	for _, p := range t {
		p.ShowTyping(on)
	}
}

func (t Tee) ShowPrompt(pr Prompt) {
	for _, p := range t {
		p.ShowPrompt(pr)
	}
}

func (t Tee) ShowIntroForm(questions []intro.Question) {
	for _, p := range t {
		p.ShowIntroForm(questions)
	}
}

func (t Tee) ShowFieldErrors(errs intro.FieldErrors) {
	for _, p := range t {
		p.ShowFieldErrors(errs)
	}
}

func (t Tee) ClearMessages() {
	for _, p := range t {
		p.ClearMessages()
	}
}

func (t Tee) SetBadge(unread int) {
	for _, p := range t {
		p.SetBadge(unread)
	}
}
