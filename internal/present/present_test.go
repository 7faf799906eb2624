// ABOUTME: Tests for the console presenter, recorder and markdown rendering
// ABOUTME: Console output is checked with colors disabled

package present

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/2389/coven-widget/internal/intro"
)

func TestRenderHTML(t *testing.T) {
	got := RenderHTML("We're open **9 to 5**. See https://example.com")
	assert.Contains(t, got, "<strong>9 to 5</strong>")
	assert.Contains(t, got, `<a href="https://example.com">`)
}

func TestRenderHTML_EscapesRawHTML(t *testing.T) {
	got := RenderHTML(`<script>alert(1)</script>`)
	assert.NotContains(t, got, "<script>")
}

func TestHTML_Transcript(t *testing.T) {
	var buf bytes.Buffer
	h := NewHTML(&buf)
	h.ShowMessage(Message{ID: "m1", Role: RoleBot, Author: "Coven", Text: "Try **Pricing**", Suggestions: []string{"Pricing", "<Hours>"}})
	h.ShowMessage(Message{Role: RoleVisitor, Text: "what about *this*? <i>"})
	h.ShowMessage(Message{Role: RoleAgent, Author: "Sam & co", Text: "<script>x</script>hello"})
	h.ShowNotice(Notice{Level: Error, Text: "We're having trouble"})
	h.ShowPrompt(Prompt{Kind: PromptHelpful, Text: "Was this helpful?"})
	h.ClearMessages()

	out := buf.String()
	assert.Contains(t, out, `<div class="message bot" data-id="m1">`)
	assert.Contains(t, out, "<strong>Pricing</strong>")
	assert.Contains(t, out, "<li>&lt;Hours&gt;</li>")
	assert.Contains(t, out, "<p>what about *this*? &lt;i&gt;</p>", "visitor text is not markdown")
	assert.Contains(t, out, `<span class="author">Sam &amp; co</span>`)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, `<p class="notice error">We&#39;re having trouble</p>`)
	assert.NotContains(t, out, "Was this helpful?")
	assert.Contains(t, out, `<hr class="cleared">`)
}

func TestTee_ForwardsToEach(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	tee := Tee{a, b}

	tee.ShowMessage(Message{Role: RoleBot, Text: "hi"})
	tee.ShowPrompt(Prompt{Kind: PromptReopen, Ref: "c1"})
	tee.ShowIntroForm([]intro.Question{{ID: "name"}})

	for _, r := range []*Recorder{a, b} {
		assert.Len(t, r.MessagesByRole(RoleBot), 1)
		assert.Len(t, r.PromptsOf(PromptReopen), 1)
		assert.Equal(t, 1, r.IntroForms())
	}
}

func TestConsole(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.ShowMessage(Message{Role: RoleBot, Author: "Coven", Text: "Hello!", Suggestions: []string{"Hours", "Pricing"}})
	c.ShowMessage(Message{Role: RoleAgent, Author: "Sam", Text: "Hi, Sam here"})
	c.ShowMessage(Message{Role: RoleVisitor, Text: "thanks"})
	c.ShowNotice(Notice{Level: Warning, Text: "Still there?"})
	c.ShowPrompt(Prompt{Kind: PromptHelpful, Text: "Was this helpful?", Choices: []string{"yes", "no"}})
	c.ShowIntroForm([]intro.Question{{ID: "name", Prompt: "Your name?", Required: true}})
	c.ShowFieldErrors(intro.FieldErrors{"name": "This field is required."})
	c.SetBadge(2)

	out := buf.String()
	assert.Contains(t, out, "Coven: Hello!")
	assert.Contains(t, out, "[1] Hours")
	assert.Contains(t, out, "Sam: Hi, Sam here")
	assert.Contains(t, out, "you: thanks")
	assert.Contains(t, out, "! Still there?")
	assert.Contains(t, out, "/helpful yes|no")
	assert.Contains(t, out, "name* Your name?")
	assert.Contains(t, out, "name: This field is required.")
	assert.Contains(t, out, "(2 unread)")
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.ShowMessage(Message{ID: "1", Role: RoleBot, Text: "a"})
	r.ShowMessage(Message{ID: "2", Role: RoleAgent, Text: "b"})
	r.ShowPrompt(Prompt{Kind: PromptReopen})
	r.SetBadge(3)

	assert.Len(t, r.MessagesByRole(RoleAgent), 1)
	assert.Len(t, r.PromptsOf(PromptReopen), 1)
	assert.Equal(t, 3, r.Badge())

	r.ClearMessages()
	assert.Empty(t, r.Messages())
	assert.Equal(t, 1, r.Clears())
}
