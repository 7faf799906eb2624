// ABOUTME: Markdown to HTML conversion and an HTML transcript presenter
// ABOUTME: Raw HTML in message text is escaped, not passed through

package present

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/coven-widget/internal/intro"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Linkify))

// RenderHTML converts message markdown to an HTML fragment. On conversion
// failure the text is returned escaped inside a paragraph.
func RenderHTML(text string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "<p>" + html.EscapeString(text) + "</p>"
	}
	return buf.String()
}

// HTML writes the conversation as HTML fragments, one element per message
// or notice. Bot and agent messages are markdown; visitor and system text is
// escaped verbatim. Prompts, forms and the badge are interactive and not
// part of a transcript.
type HTML struct {
	mu  sync.Mutex
	out io.Writer
}

// NewHTML creates an HTML transcript presenter writing to out.
func NewHTML(out io.Writer) *HTML {
	return &HTML{out: out}
}

func (h *HTML) ShowMessage(m Message) {
	var body string
	switch m.Role {
	case RoleBot, RoleAgent:
		body = RenderHTML(m.Text)
	default:
		body = "<p>" + html.EscapeString(m.Text) + "</p>\n"
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(h.out, "<div class=\"message %s\"", m.Role)
	if m.ID != "" {
		fmt.Fprintf(h.out, " data-id=\"%s\"", html.EscapeString(m.ID))
	}
	if !m.At.IsZero() {
		fmt.Fprintf(h.out, " data-at=\"%s\"", m.At.UTC().Format("2006-01-02T15:04:05Z"))
	}
	fmt.Fprintln(h.out, ">")
	if m.Author != "" {
		fmt.Fprintf(h.out, "<span class=\"author\">%s</span>\n", html.EscapeString(m.Author))
	}
	io.WriteString(h.out, body)
	if len(m.Suggestions) > 0 {
		io.WriteString(h.out, "<ul class=\"suggestions\">\n")
		for _, s := range m.Suggestions {
			fmt.Fprintf(h.out, "<li>%s</li>\n", html.EscapeString(s))
		}
		io.WriteString(h.out, "</ul>\n")
	}
	io.WriteString(h.out, "</div>\n")
}

func (h *HTML) ShowNotice(n Notice) {
	level := "info"
	switch n.Level {
	case Warning:
		level = "warning"
	case Error:
		level = "error"
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.out, "<p class=\"notice %s\">%s</p>\n", level, html.EscapeString(n.Text))
}

func (h *HTML) ClearMessages() {
	h.mu.Lock()
	defer h.mu.Unlock()
	io.WriteString(h.out, "<hr class=\"cleared\">\n")
}

func (h *HTML) ShowTyping(bool)                   {}
func (h *HTML) ShowPrompt(Prompt)                 {}
func (h *HTML) ShowIntroForm([]intro.Question)    {}
func (h *HTML) ShowFieldErrors(intro.FieldErrors) {}
func (h *HTML) SetBadge(int)                      {}
