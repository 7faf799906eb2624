// ABOUTME: Terminal presenter writing colorized lines to an io.Writer
// ABOUTME: Used by the coven-widget harness

package present

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/coven-widget/internal/intro"
)

// Console renders to a terminal.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	bot    *color.Color
	agent  *color.Color
	you    *color.Color
	dim    *color.Color
	yellow *color.Color
	red    *color.Color
	cyan   *color.Color
}

// NewConsole creates a console presenter writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{
		out:    out,
		bot:    color.New(color.FgCyan, color.Bold),
		agent:  color.New(color.FgGreen, color.Bold),
		you:    color.New(color.FgBlue, color.Bold),
		dim:    color.New(color.Faint, color.Italic),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
		cyan:   color.New(color.FgCyan),
	}
}

func (c *Console) ShowMessage(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var label string
	switch m.Role {
	case RoleVisitor:
		label = c.you.Sprint("you")
	case RoleAgent:
		name := m.Author
		if name == "" {
			name = "agent"
		}
		label = c.agent.Sprint(name)
	case RoleSystem:
		fmt.Fprintf(c.out, "%s\n", c.dim.Sprint("* "+m.Text))
		return
	default:
		name := m.Author
		if name == "" {
			name = "bot"
		}
		label = c.bot.Sprint(name)
	}
	fmt.Fprintf(c.out, "%s: %s\n", label, m.Text)
	for i, s := range m.Suggestions {
		fmt.Fprintf(c.out, "  %s %s\n", c.cyan.Sprintf("[%d]", i+1), s)
	}
}

func (c *Console) ShowNotice(n Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch n.Level {
	case Warning:
		c.yellow.Fprintf(c.out, "! %s\n", n.Text)
	case Error:
		c.red.Fprintf(c.out, "x %s\n", n.Text)
	default:
		c.dim.Fprintf(c.out, "- %s\n", n.Text)
	}
}

func (c *Console) ShowTyping(on bool) {
	if !on {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dim.Fprintln(c.out, "...")
}

func (c *Console) ShowPrompt(p Prompt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%s %s\n", c.yellow.Sprint("?"), p.Text)
	if len(p.Choices) > 0 {
		fmt.Fprintf(c.out, "  %s\n", c.cyan.Sprintf("/%s %s", p.Kind, strings.Join(p.Choices, "|")))
	}
}

func (c *Console) ShowIntroForm(questions []intro.Question) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out, c.bot.Sprint("Before we start, a few quick questions:"))
	for _, q := range questions {
		req := ""
		if q.Required {
			req = c.red.Sprint("*")
		}
		fmt.Fprintf(c.out, "  %s%s %s", c.cyan.Sprint(q.ID), req, q.Prompt)
		if len(q.Options) > 0 {
			fmt.Fprintf(c.out, " (%s)", strings.Join(q.Options, ", "))
		}
		fmt.Fprintln(c.out)
	}
	fmt.Fprintln(c.out, c.dim.Sprint("  answer with: /intro id=value; id=value"))
}

func (c *Console) ShowFieldErrors(errs intro.FieldErrors) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range slices.Sorted(maps.Keys(errs)) {
		c.red.Fprintf(c.out, "  %s: %s\n", id, errs[id])
	}
}

func (c *Console) ClearMessages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dim.Fprintln(c.out, "--- conversation cleared ---")
}

func (c *Console) SetBadge(unread int) {
	if unread == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.yellow.Fprintf(c.out, "(%d unread)\n", unread)
}
