// ABOUTME: Input parsing for the harness slash commands
// ABOUTME: Also remembers which message the latest prompt of each kind refers to

package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/2389/coven-widget/internal/present"
)

// splitCommand splits "/name rest" into ("name", "rest"). Plain text yields an
// empty command.
func splitCommand(input string) (string, string) {
	if !strings.HasPrefix(input, "/") {
		return "", ""
	}
	name, rest, _ := strings.Cut(input[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

// parseAnswers reads "id=value; id=value" into a map. Values may contain '='.
func parseAnswers(args string) (map[string]string, error) {
	answers := make(map[string]string)
	for part := range strings.SplitSeq(args, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, value, ok := strings.Cut(part, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("expected id=value, got %q", part)
		}
		answers[id] = strings.TrimSpace(value)
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("usage: /intro id=value; id=value")
	}
	return answers, nil
}

// parseChoice maps args onto a yes/no pair of words.
func parseChoice(args, yes, no string) (bool, error) {
	switch strings.ToLower(args) {
	case yes, "y":
		return true, nil
	case no, "n":
		return false, nil
	default:
		return false, fmt.Errorf("answer %s or %s", yes, no)
	}
}

// tracker forwards to a presenter and records the ref of the latest prompt
// of each kind, so commands can answer it without typing message ids.
type tracker struct {
	present.Presenter

	mu   sync.Mutex
	last map[present.PromptKind]string
}

func newTracker(p present.Presenter) *tracker {
	return &tracker{Presenter: p, last: make(map[present.PromptKind]string)}
}

func (t *tracker) ShowPrompt(p present.Prompt) {
	t.mu.Lock()
	t.last[p.Kind] = p.Ref
	t.mu.Unlock()
	t.Presenter.ShowPrompt(p)
}

// Last returns the ref of the most recent prompt of kind.
func (t *tracker) Last(kind present.PromptKind) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last[kind]
}
