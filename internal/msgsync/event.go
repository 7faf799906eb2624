// ABOUTME: Structured system events carried in system message text
// ABOUTME: Falls back to plain text when the message is not a JSON event

package msgsync

import (
	"encoding/json"
	"strings"

	"github.com/2389/coven-widget/internal/backend"
)

// Known structured event names.
const (
	// EventConversationStopped means an agent ended the chat; the visitor may
	// reactivate it or close it.
	EventConversationStopped = "conversation_stopped"
	// EventAgentJoined announces the agent who took over.
	EventAgentJoined = "agent_joined"
)

// Event is a system message, structured when its text is a JSON object with
// an "event" field.
type Event struct {
	Name    string         // empty for plain-text system messages
	Text    string         // display text
	Data    map[string]any // remaining JSON fields
	Message backend.Message
}

// Structured reports whether the message carried a JSON event.
func (e Event) Structured() bool { return e.Name != "" }

// ParseEvent interprets a system message.
func ParseEvent(msg backend.Message) Event {
	ev := Event{Text: msg.Text, Message: msg}

	trimmed := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(trimmed, "{") {
		return ev
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(trimmed), &data); err != nil {
		return ev
	}
	name, _ := data["event"].(string)
	if name == "" {
		return ev
	}
	delete(data, "event")

	ev.Name = name
	ev.Data = data
	ev.Text = ""
	if text, ok := data["message"].(string); ok {
		ev.Text = text
	}
	return ev
}
