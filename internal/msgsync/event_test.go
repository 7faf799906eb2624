// ABOUTME: Tests for structured system event parsing
// ABOUTME: Plain text and JSON payloads

package msgsync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/coven-widget/internal/backend"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantName string
		wantText string
	}{
		{"structured", `{"event":"agent_joined","message":"Sam joined","agent":"Sam"}`, EventAgentJoined, "Sam joined"},
		{"plain", "The agent is typing", "", "The agent is typing"},
		{"json without event", `{"foo":"bar"}`, "", `{"foo":"bar"}`},
		{"broken json", `{"event":`, "", `{"event":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ParseEvent(backend.Message{ID: "1", Type: backend.MessageSystem, Text: tt.text})
			assert.Equal(t, tt.wantName, ev.Name)
			assert.Equal(t, tt.wantText, ev.Text)
		})
	}
}

func TestParseEvent_KeepsData(t *testing.T) {
	ev := ParseEvent(backend.Message{Text: `{"event":"agent_joined","agent":"Sam"}`})
	assert.Equal(t, "Sam", ev.Data["agent"])
	assert.NotContains(t, ev.Data, "event")
}
