// ABOUTME: Tests for logger construction
// ABOUTME: Covers level parsing, JSON output, and colorized text output

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New("debug", "json", &buf)

	logger.With("component", "storage").Info("driver ready", "driver", "sqlite")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "driver ready", rec["msg"])
	assert.Equal(t, "storage", rec["component"])
	assert.Equal(t, "sqlite", rec["driver"])
}

func TestNew_TextRespectsLevel(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	logger := New("warn", "text", &buf)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.With("component", "msgsync").Warn("poll failed", "error", "boom")
	out := buf.String()
	assert.Contains(t, out, "WRN [msgsync] poll failed")
	assert.NotContains(t, out, "component=")
	assert.Contains(t, out, "error=boom")
}

func TestNew_TextQuotesValuesWithSpaces(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	logger := New("info", "text", &buf)

	logger.Info("send failed", "error", "connection refused", "attempt", 2)
	assert.Contains(t, buf.String(), `error="connection refused" attempt=2`)
}

func TestNew_TextBoundAttrsKeepTheirGroup(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	logger := New("info", "text", &buf)

	logger.With("visitor_id", "v1").WithGroup("conv").Info("adopted", "id", "c1")
	out := buf.String()
	assert.Contains(t, out, " visitor_id=v1")
	assert.Contains(t, out, " conv.id=c1")
}

func TestNew_TextGroups(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	logger := New("info", "", &buf)

	logger.WithGroup("widget").Info("opened", "key", "abc")
	assert.Contains(t, buf.String(), "widget.key=abc")
}
