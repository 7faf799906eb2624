// ABOUTME: Tests for fake backend expiry, bot silence and request recording
// ABOUTME: Drives the handler directly through httptest recorders

package fakebackend

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-widget/internal/backend"
	"github.com/2389/coven-widget/internal/logging"
)

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestServer_ExpiresAfterInactivity(t *testing.T) {
	s := New(logging.Discard())
	s.AddWidget("wk", backend.WidgetConfig{})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	s.SetThresholds(25*time.Minute, 30*time.Minute)
	id := s.CreateConversationFor("v1")

	now = now.Add(26 * time.Minute)
	w := doJSON(t, s, http.MethodGet, "/widget/wk/conversations/"+string(id)+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report backend.StatusReport
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.True(t, report.IsWarningThreshold)
	assert.Equal(t, backend.StatusActive, report.Status)

	now = now.Add(5 * time.Minute)
	w = doJSON(t, s, http.MethodGet, "/widget/wk/conversations/"+string(id)+"/status", nil)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.Equal(t, backend.StatusExpired, report.Status)
	assert.True(t, report.IsExpired)
	assert.False(t, report.IsWarningThreshold)
}

func TestServer_BotSilentAfterHandoff(t *testing.T) {
	s := New(logging.Discard())
	s.AddWidget("wk", backend.WidgetConfig{})
	id := s.CreateConversationFor("v1")
	s.SetHandoverStatus(backend.HandoverSuccess)

	w := doJSON(t, s, http.MethodPost, "/handover/request", backend.HandoverRequest{ConversationID: id})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPost, "/widget/wk/message", backend.SendMessageRequest{Text: "hi", ConversationID: id})
	require.Equal(t, http.StatusOK, w.Code)
	var reply backend.BotReply
	require.NoError(t, json.NewDecoder(w.Body).Decode(&reply))
	assert.Empty(t, reply.Response)
}

func TestServer_AddMessageAssignsIDs(t *testing.T) {
	s := New(logging.Discard())
	id := s.CreateConversationFor("v1")

	a := s.AddMessage(id, backend.Message{Type: backend.MessageHuman, Text: "hello from Sam"})
	b := s.AddMessage(id, backend.Message{Type: backend.MessageSystem, Text: "conversation_stopped"})
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestServer_InvalidBody(t *testing.T) {
	s := New(logging.Discard())
	s.AddWidget("wk", backend.WidgetConfig{})

	req := httptest.NewRequest(http.MethodPost, "/widget/wk/conversation", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_RecordsRequests(t *testing.T) {
	s := New(logging.Discard())
	s.AddWidget("wk", backend.WidgetConfig{})

	doJSON(t, s, http.MethodGet, "/widget/wk/config", nil)
	doJSON(t, s, http.MethodGet, "/widget/wk/config", nil)
	assert.Equal(t, 2, s.CountRequests(http.MethodGet, "/widget/wk/config"))
	assert.Len(t, s.Requests(), 2)
}
