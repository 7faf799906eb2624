// ABOUTME: Wire types for the widget backend REST contract
// ABOUTME: Conversations, status reports, messages, bot replies, and handover results

package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ID is a backend-assigned identifier. The backend emits ids as JSON numbers
// or strings depending on the table, so both decode to the same form.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Status is a conversation's lifecycle state as the backend reports it.
type Status string

const (
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
	StatusExpired Status = "expired"
)

// MessageType identifies who produced a message.
type MessageType string

const (
	MessageUser   MessageType = "user"
	MessageBot    MessageType = "bot"
	MessageHuman  MessageType = "human"
	MessageSystem MessageType = "system"
)

// Message is one entry of a conversation's history.
type Message struct {
	ID        ID          `json:"id"`
	Type      MessageType `json:"message_type"`
	Text      string      `json:"message_text"`
	AgentName string      `json:"agent_name,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Conversation is the backend's record of one visitor conversation.
type Conversation struct {
	ID             ID                `json:"id"`
	Status         Status            `json:"status"`
	IsExpired      bool              `json:"is_expired"`
	IntroCompleted bool              `json:"intro_completed"`
	IntroData      map[string]string `json:"intro_data,omitempty"`
	AgentHandoff   bool              `json:"agent_handoff"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivity   time.Time         `json:"last_activity"`
}

// StatusReport is the answer of the status endpoint.
type StatusReport struct {
	Status             Status            `json:"status"`
	IsExpired          bool              `json:"is_expired"`
	IsWarningThreshold bool              `json:"is_warning_threshold"`
	MinutesInactive    float64           `json:"minutes_inactive"`
	IntroCompleted     bool              `json:"intro_completed"`
	IntroData          map[string]string `json:"intro_data,omitempty"`
	AgentHandoff       bool              `json:"agent_handoff"`
	VisitorEmail       string            `json:"visitor_email,omitempty"`
}

// IntroQuestion is one configured intake question.
type IntroQuestion struct {
	ID       string   `json:"id"`
	Prompt   string   `json:"question"`
	Required bool     `json:"required"`
	Type     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
}

// WidgetConfig is the per-widget configuration served by the backend.
type WidgetConfig struct {
	BotName        string          `json:"bot_name"`
	BotAvatarURL   string          `json:"bot_avatar_url,omitempty"`
	WelcomeMessage string          `json:"welcome_message"`
	IntroEnabled   bool            `json:"intro_enabled"`
	IntroQuestions []IntroQuestion `json:"intro_questions"`
	Compliance     Compliance      `json:"compliance"`
}

// Compliance holds privacy flags the widget must honor.
type Compliance struct {
	ConsentRequired bool   `json:"consent_required"`
	PrivacyNotice   string `json:"privacy_notice,omitempty"`
	EmailSummaries  bool   `json:"email_summaries"`
}

// CreateConversationRequest seeds a new conversation.
type CreateConversationRequest struct {
	VisitorSessionID string `json:"visitor_session_id"`
	TabSessionID     string `json:"tab_session_id,omitempty"`
	VisitorName      string `json:"visitor_name,omitempty"`
	VisitorEmail     string `json:"visitor_email,omitempty"`
	VisitorPhone     string `json:"visitor_phone,omitempty"`
}

// CreateConversationResponse carries the new conversation id.
type CreateConversationResponse struct {
	ConversationID ID `json:"conversation_id"`
}

// SendMessageRequest is a visitor message.
type SendMessageRequest struct {
	Text           string `json:"message_text"`
	ConversationID ID     `json:"conversation_id"`
}

// BotReply is the backend's synchronous answer to a visitor message.
type BotReply struct {
	MessageID        ID       `json:"message_id"`
	Response         string   `json:"response"`
	Confidence       float64  `json:"confidence_score"`
	HandoffRequested bool     `json:"handoff_requested"`
	Suggestions      []string `json:"suggestions,omitempty"`
}

// IntroDataRequest submits intake answers.
type IntroDataRequest struct {
	ConversationID ID                `json:"conversation_id"`
	IntroData      map[string]string `json:"intro_data"`
}

// FeedbackRequest rates a bot answer.
type FeedbackRequest struct {
	ConversationID ID   `json:"conversation_id"`
	MessageID      ID   `json:"message_id"`
	Helpful        bool `json:"helpful"`
}

// ReactivateAction is the visitor's choice after an agent stopped the chat.
type ReactivateAction string

const (
	ActionReactivate ReactivateAction = "reactivate"
	ActionClose      ReactivateAction = "close"
)

// HandoverRequest asks for a live agent.
type HandoverRequest struct {
	WidgetKey      string `json:"widget_key"`
	ConversationID ID     `json:"conversation_id"`
	Method         string `json:"method"`
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// HandoverStatus is the backend's verdict on a handover request.
type HandoverStatus string

const (
	HandoverSuccess   HandoverStatus = "success"
	HandoverAgentBusy HandoverStatus = "agent_busy"
	HandoverQueued    HandoverStatus = "queued"
)

// HandoverResponse is the answer of the handover endpoint.
type HandoverResponse struct {
	Status  HandoverStatus `json:"status"`
	Message string         `json:"message,omitempty"`
}
