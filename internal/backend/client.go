// ABOUTME: HTTP client for the widget backend REST API
// ABOUTME: JSON request/response helpers with transport vs API error classification

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrUnavailable wraps every failure to reach the backend at all.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")
)

// APIError is a non-2xx response other than 404.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// errorBody is the JSON error shape the backend uses.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client talks to one widget's backend endpoints.
type Client struct {
	baseURL   string
	widgetKey string
	token     string
	client    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets a bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// NewClient creates a client for the widget identified by widgetKey.
func NewClient(baseURL, widgetKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		widgetKey: widgetKey,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WidgetKey returns the key this client is bound to.
func (c *Client) WidgetKey() string { return c.widgetKey }

// Config fetches the widget configuration.
func (c *Client) Config(ctx context.Context) (*WidgetConfig, error) {
	var cfg WidgetConfig
	if err := c.do(ctx, http.MethodGet, c.widgetPath("config"), nil, &cfg); err != nil {
		return nil, fmt.Errorf("fetching widget config: %w", err)
	}
	return &cfg, nil
}

// CreateConversation starts a new conversation.
func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest) (ID, error) {
	var resp CreateConversationResponse
	if err := c.do(ctx, http.MethodPost, c.widgetPath("conversation"), req, &resp); err != nil {
		return "", fmt.Errorf("creating conversation: %w", err)
	}
	if resp.ConversationID == "" {
		return "", fmt.Errorf("creating conversation: empty conversation id")
	}
	return resp.ConversationID, nil
}

// FindByVisitor returns the visitor's current conversation, or nil when the
// backend knows none.
func (c *Client) FindByVisitor(ctx context.Context, visitorSessionID string) (*Conversation, error) {
	var resp struct {
		Conversation *Conversation `json:"conversation"`
	}
	err := c.do(ctx, http.MethodGet, c.widgetPath("conversation", "by-visitor", visitorSessionID), nil, &resp)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding conversation for visitor: %w", err)
	}
	return resp.Conversation, nil
}

// Status reports a conversation's lifecycle state.
func (c *Client) Status(ctx context.Context, id ID) (*StatusReport, error) {
	var report StatusReport
	if err := c.do(ctx, http.MethodGet, c.conversationPath(id, "status"), nil, &report); err != nil {
		return nil, fmt.Errorf("fetching conversation status: %w", err)
	}
	return &report, nil
}

// Messages returns a conversation's full history in backend order.
func (c *Client) Messages(ctx context.Context, id ID) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, c.conversationPath(id, "messages"), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}
	return resp.Messages, nil
}

// SendMessage posts a visitor message and returns the bot's reply.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*BotReply, error) {
	var reply BotReply
	if err := c.do(ctx, http.MethodPost, c.widgetPath("message"), req, &reply); err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}
	return &reply, nil
}

// SubmitIntro stores intake answers for a conversation.
func (c *Client) SubmitIntro(ctx context.Context, req IntroDataRequest) error {
	if err := c.do(ctx, http.MethodPost, c.widgetPath("intro-data"), req, nil); err != nil {
		return fmt.Errorf("submitting intro data: %w", err)
	}
	return nil
}

// Feedback rates a bot answer.
func (c *Client) Feedback(ctx context.Context, req FeedbackRequest) error {
	if err := c.do(ctx, http.MethodPost, c.widgetPath("feedback"), req, nil); err != nil {
		return fmt.Errorf("submitting feedback: %w", err)
	}
	return nil
}

// End closes a conversation.
func (c *Client) End(ctx context.Context, id ID) error {
	if err := c.do(ctx, http.MethodPost, c.conversationPath(id, "end"), struct{}{}, nil); err != nil {
		return fmt.Errorf("ending conversation: %w", err)
	}
	return nil
}

// Reopen moves a closed conversation back to active.
func (c *Client) Reopen(ctx context.Context, id ID) error {
	if err := c.do(ctx, http.MethodPost, c.conversationPath(id, "reopen"), struct{}{}, nil); err != nil {
		return fmt.Errorf("reopening conversation: %w", err)
	}
	return nil
}

// ReactivateOrClose answers an agent-stopped conversation.
func (c *Client) ReactivateOrClose(ctx context.Context, id ID, action ReactivateAction) error {
	body := struct {
		Action ReactivateAction `json:"action"`
	}{action}
	if err := c.do(ctx, http.MethodPost, c.conversationPath(id, "reactivate-or-close"), body, nil); err != nil {
		return fmt.Errorf("%s conversation: %w", action, err)
	}
	return nil
}

// RequestHandover asks for a live agent.
func (c *Client) RequestHandover(ctx context.Context, req HandoverRequest) (*HandoverResponse, error) {
	if req.WidgetKey == "" {
		req.WidgetKey = c.widgetKey
	}
	var resp HandoverResponse
	if err := c.do(ctx, http.MethodPost, "/handover/request", req, &resp); err != nil {
		return nil, fmt.Errorf("requesting handover: %w", err)
	}
	return &resp, nil
}

func (c *Client) widgetPath(parts ...string) string {
	segs := append([]string{"widget", c.widgetKey}, parts...)
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(segs, "/")
}

func (c *Client) conversationPath(id ID, action string) string {
	return c.widgetPath("conversations", string(id), action)
}

// do sends a JSON request and decodes a JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// handleErrorResponse extracts an error message from non-2xx responses.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	msg := strings.TrimSpace(string(data))
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil {
		switch {
		case eb.Error != "":
			msg = eb.Error
		case eb.Message != "":
			msg = eb.Message
		}
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	}
	if resp.StatusCode >= 500 {
		// The server is up but cannot serve; callers treat it like a
		// transport failure and retry on the next trigger.
		return fmt.Errorf("%w: %w", ErrUnavailable, &APIError{StatusCode: resp.StatusCode, Message: msg})
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
