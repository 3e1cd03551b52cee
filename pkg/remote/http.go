package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ranazonai/rtichat-go/pkg/session"
)

// DefaultTimeout bounds each backend round-trip. Assistant replies can take
// a while, so this is deliberately generous.
const DefaultTimeout = 30 * time.Second

// TokenProvider supplies the bearer token attached to every request. It is
// called per request so refreshed credentials are picked up automatically.
type TokenProvider func(ctx context.Context) (string, error)

// HTTPClient talks to the FileMyRTI chat backend. All responses except the
// send endpoint arrive in a {success, message, data} envelope.
type HTTPClient struct {
	baseURL string
	httpc   *http.Client
	token   TokenProvider
	log     zerolog.Logger
}

// HTTPOption customizes an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient substitutes the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.httpc = c }
}

// WithTokenProvider attaches bearer authentication to every request.
func WithTokenProvider(tp TokenProvider) HTTPOption {
	return func(h *HTTPClient) { h.token = tp }
}

// WithRequestLogger routes request diagnostics to the given logger.
func WithRequestLogger(logger zerolog.Logger) HTTPOption {
	return func(h *HTTPClient) { h.log = logger }
}

// NewHTTPClient builds a backend adapter rooted at baseURL, e.g.
// "https://api.filemyrti.example/api/v1".
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: DefaultTimeout},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type wireConversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type wireMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type wireAttachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
}

type sendRequest struct {
	Message        string          `json:"message"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Attachment     *wireAttachment `json:"attachment,omitempty"`
}

type sendResponse struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversation_id"`
	MessageID      string   `json:"message_id"`
	IsRTIRelated   bool     `json:"is_rti_related"`
	Suggestions    []string `json:"suggestions"`
}

// List implements Client.
func (h *HTTPClient) List(ctx context.Context) ([]SessionSummary, error) {
	var convs []wireConversation
	if err := h.doEnveloped(ctx, http.MethodGet, "/chat/conversations", nil, &convs); err != nil {
		return nil, err
	}
	out := make([]SessionSummary, len(convs))
	for i, c := range convs {
		out[i] = SessionSummary{ID: c.ID, Title: c.Title, UpdatedAt: c.UpdatedAt}
	}
	return out, nil
}

// Create implements Client.
func (h *HTTPClient) Create(ctx context.Context, title string) (SessionSummary, error) {
	var conv wireConversation
	body := map[string]string{"title": title}
	if err := h.doEnveloped(ctx, http.MethodPost, "/chat/conversations", body, &conv); err != nil {
		return SessionSummary{}, err
	}
	return SessionSummary{ID: conv.ID, Title: conv.Title, UpdatedAt: conv.UpdatedAt}, nil
}

// Messages implements Client.
func (h *HTTPClient) Messages(ctx context.Context, id string) ([]Message, error) {
	var msgs []wireMessage
	path := "/chat/conversations/" + url.PathEscape(id) + "/messages"
	if err := h.doEnveloped(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{
			Sender:    senderFromWire(m.Sender),
			Text:      m.Content,
			CreatedAt: m.CreatedAt,
		}
	}
	return out, nil
}

// Send implements Client. The send endpoint answers directly, without the
// envelope the other endpoints use.
func (h *HTTPClient) Send(ctx context.Context, sessionID, text string, attachment *session.Attachment) (SendResult, error) {
	req := sendRequest{Message: text, ConversationID: sessionID}
	if attachment != nil {
		req.Attachment = &wireAttachment{Name: attachment.Name, MIMEType: attachment.MIMEType}
	}
	var resp sendResponse
	if err := h.do(ctx, http.MethodPost, "/chat/send", req, &resp); err != nil {
		return SendResult{}, err
	}
	return SendResult{
		SessionID:     resp.ConversationID,
		AssistantText: resp.Message,
		MessageID:     resp.MessageID,
		TopicRelated:  resp.IsRTIRelated,
		Suggestions:   resp.Suggestions,
	}, nil
}

// Delete implements Client.
func (h *HTTPClient) Delete(ctx context.Context, id string) error {
	path := "/chat/conversations/" + url.PathEscape(id)
	return h.doEnveloped(ctx, http.MethodDelete, path, nil, nil)
}

// doEnveloped performs a request whose response uses the backend's
// {success, message, data} envelope and decodes data into out.
func (h *HTTPClient) doEnveloped(ctx context.Context, method, path string, body, out any) error {
	var env apiEnvelope
	if err := h.do(ctx, method, path, body, &env); err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("%w: %s %s: %s", ErrRejected, method, path, env.Message)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s %s: decode data: %v", ErrRejected, method, path, err)
	}
	return nil
}

func (h *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("remote: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != nil {
		token, err := h.token(ctx)
		if err != nil {
			return fmt.Errorf("%w: token: %v", ErrUnavailable, err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := h.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()
	h.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("remote: request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readErrorDetail(resp.Body)
		return fmt.Errorf("%w: %s %s: status %d%s", ErrRejected, method, path, resp.StatusCode, detail)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: decode response: %v", ErrRejected, method, path, err)
	}
	return nil
}

func readErrorDetail(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&payload); err != nil {
		return ""
	}
	switch {
	case payload.Message != "":
		return ": " + payload.Message
	case payload.Detail != "":
		return ": " + payload.Detail
	}
	return ""
}

func senderFromWire(sender string) session.Sender {
	// The backend historically labels assistant messages "bot".
	if sender == "bot" || sender == string(session.SenderAssistant) {
		return session.SenderAssistant
	}
	return session.SenderUser
}

var _ Client = (*HTTPClient)(nil)
