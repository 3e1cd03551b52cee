package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ranazonai/rtichat-go/pkg/session"
)

// AnthropicClient is the Anthropic counterpart of OpenAIClient: a
// backendless adapter that keeps session state in memory and asks the model
// for each assistant turn.
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	system    string
	state     *directState
}

// AnthropicOption customizes an AnthropicClient.
type AnthropicOption func(*AnthropicClient)

// WithAnthropicModel overrides the completion model.
func WithAnthropicModel(model anthropic.Model) AnthropicOption {
	return func(c *AnthropicClient) { c.model = model }
}

// WithAnthropicMaxTokens bounds assistant reply length.
func WithAnthropicMaxTokens(n int64) AnthropicOption {
	return func(c *AnthropicClient) { c.maxTokens = n }
}

// WithAnthropicSystemPrompt overrides the assistant persona.
func WithAnthropicSystemPrompt(prompt string) AnthropicOption {
	return func(c *AnthropicClient) { c.system = prompt }
}

// NewAnthropicClient builds a backendless adapter authenticated with apiKey.
func NewAnthropicClient(apiKey string, opts ...AnthropicOption) *AnthropicClient {
	c := &AnthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.ModelClaudeSonnet4_20250514,
		maxTokens: 1024,
		system:    defaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = newDirectState(c.completeTranscript)
	return c
}

func (c *AnthropicClient) completeTranscript(ctx context.Context, transcript []Message) (string, error) {
	msgs := make([]anthropic.MessageParam, 0, len(transcript))
	for _, msg := range transcript {
		block := anthropic.NewTextBlock(msg.Text)
		if msg.Sender == session.SenderAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: c.system}},
		Messages:  msgs,
	})
	if err != nil {
		return "", fmt.Errorf("%w: anthropic completion: %v", ErrUnavailable, err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: anthropic returned no text content", ErrRejected)
	}
	return sb.String(), nil
}

// List implements Client.
func (c *AnthropicClient) List(ctx context.Context) ([]SessionSummary, error) {
	return c.state.List(ctx)
}

// Create implements Client.
func (c *AnthropicClient) Create(ctx context.Context, title string) (SessionSummary, error) {
	return c.state.Create(ctx, title)
}

// Messages implements Client.
func (c *AnthropicClient) Messages(ctx context.Context, id string) ([]Message, error) {
	return c.state.Messages(ctx, id)
}

// Send implements Client.
func (c *AnthropicClient) Send(ctx context.Context, sessionID, text string, attachment *session.Attachment) (SendResult, error) {
	return c.state.Send(ctx, sessionID, text, attachment)
}

// Delete implements Client.
func (c *AnthropicClient) Delete(ctx context.Context, id string) error {
	return c.state.Delete(ctx, id)
}

var _ Client = (*AnthropicClient)(nil)
