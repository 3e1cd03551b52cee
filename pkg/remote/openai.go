package remote

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ranazonai/rtichat-go/pkg/session"
)

// OpenAIClient implements Client directly against the OpenAI API, with no
// chat backend in between. Session ids are minted locally and transcripts
// live in memory for the process lifetime; it is the adapter used when the
// engine runs backendless.
type OpenAIClient struct {
	client openai.Client
	model  openai.ChatModel
	system string
	state  *directState
}

// OpenAIOption customizes an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithOpenAIModel overrides the completion model.
func WithOpenAIModel(model openai.ChatModel) OpenAIOption {
	return func(c *OpenAIClient) { c.model = model }
}

// WithOpenAISystemPrompt overrides the assistant persona.
func WithOpenAISystemPrompt(prompt string) OpenAIOption {
	return func(c *OpenAIClient) { c.system = prompt }
}

// NewOpenAIClient builds a backendless adapter authenticated with apiKey.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModelGPT4oMini,
		system: defaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = newDirectState(c.completeTranscript)
	return c
}

func (c *OpenAIClient) completeTranscript(ctx context.Context, transcript []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript)+1),
	}
	params.Messages = append(params.Messages, openai.SystemMessage(c.system))
	for _, msg := range transcript {
		if msg.Sender == session.SenderAssistant {
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Text))
		} else {
			params.Messages = append(params.Messages, openai.UserMessage(msg.Text))
		}
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: openai completion: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", ErrRejected)
	}
	return resp.Choices[0].Message.Content, nil
}

// List implements Client.
func (c *OpenAIClient) List(ctx context.Context) ([]SessionSummary, error) {
	return c.state.List(ctx)
}

// Create implements Client.
func (c *OpenAIClient) Create(ctx context.Context, title string) (SessionSummary, error) {
	return c.state.Create(ctx, title)
}

// Messages implements Client.
func (c *OpenAIClient) Messages(ctx context.Context, id string) ([]Message, error) {
	return c.state.Messages(ctx, id)
}

// Send implements Client.
func (c *OpenAIClient) Send(ctx context.Context, sessionID, text string, attachment *session.Attachment) (SendResult, error) {
	return c.state.Send(ctx, sessionID, text, attachment)
}

// Delete implements Client.
func (c *OpenAIClient) Delete(ctx context.Context, id string) error {
	return c.state.Delete(ctx, id)
}

var _ Client = (*OpenAIClient)(nil)
