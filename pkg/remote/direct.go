package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ranazonai/rtichat-go/pkg/session"
)

// defaultSystemPrompt frames the assistant for the direct adapters, matching
// the backend's RTI assistant persona.
const defaultSystemPrompt = "You are an assistant that helps Indian citizens draft and file " +
	"Right to Information (RTI) applications. Answer questions about the RTI Act, " +
	"suggest which public authority to address, and draft applications on request."

// completeFunc produces the assistant reply for a transcript ending in the
// latest user message.
type completeFunc func(ctx context.Context, transcript []Message) (string, error)

type directSession struct {
	summary  SessionSummary
	messages []Message
}

// directState is the in-memory conversation bookkeeping shared by the
// provider-direct adapters. Sessions exist only for the process lifetime,
// mirroring the backend's behavior when its database is absent.
type directState struct {
	mu       sync.Mutex
	sessions map[string]*directSession
	complete completeFunc
	now      func() time.Time
}

func newDirectState(complete completeFunc) *directState {
	return &directState{
		sessions: make(map[string]*directSession),
		complete: complete,
		now:      time.Now,
	}
}

func (d *directState) List(_ context.Context) ([]SessionSummary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SessionSummary, 0, len(d.sessions))
	for _, sess := range d.sessions {
		out = append(out, sess.summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (d *directState) Create(_ context.Context, title string) (SessionSummary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	summary := SessionSummary{ID: uuid.NewString(), Title: title, UpdatedAt: d.now().UTC()}
	d.sessions[summary.ID] = &directSession{summary: summary}
	return summary, nil
}

func (d *directState) Messages(_ context.Context, id string) ([]Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sess, ok := d.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown session %s", ErrRejected, id)
	}
	out := make([]Message, len(sess.messages))
	copy(out, sess.messages)
	return out, nil
}

func (d *directState) Send(ctx context.Context, sessionID, text string, _ *session.Attachment) (SendResult, error) {
	d.mu.Lock()
	sess, ok := d.sessions[sessionID]
	if !ok {
		// An unknown client-supplied id is adopted as-is, so repeat sends
		// under the same id land in one conversation.
		id := sessionID
		if id == "" {
			id = uuid.NewString()
		}
		summary := SessionSummary{ID: id, Title: deriveDirectTitle(text), UpdatedAt: d.now().UTC()}
		sess = &directSession{summary: summary}
		d.sessions[summary.ID] = sess
	}
	now := d.now().UTC()
	transcript := append(append([]Message(nil), sess.messages...), Message{
		Sender:    session.SenderUser,
		Text:      text,
		CreatedAt: now,
	})
	d.mu.Unlock()

	reply, err := d.complete(ctx, transcript)
	if err != nil {
		return SendResult{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	sess.messages = append(transcript, Message{
		Sender:    session.SenderAssistant,
		Text:      reply,
		CreatedAt: d.now().UTC(),
	})
	sess.summary.UpdatedAt = d.now().UTC()
	return SendResult{
		SessionID:     sess.summary.ID,
		AssistantText: reply,
		MessageID:     uuid.NewString(),
		TopicRelated:  true,
	}, nil
}

func (d *directState) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sessions[id]; !ok {
		return fmt.Errorf("%w: unknown session %s", ErrRejected, id)
	}
	delete(d.sessions, id)
	return nil
}

// deriveDirectTitle mirrors the backend's implicit-create rule: the first
// message, cut at fifty characters.
func deriveDirectTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= 50 {
		return text
	}
	return string(runes[:50]) + "..."
}
