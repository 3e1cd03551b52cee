// Package session holds the canonical in-process model of a user's chat
// sessions: the message transcript types, the session lifecycle, and the
// Store that owns the ordered session list and active-session pointer.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the referenced session id is not in the store.
	ErrNotFound = errors.New("session: not found")
	// ErrMessageNotFound indicates the referenced message id does not exist.
	ErrMessageNotFound = errors.New("session: message not found")
	// ErrNotEditable signals an edit attempt on a non-assistant message.
	ErrNotEditable = errors.New("session: only assistant messages are editable")
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Lifecycle tracks how a session relates to the remote store.
type Lifecycle string

const (
	// LifecycleProvisional marks a locally created session not yet confirmed
	// to exist remotely. At most one provisional session exists at a time.
	LifecycleProvisional Lifecycle = "provisional"
	// LifecyclePersisted marks a session confirmed remotely; its id is the
	// remote-assigned identifier. Persisted sessions never revert.
	LifecyclePersisted Lifecycle = "persisted"
	// LifecycleEphemeral marks a session excluded from all persistence,
	// local and remote. It lives only for the current runtime.
	LifecycleEphemeral Lifecycle = "ephemeral"
)

// Attachment references a file sent alongside a message. Only the metadata
// travels through the engine; payload upload is the transport's concern.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
}

// Message is a single transcript entry. Messages are immutable once
// appended, with one exception: assistant text may be replaced in place
// through Store.EditAssistantMessage.
type Message struct {
	ID         string      `json:"id"`
	Sender     Sender      `json:"sender"`
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`
	// Error marks a synthetic assistant message standing in for a failed
	// send, so the UI can render it distinctly.
	Error     bool      `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage mints a message with a fresh id and the current timestamp.
func NewMessage(sender Sender, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// Session is one conversation: an id, a display title, the transcript, and
// the lifecycle tag that drives sync behavior.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Lifecycle Lifecycle `json:"lifecycle"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultTitle is the display title of a chat that has no messages yet. It
// is presentation only: lifecycle, not the title, marks a session as unsent.
const DefaultTitle = "New Chat"

// NewProvisional creates the local "new chat" slot with a fresh local id.
func NewProvisional() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Lifecycle: LifecycleProvisional,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewEphemeral creates a transient session that never touches persistence.
func NewEphemeral() *Session {
	s := NewProvisional()
	s.Lifecycle = LifecycleEphemeral
	return s
}

// Clone deep-copies the session and its transcript.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Messages = CloneMessages(s.Messages)
	return &clone
}

// CloneMessage deep-copies a single message.
func CloneMessage(msg Message) Message {
	clone := msg
	if msg.Attachment != nil {
		att := *msg.Attachment
		clone.Attachment = &att
	}
	return clone
}

// CloneMessages deep-copies a transcript slice.
func CloneMessages(msgs []Message) []Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, msg := range msgs {
		out[i] = CloneMessage(msg)
	}
	return out
}
