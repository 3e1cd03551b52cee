// Package remote defines the contract with the authoritative conversation
// store and the adapters that implement it: the FileMyRTI REST backend, and
// backendless adapters that talk to a model provider directly.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/ranazonai/rtichat-go/pkg/session"
)

var (
	// ErrUnavailable indicates the remote store could not be reached: a
	// transport failure or timeout. Retrying later may succeed.
	ErrUnavailable = errors.New("remote: unavailable")
	// ErrRejected indicates the remote store answered with a non-success
	// status; the request itself was refused.
	ErrRejected = errors.New("remote: rejected")
)

// SessionSummary is one entry of the remote session list.
type SessionSummary struct {
	ID        string
	Title     string
	UpdatedAt time.Time
}

// Message is one transcript entry as reported by the remote store. Local
// message ids are minted by the caller; the remote store only guarantees
// sender, text and timestamp.
type Message struct {
	Sender    session.Sender
	Text      string
	CreatedAt time.Time
}

// SendResult is the outcome of a successful send round-trip.
type SendResult struct {
	// SessionID is the id the remote store filed the exchange under. It
	// differs from the submitted id exactly when a provisional session was
	// just confirmed.
	SessionID     string
	AssistantText string
	MessageID     string
	// TopicRelated reports whether the backend classified the message as
	// on-topic for RTI assistance.
	TopicRelated bool
	// Suggestions carries optional follow-up prompts from the backend.
	Suggestions []string
}

// Client is the remote conversation store consumed by the sync coordinator.
// Implementations must be safe for concurrent use.
type Client interface {
	// List returns the user's sessions, most recently updated first.
	List(ctx context.Context) ([]SessionSummary, error)

	// Create registers a new remote session with the given title.
	Create(ctx context.Context, title string) (SessionSummary, error)

	// Messages fetches the full transcript of a session.
	Messages(ctx context.Context, id string) ([]Message, error)

	// Send submits a user message and returns the assistant's reply. An
	// empty sessionID asks the store to create the session implicitly.
	Send(ctx context.Context, sessionID, text string, attachment *session.Attachment) (SendResult, error)

	// Delete removes a session and its transcript.
	Delete(ctx context.Context, id string) error
}
