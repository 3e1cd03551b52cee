package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranazonai/rtichat-go/pkg/session"
)

func TestHTTPClientListDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/chat/conversations", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"message": "Conversations retrieved successfully",
			"data": []map[string]any{
				{"id": "s1", "title": "Passport RTI", "updated_at": "2026-03-14T09:26:53Z"},
			},
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithTokenProvider(func(context.Context) (string, error) {
		return "tok-123", nil
	}))
	got, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, "Passport RTI", got[0].Title)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC), got[0].UpdatedAt)
}

func TestHTTPClientSendRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/send", r.URL.Path)
		var req sendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "What is RTI?", req.Message)
		assert.Empty(t, req.ConversationID)
		require.NotNil(t, req.Attachment)
		assert.Equal(t, "draft.pdf", req.Attachment.Name)

		_ = json.NewEncoder(w).Encode(sendResponse{
			Message:        "RTI is...",
			ConversationID: "s2",
			MessageID:      "m9",
			IsRTIRelated:   true,
			Suggestions:    []string{"File an RTI"},
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	res, err := client.Send(context.Background(), "", "What is RTI?", &session.Attachment{Name: "draft.pdf", MIMEType: "application/pdf"})
	require.NoError(t, err)
	assert.Equal(t, "s2", res.SessionID)
	assert.Equal(t, "RTI is...", res.AssistantText)
	assert.True(t, res.TopicRelated)
	assert.Equal(t, []string{"File an RTI"}, res.Suggestions)
}

func TestHTTPClientMessagesMapsBotSender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/conversations/s1/messages", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []map[string]any{
				{"id": "m1", "sender": "user", "content": "hi", "created_at": "2026-03-14T09:00:00Z"},
				{"id": "m2", "sender": "bot", "content": "hello", "created_at": "2026-03-14T09:00:01Z"},
			},
		})
	}))
	defer srv.Close()

	msgs, err := NewHTTPClient(srv.URL).Messages(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, session.SenderUser, msgs[0].Sender)
	assert.Equal(t, session.SenderAssistant, msgs[1].Sender)
}

func TestHTTPClientNetworkFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse all connections

	_, err := NewHTTPClient(srv.URL).List(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPClientNonSuccessStatusIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "boom"})
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL).Delete(context.Background(), "s1")
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "boom")
}

func TestHTTPClientEnvelopeFailureIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "not yours"})
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL).Delete(context.Background(), "s1")
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "not yours")
}

func TestDirectStateImplicitCreateOnSend(t *testing.T) {
	state := newDirectState(func(_ context.Context, transcript []Message) (string, error) {
		require.NotEmpty(t, transcript)
		return "echo: " + transcript[len(transcript)-1].Text, nil
	})

	res, err := state.Send(context.Background(), "", "What is RTI?", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID, "send without id must mint a session")
	assert.Equal(t, "echo: What is RTI?", res.AssistantText)

	msgs, err := state.Messages(context.Background(), res.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	// A second send reuses the confirmed session id.
	res2, err := state.Send(context.Background(), res.SessionID, "and then?", nil)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, res2.SessionID)

	list, err := state.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "What is RTI?", list[0].Title)

	require.NoError(t, state.Delete(context.Background(), res.SessionID))
	assert.ErrorIs(t, state.Delete(context.Background(), res.SessionID), ErrRejected)
}

func TestDirectStateAdoptsClientSuppliedID(t *testing.T) {
	state := newDirectState(func(_ context.Context, _ []Message) (string, error) {
		return "ok", nil
	})

	res, err := state.Send(context.Background(), "client-id", "first", nil)
	require.NoError(t, err)
	assert.Equal(t, "client-id", res.SessionID)

	// Repeat sends under the same unknown id stay in one conversation.
	res2, err := state.Send(context.Background(), "client-id", "second", nil)
	require.NoError(t, err)
	assert.Equal(t, "client-id", res2.SessionID)

	msgs, err := state.Messages(context.Background(), "client-id")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
}

func TestDeriveDirectTitleTruncatesAtFiftyRunes(t *testing.T) {
	short := "short title"
	assert.Equal(t, short, deriveDirectTitle(short))

	long := make([]rune, 60)
	for i := range long {
		long[i] = 'x'
	}
	got := deriveDirectTitle(string(long))
	assert.Equal(t, string(long[:50])+"...", got)
}
