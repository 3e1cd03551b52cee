// Package syncer orchestrates session state across the in-memory store, the
// persistence cache, and the remote conversation service. It owns the
// optimistic send path, background reconciliation, and the incognito mode
// that keeps a conversation out of persistence entirely.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ranazonai/rtichat-go/pkg/cache"
	"github.com/ranazonai/rtichat-go/pkg/remote"
	"github.com/ranazonai/rtichat-go/pkg/session"
	"github.com/ranazonai/rtichat-go/pkg/telemetry"
	"github.com/ranazonai/rtichat-go/pkg/title"
)

// ErrInvalidOperation marks a request that the current session lifecycle
// does not allow, such as deleting a chat that was never sent.
var ErrInvalidOperation = errors.New("syncer: invalid operation")

// sendFailureText is the assistant-side message shown when the remote send
// fails. The user's own message stays in the transcript so it can be retried.
const sendFailureText = "I'm sorry, I'm having trouble processing your request right now. Please try again later."

// Coordinator wires a session store to a remote conversation client and a
// persistence cache. Every store mutation it performs flows back into the
// cache through the store subscription, except while incognito mode is on.
type Coordinator struct {
	store  *session.Store
	cache  cache.Cache
	remote remote.Client
	logger zerolog.Logger

	unsubscribe func()

	mu              sync.Mutex
	reconciling     bool
	deletedInFlight map[string]struct{}
	ephemeralOn     bool
	ephemeralEpoch  uint64
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger used for background failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New builds a Coordinator over the given store, cache, and remote client,
// and subscribes to the store so mutations are persisted as they happen.
func New(store *session.Store, persistence cache.Cache, client remote.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		cache:  persistence,
		remote: client,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.unsubscribe = store.Subscribe(c.persist)
	return c
}

// Store exposes the underlying session store for read access and
// change subscriptions.
func (c *Coordinator) Store() *session.Store {
	return c.store
}

// Close detaches the coordinator from the store. In-flight operations
// finish but no longer trigger cache writes.
func (c *Coordinator) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// Restore hydrates the store from the cache, then kicks off a background
// reconcile against the remote service. It never fails: a missing or corrupt
// cache simply starts the session list empty.
func (c *Coordinator) Restore(ctx context.Context) {
	ctx, span := telemetry.StartSpan(ctx, "syncer.restore")
	snap, ok := c.cache.Load()
	if ok {
		c.store.Restore(snap.Sessions, snap.ActiveID)
	} else {
		c.store.Restore(nil, "")
	}
	telemetry.EndSpan(span, nil)

	go c.Reconcile(context.WithoutCancel(ctx))
}

// Reconcile fetches the remote session list and merges it into the store.
// Calls that arrive while a reconcile is already running are dropped rather
// than queued. Failures leave the local view untouched.
func (c *Coordinator) Reconcile(ctx context.Context) {
	c.mu.Lock()
	if c.reconciling {
		c.mu.Unlock()
		return
	}
	c.reconciling = true
	c.deletedInFlight = make(map[string]struct{})
	c.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "syncer.reconcile")
	start := time.Now()
	var err error
	defer func() {
		telemetry.EndSpan(span, err)
		telemetry.RecordOperation(ctx, telemetry.OperationData{
			Name:     "reconcile",
			Duration: time.Since(start),
			Error:    err,
		})
		c.mu.Lock()
		c.reconciling = false
		c.deletedInFlight = nil
		c.mu.Unlock()
	}()

	summaries, listErr := c.remote.List(ctx)
	if listErr != nil {
		err = fmt.Errorf("syncer: list sessions: %w", listErr)
		c.logger.Warn().Err(listErr).Msg("reconcile skipped, remote list failed")
		return
	}

	c.mu.Lock()
	deleted := make(map[string]struct{}, len(c.deletedInFlight))
	for id := range c.deletedInFlight {
		deleted[id] = struct{}{}
	}
	c.mu.Unlock()

	remoteSessions := make([]session.RemoteSession, 0, len(summaries))
	for _, s := range summaries {
		remoteSessions = append(remoteSessions, session.RemoteSession{
			ID:        s.ID,
			Title:     s.Title,
			UpdatedAt: s.UpdatedAt,
		})
	}
	c.store.MergeRemote(remoteSessions, deleted)
	c.logger.Debug().Int("remote_sessions", len(remoteSessions)).Msg("reconcile merged")
}

// NewChat resets the provisional slot and makes it active. When incognito
// mode is on it is switched off first and the incognito transcript is
// discarded.
func (c *Coordinator) NewChat() *session.Session {
	c.mu.Lock()
	wasEphemeral := c.ephemeralOn
	if wasEphemeral {
		c.ephemeralOn = false
		c.ephemeralEpoch++
	}
	c.mu.Unlock()

	if wasEphemeral {
		if eph, ok := c.store.Ephemeral(); ok {
			c.store.Remove(eph.ID)
		}
	}
	return c.store.ResetProvisional()
}

// ActivateEphemeral enters incognito mode: a throwaway session becomes
// active and cache writes stop until the mode ends. If incognito is already
// on, the existing session is returned.
func (c *Coordinator) ActivateEphemeral() *session.Session {
	c.mu.Lock()
	if c.ephemeralOn {
		c.mu.Unlock()
		if eph, ok := c.store.Ephemeral(); ok {
			return eph
		}
		// Mode flag without a session means the store was reset under us.
		c.mu.Lock()
	}
	c.ephemeralOn = true
	c.ephemeralEpoch++
	c.mu.Unlock()

	eph := session.NewEphemeral()
	c.store.Upsert(eph)
	c.store.SetActive(eph.ID)
	return eph
}

// DeactivateEphemeral ends incognito mode and discards its transcript.
// The previously persisted view becomes active again. No-op when incognito
// is off.
func (c *Coordinator) DeactivateEphemeral() {
	c.mu.Lock()
	if !c.ephemeralOn {
		c.mu.Unlock()
		return
	}
	c.ephemeralOn = false
	c.ephemeralEpoch++
	c.mu.Unlock()

	if eph, ok := c.store.Ephemeral(); ok {
		c.store.Remove(eph.ID)
	} else {
		// Removing nothing still needs to flush the suppressed snapshot.
		c.persist()
	}
}

// SelectSession makes the given session active and lazily fetches its
// transcript from the remote service when it has none locally. Messages
// typed into the session while the fetch was in flight win over the fetch.
func (c *Coordinator) SelectSession(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "syncer.select")
	start := time.Now()
	var err error
	defer func() {
		telemetry.EndSpan(span, err)
		telemetry.RecordOperation(ctx, telemetry.OperationData{
			Name:      "select",
			SessionID: id,
			Duration:  time.Since(start),
			Error:     err,
		})
	}()

	c.store.SetActive(id)
	sess, ok := c.store.Get(id)
	if !ok {
		err = fmt.Errorf("syncer: select session %s: %w", id, session.ErrNotFound)
		return err
	}
	if sess.Lifecycle != session.LifecyclePersisted || len(sess.Messages) > 0 {
		return nil
	}

	history, fetchErr := c.remote.Messages(ctx, id)
	if fetchErr != nil {
		err = fmt.Errorf("syncer: fetch messages for %s: %w", id, fetchErr)
		return err
	}

	// The fetch only fills an empty transcript. Anything appended in the
	// meantime is newer than the snapshot we just received.
	current, ok := c.store.Get(id)
	if !ok || len(current.Messages) > 0 {
		return nil
	}
	messages := make([]session.Message, 0, len(history))
	for _, m := range history {
		msg := session.NewMessage(m.Sender, m.Text)
		msg.CreatedAt = m.CreatedAt
		messages = append(messages, msg)
	}
	if setErr := c.store.SetMessages(id, messages); setErr != nil && !errors.Is(setErr, session.ErrNotFound) {
		err = setErr
		return err
	}
	return nil
}

// SendMessage appends the user's message to the active session, sends it to
// the remote service, and appends the assistant reply. A provisional session
// is promoted to the server-issued id on the first successful send; an
// incognito session never is. On failure the user's message stays and an
// error-flagged assistant message is appended instead.
func (c *Coordinator) SendMessage(ctx context.Context, text string, attachment *session.Attachment) (session.Message, error) {
	ctx, span := telemetry.StartSpan(ctx, "syncer.send")
	start := time.Now()
	var err error
	targetID := ""
	defer func() {
		telemetry.EndSpan(span, err)
		telemetry.RecordOperation(ctx, telemetry.OperationData{
			Name:      "send",
			SessionID: targetID,
			Input:     text,
			Duration:  time.Since(start),
			Error:     err,
		})
	}()

	active, ok := c.store.Active()
	if !ok {
		active = c.store.ResetProvisional()
	}
	targetID = active.ID
	epoch := c.currentEpoch()

	userMsg := session.NewMessage(session.SenderUser, text)
	userMsg.Attachment = attachment
	if appendErr := c.store.AppendMessage(active.ID, userMsg); appendErr != nil {
		err = appendErr
		return session.Message{}, err
	}
	if active.Lifecycle == session.LifecycleProvisional && len(active.Messages) == 0 {
		_ = c.store.SetTitle(active.ID, title.Derive(text))
	}

	// A provisional session sends an empty id, asking the server to create
	// the conversation. An incognito session keeps its throwaway id on every
	// turn so the remote threads the exchanges into one conversation.
	remoteID := active.ID
	if active.Lifecycle == session.LifecycleProvisional {
		remoteID = ""
	}

	result, sendErr := c.remote.Send(ctx, remoteID, text, attachment)
	if sendErr != nil {
		err = fmt.Errorf("syncer: send message: %w", sendErr)
		c.logger.Warn().Err(sendErr).Str("session_id", active.ID).Msg("send failed")
		failure := session.NewMessage(session.SenderAssistant, sendFailureText)
		failure.Error = true
		if c.resultRelevant(active.ID, epoch) {
			_ = c.store.AppendMessage(active.ID, failure)
		}
		return failure, err
	}

	if active.Lifecycle == session.LifecycleProvisional &&
		result.SessionID != "" && result.SessionID != active.ID {
		if !c.resultRelevant(active.ID, epoch) {
			return session.Message{}, nil
		}
		if remapErr := c.store.RemapID(active.ID, result.SessionID); remapErr != nil {
			// The session vanished while the request was in flight;
			// the reply has nowhere to land.
			return session.Message{}, nil
		}
		targetID = result.SessionID
	}

	reply := session.NewMessage(session.SenderAssistant, result.AssistantText)
	if !c.resultRelevant(targetID, epoch) {
		return reply, nil
	}
	if appendErr := c.store.AppendMessage(targetID, reply); appendErr != nil {
		c.logger.Debug().Str("session_id", targetID).Msg("reply dropped, session gone")
	}
	return reply, nil
}

// DeleteSession removes a persisted session remotely and locally. The remote
// delete is authoritative: a remote failure leaves the local copy in place.
// Provisional and incognito sessions cannot be deleted this way.
func (c *Coordinator) DeleteSession(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "syncer.delete")
	start := time.Now()
	var err error
	defer func() {
		telemetry.EndSpan(span, err)
		telemetry.RecordOperation(ctx, telemetry.OperationData{
			Name:      "delete",
			SessionID: id,
			Duration:  time.Since(start),
			Error:     err,
		})
	}()

	sess, ok := c.store.Get(id)
	if !ok {
		err = fmt.Errorf("syncer: delete session %s: %w", id, session.ErrNotFound)
		return err
	}
	switch sess.Lifecycle {
	case session.LifecycleProvisional:
		err = fmt.Errorf("%w: the unsent new chat cannot be deleted", ErrInvalidOperation)
		return err
	case session.LifecycleEphemeral:
		err = fmt.Errorf("%w: the incognito chat cannot be deleted", ErrInvalidOperation)
		return err
	}

	if delErr := c.remote.Delete(ctx, id); delErr != nil {
		err = fmt.Errorf("syncer: delete session %s: %w", id, delErr)
		return err
	}

	// A reconcile started before the delete may still hold the session in
	// its snapshot; the skip set keeps the merge from resurrecting it.
	c.mu.Lock()
	if c.deletedInFlight != nil {
		c.deletedInFlight[id] = struct{}{}
	}
	c.mu.Unlock()

	c.store.Remove(id)
	return nil
}

// persist snapshots the store into the cache. Runs on every store change;
// suppressed entirely while incognito mode is on.
func (c *Coordinator) persist() {
	c.mu.Lock()
	suppressed := c.ephemeralOn
	c.mu.Unlock()
	if suppressed {
		return
	}
	sessions, activeID := c.store.Export()
	c.cache.Save(cache.Snapshot{ActiveID: activeID, Sessions: sessions})
}

func (c *Coordinator) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ephemeralEpoch
}

// resultRelevant reports whether an async result for the given session may
// still be applied: the session must exist, and an incognito session must
// belong to the same incognito run the request started in.
func (c *Coordinator) resultRelevant(id string, epoch uint64) bool {
	sess, ok := c.store.Get(id)
	if !ok {
		return false
	}
	if sess.Lifecycle == session.LifecycleEphemeral && c.currentEpoch() != epoch {
		return false
	}
	return true
}
