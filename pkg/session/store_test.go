package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func persistedSession(id, title string, updated time.Time) *Session {
	return &Session{
		ID:        id,
		Title:     title,
		Lifecycle: LifecyclePersisted,
		CreatedAt: updated,
		UpdatedAt: updated,
	}
}

func ids(sessions []*Session) []string {
	out := make([]string, len(sessions))
	for i, sess := range sessions {
		out[i] = sess.ID
	}
	return out
}

func TestUpsertOrdersByRecencyWithProvisionalPinned(t *testing.T) {
	store := NewStore()
	base := time.Now().UTC()
	store.Upsert(persistedSession("old", "Old", base.Add(-time.Hour)))
	store.Upsert(persistedSession("new", "New", base))

	prov := NewProvisional()
	prov.UpdatedAt = base.Add(-2 * time.Hour) // recency must not matter for the pin
	store.Upsert(prov)

	assert.Equal(t, []string{prov.ID, "new", "old"}, ids(store.Sessions()))
}

func TestSetActiveUnknownIDIsSilentNoop(t *testing.T) {
	store := NewStore()
	store.Upsert(persistedSession("s1", "One", time.Now()))
	store.SetActive("s1")
	store.SetActive("missing")
	assert.Equal(t, "s1", store.ActiveID())
}

func TestRemoveFallsBackToFirstRemaining(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()
	store.Upsert(persistedSession("a", "A", now))
	store.Upsert(persistedSession("b", "B", now.Add(-time.Minute)))
	store.SetActive("a")

	store.Remove("a")
	assert.Equal(t, "b", store.ActiveID())

	store.Remove("b")
	require.Equal(t, 1, store.Len())
	fresh, ok := store.Active()
	require.True(t, ok)
	assert.Equal(t, LifecycleProvisional, fresh.Lifecycle)
	assert.Equal(t, fresh.ID, store.ActiveID())
}

func TestRemapIDRewritesEverywhere(t *testing.T) {
	store := NewStore()
	prov := NewProvisional()
	store.Upsert(prov)
	store.SetActive(prov.ID)

	require.NoError(t, store.RemapID(prov.ID, "s2"))

	_, found := store.Get(prov.ID)
	assert.False(t, found, "old id must be gone")
	remapped, ok := store.Get("s2")
	require.True(t, ok)
	assert.Equal(t, LifecyclePersisted, remapped.Lifecycle)
	assert.Equal(t, "s2", store.ActiveID())

	assert.ErrorIs(t, store.RemapID("nope", "s3"), ErrNotFound)
}

func TestRemapIDCollisionKeepsPersistedEntry(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()
	store.Upsert(persistedSession("s2", "Confirmed", now))
	prov := NewProvisional()
	store.Upsert(prov)
	store.SetActive(prov.ID)

	require.NoError(t, store.RemapID(prov.ID, "s2"))
	require.Equal(t, 1, store.Len())
	kept, ok := store.Get("s2")
	require.True(t, ok)
	assert.Equal(t, "Confirmed", kept.Title)
	assert.Equal(t, "s2", store.ActiveID())
}

func TestMergeRemoteMaterializesAndDropsRemotelyDeleted(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()
	store.Upsert(persistedSession("gone", "Deleted elsewhere", now))
	store.SetActive("gone")

	store.MergeRemote([]RemoteSession{
		{ID: "s1", Title: "Passport RTI", UpdatedAt: now},
	}, nil)

	require.Equal(t, []string{"s1"}, ids(store.Sessions()))
	assert.Equal(t, "s1", store.ActiveID())
	got, _ := store.Get("s1")
	assert.Equal(t, LifecyclePersisted, got.Lifecycle)
	assert.Equal(t, "Passport RTI", got.Title)
}

func TestMergeRemotePreservesProvisionalAndEphemeral(t *testing.T) {
	store := NewStore()
	prov := NewProvisional()
	prov.Messages = []Message{NewMessage(SenderUser, "unsent draft")}
	store.Upsert(prov)
	eph := NewEphemeral()
	store.Upsert(eph)
	store.SetActive(prov.ID)

	remote := []RemoteSession{{ID: "s1", Title: "Remote", UpdatedAt: time.Now().UTC()}}
	for i := 0; i < 3; i++ {
		store.MergeRemote(remote, nil)
	}

	kept, ok := store.Get(prov.ID)
	require.True(t, ok, "provisional session must survive reconciliation")
	assert.Len(t, kept.Messages, 1)
	_, ok = store.Get(eph.ID)
	assert.True(t, ok, "ephemeral session must survive reconciliation")
	assert.Equal(t, prov.ID, store.ActiveID())
}

func TestMergeRemoteIsIdempotent(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC().Truncate(time.Second)
	store.Upsert(NewProvisional())
	remote := []RemoteSession{
		{ID: "s1", Title: "One", UpdatedAt: now},
		{ID: "s2", Title: "Two", UpdatedAt: now.Add(-time.Minute)},
	}

	store.MergeRemote(remote, nil)
	first := store.Sessions()
	active := store.ActiveID()

	store.MergeRemote(remote, nil)
	assert.Equal(t, first, store.Sessions())
	assert.Equal(t, active, store.ActiveID())
}

func TestMergeRemoteKeepsLocalTranscript(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()
	known := persistedSession("s1", "Stale title", now.Add(-time.Hour))
	known.Messages = []Message{NewMessage(SenderUser, "hello")}
	store.Upsert(known)

	store.MergeRemote([]RemoteSession{{ID: "s1", Title: "Fresh title", UpdatedAt: now}}, nil)

	got, ok := store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "Fresh title", got.Title)
	assert.Len(t, got.Messages, 1, "local transcript must be kept")
	assert.Equal(t, now.Truncate(0), got.UpdatedAt)
}

func TestMergeRemoteHonorsLocalDeletes(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()
	store.Upsert(persistedSession("keep", "Keep", now))
	store.SetActive("keep")

	store.MergeRemote([]RemoteSession{
		{ID: "keep", Title: "Keep", UpdatedAt: now},
		{ID: "zombie", Title: "Deleted locally", UpdatedAt: now},
	}, map[string]struct{}{"zombie": {}})

	_, ok := store.Get("zombie")
	assert.False(t, ok, "a locally deleted session must not be resurrected")
}

func TestMergeRemoteEmptyResultCreatesProvisional(t *testing.T) {
	store := NewStore()
	store.Upsert(persistedSession("gone", "Gone", time.Now()))
	store.SetActive("gone")

	store.MergeRemote(nil, nil)

	require.Equal(t, 1, store.Len())
	sess, ok := store.Active()
	require.True(t, ok)
	assert.Equal(t, LifecycleProvisional, sess.Lifecycle)
}

func TestTiebreakPersistedWinsOnMerge(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()
	prov := NewProvisional()
	prov.ID = "s1" // simulate a lost remap leaving a provisional under a remote id
	store.Upsert(prov)

	store.MergeRemote([]RemoteSession{{ID: "s1", Title: "Remote", UpdatedAt: now}}, nil)

	require.Equal(t, 1, store.Len())
	got, _ := store.Get("s1")
	assert.Equal(t, LifecyclePersisted, got.Lifecycle)
}

func TestEditAssistantMessage(t *testing.T) {
	store := NewStore()
	sess := persistedSession("s1", "One", time.Now())
	user := NewMessage(SenderUser, "question")
	bot := NewMessage(SenderAssistant, "draft answer")
	sess.Messages = []Message{user, bot}
	store.Upsert(sess)

	require.NoError(t, store.EditAssistantMessage("s1", bot.ID, "final answer"))
	got, _ := store.Get("s1")
	assert.Equal(t, "final answer", got.Messages[1].Text)

	assert.ErrorIs(t, store.EditAssistantMessage("s1", user.ID, "nope"), ErrNotEditable)
	assert.ErrorIs(t, store.EditAssistantMessage("s1", "missing", "x"), ErrMessageNotFound)
	assert.ErrorIs(t, store.EditAssistantMessage("missing", bot.ID, "x"), ErrNotFound)
}

func TestAppendMessageBumpsRecency(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()
	store.Upsert(persistedSession("a", "A", now.Add(-time.Hour)))
	store.Upsert(persistedSession("b", "B", now))
	require.Equal(t, []string{"b", "a"}, ids(store.Sessions()))

	require.NoError(t, store.AppendMessage("a", NewMessage(SenderUser, "ping")))
	assert.Equal(t, []string{"a", "b"}, ids(store.Sessions()))
	assert.ErrorIs(t, store.AppendMessage("missing", NewMessage(SenderUser, "x")), ErrNotFound)
}

func TestSubscribeNotifiesOnMutation(t *testing.T) {
	store := NewStore()
	var fired int
	cancel := store.Subscribe(func() { fired++ })

	store.Upsert(persistedSession("s1", "One", time.Now()))
	store.SetActive("s1")
	require.Equal(t, 2, fired)

	cancel()
	store.Remove("s1")
	assert.Equal(t, 2, fired)
}

func TestExportExcludesEphemeral(t *testing.T) {
	store := NewStore()
	store.Upsert(persistedSession("s1", "One", time.Now()))
	store.Upsert(NewEphemeral())

	sessions, activeID := store.Export()
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
	_ = activeID
}

func TestRestoreRoundTrip(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()
	store.Upsert(persistedSession("s1", "One", now))
	store.Upsert(persistedSession("s2", "Two", now.Add(-time.Minute)))
	store.SetActive("s2")
	sessions, activeID := store.Export()

	restored := NewStore()
	restored.Restore(sessions, activeID)
	assert.Equal(t, ids(store.Sessions()), ids(restored.Sessions()))
	assert.Equal(t, "s2", restored.ActiveID())

	// An empty snapshot restores to an empty store; the provisional slot is
	// created on demand, not here.
	empty := NewStore()
	empty.Restore(nil, "")
	assert.Zero(t, empty.Len())
	assert.Empty(t, empty.ActiveID())
	_, ok := empty.Active()
	assert.False(t, ok)
}

func TestClonesDoNotAliasStoreState(t *testing.T) {
	store := NewStore()
	sess := persistedSession("s1", "One", time.Now())
	sess.Messages = []Message{NewMessage(SenderUser, "hello")}
	store.Upsert(sess)

	got, _ := store.Get("s1")
	got.Messages[0].Text = "mutated"
	got.Title = "mutated"

	again, _ := store.Get("s1")
	assert.Equal(t, "hello", again.Messages[0].Text)
	assert.Equal(t, "One", again.Title)
}
