package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranazonai/rtichat-go/pkg/session"
)

func sampleSnapshot() Snapshot {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return Snapshot{
		ActiveID: "s1",
		Sessions: []*session.Session{
			{
				ID:        "s1",
				Title:     "Passport RTI",
				Lifecycle: session.LifecyclePersisted,
				Messages: []session.Message{
					{ID: "m1", Sender: session.SenderUser, Text: "What is RTI?", CreatedAt: now},
					{ID: "m2", Sender: session.SenderAssistant, Text: "RTI is...", CreatedAt: now},
				},
				CreatedAt: now,
				UpdatedAt: now,
			},
		},
	}
}

func TestFileCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	c := NewFileCache(path)

	_, ok := c.Load()
	assert.False(t, ok, "empty cache must report no snapshot")

	want := sampleSnapshot()
	c.Save(want)

	got, ok := c.Load()
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestFileCacheLoadCorruptBlobFallsBackToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	snap, ok := NewFileCache(path).Load()
	assert.False(t, ok)
	assert.Equal(t, Snapshot{}, snap)
}

func TestFileCacheLoadForeignNamespaceIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"namespace":"someone.else.v9","snapshot":{"activeId":"x"}}`), 0o600))

	snap, ok := NewFileCache(path).Load()
	assert.False(t, ok)
	assert.Empty(t, snap.ActiveID)
}

func TestFileCacheSaveNeverPanicsOnUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	// Use the directory itself as the blob path so the write must fail.
	c := NewFileCache(dir)
	assert.NotPanics(t, func() { c.Save(sampleSnapshot()) })
	_, ok := c.Load()
	assert.False(t, ok)
}

func TestFileCacheSaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	c := NewFileCache(path)

	first := sampleSnapshot()
	c.Save(first)
	second := first.Clone()
	second.ActiveID = "s2"
	c.Save(second)

	got, ok := c.Load()
	require.True(t, ok)
	assert.Equal(t, "s2", got.ActiveID)

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not linger")
}

func TestMemoryCacheCountsSaves(t *testing.T) {
	c := NewMemoryCache()
	_, ok := c.Load()
	assert.False(t, ok)

	c.Save(sampleSnapshot())
	c.Save(sampleSnapshot())
	assert.Equal(t, 2, c.Saves())

	got, ok := c.Load()
	require.True(t, ok)
	assert.Equal(t, "s1", got.ActiveID)
}

func TestSnapshotCloneDoesNotAlias(t *testing.T) {
	snap := sampleSnapshot()
	clone := snap.Clone()
	clone.Sessions[0].Title = "mutated"
	clone.Sessions[0].Messages[0].Text = "mutated"
	assert.Equal(t, "Passport RTI", snap.Sessions[0].Title)
	assert.Equal(t, "What is RTI?", snap.Sessions[0].Messages[0].Text)
}
