// Package cache persists the engine's last known session state across
// process restarts. It is a best-effort mirror: the in-memory store stays
// the source of truth for the current runtime, so writes never fail into the
// caller and unreadable snapshots degrade to the empty state.
package cache

import (
	"github.com/ranazonai/rtichat-go/pkg/session"
)

// Namespace keys the snapshot blob so unrelated or incompatible data found
// at the same location is ignored instead of parsed.
const Namespace = "rtichat.sessions.v1"

// EphemeralState mirrors the ephemeral slot in the snapshot wire format.
// Persisted blobs always carry an inactive, empty state: saving is
// suppressed while ephemeral mode is active.
type EphemeralState struct {
	Active   bool              `json:"active"`
	Messages []session.Message `json:"messages,omitempty"`
}

// Snapshot is the full persisted state: the session list, the selected
// session, and the ephemeral slot.
type Snapshot struct {
	ActiveID  string             `json:"activeId"`
	Sessions  []*session.Session `json:"sessions"`
	Ephemeral EphemeralState     `json:"ephemeral"`
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	if len(s.Sessions) > 0 {
		out.Sessions = make([]*session.Session, len(s.Sessions))
		for i, sess := range s.Sessions {
			out.Sessions[i] = sess.Clone()
		}
	}
	out.Ephemeral.Messages = session.CloneMessages(s.Ephemeral.Messages)
	return out
}

// Cache is the persistence contract consumed by the sync coordinator.
type Cache interface {
	// Save writes the snapshot. It is fire-and-forget: failures are logged
	// by the implementation and never surfaced.
	Save(snap Snapshot)

	// Load returns the last saved snapshot. Missing or corrupt data yields
	// the empty snapshot and ok=false, never an error.
	Load() (snap Snapshot, ok bool)
}
