package session

import (
	"sort"
	"sync"
	"time"
)

// RemoteSession is a session summary reported by the authoritative remote
// store during reconciliation.
type RemoteSession struct {
	ID        string
	Title     string
	UpdatedAt time.Time
}

type subscriber struct {
	id int
	fn func()
}

// Store owns the canonical ordered session list and the active-session
// pointer. All access goes through its methods; every value crossing the
// boundary is deep-cloned, so callers can never alias internal state.
//
// Ordering invariant: the ephemeral slot (if any) first, then the
// provisional slot (if any), then persisted sessions most-recently-updated
// first.
type Store struct {
	mu       sync.RWMutex
	sessions []*Session
	activeID string
	subs     []subscriber
	nextSub  int
}

// NewStore returns an empty store with no active session.
func NewStore() *Store {
	return &Store{}
}

// Subscribe registers fn to run after every store mutation. The returned
// cancel function removes the subscription.
func (s *Store) Subscribe(fn func()) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Sessions returns a deep copy of the ordered session list.
func (s *Store) Sessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Clone()
	}
	return out
}

// ActiveID returns the id of the currently selected session.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns a copy of the selected session.
func (s *Store) Active() (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess := s.findLocked(s.activeID); sess != nil {
		return sess.Clone(), true
	}
	return nil, false
}

// Get returns a copy of the session with the given id.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess := s.findLocked(id); sess != nil {
		return sess.Clone(), true
	}
	return nil, false
}

// Len reports the number of sessions, the ephemeral slot included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Upsert inserts or replaces a session by id and restores ordering.
func (s *Store) Upsert(sess *Session) {
	clone := sess.Clone()
	s.mu.Lock()
	if existing := s.findLocked(clone.ID); existing != nil {
		*existing = *clone
	} else {
		s.sessions = append(s.sessions, clone)
	}
	s.sortLocked()
	s.mu.Unlock()
	s.notify()
}

// SetActive selects the session with the given id. Unknown ids are a
// silent no-op.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	if s.findLocked(id) == nil || s.activeID == id {
		s.mu.Unlock()
		return
	}
	s.activeID = id
	s.mu.Unlock()
	s.notify()
}

// Remove deletes the session with the given id. If it was active, the first
// remaining session becomes active; when the list empties, a fresh
// provisional "new chat" session is created and selected. Unknown ids are a
// no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	if s.activeID == id {
		if len(s.sessions) == 0 {
			fresh := NewProvisional()
			s.sessions = []*Session{fresh}
			s.activeID = fresh.ID
		} else {
			s.activeID = s.sessions[0].ID
		}
	}
	s.mu.Unlock()
	s.notify()
}

// RemapID atomically rewrites oldID to newID across the session list and the
// active pointer, promoting a provisional session to persisted. It is called
// exactly once per session, the moment the remote store confirms it. On an
// id collision the persisted entry wins and the stale provisional entry is
// dropped.
func (s *Store) RemapID(oldID, newID string) error {
	s.mu.Lock()
	idx := s.indexLocked(oldID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	if s.findLocked(newID) != nil {
		// A lost earlier remap left both ids behind; the remote-confirmed
		// entry is authoritative.
		s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	} else {
		sess := s.sessions[idx]
		sess.ID = newID
		if sess.Lifecycle == LifecycleProvisional {
			sess.Lifecycle = LifecyclePersisted
		}
	}
	if s.activeID == oldID {
		s.activeID = newID
	}
	s.sortLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// ResetProvisional drops any existing provisional session, installs a fresh
// empty one, and makes it active. The replacement is one atomic step so at
// most one provisional session ever exists.
func (s *Store) ResetProvisional() *Session {
	fresh := NewProvisional()
	s.mu.Lock()
	kept := s.sessions[:0]
	for _, sess := range s.sessions {
		if sess.Lifecycle == LifecycleProvisional {
			continue
		}
		kept = append(kept, sess)
	}
	s.sessions = append(kept, fresh.Clone())
	s.activeID = fresh.ID
	s.sortLocked()
	s.mu.Unlock()
	s.notify()
	return fresh
}

// AppendMessage appends msg to the session's transcript and marks the
// session as most recently updated.
func (s *Store) AppendMessage(id string, msg Message) error {
	s.mu.Lock()
	sess := s.findLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	clone := CloneMessage(msg)
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	sess.Messages = append(sess.Messages, clone)
	sess.UpdatedAt = clone.CreatedAt
	s.sortLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetMessages replaces the session's transcript, typically after a lazy
// remote fetch. Recency is left untouched.
func (s *Store) SetMessages(id string, msgs []Message) error {
	s.mu.Lock()
	sess := s.findLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	sess.Messages = CloneMessages(msgs)
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetTitle replaces the session's display title.
func (s *Store) SetTitle(id, titleText string) error {
	s.mu.Lock()
	sess := s.findLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	sess.Title = titleText
	s.mu.Unlock()
	s.notify()
	return nil
}

// EditAssistantMessage replaces the text of an assistant message in place.
// User messages are never editable.
func (s *Store) EditAssistantMessage(sessionID, messageID, text string) error {
	s.mu.Lock()
	sess := s.findLocked(sessionID)
	if sess == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	for i := range sess.Messages {
		if sess.Messages[i].ID != messageID {
			continue
		}
		if sess.Messages[i].Sender != SenderAssistant {
			s.mu.Unlock()
			return ErrNotEditable
		}
		sess.Messages[i].Text = text
		s.mu.Unlock()
		s.notify()
		return nil
	}
	s.mu.Unlock()
	return ErrMessageNotFound
}

// MergeRemote reconciles the authoritative remote session list into local
// state:
//
//  1. every remote entry becomes or updates a persisted session; locally
//     known transcripts are kept, remote title and recency are adopted;
//  2. provisional and ephemeral local sessions are preserved verbatim and
//     stay in front, so reconciliation never discards an in-flight unsent
//     session (on an id collision with a remote entry, the persisted entry
//     wins);
//  3. persisted local sessions absent from the remote list were deleted
//     elsewhere and are dropped;
//  4. the active id survives when possible, otherwise the first merged
//     session becomes active (a fresh provisional one when nothing is left).
//
// Ids in localDeleted were deleted by the user while this reconciliation was
// in flight; the local delete is authoritative for this runtime, so such
// entries are skipped even though the remote list still carries them.
// Merging the same remote list twice is a no-op.
func (s *Store) MergeRemote(remote []RemoteSession, localDeleted map[string]struct{}) {
	s.mu.Lock()
	remoteIDs := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		remoteIDs[r.ID] = struct{}{}
	}

	var merged []*Session
	for _, sess := range s.sessions {
		if sess.Lifecycle == LifecyclePersisted {
			continue
		}
		if _, collides := remoteIDs[sess.ID]; collides {
			continue
		}
		merged = append(merged, sess)
	}
	for _, r := range remote {
		if _, deleted := localDeleted[r.ID]; deleted {
			continue
		}
		if local := s.findLocked(r.ID); local != nil && local.Lifecycle == LifecyclePersisted {
			local.Title = r.Title
			if !r.UpdatedAt.IsZero() {
				local.UpdatedAt = r.UpdatedAt.UTC()
			}
			merged = append(merged, local)
			continue
		}
		ts := r.UpdatedAt.UTC()
		merged = append(merged, &Session{
			ID:        r.ID,
			Title:     r.Title,
			Lifecycle: LifecyclePersisted,
			CreatedAt: ts,
			UpdatedAt: ts,
		})
	}

	s.sessions = merged
	if s.findLocked(s.activeID) == nil {
		switch {
		case len(s.sessions) > 0:
			s.sortLocked()
			s.activeID = s.sessions[0].ID
		default:
			fresh := NewProvisional()
			s.sessions = []*Session{fresh}
			s.activeID = fresh.ID
		}
	}
	s.sortLocked()
	s.mu.Unlock()
	s.notify()
}

// Export returns clones of all non-ephemeral sessions plus the active id,
// in store order. This is the state worth persisting across restarts.
func (s *Store) Export() ([]*Session, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Session
	for _, sess := range s.sessions {
		if sess.Lifecycle == LifecycleEphemeral {
			continue
		}
		out = append(out, sess.Clone())
	}
	return out, s.activeID
}

// Ephemeral returns a copy of the ephemeral slot when one exists.
func (s *Store) Ephemeral() (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.Lifecycle == LifecycleEphemeral {
			return sess.Clone(), true
		}
	}
	return nil, false
}

// Restore replaces the store's content from a persisted snapshot. An active
// id no longer present falls back to the first session. An empty snapshot
// leaves the store empty; a provisional slot appears later, on the first
// send or explicit new chat.
func (s *Store) Restore(sessions []*Session, activeID string) {
	s.mu.Lock()
	s.sessions = s.sessions[:0]
	for _, sess := range sessions {
		if sess == nil || sess.ID == "" {
			continue
		}
		s.sessions = append(s.sessions, sess.Clone())
	}
	s.sortLocked()
	switch {
	case s.findLocked(activeID) != nil:
		s.activeID = activeID
	case len(s.sessions) > 0:
		s.activeID = s.sessions[0].ID
	default:
		s.activeID = ""
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) findLocked(id string) *Session {
	if idx := s.indexLocked(id); idx >= 0 {
		return s.sessions[idx]
	}
	return nil
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, sess := range s.sessions {
		if sess.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) sortLocked() {
	sort.SliceStable(s.sessions, func(i, j int) bool {
		ri, rj := lifecycleRank(s.sessions[i].Lifecycle), lifecycleRank(s.sessions[j].Lifecycle)
		if ri != rj {
			return ri < rj
		}
		return s.sessions[i].UpdatedAt.After(s.sessions[j].UpdatedAt)
	})
}

func lifecycleRank(lc Lifecycle) int {
	switch lc {
	case LifecycleEphemeral:
		return 0
	case LifecycleProvisional:
		return 1
	default:
		return 2
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), len(s.subs))
	for i, sub := range s.subs {
		fns[i] = sub.fn
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
