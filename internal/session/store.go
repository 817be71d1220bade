package session

import (
	"sync"
)

// Store manages sessions in memory and enforces the single-writer rule:
// at most one engine invocation mutates a given session at a time.
// Persistence across restarts is the checkpoint store's job, not ours.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

// entry pairs a session with its ownership lock. The lock is held for the
// full duration of an engine invocation, not just per field access.
type entry struct {
	mu      sync.Mutex
	session *Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*entry)}
}

// Acquire returns the session for id, creating it on first use, with
// exclusive ownership. The caller must invoke release when its invocation
// completes. Concurrent Acquire calls for the same id block until the
// current owner releases.
func (st *Store) Acquire(id string) (*Session, func()) {
	st.mu.Lock()
	e, ok := st.sessions[id]
	if !ok {
		e = &entry{session: newSession(id)}
		st.sessions[id] = e
	}
	st.mu.Unlock()

	e.mu.Lock()
	return e.session, e.mu.Unlock
}

// Peek returns the session for id without taking ownership, or nil if it
// does not exist. The result is the live session: callers must know no
// invocation can be mutating it (tests, quiesced shutdown). Concurrent
// readers use [Store.View] instead.
func (st *Store) Peek(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if e, ok := st.sessions[id]; ok {
		return e.session
	}
	return nil
}

// View runs fn with exclusive ownership of the session for id and reports
// whether the session exists. Read-only endpoints use it to copy a
// consistent snapshot without retaining the live pointer; fn blocks any
// in-flight invocation for its duration, so keep it short.
func (st *Store) View(id string, fn func(*Session)) bool {
	st.mu.Lock()
	e, ok := st.sessions[id]
	st.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.session)
	return true
}

// IDs returns the identifiers of all known sessions.
func (st *Store) IDs() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Restore inserts a session, replacing any existing one with the same ID.
// Used when loading a checkpoint at boot, before the server accepts
// traffic, so no ownership conflict is possible.
func (st *Store) Restore(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = &entry{session: s}
}

// ForEach acquires each session in turn and calls fn with it. Used by the
// checkpointer to snapshot consistent state without freezing the whole
// store at once.
func (st *Store) ForEach(fn func(*Session)) {
	for _, id := range st.IDs() {
		s, release := st.Acquire(id)
		fn(s)
		release()
	}
}
