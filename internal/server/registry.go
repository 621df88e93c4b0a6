package server

import (
	"sync"
)

// SessionRegistry is the authoritative map of online user id to live
// connection handle. It is the only state shared across connection
// goroutines; every operation takes the one lock so snapshots always
// observe a consistent instant. The raw map is never handed out.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Client
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Client),
	}
}

// Register installs the handle for userId and returns the handle it
// replaced, if any. The replaced handle is not closed here; the caller
// decides what to do with it so there is a single close path.
func (r *SessionRegistry) Register(userId string, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.sessions[userId]
	r.sessions[userId] = c
	return prev
}

// Unregister removes the entry for userId only if it still holds c,
// so a stale disconnect cannot evict a newer session. It reports whether
// an entry was removed.
func (r *SessionRegistry) Unregister(userId string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[userId] != c {
		return false
	}
	delete(r.sessions, userId)
	return true
}

// Snapshot returns a point-in-time copy of the registry. Callers iterate
// the copy for one broadcast or one initial-state assembly so results are
// not torn by concurrent register/unregister.
func (r *SessionRegistry) Snapshot() map[string]*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[string]*Client, len(r.sessions))
	for id, c := range r.sessions {
		snapshot[id] = c
	}
	return snapshot
}

// OnlineIds returns the set of currently connected user ids.
func (r *SessionRegistry) OnlineIds() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	online := make(map[string]struct{}, len(r.sessions))
	for id := range r.sessions {
		online[id] = struct{}{}
	}
	return online
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
