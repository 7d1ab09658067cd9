package pin

import (
	"sync"
	"time"
)

// SessionStore tracks which authenticated sessions have verified their PIN.
// The flag is ephemeral: it belongs to the session, not to the credential,
// and a brand-new session always starts unverified.
//
// The shipped implementation is process-local; the interface allows a shared
// cache for multi-instance deployments.
type SessionStore interface {
	IsVerified(sessionID string) bool
	MarkVerified(sessionID string)
	ClearVerified(sessionID string)
}

// InMemorySessionStore is a mutex-guarded map of verified sessions.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	verified map[string]time.Time
	nowFn    func() time.Time
}

// NewInMemorySessionStore creates an empty store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		verified: make(map[string]time.Time),
		nowFn:    time.Now,
	}
}

func (s *InMemorySessionStore) IsVerified(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.verified[sessionID]
	return ok
}

func (s *InMemorySessionStore) MarkVerified(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified[sessionID] = s.nowFn()
}

func (s *InMemorySessionStore) ClearVerified(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.verified, sessionID)
}
