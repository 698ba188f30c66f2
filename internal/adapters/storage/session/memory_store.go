package session

import (
	"context"
	"sync"
	"time"

	domain "buff/internal/domain/session"
)

// MemoryStore is an in-process session registry.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]domain.Session),
		now:      time.Now,
	}
}

// Create stores a session under the digest of its token.
// PRE: s.Token and s.MemberID are non-empty
func (ms *MemoryStore) Create(_ context.Context, s domain.Session) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	key := hashToken(s.Token)
	s.Token = ""
	ms.sessions[key] = s
	return nil
}

// Get retrieves a session by token.
// POST: returns the session if present and not expired
func (ms *MemoryStore) Get(_ context.Context, token string) (domain.Session, bool, error) {
	key := hashToken(token)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	s, ok := ms.sessions[key]
	if !ok {
		return domain.Session{}, false, nil
	}
	if s.IsExpired(ms.now()) {
		delete(ms.sessions, key)
		return domain.Session{}, false, nil
	}
	s.Token = token
	return s, true, nil
}

// Delete removes a session by token.
func (ms *MemoryStore) Delete(_ context.Context, token string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.sessions, hashToken(token))
	return nil
}

// DeleteForMember removes every session of memberID.
func (ms *MemoryStore) DeleteForMember(_ context.Context, memberID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for key, s := range ms.sessions {
		if s.MemberID == memberID {
			delete(ms.sessions, key)
		}
	}
	return nil
}

// PurgeExpired drops sessions that expired at or before now.
func (ms *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var n int64
	for key, s := range ms.sessions {
		if s.IsExpired(now) {
			delete(ms.sessions, key)
			n++
		}
	}
	return n, nil
}
