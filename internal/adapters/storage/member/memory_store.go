package member

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"buff/internal/domain/identity"
	domain "buff/internal/domain/member"
)

// MemoryStore is an in-process Store for tests and embedding.
type MemoryStore struct {
	mu      sync.RWMutex
	members map[string]domain.Member
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members: make(map[string]domain.Member),
		now:     time.Now,
	}
}

// clone copies the slice and pointer fields so callers cannot alias stored state.
func clone(m domain.Member) domain.Member {
	m.Sessions = slices.Clone(m.Sessions)
	if m.Sessions == nil {
		m.Sessions = []domain.WorkoutSession{}
	}
	m.Payments = slices.Clone(m.Payments)
	if m.Payments == nil {
		m.Payments = []domain.Payment{}
	}
	if m.AssignedTrainer != nil {
		t := *m.AssignedTrainer
		m.AssignedTrainer = &t
	}
	return m
}

// FindByEmail looks up a member by email, ignoring case.
func (s *MemoryStore) FindByEmail(_ context.Context, email string) (domain.Member, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = domain.NormalizeEmail(email)
	var found []domain.Member
	for _, m := range s.members {
		if m.Email == email {
			found = append(found, m)
		}
	}
	switch len(found) {
	case 0:
		return domain.Member{}, false, nil
	case 1:
		return clone(found[0]), true, nil
	default:
		return domain.Member{}, false, fmt.Errorf("email %q: %w", email, identity.ErrDataIntegrity)
	}
}

// Create inserts a new member.
func (s *MemoryStore) Create(_ context.Context, value domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[value.ID]; ok {
		return fmt.Errorf("member %s: %w", value.ID, identity.ErrAlreadyExists)
	}
	value.Email = domain.NormalizeEmail(value.Email)
	for _, m := range s.members {
		if m.Email == value.Email {
			return fmt.Errorf("member %s: %w", value.ID, identity.ErrEmailInUse)
		}
	}
	s.members[value.ID] = clone(value)
	return nil
}

// Get retrieves a member by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (domain.Member, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return domain.Member{}, false, nil
	}
	return clone(m), true, nil
}

// Update merges patch into the stored member and stamps LastUpdated.
func (s *MemoryStore) Update(_ context.Context, id string, patch domain.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[id]
	if !ok {
		return fmt.Errorf("member %s: %w", id, identity.ErrNotFound)
	}
	patch.Apply(&m, s.now())
	s.members[id] = clone(m)
	return nil
}

// List returns members ordered by creation time.
func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]domain.Member, error) {
	s.mu.RLock()
	all := make([]domain.Member, 0, len(s.members))
	for _, m := range s.members {
		if filter.Provider != "" && m.Credential.Provider != filter.Provider {
			continue
		}
		all = append(all, clone(m))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	offset := filter.offset()
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit := filter.limit(); len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
