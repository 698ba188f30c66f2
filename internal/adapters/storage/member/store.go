package member

import (
	"context"
	"encoding/json"
	"fmt"

	"buff/internal/domain/identity"
	domain "buff/internal/domain/member"
)

// Store persists member identity records.
// Every call goes to the backend; nothing is cached.
type Store interface {
	FindByEmail(ctx context.Context, email string) (domain.Member, bool, error)
	Create(ctx context.Context, value domain.Member) error
	Get(ctx context.Context, id string) (domain.Member, bool, error)
	Update(ctx context.Context, id string, patch domain.Patch) error
	List(ctx context.Context, filter ListFilter) ([]domain.Member, error)
}

// ListFilter carries filtering parameters for List operations.
type ListFilter struct {
	Limit    int
	Offset   int
	Provider string
}

// DefaultListLimit applies when ListFilter.Limit is zero.
const DefaultListLimit = 100

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f ListFilter) offset() int {
	return max(f.Offset, 0)
}

// unavailable wraps a backend failure so callers can classify it.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, identity.ErrStorageUnavailable, err)
}

// documents holds the JSON-encoded dashboard fields of a member row.
type documents struct {
	membership []byte
	sessions   []byte
	payments   []byte
	trainer    []byte // nil when no trainer is assigned
}

func encodeDocuments(m domain.Member) (documents, error) {
	var d documents
	var err error
	if d.membership, err = json.Marshal(m.Membership); err != nil {
		return d, fmt.Errorf("encode membership: %w", err)
	}
	sessions := m.Sessions
	if sessions == nil {
		sessions = []domain.WorkoutSession{}
	}
	if d.sessions, err = json.Marshal(sessions); err != nil {
		return d, fmt.Errorf("encode sessions: %w", err)
	}
	payments := m.Payments
	if payments == nil {
		payments = []domain.Payment{}
	}
	if d.payments, err = json.Marshal(payments); err != nil {
		return d, fmt.Errorf("encode payments: %w", err)
	}
	if m.AssignedTrainer != nil {
		if d.trainer, err = json.Marshal(m.AssignedTrainer); err != nil {
			return d, fmt.Errorf("encode trainer: %w", err)
		}
	}
	return d, nil
}

func (d documents) decodeInto(m *domain.Member) error {
	if len(d.membership) > 0 {
		if err := json.Unmarshal(d.membership, &m.Membership); err != nil {
			return fmt.Errorf("decode membership: %w", err)
		}
	}
	m.Sessions = []domain.WorkoutSession{}
	if len(d.sessions) > 0 {
		if err := json.Unmarshal(d.sessions, &m.Sessions); err != nil {
			return fmt.Errorf("decode sessions: %w", err)
		}
	}
	m.Payments = []domain.Payment{}
	if len(d.payments) > 0 {
		if err := json.Unmarshal(d.payments, &m.Payments); err != nil {
			return fmt.Errorf("decode payments: %w", err)
		}
	}
	m.AssignedTrainer = nil
	if len(d.trainer) > 0 && string(d.trainer) != "null" {
		var t domain.Trainer
		if err := json.Unmarshal(d.trainer, &t); err != nil {
			return fmt.Errorf("decode trainer: %w", err)
		}
		m.AssignedTrainer = &t
	}
	return nil
}
