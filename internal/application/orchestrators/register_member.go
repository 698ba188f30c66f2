package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"buff/internal/domain/identity"
	"buff/internal/domain/member"
)

// MemberStoreForRegister defines the store interface needed by RegisterMember.
type MemberStoreForRegister interface {
	FindByEmail(ctx context.Context, email string) (member.Member, bool, error)
	Create(ctx context.Context, m member.Member) error
}

// RegisterMemberInput carries input for the orchestrator.
type RegisterMemberInput struct {
	Email    string
	Password string
	FullName string
}

// RegisterMemberDeps holds dependencies for RegisterMember.
type RegisterMemberDeps struct {
	MemberStore MemberStoreForRegister
	Hasher      member.Hasher
	GenerateID  func() string    // defaults to uuid.New
	Now         func() time.Time // defaults to time.Now
}

// ExecuteRegisterMember creates a credential-backed member.
// PRE: none; all input is validated here
// POST: member persisted with a bcrypt hash and default dashboard fields
// INVARIANT: email is unique; a concurrent loser gets ErrEmailInUse from the store
func ExecuteRegisterMember(ctx context.Context, input RegisterMemberInput, deps RegisterMemberDeps) (member.Member, error) {
	fullName := sanitizeName(input.FullName)
	if err := member.ValidateFullName(fullName); err != nil {
		return member.Member{}, err
	}
	if err := member.ValidatePassword(input.Password); err != nil {
		return member.Member{}, err
	}
	email := member.NormalizeEmail(input.Email)
	if err := member.ValidateEmail(email); err != nil {
		return member.Member{}, err
	}

	_, found, err := deps.MemberStore.FindByEmail(ctx, email)
	if err != nil {
		return member.Member{}, fmt.Errorf("check email: %w", err)
	}
	if found {
		slog.Info("auth_event", "event", "register_rejected", "reason", "email_in_use")
		return member.Member{}, identity.ErrEmailInUse
	}

	hash, err := deps.Hasher.Hash(input.Password)
	if err != nil {
		return member.Member{}, err
	}

	id := uuid.New().String()
	if deps.GenerateID != nil {
		id = deps.GenerateID()
	}
	now := time.Now()
	if deps.Now != nil {
		now = deps.Now()
	}
	m := member.New(id, email, fullName, now)
	m.Credential.PasswordHash = hash
	if err := m.Validate(); err != nil {
		return member.Member{}, err
	}

	if err := deps.MemberStore.Create(ctx, m); err != nil {
		if errors.Is(err, identity.ErrEmailInUse) {
			slog.Info("auth_event", "event", "register_rejected", "reason", "email_in_use_race")
		}
		return member.Member{}, fmt.Errorf("create member: %w", err)
	}

	slog.Info("auth_event", "event", "member_registered", "member_id", m.ID)
	return m, nil
}
