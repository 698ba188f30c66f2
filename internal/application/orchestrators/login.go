package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"buff/internal/domain/identity"
	"buff/internal/domain/member"
)

// MemberStoreForLogin defines the store interface needed by Login.
type MemberStoreForLogin interface {
	FindByEmail(ctx context.Context, email string) (member.Member, bool, error)
	Update(ctx context.Context, id string, patch member.Patch) error
}

// PasswordVerifier checks a plaintext password against a stored hash.
// member.Hasher satisfies it.
type PasswordVerifier interface {
	Verify(hash, plaintext string) error
}

// unknownEmailHash is verified against when no member matches, so an unknown
// email costs the same bcrypt work as a wrong password.
var unknownEmailHash = sync.OnceValue(func() string {
	h, err := member.NewHasher(member.DefaultCost).Hash("unknown-email-placeholder")
	if err != nil {
		return ""
	}
	return h
})

// LoginInput carries input for the login orchestrator.
type LoginInput struct {
	Email    string
	Password string
}

// LoginDeps holds dependencies for Login.
type LoginDeps struct {
	MemberStore MemberStoreForLogin
	Verifier    PasswordVerifier
	Now         func() time.Time // defaults to time.Now
}

// ExecuteLogin verifies a credential and returns the member for session creation.
// PRE: none
// POST: on success the failed-login counter is reset; on a wrong password it is incremented
// INVARIANT: never falls back to federated sign-in
func ExecuteLogin(ctx context.Context, input LoginInput, deps LoginDeps) (member.Member, error) {
	now := time.Now()
	if deps.Now != nil {
		now = deps.Now()
	}
	email := member.NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return member.Member{}, identity.ErrInvalidCredential
	}

	m, found, err := deps.MemberStore.FindByEmail(ctx, email)
	if err != nil {
		return member.Member{}, fmt.Errorf("look up member: %w", err)
	}
	if !found {
		_ = deps.Verifier.Verify(unknownEmailHash(), input.Password)
		slog.Info("auth_event", "event", "login_failed", "reason", "not_found")
		return member.Member{}, identity.ErrNotFound
	}

	if m.IsLocked(now) {
		slog.Info("auth_event", "event", "login_blocked", "member_id", m.ID, "reason", "locked")
		return member.Member{}, identity.ErrAccountLocked
	}

	if err := deps.Verifier.Verify(m.Credential.PasswordHash, input.Password); err != nil {
		if errors.Is(err, identity.ErrNoCredentialOnFile) {
			slog.Info("auth_event", "event", "login_failed", "member_id", m.ID, "reason", "no_password")
			return member.Member{}, err
		}
		m.RecordFailedLogin(now)
		if uerr := deps.MemberStore.Update(ctx, m.ID, member.LockoutPatch(m)); uerr != nil {
			slog.Warn("auth_event", "event", "lockout_update_failed", "member_id", m.ID, "error", uerr)
		}
		slog.Info("auth_event", "event", "login_failed", "member_id", m.ID, "reason", "wrong_password", "failed_logins", m.FailedLogins)
		return member.Member{}, err
	}

	if m.FailedLogins > 0 || !m.LockedUntil.IsZero() {
		m.FailedLogins = 0
		m.LockedUntil = time.Time{}
		if err := deps.MemberStore.Update(ctx, m.ID, member.LockoutPatch(m)); err != nil {
			slog.Warn("auth_event", "event", "lockout_reset_failed", "member_id", m.ID, "error", err)
		}
	}

	slog.Info("auth_event", "event", "login_success", "member_id", m.ID)
	return m, nil
}
