package orchestrators

import (
	"context"
	"fmt"
	"log/slog"

	"buff/internal/domain/identity"
	"buff/internal/domain/member"
)

// MemberStoreForChangePassword defines the store interface needed by ChangePassword.
type MemberStoreForChangePassword interface {
	Get(ctx context.Context, id string) (member.Member, bool, error)
	Update(ctx context.Context, id string, patch member.Patch) error
}

// ChangePasswordInput carries input for the change-password orchestrator.
type ChangePasswordInput struct {
	MemberID        string
	CurrentPassword string
	NewPassword     string
}

// ChangePasswordDeps holds dependencies for ChangePassword.
type ChangePasswordDeps struct {
	MemberStore MemberStoreForChangePassword
	Hasher      member.Hasher
}

// ExecuteChangePassword validates the current password and stores a hash of the new one.
// PRE: MemberID identifies the signed-in member
// POST: password hash replaced; the federated reference is kept
func ExecuteChangePassword(ctx context.Context, input ChangePasswordInput, deps ChangePasswordDeps) error {
	if input.MemberID == "" {
		return identity.ErrNotAuthenticated
	}
	if input.CurrentPassword == "" {
		return identity.Invalid("currentPassword", "current password is required")
	}
	if err := member.ValidatePassword(input.NewPassword); err != nil {
		return err
	}
	if input.CurrentPassword == input.NewPassword {
		return identity.Invalid("newPassword", "new password must be different from current password")
	}

	m, found, err := deps.MemberStore.Get(ctx, input.MemberID)
	if err != nil {
		return fmt.Errorf("load member: %w", err)
	}
	if !found {
		return identity.ErrNotFound
	}

	if err := deps.Hasher.Verify(m.Credential.PasswordHash, input.CurrentPassword); err != nil {
		slog.Info("auth_event", "event", "password_change_rejected", "member_id", m.ID)
		return err
	}

	hash, err := deps.Hasher.Hash(input.NewPassword)
	if err != nil {
		return err
	}
	cred := m.Credential
	cred.PasswordHash = hash
	if err := deps.MemberStore.Update(ctx, m.ID, member.Patch{Credential: &cred}); err != nil {
		return fmt.Errorf("store new password: %w", err)
	}

	slog.Info("auth_event", "event", "password_changed", "member_id", m.ID)
	return nil
}
