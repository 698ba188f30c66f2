package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"buff/internal/domain/identity"
	"buff/internal/domain/member"
)

// MemberStoreForFederated defines the store interface needed by FederatedSignIn.
type MemberStoreForFederated interface {
	Get(ctx context.Context, id string) (member.Member, bool, error)
	FindByEmail(ctx context.Context, email string) (member.Member, bool, error)
	Create(ctx context.Context, m member.Member) error
	Update(ctx context.Context, id string, patch member.Patch) error
}

// FederatedSignInInput carries the identity asserted by the provider.
type FederatedSignInInput struct {
	Identity identity.Federated
}

// FederatedSignInDeps holds dependencies for FederatedSignIn.
type FederatedSignInDeps struct {
	MemberStore MemberStoreForFederated
	Now         func() time.Time // defaults to time.Now
}

// FederatedSignInResult reports the member and whether it was created.
type FederatedSignInResult struct {
	Member  member.Member
	Created bool
	Linked  bool
}

// ExecuteFederatedSignIn finds or creates the member for a provider identity.
// PRE: the provider has completed its interactive flow
// POST: exactly one member carries the identity's provider/subject
// INVARIANT: a stored full name is never overwritten by the provider name
func ExecuteFederatedSignIn(ctx context.Context, input FederatedSignInInput, deps FederatedSignInDeps) (FederatedSignInResult, error) {
	fed := input.Identity
	if !fed.Valid() {
		return FederatedSignInResult{}, fmt.Errorf("%w: provider returned no subject", identity.ErrFederatedSignInFailed)
	}
	email := member.NormalizeEmail(fed.Email)
	if err := member.ValidateEmail(email); err != nil {
		return FederatedSignInResult{}, fmt.Errorf("%w: provider returned no usable email", identity.ErrFederatedSignInFailed)
	}
	now := time.Now()
	if deps.Now != nil {
		now = deps.Now()
	}
	providerName := sanitizeName(fed.DisplayName)

	id := member.FederatedID(fed.Provider, fed.Subject)
	existing, found, err := deps.MemberStore.Get(ctx, id)
	if err != nil {
		return FederatedSignInResult{}, fmt.Errorf("look up federated member: %w", err)
	}
	if found {
		m, err := refreshFromProvider(ctx, deps.MemberStore, existing, providerName, fed.PhotoURL)
		if err != nil {
			return FederatedSignInResult{}, err
		}
		slog.Info("auth_event", "event", "federated_login", "member_id", m.ID, "provider", fed.Provider)
		return FederatedSignInResult{Member: m}, nil
	}

	byEmail, found, err := deps.MemberStore.FindByEmail(ctx, email)
	if err != nil {
		return FederatedSignInResult{}, fmt.Errorf("look up member by email: %w", err)
	}
	if found {
		return linkIdentity(ctx, deps.MemberStore, byEmail, fed, providerName)
	}

	m := member.New(id, email, member.ResolveDisplayName("", providerName), now)
	m.Credential.Provider = fed.Provider
	m.Credential.Subject = fed.Subject
	if len(fed.PhotoURL) <= member.MaxPhotoURLLength {
		m.PhotoURL = fed.PhotoURL
	}
	if err := deps.MemberStore.Create(ctx, m); err != nil {
		if errors.Is(err, identity.ErrAlreadyExists) {
			// A concurrent callback for the same subject won the insert.
			winner, ok, gerr := deps.MemberStore.Get(ctx, id)
			if gerr == nil && ok {
				return FederatedSignInResult{Member: winner}, nil
			}
		}
		return FederatedSignInResult{}, fmt.Errorf("create federated member: %w", err)
	}
	slog.Info("auth_event", "event", "federated_member_created", "member_id", m.ID, "provider", fed.Provider)
	return FederatedSignInResult{Member: m, Created: true}, nil
}

// linkIdentity merges a federated reference into a member that registered
// with a password under the same email.
func linkIdentity(ctx context.Context, store MemberStoreForFederated, m member.Member, fed identity.Federated, providerName string) (FederatedSignInResult, error) {
	if m.Credential.Provider == fed.Provider && m.Credential.Subject != "" && m.Credential.Subject != fed.Subject {
		slog.Info("auth_event", "event", "federated_link_rejected", "member_id", m.ID, "provider", fed.Provider)
		return FederatedSignInResult{}, fmt.Errorf("%w: email is bound to another %s account", identity.ErrFederatedSignInFailed, fed.Provider)
	}
	cred := m.Credential
	cred.Provider = fed.Provider
	cred.Subject = fed.Subject
	patch := member.Patch{Credential: &cred}
	if m.FullName == "" {
		name := member.ResolveDisplayName("", providerName)
		patch.FullName = &name
	}
	if m.PhotoURL == "" && fed.PhotoURL != "" && len(fed.PhotoURL) <= member.MaxPhotoURLLength {
		patch.PhotoURL = &fed.PhotoURL
	}
	if err := store.Update(ctx, m.ID, patch); err != nil {
		return FederatedSignInResult{}, fmt.Errorf("link federated identity: %w", err)
	}
	patch.Apply(&m, time.Now())
	slog.Info("auth_event", "event", "federated_identity_linked", "member_id", m.ID, "provider", fed.Provider)
	return FederatedSignInResult{Member: m, Linked: true}, nil
}

// refreshFromProvider fills an empty stored name or photo from the provider.
func refreshFromProvider(ctx context.Context, store MemberStoreForFederated, m member.Member, providerName, photoURL string) (member.Member, error) {
	var patch member.Patch
	if m.FullName == "" && providerName != "" {
		patch.FullName = &providerName
	}
	if m.PhotoURL == "" && photoURL != "" && len(photoURL) <= member.MaxPhotoURLLength {
		patch.PhotoURL = &photoURL
	}
	if patch.IsEmpty() {
		return m, nil
	}
	if err := store.Update(ctx, m.ID, patch); err != nil {
		return member.Member{}, fmt.Errorf("refresh federated member: %w", err)
	}
	patch.Apply(&m, time.Now())
	return m, nil
}
