package session

import (
	"context"
	"time"

	"buff/internal/application/orchestrators"
	"buff/internal/domain/member"
)

// CredentialStrategy verifies and registers email/password credentials.
// A Manager is built with exactly one strategy.
type CredentialStrategy interface {
	Register(ctx context.Context, email, password, fullName string) (member.Member, error)
	SignIn(ctx context.Context, email, password string) (member.Member, error)
}

// MemberStore is the credential store surface the session layer uses.
type MemberStore interface {
	FindByEmail(ctx context.Context, email string) (member.Member, bool, error)
	Create(ctx context.Context, m member.Member) error
	Get(ctx context.Context, id string) (member.Member, bool, error)
	Update(ctx context.Context, id string, patch member.Patch) error
}

// LocalCredentials checks passwords against bcrypt hashes in the member store.
type LocalCredentials struct {
	Members MemberStore
	Hasher  member.Hasher
	Now     func() time.Time
}

// Register creates a member with a hashed password.
func (l LocalCredentials) Register(ctx context.Context, email, password, fullName string) (member.Member, error) {
	return orchestrators.ExecuteRegisterMember(ctx, orchestrators.RegisterMemberInput{
		Email:    email,
		Password: password,
		FullName: fullName,
	}, orchestrators.RegisterMemberDeps{
		MemberStore: l.Members,
		Hasher:      l.Hasher,
		Now:         l.Now,
	})
}

// SignIn verifies the password for email.
func (l LocalCredentials) SignIn(ctx context.Context, email, password string) (member.Member, error) {
	return orchestrators.ExecuteLogin(ctx, orchestrators.LoginInput{
		Email:    email,
		Password: password,
	}, orchestrators.LoginDeps{
		MemberStore: l.Members,
		Verifier:    l.Hasher,
		Now:         l.Now,
	})
}
