package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/goleak"

	memberStore "buff/internal/adapters/storage/member"
	sessionStore "buff/internal/adapters/storage/session"
	"buff/internal/application/auth"
	"buff/internal/application/session"
	"buff/internal/domain/identity"
	"buff/internal/domain/member"
	domain "buff/internal/domain/session"
)

type env struct {
	members  *memberStore.MemoryStore
	sessions *sessionStore.MemoryStore
	storage  *session.MemoryStorage
}

func newEnv() *env {
	return &env{
		members:  memberStore.NewMemoryStore(),
		sessions: sessionStore.NewMemoryStore(),
		storage:  session.NewMemoryStorage(),
	}
}

func (e *env) facade(cfg session.Config, provider session.IdentityProvider) *auth.Facade {
	return auth.New(session.NewManager(cfg, session.Deps{
		Members:  e.members,
		Sessions: e.sessions,
		Storage:  e.storage,
		Strategy: session.LocalCredentials{Members: e.members, Hasher: member.NewHasher(member.MinCost)},
		Provider: provider,
	}))
}

// recorder collects snapshots delivered to a subscriber.
type recorder struct {
	mu    sync.Mutex
	snaps []auth.Snapshot
}

func (r *recorder) add(s auth.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) sawLoading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.snaps {
		if s.IsLoading {
			return true
		}
	}
	return false
}

func TestFacade_LoadingClearedAfterEveryOperation(t *testing.T) {
	e := newEnv()
	f := e.facade(session.Config{}, nil)
	defer f.Close()

	ops := []struct {
		name    string
		run     func() error
		wantErr bool
	}{
		{"register", func() error { return f.Register(context.Background(), "ann@example.com", "hunter2hunter2", "Ann") }, false},
		{"register duplicate", func() error { return f.Register(context.Background(), "ann@example.com", "hunter2hunter2", "Ann") }, true},
		{"sign in wrong password", func() error { return f.SignIn(context.Background(), "ann@example.com", "wrong-password") }, true},
		{"sign in", func() error { return f.SignIn(context.Background(), "ann@example.com", "hunter2hunter2") }, false},
		{"federated without provider", func() error {
			return f.SignInWithFederatedIdentity(context.Background(), session.Callback{Code: "c"})
		}, true},
		{"restore", func() error { return f.Restore(context.Background()) }, false},
		{"sign out", func() error { f.SignOut(context.Background()); return nil }, false},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			rec := &recorder{}
			unsubscribe := f.Subscribe(rec.add)
			defer unsubscribe()

			err := op.run()
			if (err != nil) != op.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, op.wantErr)
			}
			snap := f.Snapshot()
			if snap.IsLoading {
				t.Error("IsLoading still true")
			}
			if !rec.sawLoading() {
				t.Error("subscribers never saw IsLoading")
			}
			if op.wantErr && snap.Error == "" {
				t.Error("Error not recorded")
			}
			if !op.wantErr && snap.Error != "" {
				t.Errorf("Error = %q after success", snap.Error)
			}
		})
	}
}

func TestFacade_GenericSignInMessage(t *testing.T) {
	e := newEnv()
	f := e.facade(session.Config{}, nil)
	defer f.Close()
	if err := f.Register(context.Background(), "ann@example.com", "hunter2hunter2", "Ann"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	f.SignOut(context.Background())

	err := f.SignIn(context.Background(), "ann@example.com", "wrong-password")
	if !errors.Is(err, identity.ErrInvalidCredential) {
		t.Fatalf("err = %v", err)
	}
	wrongPassword := f.Snapshot().Error

	err = f.SignIn(context.Background(), "nobody@example.com", "hunter2hunter2")
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	unknownEmail := f.Snapshot().Error

	if wrongPassword != identity.MsgInvalidSignIn || unknownEmail != identity.MsgInvalidSignIn {
		t.Errorf("messages = %q / %q, want both %q", wrongPassword, unknownEmail, identity.MsgInvalidSignIn)
	}
}

// TestFacade_MemberJourney walks register, sign-out, sign-in, restore in a
// new process, profile edit, password change and sign-out.
func TestFacade_MemberJourney(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	f := e.facade(session.Config{}, nil)
	if err := f.Register(ctx, "ann@example.com", "hunter2hunter2", "Ann"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	snap := f.Snapshot()
	if snap.CurrentMember == nil || snap.CurrentMember.FullName != "Ann" || !f.IsAuthenticated() {
		t.Fatalf("after register snapshot = %+v", snap)
	}
	if snap.CurrentMember.Membership.Plan != member.NoPlan {
		t.Errorf("Membership = %+v", snap.CurrentMember.Membership)
	}

	f.SignOut(ctx)
	if f.Snapshot().CurrentMember != nil || f.IsAuthenticated() {
		t.Fatal("still signed in after SignOut")
	}

	if err := f.SignIn(ctx, "ANN@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	f.Close()

	// A new facade over the same client storage picks the session back up.
	g := e.facade(session.Config{}, nil)
	defer g.Close()
	if err := g.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if g.Snapshot().CurrentMember == nil || !g.IsAuthenticated() {
		t.Fatal("Restore did not authenticate")
	}

	name := "Ann Lee"
	if err := g.UpdateProfile(ctx, &name, nil); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got := g.Snapshot().CurrentMember.FullName; got != "Ann Lee" {
		t.Errorf("FullName = %q", got)
	}

	if err := g.ChangePassword(ctx, "hunter2hunter2", "brand-new-pass"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	g.SignOut(ctx)
	if err := g.SignIn(ctx, "ann@example.com", "brand-new-pass"); err != nil {
		t.Fatalf("SignIn with new password: %v", err)
	}
	g.SignOut(ctx)
	if g.Manager().Current().State != domain.Anonymous {
		t.Errorf("state = %v", g.Manager().Current().State)
	}
}

// pushProvider lets a test push identities through Watch.
type pushProvider struct {
	mu sync.Mutex
	fn func(*identity.Federated)
}

func (p *pushProvider) Name() string { return "google" }
func (p *pushProvider) Complete(context.Context, session.Callback) (identity.Federated, error) {
	return identity.Federated{}, errors.New("not used")
}
func (p *pushProvider) SignOut(context.Context) error { return nil }
func (p *pushProvider) Watch(fn func(*identity.Federated)) func() {
	p.mu.Lock()
	p.fn = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.fn = nil
		p.mu.Unlock()
	}
}
func (p *pushProvider) push(fed *identity.Federated) {
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	if fn != nil {
		fn(fed)
	}
}

func TestFacade_FollowsProviderPushes(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := newEnv()
	p := &pushProvider{}
	f := e.facade(session.Config{Mode: domain.ModeFederated}, p)

	if err := f.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	p.push(&identity.Federated{Provider: "google", Subject: "g-1", Email: "gina@example.com", DisplayName: "Gina"})
	snap := f.Snapshot()
	if snap.CurrentMember == nil || snap.CurrentMember.FullName != "Gina" {
		t.Fatalf("after push snapshot = %+v", snap)
	}

	p.push(nil)
	if f.Snapshot().CurrentMember != nil {
		t.Error("member kept after provider sign-out")
	}

	f.Close()
	p.push(&identity.Federated{Provider: "google", Subject: "g-2", Email: "x@example.com"})
	if f.Snapshot().CurrentMember != nil {
		t.Error("push delivered after Close")
	}
}
