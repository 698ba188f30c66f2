// Package auth is the surface views bind to: it wraps a session.Manager with
// a loading flag, a user-facing error message and the current member.
package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"buff/internal/application/session"
	"buff/internal/domain/identity"
	"buff/internal/domain/member"
	domain "buff/internal/domain/session"
)

// Snapshot is what a view renders.
type Snapshot struct {
	CurrentMember *member.Member
	IsLoading     bool
	Error         string
}

// Facade exposes the sign-in operations with loading and error tracking.
type Facade struct {
	manager *session.Manager

	mu          sync.Mutex
	snap        Snapshot
	pending     int
	subs        map[int]func(Snapshot)
	nextSub     int
	unsubscribe func()
}

// refreshTimeout bounds member reloads triggered by provider pushes.
const refreshTimeout = 5 * time.Second

// New wraps manager. The Facade owns manager from here on; Close closes both.
func New(manager *session.Manager) *Facade {
	f := &Facade{
		manager: manager,
		subs:    make(map[int]func(Snapshot)),
	}
	f.unsubscribe = manager.OnChange(f.onStatus)
	return f
}

// Snapshot returns a copy of the current view state.
func (f *Facade) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copySnap()
}

func (f *Facade) copySnap() Snapshot {
	s := f.snap
	if s.CurrentMember != nil {
		m := *s.CurrentMember
		s.CurrentMember = &m
	}
	return s
}

// Subscribe registers fn for every snapshot change.
func (f *Facade) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// IsAuthenticated is the protected-route guard.
func (f *Facade) IsAuthenticated() bool {
	return f.manager.Current().State == domain.Authenticated
}

// Manager returns the wrapped manager.
func (f *Facade) Manager() *session.Manager {
	return f.manager
}

func (f *Facade) update(fn func(*Snapshot)) {
	f.mu.Lock()
	fn(&f.snap)
	snap := f.copySnap()
	subs := make([]func(Snapshot), 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()
	for _, s := range subs {
		s(snap)
	}
}

func (f *Facade) startLoading() {
	f.update(func(s *Snapshot) {
		f.pending++
		s.IsLoading = true
		s.Error = ""
	})
}

func (f *Facade) stopLoading() {
	f.update(func(s *Snapshot) {
		f.pending--
		s.IsLoading = f.pending > 0
	})
}

// run wraps one operation: loading is set before and always cleared after,
// a failure is recorded as a user-facing message and returned unchanged.
func (f *Facade) run(ctx context.Context, op func(context.Context) error) error {
	f.startLoading()
	defer f.stopLoading()

	if err := op(ctx); err != nil {
		msg := identity.UserMessage(err)
		f.update(func(s *Snapshot) { s.Error = msg })
		return err
	}
	f.refresh(ctx)
	return nil
}

// refresh re-reads the current member from the credential store.
func (f *Facade) refresh(ctx context.Context) {
	m, ok, err := f.manager.Member(ctx)
	if err != nil {
		slog.Warn("member_refresh_failed", "error", err)
		return
	}
	f.update(func(s *Snapshot) {
		if ok {
			s.CurrentMember = &m
		} else {
			s.CurrentMember = nil
		}
	})
}

// onStatus follows state changes that did not come through the Facade,
// such as a provider push.
func (f *Facade) onStatus(st session.Status) {
	switch st.State {
	case domain.Anonymous:
		f.update(func(s *Snapshot) { s.CurrentMember = nil })
	case domain.Authenticated:
		f.mu.Lock()
		current := f.snap.CurrentMember
		f.mu.Unlock()
		if current != nil && current.ID == st.MemberID {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		f.refresh(ctx)
	}
}

// Register creates a credential member and signs it in.
func (f *Facade) Register(ctx context.Context, email, password, fullName string) error {
	return f.run(ctx, func(ctx context.Context) error {
		_, err := f.manager.RegisterWithCredential(ctx, email, password, fullName)
		return err
	})
}

// SignIn signs in with email and password.
func (f *Facade) SignIn(ctx context.Context, email, password string) error {
	return f.run(ctx, func(ctx context.Context) error {
		_, err := f.manager.SignInWithCredential(ctx, email, password)
		return err
	})
}

// SignInWithFederatedIdentity completes a provider callback.
func (f *Facade) SignInWithFederatedIdentity(ctx context.Context, cb session.Callback) error {
	return f.run(ctx, func(ctx context.Context) error {
		_, err := f.manager.SignInWithFederatedIdentity(ctx, cb)
		return err
	})
}

// SignOut always ends Anonymous.
func (f *Facade) SignOut(ctx context.Context) {
	_ = f.run(ctx, func(ctx context.Context) error {
		f.manager.SignOut(ctx)
		return nil
	})
}

// Restore re-establishes the session kept by the caller.
func (f *Facade) Restore(ctx context.Context) error {
	return f.run(ctx, func(ctx context.Context) error {
		_, err := f.manager.RestoreSession(ctx)
		return err
	})
}

// ChangePassword replaces the signed-in member's password.
func (f *Facade) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	return f.run(ctx, func(ctx context.Context) error {
		return f.manager.ChangePassword(ctx, currentPassword, newPassword)
	})
}

// UpdateProfile merges edited profile fields. Nil fields are unchanged.
func (f *Facade) UpdateProfile(ctx context.Context, fullName, photoURL *string) error {
	return f.run(ctx, func(ctx context.Context) error {
		_, err := f.manager.UpdateProfile(ctx, fullName, photoURL)
		return err
	})
}

// Close detaches from the manager and closes it.
func (f *Facade) Close() {
	f.mu.Lock()
	unsubscribe := f.unsubscribe
	f.unsubscribe = nil
	f.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	f.manager.Close()
}
