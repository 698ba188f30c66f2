// Package session drives one caller through the sign-in state machine:
// Anonymous, Authenticating, Authenticated and back to Anonymous.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sessionStore "buff/internal/adapters/storage/session"
	"buff/internal/application/orchestrators"
	"buff/internal/domain/identity"
	"buff/internal/domain/member"
	domain "buff/internal/domain/session"
	"buff/internal/metrics"
)

// DefaultTimeout bounds a single authenticating operation.
const DefaultTimeout = 15 * time.Second

// Status is the observable state of a Manager.
type Status struct {
	State    domain.State
	MemberID string // set only when State is Authenticated
}

// Config selects behaviour fixed for the life of a Manager.
type Config struct {
	Mode    domain.Mode
	Timeout time.Duration
	TTL     time.Duration
}

// Deps holds the collaborators of a Manager.
type Deps struct {
	Members  MemberStore
	Sessions sessionStore.Store // defaults to an in-memory registry
	Storage  ClientStorage      // defaults to MemoryStorage
	Strategy CredentialStrategy // defaults to LocalCredentials at DefaultCost
	Provider IdentityProvider   // nil disables federated sign-in
	Guard    *Guard             // shared overlap guard; nil limits the guard to this Manager
	Metrics  metrics.Recorder
	Welcome  *orchestrators.SendWelcomeDeps // nil skips the welcome email
	Now      func() time.Time
}

// attempt tracks the authenticating operation in flight.
type attempt struct {
	cancel    context.CancelFunc
	signedOut bool
}

// Manager holds one caller's authentication state.
// It is safe for concurrent use; overlapping sign-in attempts are rejected
// with identity.ErrAuthInProgress rather than queued.
type Manager struct {
	cfg  Config
	deps Deps

	mu        sync.Mutex
	status    Status
	current   *attempt
	observers map[int]func(Status)
	nextObs   int
	watching  bool
	stopWatch func()
}

// NewManager builds a Manager in the Anonymous state.
// PRE: deps.Members is non-nil
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeToken
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TTL <= 0 {
		cfg.TTL = domain.DefaultTTL
	}
	if deps.Sessions == nil {
		deps.Sessions = sessionStore.NewMemoryStore()
	}
	if deps.Storage == nil {
		deps.Storage = NewMemoryStorage()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Strategy == nil {
		deps.Strategy = LocalCredentials{
			Members: deps.Members,
			Hasher:  member.NewHasher(member.DefaultCost),
			Now:     deps.Now,
		}
	}
	return &Manager{
		cfg:       cfg,
		deps:      deps,
		status:    Status{State: domain.Anonymous},
		observers: make(map[int]func(Status)),
	}
}

// Current returns the present state.
func (m *Manager) Current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Mode returns the configured session mode.
func (m *Manager) Mode() domain.Mode {
	return m.cfg.Mode
}

// OnChange registers fn to be called after every state change. The
// returned func removes the registration.
func (m *Manager) OnChange(fn func(Status)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify(s Status) {
	m.mu.Lock()
	fns := make([]func(Status), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	m.notify(s)
}

// RegisterWithCredential creates a password-backed member and signs it in.
// POST: Authenticated on success; the prior state is restored on failure
func (m *Manager) RegisterWithCredential(ctx context.Context, email, password, fullName string) (member.Member, error) {
	mem, err := m.authenticate(ctx, "register", member.NormalizeEmail(email), domain.MethodPassword,
		func(ctx context.Context) (member.Member, error) {
			return m.deps.Strategy.Register(ctx, email, password, fullName)
		})
	if err != nil {
		return member.Member{}, err
	}
	if m.deps.Welcome != nil {
		if err := orchestrators.ExecuteSendWelcome(ctx, mem, *m.deps.Welcome); err != nil {
			slog.Warn("welcome_email_failed", "member_id", mem.ID, "error", err)
		}
	}
	return mem, nil
}

// SignInWithCredential verifies email and password and signs the member in.
// INVARIANT: a credential failure never falls back to federated sign-in
func (m *Manager) SignInWithCredential(ctx context.Context, email, password string) (member.Member, error) {
	return m.authenticate(ctx, "login", member.NormalizeEmail(email), domain.MethodPassword,
		func(ctx context.Context) (member.Member, error) {
			return m.deps.Strategy.SignIn(ctx, email, password)
		})
}

// SignInWithFederatedIdentity completes the provider flow described by cb
// and signs in the member bound to the asserted identity, creating or
// linking one when needed.
func (m *Manager) SignInWithFederatedIdentity(ctx context.Context, cb Callback) (member.Member, error) {
	provider := m.deps.Provider
	key := "federated:" + cb.State
	return m.authenticate(ctx, "federated_login", key, domain.MethodFederated,
		func(ctx context.Context) (member.Member, error) {
			if provider == nil {
				return member.Member{}, fmt.Errorf("%w: no identity provider configured", identity.ErrFederatedSignInFailed)
			}
			if cb.Error != "" {
				slog.Info("auth_event", "event", "federated_login_cancelled", "provider", provider.Name(), "reason", cb.Error)
				return member.Member{}, fmt.Errorf("%w: %s", identity.ErrFederatedSignInFailed, cb.Error)
			}
			fed, err := provider.Complete(ctx, cb)
			if err != nil {
				if errors.Is(err, identity.ErrFederatedSignInFailed) {
					return member.Member{}, err
				}
				return member.Member{}, fmt.Errorf("%w: %w", identity.ErrFederatedSignInFailed, err)
			}
			res, err := orchestrators.ExecuteFederatedSignIn(ctx, orchestrators.FederatedSignInInput{Identity: fed},
				orchestrators.FederatedSignInDeps{MemberStore: m.deps.Members, Now: m.deps.Now})
			if err != nil {
				return member.Member{}, err
			}
			return res.Member, nil
		})
}

// authenticate runs fn as one Authenticating step and issues a session on success.
func (m *Manager) authenticate(ctx context.Context, event, key string, method domain.Method, fn func(context.Context) (member.Member, error)) (member.Member, error) {
	prev, actx, at, done, err := m.begin(ctx, key)
	if err != nil {
		m.record(event, err)
		return member.Member{}, err
	}
	defer done()

	mem, err := runWithDeadline(actx, fn)
	var token string
	if err == nil {
		token, err = m.issue(actx, mem.ID, method)
	}
	if err == nil && actx.Err() != nil {
		err = actx.Err()
	}
	if !m.finish(prev, at, mem.ID, err) {
		if err == nil {
			err = context.Canceled
		}
		if token != "" {
			m.discard(token)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("auth_event", "event", event+"_timeout", "timeout", m.cfg.Timeout)
			err = fmt.Errorf("%s timed out: %w", event, err)
		}
		m.record(event, err)
		return member.Member{}, err
	}
	m.record(event, nil)
	return mem, nil
}

// begin moves the manager into Authenticating.
func (m *Manager) begin(ctx context.Context, key string) (prev Status, actx context.Context, at *attempt, done func(), err error) {
	m.mu.Lock()
	if m.status.State == domain.Authenticating {
		m.mu.Unlock()
		return Status{}, nil, nil, nil, identity.ErrAuthInProgress
	}
	release, ok := m.deps.Guard.TryAcquire(key)
	if !ok {
		m.mu.Unlock()
		return Status{}, nil, nil, nil, identity.ErrAuthInProgress
	}
	actx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	at = &attempt{cancel: cancel}
	prev = m.status
	m.current = at
	m.status = Status{State: domain.Authenticating}
	m.mu.Unlock()
	m.notify(Status{State: domain.Authenticating})

	return prev, actx, at, func() {
		cancel()
		release()
	}, nil
}

// finish settles the attempt and reports whether it succeeded.
func (m *Manager) finish(prev Status, at *attempt, memberID string, err error) bool {
	m.mu.Lock()
	ok := err == nil && !at.signedOut
	switch {
	case ok:
		m.status = Status{State: domain.Authenticated, MemberID: memberID}
	case at.signedOut:
		m.status = Status{State: domain.Anonymous}
	default:
		m.status = prev
	}
	if m.current == at {
		m.current = nil
	}
	s := m.status
	m.mu.Unlock()
	m.notify(s)
	return ok
}

// runWithDeadline returns when fn does or when ctx ends, whichever is first.
func runWithDeadline(ctx context.Context, fn func(context.Context) (member.Member, error)) (member.Member, error) {
	type result struct {
		m   member.Member
		err error
	}
	ch := make(chan result, 1)
	go func() {
		mem, err := fn(ctx)
		ch <- result{mem, err}
	}()
	select {
	case r := <-ch:
		return r.m, r.err
	case <-ctx.Done():
		return member.Member{}, ctx.Err()
	}
}

// issue records a session for memberID. In token mode the token goes into
// the registry and client storage; federated mode keeps no token.
func (m *Manager) issue(ctx context.Context, memberID string, method domain.Method) (string, error) {
	if m.cfg.Mode != domain.ModeToken {
		return "", nil
	}
	sess, err := domain.New(memberID, method, m.deps.Now(), m.cfg.TTL)
	if err != nil {
		return "", err
	}
	if err := m.deps.Sessions.Create(ctx, sess); err != nil {
		return "", fmt.Errorf("issue session: %w", err)
	}
	m.deps.Storage.Set(TokenKey, sess.Token)
	slog.Info("auth_event", "event", "session_issued", "member_id", memberID, "method", string(method))
	return sess.Token, nil
}

// discard undoes issue after an attempt was abandoned.
func (m *Manager) discard(token string) {
	if cur, ok := m.deps.Storage.Get(TokenKey); ok && cur == token {
		m.deps.Storage.Delete(TokenKey)
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()
	if err := m.deps.Sessions.Delete(ctx, token); err != nil {
		slog.Warn("auth_event", "event", "session_discard_failed", "error", err)
	}
}

// RestoreSession re-establishes state from what the caller kept between
// requests. Calling it repeatedly with unchanged storage yields the same state.
// POST: token mode: Authenticated if the token and member are valid,
// Anonymous otherwise; on a storage error the state is unchanged
func (m *Manager) RestoreSession(ctx context.Context) (Status, error) {
	if m.cfg.Mode == domain.ModeFederated {
		return m.watchProvider(), nil
	}

	if cur := m.Current(); cur.State == domain.Authenticating {
		return cur, identity.ErrAuthInProgress
	}

	token, ok := m.deps.Storage.Get(TokenKey)
	if !ok || token == "" {
		return m.becomeAnonymous(), nil
	}

	sess, found, err := m.deps.Sessions.Get(ctx, token)
	if err != nil {
		return m.Current(), fmt.Errorf("restore session: %w", err)
	}
	if !found {
		m.deps.Storage.Delete(TokenKey)
		slog.Info("auth_event", "event", "session_stale", "reason", "unknown_token")
		return m.becomeAnonymous(), nil
	}

	mem, found, err := m.deps.Members.Get(ctx, sess.MemberID)
	if err != nil {
		return m.Current(), fmt.Errorf("restore session: %w", err)
	}
	if !found || mem.ID != sess.MemberID {
		m.deps.Storage.Delete(TokenKey)
		if err := m.deps.Sessions.Delete(ctx, token); err != nil {
			slog.Warn("auth_event", "event", "session_cleanup_failed", "error", err)
		}
		slog.Info("auth_event", "event", "session_stale", "reason", "member_missing")
		return m.becomeAnonymous(), nil
	}

	s := Status{State: domain.Authenticated, MemberID: mem.ID}
	if m.Current() != s {
		m.setStatus(s)
	}
	return s, nil
}

func (m *Manager) becomeAnonymous() Status {
	s := Status{State: domain.Anonymous}
	if m.Current() != s {
		m.setStatus(s)
	}
	return s
}

// watchProvider subscribes once to the provider's identity notifications.
func (m *Manager) watchProvider() Status {
	m.mu.Lock()
	if m.watching || m.deps.Provider == nil {
		s := m.status
		m.mu.Unlock()
		return s
	}
	m.watching = true
	m.mu.Unlock()

	stop := m.deps.Provider.Watch(m.onProviderChange)

	m.mu.Lock()
	if !m.watching {
		// Close ran while Watch was registering.
		m.mu.Unlock()
		stop()
		return m.Current()
	}
	m.stopWatch = stop
	s := m.status
	m.mu.Unlock()
	return s
}

// onProviderChange mirrors an identity pushed by the provider.
// Pushes that arrive while an attempt is in flight are left to the attempt.
func (m *Manager) onProviderChange(fed *identity.Federated) {
	if m.Current().State == domain.Authenticating {
		return
	}
	if fed == nil {
		m.becomeAnonymous()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()
	res, err := orchestrators.ExecuteFederatedSignIn(ctx, orchestrators.FederatedSignInInput{Identity: *fed},
		orchestrators.FederatedSignInDeps{MemberStore: m.deps.Members, Now: m.deps.Now})
	if err != nil {
		slog.Warn("auth_event", "event", "federated_push_failed", "provider", fed.Provider, "error", err)
		m.becomeAnonymous()
		return
	}
	s := Status{State: domain.Authenticated, MemberID: res.Member.ID}
	if m.Current() != s {
		m.setStatus(s)
	}
}

// SignOut clears local state first and then tells the registry and the
// provider. Remote failures are logged; the result is always Anonymous.
func (m *Manager) SignOut(ctx context.Context) {
	token, hasToken := m.deps.Storage.Get(TokenKey)
	m.deps.Storage.Delete(TokenKey)

	m.mu.Lock()
	prev := m.status
	if m.current != nil {
		m.current.signedOut = true
		m.current.cancel()
	}
	m.status = Status{State: domain.Anonymous}
	m.mu.Unlock()
	m.notify(Status{State: domain.Anonymous})

	if hasToken && token != "" {
		if err := m.deps.Sessions.Delete(ctx, token); err != nil {
			slog.Warn("auth_event", "event", "sign_out_registry_failed", "error", err)
		}
	}
	if m.deps.Provider != nil {
		if err := m.deps.Provider.SignOut(ctx); err != nil {
			slog.Warn("auth_event", "event", "sign_out_provider_failed", "provider", m.deps.Provider.Name(), "error", err)
		}
	}
	m.record("logout", nil)
	slog.Info("auth_event", "event", "sign_out", "member_id", prev.MemberID)
}

func (m *Manager) requireMember() (string, error) {
	s := m.Current()
	if s.State != domain.Authenticated {
		return "", identity.ErrNotAuthenticated
	}
	return s.MemberID, nil
}

// ChangePassword replaces the signed-in member's password and rotates the
// session so tokens issued before the change stop working.
// POST: if the old sessions cannot be revoked the new password is kept and
// the revocation error is returned; the caller's session is unchanged
func (m *Manager) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	memberID, err := m.requireMember()
	if err != nil {
		return err
	}
	hasher := member.NewHasher(member.DefaultCost)
	if local, ok := m.deps.Strategy.(LocalCredentials); ok {
		hasher = local.Hasher
	}
	err = orchestrators.ExecuteChangePassword(ctx, orchestrators.ChangePasswordInput{
		MemberID:        memberID,
		CurrentPassword: currentPassword,
		NewPassword:     newPassword,
	}, orchestrators.ChangePasswordDeps{MemberStore: m.deps.Members, Hasher: hasher})
	m.record("change_password", err)
	if err != nil {
		return err
	}
	if m.cfg.Mode != domain.ModeToken {
		return nil
	}

	if err := m.deps.Sessions.DeleteForMember(ctx, memberID); err != nil {
		slog.Warn("auth_event", "event", "session_revoke_failed", "member_id", memberID, "error", err)
		return fmt.Errorf("revoke sessions after password change: %w", err)
	}
	if _, err := m.issue(ctx, memberID, domain.MethodPassword); err != nil {
		m.deps.Storage.Delete(TokenKey)
		m.setStatus(Status{State: domain.Anonymous})
		return err
	}
	return nil
}

// UpdateProfile merges the given fields into the signed-in member.
func (m *Manager) UpdateProfile(ctx context.Context, fullName, photoURL *string) (member.Member, error) {
	memberID, err := m.requireMember()
	if err != nil {
		return member.Member{}, err
	}
	mem, err := orchestrators.ExecuteUpdateProfile(ctx, orchestrators.UpdateProfileInput{
		MemberID: memberID,
		FullName: fullName,
		PhotoURL: photoURL,
	}, orchestrators.UpdateProfileDeps{MemberStore: m.deps.Members})
	m.record("update_profile", err)
	return mem, err
}

// Member loads the signed-in member from the credential store.
func (m *Manager) Member(ctx context.Context) (member.Member, bool, error) {
	memberID, err := m.requireMember()
	if err != nil {
		return member.Member{}, false, nil
	}
	return m.deps.Members.Get(ctx, memberID)
}

// Close ends the provider subscription and abandons any attempt in flight.
func (m *Manager) Close() {
	m.mu.Lock()
	stop := m.stopWatch
	m.stopWatch = nil
	m.watching = false
	if m.current != nil {
		m.current.cancel()
	}
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (m *Manager) record(event string, err error) {
	if m.deps.Metrics == nil {
		return
	}
	m.deps.Metrics.AuthEvent(event, Outcome(err))
}

// Outcome names the result of an operation for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, identity.ErrValidation):
		return "validation"
	case errors.Is(err, identity.ErrEmailInUse):
		return "email_in_use"
	case identity.IsCredentialFailure(err):
		return "invalid_credential"
	case errors.Is(err, identity.ErrAccountLocked):
		return "locked"
	case errors.Is(err, identity.ErrAuthInProgress):
		return "in_progress"
	case errors.Is(err, identity.ErrFederatedSignInFailed):
		return "federated_failed"
	case errors.Is(err, identity.ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
