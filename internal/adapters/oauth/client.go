package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"buff/internal/application/session"
	"buff/internal/domain/identity"
)

// Client is one caller's connection to Google. It remembers the identity
// of the last completed flow and pushes changes to watchers: a completed
// flow, a sign-out, and the access token expiring.
type Client struct {
	google      *Google
	verifyState func(state string) error

	mu       sync.Mutex
	token    *oauth2.Token
	current  *identity.Federated
	expiry   *time.Timer
	watchers map[int]func(*identity.Federated)
	nextID   int
}

var _ session.IdentityProvider = (*Client)(nil)

// NewClient returns a signed-out client. verifyState checks the state of
// each callback; nil accepts any state.
func NewClient(g *Google, verifyState func(state string) error) *Client {
	return &Client{
		google:      g,
		verifyState: verifyState,
		watchers:    make(map[int]func(*identity.Federated)),
	}
}

// Name implements session.IdentityProvider.
func (c *Client) Name() string { return ProviderName }

// Complete finishes the authorization code flow.
// PRE: cb came from Google's redirect to this caller's browser
// POST: on success, watchers have been told about the new identity
func (c *Client) Complete(ctx context.Context, cb session.Callback) (identity.Federated, error) {
	if cb.Error != "" {
		return identity.Federated{}, fmt.Errorf("%w: provider returned %q", identity.ErrFederatedSignInFailed, cb.Error)
	}
	c.mu.Lock()
	verify := c.verifyState
	c.mu.Unlock()
	if verify != nil {
		if err := verify(cb.State); err != nil {
			return identity.Federated{}, fmt.Errorf("%w: %w", identity.ErrFederatedSignInFailed, err)
		}
	}
	tok, fed, err := c.google.Exchange(ctx, cb.Code)
	if err != nil {
		return identity.Federated{}, err
	}

	c.mu.Lock()
	c.token = tok
	c.current = &fed
	c.resetExpiryLocked(tok.Expiry)
	c.mu.Unlock()

	c.notify(&fed)
	return fed, nil
}

// SignOut forgets the identity and revokes the token. Watchers are told
// before revocation so local state is cleared even when Google is unreachable.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	tok := c.token
	c.token = nil
	c.current = nil
	c.resetExpiryLocked(time.Time{})
	c.mu.Unlock()

	c.notify(nil)
	if tok == nil || tok.AccessToken == "" {
		return nil
	}
	if err := c.google.Revoke(ctx, tok.AccessToken); err != nil {
		slog.Warn("auth_event", "event", "oauth_revoke_failed", "error", err)
		return err
	}
	return nil
}

// ExpectState replaces the state check used by the next callbacks.
func (c *Client) ExpectState(verify func(state string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verifyState = verify
}

// Watch registers fn and immediately calls it with the current identity.
func (c *Client) Watch(fn func(*identity.Federated)) (stop func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	cur := copyIdentity(c.current)
	c.mu.Unlock()

	fn(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		})
	}
}

// Identity returns the current identity, or nil when signed out.
func (c *Client) Identity() *identity.Federated {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyIdentity(c.current)
}

// Close stops the expiry timer. Watchers are not notified.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetExpiryLocked(time.Time{})
}

func (c *Client) resetExpiryLocked(at time.Time) {
	if c.expiry != nil {
		c.expiry.Stop()
		c.expiry = nil
	}
	if at.IsZero() {
		return
	}
	c.expiry = time.AfterFunc(time.Until(at), c.expire)
}

func (c *Client) expire() {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return
	}
	c.token = nil
	c.current = nil
	c.expiry = nil
	c.mu.Unlock()

	slog.Info("auth_event", "event", "oauth_token_expired")
	c.notify(nil)
}

func (c *Client) notify(fed *identity.Federated) {
	c.mu.Lock()
	fns := make([]func(*identity.Federated), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(copyIdentity(fed))
	}
}

func copyIdentity(f *identity.Federated) *identity.Federated {
	if f == nil {
		return nil
	}
	cp := *f
	return &cp
}
