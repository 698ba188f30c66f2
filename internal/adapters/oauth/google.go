// Package oauth implements the Google identity provider used for federated
// sign-in: the authorization code flow, signed state, and per-caller
// clients that push identity changes.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"buff/internal/domain/identity"
)

// ProviderName is stored on members linked through Google.
const ProviderName = "google"

const (
	defaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	defaultRevokeURL   = "https://oauth2.googleapis.com/revoke"
)

// GoogleConfig configures the Google provider. The URL fields override
// Google's endpoints in tests.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string
	RevokeURL   string

	HTTPClient *http.Client
}

// Google runs the authorization code flow against Google.
type Google struct {
	oauth       *oauth2.Config
	userInfoURL string
	revokeURL   string
	httpClient  *http.Client
}

// NewGoogle builds a provider from cfg, filling in Google's endpoints.
func NewGoogle(cfg GoogleConfig) *Google {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}
	if cfg.RevokeURL == "" {
		cfg.RevokeURL = defaultRevokeURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: cfg.UserInfoURL,
		revokeURL:   cfg.RevokeURL,
		httpClient:  cfg.HTTPClient,
	}
}

// LoginURL returns the consent-screen URL carrying state.
func (g *Google) LoginURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("prompt", "select_account"))
}

func (g *Google) ctx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

// userInfo is the subset of the OpenID Connect userinfo response we use.
type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Exchange trades an authorization code for a token and the caller's identity.
// POST: the returned identity has a subject and a verified email
func (g *Google) Exchange(ctx context.Context, code string) (*oauth2.Token, identity.Federated, error) {
	if code == "" {
		return nil, identity.Federated{}, fmt.Errorf("%w: missing authorization code", identity.ErrFederatedSignInFailed)
	}
	ctx = g.ctx(ctx)
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, identity.Federated{}, fmt.Errorf("%w: exchange code: %w", identity.ErrFederatedSignInFailed, err)
	}

	resp, err := g.oauth.Client(ctx, tok).Get(g.userInfoURL)
	if err != nil {
		return nil, identity.Federated{}, fmt.Errorf("%w: fetch user info: %w", identity.ErrFederatedSignInFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, identity.Federated{}, fmt.Errorf("%w: read user info: %w", identity.ErrFederatedSignInFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, identity.Federated{}, fmt.Errorf("%w: user info status %d", identity.ErrFederatedSignInFailed, resp.StatusCode)
	}
	var info userInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, identity.Federated{}, fmt.Errorf("%w: parse user info: %w", identity.ErrFederatedSignInFailed, err)
	}
	if info.Sub == "" {
		return nil, identity.Federated{}, fmt.Errorf("%w: empty subject", identity.ErrFederatedSignInFailed)
	}
	if !info.EmailVerified {
		return nil, identity.Federated{}, fmt.Errorf("%w: email not verified", identity.ErrFederatedSignInFailed)
	}
	return tok, identity.Federated{
		Provider:    ProviderName,
		Subject:     info.Sub,
		Email:       info.Email,
		DisplayName: info.Name,
		PhotoURL:    info.Picture,
	}, nil
}

// Revoke invalidates token at Google.
func (g *Google) Revoke(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.revokeURL,
		strings.NewReader(url.Values{"token": {token}}.Encode()))
	if err != nil {
		return fmt.Errorf("create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke failed with status %d", resp.StatusCode)
	}
	return nil
}
