package middleware

import (
	"context"
	"net/http"

	"buff/internal/application/auth"
	"buff/internal/application/session"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const facadeContextKey contextKey = "facade"

// Cookie names.
const (
	SessionCookieName = "buff_session"
	StateCookieName   = "buff_oauth_state"
	ClientCookieName  = "buff_client"
)

// SecureCookies marks every cookie Secure. Set it in production.
var SecureCookies = false

// CookieStorage is the session.ClientStorage of one HTTP exchange: values
// are read from the request and written back as Set-Cookie headers.
// Only session.TokenKey is mapped to a cookie.
type CookieStorage struct {
	r      *http.Request
	w      http.ResponseWriter
	maxAge int

	written bool
	value   string
}

var _ session.ClientStorage = (*CookieStorage)(nil)

// NewCookieStorage binds storage to one request/response pair. maxAge is
// the session cookie lifetime in seconds.
func NewCookieStorage(w http.ResponseWriter, r *http.Request, maxAge int) *CookieStorage {
	return &CookieStorage{r: r, w: w, maxAge: maxAge}
}

// Get returns the value set earlier in this exchange, or the request cookie.
func (c *CookieStorage) Get(key string) (string, bool) {
	if key != session.TokenKey {
		return "", false
	}
	if c.written {
		return c.value, c.value != ""
	}
	cookie, err := c.r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Set writes the session cookie.
func (c *CookieStorage) Set(key, value string) {
	if key != session.TokenKey {
		return
	}
	c.written = true
	c.value = value
	SetCookie(c.w, SessionCookieName, value, "/", c.maxAge)
}

// Delete clears the session cookie.
func (c *CookieStorage) Delete(key string) {
	if key != session.TokenKey {
		return
	}
	if _, present := c.Get(key); !present {
		return
	}
	c.written = true
	c.value = ""
	ClearCookie(c.w, SessionCookieName, "/")
}

// SetCookie writes an HttpOnly, SameSite=Lax cookie.
func SetCookie(w http.ResponseWriter, name, value, path string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		HttpOnly: true,
		Secure:   SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     path,
		MaxAge:   maxAge,
	})
}

// ClearCookie removes a cookie set by SetCookie.
func ClearCookie(w http.ResponseWriter, name, path string) {
	SetCookie(w, name, "", path, -1)
}

// WithFacade returns a context carrying the request's auth facade.
func WithFacade(ctx context.Context, f *auth.Facade) context.Context {
	return context.WithValue(ctx, facadeContextKey, f)
}

// FacadeFrom extracts the facade set by WithFacade.
func FacadeFrom(ctx context.Context) (*auth.Facade, bool) {
	f, ok := ctx.Value(facadeContextKey).(*auth.Facade)
	return f, ok && f != nil
}

// RequireAuth returns middleware that redirects anonymous requests to /login.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := FacadeFrom(r.Context())
		if !ok || !f.IsAuthenticated() {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
