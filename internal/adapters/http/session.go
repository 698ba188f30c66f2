package web

import (
	"errors"
	"log/slog"
	"net/http"

	"buff/internal/adapters/http/middleware"
	"buff/internal/adapters/oauth"
	"buff/internal/application/auth"
	"buff/internal/application/session"
	"buff/internal/domain/identity"
	domain "buff/internal/domain/session"
)

// clientCookieMaxAge bounds how long a browser keeps its federated client handle.
const clientCookieMaxAge = 86400

// withSession builds the request's auth facade, restores the caller's
// session and puts the facade in the request context.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f := s.newFacade(w, r)
		defer f.Close()

		if err := f.Restore(r.Context()); err != nil && !errors.Is(err, identity.ErrAuthInProgress) {
			slog.Error("session_restore_failed", "error", err)
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(middleware.WithFacade(r.Context(), f)))
	})
}

// withFacade puts a facade in the request context without restoring the
// session first. Logout runs behind it so the cookie is cleared even when
// the session registry cannot be reached.
func (s *Server) withFacade(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f := s.newFacade(w, r)
		defer f.Close()
		next.ServeHTTP(w, r.WithContext(middleware.WithFacade(r.Context(), f)))
	})
}

// newFacade wires a Manager for one request. Cookies carry the caller's
// state; the Guard is shared so overlapping sign-ins for one email are
// rejected across requests.
func (s *Server) newFacade(w http.ResponseWriter, r *http.Request) *auth.Facade {
	deps := session.Deps{
		Members:  s.deps.Members,
		Sessions: s.deps.Sessions,
		Storage:  middleware.NewCookieStorage(w, r, int(s.opts.TTL.Seconds())),
		Strategy: session.LocalCredentials{Members: s.deps.Members, Hasher: s.deps.Hasher},
		Guard:    s.guard,
		Welcome:  s.deps.Welcome,
	}
	if s.deps.Metrics != nil {
		deps.Metrics = s.deps.Metrics
	}
	if p := s.provider(w, r); p != nil {
		deps.Provider = p
	}
	m := session.NewManager(session.Config{Mode: s.opts.Mode, Timeout: s.opts.Timeout, TTL: s.opts.TTL}, deps)
	return auth.New(m)
}

// provider returns the Google client for this request, or nil when
// federated sign-in is not configured. In token mode each request gets a
// fresh client; in federated mode the browser's client lives in the cache
// so its pushes outlast the request.
func (s *Server) provider(w http.ResponseWriter, r *http.Request) *oauth.Client {
	if s.deps.Google == nil {
		return nil
	}
	verify := s.stateCheck(r)
	if s.opts.Mode != domain.ModeFederated || s.deps.Clients == nil {
		return oauth.NewClient(s.deps.Google, verify)
	}

	if c, err := r.Cookie(middleware.ClientCookieName); err == nil {
		if cl, ok := s.deps.Clients.Lookup(c.Value); ok {
			cl.ExpectState(verify)
			return cl
		}
	}
	if r.URL.Path != "/api/auth/google/callback" {
		return nil
	}
	handle, cl := s.deps.Clients.Create(verify)
	middleware.SetCookie(w, middleware.ClientCookieName, handle, "/", clientCookieMaxAge)
	return cl
}

// stateCheck verifies a callback's state against the nonce cookie set
// when the flow started.
func (s *Server) stateCheck(r *http.Request) func(string) error {
	return func(state string) error {
		c, err := r.Cookie(middleware.StateCookieName)
		if err != nil {
			return oauth.ErrInvalidState
		}
		return s.deps.States.Verify(state, c.Value)
	}
}

// forgetClient drops the browser's federated client after sign-out.
func (s *Server) forgetClient(w http.ResponseWriter, r *http.Request) {
	if s.deps.Clients == nil {
		return
	}
	c, err := r.Cookie(middleware.ClientCookieName)
	if err != nil {
		return
	}
	s.deps.Clients.Remove(c.Value)
	middleware.ClearCookie(w, middleware.ClientCookieName, "/")
}

func facadeFrom(r *http.Request) *auth.Facade {
	f, _ := middleware.FacadeFrom(r.Context())
	return f
}
