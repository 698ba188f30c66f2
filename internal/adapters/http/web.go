package web

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"buff/internal/adapters/http/middleware"
	"buff/internal/adapters/oauth"
	memberStore "buff/internal/adapters/storage/member"
	sessionStore "buff/internal/adapters/storage/session"
	"buff/internal/application/orchestrators"
	"buff/internal/application/session"
	"buff/internal/domain/member"
	domain "buff/internal/domain/session"
	"buff/internal/metrics"
)

// Deps holds the collaborators shared by every request.
type Deps struct {
	Members  memberStore.Store
	Sessions sessionStore.Store
	Hasher   member.Hasher

	// Google is nil when federated sign-in is not configured.
	Google  *oauth.Google
	States  *oauth.StateCodec
	Clients *oauth.ClientCache // required in federated mode

	Metrics *metrics.Collector
	Welcome *orchestrators.SendWelcomeDeps
	Health  func(ctx context.Context) error
}

// Options are the HTTP-level settings.
type Options struct {
	Mode           domain.Mode
	Timeout        time.Duration
	TTL            time.Duration
	SecureCookies  bool
	CSRFKey        []byte
	TrustedOrigins []string
	RateLimit      float64 // requests per second per IP on /api/auth
	RateBurst      int
	StaticDir      string // optional; serves the dashboard build
}

// Server routes the member identity API.
type Server struct {
	deps    Deps
	opts    Options
	guard   *session.Guard
	limiter *middleware.RateLimiter
}

// NewServer builds a Server. Call Close to stop its background work.
func NewServer(deps Deps, opts Options) *Server {
	if opts.Mode == "" {
		opts.Mode = domain.ModeToken
	}
	if opts.TTL <= 0 {
		opts.TTL = domain.DefaultTTL
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}
	middleware.SecureCookies = opts.SecureCookies
	return &Server{
		deps:    deps,
		opts:    opts,
		guard:   session.NewGuard(),
		limiter: middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst),
	}
}

// Close stops the rate limiter sweep.
func (s *Server) Close() {
	s.limiter.Stop()
}

// Handler wires the routes.
// Middleware order: Timing -> SecurityHeaders -> CSRF -> session -> handlers.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Timing(s.deps.Metrics))
	r.Use(middleware.SecurityHeaders)
	if len(s.opts.CSRFKey) > 0 {
		r.Use(middleware.CSRF(s.opts.CSRFKey, s.opts.TrustedOrigins))
	}

	r.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.limiter))
		r.With(s.withFacade).Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.withSession)
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Get("/session", s.handleSession)
			r.Get("/google", s.handleGoogleStart)
			r.Get("/google/callback", s.handleGoogleCallback)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.withSession, middleware.RequireAuth)
		r.Get("/api/me", s.handleGetMe)
		r.Patch("/api/me", s.handlePatchMe)
		r.Post("/api/me/password", s.handleChangePassword)
		if s.opts.StaticDir != "" {
			r.Get("/dashboard", func(w http.ResponseWriter, r *http.Request) {
				http.ServeFile(w, r, filepath.Join(s.opts.StaticDir, "dashboard.html"))
			})
		}
	})

	if s.opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.opts.StaticDir)))
	}
	return r
}
