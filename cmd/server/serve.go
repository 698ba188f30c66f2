package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"buff/internal/adapters/email"
	web "buff/internal/adapters/http"
	"buff/internal/adapters/oauth"
	sessionStore "buff/internal/adapters/storage/session"
	"buff/internal/application/orchestrators"
	"buff/internal/config"
	"buff/internal/domain/member"
	domain "buff/internal/domain/session"
	"buff/internal/metrics"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "listen address (overrides BUFF_LISTEN_ADDR)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.ListenAddr = addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	be, err := openBackend(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer be.close()

	csrfKey, err := cfg.CSRFKey()
	if err != nil {
		return err
	}
	if csrfKey == nil {
		slog.Warn("csrf_disabled", "reason", "BUFF_CSRF_KEY not set")
	}

	deps := web.Deps{
		Members:  be.members,
		Sessions: be.sessions,
		Hasher:   member.NewHasher(cfg.BcryptCost),
		Metrics:  collector,
		Welcome:  welcomeDeps(cfg),
		Health:   be.health,
	}
	var clients *oauth.ClientCache
	if cfg.GoogleEnabled() {
		deps.Google = oauth.NewGoogle(oauth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
		deps.States = oauth.NewStateCodec([]byte(cfg.StateSecret), oauth.DefaultStateTTL)
		if cfg.Mode() == domain.ModeFederated {
			clients = oauth.NewClientCache(deps.Google, cfg.SessionTTL)
			deps.Clients = clients
		}
	}

	server := web.NewServer(deps, web.Options{
		Mode:           cfg.Mode(),
		Timeout:        cfg.AuthTimeout,
		TTL:            cfg.SessionTTL,
		SecureCookies:  cfg.SecureCookies || cfg.Production(),
		CSRFKey:        csrfKey,
		TrustedOrigins: cfg.TrustedOrigins,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		StaticDir:      cfg.StaticDir,
	})
	defer server.Close()

	go runHousekeeping(ctx, be.sessions, clients, cfg.PurgeInterval)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_starting", "version", version, "addr", cfg.ListenAddr, "env", cfg.Env, "mode", string(cfg.Mode()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// welcomeDeps picks Resend when an API key is configured and the noop
// sender otherwise.
func welcomeDeps(cfg config.Config) *orchestrators.SendWelcomeDeps {
	var sender email.Sender
	if cfg.ResendAPIKey != "" {
		sender = email.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom)
		slog.Info("email_sender_configured", "sender", "resend")
	} else {
		sender = email.NewNoopSender()
		if cfg.Production() {
			slog.Warn("email_sender_configured", "sender", "noop", "reason", "BUFF_RESEND_API_KEY not set")
		}
	}
	return &orchestrators.SendWelcomeDeps{
		Sender:       sender,
		From:         cfg.EmailFrom,
		DashboardURL: cfg.DashboardURL,
	}
}

// runHousekeeping purges expired sessions and idle federated clients until
// ctx is done.
func runHousekeeping(ctx context.Context, sessions sessionStore.Store, clients *oauth.ClientCache, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := sessions.PurgeExpired(ctx, now)
			if err != nil {
				slog.Warn("session_purge_failed", "error", err)
			} else if n > 0 {
				slog.Info("auth_event", "event", "sessions_purged", "count", n)
			}
			if clients != nil {
				if dropped := clients.Sweep(); dropped > 0 {
					slog.Info("auth_event", "event", "oauth_clients_swept", "count", dropped)
				}
			}
		}
	}
}
