// Package config loads server settings from BUFF_* environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"buff/internal/domain/member"
	domain "buff/internal/domain/session"
)

// Config is the full server configuration.
type Config struct {
	Env        string `env:"BUFF_ENV" envDefault:"development"`
	ListenAddr string `env:"BUFF_LISTEN_ADDR" envDefault:":8080"`
	StaticDir  string `env:"BUFF_STATIC_DIR"`

	DBDriver    string `env:"BUFF_DB_DRIVER" envDefault:"sqlite"`
	DBPath      string `env:"BUFF_DB_PATH" envDefault:"buff.db"`
	DatabaseURL string `env:"BUFF_DATABASE_URL"`

	SessionMode    string        `env:"BUFF_SESSION_MODE" envDefault:"token"`
	SessionTTL     time.Duration `env:"BUFF_SESSION_TTL" envDefault:"24h"`
	AuthTimeout    time.Duration `env:"BUFF_AUTH_TIMEOUT" envDefault:"15s"`
	PurgeInterval  time.Duration `env:"BUFF_SESSION_PURGE_INTERVAL" envDefault:"1h"`
	BcryptCost     int           `env:"BUFF_BCRYPT_COST" envDefault:"12"`
	SecureCookies  bool          `env:"BUFF_SECURE_COOKIES"`
	CSRFKeyHex     string        `env:"BUFF_CSRF_KEY"`
	TrustedOrigins []string      `env:"BUFF_TRUSTED_ORIGINS" envSeparator:"," envDefault:"localhost:8080,127.0.0.1:8080"`
	RateLimit      float64       `env:"BUFF_AUTH_RATE_LIMIT" envDefault:"5"`
	RateBurst      int           `env:"BUFF_AUTH_RATE_BURST" envDefault:"10"`
	SlowQuery      time.Duration `env:"BUFF_SLOW_QUERY" envDefault:"50ms"`

	GoogleClientID     string `env:"BUFF_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"BUFF_GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"BUFF_GOOGLE_REDIRECT_URL"`
	StateSecret        string `env:"BUFF_OAUTH_STATE_SECRET"`

	ResendAPIKey string `env:"BUFF_RESEND_API_KEY"`
	EmailFrom    string `env:"BUFF_EMAIL_FROM" envDefault:"BUFF <no-reply@buff.example>"`
	DashboardURL string `env:"BUFF_DASHBOARD_URL" envDefault:"http://localhost:8080/dashboard"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Production reports whether BUFF_ENV is "production".
func (c Config) Production() bool {
	return c.Env == "production"
}

// Mode returns the parsed session mode.
func (c Config) Mode() domain.Mode {
	m, _ := domain.ParseMode(c.SessionMode)
	return m
}

// GoogleEnabled reports whether federated sign-in is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}

// CSRFKey decodes BUFF_CSRF_KEY. An empty key yields nil.
func (c Config) CSRFKey() ([]byte, error) {
	if c.CSRFKeyHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.CSRFKeyHex)
	if err != nil || len(key) != 32 {
		return nil, errors.New("BUFF_CSRF_KEY must be 64 hex characters (32 bytes)")
	}
	return key, nil
}

// Validate checks cross-field rules.
func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			errs = append(errs, errors.New("BUFF_DB_PATH is required for the sqlite driver"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("BUFF_DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("BUFF_DB_DRIVER %q is not sqlite or postgres", c.DBDriver))
	}
	if _, err := domain.ParseMode(c.SessionMode); err != nil {
		errs = append(errs, fmt.Errorf("BUFF_SESSION_MODE: %w", err))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("BUFF_SESSION_TTL must be positive"))
	}
	if c.AuthTimeout <= 0 {
		errs = append(errs, errors.New("BUFF_AUTH_TIMEOUT must be positive"))
	}
	if c.BcryptCost < member.MinCost || c.BcryptCost > member.MaxCost {
		errs = append(errs, fmt.Errorf("BUFF_BCRYPT_COST must be between %d and %d", member.MinCost, member.MaxCost))
	}
	if _, err := c.CSRFKey(); err != nil {
		errs = append(errs, err)
	}
	if c.Production() && c.CSRFKeyHex == "" {
		errs = append(errs, errors.New("BUFF_CSRF_KEY is required in production"))
	}
	if c.GoogleEnabled() {
		if c.GoogleClientSecret == "" || c.GoogleRedirectURL == "" {
			errs = append(errs, errors.New("BUFF_GOOGLE_CLIENT_SECRET and BUFF_GOOGLE_REDIRECT_URL are required with BUFF_GOOGLE_CLIENT_ID"))
		}
		if len(c.StateSecret) < 32 {
			errs = append(errs, errors.New("BUFF_OAUTH_STATE_SECRET must be at least 32 characters"))
		}
	} else if c.Mode() == domain.ModeFederated {
		errs = append(errs, errors.New("BUFF_SESSION_MODE=federated requires BUFF_GOOGLE_CLIENT_ID"))
	}
	return errors.Join(errs...)
}
