package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"buff/internal/adapters/storage"
	memberStore "buff/internal/adapters/storage/member"
	sessionStore "buff/internal/adapters/storage/session"
	"buff/internal/config"
	"buff/internal/metrics"
)

// backend is the opened persistence layer.
type backend struct {
	members  memberStore.Store
	sessions sessionStore.Store
	health   func(ctx context.Context) error
	close    func()
}

// loadConfig reads the environment and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if p, _ := cmd.Flags().GetString("db-path"); p != "" {
		cfg.DBPath = p
	}
	configureLogging(cfg)
	return cfg, nil
}

func configureLogging(cfg config.Config) {
	if cfg.Production() {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

// openBackend opens and migrates the configured database. observer may be nil.
func openBackend(ctx context.Context, cfg config.Config, observer *metrics.Collector) (*backend, error) {
	switch cfg.DBDriver {
	case "postgres":
		if err := storage.MigratePostgres(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		pool, err := storage.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("database_ready", "driver", "postgres", "schema", storage.LatestSchemaVersion())
		return &backend{
			members:  memberStore.NewPostgresStore(pool),
			sessions: sessionStore.NewPostgresStore(pool),
			health:   pool.Ping,
			close:    pool.Close,
		}, nil

	case "sqlite":
		db, err := storage.OpenSQLite(ctx, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		if err := storage.MigrateSQLite(db); err != nil {
			db.Close()
			return nil, err
		}
		slog.Info("database_ready", "driver", "sqlite", "path", cfg.DBPath, "schema", storage.LatestSchemaVersion())
		var obs storage.QueryObserver
		if observer != nil {
			obs = observer
		}
		timed := storage.NewTimedDB(db, obs, cfg.SlowQuery)
		return &backend{
			members:  memberStore.NewSQLiteStore(timed),
			sessions: sessionStore.NewSQLiteStore(timed),
			health:   db.PingContext,
			close:    func() { db.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}
