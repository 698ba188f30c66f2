package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		slog.Error("command_failed", "error", err)
		os.Exit(1)
	}
}

// NewRootCmd creates the root command for the BUFF server.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "buff",
		Short:         "BUFF member identity and session service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("db-path", "", "SQLite database path (overrides BUFF_DB_PATH)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewMembersCmd())
	return cmd
}
