package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"buff/internal/adapters/storage"
	memberStore "buff/internal/adapters/storage/member"
	"buff/internal/domain/member"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("buff %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestMigrateThenListMembers(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "buff.db")
	t.Setenv("BUFF_DB_PATH", dbPath)

	out := run(t, "migrate")
	if !strings.Contains(out, "schema 2") {
		t.Errorf("migrate output = %q, want schema 2", out)
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	store := memberStore.NewSQLiteStore(db)
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	if err := store.Create(ctx, member.New("m-1", "ann@example.com", "Ann Lee", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	db.Close()

	out = run(t, "members", "list")
	for _, want := range []string{"ann@example.com", "Ann Lee", "password", member.MembershipExpired, "2026-05-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	out = run(t, "members", "list", "--provider", "google")
	if strings.Contains(out, "ann@example.com") {
		t.Errorf("provider filter returned a password member:\n%s", out)
	}
}

func TestDBPathFlagOverridesEnv(t *testing.T) {
	t.Setenv("BUFF_DB_PATH", filepath.Join(t.TempDir(), "env.db"))
	flagPath := filepath.Join(t.TempDir(), "flag.db")

	run(t, "--db-path", flagPath, "migrate")

	db, err := storage.OpenSQLite(context.Background(), flagPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()
	if v, err := storage.SchemaVersion(db); err != nil || v != storage.LatestSchemaVersion() {
		t.Errorf("flag database schema = %d, %v", v, err)
	}
}

func TestRootRejectsBadConfig(t *testing.T) {
	t.Setenv("BUFF_DB_DRIVER", "mysql")
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"migrate"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("migrate succeeded with an unknown driver")
	}
}
