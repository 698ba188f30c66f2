package session_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"buff/internal/adapters/storage"
	memberstore "buff/internal/adapters/storage/member"
	store "buff/internal/adapters/storage/session"
	"buff/internal/domain/identity"
	"buff/internal/domain/member"
	domain "buff/internal/domain/session"
)

func TestMemoryStore_Contract(t *testing.T) {
	runRegistryContract(t, func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	})
}

func openSeededDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.MigrateSQLite(db); err != nil {
		t.Fatalf("MigrateSQLite: %v", err)
	}
	members := memberstore.NewSQLiteStore(db)
	for _, id := range []string{"m-1", "m-2"} {
		if err := members.Create(ctx, member.New(id, id+"@example.com", id, time.Now())); err != nil {
			t.Fatalf("seed member: %v", err)
		}
	}
	return db
}

func TestSQLiteStore_Contract(t *testing.T) {
	runRegistryContract(t, func(t *testing.T) store.Store {
		return store.NewSQLiteStore(openSeededDB(t))
	})
}

func TestSQLiteStore_StoresDigestOnly(t *testing.T) {
	db := openSeededDB(t)
	s := store.NewSQLiteStore(db)
	sess, err := domain.New("m-1", domain.MethodFederated, time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Create(context.Background(), sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	var stored string
	if err := db.QueryRow("SELECT token_hash FROM sessions").Scan(&stored); err != nil {
		t.Fatalf("query: %v", err)
	}
	if stored == sess.Token {
		t.Error("raw token persisted")
	}
}

func TestSQLiteStore_CascadesWithMember(t *testing.T) {
	db := openSeededDB(t)
	s := store.NewSQLiteStore(db)
	sess, _ := domain.New("m-2", domain.MethodPassword, time.Now(), time.Hour)
	if err := s.Create(context.Background(), sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := db.Exec("DELETE FROM members WHERE id = 'm-2'"); err != nil {
		t.Fatalf("delete member: %v", err)
	}
	if _, ok, _ := s.Get(context.Background(), sess.Token); ok {
		t.Error("session outlived its member")
	}
}

func TestPostgresStore_GetUnavailable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`FROM sessions WHERE token_hash = \$1`).
		WillReturnError(errors.New("connection reset"))

	_, _, err = store.NewPostgresStore(mock).Get(context.Background(), "tok")
	if !errors.Is(err, identity.ErrStorageUnavailable) {
		t.Errorf("err = %v, want ErrStorageUnavailable", err)
	}
}

func TestPostgresStore_GetLive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM sessions WHERE token_hash = \$1`).
		WillReturnRows(pgxmock.NewRows([]string{"member_id", "method", "created_at", "expires_at"}).
			AddRow("m-1", "password", now, now.Add(time.Hour)))

	got, ok, err := store.NewPostgresStore(mock).Get(context.Background(), "tok")
	if err != nil || !ok {
		t.Fatalf("Get = (%v, %v)", ok, err)
	}
	if got.MemberID != "m-1" || got.Token != "tok" {
		t.Errorf("got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStore_PurgeExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM sessions WHERE expires_at <= \$1`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := store.NewPostgresStore(mock).PurgeExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 3 {
		t.Errorf("purged = %d, want 3", n)
	}
}
