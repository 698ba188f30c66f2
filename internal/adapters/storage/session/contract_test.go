package session_test

import (
	"context"
	"testing"
	"time"

	store "buff/internal/adapters/storage/session"
	domain "buff/internal/domain/session"
)

// runRegistryContract exercises behaviour shared by every registry.
// newStore must return a registry where members "m-1" and "m-2" exist.
func runRegistryContract(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()
	ctx := context.Background()

	issue := func(t *testing.T, s store.Store, memberID string, created time.Time, ttl time.Duration) domain.Session {
		t.Helper()
		sess, err := domain.New(memberID, domain.MethodPassword, created, ttl)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := s.Create(ctx, sess); err != nil {
			t.Fatalf("Create: %v", err)
		}
		return sess
	}

	t.Run("create then get", func(t *testing.T) {
		s := newStore(t)
		sess := issue(t, s, "m-1", time.Now(), time.Hour)
		got, ok, err := s.Get(ctx, sess.Token)
		if err != nil || !ok {
			t.Fatalf("Get = (%v, %v)", ok, err)
		}
		if got.MemberID != "m-1" || got.Method != domain.MethodPassword || got.Token != sess.Token {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Get(ctx, "deadbeef")
		if err != nil || ok {
			t.Errorf("Get = (%v, %v), want (false, nil)", ok, err)
		}
	})

	t.Run("expired token is absent", func(t *testing.T) {
		s := newStore(t)
		sess := issue(t, s, "m-1", time.Now().Add(-2*time.Hour), time.Hour)
		if _, ok, err := s.Get(ctx, sess.Token); err != nil || ok {
			t.Errorf("Get(expired) = (%v, %v), want (false, nil)", ok, err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		sess := issue(t, s, "m-1", time.Now(), time.Hour)
		if err := s.Delete(ctx, sess.Token); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, ok, _ := s.Get(ctx, sess.Token); ok {
			t.Error("session still present after Delete")
		}
		if err := s.Delete(ctx, sess.Token); err != nil {
			t.Errorf("second Delete: %v", err)
		}
	})

	t.Run("delete for member", func(t *testing.T) {
		s := newStore(t)
		a := issue(t, s, "m-1", time.Now(), time.Hour)
		b := issue(t, s, "m-1", time.Now(), time.Hour)
		other := issue(t, s, "m-2", time.Now(), time.Hour)
		if err := s.DeleteForMember(ctx, "m-1"); err != nil {
			t.Fatalf("DeleteForMember: %v", err)
		}
		for _, tok := range []string{a.Token, b.Token} {
			if _, ok, _ := s.Get(ctx, tok); ok {
				t.Error("m-1 session survived DeleteForMember")
			}
		}
		if _, ok, _ := s.Get(ctx, other.Token); !ok {
			t.Error("m-2 session removed by DeleteForMember(m-1)")
		}
	})

	t.Run("purge expired", func(t *testing.T) {
		s := newStore(t)
		issue(t, s, "m-1", time.Now().Add(-3*time.Hour), time.Hour)
		issue(t, s, "m-2", time.Now().Add(-3*time.Hour), time.Hour)
		live := issue(t, s, "m-1", time.Now(), time.Hour)
		n, err := s.PurgeExpired(ctx, time.Now())
		if err != nil {
			t.Fatalf("PurgeExpired: %v", err)
		}
		if n != 2 {
			t.Errorf("purged = %d, want 2", n)
		}
		if _, ok, _ := s.Get(ctx, live.Token); !ok {
			t.Error("live session purged")
		}
	})
}
