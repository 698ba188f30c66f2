package member_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	store "buff/internal/adapters/storage/member"
	"buff/internal/domain/identity"
	domain "buff/internal/domain/member"
)

// runStoreContract exercises the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	t.Run("create then get returns defaults", func(t *testing.T) {
		s := newStore(t)
		m := domain.New("m-1", "ann@example.com", "Ann", created)
		m.Credential.PasswordHash = "$2a$10$hash"
		if err := s.Create(ctx, m); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, ok, err := s.Get(ctx, "m-1")
		if err != nil || !ok {
			t.Fatalf("Get = (%v, %v)", ok, err)
		}
		if got.Email != "ann@example.com" || got.FullName != "Ann" {
			t.Errorf("got %+v", got)
		}
		if got.Credential.PasswordHash != "$2a$10$hash" {
			t.Errorf("PasswordHash = %q", got.Credential.PasswordHash)
		}
		if got.Membership.Plan != domain.NoPlan || got.Membership.Status != domain.MembershipExpired {
			t.Errorf("Membership = %+v", got.Membership)
		}
		if got.Sessions == nil || len(got.Sessions) != 0 || got.Payments == nil || len(got.Payments) != 0 {
			t.Errorf("Sessions/Payments = %#v / %#v, want empty", got.Sessions, got.Payments)
		}
		if got.AssignedTrainer != nil {
			t.Errorf("AssignedTrainer = %+v, want nil", got.AssignedTrainer)
		}
		if !got.CreatedAt.Equal(created) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
		}
	})

	t.Run("get absent", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Get(ctx, "missing")
		if err != nil || ok {
			t.Errorf("Get = (%v, %v), want (false, nil)", ok, err)
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		s := newStore(t)
		if err := s.Create(ctx, domain.New("m-1", "ann@example.com", "Ann", created)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		err := s.Create(ctx, domain.New("m-1", "bob@example.com", "Bob", created))
		if !errors.Is(err, identity.ErrAlreadyExists) {
			t.Errorf("err = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("email unique ignoring case", func(t *testing.T) {
		s := newStore(t)
		if err := s.Create(ctx, domain.New("m-1", "ann@example.com", "Ann", created)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		m := domain.New("m-2", "x@example.com", "Ann Two", created)
		m.Email = "ANN@Example.com"
		err := s.Create(ctx, m)
		if !errors.Is(err, identity.ErrEmailInUse) {
			t.Errorf("err = %v, want ErrEmailInUse", err)
		}
	})

	t.Run("find by email ignores case", func(t *testing.T) {
		s := newStore(t)
		if err := s.Create(ctx, domain.New("m-1", "ann@example.com", "Ann", created)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, ok, err := s.FindByEmail(ctx, "  Ann@EXAMPLE.com")
		if err != nil || !ok {
			t.Fatalf("FindByEmail = (%v, %v)", ok, err)
		}
		if got.ID != "m-1" {
			t.Errorf("ID = %q", got.ID)
		}
		_, ok, err = s.FindByEmail(ctx, "nobody@example.com")
		if err != nil || ok {
			t.Errorf("FindByEmail(absent) = (%v, %v)", ok, err)
		}
	})

	t.Run("update merges and stamps", func(t *testing.T) {
		s := newStore(t)
		m := domain.New("m-1", "ann@example.com", "Ann", created)
		m.PhotoURL = "https://example.com/ann.png"
		if err := s.Create(ctx, m); err != nil {
			t.Fatalf("Create: %v", err)
		}
		name := "Ann Lee"
		trainer := &domain.Trainer{ID: "t-1", Name: "Sam"}
		if err := s.Update(ctx, "m-1", domain.Patch{FullName: &name, AssignedTrainer: &trainer}); err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, _, err := s.Get(ctx, "m-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.FullName != "Ann Lee" {
			t.Errorf("FullName = %q", got.FullName)
		}
		if got.PhotoURL != "https://example.com/ann.png" {
			t.Errorf("PhotoURL clobbered: %q", got.PhotoURL)
		}
		if got.AssignedTrainer == nil || got.AssignedTrainer.Name != "Sam" {
			t.Errorf("AssignedTrainer = %+v", got.AssignedTrainer)
		}
		if !got.LastUpdated.After(created) {
			t.Errorf("LastUpdated = %v, want after %v", got.LastUpdated, created)
		}
		if !got.CreatedAt.Equal(created) {
			t.Errorf("CreatedAt changed: %v", got.CreatedAt)
		}
	})

	t.Run("update lockout fields", func(t *testing.T) {
		s := newStore(t)
		m := domain.New("m-1", "ann@example.com", "Ann", created)
		if err := s.Create(ctx, m); err != nil {
			t.Fatalf("Create: %v", err)
		}
		m.FailedLogins = domain.MaxFailedLogins
		m.LockedUntil = created.Add(domain.LockoutDuration)
		if err := s.Update(ctx, "m-1", domain.LockoutPatch(m)); err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, _, _ := s.Get(ctx, "m-1")
		if got.FailedLogins != domain.MaxFailedLogins || !got.LockedUntil.Equal(m.LockedUntil) {
			t.Errorf("lockout = %d/%v", got.FailedLogins, got.LockedUntil)
		}
	})

	t.Run("update absent", func(t *testing.T) {
		s := newStore(t)
		name := "x"
		err := s.Update(ctx, "missing", domain.Patch{FullName: &name})
		if !errors.Is(err, identity.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("list pages and filters", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 5; i++ {
			m := domain.New(fmt.Sprintf("m-%d", i), fmt.Sprintf("u%d@example.com", i), "U", created.Add(time.Duration(i)*time.Minute))
			if i%2 == 0 {
				m.Credential.Provider = "google"
				m.Credential.Subject = fmt.Sprintf("sub-%d", i)
			}
			if err := s.Create(ctx, m); err != nil {
				t.Fatalf("Create: %v", err)
			}
		}
		page, err := s.List(ctx, store.ListFilter{Limit: 2, Offset: 1})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(page) != 2 || page[0].ID != "m-1" || page[1].ID != "m-2" {
			t.Errorf("page = %v", ids(page))
		}
		google, err := s.List(ctx, store.ListFilter{Provider: "google"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(google) != 3 {
			t.Errorf("google members = %v, want 3", ids(google))
		}
		negative, err := s.List(ctx, store.ListFilter{Limit: 2, Offset: -3})
		if err != nil {
			t.Fatalf("List with negative offset: %v", err)
		}
		if len(negative) != 2 || negative[0].ID != "m-0" {
			t.Errorf("negative offset page = %v, want first page", ids(negative))
		}
	})

	t.Run("concurrent creates with one email", func(t *testing.T) {
		s := newStore(t)
		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = s.Create(ctx, domain.New(fmt.Sprintf("m-%d", i), "race@example.com", "R", created))
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, identity.ErrEmailInUse):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		if wins != 1 {
			t.Errorf("successful creates = %d, want 1", wins)
		}
	})
}

func ids(ms []domain.Member) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
