package member_test

import (
	"errors"
	"testing"
	"time"

	"buff/internal/domain/identity"
	"buff/internal/domain/member"
)

// TestMemberValidation tests validation of Member.
func TestMemberValidation(t *testing.T) {
	tests := []struct {
		name    string
		member  member.Member
		wantErr bool
	}{
		{
			name:    "valid member",
			member:  member.Member{ID: "123", Email: "ann@example.com", FullName: "Ann"},
			wantErr: false,
		},
		{
			name:    "valid member without name",
			member:  member.Member{ID: "123", Email: "ann@example.com"},
			wantErr: false,
		},
		{
			name:    "missing id",
			member:  member.Member{Email: "ann@example.com"},
			wantErr: true,
		},
		{
			name:    "invalid email",
			member:  member.Member{ID: "123", Email: "not-an-email"},
			wantErr: true,
		},
		{
			name:    "display name in email field",
			member:  member.Member{ID: "123", Email: "Ann <ann@example.com>"},
			wantErr: true,
		},
		{
			name:    "name too long",
			member:  member.Member{ID: "123", Email: "ann@example.com", FullName: string(make([]byte, 101))},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.member.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, identity.ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation kind", err)
			}
		})
	}
}

func TestNew_SeedsSafeDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := member.New("id-1", "  Ann@Example.COM ", "Ann", now)

	if m.Email != "ann@example.com" {
		t.Errorf("Email = %q, want normalized", m.Email)
	}
	if m.Sessions == nil || len(m.Sessions) != 0 {
		t.Errorf("Sessions = %#v, want empty non-nil slice", m.Sessions)
	}
	if m.Payments == nil || len(m.Payments) != 0 {
		t.Errorf("Payments = %#v, want empty non-nil slice", m.Payments)
	}
	if m.Membership.Plan != member.NoPlan || m.Membership.Status != member.MembershipExpired {
		t.Errorf("Membership = %+v, want No Plan/Expired", m.Membership)
	}
	if m.AssignedTrainer != nil {
		t.Errorf("AssignedTrainer = %+v, want nil", m.AssignedTrainer)
	}
	if !m.CreatedAt.Equal(now) || !m.LastUpdated.Equal(now) {
		t.Errorf("timestamps = %v/%v, want %v", m.CreatedAt, m.LastUpdated, now)
	}
}

func TestResolveDisplayName(t *testing.T) {
	tests := []struct {
		stored, provider, want string
	}{
		{"Ann", "Ann Google", "Ann"},
		{"", "Ann Google", "Ann Google"},
		{"   ", "Ann Google", "Ann Google"},
		{"", "", member.PlaceholderName},
		{" ", "\t", member.PlaceholderName},
	}
	for _, tt := range tests {
		if got := member.ResolveDisplayName(tt.stored, tt.provider); got != tt.want {
			t.Errorf("ResolveDisplayName(%q, %q) = %q, want %q", tt.stored, tt.provider, got, tt.want)
		}
	}
}

func TestLockout(t *testing.T) {
	now := time.Now()
	m := member.Member{}
	for i := 0; i < member.MaxFailedLogins-1; i++ {
		m.RecordFailedLogin(now)
	}
	if m.IsLocked(now) {
		t.Fatal("locked before reaching threshold")
	}
	m.RecordFailedLogin(now)
	if !m.IsLocked(now) {
		t.Fatal("not locked at threshold")
	}
	if m.IsLocked(now.Add(member.LockoutDuration + time.Second)) {
		t.Error("still locked after lockout window")
	}
}

func TestPatchApply_MergesOnlySetFields(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := member.New("id-1", "ann@example.com", "Ann", created)
	m.PhotoURL = "https://example.com/a.png"

	name := "Ann Lee"
	later := created.Add(time.Hour)
	member.Patch{FullName: &name}.Apply(&m, later)

	if m.FullName != "Ann Lee" {
		t.Errorf("FullName = %q", m.FullName)
	}
	if m.PhotoURL != "https://example.com/a.png" {
		t.Errorf("PhotoURL clobbered: %q", m.PhotoURL)
	}
	if m.Membership.Plan != member.NoPlan {
		t.Errorf("Membership clobbered: %+v", m.Membership)
	}
	if !m.LastUpdated.Equal(later) {
		t.Errorf("LastUpdated = %v, want %v", m.LastUpdated, later)
	}
	if !m.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed to %v", m.CreatedAt)
	}
}

func TestPatchApply_ClearsTrainer(t *testing.T) {
	m := member.Member{AssignedTrainer: &member.Trainer{ID: "t1", Name: "Sam"}}
	var none *member.Trainer
	member.Patch{AssignedTrainer: &none}.Apply(&m, time.Now())
	if m.AssignedTrainer != nil {
		t.Errorf("AssignedTrainer = %+v, want nil", m.AssignedTrainer)
	}
}

func TestFederatedID_StablePerSubject(t *testing.T) {
	a := member.FederatedID("google", "123")
	if a != member.FederatedID("google", "123") {
		t.Error("FederatedID not deterministic")
	}
	if a == member.FederatedID("google", "124") {
		t.Error("different subjects share an ID")
	}
	if a == member.FederatedID("github", "123") {
		t.Error("different providers share an ID")
	}
}
