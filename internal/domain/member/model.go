package member

import (
	"net/mail"
	"strings"
	"time"

	"buff/internal/domain/identity"
)

// Max length constants for user-editable fields.
const (
	MaxNameLength     = 100
	MaxEmailLength    = 254
	MaxPhotoURLLength = 2048
)

// Lockout policy for credential sign-in.
const (
	MaxFailedLogins = 5
	LockoutDuration = 15 * time.Minute
)

// PlaceholderName is shown when neither the member nor the provider
// supplied a display name.
const PlaceholderName = "Anonymous"

// Membership status values rendered by the dashboard.
const (
	MembershipActive   = "Active"
	MembershipExpired  = "Expired"
	MembershipCanceled = "Canceled"
)

// NoPlan is the membership plan a fresh member starts on.
const NoPlan = "No Plan"

// Credential is the non-reversible proof material held for a member.
// PasswordHash is a bcrypt hash or empty; Provider/Subject reference a
// federated identity or are empty. Both halves may be present.
type Credential struct {
	PasswordHash string
	Provider     string
	Subject      string
}

// HasPassword reports whether a local password hash is on file.
func (c Credential) HasPassword() bool {
	return c.PasswordHash != ""
}

// HasFederated reports whether a federated identity is linked.
func (c Credential) HasFederated() bool {
	return c.Provider != "" && c.Subject != ""
}

// Membership summarises the member's plan for the dashboard.
type Membership struct {
	Plan        string    `json:"plan"`
	Status      string    `json:"status"`
	StartDate   time.Time `json:"startDate,omitzero"`
	NextPayment time.Time `json:"nextPayment,omitzero"`
}

// WorkoutSession is one scheduled workout shown on the overview.
type WorkoutSession struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Day       string `json:"day"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Trainer   string `json:"trainer,omitempty"`
}

// Payment is a display-only payment history row.
type Payment struct {
	ID          string    `json:"id"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
	PaidAt      time.Time `json:"paidAt"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
}

// Trainer is the coach assigned to a member.
type Trainer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
	PhotoURL  string `json:"photoURL,omitempty"`
}

// Member is the persisted identity record.
type Member struct {
	ID           string
	Email        string
	FullName     string
	Credential   Credential
	PhotoURL     string
	CreatedAt    time.Time
	LastUpdated  time.Time
	FailedLogins int
	LockedUntil  time.Time

	// Owned by dashboard collaborators; the identity core only seeds them.
	Membership      Membership
	Sessions        []WorkoutSession
	Payments        []Payment
	AssignedTrainer *Trainer
}

// New builds a member with safe default dashboard fields.
// PRE: id is non-empty, email normalized
// POST: Sessions/Payments are empty (not nil), membership is "No Plan"/Expired, no trainer
func New(id, email, fullName string, now time.Time) Member {
	return Member{
		ID:          id,
		Email:       NormalizeEmail(email),
		FullName:    fullName,
		CreatedAt:   now,
		LastUpdated: now,
		Membership: Membership{
			Plan:   NoPlan,
			Status: MembershipExpired,
		},
		Sessions: []WorkoutSession{},
		Payments: []Payment{},
	}
}

// NormalizeEmail lower-cases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare address of acceptable length.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return identity.Invalid("email", "email is required")
	}
	if len(email) > MaxEmailLength {
		return identity.Invalid("email", "email cannot exceed 254 characters")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return identity.Invalid("email", "email must be a valid address")
	}
	return nil
}

// ValidateFullName checks the display name a member typed in.
func ValidateFullName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return identity.Invalid("fullName", "full name is required")
	}
	if len(name) > MaxNameLength {
		return identity.Invalid("fullName", "full name cannot exceed 100 characters")
	}
	return nil
}

// Validate checks the stored record.
// PRE: Member struct is populated
// POST: Returns a validation error naming the first bad field, nil otherwise
func (m *Member) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return identity.Invalid("id", "member id is required")
	}
	if err := ValidateEmail(m.Email); err != nil {
		return err
	}
	if len(m.FullName) > MaxNameLength {
		return identity.Invalid("fullName", "full name cannot exceed 100 characters")
	}
	if len(m.PhotoURL) > MaxPhotoURLLength {
		return identity.Invalid("photoURL", "photo URL is too long")
	}
	return nil
}

// DisplayName resolves the name shown in the header.
// Order: stored full name, then providerName, then PlaceholderName.
// INVARIANT: never returns an empty string
func (m *Member) DisplayName(providerName string) string {
	return ResolveDisplayName(m.FullName, providerName)
}

// ResolveDisplayName applies the stored → provider → placeholder order.
func ResolveDisplayName(stored, providerName string) string {
	if s := strings.TrimSpace(stored); s != "" {
		return s
	}
	if s := strings.TrimSpace(providerName); s != "" {
		return s
	}
	return PlaceholderName
}

// IsLocked returns true if credential sign-in is currently locked out.
// INVARIANT: Member fields are not mutated
func (m *Member) IsLocked(now time.Time) bool {
	if m.LockedUntil.IsZero() {
		return false
	}
	return now.Before(m.LockedUntil)
}

// RecordFailedLogin increments the failed login counter and locks after MaxFailedLogins.
// POST: FailedLogins incremented; LockedUntil set if the threshold is reached
func (m *Member) RecordFailedLogin(now time.Time) {
	m.FailedLogins++
	if m.FailedLogins >= MaxFailedLogins {
		m.LockedUntil = now.Add(LockoutDuration)
	}
}
