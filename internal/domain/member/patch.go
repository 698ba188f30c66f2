package member

import "time"

// Patch is a partial update. Nil fields are left untouched by the store.
type Patch struct {
	FullName        *string
	PhotoURL        *string
	Credential      *Credential
	FailedLogins    *int
	LockedUntil     *time.Time
	Membership      *Membership
	Sessions        *[]WorkoutSession
	Payments        *[]Payment
	AssignedTrainer **Trainer
}

// IsEmpty reports whether the patch would only stamp LastUpdated.
func (p Patch) IsEmpty() bool {
	return p.FullName == nil && p.PhotoURL == nil && p.Credential == nil &&
		p.FailedLogins == nil && p.LockedUntil == nil && p.Membership == nil &&
		p.Sessions == nil && p.Payments == nil && p.AssignedTrainer == nil
}

// Apply merges the patch into m and stamps LastUpdated.
// POST: only non-nil fields are overwritten
func (p Patch) Apply(m *Member, now time.Time) {
	if p.FullName != nil {
		m.FullName = *p.FullName
	}
	if p.PhotoURL != nil {
		m.PhotoURL = *p.PhotoURL
	}
	if p.Credential != nil {
		m.Credential = *p.Credential
	}
	if p.FailedLogins != nil {
		m.FailedLogins = *p.FailedLogins
	}
	if p.LockedUntil != nil {
		m.LockedUntil = *p.LockedUntil
	}
	if p.Membership != nil {
		m.Membership = *p.Membership
	}
	if p.Sessions != nil {
		m.Sessions = *p.Sessions
	}
	if p.Payments != nil {
		m.Payments = *p.Payments
	}
	if p.AssignedTrainer != nil {
		m.AssignedTrainer = *p.AssignedTrainer
	}
	m.LastUpdated = now
}

// LockoutPatch captures the lockout counters of m.
func LockoutPatch(m Member) Patch {
	failed := m.FailedLogins
	locked := m.LockedUntil
	return Patch{FailedLogins: &failed, LockedUntil: &locked}
}
