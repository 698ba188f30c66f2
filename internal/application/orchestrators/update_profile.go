package orchestrators

import (
	"context"
	"fmt"
	"net/url"

	"buff/internal/domain/identity"
	"buff/internal/domain/member"
)

// UpdateProfileInput carries the fields a member may edit. Nil fields are unchanged.
type UpdateProfileInput struct {
	MemberID string
	FullName *string
	PhotoURL *string
}

// UpdateProfileDeps holds dependencies for UpdateProfile.
type UpdateProfileDeps struct {
	MemberStore MemberStoreForChangePassword
}

// ExecuteUpdateProfile merges edited profile fields into the stored member.
// PRE: MemberID identifies the signed-in member
// POST: returns the member as stored after the merge
func ExecuteUpdateProfile(ctx context.Context, input UpdateProfileInput, deps UpdateProfileDeps) (member.Member, error) {
	if input.MemberID == "" {
		return member.Member{}, identity.ErrNotAuthenticated
	}
	var patch member.Patch
	if input.FullName != nil {
		name := sanitizeName(*input.FullName)
		if err := member.ValidateFullName(name); err != nil {
			return member.Member{}, err
		}
		patch.FullName = &name
	}
	if input.PhotoURL != nil {
		photo := *input.PhotoURL
		if err := validatePhotoURL(photo); err != nil {
			return member.Member{}, err
		}
		patch.PhotoURL = &photo
	}
	if patch.IsEmpty() {
		return member.Member{}, identity.Invalid("profile", "nothing to update")
	}

	if err := deps.MemberStore.Update(ctx, input.MemberID, patch); err != nil {
		return member.Member{}, fmt.Errorf("update profile: %w", err)
	}
	m, found, err := deps.MemberStore.Get(ctx, input.MemberID)
	if err != nil {
		return member.Member{}, fmt.Errorf("reload member: %w", err)
	}
	if !found {
		return member.Member{}, identity.ErrNotFound
	}
	return m, nil
}

// validatePhotoURL accepts an empty string (clears the photo) or an absolute http(s) URL.
func validatePhotoURL(raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > member.MaxPhotoURLLength {
		return identity.Invalid("photoURL", "photo URL is too long")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return identity.Invalid("photoURL", "photo URL must be an http or https link")
	}
	return nil
}
