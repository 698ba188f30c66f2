package identity_test

import (
	"errors"
	"fmt"
	"testing"

	"buff/internal/domain/identity"
)

func TestUserMessage_CredentialFailuresShareOneMessage(t *testing.T) {
	for _, err := range []error{
		identity.ErrNotFound,
		identity.ErrInvalidCredential,
		identity.ErrNoCredentialOnFile,
		fmt.Errorf("sign in: %w", identity.ErrInvalidCredential),
	} {
		if got := identity.UserMessage(err); got != identity.MsgInvalidSignIn {
			t.Errorf("UserMessage(%v) = %q, want %q", err, got, identity.MsgInvalidSignIn)
		}
	}
}

func TestUserMessage_Kinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation detail", identity.Invalid("fullName", "full name is required"), "full name is required"},
		{"wrapped validation", fmt.Errorf("register: %w", identity.Invalid("password", "too short")), "too short"},
		{"email in use", identity.ErrEmailInUse, "An account with this email already exists. Try signing in instead."},
		{"storage", fmt.Errorf("get: %w", identity.ErrStorageUnavailable), "Something went wrong. Please try again."},
		{"unknown", errors.New("boom"), "Something went wrong. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := identity.UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationError_IsValidationKind(t *testing.T) {
	err := identity.Invalid("email", "email is required")
	if !errors.Is(err, identity.ErrValidation) {
		t.Fatal("Invalid() does not match ErrValidation")
	}
	var ve *identity.ValidationError
	if !errors.As(err, &ve) || ve.Field != "email" {
		t.Fatalf("errors.As = %+v", ve)
	}
}
