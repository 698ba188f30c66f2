package member

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"buff/internal/domain/identity"
)

// Password policy.
const (
	MinPasswordLength = 8
	// bcrypt silently truncates input past 72 bytes.
	MaxPasswordLength = 72
	MinCost           = 10
	MaxCost           = 12
	DefaultCost       = 12
)

// Hasher derives and checks bcrypt password hashes at a fixed work factor.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with cost clamped to [MinCost, MaxCost].
func NewHasher(cost int) Hasher {
	if cost < MinCost {
		cost = MinCost
	}
	if cost > MaxCost {
		cost = MaxCost
	}
	return Hasher{cost: cost}
}

// Cost returns the configured work factor.
func (h Hasher) Cost() int {
	if h.cost == 0 {
		return DefaultCost
	}
	return h.cost
}

// ValidatePassword enforces the length policy. The minimum counts
// characters; the maximum counts bytes because that is what bcrypt sees.
func ValidatePassword(plaintext string) error {
	if plaintext == "" {
		return identity.Invalid("password", "password is required")
	}
	if utf8.RuneCountInString(plaintext) < MinPasswordLength {
		return identity.Invalid("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(plaintext) > MaxPasswordLength {
		return identity.Invalid("password", fmt.Sprintf("password cannot exceed %d bytes", MaxPasswordLength))
	}
	return nil
}

// Hash salts and hashes plaintext.
// PRE: plaintext passes ValidatePassword
// POST: returns a bcrypt hash that never equals plaintext
func (h Hasher) Hash(plaintext string) (string, error) {
	if err := ValidatePassword(plaintext); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.Cost())
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify compares plaintext against hash in constant time.
// Returns identity.ErrNoCredentialOnFile for an empty hash and
// identity.ErrInvalidCredential on mismatch.
func (h Hasher) Verify(hash, plaintext string) error {
	if hash == "" {
		return identity.ErrNoCredentialOnFile
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return identity.ErrInvalidCredential
	}
	if err != nil {
		return fmt.Errorf("%w: %v", identity.ErrInvalidCredential, err)
	}
	return nil
}
