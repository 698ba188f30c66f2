package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"buff/internal/domain/identity"
	domain "buff/internal/domain/session"
)

// Store is the session registry: opaque tokens mapped to members.
// Implementations persist only a digest of each token.
type Store interface {
	Create(ctx context.Context, s domain.Session) error
	// Get returns the session for token. Expired sessions are removed and
	// reported as absent.
	Get(ctx context.Context, token string) (domain.Session, bool, error)
	Delete(ctx context.Context, token string) error
	DeleteForMember(ctx context.Context, memberID string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// hashToken is the lookup key stored in place of the token.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, identity.ErrStorageUnavailable, err)
}
