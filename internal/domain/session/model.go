package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultTTL is how long an issued session stays valid.
const DefaultTTL = 24 * time.Hour

// State is a position in the sign-in state machine.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

// String returns the lower-case state name used in logs.
func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Method records how a session was established.
type Method string

const (
	MethodPassword  Method = "password"
	MethodFederated Method = "federated"
)

// Mode selects how sessions are represented and restored.
type Mode string

const (
	// ModeToken issues an opaque token kept in caller storage.
	ModeToken Mode = "token"
	// ModeFederated mirrors the identity provider's pushed state.
	ModeFederated Mode = "federated"
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeToken, ModeFederated:
		return Mode(s), nil
	case "":
		return ModeToken, nil
	default:
		return "", fmt.Errorf("unknown session mode %q (want token or federated)", s)
	}
}

// Session is the server-side record behind an opaque token.
type Session struct {
	Token     string
	MemberID  string
	Method    Method
	CreatedAt time.Time
	ExpiresAt time.Time
}

// New builds a session for memberID with a fresh random token.
// POST: Token is 64 hex characters; ExpiresAt = now + ttl
func New(memberID string, method Method, now time.Time, ttl time.Duration) (Session, error) {
	token, err := GenerateToken()
	if err != nil {
		return Session{}, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Session{
		Token:     token,
		MemberID:  memberID,
		Method:    method,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// IsExpired reports whether the session is past its expiry.
// INVARIANT: Session fields are not mutated
func (s Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// GenerateToken returns 32 random bytes hex-encoded.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
