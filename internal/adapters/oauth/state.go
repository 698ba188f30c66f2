package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultStateTTL bounds how long a user may take on the provider's consent screen.
const DefaultStateTTL = 10 * time.Minute

// ErrInvalidState is returned when a callback's state does not match the
// one issued to the same browser.
var ErrInvalidState = errors.New("invalid oauth state")

// StateCodec issues and checks the signed state parameter of the
// authorization code flow. The signed token carries a nonce that is also
// kept in a browser cookie, binding the callback to the browser that started it.
type StateCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateCodec returns a codec signing with secret (HS256).
// PRE: len(secret) >= 32
func NewStateCodec(secret []byte, ttl time.Duration) *StateCodec {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateCodec{secret: secret, ttl: ttl, now: time.Now}
}

// Issue returns a fresh nonce and the signed state carrying it.
func (c *StateCodec) Issue() (nonce, state string, err error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate state nonce: %w", err)
	}
	nonce = hex.EncodeToString(b)
	now := c.now()
	claims := jwt.RegisteredClaims{
		ID:        nonce,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	state, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign state: %w", err)
	}
	return nonce, state, nil
}

// Verify checks the signature, expiry and that state carries nonce.
func (c *StateCodec) Verify(state, nonce string) error {
	if state == "" || nonce == "" {
		return ErrInvalidState
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.ID != nonce {
		return fmt.Errorf("%w: nonce mismatch", ErrInvalidState)
	}
	return nil
}
