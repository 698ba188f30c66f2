package oauth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"buff/internal/adapters/oauth"
)

func TestStateCodec(t *testing.T) {
	secret := []byte(strings.Repeat("s", 32))
	codec := oauth.NewStateCodec(secret, time.Minute)
	nonce, state, err := codec.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tests := []struct {
		name  string
		codec *oauth.StateCodec
		state string
		nonce string
		ok    bool
	}{
		{"matching", codec, state, nonce, true},
		{"other nonce", codec, state, "other", false},
		{"empty state", codec, "", nonce, false},
		{"empty nonce", codec, state, "", false},
		{"garbage", codec, "not.a.jwt", nonce, false},
		{"other secret", oauth.NewStateCodec([]byte(strings.Repeat("x", 32)), time.Minute), state, nonce, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.codec.Verify(tt.state, tt.nonce)
			if tt.ok && err != nil {
				t.Errorf("Verify: %v", err)
			}
			if !tt.ok && !errors.Is(err, oauth.ErrInvalidState) {
				t.Errorf("Verify err = %v, want ErrInvalidState", err)
			}
		})
	}
}

func TestStateCodec_Expired(t *testing.T) {
	codec := oauth.NewStateCodec([]byte(strings.Repeat("s", 32)), time.Nanosecond)
	nonce, state, err := codec.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	if err := codec.Verify(state, nonce); !errors.Is(err, oauth.ErrInvalidState) {
		t.Errorf("Verify err = %v, want ErrInvalidState for expired state", err)
	}
}
