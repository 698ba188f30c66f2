package session

import (
	"context"

	"buff/internal/domain/identity"
)

// Callback is what the provider's redirect hands back after the
// interactive step. Error is set when the user cancelled or the provider
// refused.
type Callback struct {
	Code  string
	State string
	Error string
}

// IdentityProvider is an external federated identity service.
type IdentityProvider interface {
	// Name identifies the provider in logs and member records, e.g. "google".
	Name() string
	// Complete finishes the interactive flow and returns the asserted identity.
	Complete(ctx context.Context, cb Callback) (identity.Federated, error)
	// SignOut ends the caller's session with the provider.
	SignOut(ctx context.Context) error
	// Watch registers fn for identity changes pushed by the provider. fn
	// receives nil when the caller is signed out. Calling stop ends the
	// subscription.
	Watch(fn func(*identity.Federated)) (stop func())
}
