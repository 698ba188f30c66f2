// Package identity holds the error taxonomy of the member identity core and
// the shape of identities asserted by an external provider.
package identity

// Federated is what an external identity provider asserts about a caller
// after a completed interactive flow.
type Federated struct {
	Provider    string // "google"
	Subject     string // provider-stable user id
	Email       string
	DisplayName string
	PhotoURL    string
}

// Valid reports whether the assertion carries enough to bind a member.
func (f Federated) Valid() bool {
	return f.Provider != "" && f.Subject != ""
}
