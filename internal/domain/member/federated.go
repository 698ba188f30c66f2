package member

import "github.com/google/uuid"

// federatedNamespace scopes member IDs derived from provider subjects.
var federatedNamespace = uuid.MustParse("6b1f3f0e-9c55-4d7e-8d0b-3a1c2f5e7b90")

// FederatedID derives the stable member ID for a provider subject, so the
// same subject always maps to the same member record.
func FederatedID(provider, subject string) string {
	return uuid.NewSHA1(federatedNamespace, []byte(provider+":"+subject)).String()
}
