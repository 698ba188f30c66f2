package orchestrators

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// sanitizeName strips markup from a user-supplied display name and returns
// plain text. Entities produced by the policy are decoded again so that
// "Ann & Bob" round-trips.
func sanitizeName(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}
