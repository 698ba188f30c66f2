package email

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// WelcomeSubject is the subject line of the post-registration email.
const WelcomeSubject = "Welcome to BUFF"

// mdRenderer renders markdown bodies. Raw HTML in the input is dropped
// because WithUnsafe is not set.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

const welcomeMarkdown = `# Welcome, %s!

Your BUFF account is ready. From your dashboard you can:

- check your **membership** status and next payment
- see the workout sessions on your schedule
- meet your assigned trainer

[Open your dashboard](%s)

If you did not create this account, reply to this email and we will close it.
`

// RenderWelcome builds the HTML body greeting name and linking to dashboardURL.
// PRE: name is already sanitized
func RenderWelcome(name, dashboardURL string) (string, error) {
	name = escapeMarkdown(name)
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(fmt.Sprintf(welcomeMarkdown, name, dashboardURL)), &buf); err != nil {
		return "", fmt.Errorf("render welcome email: %w", err)
	}
	return buf.String(), nil
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`, "`", "\\`", "<", `\<`, "#", `\#`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
