package orchestrators

import (
	"context"
	"fmt"
	"log/slog"

	emailAdapter "buff/internal/adapters/email"
	"buff/internal/domain/member"
)

// SendWelcomeDeps holds dependencies for SendWelcome.
type SendWelcomeDeps struct {
	Sender       emailAdapter.Sender
	From         string
	DashboardURL string
}

// ExecuteSendWelcome emails a newly registered member.
// PRE: m has been persisted
// POST: one message handed to the sender; failures are returned for the caller to log
func ExecuteSendWelcome(ctx context.Context, m member.Member, deps SendWelcomeDeps) error {
	if deps.Sender == nil {
		return nil
	}
	body, err := emailAdapter.RenderWelcome(m.DisplayName(""), deps.DashboardURL)
	if err != nil {
		return err
	}
	res, err := deps.Sender.Send(ctx, emailAdapter.SendRequest{
		To:      []string{m.Email},
		From:    deps.From,
		Subject: emailAdapter.WelcomeSubject,
		HTML:    body,
	})
	if err != nil {
		return fmt.Errorf("send welcome email: %w", err)
	}
	slog.Info("welcome_email_sent", "member_id", m.ID, "message_id", res.MessageID)
	return nil
}
