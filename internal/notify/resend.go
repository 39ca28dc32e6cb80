package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/resend/resend-go/v2"
)

// resendEmails is the part of the Resend client the notifier uses.
type resendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendNotifier sends verification emails through Resend.
type ResendNotifier struct {
	emails resendEmails
	from   Sender
	links  LinkBuilder
	ttl    time.Duration
	logger *slog.Logger
}

// NewResendNotifier creates a Resend-backed notifier.
func NewResendNotifier(apiKey string, from Sender, links LinkBuilder, ttl time.Duration, logger *slog.Logger) *ResendNotifier {
	client := resend.NewClient(apiKey)
	return newResendNotifier(client.Emails, from, links, ttl, logger)
}

func newResendNotifier(emails resendEmails, from Sender, links LinkBuilder, ttl time.Duration, logger *slog.Logger) *ResendNotifier {
	return &ResendNotifier{
		emails: emails,
		from:   from,
		links:  links,
		ttl:    ttl,
		logger: logger,
	}
}

// Name returns the name of this notifier.
func (n *ResendNotifier) Name() string { return "resend" }

// Send emails the verification link to email.
func (n *ResendNotifier) Send(ctx context.Context, email, rawToken, reviewID string) error {
	msg := verificationMessage(n.links.Link(rawToken), n.ttl)

	sent, err := n.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    formatAddress(n.from),
		To:      []string{email},
		Subject: msg.Subject,
		Text:    msg.Text,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend: send verification email: %w", err)
	}

	n.logger.InfoContext(ctx, "verification email sent",
		slog.String("notifier", n.Name()),
		slog.String("review_id", reviewID),
		slog.String("message_id", sent.Id),
	)
	return nil
}

func formatAddress(s Sender) string {
	if s.Name == "" {
		return s.Email
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}
