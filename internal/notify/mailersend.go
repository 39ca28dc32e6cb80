package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

// mailersendEmails is the part of the MailerSend client the notifier uses.
type mailersendEmails interface {
	NewMessage() *mailersend.Message
	Send(ctx context.Context, message *mailersend.Message) (*mailersend.Response, error)
}

// MailerSendNotifier sends verification emails through MailerSend.
type MailerSendNotifier struct {
	emails mailersendEmails
	from   mailersend.From
	links  LinkBuilder
	ttl    time.Duration
	logger *slog.Logger
}

// NewMailerSendNotifier creates a MailerSend-backed notifier.
func NewMailerSendNotifier(apiKey string, from Sender, links LinkBuilder, ttl time.Duration, logger *slog.Logger) *MailerSendNotifier {
	client := mailersend.NewMailersend(apiKey)
	return newMailerSendNotifier(client.Email, from, links, ttl, logger)
}

func newMailerSendNotifier(emails mailersendEmails, from Sender, links LinkBuilder, ttl time.Duration, logger *slog.Logger) *MailerSendNotifier {
	return &MailerSendNotifier{
		emails: emails,
		from:   mailersend.From{Name: from.Name, Email: from.Email},
		links:  links,
		ttl:    ttl,
		logger: logger,
	}
}

// Name returns the name of this notifier.
func (n *MailerSendNotifier) Name() string { return "mailersend" }

// Send emails the verification link to email. Any non-2xx answer is an error.
func (n *MailerSendNotifier) Send(ctx context.Context, email, rawToken, reviewID string) error {
	content := verificationMessage(n.links.Link(rawToken), n.ttl)

	msg := n.emails.NewMessage()
	msg.SetFrom(n.from)
	msg.SetRecipients([]mailersend.Recipient{{Email: email}})
	msg.SetSubject(content.Subject)
	msg.SetText(content.Text)
	msg.SetHTML(content.HTML)

	res, err := n.emails.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("mailersend: send verification email: %w", err)
	}
	if res == nil || res.Response == nil {
		return fmt.Errorf("mailersend: empty response")
	}
	if res.Body != nil {
		defer res.Body.Close()
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var body []byte
		if res.Body != nil {
			body, _ = io.ReadAll(io.LimitReader(res.Body, 4<<10))
		}
		return fmt.Errorf("mailersend: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	n.logger.InfoContext(ctx, "verification email sent",
		slog.String("notifier", n.Name()),
		slog.String("review_id", reviewID),
		slog.String("message_id", res.Header.Get("X-Message-Id")),
	)
	return nil
}
