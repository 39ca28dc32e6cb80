// Package notify delivers verification links to reviewers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable is returned when a notifier refuses to send, for example
// because its circuit breaker is open.
var ErrUnavailable = errors.New("notifier unavailable")

// Notifier sends a verification link for reviewID to email.
type Notifier interface {
	Name() string
	Send(ctx context.Context, email, rawToken, reviewID string) error
}

// Sender is the From identity of outgoing mail.
type Sender struct {
	Name  string
	Email string
}

// LinkBuilder turns raw tokens into verification URLs.
type LinkBuilder struct {
	base *url.URL
}

// NewLinkBuilder validates base, which must be an absolute http(s) URL.
func NewLinkBuilder(base string) (LinkBuilder, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return LinkBuilder{}, fmt.Errorf("parse verify url base: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return LinkBuilder{}, fmt.Errorf("verify url base %q must be an http or https url", base)
	}
	if u.Host == "" {
		return LinkBuilder{}, fmt.Errorf("verify url base %q has no host", base)
	}
	return LinkBuilder{base: u}, nil
}

// Link returns base?token=<raw>, keeping any query the base already has.
func (b LinkBuilder) Link(rawToken string) string {
	u := *b.base
	q := u.Query()
	q.Set("token", rawToken)
	u.RawQuery = q.Encode()
	return u.String()
}

// message is the rendered verification email.
type message struct {
	Subject string
	Text    string
	HTML    string
}

const verificationSubject = "Confirm your review"

func verificationMessage(link string, ttl time.Duration) message {
	expiry := humanizeTTL(ttl)
	escaped := html.EscapeString(link)

	return message{
		Subject: verificationSubject,
		Text: fmt.Sprintf("Thanks for your review. Confirm it by opening this link:\n\n%s\n\n"+
			"The link expires in %s and works once. If you did not write a review, ignore this email.\n", link, expiry),
		HTML: fmt.Sprintf(`<p>Thanks for your review.</p>`+
			`<p><a href="%s">Confirm your review</a></p>`+
			`<p>The link expires in %s and works once. If you did not write a review, ignore this email.</p>`,
			escaped, expiry),
	}
}

func humanizeTTL(ttl time.Duration) string {
	switch {
	case ttl <= 0:
		return "a short while"
	case ttl%time.Hour == 0:
		h := int(ttl / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	case ttl%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(ttl/time.Minute))
	default:
		return ttl.String()
	}
}
