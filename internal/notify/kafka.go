package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/utafrali/StudioReviews/internal/event"
)

// KafkaNotifier hands verification links to an external mail service by
// publishing verification.requested events.
type KafkaNotifier struct {
	producer *event.Producer
	links    LinkBuilder
	now      func() time.Time
}

// NewKafkaNotifier creates a notifier publishing through producer.
func NewKafkaNotifier(producer *event.Producer, links LinkBuilder) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		links:    links,
		now:      time.Now,
	}
}

// Name returns the name of this notifier.
func (n *KafkaNotifier) Name() string { return "kafka" }

// Send publishes the verification request. It fails when Kafka is disabled
// so the caller counts the undelivered notification.
func (n *KafkaNotifier) Send(ctx context.Context, email, rawToken, reviewID string) error {
	if !n.producer.Enabled() {
		return fmt.Errorf("kafka notifier: %w: event producer disabled", ErrUnavailable)
	}

	return n.producer.PublishVerificationRequested(ctx, event.VerificationRequestedData{
		ReviewID:  reviewID,
		Email:     email,
		VerifyURL: n.links.Link(rawToken),
	}, n.now().UTC())
}
