package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/StudioReviews/internal/domain"
	pkgkafka "github.com/utafrali/StudioReviews/pkg/kafka"
	"github.com/utafrali/StudioReviews/pkg/logger"
)

// metadataActor names the administrator behind a moderation event.
const metadataActor = "actor"

// Kafka topics for review domain events.
var (
	TopicReviewSubmitted       = pkgkafka.Topic("review", "submitted")
	TopicReviewVerified        = pkgkafka.Topic("review", "verified")
	TopicReviewApproved        = pkgkafka.Topic("review", "approved")
	TopicReviewRejected        = pkgkafka.Topic("review", "rejected")
	TopicReviewHelpfulVoted    = pkgkafka.Topic("review", "helpful_voted")
	TopicVerificationRequested = pkgkafka.Topic("verification", "requested")
)

// Aggregate type constant.
const AggregateTypeReview = "review"

// Source identifier for events originating from the review service.
const SourceReviewService = "review-service"

// ReviewSubmittedData is the payload for a review.submitted event. The
// reviewer's email is deliberately absent.
type ReviewSubmittedData struct {
	ReviewID  string    `json:"review_id"`
	ItemID    string    `json:"item_id"`
	ItemType  string    `json:"item_type"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewVerifiedData is the payload for a review.verified event.
type ReviewVerifiedData struct {
	ReviewID   string    `json:"review_id"`
	ItemID     string    `json:"item_id"`
	ItemType   string    `json:"item_type"`
	VerifiedAt time.Time `json:"verified_at"`
}

// ReviewModeratedData is the payload for review.approved and review.rejected.
type ReviewModeratedData struct {
	ReviewID    string    `json:"review_id"`
	ItemID      string    `json:"item_id"`
	ItemType    string    `json:"item_type"`
	Rating      int       `json:"rating"`
	Status      string    `json:"status"`
	ModeratedAt time.Time `json:"moderated_at"`
}

// HelpfulVotedData is the payload for a review.helpful_voted event.
type HelpfulVotedData struct {
	ReviewID     string `json:"review_id"`
	HelpfulCount int    `json:"helpful_count"`
}

// VerificationRequestedData asks an external mail service to deliver a
// verification link.
type VerificationRequestedData struct {
	ReviewID  string `json:"review_id"`
	Email     string `json:"email"`
	VerifyURL string `json:"verify_url"`
}

// Producer publishes review domain events to Kafka. A Producer without a
// Kafka client publishes nothing.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the review service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// Enabled reports whether events are actually published.
func (p *Producer) Enabled() bool {
	return p != nil && p.kafka != nil
}

// PublishReviewSubmitted publishes a review.submitted event.
func (p *Producer) PublishReviewSubmitted(ctx context.Context, review *domain.Review) error {
	return p.publish(ctx, TopicReviewSubmitted, review.ID, review.CreatedAt, ReviewSubmittedData{
		ReviewID:  review.ID,
		ItemID:    review.ItemID,
		ItemType:  string(review.ItemType),
		Rating:    review.Rating,
		CreatedAt: review.CreatedAt,
	})
}

// PublishReviewVerified publishes a review.verified event.
func (p *Producer) PublishReviewVerified(ctx context.Context, review *domain.Review) error {
	if review.VerifiedAt == nil {
		return fmt.Errorf("review %s has no verification time", review.ID)
	}
	return p.publish(ctx, TopicReviewVerified, review.ID, *review.VerifiedAt, ReviewVerifiedData{
		ReviewID:   review.ID,
		ItemID:     review.ItemID,
		ItemType:   string(review.ItemType),
		VerifiedAt: *review.VerifiedAt,
	})
}

// PublishReviewModerated publishes review.approved or review.rejected
// depending on the review's status.
func (p *Producer) PublishReviewModerated(ctx context.Context, review *domain.Review) error {
	var topic string
	switch review.Status {
	case domain.StatusApproved:
		topic = TopicReviewApproved
	case domain.StatusRejected:
		topic = TopicReviewRejected
	default:
		return fmt.Errorf("review %s is not moderated (status %s)", review.ID, review.Status)
	}
	if review.ModeratedAt == nil {
		return fmt.Errorf("review %s has no moderation time", review.ID)
	}

	return p.publish(ctx, topic, review.ID, *review.ModeratedAt, ReviewModeratedData{
		ReviewID:    review.ID,
		ItemID:      review.ItemID,
		ItemType:    string(review.ItemType),
		Rating:      review.Rating,
		Status:      string(review.Status),
		ModeratedAt: *review.ModeratedAt,
	})
}

// PublishHelpfulVoted publishes a review.helpful_voted event.
func (p *Producer) PublishHelpfulVoted(ctx context.Context, reviewID string, helpfulCount int, at time.Time) error {
	return p.publish(ctx, TopicReviewHelpfulVoted, reviewID, at, HelpfulVotedData{
		ReviewID:     reviewID,
		HelpfulCount: helpfulCount,
	})
}

// PublishVerificationRequested publishes a verification.requested event.
func (p *Producer) PublishVerificationRequested(ctx context.Context, data VerificationRequestedData, at time.Time) error {
	return p.publish(ctx, TopicVerificationRequested, data.ReviewID, at, data)
}

func (p *Producer) publish(ctx context.Context, topic, reviewID string, at time.Time, data any) error {
	if !p.Enabled() {
		return nil
	}

	evt, err := pkgkafka.NewEventAt(at, topic, reviewID, AggregateTypeReview, SourceReviewService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if actor := logger.ActorFromContext(ctx); actor != "" {
		evt.WithMetadata(metadataActor, actor)
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published review event",
		slog.String("topic", topic),
		slog.String("review_id", reviewID),
	)
	return nil
}
