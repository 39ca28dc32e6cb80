package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/StudioReviews/internal/domain"
	pkgkafka "github.com/utafrali/StudioReviews/pkg/kafka"
	"github.com/utafrali/StudioReviews/pkg/logger"
)

type capturingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *capturingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *capturingWriter) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProducer(w *capturingWriter) *Producer {
	return NewProducer(pkgkafka.NewProducerWithWriter(w, nil, discardLogger()), discardLogger())
}

var at = time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)

func sampleReview(status domain.ReviewStatus) *domain.Review {
	r := &domain.Review{
		ID:        "rev-1",
		ItemID:    "retreat-7",
		ItemType:  domain.ItemTypeRetreat,
		UserName:  "Ada",
		UserEmail: "ada@example.com",
		Rating:    4,
		Title:     "Quiet week",
		Content:   "Good food and long walks.",
		Status:    status,
		CreatedAt: at,
	}
	verified := at.Add(time.Hour)
	moderated := at.Add(2 * time.Hour)
	switch status {
	case domain.StatusApproved, domain.StatusRejected:
		r.ModeratedAt = &moderated
		fallthrough
	case domain.StatusVerifiedPendingModeration:
		r.VerifiedAt = &verified
	}
	return r
}

func decode(t *testing.T, msg kafka.Message) (*pkgkafka.Event, map[string]any) {
	t.Helper()
	evt, err := pkgkafka.UnmarshalEvent(msg.Value)
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, json.Unmarshal(evt.Data, &data))
	return evt, data
}

func TestProducer_Topics(t *testing.T) {
	assert.Equal(t, "reviews.review.submitted", TopicReviewSubmitted)
	assert.Equal(t, "reviews.review.verified", TopicReviewVerified)
	assert.Equal(t, "reviews.review.approved", TopicReviewApproved)
	assert.Equal(t, "reviews.review.rejected", TopicReviewRejected)
	assert.Equal(t, "reviews.review.helpful_voted", TopicReviewHelpfulVoted)
	assert.Equal(t, "reviews.verification.requested", TopicVerificationRequested)
}

func TestProducer_PublishReviewSubmitted_OmitsEmail(t *testing.T) {
	w := &capturingWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.PublishReviewSubmitted(context.Background(), sampleReview(domain.StatusPendingVerification)))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, TopicReviewSubmitted, msg.Topic)
	assert.Equal(t, "rev-1", string(msg.Key))
	assert.NotContains(t, string(msg.Value), "ada@example.com")

	evt, data := decode(t, msg)
	assert.Equal(t, AggregateTypeReview, evt.AggregateType)
	assert.Equal(t, SourceReviewService, evt.Source)
	assert.True(t, evt.Timestamp.Equal(at))
	assert.Equal(t, "retreat", data["item_type"])
	assert.EqualValues(t, 4, data["rating"])
}

func TestProducer_PublishReviewVerified(t *testing.T) {
	w := &capturingWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.PublishReviewVerified(context.Background(), sampleReview(domain.StatusVerifiedPendingModeration)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, TopicReviewVerified, w.msgs[0].Topic)

	err := p.PublishReviewVerified(context.Background(), sampleReview(domain.StatusPendingVerification))
	assert.Error(t, err)
	assert.Len(t, w.msgs, 1)
}

func TestProducer_PublishReviewModerated_PicksTopicByStatus(t *testing.T) {
	w := &capturingWriter{}
	p := newTestProducer(w)
	ctx := context.Background()

	require.NoError(t, p.PublishReviewModerated(ctx, sampleReview(domain.StatusApproved)))
	require.NoError(t, p.PublishReviewModerated(ctx, sampleReview(domain.StatusRejected)))
	require.Error(t, p.PublishReviewModerated(ctx, sampleReview(domain.StatusVerifiedPendingModeration)))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, TopicReviewApproved, w.msgs[0].Topic)
	assert.Equal(t, TopicReviewRejected, w.msgs[1].Topic)

	_, data := decode(t, w.msgs[1])
	assert.Equal(t, "rejected", data["status"])
}

func TestProducer_RecordsActingAdministrator(t *testing.T) {
	w := &capturingWriter{}
	p := newTestProducer(w)
	ctx := logger.WithActor(context.Background(), "moderator-1")

	require.NoError(t, p.PublishReviewModerated(ctx, sampleReview(domain.StatusApproved)))
	require.NoError(t, p.PublishReviewSubmitted(context.Background(), sampleReview(domain.StatusPendingVerification)))

	moderated, _ := decode(t, w.msgs[0])
	assert.Equal(t, "moderator-1", moderated.Metadata[metadataActor])

	submitted, _ := decode(t, w.msgs[1])
	assert.NotContains(t, submitted.Metadata, metadataActor)
}

func TestProducer_PublishHelpfulVoted(t *testing.T) {
	w := &capturingWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.PublishHelpfulVoted(context.Background(), "rev-1", 12, at))
	require.Len(t, w.msgs, 1)

	_, data := decode(t, w.msgs[0])
	assert.EqualValues(t, 12, data["helpful_count"])
}

func TestProducer_PublishVerificationRequested(t *testing.T) {
	w := &capturingWriter{}
	p := newTestProducer(w)

	err := p.PublishVerificationRequested(context.Background(), VerificationRequestedData{
		ReviewID:  "rev-1",
		Email:     "ada@example.com",
		VerifyURL: "https://reviews.example.com/verify?token=abc",
	}, at)
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	_, data := decode(t, w.msgs[0])
	assert.Equal(t, "https://reviews.example.com/verify?token=abc", data["verify_url"])
}

func TestProducer_WriterErrorIsReturned(t *testing.T) {
	w := &capturingWriter{err: errors.New("broker down")}
	p := newTestProducer(w)

	err := p.PublishHelpfulVoted(context.Background(), "rev-1", 1, at)
	require.Error(t, err)
	assert.Contains(t, err.Error(), TopicReviewHelpfulVoted)
}

func TestProducer_DisabledIsNoop(t *testing.T) {
	p := NewProducer(nil, discardLogger())
	assert.False(t, p.Enabled())
	assert.NoError(t, p.PublishReviewSubmitted(context.Background(), sampleReview(domain.StatusPendingVerification)))

	var nilProducer *Producer
	assert.False(t, nilProducer.Enabled())
	assert.NoError(t, nilProducer.PublishHelpfulVoted(context.Background(), "rev-1", 1, at))
}
