package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/utafrali/StudioReviews/internal/domain"
	"github.com/utafrali/StudioReviews/internal/event"
	"github.com/utafrali/StudioReviews/internal/metrics"
	"github.com/utafrali/StudioReviews/internal/notify"
	"github.com/utafrali/StudioReviews/internal/ratelimit"
	"github.com/utafrali/StudioReviews/internal/repository"
	"github.com/utafrali/StudioReviews/internal/sanitize"
	"github.com/utafrali/StudioReviews/internal/stats"
	"github.com/utafrali/StudioReviews/internal/token"
	apperrors "github.com/utafrali/StudioReviews/pkg/errors"
	"github.com/utafrali/StudioReviews/pkg/pagination"
	"github.com/utafrali/StudioReviews/pkg/validator"
)

// Rate limiter key prefixes.
const (
	submitKeyPrefix = "submit:"
	voteKeyPrefix   = "vote:"
)

// ReviewService implements the review lifecycle: submission, email
// verification, moderation, public listing and helpful votes.
type ReviewService struct {
	store    repository.ReviewStore
	limiter  ratelimit.Limiter
	tokens   *token.Issuer
	reviewer *token.ReviewerKeyer
	notifier notify.Notifier
	producer *event.Producer
	logger   *slog.Logger

	submitPolicy ratelimit.Policy
	votePolicy   ratelimit.Policy
	now          func() time.Time
	newID        func() string
}

// Option customizes a ReviewService.
type Option func(*ReviewService)

// WithSubmitPolicy overrides the per-identity submission limit.
func WithSubmitPolicy(p ratelimit.Policy) Option {
	return func(s *ReviewService) { s.submitPolicy = p }
}

// WithVotePolicy overrides the per-identity helpful vote limit.
func WithVotePolicy(p ratelimit.Policy) Option {
	return func(s *ReviewService) { s.votePolicy = p }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ReviewService) { s.now = now }
}

// WithIDGenerator replaces review id generation, for tests.
func WithIDGenerator(newID func() string) Option {
	return func(s *ReviewService) { s.newID = newID }
}

// NewReviewService creates a new review service. producer may be nil.
func NewReviewService(
	store repository.ReviewStore,
	limiter ratelimit.Limiter,
	tokens *token.Issuer,
	reviewer *token.ReviewerKeyer,
	notifier notify.Notifier,
	producer *event.Producer,
	logger *slog.Logger,
	opts ...Option,
) *ReviewService {
	s := &ReviewService{
		store:        store,
		limiter:      limiter,
		tokens:       tokens,
		reviewer:     reviewer,
		notifier:     notifier,
		producer:     producer,
		logger:       logger,
		submitPolicy: ratelimit.DefaultSubmitPolicy,
		votePolicy:   ratelimit.DefaultVotePolicy,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitInput holds the fields of a review submission.
type SubmitInput struct {
	ItemID    string `json:"item_id" validate:"required,notblank"`
	ItemType  string `json:"item_type" validate:"required,oneof=studio retreat"`
	UserName  string `json:"user_name" validate:"required,notblank,max=100"`
	UserEmail string `json:"user_email" validate:"required,max=255,email"`
	Rating    int    `json:"rating" validate:"gte=1,lte=5"`
	Title     string `json:"title" validate:"required,notblank,max=200"`
	Content   string `json:"content" validate:"required,notblank,min=10,max=10000"`
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	ReviewID             string `json:"review_id"`
	VerificationRequired bool   `json:"verification_required"`
}

// Submit accepts a review into pending_verification and sends its
// verification link. A failed notification is logged and counted but the
// review stays pending.
func (s *ReviewService) Submit(ctx context.Context, input *SubmitInput, identity domain.Identity) (*SubmitResult, error) {
	if err := s.allow(ctx, submitKeyPrefix+identity.IP, s.submitPolicy, metrics.OperationSubmit); err != nil {
		return nil, err
	}

	if fields := validator.FieldErrors(input); len(fields) > 0 {
		return nil, s.validationFailed(ctx, fields)
	}

	review := &domain.Review{
		ID:        s.newID(),
		ItemID:    strings.TrimSpace(input.ItemID),
		ItemType:  domain.ItemType(input.ItemType),
		UserName:  sanitize.Name(input.UserName),
		UserEmail: sanitize.Email(input.UserEmail),
		Rating:    input.Rating,
		Title:     strings.TrimSpace(sanitize.Text(input.Title)),
		Content:   strings.TrimSpace(sanitize.Text(input.Content)),
		Status:    domain.StatusPendingVerification,
		CreatedAt: s.now().UTC(),
	}

	// Stripped markup can leave a field empty or too short.
	if fields := checkSanitized(review); len(fields) > 0 {
		return nil, s.validationFailed(ctx, fields)
	}

	raw, tok, err := s.tokens.Issue(review.ID, review.CreatedAt)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("issue verification token: %w", err))
	}

	if err := s.store.CreateWithToken(ctx, review, tok); err != nil {
		return nil, s.storeError(ctx, "create review", err)
	}

	metrics.ReviewsSubmitted.WithLabelValues(string(review.ItemType)).Inc()
	s.logger.InfoContext(ctx, "review submitted",
		slog.String("review_id", review.ID),
		slog.String("item_id", review.ItemID),
		slog.String("item_type", string(review.ItemType)),
		slog.Int("rating", review.Rating),
	)

	if err := s.notifier.Send(ctx, review.UserEmail, raw, review.ID); err != nil {
		metrics.NotificationFailures.WithLabelValues(s.notifier.Name()).Inc()
		s.logger.ErrorContext(ctx, "failed to send verification notification",
			slog.String("review_id", review.ID),
			slog.String("notifier", s.notifier.Name()),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, "review.submitted", review.ID, s.producer.PublishReviewSubmitted(ctx, review))

	return &SubmitResult{ReviewID: review.ID, VerificationRequired: true}, nil
}

const (
	minContentLength = 10
	maxContentLength = 10000
)

// checkSanitized re-applies the length rules to the stored form of each
// free-text field.
func checkSanitized(r *domain.Review) map[string][]string {
	fields := map[string][]string{}
	if r.UserName == "" {
		fields["user_name"] = []string{"is required"}
	}
	if r.Title == "" {
		fields["title"] = []string{"is required"}
	}
	switch n := utf8.RuneCountInString(r.Content); {
	case n == 0:
		fields["content"] = []string{"is required"}
	case n < minContentLength:
		fields["content"] = []string{fmt.Sprintf("must be at least %d characters", minContentLength)}
	case n > maxContentLength:
		fields["content"] = []string{fmt.Sprintf("must be at most %d characters", maxContentLength)}
	}
	return fields
}

// Verify consumes a raw verification token and moves its review into the
// moderation queue.
func (s *ReviewService) Verify(ctx context.Context, rawToken string) (*domain.Review, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		metrics.Verifications.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, apperrors.InvalidToken()
	}

	review, err := s.store.ConsumeToken(ctx, token.Hash(rawToken), s.now().UTC())
	if err != nil {
		metrics.Verifications.WithLabelValues(verificationOutcome(err)).Inc()
		if apperrors.IsDomain(err) {
			s.logger.WarnContext(ctx, "verification rejected",
				slog.String("reason", verificationOutcome(err)),
			)
		}
		return nil, s.storeError(ctx, "consume verification token", err)
	}

	metrics.Verifications.WithLabelValues(metrics.OutcomeVerified).Inc()
	s.logger.InfoContext(ctx, "review verified",
		slog.String("review_id", review.ID),
	)

	s.publish(ctx, "review.verified", review.ID, s.producer.PublishReviewVerified(ctx, review))

	return review, nil
}

func verificationOutcome(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidToken):
		return metrics.OutcomeInvalid
	case errors.Is(err, apperrors.ErrTokenExpired):
		return metrics.OutcomeExpired
	case errors.Is(err, apperrors.ErrTokenAlreadyUsed):
		return metrics.OutcomeAlreadyUsed
	case errors.Is(err, apperrors.ErrInvalidState):
		return metrics.OutcomeInvalidState
	default:
		return metrics.OutcomeError
	}
}

// Moderate approves or rejects a verified review. notes are sanitized and
// stored; blank notes are dropped.
func (s *ReviewService) Moderate(ctx context.Context, reviewID string, approved bool, notes *string) (*domain.Review, error) {
	current, err := s.store.GetByID(ctx, reviewID)
	if err != nil {
		return nil, s.storeError(ctx, "get review for moderation", err)
	}

	ev := domain.ModerationEvent(approved)
	if _, err := domain.NextStatus(current.Status, ev); err != nil {
		return nil, err
	}

	review, err := s.store.Transition(ctx, reviewID, current.Status, ev, s.now().UTC(), cleanNotes(notes))
	if err != nil {
		return nil, s.storeError(ctx, "moderate review", err)
	}

	metrics.ModerationDecisions.WithLabelValues(string(review.Status)).Inc()
	s.logger.InfoContext(ctx, "review moderated",
		slog.String("review_id", review.ID),
		slog.String("status", string(review.Status)),
	)

	s.publish(ctx, "review.moderated", review.ID, s.producer.PublishReviewModerated(ctx, review))

	return review, nil
}

func cleanNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	cleaned := strings.TrimSpace(sanitize.Text(*notes))
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// ListResult is one page of an item's public reviews plus whole-item stats.
type ListResult struct {
	Reviews []domain.PublicReview `json:"reviews"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
	HasMore bool                  `json:"has_more"`
	Stats   domain.ReviewStats    `json:"stats"`
}

// List returns approved reviews of item matching filter. Stats always cover
// every approved review of the item, not only the filtered page.
func (s *ReviewService) List(ctx context.Context, item domain.ItemRef, filter domain.ListFilter) (*ListResult, error) {
	if !domain.IsValidItemType(string(item.Type)) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid item type %q", item.Type))
	}
	if strings.TrimSpace(item.ID) == "" {
		return nil, apperrors.InvalidInput("item id is required")
	}
	if err := checkFilter(&filter); err != nil {
		return nil, err
	}

	page := pagination.Params{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset

	reviews, total, err := s.store.ListApproved(ctx, item, filter)
	if err != nil {
		return nil, s.storeError(ctx, "list approved reviews", err)
	}

	counts, err := s.store.ApprovedDistribution(ctx, item)
	if err != nil {
		return nil, s.storeError(ctx, "load rating distribution", err)
	}

	public := make([]domain.PublicReview, 0, len(reviews))
	for i := range reviews {
		public = append(public, reviews[i].Public(s.reviewer.Key(reviews[i].UserEmail)))
	}

	result := pagination.NewResult(public, total, page)
	return &ListResult{
		Reviews: result.Data,
		Total:   result.Total,
		Limit:   result.Limit,
		Offset:  result.Offset,
		HasMore: result.HasMore,
		Stats:   stats.FromDistribution(counts),
	}, nil
}

func checkFilter(f *domain.ListFilter) error {
	for name, v := range map[string]*int{"rating": f.Rating, "min_rating": f.MinRating, "max_rating": f.MaxRating} {
		if v != nil && (*v < stats.MinRating || *v > stats.MaxRating) {
			return apperrors.InvalidInput(fmt.Sprintf("%s must be between %d and %d", name, stats.MinRating, stats.MaxRating))
		}
	}
	if f.MinRating != nil && f.MaxRating != nil && *f.MinRating > *f.MaxRating {
		return apperrors.InvalidInput("min_rating must not exceed max_rating")
	}

	sort, err := domain.ParseSortOrder(string(f.Sort))
	if err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	f.Sort = sort
	return nil
}

// ListForModeration returns the moderation queue, oldest first.
func (s *ReviewService) ListForModeration(ctx context.Context) ([]domain.Review, error) {
	reviews, err := s.store.ListByStatus(ctx, domain.StatusVerifiedPendingModeration)
	if err != nil {
		return nil, s.storeError(ctx, "list moderation queue", err)
	}
	return reviews, nil
}

// Get returns a review in any status, including private fields. It is for
// administrators only.
func (s *ReviewService) Get(ctx context.Context, reviewID string) (*domain.Review, error) {
	review, err := s.store.GetByID(ctx, reviewID)
	if err != nil {
		return nil, s.storeError(ctx, "get review", err)
	}
	return review, nil
}

// MarkHelpful records that identity found an approved review helpful and
// returns the new helpful count. Each identity counts once per review.
func (s *ReviewService) MarkHelpful(ctx context.Context, reviewID string, identity domain.Identity) (int, error) {
	voterKey := identity.VoterKey()
	if err := s.allow(ctx, voteKeyPrefix+voterKey, s.votePolicy, metrics.OperationVote); err != nil {
		return 0, err
	}

	now := s.now().UTC()
	count, err := s.store.AddHelpfulVote(ctx, domain.HelpfulVote{
		ReviewID:  reviewID,
		VoterKey:  voterKey,
		CreatedAt: now,
	})
	if err != nil {
		return 0, s.storeError(ctx, "add helpful vote", err)
	}

	metrics.HelpfulVotes.Inc()
	s.logger.InfoContext(ctx, "helpful vote recorded",
		slog.String("review_id", reviewID),
		slog.Int("helpful_count", count),
	)

	s.publish(ctx, "review.helpful_voted", reviewID, s.producer.PublishHelpfulVoted(ctx, reviewID, count, now))

	return count, nil
}

// PurgeExpiredTokens removes tokens that expired more than grace ago.
func (s *ReviewService) PurgeExpiredTokens(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := s.store.PurgeExpiredTokens(ctx, s.now().UTC().Add(-grace))
	if err != nil {
		return 0, s.storeError(ctx, "purge expired tokens", err)
	}
	metrics.TokensPurged.Add(float64(n))
	if n > 0 {
		s.logger.InfoContext(ctx, "purged expired verification tokens", slog.Int64("count", n))
	}
	return n, nil
}

// allow consults the limiter. A limiter failure rejects the request rather
// than letting it through unchecked.
func (s *ReviewService) allow(ctx context.Context, key string, p ratelimit.Policy, op string) error {
	ok, err := s.limiter.Allow(ctx, key, p.Limit, p.Window)
	if err != nil {
		s.logger.ErrorContext(ctx, "rate limiter unavailable",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return apperrors.StorageUnavailable(fmt.Errorf("rate limiter: %w", err))
	}
	if !ok {
		metrics.RateLimited.WithLabelValues(op).Inc()
		s.logger.WarnContext(ctx, "rate limit exceeded", slog.String("operation", op))
		return apperrors.RateLimited()
	}
	return nil
}

func (s *ReviewService) validationFailed(ctx context.Context, fields map[string][]string) error {
	names := validator.SortedFieldNames(fields)
	for _, name := range names {
		metrics.ValidationFailures.WithLabelValues(name).Inc()
	}
	s.logger.InfoContext(ctx, "review submission rejected",
		slog.Any("fields", names),
	)
	return apperrors.ValidationFailed(fields)
}

// storeError passes pipeline errors through and turns anything else into
// StorageUnavailable.
func (s *ReviewService) storeError(ctx context.Context, op string, err error) error {
	if apperrors.IsDomain(err) {
		return err
	}
	s.logger.ErrorContext(ctx, "review store failure",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return apperrors.StorageUnavailable(fmt.Errorf("%s: %w", op, err))
}

// publish logs a failed best-effort event.
func (s *ReviewService) publish(ctx context.Context, name, reviewID string, err error) {
	if err == nil {
		return
	}
	s.logger.WarnContext(ctx, "failed to publish review event",
		slog.String("event", name),
		slog.String("review_id", reviewID),
		slog.String("error", err.Error()),
	)
}
