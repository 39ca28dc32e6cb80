package repository

import (
	"context"
	"time"

	"github.com/utafrali/StudioReviews/internal/domain"
)

// ReviewStore defines persistence for reviews, their verification tokens and
// helpful votes. Implementations report pipeline failures with the kinds in
// pkg/errors (not found, invalid state, token problems, duplicate vote) and
// return plain wrapped errors for infrastructure failures.
type ReviewStore interface {
	// CreateWithToken inserts a pending review and its verification token as
	// one unit: either both exist afterwards or neither does.
	CreateWithToken(ctx context.Context, review *domain.Review, token *domain.VerificationToken) error

	// GetByID retrieves a review in any status.
	GetByID(ctx context.Context, id string) (*domain.Review, error)

	// ConsumeToken marks the token with tokenHash consumed at `at` and moves
	// its review from pending_verification to verified_pending_moderation in
	// one atomic step. Of several concurrent callers exactly one succeeds;
	// the rest observe the token as already used.
	ConsumeToken(ctx context.Context, tokenHash string, at time.Time) (*domain.Review, error)

	// Transition applies event to the review only if it is still in status
	// from (compare-and-set) and returns the updated review.
	Transition(ctx context.Context, id string, from domain.ReviewStatus, event domain.Event, at time.Time, notes *string) (*domain.Review, error)

	// ListApproved returns one page of an item's approved reviews matching
	// filter, plus the number of matching reviews across all pages.
	ListApproved(ctx context.Context, item domain.ItemRef, filter domain.ListFilter) ([]domain.Review, int, error)

	// ApprovedDistribution returns per-star counts of an item's approved reviews.
	ApprovedDistribution(ctx context.Context, item domain.ItemRef) (map[int]int, error)

	// ListByStatus returns every review in status, oldest in the queue first.
	ListByStatus(ctx context.Context, status domain.ReviewStatus) ([]domain.Review, error)

	// AddHelpfulVote records vote and increments the review's helpful count
	// as one unit, returning the new count. The review must be approved.
	AddHelpfulVote(ctx context.Context, vote domain.HelpfulVote) (int, error)

	// PurgeExpiredTokens deletes tokens that expired before cutoff.
	PurgeExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error)
}
