// Package postgres implements repository.ReviewStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/StudioReviews/internal/domain"
	"github.com/utafrali/StudioReviews/internal/stats"
	"github.com/utafrali/StudioReviews/pkg/database"
	apperrors "github.com/utafrali/StudioReviews/pkg/errors"
	"github.com/utafrali/StudioReviews/pkg/pagination"
)

const reviewColumns = `id, item_id, item_type, user_name, user_email, rating, title, content,
		       status, helpful_count, created_at, verified_at, moderated_at, moderation_notes`

const (
	insertReviewSQL = `
		INSERT INTO reviews (id, item_id, item_type, user_name, user_email, rating, title, content,
		                     status, helpful_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	insertTokenSQL = `
		INSERT INTO verification_tokens (token_hash, review_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)`

	getReviewSQL = `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	consumeTokenSQL = `
		UPDATE verification_tokens
		SET consumed_at = $2
		WHERE token_hash = $1 AND consumed_at IS NULL AND expires_at > $2
		RETURNING review_id`

	tokenStateSQL = `SELECT consumed_at, expires_at FROM verification_tokens WHERE token_hash = $1`

	verifyReviewSQL = `
		UPDATE reviews
		SET status = $3, verified_at = $4
		WHERE id = $1 AND status = $2
		RETURNING ` + reviewColumns

	moderateReviewSQL = `
		UPDATE reviews
		SET status = $3, moderated_at = $4, moderation_notes = $5
		WHERE id = $1 AND status = $2
		RETURNING ` + reviewColumns

	reviewStatusSQL = `SELECT status FROM reviews WHERE id = $1`

	distributionSQL = `
		SELECT rating, COUNT(*)
		FROM reviews
		WHERE item_type = $1 AND item_id = $2 AND status = 'approved'
		GROUP BY rating`

	listByStatusSQL = `SELECT ` + reviewColumns + `
		FROM reviews
		WHERE status = $1
		ORDER BY COALESCE(moderated_at, verified_at, created_at) ASC, created_at ASC, id ASC`

	insertVoteSQL = `
		INSERT INTO helpful_votes (review_id, voter_key, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (review_id, voter_key) DO NOTHING`

	incrementHelpfulSQL = `
		UPDATE reviews
		SET helpful_count = helpful_count + 1
		WHERE id = $1
		RETURNING helpful_count`

	purgeTokensSQL = `DELETE FROM verification_tokens WHERE expires_at < $1 AND consumed_at IS NULL`
)

var orderClauses = map[domain.SortOrder]string{
	domain.SortMostHelpful:   "helpful_count DESC, created_at DESC, id ASC",
	domain.SortNewest:        "created_at DESC, id ASC",
	domain.SortHighestRating: "rating DESC, created_at DESC, id ASC",
	domain.SortLowestRating:  "rating ASC, created_at DESC, id ASC",
}

// ReviewRepository implements review persistence operations using PostgreSQL.
type ReviewRepository struct {
	pool database.Pool
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// CreateWithToken implements repository.ReviewStore.
func (r *ReviewRepository) CreateWithToken(ctx context.Context, review *domain.Review, token *domain.VerificationToken) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateReview", insertReviewSQL)
	defer func() { end(err) }()

	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertReviewSQL,
			review.ID,
			review.ItemID,
			string(review.ItemType),
			review.UserName,
			review.UserEmail,
			review.Rating,
			review.Title,
			review.Content,
			string(review.Status),
			review.HelpfulCount,
			review.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert review: %w", err)
		}

		_, err = tx.Exec(ctx, insertTokenSQL,
			token.TokenHash,
			token.ReviewID,
			token.IssuedAt,
			token.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("insert verification token: %w", err)
		}
		return nil
	})
}

// isReviewID reports whether id can be compared against the uuid primary key.
// Anything else would fail with invalid_text_representation instead of
// simply not matching.
func isReviewID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// GetByID implements repository.ReviewStore.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (_ *domain.Review, err error) {
	if !isReviewID(id) {
		return nil, apperrors.NotFound("review", id)
	}
	ctx, end := database.TraceQuery(ctx, "GetReview", getReviewSQL)
	defer func() { end(err) }()

	review, err := scanReview(r.pool.QueryRow(ctx, getReviewSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("review", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return review, nil
}

// ConsumeToken implements repository.ReviewStore. The conditional update
// takes the token's row lock, so a concurrent second caller re-evaluates
// consumed_at after the first commits and matches nothing.
func (r *ReviewRepository) ConsumeToken(ctx context.Context, tokenHash string, at time.Time) (_ *domain.Review, err error) {
	ctx, end := database.TraceQuery(ctx, "ConsumeToken", consumeTokenSQL)
	defer func() { end(err) }()

	next, err := domain.NextStatus(domain.StatusPendingVerification, domain.EventVerify)
	if err != nil {
		return nil, err
	}

	var review *domain.Review
	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var reviewID string
		err := tx.QueryRow(ctx, consumeTokenSQL, tokenHash, at).Scan(&reviewID)
		if errors.Is(err, pgx.ErrNoRows) {
			return classifyToken(ctx, tx, tokenHash, at)
		}
		if err != nil {
			return fmt.Errorf("consume token: %w", err)
		}

		review, err = scanReview(tx.QueryRow(ctx, verifyReviewSQL,
			reviewID, string(domain.StatusPendingVerification), string(next), at))
		if errors.Is(err, pgx.ErrNoRows) {
			return explainMiss(ctx, tx, reviewID, domain.EventVerify)
		}
		if err != nil {
			return fmt.Errorf("verify review: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

// classifyToken explains why a token could not be consumed.
func classifyToken(ctx context.Context, q database.DBTX, tokenHash string, at time.Time) error {
	var (
		consumedAt *time.Time
		expiresAt  time.Time
	)
	err := q.QueryRow(ctx, tokenStateSQL, tokenHash).Scan(&consumedAt, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.InvalidToken()
	}
	if err != nil {
		return fmt.Errorf("load token state: %w", err)
	}

	tok := domain.VerificationToken{ConsumedAt: consumedAt, ExpiresAt: expiresAt}
	if err := tok.Check(at); err != nil {
		return err
	}
	// Neither consumed nor expired yet the update matched nothing: the
	// token was consumed by a transaction that committed in between.
	return apperrors.TokenAlreadyUsed()
}

// Transition implements repository.ReviewStore.
func (r *ReviewRepository) Transition(ctx context.Context, id string, from domain.ReviewStatus, event domain.Event, at time.Time, notes *string) (_ *domain.Review, err error) {
	if !isReviewID(id) {
		return nil, apperrors.NotFound("review", id)
	}
	query := moderateReviewSQL
	args := []any{id, string(from), "", at, notes}
	if event == domain.EventVerify {
		query = verifyReviewSQL
		args = args[:4]
	}

	ctx, end := database.TraceQuery(ctx, "TransitionReview", query)
	defer func() { end(err) }()

	next, err := domain.NextStatus(from, event)
	if err != nil {
		return nil, err
	}
	args[2] = string(next)

	review, err := scanReview(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, explainMiss(ctx, r.pool, id, event)
	}
	if err != nil {
		return nil, fmt.Errorf("transition review: %w", err)
	}
	return review, nil
}

// explainMiss reports why a compare-and-set update matched no row.
func explainMiss(ctx context.Context, q database.DBTX, id string, event domain.Event) error {
	var status string
	err := q.QueryRow(ctx, reviewStatusSQL, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("review", id)
	}
	if err != nil {
		return fmt.Errorf("load review status: %w", err)
	}
	return apperrors.InvalidState(status, string(event))
}

// ListApproved implements repository.ReviewStore.
func (r *ReviewRepository) ListApproved(ctx context.Context, item domain.ItemRef, filter domain.ListFilter) (_ []domain.Review, _ int, err error) {
	where, args := approvedWhere(item, filter)
	page := pagination.Params{Limit: filter.Limit, Offset: filter.Offset}.Normalize()

	order, ok := orderClauses[filter.Sort]
	if !ok {
		order = orderClauses[domain.SortMostHelpful]
	}

	query := fmt.Sprintf(`
		SELECT %s,
		       count(*) OVER() AS total_count
		FROM reviews
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		reviewColumns, where, order, len(args)+1, len(args)+2)

	ctx, end := database.TraceQuery(ctx, "ListApprovedReviews", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var (
		reviews    []domain.Review
		totalCount int
	)
	for rows.Next() {
		rv, err := scanReview(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review rows: %w", err)
	}

	if reviews == nil {
		reviews = []domain.Review{}
		// The window count is unavailable past the last page.
		if page.Offset > 0 {
			countSQL := "SELECT COUNT(*) FROM reviews WHERE " + where
			if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&totalCount); err != nil {
				return nil, 0, fmt.Errorf("count reviews: %w", err)
			}
		}
	}

	return reviews, totalCount, nil
}

func approvedWhere(item domain.ItemRef, filter domain.ListFilter) (string, []any) {
	conds := []string{"item_type = $1", "item_id = $2", "status = $3"}
	args := []any{string(item.Type), item.ID, string(domain.StatusApproved)}

	add := func(cond string, v int) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Rating != nil {
		add("rating = $%d", *filter.Rating)
	}
	if filter.MinRating != nil {
		add("rating >= $%d", *filter.MinRating)
	}
	if filter.MaxRating != nil {
		add("rating <= $%d", *filter.MaxRating)
	}
	return strings.Join(conds, " AND "), args
}

// ApprovedDistribution implements repository.ReviewStore.
func (r *ReviewRepository) ApprovedDistribution(ctx context.Context, item domain.ItemRef) (_ map[int]int, err error) {
	ctx, end := database.TraceQuery(ctx, "ReviewDistribution", distributionSQL)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, distributionSQL, string(item.Type), item.ID)
	if err != nil {
		return nil, fmt.Errorf("query rating distribution: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int, stats.MaxRating)
	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, fmt.Errorf("scan rating distribution: %w", err)
		}
		counts[rating] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rating distribution: %w", err)
	}
	return counts, nil
}

// ListByStatus implements repository.ReviewStore.
func (r *ReviewRepository) ListByStatus(ctx context.Context, status domain.ReviewStatus) (_ []domain.Review, err error) {
	ctx, end := database.TraceQuery(ctx, "ListReviewsByStatus", listByStatusSQL)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, listByStatusSQL, string(status))
	if err != nil {
		return nil, fmt.Errorf("list reviews by status: %w", err)
	}
	defer rows.Close()

	reviews := []domain.Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return reviews, nil
}

// AddHelpfulVote implements repository.ReviewStore. The unique key on
// (review_id, voter_key) rejects duplicates; insert and increment commit
// together.
func (r *ReviewRepository) AddHelpfulVote(ctx context.Context, vote domain.HelpfulVote) (_ int, err error) {
	if !isReviewID(vote.ReviewID) {
		return 0, apperrors.NotFound("review", vote.ReviewID)
	}
	ctx, end := database.TraceQuery(ctx, "AddHelpfulVote", insertVoteSQL)
	defer func() { end(err) }()

	var count int
	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, reviewStatusSQL, vote.ReviewID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && domain.ReviewStatus(status) != domain.StatusApproved) {
			return apperrors.NotFound("review", vote.ReviewID)
		}
		if err != nil {
			return fmt.Errorf("load review status: %w", err)
		}

		tag, err := tx.Exec(ctx, insertVoteSQL, vote.ReviewID, vote.VoterKey, vote.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert helpful vote: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperrors.AlreadyVoted()
		}

		if err := tx.QueryRow(ctx, incrementHelpfulSQL, vote.ReviewID).Scan(&count); err != nil {
			return fmt.Errorf("increment helpful count: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// PurgeExpiredTokens implements repository.ReviewStore. Consumed tokens are
// kept so a repeated click keeps reporting TOKEN_ALREADY_USED.
func (r *ReviewRepository) PurgeExpiredTokens(ctx context.Context, cutoff time.Time) (_ int64, err error) {
	ctx, end := database.TraceQuery(ctx, "PurgeExpiredTokens", purgeTokensSQL)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, purgeTokensSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanReview scans reviewColumns followed by any extra destinations.
func scanReview(row pgx.Row, extra ...any) (*domain.Review, error) {
	var (
		rv       domain.Review
		itemType string
		status   string
	)
	dest := append([]any{
		&rv.ID,
		&rv.ItemID,
		&itemType,
		&rv.UserName,
		&rv.UserEmail,
		&rv.Rating,
		&rv.Title,
		&rv.Content,
		&status,
		&rv.HelpfulCount,
		&rv.CreatedAt,
		&rv.VerifiedAt,
		&rv.ModeratedAt,
		&rv.ModerationNotes,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	rv.ItemType = domain.ItemType(itemType)
	rv.Status = domain.ReviewStatus(status)
	return &rv, nil
}
