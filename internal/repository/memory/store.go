// Package memory is the in-process reference implementation of
// repository.ReviewStore.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/utafrali/StudioReviews/internal/domain"
	apperrors "github.com/utafrali/StudioReviews/pkg/errors"
	"github.com/utafrali/StudioReviews/pkg/pagination"
)

type voteKey struct {
	reviewID string
	voterKey string
}

// Store keeps reviews, tokens and votes in maps guarded by one RWMutex.
// Every check-and-write happens inside a single critical section.
type Store struct {
	mu      sync.RWMutex
	reviews map[string]*domain.Review
	tokens  map[string]*domain.VerificationToken
	votes   map[voteKey]domain.HelpfulVote
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		reviews: make(map[string]*domain.Review),
		tokens:  make(map[string]*domain.VerificationToken),
		votes:   make(map[voteKey]domain.HelpfulVote),
	}
}

// CreateWithToken implements repository.ReviewStore.
func (s *Store) CreateWithToken(_ context.Context, review *domain.Review, token *domain.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reviews[review.ID]; ok {
		return apperrors.InvalidInput("review " + review.ID + " already exists")
	}
	if _, ok := s.tokens[token.TokenHash]; ok {
		return apperrors.InvalidInput("verification token already exists")
	}

	s.reviews[review.ID] = cloneReview(review)
	tok := *token
	s.tokens[token.TokenHash] = &tok
	return nil
}

// GetByID implements repository.ReviewStore.
func (s *Store) GetByID(_ context.Context, id string) (*domain.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reviews[id]
	if !ok {
		return nil, apperrors.NotFound("review", id)
	}
	return cloneReview(r), nil
}

// ConsumeToken implements repository.ReviewStore.
func (s *Store) ConsumeToken(_ context.Context, tokenHash string, at time.Time) (*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[tokenHash]
	if !ok {
		return nil, apperrors.InvalidToken()
	}
	if err := tok.Check(at); err != nil {
		return nil, err
	}

	r, ok := s.reviews[tok.ReviewID]
	if !ok {
		return nil, apperrors.InvalidToken()
	}
	next := cloneReview(r)
	if err := next.Apply(domain.EventVerify, at, nil); err != nil {
		return nil, err
	}

	consumedAt := at
	tok.ConsumedAt = &consumedAt
	s.reviews[r.ID] = next
	return cloneReview(next), nil
}

// Transition implements repository.ReviewStore.
func (s *Store) Transition(_ context.Context, id string, from domain.ReviewStatus, event domain.Event, at time.Time, notes *string) (*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reviews[id]
	if !ok {
		return nil, apperrors.NotFound("review", id)
	}
	if r.Status != from {
		return nil, apperrors.InvalidState(string(r.Status), string(event))
	}

	next := cloneReview(r)
	if err := next.Apply(event, at, cloneString(notes)); err != nil {
		return nil, err
	}
	s.reviews[id] = next
	return cloneReview(next), nil
}

// ListApproved implements repository.ReviewStore.
func (s *Store) ListApproved(_ context.Context, item domain.ItemRef, filter domain.ListFilter) ([]domain.Review, int, error) {
	s.mu.RLock()
	matched := make([]*domain.Review, 0)
	for _, r := range s.reviews {
		if r.Status == domain.StatusApproved && r.Item() == item && filter.Matches(r.Rating) {
			matched = append(matched, r)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return filter.Sort.Less(matched[i], matched[j])
	})

	page := pagination.Params{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	start, end := page.Window(len(matched))

	out := make([]domain.Review, 0, end-start)
	for _, r := range matched[start:end] {
		out = append(out, *cloneReview(r))
	}
	s.mu.RUnlock()

	return out, len(matched), nil
}

// ApprovedDistribution implements repository.ReviewStore.
func (s *Store) ApprovedDistribution(_ context.Context, item domain.ItemRef) (map[int]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[int]int)
	for _, r := range s.reviews {
		if r.Status == domain.StatusApproved && r.Item() == item {
			counts[r.Rating]++
		}
	}
	return counts, nil
}

// ListByStatus implements repository.ReviewStore. Reviews are ordered by the
// time they entered status, then by creation.
func (s *Store) ListByStatus(_ context.Context, status domain.ReviewStatus) ([]domain.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Review, 0)
	for _, r := range s.reviews {
		if r.Status == status {
			out = append(out, *cloneReview(r))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := queuedAt(&out[i]), queuedAt(&out[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AddHelpfulVote implements repository.ReviewStore.
func (s *Store) AddHelpfulVote(_ context.Context, vote domain.HelpfulVote) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reviews[vote.ReviewID]
	if !ok || r.Status != domain.StatusApproved {
		return 0, apperrors.NotFound("review", vote.ReviewID)
	}

	k := voteKey{reviewID: vote.ReviewID, voterKey: vote.VoterKey}
	if _, dup := s.votes[k]; dup {
		return 0, apperrors.AlreadyVoted()
	}

	s.votes[k] = vote
	next := cloneReview(r)
	next.HelpfulCount++
	s.reviews[r.ID] = next
	return next.HelpfulCount, nil
}

// PurgeExpiredTokens implements repository.ReviewStore. Only tokens that were
// never consumed are removed.
func (s *Store) PurgeExpiredTokens(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, tok := range s.tokens {
		if !tok.Consumed() && tok.ExpiresAt.Before(cutoff) {
			delete(s.tokens, hash)
			n++
		}
	}
	return n, nil
}

// queuedAt is when a review entered its current status.
func queuedAt(r *domain.Review) time.Time {
	switch {
	case r.ModeratedAt != nil:
		return *r.ModeratedAt
	case r.VerifiedAt != nil:
		return *r.VerifiedAt
	default:
		return r.CreatedAt
	}
}

func cloneReview(r *domain.Review) *domain.Review {
	c := *r
	c.VerifiedAt = cloneTime(r.VerifiedAt)
	c.ModeratedAt = cloneTime(r.ModeratedAt)
	c.ModerationNotes = cloneString(r.ModerationNotes)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
