package domain

import (
	"time"

	apperrors "github.com/utafrali/StudioReviews/pkg/errors"
)

// ItemType identifies the kind of catalog item a review is about.
type ItemType string

// Item types.
const (
	ItemTypeStudio  ItemType = "studio"
	ItemTypeRetreat ItemType = "retreat"
)

// ValidItemTypes returns the set of reviewable item types.
func ValidItemTypes() []ItemType {
	return []ItemType{ItemTypeStudio, ItemTypeRetreat}
}

// IsValidItemType checks whether the given string is a reviewable item type.
func IsValidItemType(t string) bool {
	for _, it := range ValidItemTypes() {
		if string(it) == t {
			return true
		}
	}
	return false
}

// ItemRef addresses one catalog item.
type ItemRef struct {
	ID   string   `json:"item_id"`
	Type ItemType `json:"item_type"`
}

// Review is one user opinion about one catalog item.
type Review struct {
	ID              string       `json:"id"`
	ItemID          string       `json:"item_id"`
	ItemType        ItemType     `json:"item_type"`
	UserName        string       `json:"user_name"`
	UserEmail       string       `json:"user_email"`
	Rating          int          `json:"rating"`
	Title           string       `json:"title"`
	Content         string       `json:"content"`
	Status          ReviewStatus `json:"status"`
	HelpfulCount    int          `json:"helpful_count"`
	CreatedAt       time.Time    `json:"created_at"`
	VerifiedAt      *time.Time   `json:"verified_at,omitempty"`
	ModeratedAt     *time.Time   `json:"moderated_at,omitempty"`
	ModerationNotes *string      `json:"moderation_notes,omitempty"`
}

// Item returns the reference to the item this review is about.
func (r *Review) Item() ItemRef {
	return ItemRef{ID: r.ItemID, Type: r.ItemType}
}

// Apply moves the review through event, stamping the matching timestamp.
// Notes are recorded only by moderation events.
func (r *Review) Apply(event Event, at time.Time, notes *string) error {
	next, err := NextStatus(r.Status, event)
	if err != nil {
		return err
	}

	switch event {
	case EventVerify:
		r.VerifiedAt = &at
	case EventApprove, EventReject:
		r.ModeratedAt = &at
		r.ModerationNotes = notes
	}
	r.Status = next
	return nil
}

// PublicReview is the representation of an approved review served to readers.
// It never carries the submitter's email or the moderator's notes.
type PublicReview struct {
	ID           string     `json:"id"`
	ItemID       string     `json:"item_id"`
	ItemType     ItemType   `json:"item_type"`
	UserName     string     `json:"user_name"`
	ReviewerKey  string     `json:"reviewer_key"`
	Rating       int        `json:"rating"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	HelpfulCount int        `json:"helpful_count"`
	CreatedAt    time.Time  `json:"created_at"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
}

// Public projects r into its reader-facing form using reviewerKey as the
// identity marker.
func (r *Review) Public(reviewerKey string) PublicReview {
	return PublicReview{
		ID:           r.ID,
		ItemID:       r.ItemID,
		ItemType:     r.ItemType,
		UserName:     r.UserName,
		ReviewerKey:  reviewerKey,
		Rating:       r.Rating,
		Title:        r.Title,
		Content:      r.Content,
		HelpfulCount: r.HelpfulCount,
		CreatedAt:    r.CreatedAt,
		VerifiedAt:   r.VerifiedAt,
	}
}

// ReviewStats is the rating summary of an item's approved reviews.
type ReviewStats struct {
	AverageRating      float64     `json:"average_rating"`
	TotalReviews       int         `json:"total_reviews"`
	RatingDistribution map[int]int `json:"rating_distribution"`
}

// HelpfulVote records that one identity found one review useful.
type HelpfulVote struct {
	ReviewID  string    `json:"review_id"`
	VoterKey  string    `json:"voter_key"`
	CreatedAt time.Time `json:"created_at"`
}

// VerificationToken binds a hashed single-use secret to a review. The raw
// token is never stored.
type VerificationToken struct {
	TokenHash  string     `json:"-"`
	ReviewID   string     `json:"review_id"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// Consumed reports whether the token has already been used.
func (t *VerificationToken) Consumed() bool {
	return t.ConsumedAt != nil
}

// Expired reports whether the token is past its expiry at now.
func (t *VerificationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Check reports why the token can no longer verify, if it cannot.
// Consumption is reported ahead of expiry.
func (t *VerificationToken) Check(now time.Time) error {
	if t.Consumed() {
		return apperrors.TokenAlreadyUsed()
	}
	if t.Expired(now) {
		return apperrors.TokenExpired()
	}
	return nil
}
