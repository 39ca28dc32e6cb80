package domain

import "fmt"

// SortOrder selects the ordering of a public review listing.
type SortOrder string

// Sort orders. SortMostHelpful is the default.
const (
	SortMostHelpful   SortOrder = "most_helpful"
	SortNewest        SortOrder = "newest"
	SortHighestRating SortOrder = "highest_rating"
	SortLowestRating  SortOrder = "lowest_rating"
)

// ParseSortOrder maps a query value onto a SortOrder; empty means the default.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "":
		return SortMostHelpful, nil
	case SortMostHelpful, SortNewest, SortHighestRating, SortLowestRating:
		return SortOrder(s), nil
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// ListFilter narrows and orders an item's approved reviews.
type ListFilter struct {
	Rating    *int
	MinRating *int
	MaxRating *int
	Sort      SortOrder
	Limit     int
	Offset    int
}

// Matches reports whether a review's rating passes the filter.
func (f ListFilter) Matches(rating int) bool {
	if f.Rating != nil && rating != *f.Rating {
		return false
	}
	if f.MinRating != nil && rating < *f.MinRating {
		return false
	}
	if f.MaxRating != nil && rating > *f.MaxRating {
		return false
	}
	return true
}

// Less orders a before b under s. Ties fall back to newest first, then id.
func (s SortOrder) Less(a, b *Review) bool {
	switch s {
	case SortNewest:
	case SortHighestRating:
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
	case SortLowestRating:
		if a.Rating != b.Rating {
			return a.Rating < b.Rating
		}
	default:
		if a.HelpfulCount != b.HelpfulCount {
			return a.HelpfulCount > b.HelpfulCount
		}
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}
