// Package stats summarizes the ratings of an item's approved reviews.
package stats

import (
	"github.com/utafrali/StudioReviews/internal/domain"
)

// MinRating and MaxRating bound the star scale.
const (
	MinRating = 1
	MaxRating = 5
)

// Compute summarizes reviews. Callers pass only approved reviews; ratings
// outside the star scale are ignored. The average is unrounded and 0 when
// there is nothing to average.
func Compute(reviews []domain.Review) domain.ReviewStats {
	dist := emptyDistribution()
	for i := range reviews {
		if r := reviews[i].Rating; r >= MinRating && r <= MaxRating {
			dist[r]++
		}
	}
	return FromDistribution(dist)
}

// FromDistribution builds stats from per-star counts, as returned by an
// aggregate query. Missing stars are reported as zero.
func FromDistribution(counts map[int]int) domain.ReviewStats {
	dist := emptyDistribution()
	var total, sum int
	for star := MinRating; star <= MaxRating; star++ {
		n := counts[star]
		dist[star] = n
		total += n
		sum += star * n
	}

	s := domain.ReviewStats{TotalReviews: total, RatingDistribution: dist}
	if total > 0 {
		s.AverageRating = float64(sum) / float64(total)
	}
	return s
}

func emptyDistribution() map[int]int {
	d := make(map[int]int, MaxRating)
	for star := MinRating; star <= MaxRating; star++ {
		d[star] = 0
	}
	return d
}
