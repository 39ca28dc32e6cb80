// Package metrics holds the Prometheus collectors of the review pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verification outcomes.
const (
	OutcomeVerified     = "verified"
	OutcomeInvalid      = "invalid"
	OutcomeExpired      = "expired"
	OutcomeAlreadyUsed  = "already_used"
	OutcomeInvalidState = "invalid_state"
	OutcomeError        = "error"
)

// Rate-limited operations.
const (
	OperationSubmit = "submit"
	OperationVote   = "vote"
)

var (
	// ReviewsSubmitted counts accepted submissions per item type.
	ReviewsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_submitted_total",
			Help: "Total number of accepted review submissions",
		},
		[]string{"item_type"},
	)

	// RateLimited counts requests rejected by the sliding-window limiter.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"operation"},
	)

	// ValidationFailures counts rejected submissions per failing field.
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_validation_failures_total",
			Help: "Total number of submission validation failures by field",
		},
		[]string{"field"},
	)

	// Verifications counts verification attempts by outcome.
	Verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_verifications_total",
			Help: "Total number of verification attempts by outcome",
		},
		[]string{"outcome"},
	)

	// ModerationDecisions counts moderation transitions by resulting status.
	ModerationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_moderation_decisions_total",
			Help: "Total number of moderation decisions",
		},
		[]string{"decision"},
	)

	// HelpfulVotes counts helpful votes that were recorded.
	HelpfulVotes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviews_helpful_votes_total",
			Help: "Total number of recorded helpful votes",
		},
	)

	// NotificationFailures counts verification notifications that could not be sent.
	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_notification_failures_total",
			Help: "Total number of failed verification notifications",
		},
		[]string{"notifier"},
	)

	// NotifierBreakerState reports the circuit breaker state per notifier
	// (0 closed, 1 half-open, 2 open).
	NotifierBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reviews_notifier_circuit_breaker_state",
			Help: "Circuit breaker state of outbound notifiers (0=closed, 1=half-open, 2=open)",
		},
		[]string{"notifier"},
	)

	// TokensPurged counts expired verification tokens removed by maintenance.
	TokensPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviews_tokens_purged_total",
			Help: "Total number of expired verification tokens purged",
		},
	)
)
