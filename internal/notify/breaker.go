package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/StudioReviews/internal/metrics"
)

// BreakerConfig holds configuration for the notifier circuit breaker.
type BreakerConfig struct {
	// MaxRequests is the number of trial sends allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state for clearing counts.
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration

	// FailureRatio trips the breaker once reached, after MinRequests sends.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns defaults suited to a transactional mail API.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// stateToFloat maps gobreaker states to gauge values.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Breaker wraps a Notifier with circuit breaker protection so a failing
// mail provider is not hammered on every submission. It never retries.
type Breaker struct {
	next    Notifier
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreaker wraps next with a circuit breaker named after it.
func NewBreaker(next Notifier, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	name := next.Name()

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("notifier circuit breaker state change",
				slog.String("notifier", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.NotifierBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}

	metrics.NotifierBreakerState.WithLabelValues(name).Set(0)

	return &Breaker{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Name returns the wrapped notifier's name.
func (b *Breaker) Name() string { return b.next.Name() }

// Send forwards to the wrapped notifier unless the breaker is open.
func (b *Breaker) Send(ctx context.Context, email, rawToken, reviewID string) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Send(ctx, email, rawToken, reviewID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %w", b.Name(), ErrUnavailable, err)
	}
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}

// Check reports the breaker as unhealthy while it is open. It suits a
// non-critical readiness check.
func (b *Breaker) Check(context.Context) error {
	if b.State() == gobreaker.StateOpen {
		return fmt.Errorf("%s: %w", b.Name(), ErrUnavailable)
	}
	return nil
}
