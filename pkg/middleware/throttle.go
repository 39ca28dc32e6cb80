package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/utafrali/StudioReviews/pkg/errors"
	"github.com/utafrali/StudioReviews/pkg/httputil"
)

// visitor tracks a token bucket per client IP.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle is a coarse per-IP token bucket placed in front of the whole API.
// It guards against floods; the per-identity submission quota is enforced by
// the review service itself.
type Throttle struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	nowFunc  func() time.Time
	logger   *slog.Logger
}

// NewThrottle creates a Throttle allowing rps requests per second with the
// given burst. Visitors idle for longer than ttl are evicted by Run.
func NewThrottle(rps float64, burst int, ttl time.Duration, logger *slog.Logger) *Throttle {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &Throttle{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		nowFunc:  time.Now,
		logger:   logger,
	}
}

// Handler returns the throttling middleware.
func (t *Throttle) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if !t.limiter(ip).AllowN(t.nowFunc(), 1) {
			t.logger.WarnContext(r.Context(), "request throttled",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			httputil.WriteError(w, r, apperrors.RateLimited(), t.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run evicts idle visitors every ttl until ctx is cancelled.
func (t *Throttle) Run(ctx context.Context) {
	ticker := time.NewTicker(t.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.cleanup()
		}
	}
}

func (t *Throttle) limiter(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFunc()
	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (t *Throttle) cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFunc()
	for ip, v := range t.visitors {
		if now.Sub(v.lastSeen) > t.ttl {
			delete(t.visitors, ip)
		}
	}
}

func (t *Throttle) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.visitors)
}
