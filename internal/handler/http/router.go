package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/StudioReviews/internal/service"
	"github.com/utafrali/StudioReviews/pkg/health"
	"github.com/utafrali/StudioReviews/pkg/middleware"
)

const serviceName = "review-service"

// RouterConfig carries the transport settings of NewRouter.
type RouterConfig struct {
	CORSAllowedOrigins []string
	// Throttle is optional; nil disables the per-IP request throttle.
	Throttle *middleware.Throttle
	// AdminAuth validates bearer tokens on the moderation routes.
	AdminAuth middleware.TokenValidator
	// TrustedProxies may set the client address through forwarding headers.
	// Empty means the direct peer is the client.
	TrustedProxies middleware.TrustedProxies
}

// NewRouter creates a chi router with all review service routes registered.
func NewRouter(
	reviewService *service.ReviewService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP(cfg.TrustedProxies))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	reviewHandler := NewReviewHandler(reviewService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(CORS(cfg.CORSAllowedOrigins))
		if cfg.Throttle != nil {
			r.Use(cfg.Throttle.Handler)
		}
		r.Use(ContentTypeJSON)

		// Public review endpoints.
		r.Post("/{itemTypes:studios|retreats}/{itemId}/reviews", reviewHandler.SubmitReview)
		r.Get("/{itemTypes:studios|retreats}/{itemId}/reviews", reviewHandler.ListReviews)

		r.Get("/reviews/verify", reviewHandler.VerifyReview)
		r.Post("/reviews/verify", reviewHandler.VerifyReview)
		r.Post("/reviews/{id}/helpful", reviewHandler.MarkHelpful)

		// Moderation endpoints.
		r.Route("/admin/reviews", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.AdminAuth, logger))
			r.Use(middleware.RequireRole(logger, middleware.RoleAdmin))
			r.Use(middleware.RequestLogger(logger))

			r.Get("/pending", reviewHandler.ListPending)
			r.Get("/{id}", reviewHandler.GetReview)
			r.Post("/{id}/moderate", reviewHandler.ModerateReview)
		})
	})

	return r
}
