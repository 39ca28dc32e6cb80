package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/StudioReviews/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, actor, trace_id and span_id. Mount it after RequestLogging
// and Tracing; mount it again after Auth to pick up the actor.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
