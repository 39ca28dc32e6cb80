package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/utafrali/StudioReviews/internal/domain"
	"github.com/utafrali/StudioReviews/pkg/middleware"
)

// FingerprintHeader optionally carries a stable client fingerprint used to
// tell helpful votes from readers behind a shared address apart.
const FingerprintHeader = "X-Client-Fingerprint"

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// CORS allows the storefront origins to call the public review API.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.CorrelationHeader, FingerprintHeader},
		ExposedHeaders: []string{middleware.CorrelationHeader},
		MaxAge:         3600,
	})
}

// identityFromRequest collects what is known about an anonymous caller.
func identityFromRequest(r *http.Request) domain.Identity {
	return domain.Identity{
		IP:          middleware.ClientIP(r),
		Fingerprint: strings.TrimSpace(r.Header.Get(FingerprintHeader)),
	}
}
