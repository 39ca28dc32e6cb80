package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const inboundTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

// recordSpans installs an in-memory exporter as the global tracer provider
// for the duration of the test.
func recordSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	return exporter
}

// reviewRoutes mimics the shape of the review API.
func reviewRoutes(status int) http.Handler {
	r := chi.NewRouter()
	r.Use(Tracing("review-service"))
	write := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(status) }
	r.Get("/api/v1/studios/{itemId}/reviews", write)
	r.Get("/api/v1/reviews/verify", write)
	r.Post("/api/v1/reviews/{id}/helpful", write)
	return r
}

func onlySpan(t *testing.T, exporter *tracetest.InMemoryExporter) tracetest.SpanStub {
	t.Helper()
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	return spans[0]
}

func attr(span tracetest.SpanStub, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_NamesSpanAfterRoute(t *testing.T) {
	exporter := recordSpans(t)

	rec := httptest.NewRecorder()
	reviewRoutes(http.StatusOK).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/studios/s-42/reviews", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	span := onlySpan(t, exporter)
	assert.Equal(t, "GET /api/v1/studios/{itemId}/reviews", span.Name)

	route, ok := attr(span, "http.route")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/studios/{itemId}/reviews", route.AsString())
}

func TestTracing_KeepsVerificationTokenOutOfSpan(t *testing.T) {
	exporter := recordSpans(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reviews/verify?token=raw-secret-token", nil)
	reviewRoutes(http.StatusOK).ServeHTTP(httptest.NewRecorder(), req)

	span := onlySpan(t, exporter)
	assert.NotContains(t, span.Name, "raw-secret-token")
	for _, kv := range span.Attributes {
		assert.NotContains(t, kv.Value.Emit(), "raw-secret-token", "attribute %s", kv.Key)
	}
}

func TestTracing_RecordsStatusAndClientIP(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantError bool
	}{
		{"conflict", http.StatusConflict, false},
		{"rate limited", http.StatusTooManyRequests, false},
		{"storage unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := recordSpans(t)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews/r-1/helpful", nil)
			req.RemoteAddr = "203.0.113.9:51000"
			reviewRoutes(tt.status).ServeHTTP(httptest.NewRecorder(), req)

			span := onlySpan(t, exporter)
			status, ok := attr(span, "http.response.status_code")
			require.True(t, ok)
			assert.Equal(t, int64(tt.status), status.AsInt64())

			ip, ok := attr(span, "http.client_ip")
			require.True(t, ok)
			assert.Equal(t, "203.0.113.9", ip.AsString())

			if tt.wantError {
				assert.Equal(t, codes.Error, span.Status.Code)
			} else {
				assert.NotEqual(t, codes.Error, span.Status.Code)
			}
		})
	}
}

func TestTracing_ContinuesInboundTrace(t *testing.T) {
	exporter := recordSpans(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/studios/s-1/reviews", nil)
	req.Header.Set("traceparent", "00-"+inboundTraceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	reviewRoutes(http.StatusOK).ServeHTTP(rec, req)

	span := onlySpan(t, exporter)
	assert.Equal(t, inboundTraceID, span.SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", span.Parent.SpanID().String())
	assert.Contains(t, rec.Header().Get("traceparent"), inboundTraceID)
}

func TestTracing_StartsNewTraceWithoutParent(t *testing.T) {
	exporter := recordSpans(t)

	rec := httptest.NewRecorder()
	reviewRoutes(http.StatusOK).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/studios/s-1/reviews", nil))

	span := onlySpan(t, exporter)
	assert.False(t, span.Parent.IsValid())
	assert.NotEmpty(t, rec.Header().Get("traceparent"))
}
