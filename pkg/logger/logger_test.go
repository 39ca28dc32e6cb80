package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func sampledSpan(t *testing.T) trace.SpanContext {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
}

func TestNewWithWriter_TagsService(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("review-service", "info", &buf).Info("review submitted")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "review-service", lines[0]["service"])
	assert.Equal(t, "review submitted", lines[0]["msg"])
	assert.NotContains(t, lines[0], "source")
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	tests := []struct {
		level      string
		wantMsgs   []string
		wantSource bool
	}{
		{"debug", []string{"d", "i", "w", "e"}, true},
		{"info", []string{"i", "w", "e"}, false},
		{"WARN", []string{"w", "e"}, false},
		{"warning", []string{"w", "e"}, false},
		{"error", []string{"e"}, false},
		{"nonsense", []string{"i", "w", "e"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewWithWriter("review-service", tt.level, &buf)
			l.Debug("d")
			l.Info("i")
			l.Warn("w")
			l.Error("e")

			lines := decodeLines(t, &buf)
			got := make([]string, 0, len(lines))
			for _, line := range lines {
				got = append(got, line["msg"].(string))
			}
			assert.Equal(t, tt.wantMsgs, got)
			_, hasSource := lines[0]["source"]
			assert.Equal(t, tt.wantSource, hasSource)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel(" Debug "))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestWithContext_Fields(t *testing.T) {
	tests := []struct {
		name    string
		ctx     func(t *testing.T) context.Context
		want    map[string]string
		missing []string
	}{
		{
			name:    "empty context",
			ctx:     func(*testing.T) context.Context { return context.Background() },
			missing: []string{"correlation_id", "actor", "trace_id", "span_id"},
		},
		{
			name: "correlation only",
			ctx: func(*testing.T) context.Context {
				return WithCorrelationID(context.Background(), "corr-7")
			},
			want:    map[string]string{"correlation_id": "corr-7"},
			missing: []string{"actor", "trace_id"},
		},
		{
			name: "moderator with span",
			ctx: func(t *testing.T) context.Context {
				ctx := WithActor(context.Background(), "moderator-3")
				return trace.ContextWithSpanContext(ctx, sampledSpan(t))
			},
			want: map[string]string{
				"actor":    "moderator-3",
				"trace_id": "4bf92f3577b34da6a3ce929d0e0e4736",
				"span_id":  "00f067aa0ba902b7",
			},
			missing: []string{"correlation_id"},
		},
		{
			name: "invalid span context",
			ctx: func(*testing.T) context.Context {
				return trace.ContextWithSpanContext(context.Background(), trace.SpanContext{})
			},
			missing: []string{"trace_id", "span_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			base := NewWithWriter("review-service", "info", &buf)

			WithContext(tt.ctx(t), base).Info("verified")

			lines := decodeLines(t, &buf)
			require.Len(t, lines, 1)
			for k, v := range tt.want {
				assert.Equal(t, v, lines[0][k], k)
			}
			for _, k := range tt.missing {
				assert.NotContains(t, lines[0], k)
			}
		})
	}
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CorrelationIDFromContext(ctx))
	assert.Empty(t, ActorFromContext(ctx))

	ctx = WithCorrelationID(ctx, "corr-1")
	ctx = WithActor(ctx, "admin-1")
	assert.Equal(t, "corr-1", CorrelationIDFromContext(ctx))
	assert.Equal(t, "admin-1", ActorFromContext(ctx))
}

func TestFromContext(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	var buf bytes.Buffer
	l := NewWithWriter("review-service", "info", &buf)
	ctx := NewContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}
