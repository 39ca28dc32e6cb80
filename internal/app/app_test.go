package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/StudioReviews/internal/config"
	"github.com/utafrali/StudioReviews/internal/event"
	"github.com/utafrali/StudioReviews/internal/notify"
	"github.com/utafrali/StudioReviews/pkg/health"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func readiness(t *testing.T, a *App) (int, health.Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	a.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var resp health.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestNewApp_InMemoryBackends(t *testing.T) {
	a, err := NewApp(testConfig(t), testLogger())
	require.NoError(t, err)
	t.Cleanup(a.closeResources)

	assert.Nil(t, a.pool)
	assert.Nil(t, a.rdb)
	assert.Nil(t, a.producer)
	require.NotNil(t, a.memLimiter)
	assert.Equal(t, ":8080", a.httpServer.Addr)

	code, resp := readiness(t, a)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, health.StatusUp, resp.Status)
}

func TestNewApp_RedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.RateLimitBackend = config.RateLimitRedis
	cfg.RedisHost = mr.Host()
	cfg.RedisPort = port

	a, err := NewApp(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(a.closeResources)

	require.NotNil(t, a.rdb)
	assert.Nil(t, a.memLimiter)

	code, resp := readiness(t, a)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, resp.Checks, "redis")

	mr.Close()
	code, _ = readiness(t, a)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimitBackend = config.RateLimitRedis
	cfg.RedisHost = "127.0.0.1"
	cfg.RedisPort = 1

	_, err := NewApp(cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestBuildNotifier(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		wantName string
		breaker  bool
	}{
		{"log", func(*config.Config) {}, "log", false},
		{"resend", func(c *config.Config) {
			c.Notifier = config.NotifierResend
			c.ResendAPIKey = "re_test"
		}, "resend", true},
		{"mailersend", func(c *config.Config) {
			c.Notifier = config.NotifierMailerSend
			c.MailerSendAPIKey = "mlsn.test"
		}, "mailersend", true},
		{"kafka", func(c *config.Config) { c.Notifier = config.NotifierKafka }, "kafka", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			hh := health.NewHandler()

			n, err := buildNotifier(cfg, event.NewProducer(nil, testLogger()), hh, testLogger())
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, n.Name())

			_, isBreaker := n.(*notify.Breaker)
			assert.Equal(t, tt.breaker, isBreaker)
		})
	}
}

func TestBuildNotifier_BadVerifyURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.VerifyURLBase = "/relative/only"

	_, err := buildNotifier(cfg, nil, health.NewHandler(), testLogger())
	require.Error(t, err)
}

func TestLimiterIdle_LongestWindow(t *testing.T) {
	cfg := testConfig(t)
	cfg.SubmitRateWindow = time.Minute
	cfg.VoteRateWindow = 5 * time.Minute

	a := &App{cfg: cfg}
	assert.Equal(t, 5*time.Minute, a.limiterIdle())
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTPPort = freePort(t)

	a, err := NewApp(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(cfg.HTTPPort) + "/health/live")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPurgeTokens_UsesService(t *testing.T) {
	a, err := NewApp(testConfig(t), testLogger())
	require.NoError(t, err)
	t.Cleanup(a.closeResources)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// Returns once ctx expires; with an empty store the ticks are no-ops.
	a.purgeTokens(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func freePort(t *testing.T) int {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return p
}
