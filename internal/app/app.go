package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/StudioReviews/internal/config"
	"github.com/utafrali/StudioReviews/internal/event"
	handler "github.com/utafrali/StudioReviews/internal/handler/http"
	"github.com/utafrali/StudioReviews/internal/notify"
	"github.com/utafrali/StudioReviews/internal/ratelimit"
	"github.com/utafrali/StudioReviews/internal/repository"
	"github.com/utafrali/StudioReviews/internal/repository/memory"
	"github.com/utafrali/StudioReviews/internal/repository/postgres"
	"github.com/utafrali/StudioReviews/internal/service"
	"github.com/utafrali/StudioReviews/internal/token"
	"github.com/utafrali/StudioReviews/migrations"
	"github.com/utafrali/StudioReviews/pkg/database"
	"github.com/utafrali/StudioReviews/pkg/health"
	pkgkafka "github.com/utafrali/StudioReviews/pkg/kafka"
	"github.com/utafrali/StudioReviews/pkg/middleware"
	"github.com/utafrali/StudioReviews/pkg/tracing"
)

const (
	// Unused tokens are kept for a day past expiry so late clicks still read
	// as "expired". Consumed tokens are never purged.
	tokenPurgeInterval = time.Hour
	tokenPurgeGrace    = 24 * time.Hour

	limiterSweepInterval = time.Minute
	throttleVisitorTTL   = 3 * time.Minute
)

// App wires together all dependencies and runs the review service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool           *pgxpool.Pool
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	memLimiter     *ratelimit.MemoryLimiter
	throttle       *middleware.Throttle
	reviewService  *service.ReviewService
	tracerShutdown func(context.Context) error
	httpServer     *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	shutdown, err := tracing.InitTracer(ctx, cfg.TracingConfig())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = shutdown

	healthHandler := health.NewHandler().WithService(config.ServiceName)

	store, err := a.initStore(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	limiter, err := a.initLimiter(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	// Kafka is optional; a disabled producer turns every publish into a no-op.
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	eventProducer := event.NewProducer(a.producer, logger)

	notifier, err := buildNotifier(cfg, eventProducer, healthHandler, logger)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	logger.Info("verification notifier selected", slog.String("notifier", notifier.Name()))

	// Build the dependency graph.
	a.reviewService = service.NewReviewService(
		store,
		limiter,
		token.NewIssuer(cfg.TokenTTL),
		token.NewReviewerKeyer([]byte(cfg.IdentityHashSecret)),
		notifier,
		eventProducer,
		logger,
		service.WithSubmitPolicy(cfg.SubmitPolicy()),
		service.WithVotePolicy(cfg.VotePolicy()),
	)

	a.throttle = middleware.NewThrottle(cfg.HTTPRPS, cfg.HTTPBurst, throttleVisitorTTL, logger)

	// HTTP router.
	router := handler.NewRouter(a.reviewService, healthHandler, handler.RouterConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Throttle:           a.throttle,
		AdminAuth:          middleware.NewJWTValidator([]byte(cfg.AdminJWTSecret), cfg.AdminJWTIssuer),
		TrustedProxies:     cfg.TrustedProxyRanges(),
	}, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

func (a *App) initStore(ctx context.Context, healthHandler *health.Handler) (repository.ReviewStore, error) {
	if a.cfg.StoreBackend != config.StorePostgres {
		a.logger.Warn("using in-memory review store; reviews are lost on restart")
		return memory.NewStore(), nil
	}

	pgCfg := a.cfg.PostgresConfig()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", pgCfg.Host),
		slog.Int("port", pgCfg.Port),
		slog.String("database", pgCfg.DBName),
	)

	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, config.ServiceName); err != nil {
		a.logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
	}
	database.SetSlowQueryLogging(a.cfg.SlowQueryThreshold(), a.logger)

	healthHandler.RegisterCritical("postgres", pool.Ping)
	return postgres.NewReviewRepository(pool), nil
}

func (a *App) initLimiter(ctx context.Context, healthHandler *health.Handler) (ratelimit.Limiter, error) {
	if a.cfg.RateLimitBackend != config.RateLimitRedis {
		a.memLimiter = ratelimit.NewMemoryLimiter()
		return a.memLimiter, nil
	}

	rdb, err := database.NewRedisClient(ctx, a.cfg.RedisConfig())
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.rdb = rdb
	a.logger.Info("connected to Redis", slog.String("addr", a.cfg.RedisConfig().Addr()))

	// Submissions fail closed without the limiter, so Redis is critical.
	healthHandler.RegisterCritical("redis", database.RedisPinger(rdb))
	return ratelimit.NewRedisLimiter(rdb, a.cfg.RedisPrefix), nil
}

// buildNotifier selects the verification channel. Email providers sit behind
// a circuit breaker whose state feeds a non-critical readiness check.
func buildNotifier(cfg *config.Config, producer *event.Producer, healthHandler *health.Handler, logger *slog.Logger) (notify.Notifier, error) {
	links, err := notify.NewLinkBuilder(cfg.VerifyURLBase)
	if err != nil {
		return nil, err
	}
	from := notify.Sender{Name: cfg.MailFromName, Email: cfg.MailFromEmail}

	var email notify.Notifier
	switch cfg.Notifier {
	case config.NotifierResend:
		email = notify.NewResendNotifier(cfg.ResendAPIKey, from, links, cfg.TokenTTL, logger)
	case config.NotifierMailerSend:
		email = notify.NewMailerSendNotifier(cfg.MailerSendAPIKey, from, links, cfg.TokenTTL, logger)
	case config.NotifierKafka:
		return notify.NewKafkaNotifier(producer, links), nil
	default:
		return notify.NewLogNotifier(logger), nil
	}

	breaker := notify.NewBreaker(email, notify.DefaultBreakerConfig(), logger)
	healthHandler.RegisterNonCritical("notifier", breaker.Check)
	return breaker, nil
}

// Run starts the HTTP server and the maintenance loops, and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		stopBackground()
		wg.Wait()
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		a.throttle.Run(bgCtx)
	}()
	go func() {
		defer wg.Done()
		a.purgeTokens(bgCtx, tokenPurgeInterval)
	}()
	if a.memLimiter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.memLimiter.Run(bgCtx, limiterSweepInterval, a.limiterIdle())
		}()
	}

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.closeResources()
		return err
	}

	return a.Shutdown()
}

// purgeTokens deletes long-expired verification tokens every interval.
func (a *App) purgeTokens(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.reviewService.PurgeExpiredTokens(ctx, tokenPurgeGrace); err != nil {
				a.logger.Error("token purge failed", slog.String("error", err.Error()))
			}
		}
	}
}

// limiterIdle is how long an identity may stay quiet before the in-memory
// limiter forgets it: the longest configured window.
func (a *App) limiterIdle() time.Duration {
	return max(a.cfg.SubmitRateWindow, a.cfg.VoteRateWindow)
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	a.closeResources()

	a.logger.Info("application shutdown complete")
	return nil
}

// closeResources releases every backend opened so far.
func (a *App) closeResources() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}
}
