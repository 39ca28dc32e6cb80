package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/utafrali/StudioReviews/internal/ratelimit"
	pkgconfig "github.com/utafrali/StudioReviews/pkg/config"
	"github.com/utafrali/StudioReviews/pkg/database"
	"github.com/utafrali/StudioReviews/pkg/middleware"
	"github.com/utafrali/StudioReviews/pkg/tracing"
)

// ServiceName identifies this service in logs, metrics and traces.
const ServiceName = "review-service"

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Rate limit backends.
const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

// Notifiers.
const (
	NotifierLog        = "log"
	NotifierResend     = "resend"
	NotifierMailerSend = "mailersend"
	NotifierKafka      = "kafka"
)

const (
	envProduction     = "production"
	devIdentitySecret = "dev-identity-secret"
	devJWTSecret      = "dev-admin-jwt-secret"
	minSecretLen      = 32
)

// Config holds all configuration for the review service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"REVIEWS_HTTP_PORT" envDefault:"8080"`
	HTTPRPS            float64  `env:"HTTP_RPS" envDefault:"20"`
	HTTPBurst          int      `env:"HTTP_BURST" envDefault:"40"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	TrustedProxies     []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Storage
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"reviews"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"reviews_secret"`
	PostgresDB   string `env:"REVIEWS_DB_NAME" envDefault:"reviews"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Rate limiting
	RateLimitBackend string        `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
	SubmitRateLimit  int           `env:"SUBMIT_RATE_LIMIT" envDefault:"5"`
	SubmitRateWindow time.Duration `env:"SUBMIT_RATE_WINDOW" envDefault:"60s"`
	VoteRateLimit    int           `env:"VOTE_RATE_LIMIT" envDefault:"30"`
	VoteRateWindow   time.Duration `env:"VOTE_RATE_WINDOW" envDefault:"60s"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_KEY_PREFIX" envDefault:"reviews:ratelimit:"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Verification
	Notifier         string        `env:"NOTIFIER" envDefault:"log"`
	ResendAPIKey     string        `env:"RESEND_API_KEY"`
	MailerSendAPIKey string        `env:"MAILERSEND_API_KEY"`
	MailFromName     string        `env:"MAIL_FROM_NAME" envDefault:"Studio Reviews"`
	MailFromEmail    string        `env:"MAIL_FROM_EMAIL" envDefault:"no-reply@localhost"`
	VerifyURLBase    string        `env:"VERIFY_URL_BASE" envDefault:"http://localhost:8080/api/v1/reviews/verify"`
	TokenTTL         time.Duration `env:"TOKEN_TTL" envDefault:"48h"`

	// Secrets
	IdentityHashSecret string `env:"IDENTITY_HASH_SECRET"`
	AdminJWTSecret     string `env:"ADMIN_JWT_SECRET"`
	AdminJWTIssuer     string `env:"ADMIN_JWT_ISSUER"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELInsecure   bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load review config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field rules and fills development-only secrets.
// Every problem is reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if c.HTTPRPS <= 0 || c.HTTPBurst < 1 {
		errs = append(errs, errors.New("HTTP_RPS and HTTP_BURST must be positive"))
	}
	if _, err := middleware.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresHost == "" {
			errs = append(errs, errors.New("POSTGRES_HOST is required"))
		}
		if c.PostgresUser == "" {
			errs = append(errs, errors.New("POSTGRES_USER is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreMemory, StorePostgres, c.StoreBackend))
	}

	switch c.RateLimitBackend {
	case RateLimitMemory, RateLimitRedis:
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be %q or %q, got %q", RateLimitMemory, RateLimitRedis, c.RateLimitBackend))
	}
	if c.SubmitRateLimit < 1 || c.SubmitRateWindow <= 0 {
		errs = append(errs, errors.New("SUBMIT_RATE_LIMIT and SUBMIT_RATE_WINDOW must be positive"))
	}
	if c.VoteRateLimit < 1 || c.VoteRateWindow <= 0 {
		errs = append(errs, errors.New("VOTE_RATE_LIMIT and VOTE_RATE_WINDOW must be positive"))
	}

	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED"))
	}

	switch c.Notifier {
	case NotifierLog:
	case NotifierResend:
		if c.ResendAPIKey == "" {
			errs = append(errs, errors.New("RESEND_API_KEY is required for the resend notifier"))
		}
	case NotifierMailerSend:
		if c.MailerSendAPIKey == "" {
			errs = append(errs, errors.New("MAILERSEND_API_KEY is required for the mailersend notifier"))
		}
	case NotifierKafka:
		if !c.KafkaEnabled {
			errs = append(errs, errors.New("the kafka notifier requires KAFKA_ENABLED=true"))
		}
	default:
		errs = append(errs, fmt.Errorf("NOTIFIER must be one of log, resend, mailersend, kafka, got %q", c.Notifier))
	}
	if c.Notifier == NotifierResend || c.Notifier == NotifierMailerSend {
		if !strings.Contains(c.MailFromEmail, "@") {
			errs = append(errs, fmt.Errorf("MAIL_FROM_EMAIL %q is not an email address", c.MailFromEmail))
		}
	}
	if c.VerifyURLBase == "" {
		errs = append(errs, errors.New("VERIFY_URL_BASE is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL))
	}

	if c.IsProduction() {
		if len(c.IdentityHashSecret) < minSecretLen {
			errs = append(errs, fmt.Errorf("IDENTITY_HASH_SECRET must be at least %d characters in production", minSecretLen))
		}
		if len(c.AdminJWTSecret) < minSecretLen {
			errs = append(errs, fmt.Errorf("ADMIN_JWT_SECRET must be at least %d characters in production", minSecretLen))
		}
	} else {
		if c.IdentityHashSecret == "" {
			c.IdentityHashSecret = devIdentitySecret
		}
		if c.AdminJWTSecret == "" {
			c.AdminJWTSecret = devJWTSecret
		}
	}

	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, envProduction)
}

// PostgresConfig returns the connection settings for pkg/database.
func (c *Config) PostgresConfig() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// RedisConfig returns the connection settings for pkg/database.
func (c *Config) RedisConfig() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

// TracingConfig returns the OpenTelemetry settings for pkg/tracing.
func (c *Config) TracingConfig() tracing.Config {
	tc := tracing.DefaultConfig(ServiceName)
	tc.Environment = c.Environment
	tc.OTLPEndpoint = c.OTELEndpoint
	tc.Insecure = c.OTELInsecure
	tc.SampleRate = c.OTELSampleRate
	tc.Enabled = c.OTELEnabled
	return tc
}

// SubmitPolicy returns the per-identity submission limit.
func (c *Config) SubmitPolicy() ratelimit.Policy {
	return ratelimit.Policy{Limit: c.SubmitRateLimit, Window: c.SubmitRateWindow}
}

// VotePolicy returns the per-identity helpful vote limit.
func (c *Config) VotePolicy() ratelimit.Policy {
	return ratelimit.Policy{Limit: c.VoteRateLimit, Window: c.VoteRateWindow}
}

// TrustedProxyRanges returns TRUSTED_PROXIES parsed. Validate has already
// rejected malformed entries, so an error here yields an empty list.
func (c *Config) TrustedProxyRanges() middleware.TrustedProxies {
	trusted, err := middleware.ParseTrustedProxies(c.TrustedProxies)
	if err != nil {
		return nil
	}
	return trusted
}

// SlowQueryThreshold returns LOG_SLOW_QUERY_MS as a duration.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}
