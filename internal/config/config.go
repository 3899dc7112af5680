package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is built once at start-up and passed by value to every component.
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	ReadHeaderTimeout            time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout              time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`
	ShutdownHTTPDrainTimeout     time.Duration `env:"SHUTDOWN_HTTP_DRAIN_TIMEOUT" envDefault:"10s"`
	ShutdownObservabilityTimeout time.Duration `env:"SHUTDOWN_OBSERVABILITY_TIMEOUT" envDefault:"5s"`
	OutboundTimeout              time.Duration `env:"OUTBOUND_TIMEOUT" envDefault:"10s"`

	GitHubClientID     string   `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string   `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURIs []string `env:"REDIRECT_URI" envSeparator:","`
	GitHubAuthURL      string   `env:"GITHUB_AUTH_URL" envDefault:"https://github.com/login/oauth/authorize"`
	GitHubTokenURL     string   `env:"GITHUB_TOKEN_URL" envDefault:"https://github.com/login/oauth/access_token"`
	GitHubAPIURL       string   `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`

	GiteeClientID     string   `env:"GITEE_CLIENT_ID"`
	GiteeClientSecret string   `env:"GITEE_CLIENT_SECRET"`
	GiteeRedirectURIs []string `env:"GITEE_REDIRECT_URI" envSeparator:","`
	GiteeBaseURL      string   `env:"GITEE_BASE_URL" envDefault:"https://gitee.com"`

	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	OAuthStateTTL time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`

	JWTAlgorithm  string        `env:"JWT_ALGORITHM" envDefault:"HS256"`
	JWTSecret     string        `env:"JWT_SECRET"`
	JWTPrivateKey string        `env:"JWT_PRIVATE_KEY"`
	JWTPublicKey  string        `env:"JWT_PUBLIC_KEY"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"kaoqin-system"`
	JWTTTL        time.Duration `env:"JWT_TTL" envDefault:"5m"`

	N8NEndpoint        string `env:"N8N_API_ENDPOINT"`
	N8NConfirmEndpoint string `env:"N8N_API_CONFIRM_ENDPOINT"`

	AMapKey          string        `env:"AMAP_KEY"`
	AMapSecurityCode string        `env:"AMAP_SECURITY_CODE"`
	AMapBaseURL      string        `env:"AMAP_BASE_URL" envDefault:"https://restapi.amap.com"`
	GeocodeCacheTTL  time.Duration `env:"GEOCODE_CACHE_TTL" envDefault:"24h"`
	GeocodeMissTTL   time.Duration `env:"GEOCODE_MISS_TTL" envDefault:"2m"`

	StoreBackend       string        `env:"STORE_BACKEND" envDefault:"redis"`
	RedisAddr          string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisDB            int           `env:"REDIS_DB" envDefault:"0"`
	DatabaseURL        string        `env:"DATABASE_URL"`
	StoreSweepInterval time.Duration `env:"STORE_SWEEP_INTERVAL" envDefault:"10m"`

	RateLimitAuthMax        int           `env:"RATE_LIMIT_AUTH_MAX" envDefault:"10"`
	RateLimitAuthWindow     time.Duration `env:"RATE_LIMIT_AUTH_WINDOW" envDefault:"15m"`
	RateLimitCheckinMax     int           `env:"RATE_LIMIT_CHECKIN_MAX" envDefault:"5"`
	RateLimitCheckinWindow  time.Duration `env:"RATE_LIMIT_CHECKIN_WINDOW" envDefault:"1m"`
	RateLimitHealthMax      int           `env:"RATE_LIMIT_HEALTH_MAX" envDefault:"120"`
	RateLimitHealthWindow   time.Duration `env:"RATE_LIMIT_HEALTH_WINDOW" envDefault:"1m"`
	RateLimitDefaultMax     int           `env:"RATE_LIMIT_DEFAULT_MAX" envDefault:"60"`
	RateLimitDefaultWindow  time.Duration `env:"RATE_LIMIT_DEFAULT_WINDOW" envDefault:"1m"`
	RateLimitFailClosed     bool          `env:"RATE_LIMIT_FAIL_CLOSED" envDefault:"false"`
	CORSOrigins             []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	TrustForwardedClientIPs bool          `env:"TRUST_FORWARDED_CLIENT_IPS" envDefault:"true"`

	OTELServiceName           string        `env:"OTEL_SERVICE_NAME" envDefault:"checkin-gateway"`
	OTELEnvironment           string        `env:"OTEL_ENVIRONMENT" envDefault:"development"`
	OTELExporterOTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELExporterOTLPInsecure  bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELMetricsEnabled        bool          `env:"OTEL_METRICS_ENABLED" envDefault:"false"`
	OTELTracingEnabled        bool          `env:"OTEL_TRACING_ENABLED" envDefault:"false"`
	OTELLogsEnabled           bool          `env:"OTEL_LOGS_ENABLED" envDefault:"false"`
	OTELMetricsExportInterval time.Duration `env:"OTEL_METRICS_EXPORT_INTERVAL" envDefault:"15s"`
	OTELTraceSamplingRatio    float64       `env:"OTEL_TRACE_SAMPLING_RATIO" envDefault:"1.0"`
	OTELHTTPEnabled           bool          `env:"OTEL_HTTP_ENABLED" envDefault:"true"`
}

// ErrParseEnv wraps failures to read typed values from the environment.
var ErrParseEnv = errors.New("parse env")

// ValidationError lists every configuration problem found at start-up.
type ValidationError struct {
	Problems []string
	// Classes names the groups the problems fall into, for example
	// "missing_vars" or "jwt".
	Classes []string
}

func (e *ValidationError) Error() string {
	return "validate config: " + strings.Join(e.Problems, "; ")
}

// Load parses the environment. A *ValidationError is returned together with
// the parsed config so callers may keep serving /api/health in degraded mode.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		err = fmt.Errorf("%w: %w", ErrParseEnv, err)
		recordConfigLoad(context.Background(), "", err)
		return Config{}, err
	}
	cfg.normalize()

	if problems := cfg.Validate(); len(problems) > 0 {
		err := &ValidationError{Problems: problems, Classes: cfg.problemClasses()}
		recordConfigLoad(context.Background(), cfg.Env, err)
		return cfg, err
	}
	recordConfigLoad(context.Background(), cfg.Env, nil)
	return cfg, nil
}

// Problems extracts the validation problem list from a Load error.
func Problems(err error) []string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Problems
	}
	if err != nil {
		return []string{err.Error()}
	}
	return nil
}

func (c *Config) normalize() {
	c.JWTAlgorithm = strings.ToUpper(strings.TrimSpace(c.JWTAlgorithm))
	if c.JWTAlgorithm == "" {
		c.JWTAlgorithm = "HS256"
	}
	c.JWTPrivateKey = normalizePEM(c.JWTPrivateKey)
	c.JWTPublicKey = normalizePEM(c.JWTPublicKey)
	c.GitHubRedirectURIs = trimList(c.GitHubRedirectURIs)
	c.GiteeRedirectURIs = trimList(c.GiteeRedirectURIs)
	c.CORSOrigins = trimList(c.CORSOrigins)
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
}

// normalizePEM accepts keys stored on one line with literal \n escapes.
func normalizePEM(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	return strings.ReplaceAll(v, `\n`, "\n")
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
