package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/sandeepkv93/checkin-gateway/internal/app"
	"github.com/sandeepkv93/checkin-gateway/internal/config"
	"github.com/sandeepkv93/checkin-gateway/internal/geocode"
	"github.com/sandeepkv93/checkin-gateway/internal/health"
	"github.com/sandeepkv93/checkin-gateway/internal/http/handler"
	"github.com/sandeepkv93/checkin-gateway/internal/http/middleware"
	"github.com/sandeepkv93/checkin-gateway/internal/http/router"
	"github.com/sandeepkv93/checkin-gateway/internal/observability"
	"github.com/sandeepkv93/checkin-gateway/internal/repository"
	"github.com/sandeepkv93/checkin-gateway/internal/security"
	"github.com/sandeepkv93/checkin-gateway/internal/service"
	"github.com/sandeepkv93/checkin-gateway/internal/store"
)

func provideStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.KV, func(), error) {
	kv, closeFn, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := closeFn(); err != nil {
			logger.Warn("close store failed", "backend", kv.Backend(), "error", err)
		}
	}
	return kv, cleanup, nil
}

func provideObservability(ctx context.Context, cfg config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, lp)
}

func provideHTTPClient(cfg config.Config) *http.Client {
	return observability.NewHTTPClient(cfg.OutboundTimeout)
}

// provideTokenSigner tolerates a broken key only when the config report
// already lists it; every route but /api/health is then gated.
func provideTokenSigner(cfg config.Config, logger *slog.Logger) (*security.TokenSigner, error) {
	signer, err := security.NewTokenSigner(cfg)
	if err != nil && len(cfg.Validate()) > 0 {
		logger.Warn("token signing disabled until configuration is fixed", "error", err)
		return nil, nil
	}
	return signer, err
}

func provideSessionService(repo repository.SessionRepository, cfg config.Config) *service.SessionService {
	return service.NewSessionService(repo, cfg.SessionTTL)
}

func provideOAuthService(cfg config.Config, sessions *service.SessionService, client *http.Client) *service.OAuthService {
	return service.NewOAuthService(cfg, sessions,
		service.NewGitHubOAuthProvider(cfg, client),
		service.NewGiteeOAuthProvider(cfg, client),
	)
}

// provideGeocoder returns nil when no AMap key is configured; submissions
// then fall back to coordinate addresses.
func provideGeocoder(cfg config.Config, kv store.KV, client *http.Client, logger *slog.Logger) service.Geocoder {
	if cfg.AMapKey == "" {
		return nil
	}
	var reverser geocode.Reverser = geocode.NewClient(cfg, client)
	if cfg.GeocodeCacheTTL > 0 {
		reverser = geocode.NewCachedGeocoder(reverser, kv, cfg.GeocodeCacheTTL, cfg.GeocodeMissTTL, logger)
	}
	return reverser
}

func provideCheckinGateway(cfg config.Config, signer *security.TokenSigner, geocoder service.Geocoder, client *http.Client) *service.CheckinGateway {
	return service.NewCheckinGateway(cfg, signer, geocoder, client)
}

func provideRateLimiter(cfg config.Config, kv store.KV) router.RateLimiterFunc {
	mode := middleware.FailOpen
	if cfg.RateLimitFailClosed {
		mode = middleware.FailClosed
	}
	keyFunc := security.ClientFingerprint
	if !cfg.TrustForwardedClientIPs {
		keyFunc = middleware.SocketFingerprint
	}
	limiter := middleware.NewRateLimiter(middleware.NewKVFixedWindowLimiter(kv), middleware.PoliciesFromConfig(cfg), mode, keyFunc)
	return limiter.Middleware()
}

func provideProbeRunner(kv store.KV) *health.ProbeRunner {
	return health.NewProbeRunner(2*time.Second, health.StoreChecker{KV: kv})
}

func provideAuthHandler(flow *service.OAuthService, sessions *service.SessionService, cfg config.Config) *handler.AuthHandler {
	return handler.NewAuthHandler(flow, sessions, cfg.OAuthStateTTL)
}

func provideUserHandler(signer *security.TokenSigner) *handler.UserHandler {
	return handler.NewUserHandler(signer)
}

func provideCheckinHandler(gateway *service.CheckinGateway, geocoder service.Geocoder) *handler.CheckinHandler {
	return handler.NewCheckinHandler(gateway, geocoder)
}

func provideRouterDependencies(
	cfg config.Config,
	logger *slog.Logger,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	checkinHandler *handler.CheckinHandler,
	healthHandler *handler.HealthHandler,
	sessions *service.SessionService,
	rateLimiter router.RateLimiterFunc,
) router.Dependencies {
	return router.Dependencies{
		AuthHandler:    authHandler,
		UserHandler:    userHandler,
		CheckinHandler: checkinHandler,
		HealthHandler:  healthHandler,
		Sessions:       sessions,
		RateLimiter:    rateLimiter,
		ConfigProblems: cfg.Validate(),
		CORSOrigins:    cfg.CORSOrigins,
		TrustProxy:     cfg.TrustForwardedClientIPs,
		Logger:         logger,
		EnableOTelHTTP: cfg.OTELHTTPEnabled,
	}
}

func provideHTTPServer(cfg config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func provideApp(cfg config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, kv store.KV) *app.App {
	return app.New(cfg, logger, server, runtime, kv)
}
