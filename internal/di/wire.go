//go:build wireinject
// +build wireinject

package di

import (
	"context"
	"log/slog"

	"github.com/google/wire"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/sandeepkv93/checkin-gateway/internal/app"
	"github.com/sandeepkv93/checkin-gateway/internal/config"
	"github.com/sandeepkv93/checkin-gateway/internal/http/handler"
	"github.com/sandeepkv93/checkin-gateway/internal/http/router"
	"github.com/sandeepkv93/checkin-gateway/internal/repository"
)

var storeSet = wire.NewSet(
	provideStore,
	repository.NewSessionRepository,
	wire.Bind(new(repository.SessionRepository), new(*repository.KVSessionRepository)),
)

var serviceSet = wire.NewSet(
	provideHTTPClient,
	provideTokenSigner,
	provideSessionService,
	provideOAuthService,
	provideGeocoder,
	provideCheckinGateway,
)

var httpSet = wire.NewSet(
	provideRateLimiter,
	provideProbeRunner,
	provideAuthHandler,
	provideUserHandler,
	provideCheckinHandler,
	handler.NewHealthHandler,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

func InitializeApp(ctx context.Context, cfg config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*app.App, func(), error) {
	wire.Build(
		storeSet,
		serviceSet,
		httpSet,
		provideObservability,
		provideApp,
	)
	return nil, nil, nil
}
