package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/checkin-gateway/internal/http/handler"
	"github.com/sandeepkv93/checkin-gateway/internal/http/middleware"
	"github.com/sandeepkv93/checkin-gateway/internal/http/response"
)

const maxBodyBytes = 1 << 20

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	UserHandler    *handler.UserHandler
	CheckinHandler *handler.CheckinHandler
	HealthHandler  *handler.HealthHandler
	Sessions       middleware.SessionResolver
	RateLimiter    RateLimiterFunc
	ConfigProblems []string
	CORSOrigins    []string
	TrustProxy     bool
	Logger         *slog.Logger
	EnableOTelHTTP bool
}

type RateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if dep.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.ResponseRequestID)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))
	if dep.RateLimiter != nil {
		r.Use(dep.RateLimiter)
	}
	r.Use(middleware.RequireValidConfig(dep.ConfigProblems))

	requireSession := middleware.RequireSession(dep.Sessions)

	r.Get("/", dep.AuthHandler.Root)
	r.Get("/login", dep.AuthHandler.Login)
	r.Get("/gitee-login", dep.AuthHandler.GiteeLogin)
	r.Get("/oauth/callback", dep.AuthHandler.Callback)
	r.With(requireSession).Get("/index", dep.AuthHandler.Index)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", dep.HealthHandler.Health)
		r.Get("/config", dep.HealthHandler.Config)
		r.With(middleware.NoCache).Post("/logout", dep.AuthHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Get("/user", dep.UserHandler.Me)
			r.With(middleware.NoCache).Post("/refresh-token", dep.UserHandler.RefreshToken)
			r.Post("/submit-location", dep.CheckinHandler.SubmitLocation)
			r.Post("/checkin", dep.CheckinHandler.SubmitLocation)
			r.Get("/geocode", dep.CheckinHandler.Geocode)
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "API endpoint not found", nil)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			response.Error(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
