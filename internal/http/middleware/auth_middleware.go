package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/sandeepkv93/checkin-gateway/internal/domain"
	"github.com/sandeepkv93/checkin-gateway/internal/http/response"
	"github.com/sandeepkv93/checkin-gateway/internal/observability"
	"github.com/sandeepkv93/checkin-gateway/internal/repository"
	"github.com/sandeepkv93/checkin-gateway/internal/security"
)

type contextKey string

const (
	SessionContextKey contextKey = "session"
	SessionCookieName            = "session_id"
)

type SessionResolver interface {
	Resolve(ctx context.Context, id string) (*domain.Session, error)
}

// RequireSession admits requests carrying a live session cookie. API paths
// get a 401 envelope, pages are redirected to /login.
func RequireSession(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := security.GetCookie(r, SessionCookieName)
			if id == "" {
				unauthenticated(w, r)
				return
			}
			session, err := resolver.Resolve(r.Context(), id)
			if err != nil {
				if errors.Is(err, repository.ErrSessionNotFound) {
					security.ClearCookie(w, r, SessionCookieName)
					unauthenticated(w, r)
					return
				}
				observability.Audit(r, "session.lookup", "failure", "store_unavailable")
				response.Error(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "session store unavailable", nil)
				return
			}
			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(*domain.Session)
	return s, ok && s != nil
}

func ContextWithSession(ctx context.Context, s *domain.Session) context.Context {
	return context.WithValue(ctx, SessionContextKey, s)
}

func unauthenticated(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	target := "/login"
	if r.Method == http.MethodGet && r.URL.Path != "/" {
		target += "?returnTo=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// RequireValidConfig answers 503 everywhere except the health report while
// the configuration has problems.
func RequireValidConfig(problems []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(problems) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/health" {
				next.ServeHTTP(w, r)
				return
			}
			response.Error(w, r, http.StatusServiceUnavailable, "CONFIG_INVALID", "server configuration is incomplete", map[string]any{
				"problems": problems,
			})
		})
	}
}
