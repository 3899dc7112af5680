package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sandeepkv93/checkin-gateway/internal/domain"
	"github.com/sandeepkv93/checkin-gateway/internal/repository"
)

type stubResolver struct {
	session *domain.Session
	err     error
}

func (s stubResolver) Resolve(context.Context, string) (*domain.Session, error) {
	return s.session, s.err
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SessionFromContext(r.Context()); !ok {
			t.Fatal("expected session in context")
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireSessionMissingCookie(t *testing.T) {
	h := RequireSession(stubResolver{})(okHandler(t))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/user", nil))
	if rr.Code != http.StatusUnauthorized || !strings.Contains(rr.Body.String(), `"code":"UNAUTHORIZED"`) {
		t.Fatalf("expected 401 envelope for api path, got %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/index", nil))
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/login?returnTo=%2Findex" {
		t.Fatalf("expected login redirect for page, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestRequireSessionExpiredClearsCookie(t *testing.T) {
	h := RequireSession(stubResolver{err: repository.ErrSessionNotFound})(okHandler(t))
	req := httptest.NewRequest(http.MethodPost, "/api/submit-location", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "gone"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookieName || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected session cookie to be cleared, got %+v", cookies)
	}
}

func TestRequireSessionStoreFailure(t *testing.T) {
	h := RequireSession(stubResolver{err: errors.New("dial tcp: connection refused")})(okHandler(t))
	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "abc"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "STORE_UNAVAILABLE") {
		t.Fatalf("expected 503 STORE_UNAVAILABLE, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRequireSessionValidPasses(t *testing.T) {
	session := &domain.Session{ID: "abc", User: domain.User{ID: "1", Login: "octocat"}}
	h := RequireSession(stubResolver{session: session})(okHandler(t))
	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "abc"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestRequireValidConfig(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	h := RequireValidConfig([]string{"missing GITHUB_CLIENT_ID"})(next)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "missing GITHUB_CLIENT_ID") {
		t.Fatalf("expected 503 with problem list, got %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health must bypass the config gate, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	RequireValidConfig(nil)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("valid config must pass through, got %d", rr.Code)
	}
}
