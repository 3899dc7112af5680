package di

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/checkin-gateway/internal/config"
)

func memoryConfig() config.Config {
	return config.Config{
		Env:                    "test",
		HTTPAddr:               "127.0.0.1:0",
		GitHubClientID:         "gh-id",
		GitHubClientSecret:     "gh-secret",
		GitHubRedirectURIs:     []string{"http://localhost:8080/oauth/callback"},
		GiteeClientID:          "gitee-id",
		GiteeClientSecret:      "gitee-secret",
		GiteeRedirectURIs:      []string{"http://localhost:8080/oauth/callback"},
		JWTAlgorithm:           "HS256",
		JWTSecret:              "abcdefghijklmnopqrstuvwxyz123456",
		JWTIssuer:              "kaoqin-system",
		N8NEndpoint:            "https://n8n.example.com/webhook/checkin",
		N8NConfirmEndpoint:     "https://n8n.example.com/webhook/confirm",
		StoreBackend:           "memory",
		SessionTTL:             time.Hour,
		RateLimitHealthMax:     100,
		RateLimitHealthWindow:  time.Minute,
		RateLimitDefaultMax:    100,
		RateLimitDefaultWindow: time.Minute,
		OutboundTimeout:        time.Second,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitializeAppWiresRouter(t *testing.T) {
	a, cleanup, err := InitializeApp(context.Background(), memoryConfig(), quietLogger(), nil)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer cleanup()

	if a.Store.Backend() != "memory" {
		t.Fatalf("expected memory store, got %s", a.Store.Backend())
	}
	rr := httptest.NewRecorder()
	a.Server.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected healthy report, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestInitializeAppDegradedModeGatesRoutes(t *testing.T) {
	cfg := memoryConfig()
	cfg.JWTSecret = "short"

	a, cleanup, err := InitializeApp(context.Background(), cfg, quietLogger(), nil)
	if err != nil {
		t.Fatalf("degraded config should still start: %v", err)
	}
	defer cleanup()

	rr := httptest.NewRecorder()
	a.Server.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/user", nil))
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "JWT_SECRET") {
		t.Fatalf("expected config gate, got %d %s", rr.Code, rr.Body.String())
	}
	rr = httptest.NewRecorder()
	a.Server.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected unhealthy report, got %d", rr.Code)
	}
}

func TestInitializeAppRejectsUnknownStore(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "etcd"
	if _, _, err := InitializeApp(context.Background(), cfg, quietLogger(), nil); err == nil {
		t.Fatal("expected unsupported store error")
	}
}
