package deploycheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const defaultTestTimeout = 5 * time.Second

var requiredForTest = []string{
	"GITHUB_CLIENT_ID",
	"GITHUB_CLIENT_SECRET",
	"REDIRECT_URI",
	"GITEE_CLIENT_ID",
	"GITEE_CLIENT_SECRET",
	"GITEE_REDIRECT_URI",
	"N8N_API_ENDPOINT",
	"N8N_API_CONFIRM_ENDPOINT",
}

func fakeGateway(overrides map[string]int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status, ok := overrides[r.URL.Path]; ok {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/health", "/api/config", "/login":
			_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
		case "/api/user":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"UNAUTHORIZED","message":"authentication required"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"NOT_FOUND","message":"API endpoint not found"}}`))
		}
	}))
}

func TestSmokePassesAgainstHealthyGateway(t *testing.T) {
	srv := fakeGateway(nil)
	defer srv.Close()

	details, err := smoke(context.Background(), newClient(), srv.URL+"/")
	if err != nil {
		t.Fatalf("smoke: %v", err)
	}
	if len(details) != len(smokeProbes) {
		t.Fatalf("expected one detail per probe, got %v", details)
	}
}

func TestSmokeReportsFirstFailingProbe(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]int
		want      string
	}{
		{name: "unhealthy", overrides: map[string]int{"/api/health": http.StatusServiceUnavailable}, want: "health: expected 200, got 503"},
		{name: "open gate", overrides: map[string]int{"/api/user": http.StatusOK}, want: "session gate"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := fakeGateway(tc.overrides)
			defer srv.Close()
			_, err := smoke(context.Background(), newClient(), srv.URL)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCheckEnvReportsMissingVariables(t *testing.T) {
	for _, name := range requiredForTest {
		t.Setenv(name, "")
	}
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("JWT_SECRET=short\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	// the file supplies JWT_SECRET only when the variable is unset
	t.Setenv("JWT_SECRET", "")
	_ = os.Unsetenv("JWT_SECRET")

	details, err := checkEnv(path)
	if err == nil {
		t.Fatal("expected configuration not ready")
	}
	joined := strings.Join(details, "\n")
	if !strings.Contains(joined, "environment: fail") || !strings.Contains(joined, "jwt: fail") {
		t.Fatalf("unexpected details %s", joined)
	}
	if os.Getenv("JWT_SECRET") != "short" {
		t.Fatalf("expected env file to supply JWT_SECRET, got %q", os.Getenv("JWT_SECRET"))
	}
}

func TestRunCIModeSkipsTerminalUI(t *testing.T) {
	called := false
	details, err := run(&options{ci: true, timeout: defaultTestTimeout}, "x", func(ctx context.Context) ([]string, error) {
		called = true
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a deadline in ci mode")
		}
		return []string{"ok"}, nil
	})
	if err != nil || !called || len(details) != 1 {
		t.Fatalf("unexpected result %v %v", details, err)
	}
}

func TestFinishExitsWithCommandCode(t *testing.T) {
	var code int
	exitFunc = func(c int) { code = c }
	t.Cleanup(func() { exitFunc = os.Exit })

	opts := &options{ci: true, timeout: defaultTestTimeout}
	stdout := os.Stdout
	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	defer devnull.Close()
	os.Stdout = devnull
	_ = finish(opts, "x", 3, func(context.Context) ([]string, error) { return nil, context.Canceled })
	os.Stdout = stdout
	if code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
}
