// Package deploycheck verifies a gateway deployment from the outside.
package deploycheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/checkin-gateway/internal/config"
	"github.com/sandeepkv93/checkin-gateway/internal/tools/common"
	"github.com/sandeepkv93/checkin-gateway/internal/tools/loadgen"
	"github.com/sandeepkv93/checkin-gateway/internal/tools/ui"
)

type options struct {
	ci      bool
	baseURL string
	envFile string
	timeout time.Duration
}

// exitFunc is swapped in tests.
var exitFunc = os.Exit

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "deploycheck", Short: "Verify configuration and routes of a check-in gateway"}
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "gateway base URL")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file loaded before reading configuration")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall deadline for a check")
	cmd.AddCommand(newEnvCommand(opts), newSmokeCommand(opts), newLoadCommand(opts))
	return cmd
}

func newEnvCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Report configuration checks without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(opts, "deploycheck env", 2, func(ctx context.Context) ([]string, error) {
				return checkEnv(opts.envFile)
			})
		},
	}
}

func newSmokeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "smoke",
		Short: "Probe public routes and the session gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(opts, "deploycheck smoke", 3, func(ctx context.Context) ([]string, error) {
				return smoke(ctx, newClient(), opts.baseURL)
			})
		},
	}
}

func newLoadCommand(opts *options) *cobra.Command {
	var (
		profile  string
		duration time.Duration
		rps      int
		cookie   string
		expect   bool
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Send a burst of traffic and report the rate limiter's answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(opts, "deploycheck load", 4, func(ctx context.Context) ([]string, error) {
				res, err := loadgen.Run(ctx, loadgen.Config{
					BaseURL:     opts.baseURL,
					Profile:     profile,
					Duration:    duration,
					RPS:         rps,
					Concurrency: 4,
					Seed:        42,
					Cookie:      cookie,
				})
				if err != nil {
					return nil, err
				}
				details := []string{
					fmt.Sprintf("requests total=%d failures=%d rate_limited=%d", res.TotalRequests, res.Failures, res.RateLimited),
					fmt.Sprintf("status classes %s", formatClasses(res.StatusClasses)),
					fmt.Sprintf("latency p50=%s p95=%s max=%s", res.P50, res.P95, res.Max),
				}
				if expect && res.RateLimited == 0 {
					return details, fmt.Errorf("expected at least one 429 response")
				}
				return details, nil
			})
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "health", "traffic profile: health, auth, checkin or mixed")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "how long to send traffic")
	cmd.Flags().IntVar(&rps, "rps", 40, "requests per second")
	cmd.Flags().StringVar(&cookie, "session", "", "session_id cookie for gated routes")
	cmd.Flags().BoolVar(&expect, "expect-rate-limit", true, "fail unless the limiter answers 429")
	return cmd
}

func finish(opts *options, title string, code int, fn func(context.Context) ([]string, error)) error {
	details, err := run(opts, title, fn)
	if opts.ci {
		common.PrintCIResult(err == nil, title, details, err)
	}
	if err != nil {
		exitFunc(code)
	}
	return nil
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

func checkEnv(envFile string) ([]string, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	var verr *config.ValidationError
	if err != nil && !errors.As(err, &verr) {
		return nil, err
	}
	var (
		details []string
		failed  []string
	)
	for _, check := range cfg.Diagnose() {
		details = append(details, fmt.Sprintf("%s: %s", check.Name, check.Status))
		for _, e := range check.Errors {
			details = append(details, "  "+e)
		}
		if !check.Passed() {
			failed = append(failed, check.Name)
		}
	}
	for _, p := range config.Problems(err) {
		details = append(details, "problem: "+p)
	}
	if len(failed) > 0 || err != nil {
		return details, fmt.Errorf("configuration not ready: %d failing checks, %d problems", len(failed), len(config.Problems(err)))
	}
	return details, nil
}

type probe struct {
	name   string
	method string
	path   string
	want   int
	// code is the expected error.code of the envelope, if any.
	code   string
}

var smokeProbes = []probe{
	{name: "health", method: http.MethodGet, path: "/api/health", want: http.StatusOK},
	{name: "config", method: http.MethodGet, path: "/api/config", want: http.StatusOK},
	{name: "login choice", method: http.MethodGet, path: "/login", want: http.StatusOK},
	{name: "session gate", method: http.MethodGet, path: "/api/user", want: http.StatusUnauthorized, code: "UNAUTHORIZED"},
	{name: "unknown route", method: http.MethodGet, path: "/api/does-not-exist", want: http.StatusNotFound, code: "NOT_FOUND"},
}

func smoke(ctx context.Context, client *http.Client, baseURL string) ([]string, error) {
	base := strings.TrimRight(baseURL, "/")
	var details []string
	for _, p := range smokeProbes {
		status, code, err := call(ctx, client, p.method, base+p.path)
		if err != nil {
			return details, fmt.Errorf("%s: %w", p.name, err)
		}
		if status != p.want {
			return details, fmt.Errorf("%s: expected %d, got %d", p.name, p.want, status)
		}
		if p.code != "" && code != p.code {
			return details, fmt.Errorf("%s: expected error code %s, got %q", p.name, p.code, code)
		}
		details = append(details, fmt.Sprintf("%s: %d ok", p.name, status))
	}
	return details, nil
}

func call(ctx context.Context, client *http.Client, method, url string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", err
	}
	var envelope struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		return resp.StatusCode, envelope.Error.Code, nil
	}
	return resp.StatusCode, "", nil
}

func newClient() *http.Client {
	return &http.Client{
		Timeout: 20 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func formatClasses(classes map[string]int) string {
	var parts []string
	for _, k := range []string{"2xx", "3xx", "4xx", "5xx", "other"} {
		if n := classes[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}
