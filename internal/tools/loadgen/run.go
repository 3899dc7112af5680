// Package loadgen drives synthetic traffic at a running gateway.
package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
	// Cookie is sent as the session_id cookie on gated routes when set.
	Cookie      string
	Client      *http.Client
}

type Result struct {
	TotalRequests int
	Failures      int
	RateLimited   int
	StatusClasses map[string]int
	P50           time.Duration
	P95           time.Duration
	Max           time.Duration
}

type target struct {
	method string
	path   string
	body   string
}

var profiles = map[string][]target{
	"health": {
		{method: http.MethodGet, path: "/api/health"},
	},
	"auth": {
		{method: http.MethodGet, path: "/login"},
		{method: http.MethodGet, path: "/api/user"},
		{method: http.MethodGet, path: "/api/config"},
	},
	"checkin": {
		{method: http.MethodPost, path: "/api/submit-location", body: `{"latitude":39.9042,"longitude":116.4074}`},
		{method: http.MethodGet, path: "/api/geocode?lat=39.9042&lng=116.4074"},
	},
}

func normalizeProfile(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "mixed"
	}
	return p
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

func targetsFor(profile string) ([]target, error) {
	if profile == "mixed" {
		var all []target
		for _, name := range []string{"health", "auth", "checkin"} {
			all = append(all, profiles[name]...)
		}
		return all, nil
	}
	t, ok := profiles[profile]
	if !ok {
		return nil, fmt.Errorf("unknown load profile %q", profile)
	}
	return t, nil
}

// tickInterval spaces dispatches for rps requests per second. Rates above
// one per nanosecond are clamped to the ticker's finest period.
func tickInterval(rps int) time.Duration {
	if rps <= 0 {
		return time.Second
	}
	if d := time.Second / time.Duration(rps); d > 0 {
		return d
	}
	return time.Nanosecond
}

// Run issues requests at roughly cfg.RPS until cfg.Duration elapses or ctx
// ends. Transport errors count as failures; HTTP statuses never do.
func Run(ctx context.Context, cfg Config) (Result, error) {
	targets, err := targetsFor(normalizeProfile(cfg.Profile))
	if err != nil {
		return Result{}, err
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 5 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	jobs := make(chan target)
	var (
		mu        sync.Mutex
		res       = Result{StatusClasses: map[string]int{}}
		latencies []time.Duration
	)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer close(jobs)
		rng := rand.New(rand.NewSource(cfg.Seed))
		ticker := time.NewTicker(tickInterval(cfg.RPS))
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				select {
				case jobs <- targets[rng.Intn(len(targets))]:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})
	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			for t := range jobs {
				status, elapsed, err := do(gctx, client, base, cfg.Cookie, t)
				if err != nil && gctx.Err() != nil {
					// cut off by the run deadline
					continue
				}
				mu.Lock()
				res.TotalRequests++
				if err != nil {
					res.Failures++
				} else {
					res.StatusClasses[classifyStatusClass(status)]++
					if status == http.StatusTooManyRequests {
						res.RateLimited++
					}
					latencies = append(latencies, elapsed)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	res.P50 = percentile(latencies, 0.50)
	res.P95 = percentile(latencies, 0.95)
	if n := len(latencies); n > 0 {
		res.Max = latencies[n-1]
	}
	return res, nil
}

func do(ctx context.Context, client *http.Client, base, cookie string, t target) (int, time.Duration, error) {
	var body io.Reader
	if t.body != "" {
		body = bytes.NewBufferString(t.body)
	}
	req, err := http.NewRequestWithContext(ctx, t.method, base+t.path, body)
	if err != nil {
		return 0, 0, err
	}
	if t.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: cookie})
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, time.Since(start), nil
}

func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * q)
	return sorted[idx]
}
