package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/checkin-gateway/internal/config"
	"github.com/sandeepkv93/checkin-gateway/internal/http/response"
	"github.com/sandeepkv93/checkin-gateway/internal/observability"
	"github.com/sandeepkv93/checkin-gateway/internal/security"
	"github.com/sandeepkv93/checkin-gateway/internal/store"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
	ResetAt    time.Time
}

type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error)
}

type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// Category groups endpoints that share a quota.
type Category string

const (
	CategoryAuth    Category = "auth"
	CategoryCheckin Category = "checkin"
	CategoryHealth  Category = "health"
	CategoryDefault Category = "default"
)

var categoryMessages = map[Category]string{
	CategoryAuth:    "too many login attempts, please try again later",
	CategoryCheckin: "too many check-in submissions, please slow down",
	CategoryHealth:  "too many health checks",
	CategoryDefault: "too many requests",
}

// CategoryForPath classifies a request path. Order matters: a login path
// under /api would still count against the auth quota.
func CategoryForPath(path string) Category {
	switch {
	case strings.Contains(path, "/oauth/") || strings.Contains(path, "/login"):
		return CategoryAuth
	case strings.Contains(path, "/api/submit-location") || strings.Contains(path, "/api/checkin"):
		return CategoryCheckin
	case strings.Contains(path, "/api/health"):
		return CategoryHealth
	default:
		return CategoryDefault
	}
}

func PoliciesFromConfig(cfg config.Config) map[Category]RateLimitPolicy {
	return map[Category]RateLimitPolicy{
		CategoryAuth:    normalizePolicy(RateLimitPolicy{Limit: cfg.RateLimitAuthMax, Window: cfg.RateLimitAuthWindow}),
		CategoryCheckin: normalizePolicy(RateLimitPolicy{Limit: cfg.RateLimitCheckinMax, Window: cfg.RateLimitCheckinWindow}),
		CategoryHealth:  normalizePolicy(RateLimitPolicy{Limit: cfg.RateLimitHealthMax, Window: cfg.RateLimitHealthWindow}),
		CategoryDefault: normalizePolicy(RateLimitPolicy{Limit: cfg.RateLimitDefaultMax, Window: cfg.RateLimitDefaultWindow}),
	}
}

// KVFixedWindowLimiter counts requests per window in the shared store.
// The read and the write are separate operations, so concurrent requests
// can each see the same count; at most one extra admission per race.
type KVFixedWindowLimiter struct {
	kv  store.KV
	now func() time.Time
}

func NewKVFixedWindowLimiter(kv store.KV) *KVFixedWindowLimiter {
	return &KVFixedWindowLimiter{kv: kv, now: time.Now}
}

func (l *KVFixedWindowLimiter) Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error) {
	policy = normalizePolicy(policy)
	now := l.now()
	windowStart, windowEnd := fixedWindow(now, policy.Window)
	storeKey := fmt.Sprintf("rate_limit:%s:%d", key, windowStart)

	count := 0
	raw, err := l.kv.Get(ctx, storeKey)
	switch {
	case err == nil:
		if n, convErr := strconv.Atoi(strings.TrimSpace(raw)); convErr == nil && n > 0 {
			count = n
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return Decision{}, fmt.Errorf("read rate limit counter: %w", err)
	}

	if count >= policy.Limit {
		retryAfter := windowEnd.Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Decision{Allowed: false, RetryAfter: retryAfter, Remaining: 0, ResetAt: windowEnd}, nil
	}

	ttl := windowEnd.Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := l.kv.Set(ctx, storeKey, strconv.Itoa(count+1), ttl); err != nil {
		return Decision{}, fmt.Errorf("write rate limit counter: %w", err)
	}
	return Decision{Allowed: true, Remaining: policy.Limit - count - 1, ResetAt: windowEnd}, nil
}

// fixedWindow returns the epoch-aligned window containing now, as the
// start in Unix milliseconds and the end time.
func fixedWindow(now time.Time, window time.Duration) (int64, time.Time) {
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1000
	}
	start := (now.UnixMilli() / windowMs) * windowMs
	return start, time.UnixMilli(start + windowMs)
}

type RateLimiter struct {
	limiter  Limiter
	policies map[Category]RateLimitPolicy
	mode     FailureMode
	keyFunc  func(r *http.Request) string
}

func NewRateLimiter(limiter Limiter, policies map[Category]RateLimitPolicy, mode FailureMode, keyFunc func(r *http.Request) string) *RateLimiter {
	if keyFunc == nil {
		keyFunc = security.ClientFingerprint
	}
	if mode == "" {
		mode = FailOpen
	}
	return &RateLimiter{limiter: limiter, policies: policies, mode: mode, keyFunc: keyFunc}
}

// SocketFingerprint identifies callers by connection address only, for
// deployments not behind a trusted proxy.
func SocketFingerprint(r *http.Request) string {
	return security.Fingerprint(security.SocketIP(r), r.UserAgent())
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			category := CategoryForPath(r.URL.Path)
			policy, ok := rl.policies[category]
			if !ok {
				policy = normalizePolicy(RateLimitPolicy{})
			}
			key := rl.keyFunc(r) + ":" + string(category)

			decision, err := rl.limiter.Allow(r.Context(), key, policy)
			if err != nil {
				observability.RecordRateLimitDecision(r.Context(), string(category), "backend_error", string(rl.mode))
				_, resetAt := fixedWindow(time.Now(), policy.Window)
				if rl.mode == FailOpen {
					slog.Warn("rate limiter backend unavailable, allowing request",
						"category", string(category),
						"mode", string(rl.mode),
						"error", err.Error(),
					)
					// The counter is unreadable; report this request as the
					// window's first.
					writeRateLimitHeaders(w.Header(), policy.Limit, policy.Limit-1, resetAt)
					next.ServeHTTP(w, r)
					return
				}
				writeRateLimitHeaders(w.Header(), policy.Limit, 0, resetAt)
				w.Header().Set("Retry-After", retryAfterHeader(policy.Window))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", categoryMessages[category], nil)
				return
			}
			writeRateLimitHeaders(w.Header(), policy.Limit, decision.Remaining, decision.ResetAt)
			if !decision.Allowed {
				observability.RecordRateLimitDecision(r.Context(), string(category), "deny", string(rl.mode))
				observability.RecordRateLimitRetryAfter(r.Context(), string(category), decision.RetryAfter)
				w.Header().Set("Retry-After", retryAfterHeader(decision.RetryAfter))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", categoryMessages[category], map[string]any{
					"category":    string(category),
					"retry_after": retryAfterSeconds(decision.RetryAfter),
				})
				return
			}
			observability.RecordRateLimitDecision(r.Context(), string(category), "allow", string(rl.mode))
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds <= 0 {
		seconds = 1
	}
	return seconds
}

func retryAfterHeader(d time.Duration) string {
	return strconv.Itoa(retryAfterSeconds(d))
}

func writeRateLimitHeaders(h http.Header, limit int, remaining int, resetAt time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(max(limit, 0)))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	if resetAt.IsZero() {
		resetAt = time.Now().Add(time.Second)
	}
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

func normalizePolicy(policy RateLimitPolicy) RateLimitPolicy {
	if policy.Limit <= 0 {
		policy.Limit = 1
	}
	if policy.Window < time.Millisecond {
		policy.Window = time.Minute
	}
	return policy
}
