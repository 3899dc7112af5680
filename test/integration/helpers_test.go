package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/sandeepkv93/checkin-gateway/internal/config"
	"github.com/sandeepkv93/checkin-gateway/internal/di"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

// fakeGitHub serves the authorize, token and user endpoints.
type fakeGitHub struct {
	server    *httptest.Server
	mu        sync.Mutex
	codes     map[string]string
	tokenHits atomic.Int32
	userLogin string
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	gh := &fakeGitHub{codes: map[string]string{}, userLogin: "octocat"}
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/authorize", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		code := "code-" + q.Get("state")
		gh.mu.Lock()
		gh.codes[code] = q.Get("redirect_uri")
		gh.mu.Unlock()
		target, _ := url.Parse(q.Get("redirect_uri"))
		v := target.Query()
		v.Set("code", code)
		v.Set("state", q.Get("state"))
		target.RawQuery = v.Encode()
		http.Redirect(w, r, target.String(), http.StatusFound)
	})
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		gh.tokenHits.Add(1)
		_ = r.ParseForm()
		gh.mu.Lock()
		_, ok := gh.codes[r.Form.Get("code")]
		gh.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"bad_verification_code"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"gh-access","token_type":"bearer"}`)
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token gh-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         1001,
			"login":      gh.userLogin,
			"name":       "The Octocat",
			"avatar_url": "https://avatars.example.com/u/1001",
			"email":      "octocat@example.com",
		})
	})
	gh.server = httptest.NewServer(mux)
	t.Cleanup(gh.server.Close)
	return gh
}

// fakeWorkflow answers submissions with the queued bodies in order, then
// with a plain success.
type fakeWorkflow struct {
	server   *httptest.Server
	mu       sync.Mutex
	replies  []string
	received []workflowCall
}

type workflowCall struct {
	Path        string
	Token       string
	Username    string
	Confirmed   bool
	ConfirmData json.RawMessage
}

func newFakeWorkflow(t *testing.T) *fakeWorkflow {
	t.Helper()
	wf := &fakeWorkflow{}
	wf.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username    string          `json:"username"`
			Confirmed   bool            `json:"confirmed"`
			ConfirmData json.RawMessage `json:"confirmData"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		wf.mu.Lock()
		wf.received = append(wf.received, workflowCall{
			Path:        r.URL.Path,
			Token:       strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
			Username:    body.Username,
			Confirmed:   body.Confirmed,
			ConfirmData: body.ConfirmData,
		})
		reply := `{"code":200,"message":"ok"}`
		if len(wf.replies) > 0 {
			reply, wf.replies = wf.replies[0], wf.replies[1:]
		}
		wf.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(wf.server.Close)
	return wf
}

func (wf *fakeWorkflow) queue(replies ...string) {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	wf.replies = append(wf.replies, replies...)
}

func (wf *fakeWorkflow) calls() []workflowCall {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return append([]workflowCall(nil), wf.received...)
}

type gatewayOptions struct {
	cfgOverride func(cfg *config.Config)
}

type gateway struct {
	baseURL  string
	client   *http.Client
	github   *fakeGitHub
	workflow *fakeWorkflow
	redis    *miniredis.Miniredis
	cfg      config.Config
}

func newGateway(t *testing.T) *gateway {
	return newGatewayWithOptions(t, gatewayOptions{})
}

// newGatewayWithOptions builds the full application through dependency
// injection against miniredis and fake upstreams.
func newGatewayWithOptions(t *testing.T, opts gatewayOptions) *gateway {
	t.Helper()
	mr := miniredis.RunT(t)
	gh := newFakeGitHub(t)
	wf := newFakeWorkflow(t)

	var h atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Load().(http.Handler).ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Config{
		Env:                    "test",
		HTTPAddr:               "127.0.0.1:0",
		GitHubClientID:         "gh-client",
		GitHubClientSecret:     "gh-secret",
		GitHubRedirectURIs:     []string{srv.URL + "/oauth/callback"},
		GitHubAuthURL:          gh.server.URL + "/login/oauth/authorize",
		GitHubTokenURL:         gh.server.URL + "/login/oauth/access_token",
		GitHubAPIURL:           gh.server.URL,
		GiteeClientID:          "gitee-client",
		GiteeClientSecret:      "gitee-secret",
		GiteeRedirectURIs:      []string{srv.URL + "/oauth/callback"},
		GiteeBaseURL:           gh.server.URL,
		JWTAlgorithm:           "HS256",
		JWTSecret:              "abcdefghijklmnopqrstuvwxyz123456",
		JWTIssuer:              "kaoqin-system",
		JWTTTL:                 5 * time.Minute,
		N8NEndpoint:            wf.server.URL + "/webhook/checkin",
		N8NConfirmEndpoint:     wf.server.URL + "/webhook/confirm",
		StoreBackend:           "redis",
		RedisAddr:              mr.Addr(),
		SessionTTL:             7 * 24 * time.Hour,
		OAuthStateTTL:          10 * time.Minute,
		RateLimitAuthMax:       50,
		RateLimitAuthWindow:    15 * time.Minute,
		RateLimitCheckinMax:    5,
		RateLimitCheckinWindow: time.Minute,
		RateLimitHealthMax:     120,
		RateLimitHealthWindow:  time.Minute,
		RateLimitDefaultMax:    60,
		RateLimitDefaultWindow: time.Minute,
		OutboundTimeout:        5 * time.Second,
	}
	if opts.cfgOverride != nil {
		opts.cfgOverride(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, cleanup, err := di.InitializeApp(context.Background(), cfg, logger, nil)
	if err != nil {
		t.Fatalf("initialize app: %v", err)
	}
	t.Cleanup(cleanup)
	h.Store(a.Server.Handler)

	return &gateway{baseURL: srv.URL, client: newClientWithJar(t), github: gh, workflow: wf, redis: mr, cfg: cfg}
}

func newClientWithJar(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

// login runs the GitHub authorization code flow through the fake provider
// and leaves the session cookie in the client's jar.
func (g *gateway) login(t *testing.T) {
	t.Helper()
	resp, body := doRawText(t, g.client, http.MethodGet, g.baseURL+"/login?provider=github", nil, nil)
	if resp.StatusCode != http.StatusOK || resp.Request.URL.Path != "/index" {
		t.Fatalf("expected login to land on /index, got %d %s\n%s", resp.StatusCode, resp.Request.URL, body)
	}
	if cookieValue(t, g.client, g.baseURL, "session_id") == "" {
		t.Fatal("expected session cookie after login")
	}
}

func doJSON(t *testing.T, client *http.Client, method, target string, body any, cookies []*http.Cookie) (*http.Response, envelope) {
	t.Helper()
	resp, raw := doRawText(t, client, method, target, body, cookies)
	var env envelope
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			t.Fatalf("decode envelope from %s: %v body=%q", target, err, raw)
		}
	}
	return resp, env
}

func doRawText(t *testing.T, client *http.Client, method, target string, body any, cookies []*http.Cookie) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(resp.Body)
	return resp, string(raw)
}

func doRawTextNoRedirect(t *testing.T, client *http.Client, method, target string, cookies []*http.Cookie) (*http.Response, string) {
	t.Helper()
	clone := *client
	clone.CheckRedirect = func(_ *http.Request, _ []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return doRawText(t, &clone, method, target, nil, cookies)
}

func cookieValue(t *testing.T, client *http.Client, baseURL, name string) string {
	t.Helper()
	u, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func captureAuditEvents(t *testing.T, fn func()) []map[string]any {
	t.Helper()
	var logBuf bytes.Buffer
	var mu sync.Mutex
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&lockedWriter{mu: &mu, w: &logBuf}, &slog.HandlerOptions{Level: slog.LevelInfo})))
	defer slog.SetDefault(previous)

	fn()
	mu.Lock()
	defer mu.Unlock()
	return extractAuditEvents(logBuf.String())
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func extractAuditEvents(logs string) []map[string]any {
	events := make([]map[string]any, 0)
	for _, line := range strings.Split(logs, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if msg, _ := event["msg"].(string); msg == "audit.event" {
			events = append(events, event)
		}
	}
	return events
}

func requireAuditEvent(t *testing.T, events []map[string]any, eventName, outcome, reason string) {
	t.Helper()
	for _, event := range events {
		gotName, _ := event["event_name"].(string)
		gotOutcome, _ := event["outcome"].(string)
		gotReason, _ := event["reason"].(string)
		if gotName == eventName && gotOutcome == outcome && gotReason == reason {
			return
		}
	}
	t.Fatalf("expected audit event_name=%q outcome=%q reason=%q, got events=%#v", eventName, outcome, reason, events)
}
