package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/sandeepkv93/checkin-gateway/internal/domain"
	"github.com/sandeepkv93/checkin-gateway/internal/http/middleware"
	"github.com/sandeepkv93/checkin-gateway/internal/http/response"
	"github.com/sandeepkv93/checkin-gateway/internal/observability"
	"github.com/sandeepkv93/checkin-gateway/internal/security"
	"github.com/sandeepkv93/checkin-gateway/internal/service"
)

const (
	providerCookie    = "oauth_provider"
	stateCookie       = "oauth_state"
	returnToCookie    = "oauth_return_to"
	redirectURICookie = "oauth_redirect_uri"
)

var transactionCookies = []string{providerCookie, stateCookie, returnToCookie, redirectURICookie}

type OAuthFlow interface {
	Begin(req service.LoginRequest) (*service.Transaction, string, error)
	Complete(ctx context.Context, req service.CallbackRequest) (*service.CallbackResult, error)
}

type SessionManager interface {
	Resolve(ctx context.Context, id string) (*domain.Session, error)
	Revoke(ctx context.Context, id string) error
	TTL() time.Duration
}

type AuthHandler struct {
	flow     OAuthFlow
	sessions SessionManager
	stateTTL time.Duration
	appTitle string
}

func NewAuthHandler(flow OAuthFlow, sessions SessionManager, stateTTL time.Duration) *AuthHandler {
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	return &AuthHandler{flow: flow, sessions: sessions, stateTTL: stateTTL, appTitle: "位置签到"}
}

// Root sends signed-in callers to the landing page and everyone else to login.
func (h *AuthHandler) Root(w http.ResponseWriter, r *http.Request) {
	if id := security.GetCookie(r, middleware.SessionCookieName); id != "" {
		if _, err := h.sessions.Resolve(r.Context(), id); err == nil {
			http.Redirect(w, r, "/index", http.StatusFound)
			return
		}
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *AuthHandler) Index(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	user := session.User
	renderPage(w, http.StatusOK, "index", pageData{Title: h.appTitle, User: &user})
}

// Login starts the OAuth flow for ?provider=, or shows the provider choice
// page when none is given.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	returnTo := q.Get("returnTo")
	raw := q.Get("provider")
	if raw == "" {
		renderPage(w, http.StatusOK, "choice", pageData{Title: h.appTitle, Providers: providerLinks(returnTo)})
		return
	}
	provider, err := domain.ParseProvider(raw)
	if err != nil {
		renderError(w, http.StatusBadRequest, "不支持的登录方式", "unsupported provider: "+raw)
		return
	}

	tx, authorizeURL, err := h.flow.Begin(service.LoginRequest{
		Provider: provider,
		Hostname: security.RequestHostname(r),
		Origin:   q.Get("origin"),
		ReturnTo: returnTo,
	})
	if err != nil {
		observability.Audit(r, "auth.login", "failure", "begin_failed", "provider", string(provider))
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrProviderNotConfigured) || errors.Is(err, service.ErrUnknownProvider) {
			status = http.StatusServiceUnavailable
		}
		renderError(w, status, "登录暂不可用", provider.DisplayName()+" login is not configured on this server")
		return
	}

	security.SetCookie(w, r, providerCookie, string(tx.Provider), h.stateTTL)
	security.SetCookie(w, r, stateCookie, tx.State, h.stateTTL)
	security.SetCookie(w, r, returnToCookie, tx.ReturnTo, h.stateTTL)
	security.SetCookie(w, r, redirectURICookie, tx.RedirectURI, h.stateTTL)
	observability.Audit(r, "auth.login", "success", "redirect", "provider", string(provider))
	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// GiteeLogin keeps the old /gitee-login links working.
func (h *AuthHandler) GiteeLogin(w http.ResponseWriter, r *http.Request) {
	target := url.Values{"provider": {string(domain.ProviderGitee)}}
	if rt := r.URL.Query().Get("returnTo"); rt != "" {
		target.Set("returnTo", rt)
	}
	http.Redirect(w, r, "/login?"+target.Encode(), http.StatusFound)
}

func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tx := transactionFromCookies(r)
	for _, name := range transactionCookies {
		security.ClearCookie(w, r, name)
	}

	result, err := h.flow.Complete(r.Context(), service.CallbackRequest{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		Loopback:         security.IsLoopbackRequest(r),
		Hostname:         security.RequestHostname(r),
		Transaction:      tx,
	})
	if err != nil {
		var cbErr *service.CallbackError
		if !errors.As(err, &cbErr) {
			observability.Audit(r, "auth.callback", "failure", "internal")
			renderError(w, http.StatusInternalServerError, "登录失败", "an unexpected error occurred during sign in")
			return
		}
		observability.Audit(r, "auth.callback", "failure", string(cbErr.Kind), "provider", string(cbErr.Provider))
		renderError(w, cbErr.StatusCode(), callbackTitle(cbErr.Kind), cbErr.Detail)
		return
	}

	security.SetCookie(w, r, middleware.SessionCookieName, result.Session.ID, h.sessions.TTL())
	observability.Audit(r, "auth.callback", "success", "session_created", "provider", string(result.Transaction.Provider))
	http.Redirect(w, r, result.Transaction.ReturnTo, http.StatusFound)
}

// Logout always clears the cookie, even when the store delete fails.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	status := "success"
	if id := security.GetCookie(r, middleware.SessionCookieName); id != "" {
		if err := h.sessions.Revoke(r.Context(), id); err != nil {
			status = "store_error"
			observability.Audit(r, "auth.logout", "failure", "store_error", "error", err.Error())
		}
	} else {
		status = "no_session"
	}
	observability.RecordAuthLogout(r.Context(), status)
	security.ClearCookie(w, r, middleware.SessionCookieName)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "logged out"})
}

// transactionFromCookies returns nil when the provider cookie is absent or
// unrecognised; a transaction never has an implicit provider.
func transactionFromCookies(r *http.Request) *service.Transaction {
	provider, err := domain.ParseProvider(security.GetCookie(r, providerCookie))
	if err != nil {
		return nil
	}
	return &service.Transaction{
		Provider:    provider,
		State:       security.GetCookie(r, stateCookie),
		ReturnTo:    service.SanitizeReturnTo(security.GetCookie(r, returnToCookie)),
		RedirectURI: security.GetCookie(r, redirectURICookie),
		Phase:       service.PhaseLoginInitiated,
	}
}

func providerLinks(returnTo string) []providerLink {
	links := make([]providerLink, 0, len(domain.Providers()))
	for _, p := range domain.Providers() {
		v := url.Values{"provider": {string(p)}}
		if returnTo != "" {
			v.Set("returnTo", service.SanitizeReturnTo(returnTo))
		}
		links = append(links, providerLink{ID: string(p), Name: p.DisplayName(), Href: "/login?" + v.Encode()})
	}
	return links
}

func callbackTitle(kind service.CallbackErrorKind) string {
	switch kind {
	case service.KindStateMismatch:
		return "安全校验失败"
	case service.KindProviderError:
		return "授权被拒绝"
	case service.KindMissingCode, service.KindMissingTransaction:
		return "登录会话已失效"
	default:
		return "登录失败"
	}
}
