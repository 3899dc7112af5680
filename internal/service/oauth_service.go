package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/sandeepkv93/checkin-gateway/internal/config"
	"github.com/sandeepkv93/checkin-gateway/internal/domain"
	"github.com/sandeepkv93/checkin-gateway/internal/observability"
)

var (
	ErrUnknownProvider       = errors.New("unknown identity provider")
	ErrProviderNotConfigured = errors.New("identity provider has no redirect uri configured")
)

// Phase is the position of a login transaction in the OAuth flow.
type Phase string

const (
	PhaseLoginInitiated   Phase = "login_initiated"
	PhaseCallbackReceived Phase = "callback_received"
	PhaseAuthenticated    Phase = "authenticated"
	PhaseRejected         Phase = "rejected"
)

// Transaction is the anti-forgery context carried by the browser between
// login and callback. The provider is always explicit.
type Transaction struct {
	Provider    domain.Provider
	State       string
	ReturnTo    string
	RedirectURI string
	Phase       Phase
}

type CallbackErrorKind string

const (
	KindProviderError      CallbackErrorKind = "provider_error"
	KindMissingCode        CallbackErrorKind = "missing_code"
	KindMissingTransaction CallbackErrorKind = "missing_transaction"
	KindStateMismatch      CallbackErrorKind = "state_mismatch"
	KindTokenExchange      CallbackErrorKind = "token_exchange"
	KindMissingAccessToken CallbackErrorKind = "missing_access_token"
	KindUserInfoFetch      CallbackErrorKind = "userinfo_fetch"
	KindInvalidUserInfo    CallbackErrorKind = "invalid_userinfo"
	KindSessionStore       CallbackErrorKind = "session_store"
)

// CallbackError describes why a callback was rejected. Detail is safe to
// show to the user.
type CallbackError struct {
	Kind     CallbackErrorKind
	Provider domain.Provider
	Detail   string
	Err      error
}

func (e *CallbackError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oauth callback %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("oauth callback %s: %s", e.Kind, e.Detail)
}

func (e *CallbackError) Unwrap() error { return e.Err }

func (e *CallbackError) StatusCode() int {
	switch e.Kind {
	case KindStateMismatch:
		return 403
	case KindProviderError, KindMissingCode, KindMissingTransaction:
		return 400
	default:
		return 500
	}
}

type LoginRequest struct {
	Provider domain.Provider
	Hostname string
	Origin   string
	ReturnTo string
}

type CallbackRequest struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	Loopback         bool
	Hostname         string
	Transaction      *Transaction
}

type CallbackResult struct {
	Session     *domain.Session
	Transaction Transaction
}

type OAuthService struct {
	providers map[domain.Provider]OAuthProvider
	redirects map[domain.Provider][]string
	sessions  SessionCreator
	newState  func() string
}

func NewOAuthService(cfg config.Config, sessions SessionCreator, providers ...OAuthProvider) *OAuthService {
	s := &OAuthService{
		providers: make(map[domain.Provider]OAuthProvider, len(providers)),
		redirects: map[domain.Provider][]string{
			domain.ProviderGitHub: cfg.GitHubRedirectURIs,
			domain.ProviderGitee:  cfg.GiteeRedirectURIs,
		},
		sessions: sessions,
		newState: uuid.NewString,
	}
	for _, p := range providers {
		s.providers[p.Provider()] = p
	}
	return s
}

// Begin starts a login: it mints a state nonce, chooses the redirect URI and
// returns the provider authorize URL.
func (s *OAuthService) Begin(req LoginRequest) (*Transaction, string, error) {
	provider, ok := s.providers[req.Provider]
	if !ok {
		return nil, "", ErrUnknownProvider
	}
	redirectURI := SelectRedirectURI(s.redirects[req.Provider], req.Hostname, req.Origin)
	if redirectURI == "" {
		return nil, "", ErrProviderNotConfigured
	}
	tx := &Transaction{
		Provider:    req.Provider,
		State:       s.newState(),
		ReturnTo:    SanitizeReturnTo(req.ReturnTo),
		RedirectURI: redirectURI,
		Phase:       PhaseLoginInitiated,
	}
	observability.RecordAuthLogin(context.Background(), string(req.Provider), "initiated")
	return tx, provider.AuthCodeURL(tx.State, redirectURI), nil
}

// Complete handles the provider callback. Any returned error is a
// *CallbackError and no session exists for it.
func (s *OAuthService) Complete(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	var provider domain.Provider
	if req.Transaction != nil {
		provider = req.Transaction.Provider
	}
	fail := func(kind CallbackErrorKind, detail string, err error) (*CallbackResult, error) {
		if req.Transaction != nil {
			req.Transaction.Phase = PhaseRejected
		}
		name := string(provider)
		if name == "" {
			name = "unknown"
		}
		observability.RecordAuthLogin(ctx, name, string(kind))
		slog.WarnContext(ctx, "oauth callback rejected", "provider", name, "kind", string(kind), "error_class", classifyOAuthError(err))
		return nil, &CallbackError{Kind: kind, Provider: provider, Detail: detail, Err: err}
	}

	if req.Error != "" {
		detail := req.Error
		if req.ErrorDescription != "" {
			detail = req.Error + ": " + req.ErrorDescription
		}
		return fail(KindProviderError, detail, nil)
	}
	if strings.TrimSpace(req.Code) == "" {
		return fail(KindMissingCode, "the identity provider did not return an authorization code", nil)
	}
	if req.Transaction == nil || !req.Transaction.Provider.Valid() {
		return fail(KindMissingTransaction, "the login session expired, please sign in again", nil)
	}
	tx := req.Transaction
	tx.Phase = PhaseCallbackReceived

	if !req.Loopback && (tx.State == "" || req.State != tx.State) {
		return fail(KindStateMismatch, "the login state did not match, please sign in again", nil)
	}

	if tx.RedirectURI == "" {
		tx.RedirectURI = SelectRedirectURI(s.redirects[tx.Provider], req.Hostname, "")
	}

	adapter, ok := s.providers[tx.Provider]
	if !ok {
		return fail(KindMissingTransaction, "the login provider is not available", ErrUnknownProvider)
	}

	token, err := adapter.Exchange(ctx, req.Code, tx.RedirectURI)
	if err != nil {
		if classifyOAuthError(err) == "missing_access_token" {
			return fail(KindMissingAccessToken, "the identity provider did not issue an access token", err)
		}
		return fail(KindTokenExchange, "could not exchange the authorization code", err)
	}
	if token == nil || token.AccessToken == "" {
		return fail(KindMissingAccessToken, "the identity provider did not issue an access token", nil)
	}

	info, err := adapter.FetchUserInfo(ctx, token)
	if err != nil {
		if isInvalidUserInfo(err) {
			return fail(KindInvalidUserInfo, "the identity provider returned an incomplete profile", err)
		}
		return fail(KindUserInfoFetch, "could not load the user profile", err)
	}

	session, err := s.sessions.Create(ctx, domain.User{
		ID:        info.ProviderUserID,
		Login:     info.Login,
		Name:      info.Name,
		AvatarURL: info.AvatarURL,
		Email:     info.Email,
		Provider:  tx.Provider,
	})
	if err != nil {
		return fail(KindSessionStore, "could not create the session", err)
	}
	tx.Phase = PhaseAuthenticated
	observability.RecordAuthLogin(ctx, string(tx.Provider), "success")
	return &CallbackResult{Session: session, Transaction: *tx}, nil
}

func classifyOAuthError(err error) string {
	if err == nil {
		return "none"
	}
	if errors.Is(err, context.Canceled) {
		return "context_canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return "oauth2_exchange"
	}
	if isInvalidUserInfo(err) {
		return "invalid_userinfo"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "missing access_token"):
		return "missing_access_token"
	case strings.Contains(msg, "userinfo status:"):
		return "userinfo_status"
	case strings.Contains(msg, "oauth2:"):
		return "oauth2_exchange"
	default:
		return "other"
	}
}
