package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/sandeepkv93/checkin-gateway/internal/config"
	"github.com/sandeepkv93/checkin-gateway/internal/domain"
)

var (
	errMissingUserInfoFields = errors.New("missing required userinfo fields")
	errMalformedUserInfo     = errors.New("malformed userinfo payload")
)

// isInvalidUserInfo reports a profile that arrived but cannot be used.
func isInvalidUserInfo(err error) bool {
	return errors.Is(err, errMissingUserInfoFields) || errors.Is(err, errMalformedUserInfo)
}

type providerProfile struct {
	ID        json.RawMessage `json:"id"`
	Login     string          `json:"login"`
	Name      string          `json:"name"`
	AvatarURL string          `json:"avatar_url"`
	Email     string          `json:"email"`
}

func (p providerProfile) toUserInfo() (*OAuthUserInfo, error) {
	id := strings.Trim(string(bytes.TrimSpace(p.ID)), `"`)
	if id == "" || id == "null" || id == "0" {
		return nil, errMissingUserInfoFields
	}
	return &OAuthUserInfo{
		ProviderUserID: id,
		Login:          p.Login,
		Name:           p.Name,
		AvatarURL:      p.AvatarURL,
		Email:          p.Email,
	}, nil
}

type GitHubOAuthProvider struct {
	cfg        oauth2.Config
	apiURL     string
	httpClient *http.Client
}

func NewGitHubOAuthProvider(cfg config.Config, httpClient *http.Client) *GitHubOAuthProvider {
	endpoint := github.Endpoint
	if cfg.GitHubAuthURL != "" {
		endpoint.AuthURL = cfg.GitHubAuthURL
	}
	if cfg.GitHubTokenURL != "" {
		endpoint.TokenURL = cfg.GitHubTokenURL
	}
	apiURL := strings.TrimRight(cfg.GitHubAPIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	return &GitHubOAuthProvider{
		cfg: oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{"user:email"},
		},
		apiURL:     apiURL,
		httpClient: httpClient,
	}
}

func (p *GitHubOAuthProvider) Provider() domain.Provider { return domain.ProviderGitHub }

func (p *GitHubOAuthProvider) AuthCodeURL(state, redirectURI string) string {
	c := p.cfg
	c.RedirectURL = redirectURI
	return c.AuthCodeURL(state)
}

func (p *GitHubOAuthProvider) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	c := p.cfg
	c.RedirectURL = redirectURI
	return c.Exchange(withHTTPClient(ctx, p.httpClient), code)
}

func (p *GitHubOAuthProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+token.AccessToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "checkin-gateway")
	return fetchProfile(clientOrDefault(p.httpClient), req)
}

type GiteeOAuthProvider struct {
	cfg        oauth2.Config
	baseURL    string
	httpClient *http.Client
}

func NewGiteeOAuthProvider(cfg config.Config, httpClient *http.Client) *GiteeOAuthProvider {
	base := strings.TrimRight(cfg.GiteeBaseURL, "/")
	if base == "" {
		base = "https://gitee.com"
	}
	return &GiteeOAuthProvider{
		cfg: oauth2.Config{
			ClientID:     cfg.GiteeClientID,
			ClientSecret: cfg.GiteeClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/oauth/authorize",
				TokenURL:  base + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{"user_info"},
		},
		baseURL:    base,
		httpClient: httpClient,
	}
}

func (p *GiteeOAuthProvider) Provider() domain.Provider { return domain.ProviderGitee }

func (p *GiteeOAuthProvider) AuthCodeURL(state, redirectURI string) string {
	c := p.cfg
	c.RedirectURL = redirectURI
	return c.AuthCodeURL(state)
}

func (p *GiteeOAuthProvider) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	c := p.cfg
	c.RedirectURL = redirectURI
	return c.Exchange(withHTTPClient(ctx, p.httpClient), code)
}

func (p *GiteeOAuthProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error) {
	q := url.Values{"access_token": {token.AccessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/v5/user?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "checkin-gateway")
	return fetchProfile(clientOrDefault(p.httpClient), req)
}

func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

func clientOrDefault(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return http.DefaultClient
}

func fetchProfile(client *http.Client, req *http.Request) (*OAuthUserInfo, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("userinfo status: %d", resp.StatusCode)
	}
	var profile providerProfile
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedUserInfo, err)
	}
	return profile.toUserInfo()
}
