package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	CheckPass = "pass"
	CheckFail = "fail"
)

// Check is one entry of the configuration health report.
type Check struct {
	Name    string         `json:"name"`
	Status  string         `json:"status"`
	Errors  []string       `json:"errors,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func (c Check) Passed() bool { return c.Status == CheckPass }

var requiredVars = []string{
	"GITHUB_CLIENT_ID",
	"GITHUB_CLIENT_SECRET",
	"REDIRECT_URI",
	"GITEE_CLIENT_ID",
	"GITEE_CLIENT_SECRET",
	"GITEE_REDIRECT_URI",
	"N8N_API_ENDPOINT",
	"N8N_API_CONFIRM_ENDPOINT",
}

// Validate returns the problems that make the service unable to authenticate
// or sign submissions. An empty slice means the config is usable.
func (c Config) Validate() []string {
	var problems []string
	for _, name := range c.MissingVars() {
		problems = append(problems, name+" is required")
	}
	problems = append(problems, c.jwtErrors()...)
	problems = append(problems, c.storeErrors()...)
	return problems
}

const (
	ClassMissingVars = "missing_vars"
	ClassJWT         = "jwt"
	ClassStore       = "store"
	ClassParse       = "parse"
)

// problemClasses mirrors the groups Validate draws problems from.
func (c Config) problemClasses() []string {
	var classes []string
	if len(c.MissingVars()) > 0 {
		classes = append(classes, ClassMissingVars)
	}
	if len(c.jwtErrors()) > 0 {
		classes = append(classes, ClassJWT)
	}
	if len(c.storeErrors()) > 0 {
		classes = append(classes, ClassStore)
	}
	return classes
}

// MissingVars lists the required variables that are unset.
func (c Config) MissingVars() []string {
	values := map[string]bool{
		"GITHUB_CLIENT_ID":         c.GitHubClientID != "",
		"GITHUB_CLIENT_SECRET":     c.GitHubClientSecret != "",
		"REDIRECT_URI":             len(c.GitHubRedirectURIs) > 0,
		"GITEE_CLIENT_ID":          c.GiteeClientID != "",
		"GITEE_CLIENT_SECRET":      c.GiteeClientSecret != "",
		"GITEE_REDIRECT_URI":       len(c.GiteeRedirectURIs) > 0,
		"N8N_API_ENDPOINT":         c.N8NEndpoint != "",
		"N8N_API_CONFIRM_ENDPOINT": c.N8NConfirmEndpoint != "",
	}
	var missing []string
	for _, name := range requiredVars {
		if !values[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

func (c Config) jwtErrors() []string {
	var errs []string
	switch c.JWTAlgorithm {
	case "HS256":
		if c.JWTSecret == "" {
			errs = append(errs, "JWT_SECRET is required when using HS256 algorithm")
		} else if len(c.JWTSecret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters long")
		}
	case "RS256":
		if c.JWTPrivateKey == "" {
			errs = append(errs, "JWT_PRIVATE_KEY is required when using RS256 algorithm")
		} else if _, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.JWTPrivateKey)); err != nil {
			errs = append(errs, "JWT_PRIVATE_KEY must be a PEM encoded RSA private key")
		}
		if c.JWTPublicKey == "" {
			errs = append(errs, "JWT_PUBLIC_KEY is required when using RS256 algorithm")
		} else if _, err := jwt.ParseRSAPublicKeyFromPEM([]byte(c.JWTPublicKey)); err != nil {
			errs = append(errs, "JWT_PUBLIC_KEY must be a PEM encoded RSA public key")
		}
	default:
		errs = append(errs, "JWT_ALGORITHM must be either 'HS256' or 'RS256'")
	}
	return errs
}

func (c Config) storeErrors() []string {
	switch c.StoreBackend {
	case "redis":
		if c.RedisAddr == "" {
			return []string{"REDIS_ADDR is required when STORE_BACKEND=redis"}
		}
	case "postgres", "sqlite":
		if c.DatabaseURL == "" {
			return []string{fmt.Sprintf("DATABASE_URL is required when STORE_BACKEND=%s", c.StoreBackend)}
		}
	case "memory":
	default:
		return []string{"STORE_BACKEND must be one of redis, postgres, sqlite, memory"}
	}
	return nil
}

// Diagnose builds the configuration part of the health report.
func (c Config) Diagnose() []Check {
	missing := c.MissingVars()
	env := Check{
		Name:   "environment",
		Status: passIf(len(missing) == 0),
		Details: map[string]any{
			"missing":    missing,
			"total":      len(requiredVars),
			"configured": len(requiredVars) - len(missing),
		},
	}

	jwtErrs := c.jwtErrors()
	jwtCheck := Check{
		Name:    "jwt",
		Status:  passIf(len(jwtErrs) == 0),
		Errors:  jwtErrs,
		Details: map[string]any{"algorithm": c.JWTAlgorithm},
	}

	github := map[string]bool{
		"clientId":     c.GitHubClientID != "",
		"clientSecret": c.GitHubClientSecret != "",
		"redirectUri":  allHTTPURLs(c.GitHubRedirectURIs, false),
	}
	gitee := map[string]bool{
		"clientId":     c.GiteeClientID != "",
		"clientSecret": c.GiteeClientSecret != "",
		"redirectUri":  allHTTPURLs(c.GiteeRedirectURIs, false),
	}
	oauth := Check{
		Name:    "oauth",
		Status:  passIf(allTrue(github) && allTrue(gitee)),
		Details: map[string]any{"github": github, "gitee": gitee},
	}

	endpoints := Check{
		Name: "apiEndpoints",
		Status: passIf(allHTTPURLs([]string{c.N8NEndpoint}, true) &&
			allHTTPURLs([]string{c.N8NConfirmEndpoint}, true)),
		Details: map[string]any{
			"n8nApi":     c.N8NEndpoint != "",
			"n8nConfirm": c.N8NConfirmEndpoint != "",
		},
	}
	return []Check{env, jwtCheck, oauth, endpoints}
}

func passIf(ok bool) string {
	if ok {
		return CheckPass
	}
	return CheckFail
}

func allTrue(m map[string]bool) bool {
	for _, v := range m {
		if !v {
			return false
		}
	}
	return true
}

func allHTTPURLs(values []string, httpsOnly bool) bool {
	if len(values) == 0 {
		return false
	}
	for _, raw := range values {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Host == "" {
			return false
		}
		switch u.Scheme {
		case "https":
		case "http":
			if httpsOnly {
				return false
			}
		default:
			return false
		}
	}
	return true
}
