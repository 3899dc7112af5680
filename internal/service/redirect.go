package service

import (
	"net/url"
	"strings"

	"github.com/sandeepkv93/checkin-gateway/internal/security"
)

// SelectRedirectURI picks the callback URI registered for the host the login
// started on.
func SelectRedirectURI(uris []string, hostname, origin string) string {
	if len(uris) == 0 {
		return ""
	}
	if origin = strings.TrimSpace(origin); origin != "" {
		for _, u := range uris {
			if strings.Contains(u, origin) {
				return u
			}
		}
	}
	loopback := security.IsLoopbackHost(hostname)
	if loopback {
		for _, u := range uris {
			if strings.Contains(u, "localhost") || strings.Contains(u, "127.0.0.1") {
				return u
			}
		}
	}
	for _, u := range uris {
		parsed, err := url.Parse(u)
		if err == nil && strings.EqualFold(parsed.Hostname(), hostname) {
			return u
		}
	}
	if !loopback {
		for _, u := range uris {
			if !strings.Contains(u, "localhost") {
				return u
			}
		}
	}
	return uris[0]
}

// SanitizeReturnTo keeps same-site absolute paths and maps anything else to /.
func SanitizeReturnTo(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, `/\`) {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return raw
}
