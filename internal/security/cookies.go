package security

import (
	"net"
	"net/http"
	"strings"
	"time"
)

func GetCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// RequestHostname returns the request host without port or brackets.
func RequestHostname(r *http.Request) string {
	host := r.Host
	if host == "" && r.URL != nil {
		host = r.URL.Host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.Trim(host, "[]"))
}

// IsLoopbackHost reports whether hostname is localhost, 127.0.0.1 or ::1.
func IsLoopbackHost(hostname string) bool {
	switch strings.ToLower(strings.Trim(hostname, "[]")) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

func IsLoopbackRequest(r *http.Request) bool {
	return IsLoopbackHost(RequestHostname(r))
}

// SetCookie writes an HTTP-only, SameSite=Lax cookie on path /. Secure is
// dropped only for loopback development hosts.
func SetCookie(w http.ResponseWriter, r *http.Request, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   !IsLoopbackRequest(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   !IsLoopbackRequest(r),
		SameSite: http.SameSiteLaxMode,
	})
}
