package security

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

const userAgentPrefixLen = 100

// ClientIP resolves the caller address from CF-Connecting-IP, the first
// X-Forwarded-For entry, X-Real-IP and finally the socket address.
func ClientIP(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); v != "" {
		return v
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		first, _, _ := strings.Cut(v, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	return SocketIP(r)
}

// SocketIP is the peer address of the connection, ignoring proxy headers.
func SocketIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// ClientFingerprint hashes the client IP with the user agent prefix into a
// short, non-reversible identifier.
func ClientFingerprint(r *http.Request) string {
	return Fingerprint(ClientIP(r), r.UserAgent())
}

func Fingerprint(ip, userAgent string) string {
	if len(userAgent) > userAgentPrefixLen {
		userAgent = userAgent[:userAgentPrefixLen]
	}
	sum := sha256.Sum256([]byte(ip + ":" + userAgent))
	return hex.EncodeToString(sum[:])[:16]
}
