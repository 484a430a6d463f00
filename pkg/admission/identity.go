package admission

import (
	"net"
	"net/http"
	"strings"
)

// SessionHeader is the caller-supplied session token header.
const SessionHeader = "X-Session-Id"

// Identity derives the caller key used to scope quotas. Precedence:
// session token header, then the first entry of X-Forwarded-For, then the
// transport peer address. The namespace prefix keeps the two identity
// types from colliding.
func Identity(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(SessionHeader)); token != "" {
		return "session:" + token
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return "ip:" + host
	}
	if r.RemoteAddr != "" {
		return "ip:" + r.RemoteAddr
	}
	return "ip:unknown"
}
