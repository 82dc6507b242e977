package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client IP address from an HTTP request.
// X-Forwarded-For is only honored when trustProxy is set, since the header
// is trivially spoofable when requests reach the server directly.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := firstForwardedIP(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" && net.ParseIP(ip) != nil {
			return ip
		}
	}
	return remoteAddrIP(r.RemoteAddr)
}

// firstForwardedIP returns the leftmost valid IP of an X-Forwarded-For
// header, which is the original client in the usual proxy chain layout.
func firstForwardedIP(xff string) string {
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	first = strings.TrimSpace(first)
	if net.ParseIP(first) == nil {
		return ""
	}
	return first
}

// remoteAddrIP strips the port from a RemoteAddr value.
func remoteAddrIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		// RemoteAddr without a port, e.g. in tests.
		return remoteAddr
	}
	return host
}
