package server

import (
	"crypto/rand"
	"strings"
)

// Token lengths, in characters, for the opaque tokens minted by the engine.
const (
	accessTokenLength  = 42
	refreshTokenLength = 48
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateToken returns a cryptographically random alphanumeric string of
// the given length. Panics on RNG failure, which indicates a system-level
// fault no caller can recover from.
func GenerateToken(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic("server: crypto/rand.Read failed: " + err.Error())
	}
	for i := range b {
		b[i] = tokenAlphabet[int(b[i])%len(tokenAlphabet)]
	}
	return string(b)
}

// validateTransportAndMethod is the gate every endpoint operation runs
// first: HTTPS unless Settings.InsecureTransport, then the HTTP method.
// Transport is checked before the method so an http:// POST to a GET-only
// endpoint reports insecure_transport, not method_is_not_allowed.
func validateTransportAndMethod(req *Request, allowed ...string) *Error {
	if !req.Settings.InsecureTransport {
		if req.URL == nil || !strings.EqualFold(req.URL.Scheme, "https") {
			return InsecureTransport("")
		}
	}
	for _, m := range allowed {
		if req.Method == m {
			return nil
		}
	}
	return MethodNotAllowed(allowed...)
}

// containsField reports whether the space-delimited list contains exactly
// the given field.
func containsField(list, field string) bool {
	for _, f := range strings.Fields(list) {
		if f == field {
			return true
		}
	}
	return false
}

// intersectScope returns the space-delimited intersection of granted and
// requested, preserving the order of granted. An empty requested scope
// means "everything previously granted".
func intersectScope(granted, requested string) string {
	if requested == "" {
		return granted
	}
	want := strings.Fields(requested)
	var kept []string
	for _, g := range strings.Fields(granted) {
		for _, w := range want {
			if g == w {
				kept = append(kept, g)
				break
			}
		}
	}
	return strings.Join(kept, " ")
}
