package server

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/halcyonlabs/oauth2core/storage"
)

// GrantType is an RFC 6749 grant_type value.
type GrantType string

// Grant types with built-in handlers.
const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypePassword          GrantType = "password"
	GrantTypeClientCredentials GrantType = "client_credentials"
	GrantTypeRefreshToken      GrantType = "refresh_token"
)

// ResponseType is an RFC 6749 response_type value. A single authorization
// request may carry several, space-delimited.
type ResponseType string

// Response types with built-in handlers.
const (
	ResponseTypeCode    ResponseType = "code"
	ResponseTypeToken   ResponseType = "token"
	ResponseTypeNone    ResponseType = "none"
	ResponseTypeIDToken ResponseType = "id_token"
)

// Query holds the authorization-endpoint parameters (RFC 6749 §4.1.1,
// RFC 7636 §4.3).
type Query struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string // space-delimited list
	State               string
	Scope               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Post holds the form body of token-endpoint style requests (token,
// introspection, revocation).
type Post struct {
	GrantType     string
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	Scope         string
	Username      string
	Password      string
	RefreshToken  string
	Code          string
	CodeVerifier  string
	Token         string
	TokenTypeHint string
}

// Request is the transport-agnostic rendering of an incoming HTTP request.
// The engine never reads anything that is not on this struct, which is what
// keeps it independent of net/http, fasthttp or anything else.
type Request struct {
	// Method is the HTTP method, e.g. http.MethodPost.
	Method string

	// Headers carries the request headers. http.Header lookups are
	// case-insensitive, which is exactly the semantics HTTP requires.
	Headers http.Header

	// URL is the full request URL including scheme; the transport gate
	// inspects URL.Scheme.
	URL *url.URL

	Query Query
	Post  Post

	// User is the authenticated resource owner, or nil when the caller
	// has not established a session. Session handling is the embedding
	// application's job.
	User *storage.User

	// Settings is the policy for this request.
	Settings Settings
}

// ClientCredentials extracts the client_id/client_secret pair, preferring
// HTTP Basic authentication over body parameters per RFC 6749 §2.3.1.
func (r *Request) ClientCredentials() (clientID, clientSecret string) {
	if id, secret, ok := decodeBasicAuth(r.Headers.Get("Authorization")); ok {
		return id, secret
	}
	return r.Post.ClientID, r.Post.ClientSecret
}

// decodeBasicAuth parses an Authorization header of the Basic scheme.
func decodeBasicAuth(header string) (username, password string, ok bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	username, password, ok = strings.Cut(string(decoded), ":")
	return username, password, ok
}
