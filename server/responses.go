package server

import (
	"net/http"
	"net/url"
	"strconv"
)

// Response is the transport-agnostic result of an endpoint operation. The
// adapter writes StatusCode and Headers verbatim and JSON-encodes Content
// when it is non-nil.
type Response struct {
	Content    any
	StatusCode int
	Headers    http.Header
}

// defaultJSONHeaders returns the headers every token-bearing JSON response
// must carry (RFC 6749 §5.1: no caching of responses containing tokens).
func defaultJSONHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	return h
}

// ErrorResponse is the JSON body of a protocol error (RFC 6749 §5.2).
type ErrorResponse struct {
	Error       ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
	ErrorURI    string    `json:"error_uri,omitempty"`
}

// TokenResponse is the JSON body of a successful token-endpoint request
// (RFC 6749 §5.1).
type TokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token,omitempty"`
	TokenType             string `json:"token_type"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in,omitempty"`
	Scope                 string `json:"scope,omitempty"`
}

// AuthorizationCodeResponse carries a freshly minted authorization code
// back through the redirect.
type AuthorizationCodeResponse struct {
	Code  string `json:"code"`
	Scope string `json:"scope,omitempty"`
}

// IDTokenResponse carries an OpenID Connect ID token issued by the id_token
// response type.
type IDTokenResponse struct {
	IDToken string `json:"id_token"`
}

// NoneResponse is the empty payload of response_type=none: the redirect
// carries at most the state parameter.
type NoneResponse struct{}

// RevocationResponse is the deliberately empty body of a successful
// RFC 7009 revocation.
type RevocationResponse struct{}

// TokenActiveIntrospectionResponse is the RFC 7662 response for a live
// token.
type TokenActiveIntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
}

// TokenInactiveIntrospectionResponse is the RFC 7662 response for any token
// that is unknown, expired or revoked. The shape is constant so callers
// cannot distinguish why a token is inactive.
type TokenInactiveIntrospectionResponse struct {
	Active bool `json:"active"`
}

// AuthorizationContent is implemented by every payload a response-type
// handler can produce. Each variant contributes its redirect parameters, so
// combined flows like "code token" merge into one parameter set.
type AuthorizationContent interface {
	authorizationParams(v url.Values)
}

func (r *AuthorizationCodeResponse) authorizationParams(v url.Values) {
	v.Set("code", r.Code)
	if r.Scope != "" {
		v.Set("scope", r.Scope)
	}
}

func (r *TokenResponse) authorizationParams(v url.Values) {
	v.Set("access_token", r.AccessToken)
	v.Set("token_type", r.TokenType)
	v.Set("expires_in", strconv.FormatInt(r.ExpiresIn, 10))
	if r.RefreshToken != "" {
		v.Set("refresh_token", r.RefreshToken)
	}
	if r.Scope != "" {
		v.Set("scope", r.Scope)
	}
}

func (r *IDTokenResponse) authorizationParams(v url.Values) {
	v.Set("id_token", r.IDToken)
}

func (r *NoneResponse) authorizationParams(url.Values) {}

// BuildURI assembles the redirect location from the registered redirect URI
// plus query and fragment parameters. Parameters already present on the
// registered URI are preserved; new ones are added alongside.
func BuildURI(base string, query, fragment url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		merged := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				merged.Set(k, v)
			}
		}
		u.RawQuery = merged.Encode()
	}
	if len(fragment) > 0 {
		u.Fragment = fragment.Encode()
		// url.URL re-escapes Fragment on String(); RawFragment keeps
		// the already-encoded form intact.
		u.RawFragment = fragment.Encode()
	}
	return u.String(), nil
}
