package storage

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"slices"
	"strings"
	"time"
)

// PKCE code challenge methods (RFC 7636 §4.2).
const (
	CodeChallengeMethodPlain = "plain"
	CodeChallengeMethodS256  = "S256"
)

// Client is a registered OAuth 2.0 client. Registration itself is out of
// scope here; callers seed clients into their Storage implementation.
type Client struct {
	// ClientID is the unique client identifier.
	ClientID string `json:"client_id"`

	// Public marks clients that cannot hold a secret (native apps,
	// SPAs). Public clients authenticate with an empty client_secret.
	Public bool `json:"public"`

	// RedirectURIs is the exact set of registered redirect URIs.
	// Matching is literal string equality per RFC 6749 §3.1.2.3.
	RedirectURIs []string `json:"redirect_uris"`

	// GrantTypes lists the grant_type values this client may use.
	GrantTypes []string `json:"grant_types"`

	// ResponseTypes lists the response_type values this client may use.
	ResponseTypes []string `json:"response_types"`

	// Scope is the space-delimited set of scope tokens the client may
	// request. Requests are limited to subsets of this set.
	Scope string `json:"scope"`
}

// CheckRedirectURI reports whether uri exactly matches a registered URI.
func (c *Client) CheckRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// CheckGrantType reports whether the client is allowed to use grantType.
func (c *Client) CheckGrantType(grantType string) bool {
	return slices.Contains(c.GrantTypes, grantType)
}

// CheckResponseType reports whether the client is allowed to use responseType.
func (c *Client) CheckResponseType(responseType string) bool {
	return slices.Contains(c.ResponseTypes, responseType)
}

// CheckScope reports whether every token in the space-delimited scope is
// registered for the client. The empty scope is always allowed.
func (c *Client) CheckScope(scope string) bool {
	allowed := strings.Fields(c.Scope)
	for _, s := range strings.Fields(scope) {
		if !slices.Contains(allowed, s) {
			return false
		}
	}
	return true
}

// AuthorizationCode is a single-use grant minted by the authorization
// endpoint and redeemed at the token endpoint.
type AuthorizationCode struct {
	Code        string `json:"code"`
	ClientID    string `json:"client_id"`
	UserID      string `json:"user_id"`
	RedirectURI string `json:"redirect_uri"`

	// ResponseType records the response_type the code was issued under.
	ResponseType string `json:"response_type"`

	// Scope is the space-delimited scope granted to the code.
	Scope string `json:"scope"`

	// AuthTime is the Unix second the code was minted.
	AuthTime int64 `json:"auth_time"`

	// ExpiresIn is the code lifetime in seconds from AuthTime.
	ExpiresIn int64 `json:"expires_in"`

	// CodeChallenge and CodeChallengeMethod carry the PKCE binding, if
	// the client supplied one.
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`

	// Nonce is the OpenID Connect nonce, forwarded into ID tokens.
	Nonce string `json:"nonce,omitempty"`
}

// IsExpired reports whether the code's lifetime has elapsed.
func (a *AuthorizationCode) IsExpired() bool {
	return a.AuthTime+a.ExpiresIn < time.Now().Unix()
}

// CheckCodeChallenge verifies a PKCE code_verifier against the stored
// challenge. Comparison is constant-time for both methods; an unknown
// method fails closed.
func (a *AuthorizationCode) CheckCodeChallenge(verifier string) bool {
	switch a.CodeChallengeMethod {
	case CodeChallengeMethodPlain:
		return subtle.ConstantTimeCompare([]byte(a.CodeChallenge), []byte(verifier)) == 1
	case CodeChallengeMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(a.CodeChallenge), []byte(computed)) == 1
	default:
		return false
	}
}

// Token is an issued access token with its paired refresh token.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ClientID     string `json:"client_id"`
	UserID       string `json:"user_id,omitempty"`

	// TokenType is the RFC 6749 token type, always "Bearer" here.
	TokenType string `json:"token_type"`

	// Scope is the space-delimited scope the token carries.
	Scope string `json:"scope"`

	// IssuedAt is the Unix second of issuance.
	IssuedAt int64 `json:"issued_at"`

	// ExpiresIn is the access-token lifetime in seconds from IssuedAt.
	ExpiresIn int64 `json:"expires_in"`

	// RefreshTokenExpiresIn is the refresh-token lifetime in seconds
	// from IssuedAt. Zero means the refresh token does not expire.
	RefreshTokenExpiresIn int64 `json:"refresh_token_expires_in,omitempty"`

	// Revoked marks tokens invalidated before expiry. Revoked tokens
	// are kept so introspection can report them inactive.
	Revoked bool `json:"revoked"`
}

// IsExpired reports whether the access token's lifetime has elapsed.
func (t *Token) IsExpired() bool {
	return t.IssuedAt+t.ExpiresIn < time.Now().Unix()
}

// RefreshTokenExpired reports whether the refresh token's lifetime has
// elapsed. A zero RefreshTokenExpiresIn never expires.
func (t *Token) RefreshTokenExpired() bool {
	if t.RefreshTokenExpiresIn == 0 {
		return false
	}
	return t.IssuedAt+t.RefreshTokenExpiresIn < time.Now().Unix()
}

// ExpiresAt returns the access-token expiry as a time.Time.
func (t *Token) ExpiresAt() time.Time {
	return time.Unix(t.IssuedAt+t.ExpiresIn, 0)
}

// User is the resource owner on whose behalf tokens are issued. The engine
// only needs an identifier; anything else is the embedding application's
// business.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
