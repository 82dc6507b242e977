package server

// Default lifetimes, in seconds.
const (
	DefaultTokenExpiresIn             = 3600
	DefaultRefreshTokenExpiresIn      = 7200
	DefaultAuthorizationCodeExpiresIn = 300
)

// Settings carries the per-request policy knobs of the engine. A Settings
// value travels on every Request, so a multi-tenant embedding can vary
// policy per tenant without reconfiguring the server.
type Settings struct {
	// TokenExpiresIn is the access-token lifetime in seconds.
	TokenExpiresIn int64

	// RefreshTokenExpiresIn is the refresh-token lifetime in seconds.
	// Zero falls back to twice TokenExpiresIn.
	RefreshTokenExpiresIn int64

	// AuthorizationCodeExpiresIn is the authorization-code lifetime in
	// seconds.
	AuthorizationCodeExpiresIn int64

	// InsecureTransport disables the HTTPS requirement. Development
	// only; the default enforces HTTPS on every endpoint.
	InsecureTransport bool

	// ErrorURI, when set, is the base URI that error responses point to
	// via error_uri. The error code is appended as a path segment.
	ErrorURI string

	// Available gates the whole server. When false every endpoint
	// answers temporarily_unavailable without touching storage.
	Available bool
}

// DefaultSettings returns the secure defaults: one-hour access tokens,
// two-hour refresh tokens, five-minute codes, HTTPS required, available.
func DefaultSettings() Settings {
	return Settings{
		TokenExpiresIn:             DefaultTokenExpiresIn,
		RefreshTokenExpiresIn:      DefaultRefreshTokenExpiresIn,
		AuthorizationCodeExpiresIn: DefaultAuthorizationCodeExpiresIn,
		InsecureTransport:          false,
		ErrorURI:                   "",
		Available:                  true,
	}
}

// applyDefaults fills zero-valued lifetimes so a partially populated
// Settings never issues tokens that are already expired.
func (s Settings) applyDefaults() Settings {
	if s.TokenExpiresIn <= 0 {
		s.TokenExpiresIn = DefaultTokenExpiresIn
	}
	if s.RefreshTokenExpiresIn <= 0 {
		s.RefreshTokenExpiresIn = 2 * s.TokenExpiresIn
	}
	if s.AuthorizationCodeExpiresIn <= 0 {
		s.AuthorizationCodeExpiresIn = DefaultAuthorizationCodeExpiresIn
	}
	return s
}
