// Package storage defines the persistence contract of the authorization
// server together with the entities it stores. The engine in package server
// is written entirely against the Storage interface; callers plug in the
// bundled memory or redis implementations, or their own.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Storage implementations when the requested
// entity does not exist. The engine translates it into the appropriate
// protocol error; any other error is treated as an infrastructure failure.
var ErrNotFound = errors.New("storage: not found")

// ErrInvalidCredentials is returned by ValidateClientSecret and Authenticate
// when the entity exists but the presented credentials do not match.
var ErrInvalidCredentials = errors.New("storage: invalid credentials")

// TokenQuery selects a token for lookup or revocation. Empty fields are
// wildcards: a lookup matches on whichever token value is set, and when both
// values are set either match suffices. TokenTypeHint carries the RFC 7009 /
// RFC 7662 token_type_hint verbatim; implementations may use it to order the
// search but must not let a wrong hint hide a token.
type TokenQuery struct {
	ClientID      string
	AccessToken   string
	RefreshToken  string
	TokenTypeHint string
}

// IDTokenParams carries everything an OpenID Connect ID-token issuer needs
// about the authorization being completed.
type IDTokenParams struct {
	ClientID     string
	UserID       string
	Scope        string
	RedirectURI  string
	ResponseType string
	Nonce        string
}

// Storage is the full persistence contract consumed by the engine.
//
// All methods take a context and must honor its cancellation. Secret
// verification is deliberately part of the contract rather than the engine:
// implementations are expected to store hashes (the bundled stores use
// bcrypt) and never hand plaintext secrets back.
type Storage interface {
	// GetClient returns the registered client or ErrNotFound.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret verifies the presented secret against the
	// client's stored credentials. It returns ErrNotFound for unknown
	// clients and ErrInvalidCredentials on mismatch. Public clients
	// accept only an empty secret.
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error

	// SaveToken persists a freshly issued token.
	SaveToken(ctx context.Context, token *Token) error

	// GetToken returns the token matching the query or ErrNotFound.
	GetToken(ctx context.Context, q TokenQuery) (*Token, error)

	// RevokeToken marks the matching token revoked. Revoked tokens stay
	// visible to GetToken (introspection reports them inactive) until
	// the implementation expires them. Returns ErrNotFound when nothing
	// matches.
	RevokeToken(ctx context.Context, q TokenQuery) error

	// SaveAuthorizationCode persists a newly minted authorization code.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode returns the code only if it was issued to the
	// given client; ErrNotFound otherwise.
	GetAuthorizationCode(ctx context.Context, clientID, code string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes a code after redemption. Deleting
	// a code that is already gone is not an error.
	DeleteAuthorizationCode(ctx context.Context, clientID, code string) error

	// Authenticate resolves resource-owner credentials to a User. It
	// returns ErrNotFound for unknown users and ErrInvalidCredentials on
	// a bad password.
	Authenticate(ctx context.Context, username, password string) (*User, error)
}

// IDTokenIssuer is an optional extension of Storage. When the storage handle
// passed to the engine also implements IDTokenIssuer, the id_token response
// type becomes available.
type IDTokenIssuer interface {
	CreateIDToken(ctx context.Context, p IDTokenParams) (string, error)
}
