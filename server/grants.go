package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/halcyonlabs/oauth2core/storage"
)

// GrantHandler is a token-endpoint state machine for one grant type. The
// API is two-phase: ValidateRequest authenticates the client and checks
// every protocol precondition, CreateTokenResponse performs the storage
// mutations and mints the token. Calling phase two before phase one is a
// programmer error and panics.
type GrantHandler interface {
	ValidateRequest(ctx context.Context, req *Request) (*storage.Client, error)
	CreateTokenResponse(ctx context.Context, req *Request) (*TokenResponse, error)
}

// GrantFactory builds a fresh GrantHandler per request. Handlers carry
// per-request state (the resolved client), so they are never reused.
type GrantFactory func(store storage.Storage) GrantHandler

// grantCore carries the state and behavior every grant type shares: client
// authentication, grant-type and scope authorization, token minting.
type grantCore struct {
	store     storage.Storage
	grantType GrantType

	client    *storage.Client
	scope     string
	validated bool
}

// validate performs the client checks common to all grant types, in order:
// credential extraction, client lookup, secret verification, grant-type
// authorization, scope authorization.
func (g *grantCore) validate(ctx context.Context, req *Request) (*storage.Client, error) {
	clientID, clientSecret := req.ClientCredentials()
	if clientID == "" {
		return nil, InvalidRequest("Missing client_id parameter.")
	}

	client, err := g.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, InvalidClient("")
		}
		return nil, fmt.Errorf("get client %q: %w", clientID, err)
	}

	if err := g.store.ValidateClientSecret(ctx, clientID, clientSecret); err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidCredentials) {
			return nil, InvalidClient("")
		}
		return nil, fmt.Errorf("validate client secret: %w", err)
	}

	if !client.CheckGrantType(string(g.grantType)) {
		return nil, UnauthorizedClient("")
	}
	if !client.CheckScope(req.Post.Scope) {
		return nil, InvalidScope("")
	}

	g.client = client
	g.scope = req.Post.Scope
	g.validated = true
	return client, nil
}

// mustValidated guards phase two. Skipping validation would mean issuing
// tokens to an unauthenticated client, so this is not a recoverable
// condition.
func (g *grantCore) mustValidated() {
	if !g.validated {
		panic("server: CreateTokenResponse called before ValidateRequest")
	}
}

// issueToken mints, persists and returns a new token for the validated
// client.
func (g *grantCore) issueToken(ctx context.Context, req *Request, userID, scope string) (*storage.Token, error) {
	settings := req.Settings.applyDefaults()
	token := &storage.Token{
		AccessToken:           GenerateToken(accessTokenLength),
		RefreshToken:          GenerateToken(refreshTokenLength),
		ClientID:              g.client.ClientID,
		UserID:                userID,
		TokenType:             "Bearer",
		Scope:                 scope,
		IssuedAt:              time.Now().Unix(),
		ExpiresIn:             settings.TokenExpiresIn,
		RefreshTokenExpiresIn: settings.RefreshTokenExpiresIn,
	}
	if err := g.store.SaveToken(ctx, token); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	return token, nil
}

// tokenResponse shapes the wire response for a freshly issued token.
func tokenResponse(t *storage.Token) *TokenResponse {
	return &TokenResponse{
		AccessToken:           t.AccessToken,
		RefreshToken:          t.RefreshToken,
		TokenType:             t.TokenType,
		ExpiresIn:             t.ExpiresIn,
		RefreshTokenExpiresIn: t.RefreshTokenExpiresIn,
		Scope:                 t.Scope,
	}
}

// AuthorizationCodeGrant redeems a single-use authorization code for a
// token (RFC 6749 §4.1.3), verifying the PKCE binding when present.
type AuthorizationCodeGrant struct {
	grantCore
	code *storage.AuthorizationCode
}

// NewAuthorizationCodeGrant is the GrantFactory for authorization_code.
func NewAuthorizationCodeGrant(store storage.Storage) GrantHandler {
	return &AuthorizationCodeGrant{grantCore: grantCore{store: store, grantType: GrantTypeAuthorizationCode}}
}

func (g *AuthorizationCodeGrant) ValidateRequest(ctx context.Context, req *Request) (*storage.Client, error) {
	client, err := g.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.Post.RedirectURI == "" {
		return nil, InvalidRequest("Mismatching redirect URI.")
	}
	if !client.CheckRedirectURI(req.Post.RedirectURI) {
		return nil, InvalidRequest("Invalid redirect URI.")
	}
	if req.Post.Code == "" {
		return nil, InvalidRequest("Missing code parameter.")
	}

	code, err := g.store.GetAuthorizationCode(ctx, client.ClientID, req.Post.Code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, InvalidGrant("")
		}
		return nil, fmt.Errorf("get authorization code: %w", err)
	}
	if code.IsExpired() {
		return nil, InvalidGrant("Authorization code has expired.")
	}

	// PKCE: a code minted with a challenge can only be redeemed with
	// the matching verifier.
	if code.CodeChallengeMethod != "" {
		if req.Post.CodeVerifier == "" {
			return nil, InvalidRequest("Code verifier required.")
		}
		if !code.CheckCodeChallenge(req.Post.CodeVerifier) {
			return nil, MismatchingState("")
		}
	}

	g.code = code
	return client, nil
}

func (g *AuthorizationCodeGrant) CreateTokenResponse(ctx context.Context, req *Request) (*TokenResponse, error) {
	g.mustValidated()

	scope := g.scope
	if scope == "" {
		scope = g.code.Scope
	}
	token, err := g.issueToken(ctx, req, g.code.UserID, scope)
	if err != nil {
		return nil, err
	}

	// The code is single-use: it is consumed only after the token has
	// been persisted, so a storage failure never strands the client
	// with a burned code and no token.
	if err := g.store.DeleteAuthorizationCode(ctx, g.client.ClientID, g.code.Code); err != nil {
		return nil, fmt.Errorf("delete authorization code: %w", err)
	}

	return tokenResponse(token), nil
}

// PasswordGrant exchanges resource-owner credentials for a token
// (RFC 6749 §4.3).
type PasswordGrant struct {
	grantCore
	user *storage.User
}

// NewPasswordGrant is the GrantFactory for password.
func NewPasswordGrant(store storage.Storage) GrantHandler {
	return &PasswordGrant{grantCore: grantCore{store: store, grantType: GrantTypePassword}}
}

func (g *PasswordGrant) ValidateRequest(ctx context.Context, req *Request) (*storage.Client, error) {
	client, err := g.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.Post.Username == "" || req.Post.Password == "" {
		return nil, InvalidRequest("Invalid credentials given.")
	}

	user, err := g.store.Authenticate(ctx, req.Post.Username, req.Post.Password)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidCredentials) {
			return nil, InvalidGrant("Invalid credentials given.")
		}
		return nil, fmt.Errorf("authenticate user: %w", err)
	}

	g.user = user
	return client, nil
}

func (g *PasswordGrant) CreateTokenResponse(ctx context.Context, req *Request) (*TokenResponse, error) {
	g.mustValidated()
	token, err := g.issueToken(ctx, req, g.user.ID, g.scope)
	if err != nil {
		return nil, err
	}
	return tokenResponse(token), nil
}

// RefreshTokenGrant rotates a refresh token (RFC 6749 §6): the old token is
// revoked and a fresh pair is issued with a scope never wider than before.
type RefreshTokenGrant struct {
	grantCore
}

// NewRefreshTokenGrant is the GrantFactory for refresh_token.
func NewRefreshTokenGrant(store storage.Storage) GrantHandler {
	return &RefreshTokenGrant{grantCore: grantCore{store: store, grantType: GrantTypeRefreshToken}}
}

func (g *RefreshTokenGrant) ValidateRequest(ctx context.Context, req *Request) (*storage.Client, error) {
	client, err := g.validate(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Post.RefreshToken == "" {
		return nil, InvalidRequest("Missing refresh token parameter.")
	}
	return client, nil
}

func (g *RefreshTokenGrant) CreateTokenResponse(ctx context.Context, req *Request) (*TokenResponse, error) {
	g.mustValidated()

	old, err := g.store.GetToken(ctx, storage.TokenQuery{
		ClientID:     g.client.ClientID,
		RefreshToken: req.Post.RefreshToken,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, InvalidGrant("")
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	if old.Revoked || old.RefreshTokenExpired() {
		return nil, InvalidGrant("")
	}

	// Revoke before issuing: if issuance fails the old token is burned,
	// never the other way around (a live old token plus a live new one
	// would double the attack surface).
	if err := g.store.RevokeToken(ctx, storage.TokenQuery{
		ClientID:     g.client.ClientID,
		RefreshToken: req.Post.RefreshToken,
	}); err != nil {
		return nil, fmt.Errorf("revoke token: %w", err)
	}

	scope := intersectScope(old.Scope, g.scope)
	token, err := g.issueToken(ctx, req, old.UserID, scope)
	if err != nil {
		return nil, err
	}
	return tokenResponse(token), nil
}

// ClientCredentialsGrant issues a token to the client itself
// (RFC 6749 §4.4). Confidential clients only.
type ClientCredentialsGrant struct {
	grantCore
}

// NewClientCredentialsGrant is the GrantFactory for client_credentials.
func NewClientCredentialsGrant(store storage.Storage) GrantHandler {
	return &ClientCredentialsGrant{grantCore: grantCore{store: store, grantType: GrantTypeClientCredentials}}
}

func (g *ClientCredentialsGrant) ValidateRequest(ctx context.Context, req *Request) (*storage.Client, error) {
	if _, clientSecret := req.ClientCredentials(); clientSecret == "" {
		return nil, InvalidClient("")
	}
	return g.validate(ctx, req)
}

func (g *ClientCredentialsGrant) CreateTokenResponse(ctx context.Context, req *Request) (*TokenResponse, error) {
	g.mustValidated()
	token, err := g.issueToken(ctx, req, "", g.scope)
	if err != nil {
		return nil, err
	}
	return tokenResponse(token), nil
}
