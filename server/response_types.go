package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/halcyonlabs/oauth2core/storage"
)

// ResponseTypeHandler is an authorization-endpoint state machine for one
// response type. Like GrantHandler the API is two-phase, and phase two
// before phase one panics.
type ResponseTypeHandler interface {
	ValidateRequest(ctx context.Context, req *Request) (*storage.Client, error)
	CreateAuthorizationResponse(ctx context.Context, req *Request) (AuthorizationContent, error)
}

// ResponseTypeFactory builds a fresh ResponseTypeHandler per request.
type ResponseTypeFactory func(store storage.Storage) ResponseTypeHandler

// responseCore carries the validation every response type shares.
type responseCore struct {
	store        storage.Storage
	responseType ResponseType

	client    *storage.Client
	validated bool
}

// validate runs the common authorization-endpoint checks, in order: client
// identification, redirect URI, response_type presence and support, PKCE
// parameter coherence, client authorization for the response type, scope,
// and finally the resource-owner session.
func (r *responseCore) validate(ctx context.Context, req *Request) (*storage.Client, error) {
	if req.Query.ClientID == "" {
		return nil, InvalidRequest("Missing client_id parameter.")
	}

	client, err := r.store.GetClient(ctx, req.Query.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, InvalidRequest("Invalid client_id parameter value.")
		}
		return nil, fmt.Errorf("get client %q: %w", req.Query.ClientID, err)
	}

	if req.Query.RedirectURI == "" {
		return nil, InvalidRequest("Mismatching redirect URI.")
	}
	if !client.CheckRedirectURI(req.Query.RedirectURI) {
		return nil, InvalidRequest("Invalid redirect URI.")
	}

	if req.Query.ResponseType == "" {
		return nil, InvalidRequest("Missing response_type parameter.")
	}
	if !containsField(req.Query.ResponseType, string(r.responseType)) {
		return nil, UnsupportedResponseType("")
	}

	if req.Query.CodeChallengeMethod != "" {
		if req.Query.CodeChallengeMethod != storage.CodeChallengeMethodPlain &&
			req.Query.CodeChallengeMethod != storage.CodeChallengeMethodS256 {
			return nil, InvalidRequest("Transform algorithm not supported.")
		}
		if req.Query.CodeChallenge == "" {
			return nil, InvalidRequest("Code challenge required.")
		}
	}

	if !client.CheckResponseType(string(r.responseType)) {
		return nil, UnsupportedResponseType("")
	}
	if !client.CheckScope(req.Query.Scope) {
		return nil, InvalidScope("")
	}

	// The resource owner must have been authenticated by the embedding
	// application before the engine will authorize anything.
	if req.User == nil {
		return nil, InvalidClient("User is not authorized.")
	}

	r.client = client
	r.validated = true
	return client, nil
}

func (r *responseCore) mustValidated() {
	if !r.validated {
		panic("server: CreateAuthorizationResponse called before ValidateRequest")
	}
}

// CodeResponseType mints an authorization code (RFC 6749 §4.1.2), recording
// the PKCE challenge and nonce for redemption time.
type CodeResponseType struct {
	responseCore
}

// NewCodeResponseType is the ResponseTypeFactory for code.
func NewCodeResponseType(store storage.Storage) ResponseTypeHandler {
	return &CodeResponseType{responseCore{store: store, responseType: ResponseTypeCode}}
}

func (h *CodeResponseType) ValidateRequest(ctx context.Context, req *Request) (*storage.Client, error) {
	return h.validate(ctx, req)
}

func (h *CodeResponseType) CreateAuthorizationResponse(ctx context.Context, req *Request) (AuthorizationContent, error) {
	h.mustValidated()

	settings := req.Settings.applyDefaults()
	code := &storage.AuthorizationCode{
		Code:                oauth2.GenerateVerifier(),
		ClientID:            h.client.ClientID,
		UserID:              req.User.ID,
		RedirectURI:         req.Query.RedirectURI,
		ResponseType:        string(ResponseTypeCode),
		Scope:               req.Query.Scope,
		AuthTime:            time.Now().Unix(),
		ExpiresIn:           settings.AuthorizationCodeExpiresIn,
		CodeChallenge:       req.Query.CodeChallenge,
		CodeChallengeMethod: req.Query.CodeChallengeMethod,
		Nonce:               req.Query.Nonce,
	}
	if err := h.store.SaveAuthorizationCode(ctx, code); err != nil {
		return nil, fmt.Errorf("save authorization code: %w", err)
	}

	return &AuthorizationCodeResponse{Code: code.Code, Scope: code.Scope}, nil
}

// TokenResponseType implements the implicit flow (RFC 6749 §4.2): the token
// is issued directly and delivered in the redirect fragment.
type TokenResponseType struct {
	responseCore
}

// NewTokenResponseType is the ResponseTypeFactory for token.
func NewTokenResponseType(store storage.Storage) ResponseTypeHandler {
	return &TokenResponseType{responseCore{store: store, responseType: ResponseTypeToken}}
}

func (h *TokenResponseType) ValidateRequest(ctx context.Context, req *Request) (*storage.Client, error) {
	return h.validate(ctx, req)
}

func (h *TokenResponseType) CreateAuthorizationResponse(ctx context.Context, req *Request) (AuthorizationContent, error) {
	h.mustValidated()

	settings := req.Settings.applyDefaults()
	token := &storage.Token{
		AccessToken:           GenerateToken(accessTokenLength),
		RefreshToken:          GenerateToken(refreshTokenLength),
		ClientID:              h.client.ClientID,
		UserID:                req.User.ID,
		TokenType:             "Bearer",
		Scope:                 req.Query.Scope,
		IssuedAt:              time.Now().Unix(),
		ExpiresIn:             settings.TokenExpiresIn,
		RefreshTokenExpiresIn: settings.RefreshTokenExpiresIn,
	}
	if err := h.store.SaveToken(ctx, token); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}

	return tokenResponse(token), nil
}

// NoneResponseType authorizes without issuing anything; the redirect
// carries at most the state parameter. Useful for permission prompts that
// only need a yes.
type NoneResponseType struct {
	responseCore
}

// NewNoneResponseType is the ResponseTypeFactory for none.
func NewNoneResponseType(store storage.Storage) ResponseTypeHandler {
	return &NoneResponseType{responseCore{store: store, responseType: ResponseTypeNone}}
}

func (h *NoneResponseType) ValidateRequest(ctx context.Context, req *Request) (*storage.Client, error) {
	return h.validate(ctx, req)
}

func (h *NoneResponseType) CreateAuthorizationResponse(_ context.Context, _ *Request) (AuthorizationContent, error) {
	h.mustValidated()
	return &NoneResponse{}, nil
}

// IDTokenResponseType implements the OpenID Connect implicit variant
// response_type=id_token. It requires the storage handle to also implement
// storage.IDTokenIssuer; the nonce from the request is passed through to
// the issuer.
type IDTokenResponseType struct {
	responseCore
	issuer storage.IDTokenIssuer
}

// NewIDTokenResponseType is the ResponseTypeFactory for id_token.
func NewIDTokenResponseType(store storage.Storage) ResponseTypeHandler {
	issuer, _ := store.(storage.IDTokenIssuer)
	return &IDTokenResponseType{
		responseCore: responseCore{store: store, responseType: ResponseTypeIDToken},
		issuer:       issuer,
	}
}

func (h *IDTokenResponseType) ValidateRequest(ctx context.Context, req *Request) (*storage.Client, error) {
	if h.issuer == nil {
		return nil, UnsupportedResponseType("The id_token response type is not supported by this server.")
	}
	return h.validate(ctx, req)
}

func (h *IDTokenResponseType) CreateAuthorizationResponse(ctx context.Context, req *Request) (AuthorizationContent, error) {
	h.mustValidated()

	idToken, err := h.issuer.CreateIDToken(ctx, storage.IDTokenParams{
		ClientID:     h.client.ClientID,
		UserID:       req.User.ID,
		Scope:        req.Query.Scope,
		RedirectURI:  req.Query.RedirectURI,
		ResponseType: string(ResponseTypeIDToken),
		Nonce:        req.Query.Nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("create id token: %w", err)
	}
	return &IDTokenResponse{IDToken: idToken}, nil
}
