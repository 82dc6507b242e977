package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/halcyonlabs/oauth2core/instrumentation"
	"github.com/halcyonlabs/oauth2core/security"
	"github.com/halcyonlabs/oauth2core/storage"
)

// AuthorizationServer is the protocol engine façade. It owns the registries
// of grant-type and response-type handlers and exposes one operation per
// endpoint. All operations are total: they always return a well-formed
// Response, never an error.
//
// The registries are mutable before the server starts serving; they are not
// synchronized, so register handlers during setup only.
type AuthorizationServer struct {
	store   storage.Storage
	logger  *slog.Logger
	auditor *security.Auditor
	metrics *instrumentation.Metrics

	grantTypes    map[GrantType]GrantFactory
	responseTypes map[ResponseType]ResponseTypeFactory
}

// Option configures an AuthorizationServer.
type Option func(*AuthorizationServer)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *AuthorizationServer) { s.logger = logger }
}

// WithAuditor enables security audit logging for token lifecycle events.
func WithAuditor(a *security.Auditor) Option {
	return func(s *AuthorizationServer) { s.auditor = a }
}

// WithMetrics enables protocol metrics recording.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *AuthorizationServer) { s.metrics = m }
}

// New creates an AuthorizationServer with the default handlers registered:
// the four RFC 6749 grant types and the code, token and none response
// types. When store also implements storage.IDTokenIssuer the id_token
// response type is registered as well.
func New(store storage.Storage, opts ...Option) (*AuthorizationServer, error) {
	if store == nil {
		return nil, errors.New("server: storage is required")
	}

	s := &AuthorizationServer{
		store:  store,
		logger: slog.Default(),
		grantTypes: map[GrantType]GrantFactory{
			GrantTypeAuthorizationCode: NewAuthorizationCodeGrant,
			GrantTypePassword:          NewPasswordGrant,
			GrantTypeClientCredentials: NewClientCredentialsGrant,
			GrantTypeRefreshToken:      NewRefreshTokenGrant,
		},
		responseTypes: map[ResponseType]ResponseTypeFactory{
			ResponseTypeCode:  NewCodeResponseType,
			ResponseTypeToken: NewTokenResponseType,
			ResponseTypeNone:  NewNoneResponseType,
		},
	}
	if _, ok := store.(storage.IDTokenIssuer); ok {
		s.responseTypes[ResponseTypeIDToken] = NewIDTokenResponseType
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterGrantType adds or replaces the handler for a grant type.
func (s *AuthorizationServer) RegisterGrantType(gt GrantType, f GrantFactory) {
	s.grantTypes[gt] = f
}

// UnregisterGrantType removes the handler for a grant type; subsequent
// requests with it fail with unsupported_grant_type.
func (s *AuthorizationServer) UnregisterGrantType(gt GrantType) {
	delete(s.grantTypes, gt)
}

// RegisterResponseType adds or replaces the handler for a response type.
func (s *AuthorizationServer) RegisterResponseType(rt ResponseType, f ResponseTypeFactory) {
	s.responseTypes[rt] = f
}

// UnregisterResponseType removes the handler for a response type.
func (s *AuthorizationServer) UnregisterResponseType(rt ResponseType) {
	delete(s.responseTypes, rt)
}

// dispatch is the single funnel every endpoint operation passes through.
// It enforces the availability gate before anything else runs (no storage
// access while unavailable) and converts every failure into a shaped error
// Response. Unexpected errors are logged in full and surfaced as an opaque
// server_error.
func (s *AuthorizationServer) dispatch(req *Request, op string, fn func() (*Response, error)) *Response {
	var (
		resp *Response
		err  error
	)
	if !req.Settings.Available {
		err = TemporarilyUnavailable("")
	} else {
		resp, err = fn()
	}
	if err == nil {
		return resp
	}

	var oerr *Error
	if !errors.As(err, &oerr) {
		s.logger.Error("internal error", "operation", op, "error", err)
		oerr = ServerError("")
	} else {
		s.logger.Debug("request rejected", "operation", op, "error_code", string(oerr.Code), "description", oerr.Description)
	}
	return s.errorResponse(req, oerr)
}

// errorResponse shapes the final Response for a protocol error, filling in
// error_uri from the request settings and refreshing the WWW-Authenticate
// challenge for invalid_client.
func (s *AuthorizationServer) errorResponse(req *Request, oerr *Error) *Response {
	errorURI := joinErrorURI(req.Settings.ErrorURI, oerr.Code)

	headers := oerr.Headers.Clone()
	if headers == nil {
		headers = defaultJSONHeaders()
	}
	if oerr.Code == ErrorCodeInvalidClient {
		headers.Set("WWW-Authenticate", formatAuthenticateChallenge(oerr, errorURI))
	}

	return &Response{
		Content: &ErrorResponse{
			Error:       oerr.Code,
			Description: oerr.Description,
			ErrorURI:    errorURI,
		},
		StatusCode: oerr.Status,
		Headers:    headers,
	}
}

// joinErrorURI appends the error code as a path segment of the configured
// base URI. An empty base disables error_uri entirely.
func joinErrorURI(base string, code ErrorCode) string {
	if base == "" {
		return ""
	}
	return strings.TrimSuffix(base, "/") + "/" + string(code)
}

// CreateAuthorizationResponse serves the authorization endpoint. It runs
// every registered handler named in response_type, merges their redirect
// parameters, and answers 302 with the assembled Location. Token-bearing
// parameters go into the URI fragment, everything else into the query
// string (RFC 6749 §4.1.2, §4.2.2).
func (s *AuthorizationServer) CreateAuthorizationResponse(ctx context.Context, req *Request) *Response {
	return s.dispatch(req, "authorize", func() (*Response, error) {
		if err := validateTransportAndMethod(req, http.MethodGet); err != nil {
			return nil, err
		}

		requested := strings.Fields(req.Query.ResponseType)
		if len(requested) == 0 {
			return nil, InvalidRequest("Missing response_type parameter.")
		}

		var (
			contents     []AuthorizationContent
			matched      []ResponseType
			wantFragment bool
		)
		for _, rt := range requested {
			factory, ok := s.responseTypes[ResponseType(rt)]
			if !ok {
				continue
			}
			matched = append(matched, ResponseType(rt))

			handler := factory(s.store)
			if _, err := handler.ValidateRequest(ctx, req); err != nil {
				return nil, err
			}
			content, err := handler.CreateAuthorizationResponse(ctx, req)
			if err != nil {
				return nil, err
			}
			contents = append(contents, content)

			if rt == string(ResponseTypeToken) || rt == string(ResponseTypeIDToken) {
				wantFragment = true
			}
		}
		if len(matched) == 0 {
			return nil, UnsupportedResponseType("")
		}

		params := url.Values{}
		for _, c := range contents {
			c.authorizationParams(params)
		}
		if req.Query.State != "" {
			params.Set("state", req.Query.State)
		}

		// A single token-bearing response type forces everything into
		// the fragment so credentials never reach the callback server.
		var query, fragment url.Values
		if wantFragment {
			fragment = params
		} else {
			query = params
		}

		location, err := BuildURI(req.Query.RedirectURI, query, fragment)
		if err != nil {
			return nil, fmt.Errorf("build redirect URI: %w", err)
		}

		if s.metrics != nil {
			s.metrics.RecordAuthorization(ctx, req.Query.ClientID, req.Query.ResponseType)
		}
		if s.auditor != nil && req.User != nil {
			s.auditor.LogAuthorizationIssued(req.User.ID, req.Query.ClientID, req.Query.ResponseType, req.Query.Scope)
		}

		headers := http.Header{}
		headers.Set("Location", location)
		headers.Set("Cache-Control", "no-store")
		headers.Set("Pragma", "no-cache")
		return &Response{StatusCode: http.StatusFound, Headers: headers}, nil
	})
}

// CreateTokenResponse serves the token endpoint: it dispatches on
// grant_type, runs both phases of the matching handler and answers 200 with
// the minted token.
func (s *AuthorizationServer) CreateTokenResponse(ctx context.Context, req *Request) *Response {
	return s.dispatch(req, "token", func() (*Response, error) {
		if err := validateTransportAndMethod(req, http.MethodPost); err != nil {
			return nil, err
		}

		if req.Post.GrantType == "" {
			return nil, InvalidRequest("Request is missing grant type.")
		}
		factory, ok := s.grantTypes[GrantType(req.Post.GrantType)]
		if !ok {
			return nil, UnsupportedGrantType("")
		}

		handler := factory(s.store)
		client, err := handler.ValidateRequest(ctx, req)
		if err != nil {
			s.auditAuthFailure(req, err)
			return nil, err
		}
		tokenResp, err := handler.CreateTokenResponse(ctx, req)
		if err != nil {
			s.auditAuthFailure(req, err)
			return nil, err
		}

		if s.metrics != nil {
			s.metrics.RecordGrant(ctx, req.Post.GrantType, "success")
		}
		if s.auditor != nil {
			if req.Post.GrantType == string(GrantTypeRefreshToken) {
				s.auditor.LogTokenRefreshed("", client.ClientID, tokenResp.Scope)
			} else {
				s.auditor.LogTokenIssued("", client.ClientID, req.Post.GrantType, tokenResp.Scope)
			}
		}

		return &Response{
			Content:    tokenResp,
			StatusCode: http.StatusOK,
			Headers:    defaultJSONHeaders(),
		}, nil
	})
}

// CreateTokenIntrospectionResponse serves RFC 7662 token introspection.
// The endpoint requires full client authentication; any token that is
// unknown, expired, revoked or belongs to another client yields the one
// fixed inactive shape, so callers learn nothing beyond "not active".
func (s *AuthorizationServer) CreateTokenIntrospectionResponse(ctx context.Context, req *Request) *Response {
	return s.dispatch(req, "introspect", func() (*Response, error) {
		if err := validateTransportAndMethod(req, http.MethodPost); err != nil {
			return nil, err
		}

		clientID, err := s.authenticateClient(ctx, req)
		if err != nil {
			return nil, err
		}
		if req.Post.Token == "" {
			return nil, InvalidRequest("Missing token parameter.")
		}

		q, err := tokenQueryFromRequest(clientID, req)
		if err != nil {
			return nil, err
		}

		token, err := s.store.GetToken(ctx, q)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("get token: %w", err)
		}

		active := err == nil && !token.Revoked && !token.IsExpired()
		if s.metrics != nil {
			s.metrics.RecordIntrospection(ctx, clientID, active)
		}

		var content any
		if active {
			content = &TokenActiveIntrospectionResponse{
				Active:    true,
				Scope:     token.Scope,
				ClientID:  token.ClientID,
				TokenType: token.TokenType,
				Exp:       token.IssuedAt + token.ExpiresIn,
			}
		} else {
			content = &TokenInactiveIntrospectionResponse{Active: false}
		}
		return &Response{
			Content:    content,
			StatusCode: http.StatusOK,
			Headers:    defaultJSONHeaders(),
		}, nil
	})
}

// CreateTokenRevocationResponse serves RFC 7009 token revocation. Per
// §2.2 the endpoint answers 200 whether or not the token existed, so
// revocation cannot be used to probe for live tokens.
func (s *AuthorizationServer) CreateTokenRevocationResponse(ctx context.Context, req *Request) *Response {
	return s.dispatch(req, "revoke", func() (*Response, error) {
		if err := validateTransportAndMethod(req, http.MethodPost); err != nil {
			return nil, err
		}

		clientID, err := s.authenticateClient(ctx, req)
		if err != nil {
			return nil, err
		}
		if req.Post.Token == "" {
			return nil, InvalidRequest("Missing token parameter.")
		}

		q, err := tokenQueryFromRequest(clientID, req)
		if err != nil {
			return nil, err
		}

		if err := s.store.RevokeToken(ctx, q); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("revoke token: %w", err)
		}

		if s.metrics != nil {
			s.metrics.RecordRevocation(ctx, clientID)
		}
		if s.auditor != nil {
			s.auditor.LogTokenRevoked("", clientID, req.Post.TokenTypeHint)
		}

		return &Response{
			Content:    &RevocationResponse{},
			StatusCode: http.StatusOK,
			Headers:    defaultJSONHeaders(),
		}, nil
	})
}

// authenticateClient performs full client authentication for the
// introspection and revocation endpoints.
func (s *AuthorizationServer) authenticateClient(ctx context.Context, req *Request) (string, error) {
	clientID, clientSecret := req.ClientCredentials()
	if clientID == "" {
		return "", InvalidClient("")
	}
	if err := s.store.ValidateClientSecret(ctx, clientID, clientSecret); err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidCredentials) {
			return "", InvalidClient("")
		}
		return "", fmt.Errorf("validate client secret: %w", err)
	}
	return clientID, nil
}

// tokenQueryFromRequest builds the storage lookup for introspection and
// revocation. A recognized hint narrows the search; an unknown hint is
// rejected per RFC 7009 §2.1.
func tokenQueryFromRequest(clientID string, req *Request) (storage.TokenQuery, error) {
	q := storage.TokenQuery{ClientID: clientID, TokenTypeHint: req.Post.TokenTypeHint}
	switch req.Post.TokenTypeHint {
	case "access_token":
		q.AccessToken = req.Post.Token
	case "refresh_token":
		q.RefreshToken = req.Post.Token
	case "":
		q.AccessToken = req.Post.Token
		q.RefreshToken = req.Post.Token
	default:
		return storage.TokenQuery{}, UnsupportedTokenType("")
	}
	return q, nil
}

// auditAuthFailure records failed token-endpoint attempts for forensics.
func (s *AuthorizationServer) auditAuthFailure(req *Request, err error) {
	if s.auditor == nil {
		return
	}
	var oerr *Error
	if !errors.As(err, &oerr) {
		return
	}
	clientID, _ := req.ClientCredentials()
	s.auditor.LogAuthFailure("", clientID, string(oerr.Code))
}
