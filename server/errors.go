package server

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is one of the closed set of OAuth 2.0 error codes this engine
// can emit. No other code ever appears in an error response.
type ErrorCode string

// OAuth error codes as constants.
const (
	ErrorCodeInvalidRequest          ErrorCode = "invalid_request"
	ErrorCodeInvalidClient           ErrorCode = "invalid_client"
	ErrorCodeInvalidGrant            ErrorCode = "invalid_grant"
	ErrorCodeInvalidScope            ErrorCode = "invalid_scope"
	ErrorCodeUnauthorizedClient      ErrorCode = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrorCodeUnsupportedTokenType    ErrorCode = "unsupported_token_type"
	ErrorCodeInsecureTransport       ErrorCode = "insecure_transport"
	ErrorCodeMismatchingState        ErrorCode = "mismatching_state"
	ErrorCodeMethodNotAllowed        ErrorCode = "method_is_not_allowed"
	ErrorCodeServerError             ErrorCode = "server_error"
	ErrorCodeTemporarilyUnavailable  ErrorCode = "temporarily_unavailable"
	ErrorCodeAccessDenied            ErrorCode = "access_denied"
)

// Error is a protocol-level failure. It implements error so the state
// machines can return it through ordinary error plumbing; the dispatch layer
// recognizes it with errors.As and shapes the final Response from it.
type Error struct {
	Code        ErrorCode   // OAuth error code
	Description string      // human-readable error_description
	Status      int         // HTTP status code
	Headers     http.Header // headers the error response must carry
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// defaultDescriptions supplies the error_description used when a
// constructor is called with an empty description.
var defaultDescriptions = map[ErrorCode]string{
	ErrorCodeInvalidRequest:          "The request is missing a required parameter or is otherwise malformed.",
	ErrorCodeInvalidClient:           "Client authentication failed.",
	ErrorCodeInvalidGrant:            "The provided grant is invalid, expired or revoked.",
	ErrorCodeInvalidScope:            "The requested scope is invalid or exceeds the granted scope.",
	ErrorCodeUnauthorizedClient:      "The client is not authorized to use this grant type.",
	ErrorCodeUnsupportedGrantType:    "The grant type is not supported by the authorization server.",
	ErrorCodeUnsupportedResponseType: "The response type is not supported by the authorization server.",
	ErrorCodeUnsupportedTokenType:    "The token type is not supported by the authorization server.",
	ErrorCodeInsecureTransport:       "OAuth 2.0 MUST utilize HTTPS.",
	ErrorCodeMismatchingState:        "CSRF warning! State parameters do not match.",
	ErrorCodeMethodNotAllowed:        "HTTP method is not allowed.",
	ErrorCodeServerError:             "The authorization server encountered an unexpected condition.",
	ErrorCodeTemporarilyUnavailable:  "The authorization server is temporarily unavailable.",
	ErrorCodeAccessDenied:            "The resource owner or authorization server denied the request.",
}

// NewError creates an Error with the standard no-store response headers.
// Prefer the per-code constructors below.
func NewError(code ErrorCode, description string, status int) *Error {
	if description == "" {
		description = defaultDescriptions[code]
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	return &Error{
		Code:        code,
		Description: description,
		Status:      status,
		Headers:     h,
	}
}

// Per-code constructors. Every protocol failure in the engine goes through
// one of these, which keeps the emitted codes a closed set.

// InvalidRequest indicates a malformed request or a missing parameter.
func InvalidRequest(desc string) *Error {
	return NewError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
}

// InvalidClient indicates failed client authentication. The 401 response
// carries a WWW-Authenticate challenge per RFC 6749 §5.2.
func InvalidClient(desc string) *Error {
	e := NewError(ErrorCodeInvalidClient, desc, http.StatusUnauthorized)
	e.Headers.Set("WWW-Authenticate", formatAuthenticateChallenge(e, ""))
	return e
}

// InvalidGrant indicates an invalid, expired or revoked authorization code
// or refresh token.
func InvalidGrant(desc string) *Error {
	return NewError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
}

// InvalidScope indicates a scope outside what the client registered.
func InvalidScope(desc string) *Error {
	return NewError(ErrorCodeInvalidScope, desc, http.StatusBadRequest)
}

// UnauthorizedClient indicates the client may not use the requested grant.
func UnauthorizedClient(desc string) *Error {
	return NewError(ErrorCodeUnauthorizedClient, desc, http.StatusBadRequest)
}

// UnsupportedGrantType indicates a grant type with no registered handler.
func UnsupportedGrantType(desc string) *Error {
	return NewError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
}

// UnsupportedResponseType indicates a response type with no registered
// handler, or one the client is not allowed to use.
func UnsupportedResponseType(desc string) *Error {
	return NewError(ErrorCodeUnsupportedResponseType, desc, http.StatusBadRequest)
}

// UnsupportedTokenType indicates a token_type_hint the server cannot act on.
func UnsupportedTokenType(desc string) *Error {
	return NewError(ErrorCodeUnsupportedTokenType, desc, http.StatusBadRequest)
}

// InsecureTransport indicates a non-HTTPS endpoint request.
func InsecureTransport(desc string) *Error {
	return NewError(ErrorCodeInsecureTransport, desc, http.StatusBadRequest)
}

// MismatchingState indicates a failed PKCE or state check.
func MismatchingState(desc string) *Error {
	return NewError(ErrorCodeMismatchingState, desc, http.StatusBadRequest)
}

// MethodNotAllowed indicates a request with the wrong HTTP method. The 405
// response carries an Allow header listing the permitted methods.
func MethodNotAllowed(allowed ...string) *Error {
	e := NewError(ErrorCodeMethodNotAllowed, "", http.StatusMethodNotAllowed)
	e.Headers.Set("Allow", strings.Join(allowed, ", "))
	return e
}

// ServerError indicates an unexpected internal failure. Details stay in the
// server log; the response carries only the generic description.
func ServerError(desc string) *Error {
	return NewError(ErrorCodeServerError, desc, http.StatusBadRequest)
}

// TemporarilyUnavailable indicates the server is not accepting requests.
func TemporarilyUnavailable(desc string) *Error {
	return NewError(ErrorCodeTemporarilyUnavailable, desc, http.StatusBadRequest)
}

// AccessDenied indicates the resource owner refused the request.
func AccessDenied(desc string) *Error {
	return NewError(ErrorCodeAccessDenied, desc, http.StatusBadRequest)
}

// formatAuthenticateChallenge renders the WWW-Authenticate header value for
// invalid_client responses. Quoted values are escaped to keep the header
// well-formed regardless of the description text.
func formatAuthenticateChallenge(e *Error, errorURI string) string {
	var b strings.Builder
	b.WriteString(`Basic error="`)
	b.WriteString(escapeQuotedString(string(e.Code)))
	b.WriteString(`"`)
	if e.Description != "" {
		b.WriteString(`, error_description="`)
		b.WriteString(escapeQuotedString(e.Description))
		b.WriteString(`"`)
	}
	if errorURI != "" {
		b.WriteString(`, error_uri="`)
		b.WriteString(escapeQuotedString(errorURI))
		b.WriteString(`"`)
	}
	return b.String()
}

// escapeQuotedString escapes backslashes and double quotes for use inside an
// HTTP quoted-string.
func escapeQuotedString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
