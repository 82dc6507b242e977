// Package server implements the OAuth 2.0 authorization-server protocol
// engine: the abstract Request/Response model, the closed error taxonomy,
// the grant-type and response-type state machines (RFC 6749), PKCE
// verification (RFC 7636), token introspection (RFC 7662) and token
// revocation (RFC 7009).
//
// The engine is transport-agnostic. It consumes server.Request values and
// produces server.Response values; the root package oauth2core adapts those
// to net/http. Persistence goes through storage.Storage, so the engine never
// touches a database directly.
//
// The central type is AuthorizationServer. Its four operations —
// CreateAuthorizationResponse, CreateTokenResponse,
// CreateTokenIntrospectionResponse and CreateTokenRevocationResponse — all
// funnel through one dispatch point that enforces the availability gate and
// turns every failure, expected or not, into a well-formed protocol
// Response. Callers never see a raw error escape an endpoint operation.
package server
