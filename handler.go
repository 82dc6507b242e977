package oauth2core

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/halcyonlabs/oauth2core/instrumentation"
	"github.com/halcyonlabs/oauth2core/security"
	"github.com/halcyonlabs/oauth2core/server"
	"github.com/halcyonlabs/oauth2core/storage"
)

// Endpoint paths registered by Handler.Routes.
const (
	PathAuthorize     = "/authorize"
	PathToken         = "/token"
	PathIntrospection = "/introspect"
	PathRevocation    = "/revoke"
)

// UserResolver maps an incoming HTTP request to the authenticated resource
// owner, or nil when no session exists. Session management (cookies, login
// pages, SSO) is the embedding application's concern; the engine only needs
// the outcome.
type UserResolver func(r *http.Request) *storage.User

// Handler is a thin net/http adapter for the protocol engine. It translates
// *http.Request into server.Request, runs the matching engine operation and
// writes the resulting server.Response back.
type Handler struct {
	server       *server.AuthorizationServer
	settings     server.Settings
	logger       *slog.Logger
	userResolver UserResolver
	rateLimiter  *security.RateLimiter
	inst         *instrumentation.Instrumentation
	tracer       trace.Tracer
	trustProxy   bool
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSettings sets the per-request policy handed to the engine. Defaults to
// server.DefaultSettings().
func WithSettings(s server.Settings) HandlerOption {
	return func(h *Handler) { h.settings = s }
}

// WithHandlerLogger sets the structured logger. Defaults to slog.Default().
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// WithUserResolver sets the resource-owner session hook used by the
// authorization endpoint.
func WithUserResolver(resolve UserResolver) HandlerOption {
	return func(h *Handler) { h.userResolver = resolve }
}

// WithRateLimiter enables per-IP rate limiting on every endpoint.
func WithRateLimiter(rl *security.RateLimiter) HandlerOption {
	return func(h *Handler) { h.rateLimiter = rl }
}

// WithInstrumentation enables HTTP metrics and tracing.
func WithInstrumentation(inst *instrumentation.Instrumentation) HandlerOption {
	return func(h *Handler) {
		h.inst = inst
		h.tracer = inst.Tracer("http")
	}
}

// WithTrustProxy makes client IP extraction honor X-Forwarded-For and
// X-Real-IP. Only enable behind a proxy you control.
func WithTrustProxy(trust bool) HandlerOption {
	return func(h *Handler) { h.trustProxy = trust }
}

// NewHandler creates an HTTP adapter around the given engine.
func NewHandler(srv *server.AuthorizationServer, opts ...HandlerOption) *Handler {
	h := &Handler{
		server:   srv,
		settings: server.DefaultSettings(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the four protocol endpoints on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc(PathAuthorize, h.ServeAuthorization)
	mux.HandleFunc(PathToken, h.ServeToken)
	mux.HandleFunc(PathIntrospection, h.ServeIntrospection)
	mux.HandleFunc(PathRevocation, h.ServeRevocation)
}

// ServeAuthorization serves the authorization endpoint.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "authorization", h.server.CreateAuthorizationResponse)
}

// ServeToken serves the token endpoint.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "token", h.server.CreateTokenResponse)
}

// ServeIntrospection serves the RFC 7662 introspection endpoint.
func (h *Handler) ServeIntrospection(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "introspection", h.server.CreateTokenIntrospectionResponse)
}

// ServeRevocation serves the RFC 7009 revocation endpoint.
func (h *Handler) ServeRevocation(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "revocation", h.server.CreateTokenRevocationResponse)
}

type operation func(ctx context.Context, req *server.Request) *server.Response

// serve is the shared pipeline: rate limit, translate, run, write, record.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, endpoint string, op operation) {
	start := time.Now()
	ctx := r.Context()

	if h.tracer != nil {
		var span trace.Span
		ctx, span = h.tracer.Start(ctx, "oauth.http."+endpoint)
		defer span.End()
		r = r.WithContext(ctx)
	}

	if h.rateLimited(w, r, endpoint) {
		h.recordHTTPRequest(r, endpoint, http.StatusTooManyRequests, start)
		return
	}

	req, err := h.requestFromHTTP(r)
	if err != nil {
		h.logger.Warn("malformed request body", "endpoint", endpoint, "error", err)
		h.writeJSONError(w, http.StatusBadRequest, "invalid_request", "Malformed request body.")
		h.recordHTTPRequest(r, endpoint, http.StatusBadRequest, start)
		return
	}

	resp := op(ctx, req)
	h.writeResponse(w, resp)
	h.recordHTTPRequest(r, endpoint, resp.StatusCode, start)
}

// rateLimited enforces the per-IP limiter. Returns true when the request was
// rejected and the 429 already written.
func (h *Handler) rateLimited(w http.ResponseWriter, r *http.Request, endpoint string) bool {
	if h.rateLimiter == nil {
		return false
	}
	ip := security.GetClientIP(r, h.trustProxy)
	if h.rateLimiter.Allow(ip) {
		return false
	}

	h.logger.Warn("rate limit exceeded", "ip", ip, "endpoint", endpoint)
	if h.inst != nil {
		h.inst.Metrics().RecordRateLimitExceeded(r.Context(), endpoint)
	}

	w.Header().Set("Retry-After", "60")
	h.writeJSONError(w, http.StatusTooManyRequests, "temporarily_unavailable", "Rate limit exceeded. Please try again later.")
	return true
}

// requestFromHTTP translates an incoming HTTP request into the engine's
// transport-agnostic form.
func (h *Handler) requestFromHTTP(r *http.Request) (*server.Request, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}

	q := r.URL.Query()
	req := &server.Request{
		Method:  r.Method,
		Headers: r.Header,
		URL:     requestURL(r),
		Query: server.Query{
			ClientID:            q.Get("client_id"),
			RedirectURI:         q.Get("redirect_uri"),
			ResponseType:        q.Get("response_type"),
			State:               q.Get("state"),
			Scope:               q.Get("scope"),
			Nonce:               q.Get("nonce"),
			CodeChallenge:       q.Get("code_challenge"),
			CodeChallengeMethod: q.Get("code_challenge_method"),
		},
		Post: server.Post{
			GrantType:     r.PostFormValue("grant_type"),
			ClientID:      r.PostFormValue("client_id"),
			ClientSecret:  r.PostFormValue("client_secret"),
			RedirectURI:   r.PostFormValue("redirect_uri"),
			Scope:         r.PostFormValue("scope"),
			Username:      r.PostFormValue("username"),
			Password:      r.PostFormValue("password"),
			RefreshToken:  r.PostFormValue("refresh_token"),
			Code:          r.PostFormValue("code"),
			CodeVerifier:  r.PostFormValue("code_verifier"),
			Token:         r.PostFormValue("token"),
			TokenTypeHint: r.PostFormValue("token_type_hint"),
		},
		Settings: h.settings,
	}

	if h.userResolver != nil {
		req.User = h.userResolver(r)
	}
	return req, nil
}

// requestURL reconstructs the full request URL. r.URL on a server request
// carries no scheme or host, and the engine's transport gate needs both.
func requestURL(r *http.Request) *url.URL {
	u := *r.URL
	u.Host = r.Host
	if r.TLS != nil {
		u.Scheme = "https"
	} else {
		u.Scheme = "http"
	}
	return &u
}

// writeResponse writes an engine Response verbatim: headers, status and the
// JSON-encoded content when present.
func (h *Handler) writeResponse(w http.ResponseWriter, resp *server.Response) {
	for key, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Content != nil {
		if err := json.NewEncoder(w).Encode(resp.Content); err != nil {
			h.logger.Error("failed to encode response body", "error", err)
		}
	}
}

// writeJSONError writes an adapter-level error in the wire shape of the
// engine's error responses.
func (h *Handler) writeJSONError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

// recordHTTPRequest records adapter-level metrics for the request.
func (h *Handler) recordHTTPRequest(r *http.Request, endpoint string, status int, start time.Time) {
	if h.inst == nil {
		return
	}
	h.inst.Metrics().RecordHTTPRequest(r.Context(), r.Method, endpoint,
		status, float64(time.Since(start).Milliseconds()))
}
