// Package memory provides the reference in-memory storage.Storage
// implementation: mutex-guarded maps, bcrypt-hashed credentials, a TTL
// cleanup goroutine and OpenTelemetry spans per operation.
//
// The store is safe for concurrent use. It is intended for tests, examples
// and single-node deployments; use the redis store (or your own) when
// persistence matters.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/halcyonlabs/oauth2core/instrumentation"
	"github.com/halcyonlabs/oauth2core/security"
	"github.com/halcyonlabs/oauth2core/storage"
)

// DefaultCleanupInterval is how often the background sweep removes expired
// codes and tokens.
const DefaultCleanupInterval = 5 * time.Minute

type clientRecord struct {
	client     storage.Client
	secretHash []byte // nil for public clients
}

type userRecord struct {
	user         storage.User
	passwordHash []byte
}

// Store is an in-memory storage.Storage implementation.
type Store struct {
	mu            sync.RWMutex
	clients       map[string]*clientRecord
	users         map[string]*userRecord // keyed by username
	accessTokens  map[string]*storage.Token
	refreshTokens map[string]*storage.Token
	codes         map[string]*storage.AuthorizationCode

	logger *slog.Logger
	inst   *instrumentation.Instrumentation
	tracer trace.Tracer

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// New creates a Store with the default cleanup interval.
func New() *Store {
	return NewWithCleanupInterval(DefaultCleanupInterval)
}

// NewWithCleanupInterval creates a Store sweeping at the given interval.
func NewWithCleanupInterval(interval time.Duration) *Store {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	s := &Store{
		clients:         make(map[string]*clientRecord),
		users:           make(map[string]*userRecord),
		accessTokens:    make(map[string]*storage.Token),
		refreshTokens:   make(map[string]*storage.Token),
		codes:           make(map[string]*storage.AuthorizationCode),
		logger:          slog.Default(),
		cleanupInterval: interval,
		stopCleanup:     make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation enables OpenTelemetry spans and metrics for storage
// operations.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inst = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// AddClient registers a client. Confidential clients must supply a secret,
// which is stored bcrypt-hashed; public clients must not.
func (s *Store) AddClient(client *storage.Client, clientSecret string) error {
	if client == nil || client.ClientID == "" {
		return errors.New("memory: client with a client_id is required")
	}
	if client.Public && clientSecret != "" {
		return errors.New("memory: public clients cannot have a secret")
	}
	if !client.Public && clientSecret == "" {
		return errors.New("memory: confidential clients require a secret")
	}

	var hash []byte
	if clientSecret != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("memory: hash client secret: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ClientID] = &clientRecord{client: *client, secretHash: hash}
	return nil
}

// AddUser registers a resource owner with a bcrypt-hashed password.
func (s *Store) AddUser(user *storage.User, password string) error {
	if user == nil || user.Username == "" {
		return errors.New("memory: user with a username is required")
	}
	if password == "" {
		return errors.New("memory: password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("memory: hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = &userRecord{user: *user, passwordHash: hash}
	return nil
}

// GetClient implements storage.Storage.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startSpan(ctx, "get_client")
	defer span.End()

	start := time.Now()
	var err error
	defer func() { s.recordOperation(ctx, span, "get_client", err, start) }()

	s.mu.RLock()
	rec, ok := s.clients[clientID]
	s.mu.RUnlock()

	if !ok {
		err = fmt.Errorf("%w: client %q", storage.ErrNotFound, clientID)
		return nil, err
	}
	client := rec.client
	return &client, nil
}

// ValidateClientSecret implements storage.Storage. Public clients accept
// only an empty secret; confidential clients are verified against the
// bcrypt hash.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	ctx, span := s.startSpan(ctx, "validate_client_secret")
	defer span.End()

	start := time.Now()
	var err error
	defer func() { s.recordOperation(ctx, span, "validate_client_secret", err, start) }()

	s.mu.RLock()
	rec, ok := s.clients[clientID]
	s.mu.RUnlock()

	if !ok {
		err = fmt.Errorf("%w: client %q", storage.ErrNotFound, clientID)
		return err
	}
	if rec.secretHash == nil {
		if clientSecret != "" {
			err = storage.ErrInvalidCredentials
		}
		return err
	}
	if bcrypt.CompareHashAndPassword(rec.secretHash, []byte(clientSecret)) != nil {
		err = storage.ErrInvalidCredentials
		return err
	}
	return nil
}

// SaveToken implements storage.Storage.
func (s *Store) SaveToken(ctx context.Context, token *storage.Token) error {
	ctx, span := s.startSpan(ctx, "save_token")
	defer span.End()

	start := time.Now()
	var err error
	defer func() { s.recordOperation(ctx, span, "save_token", err, start) }()

	if token == nil || token.AccessToken == "" {
		err = errors.New("memory: token with an access_token is required")
		return err
	}

	stored := *token

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens[stored.AccessToken] = &stored
	if stored.RefreshToken != "" {
		s.refreshTokens[stored.RefreshToken] = &stored
	}
	return nil
}

// GetToken implements storage.Storage.
func (s *Store) GetToken(ctx context.Context, q storage.TokenQuery) (*storage.Token, error) {
	ctx, span := s.startSpan(ctx, "get_token")
	defer span.End()

	start := time.Now()
	var err error
	defer func() { s.recordOperation(ctx, span, "get_token", err, start) }()

	s.mu.RLock()
	token := s.lookupLocked(q)
	s.mu.RUnlock()

	if token == nil {
		err = fmt.Errorf("%w: token", storage.ErrNotFound)
		return nil, err
	}
	copied := *token
	return &copied, nil
}

// RevokeToken implements storage.Storage. The token is marked revoked, not
// deleted, so introspection keeps answering with the fixed inactive shape.
func (s *Store) RevokeToken(ctx context.Context, q storage.TokenQuery) error {
	ctx, span := s.startSpan(ctx, "revoke_token")
	defer span.End()

	start := time.Now()
	var err error
	defer func() { s.recordOperation(ctx, span, "revoke_token", err, start) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.lookupLocked(q)
	if token == nil {
		err = fmt.Errorf("%w: token", storage.ErrNotFound)
		return err
	}
	token.Revoked = true
	return nil
}

// lookupLocked finds the token matching q. The hint orders the search but a
// wrong hint never hides a token. Caller holds at least a read lock.
func (s *Store) lookupLocked(q storage.TokenQuery) *storage.Token {
	check := func(t *storage.Token, ok bool) *storage.Token {
		if !ok {
			return nil
		}
		if q.ClientID != "" && t.ClientID != q.ClientID {
			return nil
		}
		return t
	}

	maps := []func() *storage.Token{
		func() *storage.Token {
			if q.AccessToken == "" {
				return nil
			}
			t, ok := s.accessTokens[q.AccessToken]
			return check(t, ok)
		},
		func() *storage.Token {
			if q.RefreshToken == "" {
				return nil
			}
			t, ok := s.refreshTokens[q.RefreshToken]
			return check(t, ok)
		},
	}
	if q.TokenTypeHint == "refresh_token" {
		maps[0], maps[1] = maps[1], maps[0]
	}

	for _, lookup := range maps {
		if t := lookup(); t != nil {
			return t
		}
	}
	return nil
}

// SaveAuthorizationCode implements storage.Storage.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	ctx, span := s.startSpan(ctx, "save_authorization_code")
	defer span.End()

	start := time.Now()
	var err error
	defer func() { s.recordOperation(ctx, span, "save_authorization_code", err, start) }()

	if code == nil || code.Code == "" {
		err = errors.New("memory: authorization code value is required")
		return err
	}

	stored := *code

	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[codeKey(stored.ClientID, stored.Code)] = &stored
	return nil
}

// GetAuthorizationCode implements storage.Storage.
func (s *Store) GetAuthorizationCode(ctx context.Context, clientID, code string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startSpan(ctx, "get_authorization_code")
	defer span.End()

	start := time.Now()
	var err error
	defer func() { s.recordOperation(ctx, span, "get_authorization_code", err, start) }()

	s.mu.RLock()
	stored, ok := s.codes[codeKey(clientID, code)]
	s.mu.RUnlock()

	if !ok {
		err = fmt.Errorf("%w: authorization code", storage.ErrNotFound)
		return nil, err
	}
	copied := *stored
	return &copied, nil
}

// DeleteAuthorizationCode implements storage.Storage. Idempotent.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, clientID, code string) error {
	ctx, span := s.startSpan(ctx, "delete_authorization_code")
	defer span.End()

	start := time.Now()
	defer func() { s.recordOperation(ctx, span, "delete_authorization_code", nil, start) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, codeKey(clientID, code))
	return nil
}

// Authenticate implements storage.Storage.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*storage.User, error) {
	ctx, span := s.startSpan(ctx, "authenticate")
	defer span.End()

	start := time.Now()
	var err error
	defer func() { s.recordOperation(ctx, span, "authenticate", err, start) }()

	s.mu.RLock()
	rec, ok := s.users[username]
	s.mu.RUnlock()

	if !ok {
		err = fmt.Errorf("%w: user %q", storage.ErrNotFound, username)
		return nil, err
	}
	if bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)) != nil {
		err = storage.ErrInvalidCredentials
		return nil, err
	}
	user := rec.user
	return &user, nil
}

func codeKey(clientID, code string) string {
	return clientID + "\x00" + code
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup drops expired codes and fully expired tokens. Expiry uses the
// clock-skew grace period so entities minted on a slightly-fast node are
// not reaped early.
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0

	for key, code := range s.codes {
		if security.IsExpired(time.Unix(code.AuthTime+code.ExpiresIn, 0)) {
			delete(s.codes, key)
			cleaned++
		}
	}

	for key, token := range s.accessTokens {
		refreshExpiry := token.IssuedAt + token.RefreshTokenExpiresIn
		if token.RefreshTokenExpiresIn == 0 {
			continue
		}
		if security.IsExpired(token.ExpiresAt()) && security.IsExpired(time.Unix(refreshExpiry, 0)) {
			delete(s.accessTokens, key)
			if token.RefreshToken != "" {
				delete(s.refreshTokens, token.RefreshToken)
			}
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("storage cleanup completed",
			"removed", cleaned,
			"codes", len(s.codes),
			"tokens", len(s.accessTokens))
	}
}

// ============================================================
// Instrumentation helpers
// ============================================================

// startSpan starts a span for a storage operation.
func (s *Store) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))
}

// recordOperation records metrics for a storage operation and sets the
// span status.
func (s *Store) recordOperation(ctx context.Context, span trace.Span, operation string, err error, start time.Time) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if s.inst == nil {
		return
	}
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0
	result := "success"
	if err != nil {
		result = "error"
	}
	s.inst.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
