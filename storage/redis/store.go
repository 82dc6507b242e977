// Package redis provides a Redis-backed storage.Storage implementation on
// go-redis/v9. Entities are stored as JSON with per-key TTLs derived from
// their protocol lifetimes, so Redis expiry does the retention sweeping.
//
// Key layout (all under the configured prefix):
//
//	client:<client_id>        clientRecord JSON, no TTL
//	user:<username>           userRecord JSON, no TTL
//	code:<client_id>:<code>   AuthorizationCode JSON, TTL = code lifetime
//	token:access:<token>      Token JSON, TTL = refresh lifetime
//	token:refresh:<token>     access-token index, same TTL
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/halcyonlabs/oauth2core/security"
	"github.com/halcyonlabs/oauth2core/storage"
)

// DefaultKeyPrefix namespaces all keys written by the store.
const DefaultKeyPrefix = "oauth2core:"

// Config holds connection settings.
type Config struct {
	// Addr is the Redis host:port.
	Addr string

	// Password authenticates against Redis; empty for none.
	Password string

	// DB selects the Redis logical database.
	DB int

	// KeyPrefix namespaces the store's keys. Empty means
	// DefaultKeyPrefix.
	KeyPrefix string

	// DialTimeout bounds the initial connection check. Zero means five
	// seconds.
	DialTimeout time.Duration
}

// Store is a Redis-backed storage.Storage implementation.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	logger *slog.Logger
}

type clientRecord struct {
	Client     storage.Client `json:"client"`
	SecretHash []byte         `json:"secret_hash,omitempty"`
}

type userRecord struct {
	User         storage.User `json:"user"`
	PasswordHash []byte       `json:"password_hash"`
}

// New connects to Redis and verifies the connection with a ping.
func New(cfg Config) (*Store, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	return NewWithClient(rdb, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client. Useful for tests and for sharing
// a connection pool with the embedding application.
func NewWithClient(rdb redis.UniversalClient, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{
		rdb:    rdb,
		prefix: keyPrefix,
		logger: slog.Default(),
	}
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) clientKey(clientID string) string { return s.prefix + "client:" + clientID }
func (s *Store) userKey(username string) string   { return s.prefix + "user:" + username }
func (s *Store) codeKey(clientID, code string) string {
	return s.prefix + "code:" + clientID + ":" + code
}
func (s *Store) accessKey(token string) string  { return s.prefix + "token:access:" + token }
func (s *Store) refreshKey(token string) string { return s.prefix + "token:refresh:" + token }

// AddClient registers a client, hashing the secret with bcrypt.
func (s *Store) AddClient(ctx context.Context, client *storage.Client, clientSecret string) error {
	if client == nil || client.ClientID == "" {
		return errors.New("redis: client with a client_id is required")
	}
	if client.Public && clientSecret != "" {
		return errors.New("redis: public clients cannot have a secret")
	}
	if !client.Public && clientSecret == "" {
		return errors.New("redis: confidential clients require a secret")
	}

	rec := clientRecord{Client: *client}
	if clientSecret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("redis: hash client secret: %w", err)
		}
		rec.SecretHash = hash
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal client: %w", err)
	}
	if err := s.rdb.Set(ctx, s.clientKey(client.ClientID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: save client: %w", err)
	}
	return nil
}

// AddUser registers a resource owner with a bcrypt-hashed password.
func (s *Store) AddUser(ctx context.Context, user *storage.User, password string) error {
	if user == nil || user.Username == "" {
		return errors.New("redis: user with a username is required")
	}
	if password == "" {
		return errors.New("redis: password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("redis: hash password: %w", err)
	}

	data, err := json.Marshal(userRecord{User: *user, PasswordHash: hash})
	if err != nil {
		return fmt.Errorf("redis: marshal user: %w", err)
	}
	if err := s.rdb.Set(ctx, s.userKey(user.Username), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: save user: %w", err)
	}
	return nil
}

func (s *Store) getClientRecord(ctx context.Context, clientID string) (*clientRecord, error) {
	data, err := s.rdb.Get(ctx, s.clientKey(clientID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: client %q", storage.ErrNotFound, clientID)
		}
		return nil, fmt.Errorf("redis: get client: %w", err)
	}
	var rec clientRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("redis: unmarshal client: %w", err)
	}
	return &rec, nil
}

// GetClient implements storage.Storage.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	rec, err := s.getClientRecord(ctx, clientID)
	if err != nil {
		return nil, err
	}
	client := rec.Client
	return &client, nil
}

// ValidateClientSecret implements storage.Storage.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	rec, err := s.getClientRecord(ctx, clientID)
	if err != nil {
		return err
	}
	if rec.SecretHash == nil {
		if clientSecret != "" {
			return storage.ErrInvalidCredentials
		}
		return nil
	}
	if bcrypt.CompareHashAndPassword(rec.SecretHash, []byte(clientSecret)) != nil {
		return storage.ErrInvalidCredentials
	}
	return nil
}

// SaveToken implements storage.Storage. The access-token key holds the full
// entity; the refresh-token key is an index pointing back at it. Both
// expire with the refresh lifetime so revoked tokens stay introspectable
// until they would have expired anyway.
func (s *Store) SaveToken(ctx context.Context, token *storage.Token) error {
	if token == nil || token.AccessToken == "" {
		return errors.New("redis: token with an access_token is required")
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("redis: marshal token: %w", err)
	}

	ttl := tokenTTL(token)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.accessKey(token.AccessToken), data, ttl)
	if token.RefreshToken != "" {
		pipe.Set(ctx, s.refreshKey(token.RefreshToken), token.AccessToken, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save token: %w", err)
	}
	return nil
}

// GetToken implements storage.Storage.
func (s *Store) GetToken(ctx context.Context, q storage.TokenQuery) (*storage.Token, error) {
	token, _, err := s.findToken(ctx, q)
	return token, err
}

// RevokeToken implements storage.Storage. The entity is rewritten in place
// with KEEPTTL so its retention window is unchanged.
func (s *Store) RevokeToken(ctx context.Context, q storage.TokenQuery) error {
	token, key, err := s.findToken(ctx, q)
	if err != nil {
		return err
	}

	token.Revoked = true
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("redis: marshal token: %w", err)
	}
	if err := s.rdb.Set(ctx, key, data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("redis: revoke token: %w", err)
	}
	return nil
}

// findToken resolves a TokenQuery to the stored entity and its access key.
// The hint orders the search; a wrong hint never hides a token.
func (s *Store) findToken(ctx context.Context, q storage.TokenQuery) (*storage.Token, string, error) {
	lookups := []func() (*storage.Token, string, error){
		func() (*storage.Token, string, error) { return s.tokenByAccess(ctx, q.AccessToken) },
		func() (*storage.Token, string, error) { return s.tokenByRefresh(ctx, q.RefreshToken) },
	}
	if q.TokenTypeHint == "refresh_token" {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}

	for _, lookup := range lookups {
		token, key, err := lookup()
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, "", err
		}
		if q.ClientID != "" && token.ClientID != q.ClientID {
			continue
		}
		return token, key, nil
	}
	return nil, "", fmt.Errorf("%w: token", storage.ErrNotFound)
}

func (s *Store) tokenByAccess(ctx context.Context, accessToken string) (*storage.Token, string, error) {
	if accessToken == "" {
		return nil, "", storage.ErrNotFound
	}
	key := s.accessKey(accessToken)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", storage.ErrNotFound
		}
		return nil, "", fmt.Errorf("redis: get token: %w", err)
	}
	var token storage.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, "", fmt.Errorf("redis: unmarshal token: %w", err)
	}
	return &token, key, nil
}

func (s *Store) tokenByRefresh(ctx context.Context, refreshToken string) (*storage.Token, string, error) {
	if refreshToken == "" {
		return nil, "", storage.ErrNotFound
	}
	accessToken, err := s.rdb.Get(ctx, s.refreshKey(refreshToken)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", storage.ErrNotFound
		}
		return nil, "", fmt.Errorf("redis: get refresh index: %w", err)
	}
	return s.tokenByAccess(ctx, accessToken)
}

// SaveAuthorizationCode implements storage.Storage.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return errors.New("redis: authorization code value is required")
	}

	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("redis: marshal authorization code: %w", err)
	}
	ttl := time.Duration(code.ExpiresIn)*time.Second + security.DefaultClockSkewGracePeriod
	if err := s.rdb.Set(ctx, s.codeKey(code.ClientID, code.Code), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: save authorization code: %w", err)
	}
	return nil
}

// GetAuthorizationCode implements storage.Storage.
func (s *Store) GetAuthorizationCode(ctx context.Context, clientID, code string) (*storage.AuthorizationCode, error) {
	data, err := s.rdb.Get(ctx, s.codeKey(clientID, code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: authorization code", storage.ErrNotFound)
		}
		return nil, fmt.Errorf("redis: get authorization code: %w", err)
	}
	var stored storage.AuthorizationCode
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("redis: unmarshal authorization code: %w", err)
	}
	return &stored, nil
}

// DeleteAuthorizationCode implements storage.Storage. Idempotent.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, clientID, code string) error {
	if err := s.rdb.Del(ctx, s.codeKey(clientID, code)).Err(); err != nil {
		return fmt.Errorf("redis: delete authorization code: %w", err)
	}
	return nil
}

// Authenticate implements storage.Storage.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*storage.User, error) {
	data, err := s.rdb.Get(ctx, s.userKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: user %q", storage.ErrNotFound, username)
		}
		return nil, fmt.Errorf("redis: get user: %w", err)
	}
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("redis: unmarshal user: %w", err)
	}
	if bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)) != nil {
		return nil, storage.ErrInvalidCredentials
	}
	user := rec.User
	return &user, nil
}

// tokenTTL derives the retention window of a token entity: the refresh
// lifetime (or the access lifetime when there is no refresh expiry) plus
// the clock-skew grace period.
func tokenTTL(token *storage.Token) time.Duration {
	lifetime := token.ExpiresIn
	if token.RefreshTokenExpiresIn > lifetime {
		lifetime = token.RefreshTokenExpiresIn
	}
	if lifetime <= 0 {
		lifetime = 1
	}
	return time.Duration(lifetime)*time.Second + security.DefaultClockSkewGracePeriod
}
