// Package oidc provides a minimal OpenID Connect ID-token issuer backing
// the id_token response type. It implements storage.IDTokenIssuer; embed it
// next to a Storage implementation to enable id_token on the engine.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/halcyonlabs/oauth2core/storage"
)

// DefaultTokenTTL is the ID-token lifetime used when Config.TTL is zero.
const DefaultTokenTTL = 15 * time.Minute

// Config configures an Issuer.
type Config struct {
	// Issuer is the value of the iss claim, typically the server's
	// public base URL.
	Issuer string

	// SigningKey is the HMAC secret for HS256 signing.
	SigningKey []byte

	// KeyID, when set, is placed in the kid header so verifiers can
	// select the right key during rotation.
	KeyID string

	// TTL is the ID-token lifetime. Zero means DefaultTokenTTL.
	TTL time.Duration
}

// Issuer signs ID tokens with HS256.
type Issuer struct {
	issuer string
	key    []byte
	keyID  string
	ttl    time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// New creates an Issuer.
func New(cfg Config) (*Issuer, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("oidc: issuer is required")
	}
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("oidc: signing key is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{
		issuer: cfg.Issuer,
		key:    cfg.SigningKey,
		keyID:  cfg.KeyID,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// CreateIDToken implements storage.IDTokenIssuer. The sub claim is the user
// ID, aud the client ID; the nonce from the authorization request is
// carried through verbatim when present.
func (i *Issuer) CreateIDToken(ctx context.Context, p storage.IDTokenParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.UserID == "" {
		return "", errors.New("oidc: user id is required")
	}

	now := i.now()
	claims := jwtv5.MapClaims{
		"iss": i.issuer,
		"sub": p.UserID,
		"aud": p.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
	}
	if p.Scope != "" {
		claims["scope"] = p.Scope
	}
	if p.Nonce != "" {
		claims["nonce"] = p.Nonce
	}

	token := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	token.Header["typ"] = "JWT"
	if i.keyID != "" {
		token.Header["kid"] = i.keyID
	}

	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("oidc: sign id token: %w", err)
	}
	return signed, nil
}

// Keyfunc returns a jwt.Keyfunc for verifying tokens this issuer signed.
// Intended for tests and for embedding applications that validate their own
// ID tokens.
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("oidc: unexpected signing method %v", t.Header["alg"])
		}
		return i.key, nil
	}
}
