package oidc

import (
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/halcyonlabs/oauth2core/storage"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := New(Config{
		Issuer:     "https://auth.example.com",
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		KeyID:      "k1",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return issuer
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{SigningKey: []byte("k")}); err == nil {
		t.Error("missing issuer should be rejected")
	}
	if _, err := New(Config{Issuer: "https://auth.example.com"}); err == nil {
		t.Error("missing signing key should be rejected")
	}
}

func TestCreateIDTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)

	signed, err := issuer.CreateIDToken(t.Context(), storage.IDTokenParams{
		ClientID: "client-1",
		UserID:   "user-1",
		Scope:    "openid profile",
		Nonce:    "n-0S6_WzA2Mj",
	})
	if err != nil {
		t.Fatalf("CreateIDToken() error = %v", err)
	}

	claims := jwtv5.MapClaims{}
	token, err := jwtv5.ParseWithClaims(signed, claims, issuer.Keyfunc())
	if err != nil {
		t.Fatalf("parse signed token: %v", err)
	}
	if !token.Valid {
		t.Fatal("token should be valid")
	}

	if claims["iss"] != "https://auth.example.com" {
		t.Errorf("iss = %v", claims["iss"])
	}
	if claims["sub"] != "user-1" {
		t.Errorf("sub = %v", claims["sub"])
	}
	if claims["aud"] != "client-1" {
		t.Errorf("aud = %v", claims["aud"])
	}
	if claims["nonce"] != "n-0S6_WzA2Mj" {
		t.Errorf("nonce = %v", claims["nonce"])
	}
	if claims["scope"] != "openid profile" {
		t.Errorf("scope = %v", claims["scope"])
	}
	if token.Header["kid"] != "k1" {
		t.Errorf("kid header = %v", token.Header["kid"])
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		t.Fatalf("exp claim missing: %v", err)
	}
	if ttl := time.Until(exp.Time); ttl <= 0 || ttl > DefaultTokenTTL {
		t.Errorf("exp %v outside expected window", ttl)
	}
}

func TestCreateIDTokenRequiresUser(t *testing.T) {
	issuer := newTestIssuer(t)
	if _, err := issuer.CreateIDToken(t.Context(), storage.IDTokenParams{ClientID: "c"}); err == nil {
		t.Error("missing user id should be rejected")
	}
}

func TestCreateIDTokenOmitsEmptyNonce(t *testing.T) {
	issuer := newTestIssuer(t)

	signed, err := issuer.CreateIDToken(t.Context(), storage.IDTokenParams{ClientID: "c", UserID: "u"})
	if err != nil {
		t.Fatalf("CreateIDToken() error = %v", err)
	}

	claims := jwtv5.MapClaims{}
	if _, err := jwtv5.ParseWithClaims(signed, claims, issuer.Keyfunc()); err != nil {
		t.Fatalf("parse signed token: %v", err)
	}
	if _, present := claims["nonce"]; present {
		t.Error("nonce claim should be absent when no nonce was requested")
	}
}
