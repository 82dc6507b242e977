package storage

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"
)

func TestClientCheckScope(t *testing.T) {
	client := &Client{Scope: "read write profile"}

	tests := []struct {
		name  string
		scope string
		want  bool
	}{
		{name: "empty scope allowed", scope: "", want: true},
		{name: "single registered token", scope: "read", want: true},
		{name: "full registered set", scope: "read write profile", want: true},
		{name: "subset in different order", scope: "profile read", want: true},
		{name: "unknown token", scope: "admin", want: false},
		{name: "mixed known and unknown", scope: "read admin", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := client.CheckScope(tt.scope); got != tt.want {
				t.Errorf("CheckScope(%q) = %v, want %v", tt.scope, got, tt.want)
			}
		})
	}
}

func TestClientCheckRedirectURI(t *testing.T) {
	client := &Client{RedirectURIs: []string{"https://app.example.com/cb"}}

	if !client.CheckRedirectURI("https://app.example.com/cb") {
		t.Error("registered URI should match")
	}
	if client.CheckRedirectURI("https://app.example.com/cb/") {
		t.Error("matching must be literal, trailing slash should not match")
	}
	if client.CheckRedirectURI("https://evil.example.com/cb") {
		t.Error("unregistered URI should not match")
	}
}

func TestClientCheckGrantAndResponseTypes(t *testing.T) {
	client := &Client{
		GrantTypes:    []string{"authorization_code", "refresh_token"},
		ResponseTypes: []string{"code"},
	}

	if !client.CheckGrantType("authorization_code") {
		t.Error("authorization_code should be allowed")
	}
	if client.CheckGrantType("password") {
		t.Error("password should not be allowed")
	}
	if !client.CheckResponseType("code") {
		t.Error("code should be allowed")
	}
	if client.CheckResponseType("token") {
		t.Error("token should not be allowed")
	}
}

func TestAuthorizationCodeCheckCodeChallenge(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	s256Challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	tests := []struct {
		name     string
		code     AuthorizationCode
		verifier string
		want     bool
	}{
		{
			name:     "plain match",
			code:     AuthorizationCode{CodeChallenge: verifier, CodeChallengeMethod: CodeChallengeMethodPlain},
			verifier: verifier,
			want:     true,
		},
		{
			name:     "plain mismatch",
			code:     AuthorizationCode{CodeChallenge: verifier, CodeChallengeMethod: CodeChallengeMethodPlain},
			verifier: "something-else-entirely-but-long-enough",
			want:     false,
		},
		{
			name:     "S256 match",
			code:     AuthorizationCode{CodeChallenge: s256Challenge, CodeChallengeMethod: CodeChallengeMethodS256},
			verifier: verifier,
			want:     true,
		},
		{
			name:     "S256 mismatch",
			code:     AuthorizationCode{CodeChallenge: s256Challenge, CodeChallengeMethod: CodeChallengeMethodS256},
			verifier: verifier + "x",
			want:     false,
		},
		{
			name:     "S256 challenge does not verify as plain",
			code:     AuthorizationCode{CodeChallenge: s256Challenge, CodeChallengeMethod: CodeChallengeMethodPlain},
			verifier: verifier,
			want:     false,
		},
		{
			name:     "unknown method fails closed",
			code:     AuthorizationCode{CodeChallenge: verifier, CodeChallengeMethod: "S512"},
			verifier: verifier,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.code.CheckCodeChallenge(tt.verifier); got != tt.want {
				t.Errorf("CheckCodeChallenge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthorizationCodeIsExpired(t *testing.T) {
	now := time.Now().Unix()

	fresh := &AuthorizationCode{AuthTime: now, ExpiresIn: 300}
	if fresh.IsExpired() {
		t.Error("fresh code should not be expired")
	}

	stale := &AuthorizationCode{AuthTime: now - 301, ExpiresIn: 300}
	if !stale.IsExpired() {
		t.Error("code past its lifetime should be expired")
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Now().Unix()

	tok := &Token{IssuedAt: now, ExpiresIn: 3600, RefreshTokenExpiresIn: 7200}
	if tok.IsExpired() {
		t.Error("fresh access token should not be expired")
	}
	if tok.RefreshTokenExpired() {
		t.Error("fresh refresh token should not be expired")
	}

	old := &Token{IssuedAt: now - 7300, ExpiresIn: 3600, RefreshTokenExpiresIn: 7200}
	if !old.IsExpired() {
		t.Error("old access token should be expired")
	}
	if !old.RefreshTokenExpired() {
		t.Error("old refresh token should be expired")
	}

	forever := &Token{IssuedAt: now - 1_000_000, ExpiresIn: 3600}
	if forever.RefreshTokenExpired() {
		t.Error("zero RefreshTokenExpiresIn should never expire")
	}
}
