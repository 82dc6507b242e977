package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/halcyonlabs/oauth2core/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	t.Cleanup(s.Stop)
	return s
}

func seedClient(t *testing.T, s *Store) *storage.Client {
	t.Helper()
	client := &storage.Client{
		ClientID:      "client-1",
		RedirectURIs:  []string{"https://app.example.com/cb"},
		GrantTypes:    []string{"authorization_code", "refresh_token"},
		ResponseTypes: []string{"code"},
		Scope:         "read write",
	}
	if err := s.AddClient(client, "s3cr3t"); err != nil {
		t.Fatalf("AddClient: %v", err)
	}
	return client
}

func TestClientRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedClient(t, s)

	got, err := s.GetClient(t.Context(), "client-1")
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if got.ClientID != "client-1" || got.Scope != "read write" {
		t.Errorf("unexpected client: %+v", got)
	}

	if _, err := s.GetClient(t.Context(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown client error = %v, want ErrNotFound", err)
	}
}

func TestValidateClientSecret(t *testing.T) {
	s := newTestStore(t)
	seedClient(t, s)

	public := &storage.Client{ClientID: "spa", Public: true}
	if err := s.AddClient(public, ""); err != nil {
		t.Fatalf("AddClient public: %v", err)
	}

	tests := []struct {
		name     string
		clientID string
		secret   string
		wantErr  error
	}{
		{name: "correct secret", clientID: "client-1", secret: "s3cr3t", wantErr: nil},
		{name: "wrong secret", clientID: "client-1", secret: "wrong", wantErr: storage.ErrInvalidCredentials},
		{name: "empty secret for confidential client", clientID: "client-1", secret: "", wantErr: storage.ErrInvalidCredentials},
		{name: "unknown client", clientID: "ghost", secret: "s3cr3t", wantErr: storage.ErrNotFound},
		{name: "public client with empty secret", clientID: "spa", secret: "", wantErr: nil},
		{name: "public client with secret", clientID: "spa", secret: "anything", wantErr: storage.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateClientSecret(t.Context(), tt.clientID, tt.secret)
			if tt.wantErr == nil && err != nil {
				t.Errorf("ValidateClientSecret error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateClientSecret error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddClientValidation(t *testing.T) {
	s := newTestStore(t)

	if err := s.AddClient(&storage.Client{ClientID: "c"}, ""); err == nil {
		t.Error("confidential client without secret should be rejected")
	}
	if err := s.AddClient(&storage.Client{ClientID: "c", Public: true}, "secret"); err == nil {
		t.Error("public client with secret should be rejected")
	}
	if err := s.AddClient(nil, "x"); err == nil {
		t.Error("nil client should be rejected")
	}
}

func TestTokenRoundTripAndRevocation(t *testing.T) {
	s := newTestStore(t)

	token := &storage.Token{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ClientID:     "client-1",
		TokenType:    "Bearer",
		Scope:        "read",
		IssuedAt:     time.Now().Unix(),
		ExpiresIn:    3600,
	}
	if err := s.SaveToken(t.Context(), token); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	byAccess, err := s.GetToken(t.Context(), storage.TokenQuery{AccessToken: "at-1"})
	if err != nil {
		t.Fatalf("GetToken by access: %v", err)
	}
	byRefresh, err := s.GetToken(t.Context(), storage.TokenQuery{RefreshToken: "rt-1"})
	if err != nil {
		t.Fatalf("GetToken by refresh: %v", err)
	}
	if byAccess.AccessToken != byRefresh.AccessToken {
		t.Error("access and refresh lookups should find the same token")
	}

	// Wrong client never sees the token.
	if _, err := s.GetToken(t.Context(), storage.TokenQuery{ClientID: "other", AccessToken: "at-1"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cross-client lookup error = %v, want ErrNotFound", err)
	}

	// A wrong hint must not hide the token.
	hinted, err := s.GetToken(t.Context(), storage.TokenQuery{AccessToken: "at-1", RefreshToken: "at-1", TokenTypeHint: "refresh_token"})
	if err != nil {
		t.Fatalf("GetToken with wrong hint: %v", err)
	}
	if hinted.AccessToken != "at-1" {
		t.Errorf("hinted lookup found %q", hinted.AccessToken)
	}

	if err := s.RevokeToken(t.Context(), storage.TokenQuery{RefreshToken: "rt-1"}); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	revoked, err := s.GetToken(t.Context(), storage.TokenQuery{AccessToken: "at-1"})
	if err != nil {
		t.Fatalf("GetToken after revoke: %v", err)
	}
	if !revoked.Revoked {
		t.Error("token should be marked revoked, not deleted")
	}

	if err := s.RevokeToken(t.Context(), storage.TokenQuery{AccessToken: "ghost"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("revoking unknown token error = %v, want ErrNotFound", err)
	}
}

func TestGetTokenReturnsCopy(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveToken(t.Context(), &storage.Token{AccessToken: "at-1", Scope: "read"}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	got, err := s.GetToken(t.Context(), storage.TokenQuery{AccessToken: "at-1"})
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	got.Scope = "mutated"

	again, err := s.GetToken(t.Context(), storage.TokenQuery{AccessToken: "at-1"})
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if again.Scope != "read" {
		t.Error("mutating a returned token must not affect the store")
	}
}

func TestAuthorizationCodeLifecycle(t *testing.T) {
	s := newTestStore(t)

	code := &storage.AuthorizationCode{
		Code:      "abc",
		ClientID:  "client-1",
		UserID:    "user-1",
		AuthTime:  time.Now().Unix(),
		ExpiresIn: 300,
	}
	if err := s.SaveAuthorizationCode(t.Context(), code); err != nil {
		t.Fatalf("SaveAuthorizationCode: %v", err)
	}

	got, err := s.GetAuthorizationCode(t.Context(), "client-1", "abc")
	if err != nil {
		t.Fatalf("GetAuthorizationCode: %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID = %q", got.UserID)
	}

	// Codes are scoped to the issuing client.
	if _, err := s.GetAuthorizationCode(t.Context(), "other-client", "abc"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cross-client code lookup error = %v, want ErrNotFound", err)
	}

	if err := s.DeleteAuthorizationCode(t.Context(), "client-1", "abc"); err != nil {
		t.Fatalf("DeleteAuthorizationCode: %v", err)
	}
	if _, err := s.GetAuthorizationCode(t.Context(), "client-1", "abc"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("deleted code lookup error = %v, want ErrNotFound", err)
	}

	// Idempotent delete.
	if err := s.DeleteAuthorizationCode(t.Context(), "client-1", "abc"); err != nil {
		t.Errorf("second delete error = %v, want nil", err)
	}
}

func TestAuthenticate(t *testing.T) {
	s := newTestStore(t)
	if err := s.AddUser(&storage.User{ID: "user-1", Username: "alice"}, "hunter2"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	user, err := s.Authenticate(t.Context(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("ID = %q", user.ID)
	}

	if _, err := s.Authenticate(t.Context(), "alice", "wrong"); !errors.Is(err, storage.ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := s.Authenticate(t.Context(), "bob", "hunter2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown user error = %v, want ErrNotFound", err)
	}
}

func TestCleanupRemovesExpired(t *testing.T) {
	s := newTestStore(t)

	past := time.Now().Add(-time.Hour).Unix()
	if err := s.SaveAuthorizationCode(t.Context(), &storage.AuthorizationCode{
		Code: "old", ClientID: "c", AuthTime: past, ExpiresIn: 300,
	}); err != nil {
		t.Fatalf("SaveAuthorizationCode: %v", err)
	}
	if err := s.SaveToken(t.Context(), &storage.Token{
		AccessToken: "old-at", RefreshToken: "old-rt",
		IssuedAt: past, ExpiresIn: 60, RefreshTokenExpiresIn: 120,
	}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if err := s.SaveToken(t.Context(), &storage.Token{
		AccessToken: "live-at", IssuedAt: time.Now().Unix(), ExpiresIn: 3600,
	}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	s.cleanup()

	if _, err := s.GetAuthorizationCode(t.Context(), "c", "old"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("expired code should be swept")
	}
	if _, err := s.GetToken(t.Context(), storage.TokenQuery{AccessToken: "old-at"}); !errors.Is(err, storage.ErrNotFound) {
		t.Error("fully expired token should be swept")
	}
	if _, err := s.GetToken(t.Context(), storage.TokenQuery{RefreshToken: "old-rt"}); !errors.Is(err, storage.ErrNotFound) {
		t.Error("refresh index of swept token should be gone")
	}
	if _, err := s.GetToken(t.Context(), storage.TokenQuery{AccessToken: "live-at"}); err != nil {
		t.Errorf("live token should survive cleanup: %v", err)
	}
}
