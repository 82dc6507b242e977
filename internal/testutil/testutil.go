// Package testutil provides shared test fixtures and helpers.
package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// Well-known fixture credentials used across the test suites.
const (
	ClientID     = "test-client"
	ClientSecret = "test-client-secret"
	PublicClient = "test-public-client"
	Username     = "alice"
	Password     = "correct-horse-battery"
	UserID       = "user-0001"
	RedirectURI  = "https://app.example.com/callback"
	Scope        = "read write"
)

// GenerateRandomString returns a random URL-safe string of the given
// length. Panics on RNG failure.
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// GeneratePKCEPair returns a PKCE verifier and its S256 challenge.
func GeneratePKCEPair() (verifier, challenge string) {
	verifier = oauth2.GenerateVerifier()
	return verifier, oauth2.S256ChallengeFromVerifier(verifier)
}
