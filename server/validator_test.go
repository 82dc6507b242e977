package server

import (
	"net/http"
	"strings"
	"testing"
)

func TestGenerateToken(t *testing.T) {
	for _, length := range []int{accessTokenLength, refreshTokenLength, 1, 100} {
		token := GenerateToken(length)
		if len(token) != length {
			t.Errorf("len = %d, want %d", len(token), length)
		}
		for _, r := range token {
			if !strings.ContainsRune(tokenAlphabet, r) {
				t.Errorf("token %q contains %q outside the alphabet", token, r)
			}
		}
	}

	if GenerateToken(42) == GenerateToken(42) {
		t.Error("two generated tokens collided")
	}
}

func TestValidateTransportAndMethod(t *testing.T) {
	tests := []struct {
		name     string
		req      *Request
		allowed  []string
		wantCode ErrorCode // empty means no error
	}{
		{
			name:    "https with allowed method",
			req:     newTokenRequest(Post{}),
			allowed: []string{http.MethodPost},
		},
		{
			name: "http rejected",
			req: func() *Request {
				r := newTokenRequest(Post{})
				r.URL.Scheme = "http"
				return r
			}(),
			allowed:  []string{http.MethodPost},
			wantCode: ErrorCodeInsecureTransport,
		},
		{
			name: "http allowed with insecure transport",
			req: func() *Request {
				r := newTokenRequest(Post{})
				r.URL.Scheme = "http"
				r.Settings.InsecureTransport = true
				return r
			}(),
			allowed: []string{http.MethodPost},
		},
		{
			name:     "wrong method",
			req:      newTokenRequest(Post{}),
			allowed:  []string{http.MethodGet},
			wantCode: ErrorCodeMethodNotAllowed,
		},
		{
			name: "transport checked before method",
			req: func() *Request {
				r := newTokenRequest(Post{})
				r.URL.Scheme = "http"
				return r
			}(),
			allowed:  []string{http.MethodGet},
			wantCode: ErrorCodeInsecureTransport,
		},
		{
			name: "nil URL counts as insecure",
			req: func() *Request {
				r := newTokenRequest(Post{})
				r.URL = nil
				return r
			}(),
			allowed:  []string{http.MethodPost},
			wantCode: ErrorCodeInsecureTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTransportAndMethod(tt.req, tt.allowed...)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("want %s, got nil", tt.wantCode)
			}
			if err.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", err.Code, tt.wantCode)
			}
		})
	}
}

func TestMethodNotAllowedListsMethods(t *testing.T) {
	req := newTokenRequest(Post{})
	req.Method = http.MethodDelete

	err := validateTransportAndMethod(req, http.MethodGet, http.MethodPost)
	if err == nil {
		t.Fatal("want error")
	}
	if got := err.Headers.Get("Allow"); got != "GET, POST" {
		t.Errorf("Allow = %q", got)
	}
}

func TestContainsField(t *testing.T) {
	tests := []struct {
		list, field string
		want        bool
	}{
		{"code token", "code", true},
		{"code token", "token", true},
		{"code token", "id_token", false},
		{"id_token", "token", false},
		{"", "code", false},
		{"  code  ", "code", true},
	}
	for _, tt := range tests {
		if got := containsField(tt.list, tt.field); got != tt.want {
			t.Errorf("containsField(%q, %q) = %v, want %v", tt.list, tt.field, got, tt.want)
		}
	}
}

func TestIntersectScope(t *testing.T) {
	tests := []struct {
		name               string
		granted, requested string
		want               string
	}{
		{"empty request keeps grant", "read write", "", "read write"},
		{"narrowing", "read write", "read", "read"},
		{"widening is dropped", "read", "read write admin", "read"},
		{"disjoint yields empty", "read", "admin", ""},
		{"order follows grant", "write read", "read write", "write read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := intersectScope(tt.granted, tt.requested); got != tt.want {
				t.Errorf("intersectScope(%q, %q) = %q, want %q", tt.granted, tt.requested, got, tt.want)
			}
		})
	}
}
