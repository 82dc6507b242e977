package server

import (
	"net/url"
	"testing"
)

func TestBuildURI(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		query    url.Values
		fragment url.Values
		want     string
	}{
		{
			name:  "query parameters",
			base:  "https://app.example.com/cb",
			query: url.Values{"code": {"abc"}, "state": {"xyz"}},
			want:  "https://app.example.com/cb?code=abc&state=xyz",
		},
		{
			name:     "fragment parameters",
			base:     "https://app.example.com/cb",
			fragment: url.Values{"access_token": {"tok"}, "token_type": {"Bearer"}},
			want:     "https://app.example.com/cb#access_token=tok&token_type=Bearer",
		},
		{
			name:  "registered query preserved",
			base:  "https://app.example.com/cb?tenant=acme",
			query: url.Values{"code": {"abc"}},
			want:  "https://app.example.com/cb?code=abc&tenant=acme",
		},
		{
			name: "no parameters leaves base untouched",
			base: "https://app.example.com/cb",
			want: "https://app.example.com/cb",
		},
		{
			name:  "values are escaped",
			base:  "https://app.example.com/cb",
			query: url.Values{"state": {"a b&c"}},
			want:  "https://app.example.com/cb?state=a+b%26c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildURI(tt.base, tt.query, tt.fragment)
			if err != nil {
				t.Fatalf("BuildURI: %v", err)
			}
			if got != tt.want {
				t.Errorf("BuildURI = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthorizationParamsMerge(t *testing.T) {
	params := url.Values{}
	contents := []AuthorizationContent{
		&AuthorizationCodeResponse{Code: "abc", Scope: "read"},
		&TokenResponse{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 3600},
		&IDTokenResponse{IDToken: "jwt"},
		&NoneResponse{},
	}
	for _, c := range contents {
		c.authorizationParams(params)
	}

	want := map[string]string{
		"code":         "abc",
		"scope":        "read",
		"access_token": "tok",
		"token_type":   "Bearer",
		"expires_in":   "3600",
		"id_token":     "jwt",
	}
	if len(params) != len(want) {
		t.Errorf("params = %v, want %d entries", params, len(want))
	}
	for k, v := range want {
		if got := params.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestTokenParamsOmitEmptyOptionals(t *testing.T) {
	params := url.Values{}
	(&TokenResponse{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 60}).authorizationParams(params)

	if _, ok := params["refresh_token"]; ok {
		t.Error("empty refresh_token should be omitted")
	}
	if _, ok := params["scope"]; ok {
		t.Error("empty scope should be omitted")
	}
}
