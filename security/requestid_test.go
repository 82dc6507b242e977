package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateRequestID(t *testing.T) {
	id := GenerateRequestID()
	if id == "" {
		t.Fatal("GenerateRequestID returned empty string")
	}
	if !isValidRequestID(id) {
		t.Errorf("generated ID %q should satisfy the validation pattern", id)
	}
	if id == GenerateRequestID() {
		t.Error("two generated IDs should differ")
	}
}

func TestRequestIDContextRoundTrip(t *testing.T) {
	ctx := WithRequestID(t.Context(), "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID = %q, want %q", got, "req-123")
	}
	if got := GetRequestID(t.Context()); got != "" {
		t.Errorf("GetRequestID on empty context = %q, want empty", got)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		upstreamID string
		preserved  bool
	}{
		{name: "missing ID generates one", upstreamID: "", preserved: false},
		{name: "valid upstream ID preserved", upstreamID: "upstream-42", preserved: true},
		{name: "injection attempt replaced", upstreamID: "bad\r\nid", preserved: false},
		{name: "overlong ID replaced", upstreamID: string(make([]byte, 200)), preserved: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seenInContext string
			handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seenInContext = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.upstreamID != "" {
				req.Header.Set(RequestIDHeader, tt.upstreamID)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			echoed := rec.Header().Get(RequestIDHeader)
			if echoed == "" {
				t.Fatal("response should carry a request ID")
			}
			if echoed != seenInContext {
				t.Errorf("header ID %q != context ID %q", echoed, seenInContext)
			}
			if tt.preserved && echoed != tt.upstreamID {
				t.Errorf("valid upstream ID should be preserved, got %q", echoed)
			}
			if !tt.preserved && echoed == tt.upstreamID {
				t.Errorf("invalid upstream ID %q should have been replaced", tt.upstreamID)
			}
		})
	}
}
