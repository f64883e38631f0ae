package httpapi

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer abc", "abc", false},
		{"  Bearer abc  ", "abc", false},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Errorf("extractBearerToken(%q) expected error", tc.header)
			}
			continue
		}
		if err != nil {
			t.Errorf("extractBearerToken(%q): %v", tc.header, err)
			continue
		}
		if got != tc.want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestIsPublicPath(t *testing.T) {
	for _, path := range []string{"/api/auth/signin", "/api/auth/register", "/healthz", "/metrics", "/"} {
		if !isPublicPath(path) {
			t.Errorf("%s should be public", path)
		}
	}
	for _, path := range []string{"/api/tasks", "/api/auth/logout", "/api/auth/me", "/api/events"} {
		if isPublicPath(path) {
			t.Errorf("%s should require auth", path)
		}
	}
}

func TestDecodeIdentityClaims(t *testing.T) {
	sub := uuid.New().String()
	raw := base64.StdEncoding.EncodeToString([]byte(
		`{"sub":"` + sub + `","preferred_username":"carol","realm_access":{"roles":["ADMIN"]}}`))

	claims, err := decodeIdentityClaims(raw)
	if err != nil {
		t.Fatalf("decodeIdentityClaims: %v", err)
	}
	if claims.Subject != sub || claims.PreferredUsername != "carol" {
		t.Fatalf("claims = %+v", claims)
	}
	if len(claims.RealmAccess.Roles) != 1 || claims.RealmAccess.Roles[0] != "ADMIN" {
		t.Fatalf("realm roles = %v", claims.RealmAccess.Roles)
	}

	if _, err := decodeIdentityClaims("not base64"); err == nil {
		t.Fatal("expected error for bad base64")
	}
	if _, err := decodeIdentityClaims(base64.StdEncoding.EncodeToString([]byte("not json"))); err == nil {
		t.Fatal("expected error for bad json")
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("allow-origin = %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSForeignOrigin(t *testing.T) {
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("foreign origin must not be echoed")
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing nosniff header")
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("missing frame options header")
	}
}

func TestRequestID(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatal("request id was not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "client-supplied")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-Id") != "client-supplied" {
		t.Fatal("client-supplied request id was not preserved")
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), 2, 1)

	var rejected bool
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code == http.StatusTooManyRequests {
			rejected = true
		}
	}
	if !rejected {
		t.Fatal("burst of requests was never rate limited")
	}
}
