// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func protectedEcho(t *testing.T, captured **Principal) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Error("principal missing from context")
		}
		*captured = p
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareNoneMode(t *testing.T) {
	a, err := NewAuthenticator(ModeNone, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	var got *Principal
	srv := a.Middleware(protectedEcho(t, &got))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/overview", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got == nil || !got.HasRole("admin") {
		t.Errorf("none mode should grant admin, got %+v", got)
	}
}

func TestMiddlewareJWTMode(t *testing.T) {
	m, err := NewJWTManager(testSecret, time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	a, err := NewAuthenticator(ModeJWT, m, nil, nil)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	var got *Principal
	srv := a.Middleware(protectedEcho(t, &got))

	// No header.
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/overview", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d, want 401", rec.Code)
	}

	// Valid bearer token.
	pair, err := m.GenerateTokenPair("carlos", []string{"viewer"})
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/overview", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", rec.Code)
	}
	if got == nil || got.Username != "carlos" || !got.HasRole("viewer") {
		t.Errorf("principal = %+v, want carlos/viewer", got)
	}

	// Refresh token must not pass as access token.
	req = httptest.NewRequest(http.MethodGet, "/api/dashboard/overview", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token on API route: status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareBasicMode(t *testing.T) {
	store, err := NewCredentialStore("admin", "s3cret-pass", nil)
	if err != nil {
		t.Fatalf("NewCredentialStore: %v", err)
	}
	a, err := NewAuthenticator(ModeBasic, nil, nil, store)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	var got *Principal
	srv := a.Middleware(protectedEcho(t, &got))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/storage/buckets", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no credentials: status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("basic mode 401 should challenge with WWW-Authenticate")
	}

	req := httptest.NewRequest(http.MethodGet, "/storage/buckets", nil)
	req.SetBasicAuth("admin", "s3cret-pass")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid basic auth: status = %d, want 200", rec.Code)
	}
	if got == nil || got.Username != "admin" {
		t.Errorf("principal = %+v, want admin", got)
	}
}

func TestNewAuthenticatorRejectsMissingDeps(t *testing.T) {
	if _, err := NewAuthenticator(ModeJWT, nil, nil, nil); err == nil {
		t.Error("jwt mode without manager must fail")
	}
	if _, err := NewAuthenticator(ModeOIDC, nil, nil, nil); err == nil {
		t.Error("oidc mode without verifier must fail")
	}
	if _, err := NewAuthenticator(ModeBasic, nil, nil, nil); err == nil {
		t.Error("basic mode without credentials must fail")
	}
	if _, err := NewAuthenticator("saml", nil, nil, nil); err == nil {
		t.Error("unknown mode must fail")
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", false},
		{"bearer abc.def.ghi", "abc.def.ghi", false},
		{"", "", true},
		{"Basic dXNlcjpwYXNz", "", true},
		{"Bearer ", "", true},
		{"Bearer", "", true},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		got, err := extractBearerToken(req)
		if tc.wantErr {
			if err == nil {
				t.Errorf("header %q: expected error", tc.header)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("header %q: got (%q, %v), want %q", tc.header, got, err, tc.want)
		}
	}
}

func TestRolesFromClaims(t *testing.T) {
	claims := map[string]any{
		"roles": []any{"admin", "viewer"},
		"realm_access": map[string]any{
			"roles": []any{"operator"},
		},
		"single": "viewer",
	}

	if got := rolesFromClaims(claims, "roles"); len(got) != 2 || got[0] != "admin" {
		t.Errorf("flat claim: got %v", got)
	}
	if got := rolesFromClaims(claims, "realm_access.roles"); len(got) != 1 || got[0] != "operator" {
		t.Errorf("nested keycloak claim: got %v", got)
	}
	if got := rolesFromClaims(claims, "single"); len(got) != 1 || got[0] != "viewer" {
		t.Errorf("scalar claim: got %v", got)
	}
	if got := rolesFromClaims(claims, "missing"); got != nil {
		t.Errorf("missing claim: got %v, want nil", got)
	}
	if got := rolesFromClaims(claims, "single.nested"); got != nil {
		t.Errorf("path through scalar: got %v, want nil", got)
	}
}
