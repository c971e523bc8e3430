// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bgapp-platform/bgapp/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doAs(t *testing.T, h http.Handler, method, path string, principal *auth.Principal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if principal != nil {
		req = req.WithContext(auth.ContextWithPrincipal(req.Context(), principal))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthorizeByMethodAndPath(t *testing.T) {
	m := NewMiddleware(newTestEnforcer(t))
	h := m.Authorize(okHandler())

	viewer := &auth.Principal{Username: "v", Roles: []string{"viewer"}}
	operator := &auth.Principal{Username: "o", Roles: []string{"operator"}}

	if rec := doAs(t, h, http.MethodGet, "/api/dashboard/overview", viewer); rec.Code != http.StatusOK {
		t.Errorf("viewer GET overview = %d, want 200", rec.Code)
	}
	if rec := doAs(t, h, http.MethodPost, "/async/ml/predictions", viewer); rec.Code != http.StatusForbidden {
		t.Errorf("viewer POST predictions = %d, want 403", rec.Code)
	}
	if rec := doAs(t, h, http.MethodPost, "/async/ml/predictions", operator); rec.Code != http.StatusOK {
		t.Errorf("operator POST predictions = %d, want 200", rec.Code)
	}
}

func TestAuthorizeWithoutPrincipal(t *testing.T) {
	m := NewMiddleware(newTestEnforcer(t))
	h := m.Authorize(okHandler())

	if rec := doAs(t, h, http.MethodGet, "/api/dashboard/overview", nil); rec.Code != http.StatusForbidden {
		t.Errorf("missing principal = %d, want 403", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	m := NewMiddleware(newTestEnforcer(t))
	h := m.RequireRole("admin")(okHandler())

	admin := &auth.Principal{Username: "a", Roles: []string{"admin"}}
	viewer := &auth.Principal{Username: "v", Roles: []string{"viewer"}}

	if rec := doAs(t, h, http.MethodGet, "/api/admin/policy", admin); rec.Code != http.StatusOK {
		t.Errorf("admin = %d, want 200", rec.Code)
	}
	if rec := doAs(t, h, http.MethodGet, "/api/admin/policy", viewer); rec.Code != http.StatusForbidden {
		t.Errorf("viewer = %d, want 403", rec.Code)
	}
}
