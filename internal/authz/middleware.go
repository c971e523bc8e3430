// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package authz

import (
	"net/http"

	"github.com/bgapp-platform/bgapp/internal/auth"
	"github.com/bgapp-platform/bgapp/internal/logging"
)

// Middleware enforces RBAC on routed requests. It expects the auth
// middleware to have stored a principal in the context already.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware wraps an enforcer for router use.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// Authorize derives the action from the HTTP method and enforces it
// against the request path. Suitable as a chi route-group middleware.
func (m *Middleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			forbid(w, "no authentication context")
			return
		}

		action := methodToAction(r.Method)
		allowed, err := m.enforcer.EnforceWithRoles(principal.Username, principal.Roles, r.URL.Path, action)
		if err != nil {
			logging.Error().Err(err).Str("path", r.URL.Path).Msg("Authorization check failed")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"success":false,"error":"authorization error"}`))
			return
		}
		if !allowed {
			logging.Debug().
				Str("user", principal.Username).
				Strs("roles", principal.Roles).
				Str("path", r.URL.Path).
				Str("action", action).
				Msg("Request denied by policy")
			forbid(w, "insufficient permissions")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireRole gates a route group on one role, bypassing path policy.
// Used for admin-only surfaces like policy inspection.
func (m *Middleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				forbid(w, "no authentication context")
				return
			}
			if !principal.HasRole(role) {
				forbid(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forbid(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"success":false,"error":"` + msg + `"}`))
}

func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read"
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return "write"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
