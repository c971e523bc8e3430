// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bgapp-platform/bgapp/internal/logging"
)

// Authentication modes, matching security.auth_mode config values.
const (
	ModeJWT   = "jwt"
	ModeOIDC  = "oidc"
	ModeBasic = "basic"
	ModeNone  = "none"
)

// Principal is the authenticated identity attached to the request
// context.
type Principal struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	AuthMode string   `json:"auth_mode"`
}

// HasRole reports whether the principal carries the given role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey struct{}

var principalKey contextKey

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// ContextWithPrincipal attaches a principal. Exported for handler tests.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// ErrNoCredentials is returned when a request carries no usable
// credentials for the active mode.
var ErrNoCredentials = errors.New("no credentials provided")

// Authenticator resolves a request to a principal according to the
// configured mode.
type Authenticator struct {
	mode        string
	jwtManager  *JWTManager
	oidc        *OIDCVerifier
	credentials *CredentialStore
}

// NewAuthenticator wires the verifier for the chosen mode. Only the
// dependency the mode needs has to be non-nil.
func NewAuthenticator(mode string, jwtManager *JWTManager, oidc *OIDCVerifier, credentials *CredentialStore) (*Authenticator, error) {
	switch mode {
	case ModeJWT:
		if jwtManager == nil {
			return nil, errors.New("jwt mode requires a token manager")
		}
	case ModeOIDC:
		if oidc == nil {
			return nil, errors.New("oidc mode requires a verifier")
		}
	case ModeBasic:
		if credentials == nil {
			return nil, errors.New("basic mode requires a credential store")
		}
	case ModeNone:
		logging.Warn().Msg("Authentication is DISABLED (auth_mode=none); all requests are treated as admin")
	default:
		return nil, errors.New("unknown auth mode: " + mode)
	}
	return &Authenticator{
		mode:        mode,
		jwtManager:  jwtManager,
		oidc:        oidc,
		credentials: credentials,
	}, nil
}

// Mode returns the active authentication mode.
func (a *Authenticator) Mode() string {
	return a.mode
}

// Authenticate resolves the request to a principal or an error.
func (a *Authenticator) Authenticate(r *http.Request) (*Principal, error) {
	switch a.mode {
	case ModeNone:
		return &Principal{Username: "anonymous", Roles: []string{"admin"}, AuthMode: ModeNone}, nil

	case ModeJWT:
		tokenStr, err := extractBearerToken(r)
		if err != nil {
			return nil, err
		}
		claims, err := a.jwtManager.ValidateToken(tokenStr, TokenUseAccess)
		if err != nil {
			return nil, err
		}
		return &Principal{Username: claims.Username, Roles: claims.Roles, AuthMode: ModeJWT}, nil

	case ModeOIDC:
		tokenStr, err := extractBearerToken(r)
		if err != nil {
			return nil, err
		}
		return a.oidc.Verify(r.Context(), tokenStr)

	case ModeBasic:
		username, password, ok := r.BasicAuth()
		if !ok {
			return nil, ErrNoCredentials
		}
		roles, err := a.credentials.Verify(username, password)
		if err != nil {
			return nil, err
		}
		return &Principal{Username: username, Roles: roles, AuthMode: ModeBasic}, nil
	}
	return nil, errors.New("unknown auth mode: " + a.mode)
}

// extractBearerToken pulls the token out of the Authorization header.
func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrNoCredentials
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header is not a bearer token")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrNoCredentials
	}
	return token, nil
}

// Middleware rejects unauthenticated requests with 401 and stores the
// principal in the request context for downstream handlers. The error
// body shape matches the API envelope but is written here to keep the
// auth package free of handler imports.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.Authenticate(r)
		if err != nil {
			logging.Debug().
				Err(err).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Msg("Request rejected by authentication")

			if a.mode == ModeBasic {
				w.Header().Set("WWW-Authenticate", `Basic realm="bgapp"`)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"authentication required"}`))
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}
