// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

// Package auth authenticates dashboard requests. Three modes are
// supported: locally issued HS256 JWTs, OIDC ID tokens verified against
// a Keycloak-style issuer, and HTTP Basic against the configured admin
// credentials. Mode "none" disables authentication entirely and is
// intended for development only.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token use values distinguish access tokens from refresh tokens so a
// refresh token can never be presented on an API route.
const (
	TokenUseAccess  = "access"
	TokenUseRefresh = "refresh"
)

var (
	// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWrongTokenUse is returned when an access token is presented for
	// refresh or vice versa.
	ErrWrongTokenUse = errors.New("wrong token use")
)

// Claims are the JWT claims issued for dashboard sessions.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	TokenUse string   `json:"token_use"`
	jwt.RegisteredClaims
}

// TokenPair is an access token plus the refresh token that renews it.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// JWTManager issues and validates HS256 session tokens.
type JWTManager struct {
	secret     []byte
	tokenTTL   time.Duration
	refreshTTL time.Duration
}

// NewJWTManager creates a manager. The secret must be non-empty; config
// validation enforces a minimum length before this point.
func NewJWTManager(secret string, tokenTTL, refreshTTL time.Duration) (*JWTManager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * time.Hour
	}
	return &JWTManager{
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// GenerateTokenPair issues a fresh access/refresh pair for a user.
func (m *JWTManager) GenerateTokenPair(username string, roles []string) (*TokenPair, error) {
	now := time.Now()
	accessExpiry := now.Add(m.tokenTTL)

	access, err := m.sign(username, roles, TokenUseAccess, now, accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}
	refresh, err := m.sign(username, roles, TokenUseRefresh, now, now.Add(m.refreshTTL))
	if err != nil {
		return nil, fmt.Errorf("signing refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresAt:    accessExpiry,
	}, nil
}

func (m *JWTManager) sign(username string, roles []string, use string, now, expiry time.Time) (string, error) {
	claims := &Claims{
		Username: username,
		Roles:    roles,
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    "bgapp",
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken parses a token and checks its signature, expiry and use.
func (m *JWTManager) ValidateToken(tokenStr, expectedUse string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenUse != expectedUse {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongTokenUse, claims.TokenUse, expectedUse)
	}
	return claims, nil
}

// Refresh exchanges a valid refresh token for a new pair. Roles are
// carried over from the refresh token's claims.
func (m *JWTManager) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := m.ValidateToken(refreshToken, TokenUseRefresh)
	if err != nil {
		return nil, err
	}
	return m.GenerateTokenPair(claims.Username, claims.Roles)
}
