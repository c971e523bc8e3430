// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package auth

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(testSecret, time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	return m
}

func TestGenerateAndValidateTokenPair(t *testing.T) {
	m := newTestManager(t)

	pair, err := m.GenerateTokenPair("carlos", []string{"admin"})
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Errorf("token type = %s, want Bearer", pair.TokenType)
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Error("access and refresh tokens must differ")
	}

	claims, err := m.ValidateToken(pair.AccessToken, TokenUseAccess)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "carlos" {
		t.Errorf("username = %s, want carlos", claims.Username)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Errorf("roles = %v, want [admin]", claims.Roles)
	}
}

func TestAccessTokenRejectedForRefresh(t *testing.T) {
	m := newTestManager(t)
	pair, err := m.GenerateTokenPair("carlos", nil)
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	if _, err := m.ValidateToken(pair.AccessToken, TokenUseRefresh); !errors.Is(err, ErrWrongTokenUse) {
		t.Errorf("expected ErrWrongTokenUse, got %v", err)
	}
	if _, err := m.ValidateToken(pair.RefreshToken, TokenUseAccess); !errors.Is(err, ErrWrongTokenUse) {
		t.Errorf("expected ErrWrongTokenUse for refresh-as-access, got %v", err)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	m := newTestManager(t)
	pair, err := m.GenerateTokenPair("carlos", nil)
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	other, err := NewJWTManager("ffffffffffffffffffffffffffffffff", time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	if _, err := other.ValidateToken(pair.AccessToken, TokenUseAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	m, err := NewJWTManager(testSecret, time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	signed, err := m.sign("carlos", nil, TokenUseAccess, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ValidateToken(signed, TokenUseAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.ValidateToken("not.a.token", TokenUseAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRefreshIssuesNewPair(t *testing.T) {
	m := newTestManager(t)
	pair, err := m.GenerateTokenPair("carlos", []string{"operator"})
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	renewed, err := m.Refresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, err := m.ValidateToken(renewed.AccessToken, TokenUseAccess)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "carlos" || len(claims.Roles) != 1 || claims.Roles[0] != "operator" {
		t.Errorf("renewed claims carried wrong identity: %+v", claims)
	}

	if _, err := m.Refresh(pair.AccessToken); err == nil {
		t.Error("refresh with an access token must fail")
	}
}

func TestNewJWTManagerRequiresSecret(t *testing.T) {
	if _, err := NewJWTManager("", time.Hour, time.Hour); err == nil {
		t.Fatal("empty secret must be rejected")
	}
}
