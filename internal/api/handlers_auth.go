// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package api

import (
	"net/http"

	"github.com/bgapp-platform/bgapp/internal/audit"
	"github.com/bgapp-platform/bgapp/internal/auth"
	"github.com/bgapp-platform/bgapp/internal/logging"
	"github.com/bgapp-platform/bgapp/internal/middleware"
	"github.com/bgapp-platform/bgapp/internal/models"
	"github.com/bgapp-platform/bgapp/internal/validation"
)

// Login is POST /api/auth/login. Only available in jwt mode; OIDC
// deployments authenticate against the issuer directly.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.jwtManager == nil || h.creds == nil {
		respondError(w, http.StatusNotImplemented, "AUTHENTICATION_ERROR", "local login is not enabled", nil)
		return
	}

	var req models.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), nil)
		return
	}

	roles, err := h.creds.Verify(req.Username, req.Password)
	if err != nil {
		logging.Warn().Str("username", req.Username).Str("remote", r.RemoteAddr).Msg("Login rejected")
		if h.auditLog != nil {
			h.auditLog.Record(&audit.Event{
				Type:      audit.EventLoginFailure,
				Severity:  audit.SeverityWarning,
				Outcome:   audit.OutcomeFailure,
				Actor:     req.Username,
				SourceIP:  r.RemoteAddr,
				Action:    "login",
				RequestID: middleware.GetRequestID(r.Context()),
			})
		}
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "invalid credentials", nil)
		return
	}

	pair, err := h.jwtManager.GenerateTokenPair(req.Username, roles)
	if err != nil {
		logging.Error().Err(err).Msg("Token generation failed")
		respondError(w, http.StatusInternalServerError, "AUTHENTICATION_ERROR", "could not issue token", nil)
		return
	}

	if h.auditLog != nil {
		h.auditLog.Record(&audit.Event{
			Type:      audit.EventLoginSuccess,
			Outcome:   audit.OutcomeSuccess,
			Actor:     req.Username,
			Roles:     roles,
			AuthMode:  auth.ModeJWT,
			SourceIP:  r.RemoteAddr,
			Action:    "login",
			RequestID: middleware.GetRequestID(r.Context()),
		})
	}

	role := ""
	if len(roles) > 0 {
		role = roles[0]
	}
	respondJSON(w, http.StatusOK, models.LoginResponse{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		Username:     req.Username,
		Role:         role,
	}, models.Metadata{})
}

// Refresh is POST /api/auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.jwtManager == nil {
		respondError(w, http.StatusNotImplemented, "AUTHENTICATION_ERROR", "local login is not enabled", nil)
		return
	}

	var req models.RefreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), nil)
		return
	}

	pair, err := h.jwtManager.Refresh(req.RefreshToken)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "invalid refresh token", nil)
		return
	}

	claims, err := h.jwtManager.ValidateToken(pair.AccessToken, "access")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "AUTHENTICATION_ERROR", "could not issue token", nil)
		return
	}
	role := ""
	if len(claims.Roles) > 0 {
		role = claims.Roles[0]
	}
	respondJSON(w, http.StatusOK, models.LoginResponse{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		Username:     claims.Username,
		Role:         role,
	}, models.Metadata{})
}
