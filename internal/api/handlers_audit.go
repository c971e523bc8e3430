// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/bgapp-platform/bgapp/internal/audit"
	"github.com/bgapp-platform/bgapp/internal/auth"
	"github.com/bgapp-platform/bgapp/internal/middleware"
	"github.com/bgapp-platform/bgapp/internal/models"
)

// AdminAudit is GET /api/admin/audit. Supports type, actor, outcome and
// limit query parameters.
func (h *Handler) AdminAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditLog == nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_FOUND", "audit trail is not available", nil)
		return
	}
	start := time.Now()

	filter := audit.DefaultQueryFilter()
	q := r.URL.Query()
	if t := q.Get("type"); t != "" {
		filter.Types = []audit.EventType{audit.EventType(t)}
	}
	filter.Actor = q.Get("actor")
	filter.Outcome = audit.Outcome(q.Get("outcome"))
	filter.Limit = h.pageSize(q.Get("limit"))

	ctx, cancel := contextWithTimeout(r, 10*time.Second)
	defer cancel()

	events, err := h.auditLog.Query(ctx, filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "could not query audit trail", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  len(events),
	}, models.Metadata{QueryTimeMS: elapsedMS(start)})
}

// auditAction records an audited operation attributed to the request's
// principal. No-op when auditing is disabled.
func (h *Handler) auditAction(r *http.Request, eventType audit.EventType, action string, details map[string]interface{}) {
	if h.auditLog == nil {
		return
	}

	actor := "anonymous"
	var roles []string
	authMode := ""
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		actor = principal.Username
		roles = principal.Roles
		authMode = principal.AuthMode
	}

	var raw json.RawMessage
	if len(details) > 0 {
		if data, err := json.Marshal(details); err == nil {
			raw = data
		}
	}

	h.auditLog.Record(&audit.Event{
		Type:      eventType,
		Outcome:   audit.OutcomeSuccess,
		Actor:     actor,
		Roles:     roles,
		AuthMode:  authMode,
		SourceIP:  r.RemoteAddr,
		Action:    action,
		Details:   raw,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}
