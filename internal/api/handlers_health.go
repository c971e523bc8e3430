// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/bgapp-platform/bgapp/internal/models"
)

type healthComponent struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type healthPayload struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	UptimeSecs int64             `json:"uptime_seconds"`
	Components []healthComponent `json:"components"`
}

// Health is GET /api/health. Degraded components lower the overall
// status but never fail the endpoint; orchestrators use /ready for
// gating.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	payload := h.healthSnapshot(r)

	status := http.StatusOK
	if payload.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, payload, models.Metadata{})
}

// HealthLive is GET /api/health/live. Process liveness only.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"}, models.Metadata{})
}

// HealthReady is GET /api/health/ready. Fails when the database is
// unreachable; storage and upstream degradation do not block readiness
// since both have documented fallbacks.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 5*time.Second)
	defer cancel()

	if h.db == nil || h.db.Ping(ctx) != nil {
		respondError(w, http.StatusServiceUnavailable, "DATABASE_ERROR", "database not ready", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"}, models.Metadata{})
}

func (h *Handler) healthSnapshot(r *http.Request) healthPayload {
	ctx, cancel := contextWithTimeout(r, 5*time.Second)
	defer cancel()

	components := make([]healthComponent, 0, 4)
	degraded := 0
	unhealthy := 0

	dbStatus := healthComponent{Name: "database", Status: "healthy"}
	if h.db == nil {
		dbStatus.Status = "unhealthy"
		dbStatus.Detail = "not configured"
		unhealthy++
	} else if err := h.db.Ping(ctx); err != nil {
		dbStatus.Status = "unhealthy"
		dbStatus.Detail = err.Error()
		unhealthy++
	}
	components = append(components, dbStatus)

	if h.buckets != nil {
		st := healthComponent{Name: "storage", Status: "healthy"}
		if state := h.buckets.BreakerState(); state != "closed" {
			st.Status = "degraded"
			st.Detail = "circuit breaker " + state
			degraded++
		}
		components = append(components, st)
	}

	if h.manager != nil {
		st := healthComponent{Name: "task_queue", Status: "healthy"}
		if !h.manager.Healthy(ctx) {
			st.Status = "degraded"
			st.Detail = "stream unavailable"
			degraded++
		}
		components = append(components, st)
	}

	if h.conditions != nil {
		st := healthComponent{Name: "copernicus", Status: "healthy"}
		switch up := h.conditions.Status(); up.Status {
		case "offline":
			st.Status = "degraded"
			st.Detail = "serving fallback conditions"
			degraded++
		case "degraded":
			st.Status = "degraded"
			degraded++
		}
		components = append(components, st)
	}

	overall := "healthy"
	switch {
	case unhealthy > 0:
		overall = "unhealthy"
	case degraded > 0:
		overall = "degraded"
	}

	return healthPayload{
		Status:     overall,
		Version:    h.version,
		UptimeSecs: h.uptime(),
		Components: components,
	}
}

func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
