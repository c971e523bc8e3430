// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/bgapp-platform/bgapp/internal/logging"
	"github.com/bgapp-platform/bgapp/internal/models"
)

// zeeAreaKM2 is the surface area of the Angola exclusive economic zone.
const zeeAreaKM2 = 518433

const overviewCacheKey = "dashboard:overview"

// DashboardOverview is GET /api/dashboard/overview. The aggregate is
// cached briefly; a degraded database yields a fallback overview with
// the services block reflecting the outage instead of a 5xx.
func (h *Handler) DashboardOverview(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if cached, ok := h.cache.Get(overviewCacheKey); ok {
		if overview, ok := cached.(*models.DashboardOverview); ok {
			respondJSON(w, http.StatusOK, overview, models.Metadata{
				QueryTimeMS: elapsedMS(start),
				Cached:      true,
			})
			return
		}
	}

	ctx, cancel := contextWithTimeout(r, 10*time.Second)
	defer cancel()

	overview, fallback := h.buildOverview(ctx)
	h.cache.Set(overviewCacheKey, overview)

	respondJSON(w, http.StatusOK, overview, models.Metadata{
		QueryTimeMS: elapsedMS(start),
		Fallback:    fallback,
	})
}

func (h *Handler) buildOverview(ctx context.Context) (*models.DashboardOverview, bool) {
	fallback := false

	summary := models.ZEESummary{AreaKM2: zeeAreaKM2}
	dbHealthy := true
	if h.db != nil {
		if counts, err := h.db.Counts(ctx); err == nil {
			summary.ActiveStations = counts.StationsActive
			summary.TotalStations = counts.StationsTotal
			summary.SpeciesTracked = counts.Species
			summary.ObservationsTot = counts.Observations
		} else {
			logging.Warn().Err(err).Msg("Dashboard counts unavailable, serving fallback summary")
			dbHealthy = false
			fallback = true
		}
	} else {
		dbHealthy = false
		fallback = true
	}

	var conditions models.RealTimeData
	if h.db != nil && dbHealthy {
		if latest, err := h.db.LatestConditions(ctx); err == nil && latest != nil {
			conditions = *latest
		}
	}
	if conditions.SampledAt.IsZero() && h.conditions != nil {
		fetched, usedFallback := h.conditions.FetchConditions(ctx, models.AngolaZEE)
		conditions = models.RealTimeData{
			SeaTemperatureC: fetched.SeaTemperatureC,
			SalinityPSU:     fetched.SalinityPSU,
			ChlorophyllMgM3: fetched.ChlorophyllMgM3,
			SampledAt:       fetched.SampledAt,
		}
		fallback = fallback || usedFallback
	}

	copernicus := models.CopernicusStatus{Status: "unknown"}
	if h.conditions != nil {
		copernicus = h.conditions.Status()
	}

	services := h.serviceStatuses(ctx, dbHealthy)

	healthScore := 1.0
	overall := "healthy"
	for _, svc := range services {
		if svc.Status != "online" {
			healthScore -= 0.2
			overall = "degraded"
		}
	}
	if healthScore < 0 {
		healthScore = 0
	}
	if !dbHealthy {
		overall = "degraded"
	}

	return &models.DashboardOverview{
		SystemStatus: models.SystemStatus{
			Status:       overall,
			UptimeSecond: h.uptime(),
			Version:      h.version,
			HealthScore:  healthScore,
		},
		ZEEAngola:    summary,
		RealTimeData: conditions,
		Copernicus:   copernicus,
		Services:     services,
	}, fallback
}

func (h *Handler) serviceStatuses(ctx context.Context, dbHealthy bool) []models.ServiceStatus {
	services := make([]models.ServiceStatus, 0, 5)

	dbState := "online"
	if !dbHealthy {
		dbState = "offline"
	}
	services = append(services, models.ServiceStatus{Name: "database", Status: dbState})

	if h.buckets != nil {
		state := "online"
		detail := ""
		if breaker := h.buckets.BreakerState(); breaker != "closed" {
			state = "degraded"
			detail = "circuit breaker " + breaker
		}
		services = append(services, models.ServiceStatus{Name: "storage", Status: state, Details: detail})
	}

	if h.manager != nil {
		state := "online"
		if !h.manager.Healthy(ctx) {
			state = "degraded"
		}
		services = append(services, models.ServiceStatus{Name: "task_queue", Status: state})
	}

	if h.conditions != nil {
		state := "online"
		switch h.conditions.Status().Status {
		case "offline":
			state = "offline"
		case "degraded":
			state = "degraded"
		case "unknown":
			state = "unknown"
		}
		services = append(services, models.ServiceStatus{Name: "copernicus", Status: state})
	}

	if h.sched != nil {
		state := "online"
		if !h.sched.Enabled() {
			state = "disabled"
		}
		services = append(services, models.ServiceStatus{Name: "scheduler", Status: state})
	}

	return services
}

// DashboardObservations is GET /api/dashboard/observations: the most
// recent observations across all stations, newest first, for the live
// feed widget.
func (h *Handler) DashboardObservations(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		respondError(w, http.StatusServiceUnavailable, "DATABASE_ERROR", "database is not available", nil)
		return
	}
	start := time.Now()
	ctx, cancel := contextWithTimeout(r, 10*time.Second)
	defer cancel()

	observations, err := h.db.LatestObservations(ctx, h.pageSize(r.URL.Query().Get("limit")))
	if err != nil {
		logging.Error().Err(err).Msg("Observation listing failed")
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "could not list observations", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"observations": observations,
		"total":        len(observations),
	}, models.Metadata{QueryTimeMS: elapsedMS(start)})
}

// DashboardStats is GET /api/dashboard/stats.
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := contextWithTimeout(r, 10*time.Second)
	defer cancel()

	stats := models.DashboardStats{GeneratedAt: time.Now().UTC()}
	fallback := false

	if h.db != nil {
		if counts, err := h.db.Counts(ctx); err == nil {
			stats.Observations24h = counts.Observations24h
			stats.PredictionsRun = counts.Predictions
		} else {
			logging.Warn().Err(err).Msg("Dashboard stats unavailable from database")
			fallback = true
		}
	} else {
		fallback = true
	}

	if h.manager != nil {
		if queueStats, err := h.manager.Stats(); err == nil {
			for _, qs := range queueStats {
				stats.TasksQueued += int64(qs.Pending + qs.Running)
				stats.TasksSucceeded += int64(qs.Succeeded)
				stats.TasksFailed += int64(qs.Failed + qs.Dead)
			}
		}
	}

	respondJSON(w, http.StatusOK, stats, models.Metadata{
		QueryTimeMS: elapsedMS(start),
		Fallback:    fallback,
	})
}
