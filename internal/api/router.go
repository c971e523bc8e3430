// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bgapp-platform/bgapp/internal/auth"
	"github.com/bgapp-platform/bgapp/internal/authz"
	"github.com/bgapp-platform/bgapp/internal/config"
	"github.com/bgapp-platform/bgapp/internal/middleware"
	"github.com/bgapp-platform/bgapp/internal/realtime"
)

// Router assembles the HTTP surface from the handler set and the
// security middleware.
type Router struct {
	handler       *Handler
	authenticator *auth.Authenticator
	rbac          *authz.Middleware
	cfg           *config.SecurityConfig
	wsHandler     http.HandlerFunc
}

// NewRouter builds a router. The RBAC middleware may be nil when
// auth_mode is none; the auth middleware injects an admin principal in
// that mode, so policy checks still pass.
func NewRouter(handler *Handler, authenticator *auth.Authenticator, rbac *authz.Middleware, cfg *config.SecurityConfig, hub *realtime.Hub) *Router {
	var wsHandler http.HandlerFunc
	if hub != nil {
		wsHandler = realtime.NewUpgradeHandler(hub, cfg.CORSOrigins)
	}
	return &Router{
		handler:       handler,
		authenticator: authenticator,
		rbac:          rbac,
		cfg:           cfg,
		wsHandler:     wsHandler,
	}
}

// Setup wires all routes.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global stack: request IDs first so every log line carries one.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	// Health endpoints: permissive rate limit, no auth, monitors poll
	// these constantly.
	r.Route("/api/health", func(r chi.Router) {
		r.Use(rt.rateLimit(1000, time.Minute))
		r.Get("/", rt.handler.Health)
		r.Get("/live", rt.handler.HealthLive)
		r.Get("/ready", rt.handler.HealthReady)
	})

	// Auth endpoints: strict limits against brute force.
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(rt.rateLimit(20, time.Minute))
		r.With(rt.rateLimit(5, 5*time.Minute)).Post("/login", rt.handler.Login)
		r.Post("/refresh", rt.handler.Refresh)
	})

	// Dashboard aggregates.
	r.Route("/api/dashboard", func(r chi.Router) {
		rt.protect(r)
		r.Get("/overview", rt.handler.DashboardOverview)
		r.Get("/stats", rt.handler.DashboardStats)
		r.Get("/observations", rt.handler.DashboardObservations)
	})

	// Scheduler visibility.
	r.Route("/api/scheduler", func(r chi.Router) {
		rt.protect(r)
		r.Get("/jobs", rt.handler.SchedulerJobs)
	})

	// Catalog and storage listings keep their legacy top-level paths.
	r.Route("/database", func(r chi.Router) {
		rt.protect(r)
		r.Get("/tables/{schema}", rt.handler.DatabaseTables)
	})
	r.Route("/storage", func(r chi.Router) {
		rt.protect(r)
		r.Get("/buckets", rt.handler.StorageBuckets)
	})

	// Asynchronous task surface.
	r.Route("/async", func(r chi.Router) {
		rt.protect(r)
		r.Post("/ml/predictions", rt.handler.SubmitPrediction)
		r.Post("/ml/predictions/batch", rt.handler.SubmitPredictionBatch)
		r.Get("/ml/predictions", rt.handler.ListPredictions)
		r.Get("/tasks", rt.handler.ListTasks)
		r.Get("/tasks/{id}", rt.handler.GetTask)
		r.Post("/tasks/{id}/retry", rt.handler.RetryTask)
		r.Get("/queues", rt.handler.QueueStats)
		r.Get("/groups/{id}", rt.handler.GroupStatus)
		r.Get("/dlq", rt.handler.DeadTasks)
	})

	// Admin-only operations.
	r.Route("/api/admin", func(r chi.Router) {
		rt.protect(r)
		if rt.rbac != nil {
			r.Use(rt.rbac.RequireRole("admin"))
		}
		r.Get("/policy", rt.handler.AdminPolicy)
		r.Get("/audit", rt.handler.AdminAudit)
		r.Post("/dlq/purge", rt.handler.PurgeDeadTasks)
	})

	// Realtime push. Authentication happens during the upgrade request.
	if rt.wsHandler != nil {
		r.Route("/api/realtime", func(r chi.Router) {
			if rt.authenticator != nil {
				r.Use(rt.authenticator.Middleware)
			}
			r.Get("/ws", rt.wsHandler)
		})
	}

	// Observability.
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// protect applies the standard stack for authenticated data routes.
func (rt *Router) protect(r chi.Router) {
	r.Use(rt.rateLimit(rt.cfg.RateLimitReqs, rt.cfg.RateLimitWindow))
	r.Use(middleware.PrometheusMetrics)
	if rt.authenticator != nil {
		r.Use(rt.authenticator.Middleware)
	}
	if rt.rbac != nil {
		r.Use(rt.rbac.Authorize)
	}
}

// rateLimit builds an IP-keyed limiter, or a no-op when disabled.
func (rt *Router) rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if rt.cfg.RateLimitDisabled || requests <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(requests, window, httprate.WithKeyFuncs(httprate.KeyByIP))
}

// securityHeaders sets the standard hardening headers on every
// response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
