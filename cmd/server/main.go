// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

// Package main is the entry point for the BGAPP admin API server.
//
// BGAPP monitors the Angola exclusive economic zone: it ingests marine
// observations, tracks Copernicus ocean conditions, runs machine
// learning predictions through a prioritized task queue, and serves the
// aggregates to the admin dashboard.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Database: Initialize DuckDB with the observation and prediction schema
//  3. Object storage: MinIO gateway for report and model buckets
//  4. Upstream: Copernicus marine conditions client with circuit breaker
//  5. Task queue: Embedded NATS JetStream with prioritized worker pools
//  6. Scheduler: Interval beat jobs (ingest, cleanup, report)
//  7. Authentication: JWT, OIDC, Basic Auth, or no-auth mode plus Casbin RBAC
//  8. HTTP Server: REST API, WebSocket push, and Prometheus metrics
//
// Everything runs under a suture supervisor tree; a crashing component
// is restarted with backoff instead of taking the process down.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables prefixed BGAPP_, an optional
// config.yaml, and built-in defaults.
//
// For JWT authentication (default):
//   - BGAPP_SECURITY_JWT_SECRET: 32+ character secret for token signing
//   - BGAPP_SECURITY_ADMIN_USERNAME / BGAPP_SECURITY_ADMIN_PASSWORD
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting connections, drains in-flight requests, then closes the
// task manager and database.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/bgapp-platform/bgapp/internal/api"
	"github.com/bgapp-platform/bgapp/internal/audit"
	"github.com/bgapp-platform/bgapp/internal/auth"
	"github.com/bgapp-platform/bgapp/internal/authz"
	"github.com/bgapp-platform/bgapp/internal/config"
	"github.com/bgapp-platform/bgapp/internal/database"
	"github.com/bgapp-platform/bgapp/internal/logging"
	"github.com/bgapp-platform/bgapp/internal/realtime"
	"github.com/bgapp-platform/bgapp/internal/scheduler"
	"github.com/bgapp-platform/bgapp/internal/storage"
	"github.com/bgapp-platform/bgapp/internal/supervisor"
	"github.com/bgapp-platform/bgapp/internal/tasks"
	"github.com/bgapp-platform/bgapp/internal/upstream"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Str("auth_mode", cfg.Security.AuthMode).
		Str("environment", cfg.Server.Environment).
		Msg("Starting BGAPP admin server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database first; everything else reads or writes through it.
	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	// Object storage gateway. Optional: the API serves the static bucket
	// fallback and report generation skips the upload when disabled.
	var gateway *storage.Gateway
	if cfg.Storage.Enabled {
		gateway, err = storage.New(&cfg.Storage)
		if err != nil {
			logging.Warn().Err(err).Msg("Object storage unavailable, bucket listings fall back to static defaults")
		} else {
			logging.Info().Str("endpoint", cfg.Storage.Endpoint).Msg("Object storage gateway initialized")
		}
	} else {
		logging.Info().Msg("Object storage disabled")
	}

	// Copernicus upstream feed for real-time ZEE conditions.
	conditions := upstream.New(&cfg.Upstream)

	// Task queue: embedded NATS JetStream with per-priority worker
	// pools. The executor carries the dependencies the workers need.
	var uploader tasks.ReportUploader
	if gateway != nil {
		uploader = gateway
	}
	executor := tasks.NewExecutor(db, conditions, uploader, cfg.Storage.ReportBucket)
	manager, err := tasks.NewManager(ctx, &cfg.NATS, executor)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize task queue")
	}
	defer func() {
		if err := manager.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing task manager")
		}
	}()
	logging.Info().Str("url", cfg.NATS.URL).Bool("embedded", cfg.NATS.EmbeddedServer).Msg("Task queue initialized")

	// Interval beat jobs submit into the same queue the API uses.
	beat := scheduler.New(&cfg.Scheduler, manager)

	// WebSocket hub for dashboard push.
	hub := realtime.NewHub()

	// Audit trail: persisted to the platform database, written from a
	// background goroutine so requests never block on it.
	var auditLog *audit.Logger
	auditStore := audit.NewDuckDBStore(db.Conn())
	if err := auditStore.CreateTable(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to create audit table, audit trail disabled")
	} else {
		auditLog = audit.NewLogger(auditStore, audit.DefaultConfig())
		logging.Info().Msg("Audit trail initialized")
	}

	authenticator, jwtManager, creds := buildAuth(ctx, &cfg.Security)

	enforcer, err := authz.NewEnforcer(&cfg.Security.Casbin)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize RBAC enforcer")
	}

	handler := api.NewHandler(api.HandlerDeps{
		Config:      cfg,
		DB:          db,
		Buckets:     bucketLister(gateway),
		Conditions:  conditions,
		TaskManager: manager,
		Scheduler:   beat,
		Policies:    enforcer,
		Audit:       auditLogOrNil(auditLog),
		Hub:         hub,
		JWTManager:  jwtManager,
		Credentials: creds,
		Version:     version,
	})

	// Terminal task transitions fan out through the handler: every one
	// goes over the WebSocket, and a completed ingest invalidates the
	// dashboard cache so the next overview request sees the new data.
	manager.OnTaskTerminal(handler.OnTaskTerminal)

	router := api.NewRouter(handler, authenticator, authz.NewMiddleware(enforcer), &cfg.Security, hub)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Supervisor tree: tasks and realtime layers come up before the API
	// layer starts accepting traffic.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddTaskService(supervisor.NewRunnerService("task-manager", manager))
	if beat.Enabled() {
		tree.AddTaskService(supervisor.NewRunnerService("scheduler", beat))
	} else {
		logging.Info().Msg("Scheduler disabled")
	}
	if auditLog != nil {
		tree.AddTaskService(supervisor.NewRunnerService("audit-logger", auditLog))
	}
	tree.AddRealtimeService(supervisor.NewRunnerService("websocket-hub", hub))
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))

	logging.Info().
		Str("addr", server.Addr).
		Msg("BGAPP admin server listening")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Fatal().Err(err).Msg("Supervisor tree failed")
	}
	logging.Info().Msg("Shutdown complete")
}

// buildAuth constructs the authenticator stack for the configured mode.
// Local JWT credentials are only built in jwt mode; OIDC deployments
// authenticate against the issuer and this server only verifies.
func buildAuth(ctx context.Context, sec *config.SecurityConfig) (*auth.Authenticator, *auth.JWTManager, *auth.CredentialStore) {
	var (
		jwtManager *auth.JWTManager
		oidc       *auth.OIDCVerifier
		creds      *auth.CredentialStore
		err        error
	)

	switch sec.AuthMode {
	case auth.ModeJWT:
		jwtManager, err = auth.NewJWTManager(sec.JWTSecret, sec.TokenTTL, sec.RefreshTTL)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
		creds, err = auth.NewCredentialStore(sec.AdminUsername, sec.AdminPassword, []string{"admin"})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize credential store")
		}
		logging.Info().Msg("JWT authentication enabled")
	case auth.ModeOIDC:
		oidc, err = auth.NewOIDCVerifier(ctx, &sec.OIDC)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize OIDC verifier")
		}
		logging.Info().Str("issuer", sec.OIDC.IssuerURL).Msg("OIDC authentication enabled")
	case auth.ModeBasic:
		creds, err = auth.NewCredentialStore(sec.AdminUsername, sec.AdminPassword, []string{"admin"})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize credential store")
		}
		logging.Info().Msg("Basic authentication enabled")
		logging.Warn().Msg("Basic Auth transmits credentials with each request. Use HTTPS in production!")
	}

	authenticator, err := auth.NewAuthenticator(sec.AuthMode, jwtManager, oidc, creds)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authenticator")
	}
	return authenticator, jwtManager, creds
}

// bucketLister avoids handing the handler a typed-nil interface when
// storage is disabled.
func bucketLister(gateway *storage.Gateway) api.BucketLister {
	if gateway == nil {
		return nil
	}
	return gateway
}

// auditLogOrNil avoids handing the handler a typed-nil interface when
// the audit trail is disabled.
func auditLogOrNil(logger *audit.Logger) api.AuditLog {
	if logger == nil {
		return nil
	}
	return logger
}
