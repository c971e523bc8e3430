// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

// Package api serves the BGAPP admin dashboard HTTP surface: health,
// authentication, dashboard aggregates, catalog and storage listings,
// the asynchronous task endpoints and the WebSocket upgrade.
package api

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/bgapp-platform/bgapp/internal/audit"
	"github.com/bgapp-platform/bgapp/internal/auth"
	"github.com/bgapp-platform/bgapp/internal/cache"
	"github.com/bgapp-platform/bgapp/internal/config"
	"github.com/bgapp-platform/bgapp/internal/database"
	"github.com/bgapp-platform/bgapp/internal/models"
	"github.com/bgapp-platform/bgapp/internal/realtime"
	"github.com/bgapp-platform/bgapp/internal/scheduler"
	"github.com/bgapp-platform/bgapp/internal/tasks"
	"github.com/bgapp-platform/bgapp/internal/upstream"
)

// Database is the slice of the DuckDB layer the handlers use.
type Database interface {
	Ping(ctx context.Context) error
	Counts(ctx context.Context) (*database.DashboardCounts, error)
	LatestConditions(ctx context.Context) (*models.RealTimeData, error)
	LatestObservations(ctx context.Context, limit int) ([]models.Observation, error)
	RecentPredictions(ctx context.Context, limit int) ([]database.PredictionResult, error)
	ListTables(ctx context.Context, schema string) ([]models.TableInfo, error)
}

// BucketLister is the slice of the storage gateway the handlers use.
// The bool result reports whether the listing is the static fallback.
type BucketLister interface {
	ListBuckets(ctx context.Context) ([]models.BucketInfo, bool)
	BreakerState() string
}

// ConditionsSource reports the upstream Copernicus feed state.
type ConditionsSource interface {
	FetchConditions(ctx context.Context, box models.GeoBox) (*upstream.MarineConditions, bool)
	Status() models.CopernicusStatus
}

// TaskManager is the slice of the queue manager the handlers use.
type TaskManager interface {
	Submit(ctx context.Context, taskType string, queue tasks.Queue, payload json.RawMessage) (*tasks.Record, error)
	SubmitGroup(ctx context.Context, taskType string, queue tasks.Queue, payloads []json.RawMessage, onDone func([]*tasks.Record)) (string, []*tasks.Record, error)
	Get(id string) (*tasks.Record, error)
	List(filter tasks.ListFilter) ([]*tasks.Record, error)
	Stats() ([]*tasks.QueueStats, error)
	GroupStatus(id string) (tasks.GroupStatus, bool)
	ListDead(limit int) ([]*tasks.Record, error)
	Requeue(ctx context.Context, id string) (*tasks.Record, error)
	PurgeDead() (int, error)
	Healthy(ctx context.Context) bool
	PublisherBreakerState() string
}

// SchedulerInfo exposes beat-job state for the scheduler endpoint.
type SchedulerInfo interface {
	Jobs() []scheduler.JobInfo
	Enabled() bool
}

// PolicySource exposes the RBAC rules for the admin policy endpoint.
type PolicySource interface {
	Policy() [][]string
}

// AuditLog records security events and serves the admin audit trail.
type AuditLog interface {
	Record(event *audit.Event)
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
}

// Handler carries the dependencies for all API handlers.
type Handler struct {
	cfg        *config.Config
	db         Database
	buckets    BucketLister
	conditions ConditionsSource
	manager    TaskManager
	sched      SchedulerInfo
	policies   PolicySource
	auditLog   AuditLog
	hub        *realtime.Hub
	jwtManager *auth.JWTManager
	creds      *auth.CredentialStore
	cache      *cache.Cache
	startTime  time.Time
	version    string
}

// HandlerDeps bundles constructor arguments; optional surfaces may be
// nil and their endpoints degrade accordingly.
type HandlerDeps struct {
	Config      *config.Config
	DB          Database
	Buckets     BucketLister
	Conditions  ConditionsSource
	TaskManager TaskManager
	Scheduler   SchedulerInfo
	Policies    PolicySource
	Audit       AuditLog
	Hub         *realtime.Hub
	JWTManager  *auth.JWTManager
	Credentials *auth.CredentialStore
	Version     string
}

// NewHandler builds the handler set. The overview cache TTL comes from
// config; a zero or negative TTL falls back to the 30 second default.
func NewHandler(deps HandlerDeps) *Handler {
	ttl := 30 * time.Second
	if deps.Config != nil && deps.Config.API.OverviewCacheTTL > 0 {
		ttl = deps.Config.API.OverviewCacheTTL
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		cfg:        deps.Config,
		db:         deps.DB,
		buckets:    deps.Buckets,
		conditions: deps.Conditions,
		manager:    deps.TaskManager,
		sched:      deps.Scheduler,
		policies:   deps.Policies,
		auditLog:   deps.Audit,
		hub:        deps.Hub,
		jwtManager: deps.JWTManager,
		creds:      deps.Credentials,
		cache:      cache.New(ttl),
		startTime:  time.Now(),
		version:    version,
	}
}

// ClearCache drops cached dashboard aggregates so the next request hits
// the database. Called after ingest runs complete.
func (h *Handler) ClearCache() {
	h.cache.Clear()
}

// OnTaskTerminal handles terminal task transitions; main registers it
// with the task manager at startup. Every transition goes out over the
// WebSocket. A completed ingest additionally drops the cached dashboard
// aggregates and pushes the refreshed conditions; a task going dead
// pushes a fresh system status so dashboards surface the degradation
// without polling.
func (h *Handler) OnTaskTerminal(rec *tasks.Record) {
	if h.hub != nil {
		h.hub.BroadcastTaskEvent(rec.ID, rec.Type, string(rec.Queue), string(rec.Status), rec.Error)
	}

	switch {
	case rec.Status == tasks.StatusSucceeded && rec.Type == tasks.TypeIngest:
		h.ClearCache()
		if h.hub != nil && h.db != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if latest, err := h.db.LatestConditions(ctx); err == nil && latest != nil {
				h.hub.BroadcastDataUpdate(latest)
			}
		}
	case rec.Status == tasks.StatusDead:
		if h.hub != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			overview, _ := h.buildOverview(ctx)
			h.hub.BroadcastSystemStatus(&overview.SystemStatus)
		}
	}
}

func (h *Handler) uptime() int64 {
	return int64(time.Since(h.startTime).Seconds())
}
