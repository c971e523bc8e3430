// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

// Package config holds the layered application configuration.
//
// Configuration is loaded with koanf in three layers, later layers
// overriding earlier ones:
//
//  1. struct defaults (defaultConfig)
//  2. optional YAML file (config.yaml, /etc/bgapp/config.yaml, or CONFIG_PATH)
//  3. environment variables, mapped through envTransformFunc
package config

import (
	"time"
)

// Config is the root configuration for the BGAPP admin API.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	NATS      NATSConfig      `koanf:"nats"`      // Embedded broker + task router
	Scheduler SchedulerConfig `koanf:"scheduler"` // Interval beat jobs
	Storage   StorageConfig   `koanf:"storage"`   // MinIO object storage
	Upstream  UpstreamConfig  `koanf:"upstream"`  // Copernicus marine data
	Security  SecurityConfig  `koanf:"security"`
	API       APIConfig       `koanf:"api"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // development or production
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
	SeedDemo  bool   `koanf:"seed_demo_data"`
}

// NATSConfig holds the embedded JetStream broker and Watermill router
// settings for the async task system.
type NATSConfig struct {
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	StoreDir       string        `koanf:"store_dir"`
	MaxMemory      int64         `koanf:"max_memory"`
	MaxStore       int64         `koanf:"max_store"`
	RetentionDays  int           `koanf:"stream_retention_days"`
	DurableName    string        `koanf:"durable_name"`
	QueueGroup     string        `koanf:"queue_group"`
	ResultStoreDir string        `koanf:"result_store_dir"`
	ResultTTL      time.Duration `koanf:"result_ttl"`

	// Worker pool sizes per priority class.
	WorkersHigh    int `koanf:"workers_high"`
	WorkersDefault int `koanf:"workers_default"`
	WorkersLow     int `koanf:"workers_low"`

	// Watermill router middleware settings.
	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterRetryMaxInterval     time.Duration `koanf:"router_retry_max_interval"`
	RouterRetryMultiplier      float64       `koanf:"router_retry_multiplier"`
	RouterThrottlePerSecond    int           `koanf:"router_throttle_per_second"`
	RouterPoisonQueueEnabled   bool          `koanf:"router_poison_queue_enabled"`
	RouterPoisonQueueTopic     string        `koanf:"router_poison_queue_topic"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
}

// SchedulerConfig holds the interval beat settings. Intervals are plain
// durations; there is no cron syntax. Every interval is validated against
// MinInterval so a misconfigured job cannot fire more often than once a
// minute.
type SchedulerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	IngestInterval   time.Duration `koanf:"ingest_interval"`
	CleanupInterval  time.Duration `koanf:"cleanup_interval"`
	ReportInterval   time.Duration `koanf:"report_interval"`
	JitterFraction   float64       `koanf:"jitter_fraction"` // 0..0.5 of the interval
	RunIngestOnStart bool          `koanf:"run_ingest_on_start"`
}

// MinInterval is the floor for scheduler job intervals.
const MinInterval = time.Minute

// StorageConfig holds MinIO settings.
type StorageConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Endpoint        string        `koanf:"endpoint"`
	AccessKey       string        `koanf:"access_key"`
	SecretKey       string        `koanf:"secret_key"`
	UseSSL          bool          `koanf:"use_ssl"`
	Region          string        `koanf:"region"`
	ReportBucket    string        `koanf:"report_bucket"`
	ObjectScanLimit int           `koanf:"object_scan_limit"` // cap on per-bucket size aggregation
	RequestTimeout  time.Duration `koanf:"request_timeout"`
}

// UpstreamConfig holds the Copernicus marine-data client settings.
type UpstreamConfig struct {
	BaseURL        string        `koanf:"base_url"`
	APIKey         string        `koanf:"api_key"`
	Timeout        time.Duration `koanf:"timeout"`
	RatePerSecond  float64       `koanf:"rate_per_second"`
	RateBurst      int           `koanf:"rate_burst"`
	BreakerMaxFail uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// SecurityConfig holds authentication, authorization and transport
// protection settings.
type SecurityConfig struct {
	AuthMode          string        `koanf:"auth_mode"` // jwt, oidc, basic, none
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	RefreshTTL        time.Duration `koanf:"refresh_ttl"`
	AdminUsername     string        `koanf:"admin_username"`
	AdminPassword     string        `koanf:"admin_password"` // bcrypt hash or plaintext (hashed at startup)
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	TrustedProxies    []string      `koanf:"trusted_proxies"`

	OIDC   OIDCConfig   `koanf:"oidc"`
	Casbin CasbinConfig `koanf:"casbin"`
}

// OIDCConfig holds Keycloak-style OIDC verification settings.
type OIDCConfig struct {
	IssuerURL    string   `koanf:"issuer_url"`
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	RolesClaim   string   `koanf:"roles_claim"`
	DefaultRoles []string `koanf:"default_roles"`
}

// CasbinConfig holds RBAC enforcer settings.
type CasbinConfig struct {
	ModelPath   string `koanf:"model_path"`  // empty = embedded model
	PolicyPath  string `koanf:"policy_path"` // empty = embedded policy
	DefaultRole string `koanf:"default_role"`
}

// APIConfig holds response shaping settings.
type APIConfig struct {
	DefaultPageSize  int           `koanf:"default_page_size"`
	MaxPageSize      int           `koanf:"max_page_size"`
	OverviewCacheTTL time.Duration `koanf:"overview_cache_ttl"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
